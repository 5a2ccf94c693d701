package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"taiyari/internal/entities"
)

// Latest version of each conversation, newest first.
const latestTranscriptsQuery = `
	SELECT id, conversation_id, messages, created_at FROM (
		SELECT id, conversation_id, messages, created_at,
			ROW_NUMBER() OVER (PARTITION BY conversation_id ORDER BY created_at DESC, id DESC) AS rn
		FROM transcripts
		WHERE tenant_id = $1
	) latest
	WHERE rn = 1
	ORDER BY created_at DESC
	LIMIT $2`

// TranscriptRepository is the Postgres append-only transcript log.
type TranscriptRepository struct {
	db *pgxpool.Pool
}

func NewTranscriptRepository(db *pgxpool.Pool) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

func (r *TranscriptRepository) Save(ctx context.Context, tr entities.Transcript) error {
	msgs, err := encodeMessages(tr.Messages)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO transcripts (id, tenant_id, conversation_id, messages, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, tr.ID, tr.TenantID, tr.ConversationID, msgs, tr.Timestamp)
	if err != nil {
		return fmt.Errorf("save transcript %s/%s: %w", tr.TenantID, tr.ConversationID, err)
	}
	return nil
}

func (r *TranscriptRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]entities.Transcript, error) {
	rows, err := r.db.Query(ctx, latestTranscriptsQuery, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcripts for %s: %w", tenantID, err)
	}
	defer rows.Close()

	out := []entities.Transcript{}
	for rows.Next() {
		tr := entities.Transcript{TenantID: tenantID}
		var msgs []byte
		if err := rows.Scan(&tr.ID, &tr.ConversationID, &msgs, &tr.Timestamp); err != nil {
			return nil, err
		}
		if tr.Messages, err = decodeMessages(msgs); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (r *TranscriptRepository) CountConversations(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(DISTINCT conversation_id) FROM transcripts WHERE tenant_id=$1", tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count conversations for %s: %w", tenantID, err)
	}
	return n, nil
}
