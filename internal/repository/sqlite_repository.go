package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taiyari/internal/entities"
)

// SQLiteTenantRepository stores tenants in SQLite. It backs local
// development and the repository tests.
type SQLiteTenantRepository struct {
	db *sql.DB
}

func NewSQLiteTenantRepository(db *sql.DB) *SQLiteTenantRepository {
	return &SQLiteTenantRepository{db: db}
}

func (r *SQLiteTenantRepository) Get(ctx context.Context, id string) (*entities.Tenant, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, "SELECT data FROM tenants WHERE id = ?", id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get tenant %s: %w", id, entities.ErrTenantNotFound)
		}
		return nil, fmt.Errorf("get tenant %s: %w", id, err)
	}
	return decodeTenant(id, []byte(doc))
}

func (r *SQLiteTenantRepository) List(ctx context.Context) ([]entities.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, data FROM tenants ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []entities.Tenant{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		t, err := decodeTenant(id, []byte(doc))
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

func (r *SQLiteTenantRepository) Create(ctx context.Context, t *entities.Tenant) error {
	doc, err := encodeTenant(t)
	if err != nil {
		return err
	}
	now := time.Now().UnixNano()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants (id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, t.ID, string(doc), now, now)
	if err != nil {
		return fmt.Errorf("create tenant %s: %w", t.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("create tenant %s: %w", t.ID, entities.ErrTenantExists)
	}
	return nil
}

func (r *SQLiteTenantRepository) Update(ctx context.Context, id string, fn func(*entities.Tenant) error) (*entities.Tenant, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var doc string
	err = tx.QueryRowContext(ctx, "SELECT data FROM tenants WHERE id = ?", id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("update tenant %s: %w", id, entities.ErrTenantNotFound)
		}
		return nil, fmt.Errorf("update tenant %s: %w", id, err)
	}

	t, err := decodeTenant(id, []byte(doc))
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	t.ID = id

	next, err := encodeTenant(t)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, "UPDATE tenants SET data = ?, updated_at = ? WHERE id = ?", string(next), time.Now().UnixNano(), id)
	if err != nil {
		return nil, fmt.Errorf("update tenant %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

// SQLiteTranscriptRepository is the SQLite transcript log. Timestamps are
// stored as unix nanoseconds.
type SQLiteTranscriptRepository struct {
	db *sql.DB
}

func NewSQLiteTranscriptRepository(db *sql.DB) *SQLiteTranscriptRepository {
	return &SQLiteTranscriptRepository{db: db}
}

func (r *SQLiteTranscriptRepository) Save(ctx context.Context, tr entities.Transcript) error {
	msgs, err := encodeMessages(tr.Messages)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transcripts (id, tenant_id, conversation_id, messages, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, tr.ID, tr.TenantID, tr.ConversationID, string(msgs), tr.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("save transcript %s/%s: %w", tr.TenantID, tr.ConversationID, err)
	}
	return nil
}

func (r *SQLiteTranscriptRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]entities.Transcript, error) {
	query := strings.NewReplacer("$1", "?", "$2", "?").Replace(latestTranscriptsQuery)
	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcripts for %s: %w", tenantID, err)
	}
	defer rows.Close()

	out := []entities.Transcript{}
	for rows.Next() {
		tr := entities.Transcript{TenantID: tenantID}
		var msgs string
		var ts int64
		if err := rows.Scan(&tr.ID, &tr.ConversationID, &msgs, &ts); err != nil {
			return nil, err
		}
		if tr.Messages, err = decodeMessages([]byte(msgs)); err != nil {
			return nil, err
		}
		tr.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (r *SQLiteTranscriptRepository) CountConversations(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT conversation_id) FROM transcripts WHERE tenant_id = ?", tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count conversations for %s: %w", tenantID, err)
	}
	return n, nil
}
