package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taiyari/internal/entities"
)

// TenantRepository is the Postgres tenant store.
type TenantRepository struct {
	db *pgxpool.Pool
}

func NewTenantRepository(db *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Get(ctx context.Context, id string) (*entities.Tenant, error) {
	var doc []byte
	err := r.db.QueryRow(ctx, "SELECT data FROM tenants WHERE id=$1", id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get tenant %s: %w", id, entities.ErrTenantNotFound)
		}
		return nil, fmt.Errorf("get tenant %s: %w", id, err)
	}
	return decodeTenant(id, doc)
}

func (r *TenantRepository) List(ctx context.Context) ([]entities.Tenant, error) {
	rows, err := r.db.Query(ctx, "SELECT id, data FROM tenants ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []entities.Tenant{}
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		t, err := decodeTenant(id, doc)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

func (r *TenantRepository) Create(ctx context.Context, t *entities.Tenant) error {
	doc, err := encodeTenant(t)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO tenants (id, data, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`, t.ID, doc)
	if err != nil {
		return fmt.Errorf("create tenant %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("create tenant %s: %w", t.ID, entities.ErrTenantExists)
	}
	return nil
}

// Update locks the row, applies fn and writes the whole document back.
func (r *TenantRepository) Update(ctx context.Context, id string, fn func(*entities.Tenant) error) (*entities.Tenant, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var doc []byte
	err = tx.QueryRow(ctx, "SELECT data FROM tenants WHERE id=$1 FOR UPDATE", id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("update tenant %s: %w", id, entities.ErrTenantNotFound)
		}
		return nil, fmt.Errorf("update tenant %s: %w", id, err)
	}

	t, err := decodeTenant(id, doc)
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
	if _, err := tx.Exec(ctx, "UPDATE tenants SET data=$2, updated_at=NOW() WHERE id=$1", id, next); err != nil {
		return nil, fmt.Errorf("update tenant %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}
