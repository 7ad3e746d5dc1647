package requests

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists requests in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed request store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, r *Request) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO requests (
			id, buyer_id, title, description, category, budget,
			status, deadline, is_deleted, created_at, updated_at,
			created_by, updated_by
		) VALUES (
			$1, $2, $3, $4, $5, $6::NUMERIC(12,2),
			$7, $8, $9, $10, $11,
			$12, $13
		)`,
		r.ID, r.BuyerID, r.Title, r.Description, r.Category, r.Budget,
		string(r.Status), nullTime(r.Deadline), r.IsDeleted, r.CreatedAt, r.UpdatedAt,
		r.CreatedBy, r.UpdatedBy,
	)
	return err
}

const requestColumns = `id, buyer_id, title, description, category, budget,
		       status, deadline, is_deleted, created_at, updated_at,
		       created_by, updated_by`

func (p *PostgresStore) Get(ctx context.Context, id string) (*Request, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)

	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	return r, err
}

func (p *PostgresStore) Update(ctx context.Context, r *Request) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE requests SET
			title = $1, description = $2, category = $3, budget = $4::NUMERIC(12,2),
			status = $5, deadline = $6, is_deleted = $7, updated_at = $8,
			updated_by = $9
		WHERE id = $10`,
		r.Title, r.Description, r.Category, r.Budget,
		string(r.Status), nullTime(r.Deadline), r.IsDeleted, r.UpdatedAt,
		r.UpdatedBy,
		r.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (p *PostgresStore) ListOpen(ctx context.Context, category string, limit int) ([]*Request, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE status = 'open'
		  AND NOT is_deleted
		  AND ($1 = '' OR category = $1)
		ORDER BY created_at DESC
		LIMIT $2`, category, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRequests(rows)
}

func (p *PostgresStore) ListByBuyer(ctx context.Context, buyerID string) ([]*Request, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE buyer_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC`, buyerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRequests(rows)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(s scanner) (*Request, error) {
	r := &Request{}
	var (
		category sql.NullString
		deadline sql.NullTime
		status   string
	)

	err := s.Scan(
		&r.ID, &r.BuyerID, &r.Title, &r.Description, &category, &r.Budget,
		&status, &deadline, &r.IsDeleted, &r.CreatedAt, &r.UpdatedAt,
		&r.CreatedBy, &r.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	r.Status = Status(status)
	r.Category = category.String
	if deadline.Valid {
		r.Deadline = &deadline.Time
	}

	return r, nil
}

func scanRequests(rows *sql.Rows) ([]*Request, error) {
	var result []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
