package bids

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists bids in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed bid store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, b *Bid) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bids (
			id, request_id, seller_id, amount, message,
			status, delivery_days, expires_at, created_at, updated_at,
			created_by, updated_by
		) VALUES (
			$1, $2, $3, $4::NUMERIC(12,2), $5,
			$6, $7, $8, $9, $10,
			$11, $12
		)`,
		b.ID, b.RequestID, b.SellerID, b.Amount, b.Message,
		string(b.Status), nullInt(b.DeliveryDays), nullTime(b.ExpiresAt), b.CreatedAt, b.UpdatedAt,
		b.CreatedBy, b.UpdatedBy,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateBid
	}
	return err
}

const bidColumns = `id, request_id, seller_id, amount, message,
		       status, delivery_days, expires_at, created_at, updated_at,
		       created_by, updated_by`

func (p *PostgresStore) Get(ctx context.Context, id string) (*Bid, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id)

	b, err := scanBid(row)
	if err == sql.ErrNoRows {
		return nil, ErrBidNotFound
	}
	return b, err
}

func (p *PostgresStore) Update(ctx context.Context, b *Bid) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE bids SET
			amount = $1::NUMERIC(12,2), message = $2, status = $3,
			delivery_days = $4, expires_at = $5, updated_at = $6, updated_by = $7
		WHERE id = $8`,
		b.Amount, b.Message, string(b.Status),
		nullInt(b.DeliveryDays), nullTime(b.ExpiresAt), b.UpdatedAt, b.UpdatedBy,
		b.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBidNotFound
	}
	return nil
}

func (p *PostgresStore) ListByRequest(ctx context.Context, requestID string) ([]*Bid, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+bidColumns+`
		FROM bids
		WHERE request_id = $1
		ORDER BY created_at DESC`, requestID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanBids(rows)
}

func (p *PostgresStore) ListBySeller(ctx context.Context, sellerID string) ([]*Bid, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+bidColumns+`
		FROM bids
		WHERE seller_id = $1
		ORDER BY created_at DESC`, sellerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanBids(rows)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBid(s scanner) (*Bid, error) {
	b := &Bid{}
	var (
		status       string
		deliveryDays sql.NullInt64
		expiresAt    sql.NullTime
	)

	err := s.Scan(
		&b.ID, &b.RequestID, &b.SellerID, &b.Amount, &b.Message,
		&status, &deliveryDays, &expiresAt, &b.CreatedAt, &b.UpdatedAt,
		&b.CreatedBy, &b.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	b.Status = Status(status)
	if deliveryDays.Valid {
		days := int(deliveryDays.Int64)
		b.DeliveryDays = &days
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		b.ExpiresAt = &t
	}
	return b, nil
}

func scanBids(rows *sql.Rows) ([]*Bid, error) {
	var result []*Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// nullInt converts a *int to sql.NullInt64.
func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (code 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
