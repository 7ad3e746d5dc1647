package escrow

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists escrow transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed escrow store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, t *Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO escrows (
			id, request_id, bid_id, buyer_id, seller_id,
			amount, fee, total, status, payment_method,
			payment_reference, payment_token, failure_reason, notes,
			expires_at, locked_at, resolved_at, created_at, updated_at,
			created_by, updated_by
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::NUMERIC(12,2), $7::NUMERIC(12,2), $8::NUMERIC(12,2), $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18, $19,
			$20, $21
		)`,
		t.ID, t.RequestID, t.BidID, t.BuyerID, t.SellerID,
		t.Amount, t.Fee, t.Total, string(t.Status), t.PaymentMethod,
		t.PaymentReference, t.PaymentToken, t.FailureReason, t.Notes,
		t.ExpiresAt, nullTime(t.LockedAt), nullTime(t.ResolvedAt), t.CreatedAt, t.UpdatedAt,
		t.CreatedBy, t.UpdatedBy,
	)
	// The UNIQUE(request_id) constraint is what enforces one escrow per
	// request under concurrent acceptance.
	if isUniqueViolation(err) {
		return ErrEscrowExists
	}
	return err
}

const escrowColumns = `id, request_id, bid_id, buyer_id, seller_id,
		       amount, fee, total, status, payment_method,
		       payment_reference, payment_token, failure_reason, notes,
		       expires_at, locked_at, resolved_at, created_at, updated_at,
		       created_by, updated_by`

func (p *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id)

	t, err := scanEscrow(row)
	if err == sql.ErrNoRows {
		return nil, ErrEscrowNotFound
	}
	return t, err
}

func (p *PostgresStore) GetByRequest(ctx context.Context, requestID string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE request_id = $1`, requestID)

	t, err := scanEscrow(row)
	if err == sql.ErrNoRows {
		return nil, ErrEscrowNotFound
	}
	return t, err
}

func (p *PostgresStore) Update(ctx context.Context, t *Transaction) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE escrows SET
			status = $1, failure_reason = $2, notes = $3,
			locked_at = $4, resolved_at = $5, updated_at = $6, updated_by = $7
		WHERE id = $8`,
		string(t.Status), t.FailureReason, t.Notes,
		nullTime(t.LockedAt), nullTime(t.ResolvedAt), t.UpdatedAt, t.UpdatedBy,
		t.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrEscrowNotFound
	}
	return nil
}

func (p *PostgresStore) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE status = 'pending'
		  AND expires_at < $1
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanEscrows(rows)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEscrow(s scanner) (*Transaction, error) {
	t := &Transaction{}
	var (
		status     string
		lockedAt   sql.NullTime
		resolvedAt sql.NullTime
	)

	err := s.Scan(
		&t.ID, &t.RequestID, &t.BidID, &t.BuyerID, &t.SellerID,
		&t.Amount, &t.Fee, &t.Total, &status, &t.PaymentMethod,
		&t.PaymentReference, &t.PaymentToken, &t.FailureReason, &t.Notes,
		&t.ExpiresAt, &lockedAt, &resolvedAt, &t.CreatedAt, &t.UpdatedAt,
		&t.CreatedBy, &t.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	t.Status = Status(status)
	if lockedAt.Valid {
		t.LockedAt = &lockedAt.Time
	}
	if resolvedAt.Valid {
		t.ResolvedAt = &resolvedAt.Time
	}

	return t, nil
}

func scanEscrows(rows *sql.Rows) ([]*Transaction, error) {
	var result []*Transaction
	for rows.Next() {
		t, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
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

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (code 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
