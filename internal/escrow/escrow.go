// Package escrow implements the simulated escrow that backs bid acceptance:
// the escrow transaction lifecycle, platform fee calculation, and the payment
// processing simulator.
//
// No real money moves. Payments are simulated with per-method success rates
// so the rest of the marketplace can exercise realistic failure paths.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/tendera/internal/idgen"
)

var (
	// ErrEscrowNotFound is returned when an escrow transaction doesn't exist.
	ErrEscrowNotFound = errors.New("escrow not found")

	// ErrEscrowExists is returned when a request already has an escrow
	// transaction. At most one escrow per request, ever.
	ErrEscrowExists = errors.New("escrow already exists for this request")

	// ErrInvalidTransition is returned when a status change violates the
	// escrow lifecycle.
	ErrInvalidTransition = errors.New("invalid escrow status transition")

	// ErrNotReleasable is returned when funds cannot be released in the
	// current escrow/request state.
	ErrNotReleasable = errors.New("escrow funds are not releasable")
)

// Status is the lifecycle state of an escrow transaction.
type Status string

const (
	StatusPending  Status = "pending"  // created, payment not yet processed
	StatusLocked   Status = "locked"   // funds locked, held by the platform
	StatusReleased Status = "released" // funds paid out to the seller
	StatusHeld     Status = "held"     // frozen pending dispute resolution
	StatusRefunded Status = "refunded" // funds returned to the buyer
	StatusFailed   Status = "failed"   // payment failed, retryable
)

// validTransitions is the escrow lifecycle. Released and refunded are
// terminal. Failed loops back to pending so payment can be retried.
var validTransitions = map[Status][]Status{
	StatusPending:  {StatusLocked, StatusFailed},
	StatusLocked:   {StatusReleased, StatusHeld, StatusRefunded},
	StatusHeld:     {StatusReleased, StatusRefunded},
	StatusFailed:   {StatusPending},
	StatusReleased: {},
	StatusRefunded: {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusReleased || s == StatusRefunded
}

// CanTransitionTo reports whether s -> to is an allowed transition.
func (s Status) CanTransitionTo(to Status) bool {
	for _, t := range validTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Transaction is a simulated escrow holding a buyer's payment for an accepted
// bid until the work is delivered and confirmed.
type Transaction struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
	BidID     string `json:"bid_id"`
	BuyerID   string `json:"buyer_id"`
	SellerID  string `json:"seller_id"`

	// Amount is the accepted bid amount; Fee is the platform fee on top;
	// Total is what the buyer is charged.
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	Total  decimal.Decimal `json:"total"`

	Status           Status `json:"status"`
	PaymentMethod    string `json:"payment_method"`
	PaymentReference string `json:"payment_reference,omitempty"`
	PaymentToken     string `json:"-"`
	FailureReason    string `json:"failure_reason,omitempty"`
	Notes            string `json:"notes,omitempty"`

	ExpiresAt  time.Time  `json:"expires_at"`
	LockedAt   *time.Time `json:"locked_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	CreatedBy  string     `json:"created_by,omitempty"`
	UpdatedBy  string     `json:"updated_by,omitempty"`
}

// IsExpired reports whether the escrow passed its expiry without the payment
// completing.
func (t *Transaction) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

func (t *Transaction) transition(to Status, now time.Time) error {
	if !t.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = now
	return nil
}

func (t *Transaction) appendNote(note string) {
	if t.Notes == "" {
		t.Notes = note
		return
	}
	t.Notes += "\n" + note
}

// Lock records a successful payment: pending -> locked.
func (t *Transaction) Lock(outcome *Outcome, now time.Time) error {
	if err := t.transition(StatusLocked, now); err != nil {
		return err
	}
	t.LockedAt = &now
	t.FailureReason = ""
	t.appendNote("Payment processed successfully via " + outcome.Processor)
	return nil
}

// Fail records a failed payment: pending -> failed. The escrow stays
// recoverable via Reset.
func (t *Transaction) Fail(reason string, now time.Time) error {
	if err := t.transition(StatusFailed, now); err != nil {
		return err
	}
	t.FailureReason = reason
	t.appendNote("Payment failed: " + reason)
	return nil
}

// Reset re-arms a failed escrow for a payment retry: failed -> pending.
func (t *Transaction) Reset(now time.Time) error {
	if err := t.transition(StatusPending, now); err != nil {
		return err
	}
	t.appendNote("Payment retry initiated")
	return nil
}

// Release pays the seller out: locked|held -> released. Releasing from locked
// additionally requires the request to be delivered or completed; callers
// check that and pass requestDeliverable.
func (t *Transaction) Release(requestDeliverable bool, notes string, now time.Time) error {
	if t.Status == StatusLocked && !requestDeliverable {
		return fmt.Errorf("%w: work has not been delivered", ErrNotReleasable)
	}
	if !t.Status.CanTransitionTo(StatusReleased) {
		return fmt.Errorf("%w: status is %s", ErrNotReleasable, t.Status)
	}
	t.Status = StatusReleased
	t.ResolvedAt = &now
	t.UpdatedAt = now
	note := "Funds released to seller"
	if notes != "" {
		note += ": " + notes
	}
	t.appendNote(note)
	return nil
}

// Hold freezes locked funds for a dispute: locked -> held. Holding an
// already-held escrow fails.
func (t *Transaction) Hold(reason string, now time.Time) error {
	if err := t.transition(StatusHeld, now); err != nil {
		return err
	}
	note := "Funds held for dispute"
	if reason != "" {
		note += ": " + reason
	}
	t.appendNote(note)
	return nil
}

// Refund returns funds to the buyer: locked|held -> refunded.
func (t *Transaction) Refund(reason string, now time.Time) error {
	if err := t.transition(StatusRefunded, now); err != nil {
		return err
	}
	t.ResolvedAt = &now
	note := "Funds refunded to buyer"
	if reason != "" {
		note += ": " + reason
	}
	t.appendNote(note)
	return nil
}

// Store persists escrow transactions. Create must reject a second escrow for
// the same request with ErrEscrowExists.
type Store interface {
	Create(ctx context.Context, t *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	GetByRequest(ctx context.Context, requestID string) (*Transaction, error)
	Update(ctx context.Context, t *Transaction) error
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*Transaction, error)
}

// CreateParams describe the escrow to open for an accepted bid.
type CreateParams struct {
	RequestID     string
	BidID         string
	BuyerID       string
	SellerID      string
	Amount        decimal.Decimal
	PaymentMethod string
}

// Service implements escrow record operations on top of a Store. Lifecycle
// orchestration across request and bid lives in the acceptance coordinator;
// this service owns the escrow rows themselves.
type Service struct {
	store  Store
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

// DefaultTTL is how long a pending escrow may wait for payment before the
// expiry sweep fails it.
const DefaultTTL = 30 * 24 * time.Hour

// NewService creates an escrow service. ttl <= 0 uses DefaultTTL.
func NewService(store Store, logger *slog.Logger, ttl time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "escrow"),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Create opens a pending escrow for an accepted bid, computing the platform
// fee and buyer total from the bid amount.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Transaction, error) {
	fee, total := ComputeTotal(p.Amount)
	now := s.now()

	id := idgen.WithPrefix("esc_")
	t := &Transaction{
		ID:            id,
		RequestID:     p.RequestID,
		BidID:         p.BidID,
		BuyerID:       p.BuyerID,
		SellerID:      p.SellerID,
		Amount:        p.Amount.Round(2),
		Fee:           fee,
		Total:         total,
		Status:        StatusPending,
		PaymentMethod: p.PaymentMethod,
		// Human-facing reference plus an opaque token for the simulated
		// processor, mirroring what a real PSP integration would store.
		PaymentReference: "ESC_" + idgen.UpperHex(4),
		PaymentToken:     "tok_" + idgen.Hex(8),
		ExpiresAt:        now.Add(s.ttl),
		CreatedAt:        now,
		UpdatedAt:        now,
		CreatedBy:        p.BuyerID,
		UpdatedBy:        p.BuyerID,
	}

	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("escrow created",
		"escrow_id", t.ID,
		"request_id", t.RequestID,
		"amount", t.Amount.String(),
		"total", t.Total.String())
	return t, nil
}

// Get returns an escrow transaction by ID.
func (s *Service) Get(ctx context.Context, id string) (*Transaction, error) {
	return s.store.Get(ctx, id)
}

// GetByRequest returns the escrow transaction for a request.
func (s *Service) GetByRequest(ctx context.Context, requestID string) (*Transaction, error) {
	return s.store.GetByRequest(ctx, requestID)
}

// Save persists a mutated transaction.
func (s *Service) Save(ctx context.Context, t *Transaction) error {
	return s.store.Update(ctx, t)
}
