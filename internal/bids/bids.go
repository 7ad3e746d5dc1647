// Package bids manages seller bids against marketplace requests: placement
// rules, the one-active-bid-per-seller constraint, and acceptance eligibility.
package bids

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/tendera/internal/idgen"
	"github.com/mbd888/tendera/internal/metrics"
	"github.com/mbd888/tendera/internal/requests"
)

var (
	// ErrBidNotFound is returned when a bid doesn't exist.
	ErrBidNotFound = errors.New("bid not found")

	// ErrDuplicateBid is returned when a seller already has an active bid on
	// the request.
	ErrDuplicateBid = errors.New("seller already has an active bid on this request")

	// ErrOwnRequest is returned when a buyer bids on their own request.
	ErrOwnRequest = errors.New("cannot bid on your own request")

	// ErrExceedsBudget is returned when the bid amount is above the request
	// budget.
	ErrExceedsBudget = errors.New("bid amount exceeds request budget")

	// ErrRequestNotBiddable is returned when the request is not accepting bids.
	ErrRequestNotBiddable = errors.New("request is not accepting bids")

	// ErrNotSeller is returned when an actor tries to modify a bid they
	// didn't place.
	ErrNotSeller = errors.New("not the bid owner")

	// ErrNotAcceptable is returned when a bid cannot be accepted in its
	// current state.
	ErrNotAcceptable = errors.New("bid cannot be accepted")

	// ErrBidExpired is returned when a bid's expiry has passed.
	ErrBidExpired = errors.New("bid has expired")

	// ErrNotEditable is returned when a bid can no longer be modified.
	ErrNotEditable = errors.New("bid is not editable")

	// ErrInvalidInput is returned for validation failures.
	ErrInvalidInput = errors.New("invalid bid input")
)

// Status is the lifecycle state of a bid.
type Status string

const (
	StatusPending   Status = "pending"   // placed, awaiting buyer decision
	StatusAccepted  Status = "accepted"  // buyer accepted this bid
	StatusRejected  Status = "rejected"  // another bid was accepted
	StatusWithdrawn Status = "withdrawn" // seller withdrew the bid
)

// Active reports whether the bid still occupies the seller's slot on the
// request. Rejected and withdrawn bids free the slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusAccepted
}

// Bid is a seller's offer to fulfil a request at a given price.
type Bid struct {
	ID        string          `json:"id"`
	RequestID string          `json:"request_id"`
	SellerID  string          `json:"seller_id"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message"`
	Status    Status          `json:"status"`

	// DeliveryDays is the seller's estimated delivery time in days.
	DeliveryDays *int `json:"delivery_days,omitempty"`
	// ExpiresAt is when the offer lapses. A nil expiry never lapses.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// IsExpired reports whether the bid's expiry has passed.
func (b *Bid) IsExpired(now time.Time) bool {
	return b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// CanBeAccepted checks acceptance eligibility against the owning request.
// The returned error explains the failing rule.
func (b *Bid) CanBeAccepted(req *requests.Request, now time.Time) error {
	switch b.Status {
	case StatusPending:
	case StatusAccepted:
		return fmt.Errorf("%w: already accepted", ErrNotAcceptable)
	case StatusWithdrawn:
		return fmt.Errorf("%w: bid was withdrawn", ErrNotAcceptable)
	default:
		return fmt.Errorf("%w: status is %s", ErrNotAcceptable, b.Status)
	}
	if b.IsExpired(now) {
		return fmt.Errorf("%w: expired at %s", ErrBidExpired, b.ExpiresAt.Format(time.RFC3339))
	}
	if b.Amount.GreaterThan(req.Budget) {
		return fmt.Errorf("%w: %s exceeds budget %s", ErrNotAcceptable, b.Amount, req.Budget)
	}
	return nil
}

// Accept marks the bid accepted. Only pending bids can be accepted.
func (b *Bid) Accept(now time.Time) error {
	if b.Status != StatusPending {
		return fmt.Errorf("%w: status is %s", ErrNotAcceptable, b.Status)
	}
	b.Status = StatusAccepted
	b.UpdatedAt = now
	return nil
}

// Unaccept reverts an acceptance back to pending. Used to compensate when a
// later step of bid acceptance fails.
func (b *Bid) Unaccept(now time.Time) error {
	if b.Status != StatusAccepted {
		return fmt.Errorf("%w: status is %s, not accepted", ErrNotEditable, b.Status)
	}
	b.Status = StatusPending
	b.UpdatedAt = now
	return nil
}

// Store persists bids. Create must reject a second active bid by the same
// seller on the same request with ErrDuplicateBid.
type Store interface {
	Create(ctx context.Context, b *Bid) error
	Get(ctx context.Context, id string) (*Bid, error)
	Update(ctx context.Context, b *Bid) error
	ListByRequest(ctx context.Context, requestID string) ([]*Bid, error)
	ListBySeller(ctx context.Context, sellerID string) ([]*Bid, error)
}

// RequestSource is the slice of the request service bids need.
type RequestSource interface {
	Get(ctx context.Context, id string) (*requests.Request, error)
}

// PlaceParams are the seller-supplied fields for a new bid.
type PlaceParams struct {
	RequestID    string
	SellerID     string
	Amount       decimal.Decimal
	Message      string
	DeliveryDays *int
	ExpiresAt    *time.Time
}

// UpdateParams are the editable fields of a pending bid.
type UpdateParams struct {
	Amount       *decimal.Decimal
	Message      *string
	DeliveryDays *int
	ExpiresAt    *time.Time
}

// Service implements bid operations on top of a Store.
type Service struct {
	store    Store
	requests RequestSource
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a bid service.
func NewService(store Store, reqs RequestSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		requests: reqs,
		logger:   logger.With("component", "bids"),
		now:      time.Now,
	}
}

const minMessageLen = 10

// Place validates and persists a new pending bid.
func (s *Service) Place(ctx context.Context, p PlaceParams) (*Bid, error) {
	if p.SellerID == "" {
		return nil, fmt.Errorf("%w: seller_id is required", ErrInvalidInput)
	}
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	msg := strings.TrimSpace(p.Message)
	if len(msg) < minMessageLen {
		return nil, fmt.Errorf("%w: message must be at least %d characters", ErrInvalidInput, minMessageLen)
	}
	if p.DeliveryDays != nil && *p.DeliveryDays <= 0 {
		return nil, fmt.Errorf("%w: delivery_days must be positive", ErrInvalidInput)
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", ErrInvalidInput)
	}

	req, err := s.requests.Get(ctx, p.RequestID)
	if err != nil {
		return nil, err
	}
	if req.BuyerID == p.SellerID {
		return nil, ErrOwnRequest
	}
	if !req.CanReceiveBids(s.now()) {
		return nil, ErrRequestNotBiddable
	}
	if p.Amount.GreaterThan(req.Budget) {
		return nil, fmt.Errorf("%w: %s > %s", ErrExceedsBudget, p.Amount, req.Budget)
	}

	now := s.now()
	bid := &Bid{
		ID:           idgen.WithPrefix("bid_"),
		RequestID:    req.ID,
		SellerID:     p.SellerID,
		Amount:       p.Amount.Round(2),
		Message:      msg,
		Status:       StatusPending,
		DeliveryDays: p.DeliveryDays,
		ExpiresAt:    p.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
		CreatedBy:    p.SellerID,
		UpdatedBy:    p.SellerID,
	}
	if err := s.store.Create(ctx, bid); err != nil {
		return nil, err
	}
	metrics.BidsPlacedTotal.Inc()

	s.logger.Info("bid placed",
		"bid_id", bid.ID,
		"request_id", bid.RequestID,
		"seller_id", bid.SellerID,
		"amount", bid.Amount.String())
	return bid, nil
}

// Get returns a bid by ID.
func (s *Service) Get(ctx context.Context, id string) (*Bid, error) {
	return s.store.Get(ctx, id)
}

// ListByRequest returns all bids on a request, newest first.
func (s *Service) ListByRequest(ctx context.Context, requestID string) ([]*Bid, error) {
	return s.store.ListByRequest(ctx, requestID)
}

// ListBySeller returns all bids placed by a seller.
func (s *Service) ListBySeller(ctx context.Context, sellerID string) ([]*Bid, error) {
	return s.store.ListBySeller(ctx, sellerID)
}

// Update edits a pending bid. Only the seller may edit.
func (s *Service) Update(ctx context.Context, id, actor string, p UpdateParams) (*Bid, error) {
	bid, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if bid.SellerID != actor {
		return nil, ErrNotSeller
	}
	if bid.Status != StatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrNotEditable, bid.Status)
	}

	if p.Amount != nil {
		if !p.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
		}
		req, err := s.requests.Get(ctx, bid.RequestID)
		if err != nil {
			return nil, err
		}
		if p.Amount.GreaterThan(req.Budget) {
			return nil, fmt.Errorf("%w: %s > %s", ErrExceedsBudget, p.Amount, req.Budget)
		}
		bid.Amount = p.Amount.Round(2)
	}
	if p.Message != nil {
		msg := strings.TrimSpace(*p.Message)
		if len(msg) < minMessageLen {
			return nil, fmt.Errorf("%w: message must be at least %d characters", ErrInvalidInput, minMessageLen)
		}
		bid.Message = msg
	}
	if p.DeliveryDays != nil {
		if *p.DeliveryDays <= 0 {
			return nil, fmt.Errorf("%w: delivery_days must be positive", ErrInvalidInput)
		}
		bid.DeliveryDays = p.DeliveryDays
	}
	if p.ExpiresAt != nil {
		if !p.ExpiresAt.After(s.now()) {
			return nil, fmt.Errorf("%w: expiry must be in the future", ErrInvalidInput)
		}
		bid.ExpiresAt = p.ExpiresAt
	}
	bid.UpdatedAt = s.now()
	bid.UpdatedBy = actor

	if err := s.store.Update(ctx, bid); err != nil {
		return nil, fmt.Errorf("update bid: %w", err)
	}
	return bid, nil
}

// Withdraw marks a pending bid withdrawn, freeing the seller's slot on the
// request.
func (s *Service) Withdraw(ctx context.Context, id, actor string) error {
	bid, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if bid.SellerID != actor {
		return ErrNotSeller
	}
	if bid.Status != StatusPending {
		return fmt.Errorf("%w: status is %s", ErrNotEditable, bid.Status)
	}

	bid.Status = StatusWithdrawn
	bid.UpdatedAt = s.now()
	bid.UpdatedBy = actor
	if err := s.store.Update(ctx, bid); err != nil {
		return fmt.Errorf("withdraw bid: %w", err)
	}

	s.logger.Info("bid withdrawn", "bid_id", bid.ID, "seller_id", actor)
	return nil
}
