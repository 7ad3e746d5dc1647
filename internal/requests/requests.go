// Package requests manages buyer requests on the Tendera marketplace:
// creation, the request status lifecycle, and bid-eligibility rules.
package requests

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
)

var (
	// ErrRequestNotFound is returned when a request doesn't exist or is deleted.
	ErrRequestNotFound = errors.New("request not found")

	// ErrInvalidTransition is returned when a status change violates the
	// request lifecycle.
	ErrInvalidTransition = errors.New("invalid request status transition")

	// ErrNotOwner is returned when an actor tries to modify a request they
	// don't own.
	ErrNotOwner = errors.New("not the request owner")

	// ErrNotEditable is returned when a request can no longer be modified.
	ErrNotEditable = errors.New("request is not editable")

	// ErrInvalidInput is returned for validation failures on create/update.
	ErrInvalidInput = errors.New("invalid request input")
)

// Status is the lifecycle state of a request.
type Status string

const (
	StatusOpen      Status = "open"      // accepting bids
	StatusAccepted  Status = "accepted"  // a bid was accepted, work in progress
	StatusDelivered Status = "delivered" // seller marked work delivered
	StatusCompleted Status = "completed" // buyer confirmed, funds released
	StatusDisputed  Status = "disputed"  // a party raised a dispute
	StatusCancelled Status = "cancelled" // cancelled or refunded
)

// validTransitions is the request lifecycle. Completed and cancelled are
// terminal.
var validTransitions = map[Status][]Status{
	StatusOpen:      {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusDelivered, StatusDisputed, StatusCancelled},
	StatusDelivered: {StatusCompleted, StatusDisputed},
	StatusDisputed:  {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
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

// Request is a buyer's posted request: what they want done and what they'll
// pay for it. Sellers bid against the budget.
type Request struct {
	ID          string          `json:"id"`
	BuyerID     string          `json:"buyer_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Budget      decimal.Decimal `json:"budget"`
	Status      Status          `json:"status"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	IsDeleted   bool            `json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CreatedBy   string          `json:"created_by,omitempty"`
	UpdatedBy   string          `json:"updated_by,omitempty"`
}

// CanReceiveBids reports whether the request is open for bidding: status open,
// not deleted, and the deadline (if any) hasn't passed.
func (r *Request) CanReceiveBids(now time.Time) bool {
	if r.Status != StatusOpen || r.IsDeleted {
		return false
	}
	if r.Deadline != nil && !now.Before(*r.Deadline) {
		return false
	}
	return true
}

// Transition moves the request to a new status, enforcing the lifecycle.
func (r *Request) Transition(to Status, now time.Time) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !r.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// Store persists requests.
type Store interface {
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	Update(ctx context.Context, req *Request) error
	ListOpen(ctx context.Context, category string, limit int) ([]*Request, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*Request, error)
}

// CreateParams are the buyer-supplied fields for a new request.
type CreateParams struct {
	BuyerID     string
	Title       string
	Description string
	Category    string
	Budget      decimal.Decimal
	Deadline    *time.Time
}

// UpdateParams are the editable fields of an open request. Nil fields are
// left unchanged.
type UpdateParams struct {
	Title       *string
	Description *string
	Category    *string
	Budget      *decimal.Decimal
	Deadline    *time.Time
}

// Service implements request operations on top of a Store.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a request service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "requests"),
		now:    time.Now,
	}
}

const maxTitleLen = 200

// Create validates and persists a new open request.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Request, error) {
	if p.BuyerID == "" {
		return nil, fmt.Errorf("%w: buyer_id is required", ErrInvalidInput)
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if len(title) > maxTitleLen {
		return nil, fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, maxTitleLen)
	}
	if !p.Budget.IsPositive() {
		return nil, fmt.Errorf("%w: budget must be positive", ErrInvalidInput)
	}
	now := s.now()
	if p.Deadline != nil && !p.Deadline.After(now) {
		return nil, fmt.Errorf("%w: deadline must be in the future", ErrInvalidInput)
	}

	req := &Request{
		ID:          idgen.WithPrefix("req_"),
		BuyerID:     p.BuyerID,
		Title:       title,
		Description: strings.TrimSpace(p.Description),
		Category:    strings.TrimSpace(p.Category),
		Budget:      p.Budget.Round(2),
		Status:      StatusOpen,
		Deadline:    p.Deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   p.BuyerID,
		UpdatedBy:   p.BuyerID,
	}
	if err := s.store.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	metrics.RequestsCreatedTotal.Inc()

	s.logger.Info("request created",
		"request_id", req.ID,
		"buyer_id", req.BuyerID,
		"budget", req.Budget.String())
	return req, nil
}

// Get returns a request by ID. Soft-deleted requests are not found.
func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.IsDeleted {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// ListOpen returns open requests, optionally filtered by category.
func (s *Service) ListOpen(ctx context.Context, category string, limit int) ([]*Request, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListOpen(ctx, category, limit)
}

// ListByBuyer returns all non-deleted requests owned by a buyer.
func (s *Service) ListByBuyer(ctx context.Context, buyerID string) ([]*Request, error) {
	return s.store.ListByBuyer(ctx, buyerID)
}

// Update edits an open request. Only the owner may edit, and only while the
// request is still open.
func (s *Service) Update(ctx context.Context, id, actor string, p UpdateParams) (*Request, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.BuyerID != actor {
		return nil, ErrNotOwner
	}
	if req.Status != StatusOpen {
		return nil, fmt.Errorf("%w: status is %s", ErrNotEditable, req.Status)
	}

	now := s.now()
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" || len(title) > maxTitleLen {
			return nil, fmt.Errorf("%w: invalid title", ErrInvalidInput)
		}
		req.Title = title
	}
	if p.Description != nil {
		req.Description = strings.TrimSpace(*p.Description)
	}
	if p.Category != nil {
		req.Category = strings.TrimSpace(*p.Category)
	}
	if p.Budget != nil {
		if !p.Budget.IsPositive() {
			return nil, fmt.Errorf("%w: budget must be positive", ErrInvalidInput)
		}
		req.Budget = p.Budget.Round(2)
	}
	if p.Deadline != nil {
		if !p.Deadline.After(now) {
			return nil, fmt.Errorf("%w: deadline must be in the future", ErrInvalidInput)
		}
		req.Deadline = p.Deadline
	}
	req.UpdatedAt = now
	req.UpdatedBy = actor

	if err := s.store.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}
	return req, nil
}

// Delete soft-deletes a request. Only the owner may delete, and only while
// the request is open or already terminal.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	req, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if req.BuyerID != actor {
		return ErrNotOwner
	}
	if req.Status != StatusOpen && !req.Status.IsTerminal() {
		return fmt.Errorf("%w: work is in progress", ErrNotEditable)
	}

	req.IsDeleted = true
	req.UpdatedAt = s.now()
	req.UpdatedBy = actor
	if err := s.store.Update(ctx, req); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}

	s.logger.Info("request deleted", "request_id", req.ID, "buyer_id", actor)
	return nil
}

// ChangeStatus applies a lifecycle transition and persists it. Callers are
// responsible for authorization; actor is recorded on the row and in the log.
func (s *Service) ChangeStatus(ctx context.Context, id string, to Status, actor string) (*Request, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := req.Status
	if err := req.Transition(to, s.now()); err != nil {
		return nil, err
	}
	req.UpdatedBy = actor
	if err := s.store.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("change request status: %w", err)
	}

	s.logger.Info("request status changed",
		"request_id", req.ID,
		"from", from,
		"to", to,
		"actor", actor)
	return req, nil
}
