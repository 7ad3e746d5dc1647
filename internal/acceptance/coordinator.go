// Package acceptance coordinates the multi-entity bid acceptance flow: one
// buyer action that marks the bid accepted, moves the request along its
// lifecycle, opens an escrow, and runs the simulated payment. It also owns
// the downstream lifecycle actions (deliver, release, dispute, refund) that
// must keep the request and escrow state machines in step.
package acceptance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/tendera/internal/bids"
	"github.com/mbd888/tendera/internal/escrow"
	"github.com/mbd888/tendera/internal/metrics"
	"github.com/mbd888/tendera/internal/requests"
	"github.com/mbd888/tendera/internal/syncutil"
	"github.com/mbd888/tendera/internal/traces"
)

var (
	// ErrForbidden is returned when the actor lacks authority for the
	// operation.
	ErrForbidden = errors.New("actor is not authorized for this operation")

	// ErrBidMismatch is returned when the bid does not belong to the request.
	ErrBidMismatch = errors.New("bid does not belong to this request")

	// ErrStatusTransition is returned when a paired status change fails
	// partway; completed steps are rolled back.
	ErrStatusTransition = errors.New("status transition failed")

	// ErrPaymentProcessing is returned when the simulated payment fails.
	// The acceptance itself is preserved: the bid and request stay accepted
	// and the escrow is failed, so the payment can be retried.
	ErrPaymentProcessing = errors.New("payment processing failed")

	// ErrFundsNotLocked is returned when delivery is attempted before the
	// escrow payment completed.
	ErrFundsNotLocked = errors.New("escrow funds are not locked")
)

// PaymentSimulator is the slice of the payment simulator the coordinator
// needs. Satisfied by *escrow.Simulator.
type PaymentSimulator interface {
	Simulate(ctx context.Context, method string) (*escrow.Outcome, error)
}

// Result is what a lifecycle operation observed and produced.
type Result struct {
	Request *requests.Request   `json:"request"`
	Bid     *bids.Bid           `json:"bid,omitempty"`
	Escrow  *escrow.Transaction `json:"escrow,omitempty"`
	Payment *escrow.Outcome     `json:"payment,omitempty"`
}

// Coordinator serializes lifecycle operations per request and keeps the bid,
// request, and escrow state machines consistent with each other.
type Coordinator struct {
	requests *requests.Service
	bids     bids.Store
	escrows  *escrow.Service
	sim      PaymentSimulator
	locks    *syncutil.ContextShardedMutex
	logger   *slog.Logger
	now      func() time.Time
}

// NewCoordinator creates a coordinator.
func NewCoordinator(reqs *requests.Service, bidStore bids.Store, escrows *escrow.Service, sim PaymentSimulator, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		requests: reqs,
		bids:     bidStore,
		escrows:  escrows,
		sim:      sim,
		locks:    syncutil.NewContextShardedMutex(),
		logger:   logger.With("component", "acceptance"),
		now:      time.Now,
	}
}

// AcceptBid accepts a bid on behalf of the request owner and locks the
// buyer's payment in escrow.
//
// Preconditions are checked in a fixed order before anything mutates: actor
// owns the request; the request can receive bids; the bid belongs to the
// request; the bid is acceptable; no escrow exists for the request yet.
//
// On simulated payment failure AcceptBid returns ErrPaymentProcessing
// together with a non-nil Result: the bid and request remain accepted and
// the escrow is failed, awaiting RetryPayment. This mirrors how a real
// checkout keeps the order while the charge is retried.
func (c *Coordinator) AcceptBid(ctx context.Context, requestID, bidID, actor, paymentMethod string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "acceptance.AcceptBid",
		traces.RequestID(requestID),
		traces.BidID(bidID),
		traces.Actor(actor),
		traces.PaymentMethod(paymentMethod),
	)
	defer span.End()

	unlock, err := c.locks.LockContext(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := c.now()

	// Preconditions, in order.
	req, err := c.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.BuyerID != actor {
		return nil, fmt.Errorf("%w: only the request owner may accept bids", ErrForbidden)
	}
	if !req.CanReceiveBids(now) {
		return nil, bids.ErrRequestNotBiddable
	}
	bid, err := c.bids.Get(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.RequestID != requestID {
		return nil, ErrBidMismatch
	}
	if err := bid.CanBeAccepted(req, now); err != nil {
		return nil, err
	}
	if _, err := c.escrows.GetByRequest(ctx, requestID); err == nil {
		return nil, escrow.ErrEscrowExists
	} else if !errors.Is(err, escrow.ErrEscrowNotFound) {
		return nil, fmt.Errorf("check existing escrow: %w", err)
	}

	// (a) Mark the bid accepted.
	if err := bid.Accept(now); err != nil {
		return nil, err
	}
	bid.UpdatedBy = actor
	if err := c.bids.Update(ctx, bid); err != nil {
		return nil, fmt.Errorf("persist bid acceptance: %w", err)
	}

	// (b) Move the request to accepted. On failure, roll the bid back.
	req, err = c.requests.ChangeStatus(ctx, requestID, requests.StatusAccepted, actor)
	if err != nil {
		if rbErr := bid.Unaccept(now); rbErr == nil {
			bid.UpdatedBy = actor
			if updErr := c.bids.Update(ctx, bid); updErr != nil {
				c.logger.Error("failed to roll back bid acceptance",
					"bid_id", bid.ID, "error", updErr)
			}
		}
		metrics.BidAcceptancesTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrStatusTransition, err)
	}

	// (c) Open the escrow in pending.
	esc, err := c.escrows.Create(ctx, escrow.CreateParams{
		RequestID:     requestID,
		BidID:         bid.ID,
		BuyerID:       req.BuyerID,
		SellerID:      bid.SellerID,
		Amount:        bid.Amount,
		PaymentMethod: paymentMethod,
	})
	if err != nil {
		// Lost a cross-instance race on the unique constraint. The bid and
		// request are already accepted on the winning path, so only report.
		c.logger.Error("escrow creation failed after acceptance",
			"request_id", requestID, "bid_id", bid.ID, "error", err)
		return nil, err
	}
	metrics.RecordEscrowTransition(string(escrow.StatusPending))

	// (d) + (e) Run the simulated payment and settle the escrow.
	result := &Result{Request: req, Bid: bid, Escrow: esc}
	return c.processPayment(ctx, result, actor)
}

// RetryPayment re-runs the simulated payment for an escrow whose previous
// attempt failed. A different payment method may be supplied.
func (c *Coordinator) RetryPayment(ctx context.Context, requestID, actor, paymentMethod string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "acceptance.RetryPayment",
		traces.RequestID(requestID),
		traces.Actor(actor),
	)
	defer span.End()

	unlock, err := c.locks.LockContext(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	esc, err := c.escrows.GetByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if esc.BuyerID != actor {
		return nil, fmt.Errorf("%w: only the buyer may retry payment", ErrForbidden)
	}

	now := c.now()
	switch esc.Status {
	case escrow.StatusFailed:
		if err := esc.Reset(now); err != nil {
			return nil, err
		}
	case escrow.StatusPending:
		// First attempt never completed; run it now.
	default:
		return nil, fmt.Errorf("%w: %s -> %s", escrow.ErrInvalidTransition, esc.Status, escrow.StatusPending)
	}
	if paymentMethod != "" {
		esc.PaymentMethod = paymentMethod
	}
	esc.UpdatedBy = actor
	if err := c.escrows.Save(ctx, esc); err != nil {
		return nil, fmt.Errorf("persist payment retry: %w", err)
	}
	metrics.RecordEscrowTransition(string(escrow.StatusPending))

	req, err := c.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	bid, err := c.bids.Get(ctx, esc.BidID)
	if err != nil {
		return nil, err
	}

	result := &Result{Request: req, Bid: bid, Escrow: esc}
	return c.processPayment(ctx, result, actor)
}

// processPayment runs the simulator against a pending escrow and locks or
// fails it. The caller holds the per-request lock.
func (c *Coordinator) processPayment(ctx context.Context, result *Result, actor string) (*Result, error) {
	esc := result.Escrow

	outcome, err := c.sim.Simulate(ctx, esc.PaymentMethod)
	if err != nil {
		// Cancelled mid-simulation; the escrow stays pending and the buyer
		// can retry.
		return nil, err
	}
	result.Payment = outcome
	metrics.RecordPaymentSimulation(esc.PaymentMethod, outcome.Success)

	now := c.now()
	if !outcome.Success {
		if err := esc.Fail(outcome.FailureReason, now); err != nil {
			return nil, err
		}
		esc.UpdatedBy = actor
		if err := c.escrows.Save(ctx, esc); err != nil {
			return nil, fmt.Errorf("persist payment failure: %w", err)
		}
		metrics.RecordEscrowTransition(string(escrow.StatusFailed))
		metrics.BidAcceptancesTotal.WithLabelValues("payment_failed").Inc()

		c.logger.Warn("payment simulation failed",
			"request_id", esc.RequestID,
			"escrow_id", esc.ID,
			"method", esc.PaymentMethod,
			"reason", outcome.FailureReason)
		return result, fmt.Errorf("%w: %s", ErrPaymentProcessing, outcome.FailureReason)
	}

	if err := esc.Lock(outcome, now); err != nil {
		return nil, err
	}
	esc.UpdatedBy = actor
	if err := c.escrows.Save(ctx, esc); err != nil {
		return nil, fmt.Errorf("persist escrow lock: %w", err)
	}
	metrics.RecordEscrowTransition(string(escrow.StatusLocked))
	metrics.BidAcceptancesTotal.WithLabelValues("accepted").Inc()

	c.logger.Info("bid accepted and funds locked",
		"request_id", esc.RequestID,
		"bid_id", esc.BidID,
		"escrow_id", esc.ID,
		"actor", actor,
		"total", esc.Total.String())
	return result, nil
}

// Deliver marks the work delivered. Only the seller whose bid was accepted
// may deliver, and only once the escrow funds are locked.
func (c *Coordinator) Deliver(ctx context.Context, requestID, actor string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "acceptance.Deliver",
		traces.RequestID(requestID),
		traces.Actor(actor),
	)
	defer span.End()

	unlock, err := c.locks.LockContext(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	esc, err := c.escrows.GetByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if esc.SellerID != actor {
		return nil, fmt.Errorf("%w: only the accepted seller may deliver", ErrForbidden)
	}
	if esc.Status != escrow.StatusLocked {
		return nil, fmt.Errorf("%w: escrow is %s", ErrFundsNotLocked, esc.Status)
	}

	req, err := c.requests.ChangeStatus(ctx, requestID, requests.StatusDelivered, actor)
	if err != nil {
		return nil, err
	}

	return &Result{Request: req, Escrow: esc}, nil
}

// ReleaseFunds pays the seller out and completes the request. Only the buyer
// may release, and only after delivery (or to resolve a dispute from held).
func (c *Coordinator) ReleaseFunds(ctx context.Context, requestID, actor, notes string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "acceptance.ReleaseFunds",
		traces.RequestID(requestID),
		traces.Actor(actor),
	)
	defer span.End()

	unlock, err := c.locks.LockContext(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	esc, err := c.escrows.GetByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if esc.BuyerID != actor {
		return nil, fmt.Errorf("%w: only the buyer may release funds", ErrForbidden)
	}
	req, err := c.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	deliverable := req.Status == requests.StatusDelivered || req.Status == requests.StatusCompleted
	if err := esc.Release(deliverable, notes, now); err != nil {
		return nil, err
	}
	esc.UpdatedBy = actor

	// The escrow mutation is validated but unsaved; move the request first
	// so a lifecycle conflict leaves nothing half-written.
	if req.Status != requests.StatusCompleted {
		req, err = c.requests.ChangeStatus(ctx, requestID, requests.StatusCompleted, actor)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStatusTransition, err)
		}
	}
	if err := c.escrows.Save(ctx, esc); err != nil {
		c.logger.Error("escrow release not persisted after request completion",
			"escrow_id", esc.ID, "error", err)
		return nil, fmt.Errorf("persist escrow release: %w", err)
	}
	metrics.RecordEscrowTransition(string(escrow.StatusReleased))
	metrics.EscrowResolutionDuration.Observe(now.Sub(esc.CreatedAt).Seconds())

	c.logger.Info("funds released",
		"request_id", requestID,
		"escrow_id", esc.ID,
		"seller_id", esc.SellerID,
		"amount", esc.Amount.String())
	return &Result{Request: req, Escrow: esc}, nil
}

// HoldForDispute freezes locked funds and marks the request disputed. Either
// party to the escrow may raise a dispute.
func (c *Coordinator) HoldForDispute(ctx context.Context, requestID, actor, reason string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "acceptance.HoldForDispute",
		traces.RequestID(requestID),
		traces.Actor(actor),
	)
	defer span.End()

	unlock, err := c.locks.LockContext(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	esc, err := c.escrows.GetByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor != esc.BuyerID && actor != esc.SellerID {
		return nil, fmt.Errorf("%w: only the buyer or seller may dispute", ErrForbidden)
	}

	now := c.now()
	if err := esc.Hold(reason, now); err != nil {
		return nil, err
	}
	esc.UpdatedBy = actor

	req, err := c.requests.ChangeStatus(ctx, requestID, requests.StatusDisputed, actor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatusTransition, err)
	}
	if err := c.escrows.Save(ctx, esc); err != nil {
		return nil, fmt.Errorf("persist escrow hold: %w", err)
	}
	metrics.RecordEscrowTransition(string(escrow.StatusHeld))

	c.logger.Info("funds held for dispute",
		"request_id", requestID,
		"escrow_id", esc.ID,
		"actor", actor,
		"reason", reason)
	return &Result{Request: req, Escrow: esc}, nil
}

// RefundFunds returns the locked or held funds to the buyer and cancels the
// request.
func (c *Coordinator) RefundFunds(ctx context.Context, requestID, actor, reason string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "acceptance.RefundFunds",
		traces.RequestID(requestID),
		traces.Actor(actor),
	)
	defer span.End()

	unlock, err := c.locks.LockContext(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	esc, err := c.escrows.GetByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if esc.BuyerID != actor {
		return nil, fmt.Errorf("%w: only the buyer may request a refund", ErrForbidden)
	}

	now := c.now()
	if err := esc.Refund(reason, now); err != nil {
		return nil, err
	}
	esc.UpdatedBy = actor

	req, err := c.requests.ChangeStatus(ctx, requestID, requests.StatusCancelled, actor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatusTransition, err)
	}
	if err := c.escrows.Save(ctx, esc); err != nil {
		return nil, fmt.Errorf("persist escrow refund: %w", err)
	}
	metrics.RecordEscrowTransition(string(escrow.StatusRefunded))
	metrics.EscrowResolutionDuration.Observe(now.Sub(esc.CreatedAt).Seconds())

	c.logger.Info("funds refunded",
		"request_id", requestID,
		"escrow_id", esc.ID,
		"buyer_id", esc.BuyerID,
		"reason", reason)
	return &Result{Request: req, Escrow: esc}, nil
}
