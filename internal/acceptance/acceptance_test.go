package acceptance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/tendera/internal/bids"
	"github.com/mbd888/tendera/internal/escrow"
	"github.com/mbd888/tendera/internal/requests"
)

// stubSimulator returns scripted outcomes instead of random ones.
type stubSimulator struct {
	mu       sync.Mutex
	outcomes []*escrow.Outcome
	err      error
}

func (s *stubSimulator) Simulate(_ context.Context, method string) (*escrow.Outcome, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outcomes) == 0 {
		return &escrow.Outcome{Success: true, Processor: escrow.ProcessorName(method)}, nil
	}
	out := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	if out.Processor == "" {
		out.Processor = escrow.ProcessorName(method)
	}
	return out, nil
}

func paymentFails(reason string) *escrow.Outcome {
	return &escrow.Outcome{Success: false, FailureReason: reason}
}

// failingRequestStore wraps a request store and fails Update on demand, to
// exercise the rollback path.
type failingRequestStore struct {
	requests.Store
	failUpdate bool
}

func (f *failingRequestStore) Update(ctx context.Context, r *requests.Request) error {
	if f.failUpdate {
		return errors.New("synthetic store failure")
	}
	return f.Store.Update(ctx, r)
}

type fixture struct {
	coordinator *Coordinator
	reqSvc      *requests.Service
	bidSvc      *bids.Service
	bidStore    bids.Store
	escSvc      *escrow.Service
	reqStore    *failingRequestStore
	sim         *stubSimulator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reqStore := &failingRequestStore{Store: requests.NewMemoryStore()}
	reqSvc := requests.NewService(reqStore, logger)
	bidStore := bids.NewMemoryStore()
	bidSvc := bids.NewService(bidStore, reqSvc, logger)
	escSvc := escrow.NewService(escrow.NewMemoryStore(), logger, 0)
	sim := &stubSimulator{}

	return &fixture{
		coordinator: NewCoordinator(reqSvc, bidStore, escSvc, sim, logger),
		reqSvc:      reqSvc,
		bidSvc:      bidSvc,
		bidStore:    bidStore,
		escSvc:      escSvc,
		reqStore:    reqStore,
		sim:         sim,
	}
}

// seed creates an open request from buyer_1 with a pending bid from seller_1.
func (f *fixture) seed(t *testing.T, budget, bidAmount float64) (*requests.Request, *bids.Bid) {
	t.Helper()
	ctx := context.Background()

	req, err := f.reqSvc.Create(ctx, requests.CreateParams{
		BuyerID: "buyer_1",
		Title:   "Design a logo",
		Budget:  decimal.NewFromFloat(budget),
	})
	require.NoError(t, err)

	bid, err := f.bidSvc.Place(ctx, bids.PlaceParams{
		RequestID: req.ID,
		SellerID:  "seller_1",
		Amount:    decimal.NewFromFloat(bidAmount),
		Message:   "Clean modern logo in 3 days",
	})
	require.NoError(t, err)

	return req, bid
}

func (f *fixture) accept(t *testing.T, req *requests.Request, bid *bids.Bid) *Result {
	t.Helper()
	result, err := f.coordinator.AcceptBid(context.Background(),
		req.ID, bid.ID, "buyer_1", escrow.MethodCreditCard)
	require.NoError(t, err)
	return result
}

func TestAcceptBidHappyPath(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100.00, 100.00)
	ctx := context.Background()

	result, err := f.coordinator.AcceptBid(ctx, req.ID, bid.ID, "buyer_1", escrow.MethodCreditCard)
	require.NoError(t, err)

	assert.Equal(t, requests.StatusAccepted, result.Request.Status)
	assert.Equal(t, bids.StatusAccepted, result.Bid.Status)
	assert.Equal(t, escrow.StatusLocked, result.Escrow.Status)
	require.NotNil(t, result.Payment)
	assert.True(t, result.Payment.Success)

	// Fee math on the wire: 100.00 -> 3.20 fee, 103.20 total.
	assert.True(t, result.Escrow.Fee.Equal(decimal.NewFromFloat(3.20)), "fee = %s", result.Escrow.Fee)
	assert.True(t, result.Escrow.Total.Equal(decimal.NewFromFloat(103.20)), "total = %s", result.Escrow.Total)

	// All three persisted.
	gotReq, err := f.reqSvc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, requests.StatusAccepted, gotReq.Status)

	gotBid, err := f.bidStore.Get(ctx, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, bids.StatusAccepted, gotBid.Status)

	gotEsc, err := f.escSvc.GetByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusLocked, gotEsc.Status)
	assert.NotNil(t, gotEsc.LockedAt)
}

func TestAcceptBidForbidden(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)

	_, err := f.coordinator.AcceptBid(context.Background(), req.ID, bid.ID, "intruder", escrow.MethodPayPal)
	assert.ErrorIs(t, err, ErrForbidden)

	// Nothing mutated.
	gotBid, _ := f.bidStore.Get(context.Background(), bid.ID)
	assert.Equal(t, bids.StatusPending, gotBid.Status)
}

func TestAcceptBidNotBiddable(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	ctx := context.Background()

	_, err := f.reqSvc.ChangeStatus(ctx, req.ID, requests.StatusCancelled, "buyer_1")
	require.NoError(t, err)

	_, err = f.coordinator.AcceptBid(ctx, req.ID, bid.ID, "buyer_1", escrow.MethodPayPal)
	assert.ErrorIs(t, err, bids.ErrRequestNotBiddable)
}

func TestAcceptBidMismatch(t *testing.T) {
	f := newFixture(t)
	req, _ := f.seed(t, 100, 80)
	ctx := context.Background()

	other, err := f.reqSvc.Create(ctx, requests.CreateParams{
		BuyerID: "buyer_2", Title: "Another job", Budget: decimal.NewFromInt(60),
	})
	require.NoError(t, err)
	strayBid, err := f.bidSvc.Place(ctx, bids.PlaceParams{
		RequestID: other.ID, SellerID: "seller_9",
		Amount: decimal.NewFromInt(50), Message: "bid on the other request",
	})
	require.NoError(t, err)

	_, err = f.coordinator.AcceptBid(ctx, req.ID, strayBid.ID, "buyer_1", escrow.MethodPayPal)
	assert.ErrorIs(t, err, ErrBidMismatch)
}

func TestAcceptBidOverBudgetNotAcceptable(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 150, 100)
	ctx := context.Background()

	// Budget drops below the bid after placement.
	lower := decimal.NewFromInt(80)
	_, err := f.reqSvc.Update(ctx, req.ID, "buyer_1", requests.UpdateParams{Budget: &lower})
	require.NoError(t, err)

	_, err = f.coordinator.AcceptBid(ctx, req.ID, bid.ID, "buyer_1", escrow.MethodPayPal)
	assert.ErrorIs(t, err, bids.ErrNotAcceptable)

	// Precondition failure leaves everything untouched.
	gotBid, _ := f.bidStore.Get(ctx, bid.ID)
	assert.Equal(t, bids.StatusPending, gotBid.Status)
	gotReq, _ := f.reqSvc.Get(ctx, req.ID)
	assert.Equal(t, requests.StatusOpen, gotReq.Status)
	_, err = f.escSvc.GetByRequest(ctx, req.ID)
	assert.ErrorIs(t, err, escrow.ErrEscrowNotFound)
}

func TestAcceptExpiredBidRejected(t *testing.T) {
	f := newFixture(t)
	req, _ := f.seed(t, 100, 80)
	ctx := context.Background()

	expiry := time.Now().Add(50 * time.Millisecond)
	bid, err := f.bidSvc.Place(ctx, bids.PlaceParams{
		RequestID: req.ID, SellerID: "seller_2",
		Amount: decimal.NewFromInt(70), Message: "offer valid briefly",
		ExpiresAt: &expiry,
	})
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, err = f.coordinator.AcceptBid(ctx, req.ID, bid.ID, "buyer_1", escrow.MethodCreditCard)
	assert.ErrorIs(t, err, bids.ErrBidExpired)

	// Precondition failure leaves everything untouched.
	gotBid, _ := f.bidStore.Get(ctx, bid.ID)
	assert.Equal(t, bids.StatusPending, gotBid.Status)
	gotReq, _ := f.reqSvc.Get(ctx, req.ID)
	assert.Equal(t, requests.StatusOpen, gotReq.Status)
	_, err = f.escSvc.GetByRequest(ctx, req.ID)
	assert.ErrorIs(t, err, escrow.ErrEscrowNotFound)
}

func TestAcceptBidRecordsActors(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	result := f.accept(t, req, bid)
	ctx := context.Background()

	assert.Equal(t, "buyer_1", result.Escrow.CreatedBy)
	assert.Equal(t, "buyer_1", result.Escrow.UpdatedBy)

	gotBid, err := f.bidStore.Get(ctx, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, "seller_1", gotBid.CreatedBy)
	assert.Equal(t, "buyer_1", gotBid.UpdatedBy, "acceptance is stamped with the accepting buyer")

	gotReq, err := f.reqSvc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "buyer_1", gotReq.CreatedBy)
	assert.Equal(t, "buyer_1", gotReq.UpdatedBy)
}

func TestAcceptBidEscrowAlreadyExists(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	ctx := context.Background()

	// An escrow slipped in (e.g. another instance won the race) while the
	// request still looks open.
	_, err := f.escSvc.Create(ctx, escrow.CreateParams{
		RequestID: req.ID, BidID: "bid_other", BuyerID: "buyer_1", SellerID: "seller_2",
		Amount: decimal.NewFromInt(70), PaymentMethod: escrow.MethodStripe,
	})
	require.NoError(t, err)

	_, err = f.coordinator.AcceptBid(ctx, req.ID, bid.ID, "buyer_1", escrow.MethodPayPal)
	assert.ErrorIs(t, err, escrow.ErrEscrowExists)
}

func TestAcceptBidPaymentFailurePreservesAcceptance(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	ctx := context.Background()

	f.sim.outcomes = []*escrow.Outcome{paymentFails("Insufficient funds")}

	result, err := f.coordinator.AcceptBid(ctx, req.ID, bid.ID, "buyer_1", escrow.MethodCreditCard)
	assert.ErrorIs(t, err, ErrPaymentProcessing)
	require.NotNil(t, result, "a failed payment still reports what happened")

	assert.Equal(t, escrow.StatusFailed, result.Escrow.Status)
	assert.Equal(t, "Insufficient funds", result.Escrow.FailureReason)

	// The acceptance stands: bid and request stay accepted.
	gotBid, _ := f.bidStore.Get(ctx, bid.ID)
	assert.Equal(t, bids.StatusAccepted, gotBid.Status)
	gotReq, _ := f.reqSvc.Get(ctx, req.ID)
	assert.Equal(t, requests.StatusAccepted, gotReq.Status)
}

func TestRetryPaymentAfterFailure(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	ctx := context.Background()

	f.sim.outcomes = []*escrow.Outcome{paymentFails("Card expired")}
	_, err := f.coordinator.AcceptBid(ctx, req.ID, bid.ID, "buyer_1", escrow.MethodCreditCard)
	require.ErrorIs(t, err, ErrPaymentProcessing)

	// Retry with a different method succeeds (stub default is success).
	result, err := f.coordinator.RetryPayment(ctx, req.ID, "buyer_1", escrow.MethodPayPal)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusLocked, result.Escrow.Status)
	assert.Equal(t, escrow.MethodPayPal, result.Escrow.PaymentMethod)
	assert.Empty(t, result.Escrow.FailureReason)
}

func TestRetryPaymentOnlyBuyer(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	ctx := context.Background()

	f.sim.outcomes = []*escrow.Outcome{paymentFails("Payment method declined")}
	_, err := f.coordinator.AcceptBid(ctx, req.ID, bid.ID, "buyer_1", escrow.MethodCreditCard)
	require.ErrorIs(t, err, ErrPaymentProcessing)

	_, err = f.coordinator.RetryPayment(ctx, req.ID, "seller_1", "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRetryPaymentOnLockedEscrowRejected(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	f.accept(t, req, bid)

	_, err := f.coordinator.RetryPayment(context.Background(), req.ID, "buyer_1", "")
	assert.ErrorIs(t, err, escrow.ErrInvalidTransition)
}

func TestAcceptBidRollsBackOnRequestFailure(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	ctx := context.Background()

	// The bid update succeeds, then the request transition hits the store
	// failure and the bid acceptance must be rolled back.
	f.reqStore.failUpdate = true

	_, err := f.coordinator.AcceptBid(ctx, req.ID, bid.ID, "buyer_1", escrow.MethodCreditCard)
	assert.ErrorIs(t, err, ErrStatusTransition)

	f.reqStore.failUpdate = false
	gotBid, _ := f.bidStore.Get(ctx, bid.ID)
	assert.Equal(t, bids.StatusPending, gotBid.Status)
	gotReq, _ := f.reqSvc.Get(ctx, req.ID)
	assert.Equal(t, requests.StatusOpen, gotReq.Status)
	_, err = f.escSvc.GetByRequest(ctx, req.ID)
	assert.ErrorIs(t, err, escrow.ErrEscrowNotFound)
}

func TestConcurrentAcceptOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	req, first := f.seed(t, 100, 80)
	ctx := context.Background()

	second, err := f.bidSvc.Place(ctx, bids.PlaceParams{
		RequestID: req.ID, SellerID: "seller_2",
		Amount: decimal.NewFromInt(75), Message: "competing offer here",
	})
	require.NoError(t, err)

	bidIDs := []string{first.ID, second.ID}
	results := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i, id := range bidIDs {
		go func(i int, bidID string) {
			defer wg.Done()
			_, err := f.coordinator.AcceptBid(ctx, req.ID, bidID, "buyer_1", escrow.MethodCreditCard)
			results[i] = err
		}(i, id)
	}
	wg.Wait()

	var successes, rejections int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		rejections++
		assert.True(t,
			errors.Is(err, escrow.ErrEscrowExists) ||
				errors.Is(err, bids.ErrRequestNotBiddable) ||
				errors.Is(err, bids.ErrNotAcceptable),
			"unexpected loser error: %v", err)
	}
	assert.Equal(t, 1, successes, "exactly one acceptance must win")
	assert.Equal(t, 1, rejections)

	// And exactly one escrow exists.
	_, err = f.escSvc.GetByRequest(ctx, req.ID)
	assert.NoError(t, err)
}

func TestSecondAcceptAfterSuccess(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	f.accept(t, req, bid)

	_, err := f.coordinator.AcceptBid(context.Background(), req.ID, bid.ID, "buyer_1", escrow.MethodCreditCard)
	assert.ErrorIs(t, err, bids.ErrRequestNotBiddable,
		"request already accepted, fails the biddable precondition")
}

func TestDeliverReleaseLifecycle(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	f.accept(t, req, bid)
	ctx := context.Background()

	// Release before delivery is rejected.
	_, err := f.coordinator.ReleaseFunds(ctx, req.ID, "buyer_1", "")
	assert.ErrorIs(t, err, escrow.ErrNotReleasable)

	// Only the seller may deliver.
	_, err = f.coordinator.Deliver(ctx, req.ID, "buyer_1")
	assert.ErrorIs(t, err, ErrForbidden)

	result, err := f.coordinator.Deliver(ctx, req.ID, "seller_1")
	require.NoError(t, err)
	assert.Equal(t, requests.StatusDelivered, result.Request.Status)

	// Only the buyer may release.
	_, err = f.coordinator.ReleaseFunds(ctx, req.ID, "seller_1", "")
	assert.ErrorIs(t, err, ErrForbidden)

	result, err = f.coordinator.ReleaseFunds(ctx, req.ID, "buyer_1", "great work")
	require.NoError(t, err)
	assert.Equal(t, requests.StatusCompleted, result.Request.Status)
	assert.Equal(t, escrow.StatusReleased, result.Escrow.Status)

	// Terminal: releasing again fails.
	_, err = f.coordinator.ReleaseFunds(ctx, req.ID, "buyer_1", "")
	assert.ErrorIs(t, err, escrow.ErrNotReleasable)
}

func TestDeliverRequiresLockedFunds(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	ctx := context.Background()

	f.sim.outcomes = []*escrow.Outcome{paymentFails("Insufficient funds")}
	_, err := f.coordinator.AcceptBid(ctx, req.ID, bid.ID, "buyer_1", escrow.MethodCreditCard)
	require.ErrorIs(t, err, ErrPaymentProcessing)

	_, err = f.coordinator.Deliver(ctx, req.ID, "seller_1")
	assert.ErrorIs(t, err, ErrFundsNotLocked)
}

func TestDisputeAndRefund(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	f.accept(t, req, bid)
	ctx := context.Background()

	// A stranger can't dispute.
	_, err := f.coordinator.HoldForDispute(ctx, req.ID, "stranger", "not my job")
	assert.ErrorIs(t, err, ErrForbidden)

	// The seller raises a dispute.
	result, err := f.coordinator.HoldForDispute(ctx, req.ID, "seller_1", "scope creep")
	require.NoError(t, err)
	assert.Equal(t, requests.StatusDisputed, result.Request.Status)
	assert.Equal(t, escrow.StatusHeld, result.Escrow.Status)

	// Disputing again fails: held -> held is not a transition.
	_, err = f.coordinator.HoldForDispute(ctx, req.ID, "buyer_1", "me too")
	assert.ErrorIs(t, err, escrow.ErrInvalidTransition)

	// Refund resolves the dispute for the buyer and cancels the request.
	result, err = f.coordinator.RefundFunds(ctx, req.ID, "buyer_1", "work never arrived")
	require.NoError(t, err)
	assert.Equal(t, requests.StatusCancelled, result.Request.Status)
	assert.Equal(t, escrow.StatusRefunded, result.Escrow.Status)

	// Terminal.
	_, err = f.coordinator.RefundFunds(ctx, req.ID, "buyer_1", "again")
	assert.ErrorIs(t, err, escrow.ErrInvalidTransition)
}

func TestRefundDirectFromLocked(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	f.accept(t, req, bid)
	ctx := context.Background()

	result, err := f.coordinator.RefundFunds(ctx, req.ID, "buyer_1", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, requests.StatusCancelled, result.Request.Status)
	assert.Equal(t, escrow.StatusRefunded, result.Escrow.Status)
}

func TestReleaseFromHeldResolvesDisputeForSeller(t *testing.T) {
	f := newFixture(t)
	req, bid := f.seed(t, 100, 80)
	f.accept(t, req, bid)
	ctx := context.Background()

	_, err := f.coordinator.HoldForDispute(ctx, req.ID, "buyer_1", "looks wrong")
	require.NoError(t, err)

	// Buyer concedes; funds go to the seller and the request completes.
	result, err := f.coordinator.ReleaseFunds(ctx, req.ID, "buyer_1", "resolved, my mistake")
	require.NoError(t, err)
	assert.Equal(t, requests.StatusCompleted, result.Request.Status)
	assert.Equal(t, escrow.StatusReleased, result.Escrow.Status)
}
