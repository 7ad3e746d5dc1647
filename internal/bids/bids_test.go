package bids

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/tendera/internal/requests"
)

func newTestServices(t *testing.T) (*Service, *requests.Service) {
	t.Helper()
	reqSvc := requests.NewService(requests.NewMemoryStore(), nil)
	bidSvc := NewService(NewMemoryStore(), reqSvc, nil)
	return bidSvc, reqSvc
}

func openRequest(t *testing.T, reqSvc *requests.Service, buyer string, budget float64) *requests.Request {
	t.Helper()
	req, err := reqSvc.Create(context.Background(), requests.CreateParams{
		BuyerID: buyer,
		Title:   "Translate a document",
		Budget:  decimal.NewFromFloat(budget),
	})
	require.NoError(t, err)
	return req
}

func TestPlaceBid(t *testing.T) {
	bidSvc, reqSvc := newTestServices(t)
	req := openRequest(t, reqSvc, "buyer_1", 100)

	bid, err := bidSvc.Place(context.Background(), PlaceParams{
		RequestID: req.ID,
		SellerID:  "seller_1",
		Amount:    decimal.NewFromFloat(80),
		Message:   "I can do this in two days",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, bid.Status)
	assert.Equal(t, req.ID, bid.RequestID)
}

func TestPlaceBidValidation(t *testing.T) {
	bidSvc, reqSvc := newTestServices(t)
	req := openRequest(t, reqSvc, "buyer_1", 100)
	ctx := context.Background()

	_, err := bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.NewFromFloat(80), Message: "too short",
	})
	assert.ErrorIs(t, err, ErrInvalidInput, "message under 10 chars")

	_, err = bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.Zero, Message: "long enough message",
	})
	assert.ErrorIs(t, err, ErrInvalidInput, "zero amount")
}

func TestPlaceBidOnOwnRequest(t *testing.T) {
	bidSvc, reqSvc := newTestServices(t)
	req := openRequest(t, reqSvc, "buyer_1", 100)

	_, err := bidSvc.Place(context.Background(), PlaceParams{
		RequestID: req.ID,
		SellerID:  "buyer_1",
		Amount:    decimal.NewFromFloat(50),
		Message:   "bidding on my own request",
	})
	assert.ErrorIs(t, err, ErrOwnRequest)
}

func TestPlaceBidExceedsBudget(t *testing.T) {
	bidSvc, reqSvc := newTestServices(t)
	req := openRequest(t, reqSvc, "buyer_1", 100)

	_, err := bidSvc.Place(context.Background(), PlaceParams{
		RequestID: req.ID,
		SellerID:  "seller_1",
		Amount:    decimal.NewFromFloat(150),
		Message:   "premium quality work",
	})
	assert.ErrorIs(t, err, ErrExceedsBudget)
}

func TestPlaceBidDuplicate(t *testing.T) {
	bidSvc, reqSvc := newTestServices(t)
	req := openRequest(t, reqSvc, "buyer_1", 100)
	ctx := context.Background()

	_, err := bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.NewFromFloat(80), Message: "first offer from me",
	})
	require.NoError(t, err)

	_, err = bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.NewFromFloat(70), Message: "second offer from me",
	})
	assert.ErrorIs(t, err, ErrDuplicateBid)
}

func TestWithdrawFreesSlot(t *testing.T) {
	bidSvc, reqSvc := newTestServices(t)
	req := openRequest(t, reqSvc, "buyer_1", 100)
	ctx := context.Background()

	bid, err := bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.NewFromFloat(80), Message: "first offer from me",
	})
	require.NoError(t, err)

	require.NoError(t, bidSvc.Withdraw(ctx, bid.ID, "seller_1"))

	_, err = bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.NewFromFloat(75), Message: "revised offer from me",
	})
	assert.NoError(t, err)
}

func TestWithdrawOnlySeller(t *testing.T) {
	bidSvc, reqSvc := newTestServices(t)
	req := openRequest(t, reqSvc, "buyer_1", 100)
	ctx := context.Background()

	bid, err := bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.NewFromFloat(80), Message: "my offer for this job",
	})
	require.NoError(t, err)

	assert.ErrorIs(t, bidSvc.Withdraw(ctx, bid.ID, "seller_2"), ErrNotSeller)
}

func TestPlaceBidOnClosedRequest(t *testing.T) {
	bidSvc, reqSvc := newTestServices(t)
	req := openRequest(t, reqSvc, "buyer_1", 100)
	ctx := context.Background()

	_, err := reqSvc.ChangeStatus(ctx, req.ID, requests.StatusCancelled, "buyer_1")
	require.NoError(t, err)

	_, err = bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.NewFromFloat(80), Message: "am I too late here",
	})
	assert.ErrorIs(t, err, ErrRequestNotBiddable)
}

func TestPlaceBidPastDeadline(t *testing.T) {
	bidSvc, reqSvc := newTestServices(t)
	ctx := context.Background()

	deadline := time.Now().Add(50 * time.Millisecond)
	req, err := reqSvc.Create(ctx, requests.CreateParams{
		BuyerID:  "buyer_1",
		Title:    "Urgent fix",
		Budget:   decimal.NewFromInt(40),
		Deadline: &deadline,
	})
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, err = bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.NewFromFloat(30), Message: "I can start right away",
	})
	assert.ErrorIs(t, err, ErrRequestNotBiddable)
}

func TestCanBeAccepted(t *testing.T) {
	req := &requests.Request{Budget: decimal.NewFromInt(100)}
	now := time.Now()

	pending := &Bid{Status: StatusPending, Amount: decimal.NewFromInt(80)}
	assert.NoError(t, pending.CanBeAccepted(req, now))

	accepted := &Bid{Status: StatusAccepted, Amount: decimal.NewFromInt(80)}
	assert.ErrorIs(t, accepted.CanBeAccepted(req, now), ErrNotAcceptable)

	withdrawn := &Bid{Status: StatusWithdrawn, Amount: decimal.NewFromInt(80)}
	assert.ErrorIs(t, withdrawn.CanBeAccepted(req, now), ErrNotAcceptable)

	over := &Bid{Status: StatusPending, Amount: decimal.NewFromInt(150)}
	assert.ErrorIs(t, over.CanBeAccepted(req, now), ErrNotAcceptable)

	past := now.Add(-time.Minute)
	expired := &Bid{Status: StatusPending, Amount: decimal.NewFromInt(80), ExpiresAt: &past}
	assert.ErrorIs(t, expired.CanBeAccepted(req, now), ErrBidExpired)

	future := now.Add(time.Hour)
	live := &Bid{Status: StatusPending, Amount: decimal.NewFromInt(80), ExpiresAt: &future}
	assert.NoError(t, live.CanBeAccepted(req, now))
}

func TestIsExpired(t *testing.T) {
	now := time.Now()

	forever := &Bid{}
	assert.False(t, forever.IsExpired(now))

	at := now
	boundary := &Bid{ExpiresAt: &at}
	assert.True(t, boundary.IsExpired(now), "expiry is inclusive at the boundary")

	future := now.Add(time.Hour)
	live := &Bid{ExpiresAt: &future}
	assert.False(t, live.IsExpired(now))
}

func TestPlaceBidExpiryAndDelivery(t *testing.T) {
	bidSvc, reqSvc := newTestServices(t)
	req := openRequest(t, reqSvc, "buyer_1", 100)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.NewFromFloat(80), Message: "offer with a stale expiry",
		ExpiresAt: &past,
	})
	assert.ErrorIs(t, err, ErrInvalidInput, "expiry in the past")

	zero := 0
	_, err = bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.NewFromFloat(80), Message: "offer with bad delivery",
		DeliveryDays: &zero,
	})
	assert.ErrorIs(t, err, ErrInvalidInput, "non-positive delivery days")

	future := time.Now().Add(24 * time.Hour)
	days := 3
	bid, err := bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.NewFromFloat(80), Message: "delivered in three days",
		DeliveryDays: &days, ExpiresAt: &future,
	})
	require.NoError(t, err)
	require.NotNil(t, bid.DeliveryDays)
	assert.Equal(t, 3, *bid.DeliveryDays)
	require.NotNil(t, bid.ExpiresAt)
	assert.True(t, bid.ExpiresAt.Equal(future))
}

func TestPlaceBidRecordsActor(t *testing.T) {
	bidSvc, reqSvc := newTestServices(t)
	req := openRequest(t, reqSvc, "buyer_1", 100)
	ctx := context.Background()

	bid, err := bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.NewFromFloat(80), Message: "my offer for this job",
	})
	require.NoError(t, err)
	assert.Equal(t, "seller_1", bid.CreatedBy)
	assert.Equal(t, "seller_1", bid.UpdatedBy)

	require.NoError(t, bidSvc.Withdraw(ctx, bid.ID, "seller_1"))
	withdrawn, err := bidSvc.Get(ctx, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, "seller_1", withdrawn.UpdatedBy)
}

func TestAcceptAndUnaccept(t *testing.T) {
	now := time.Now()
	bid := &Bid{Status: StatusPending}

	require.NoError(t, bid.Accept(now))
	assert.Equal(t, StatusAccepted, bid.Status)

	assert.ErrorIs(t, bid.Accept(now), ErrNotAcceptable)

	require.NoError(t, bid.Unaccept(now))
	assert.Equal(t, StatusPending, bid.Status)

	assert.ErrorIs(t, bid.Unaccept(now), ErrNotEditable)
}

func TestUpdatePendingBid(t *testing.T) {
	bidSvc, reqSvc := newTestServices(t)
	req := openRequest(t, reqSvc, "buyer_1", 100)
	ctx := context.Background()

	bid, err := bidSvc.Place(ctx, PlaceParams{
		RequestID: req.ID, SellerID: "seller_1",
		Amount: decimal.NewFromFloat(80), Message: "initial offer for this",
	})
	require.NoError(t, err)

	lower := decimal.NewFromFloat(70)
	updated, err := bidSvc.Update(ctx, bid.ID, "seller_1", UpdateParams{Amount: &lower})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(lower))

	over := decimal.NewFromFloat(200)
	_, err = bidSvc.Update(ctx, bid.ID, "seller_1", UpdateParams{Amount: &over})
	assert.ErrorIs(t, err, ErrExceedsBudget)
}
