package acceptance

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/tendera/internal/bids"
	"github.com/mbd888/tendera/internal/escrow"
	"github.com/mbd888/tendera/internal/requests"
)

// Handler provides HTTP endpoints for the request lifecycle actions.
type Handler struct {
	coordinator *Coordinator
}

// NewHandler creates a new lifecycle handler.
func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// RegisterProtectedRoutes sets up routes that require a caller identity.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/requests/:id/accept-bid", h.AcceptBid)
	r.POST("/requests/:id/retry-payment", h.RetryPayment)
	r.POST("/requests/:id/deliver", h.Deliver)
	r.POST("/requests/:id/release", h.ReleaseFunds)
	r.POST("/requests/:id/dispute", h.HoldForDispute)
	r.POST("/requests/:id/refund", h.RefundFunds)
}

// acceptBidBody is the JSON body for POST /v1/requests/:id/accept-bid.
type acceptBidBody struct {
	BidID         string `json:"bid_id" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required"`
}

// AcceptBid handles POST /v1/requests/:id/accept-bid
func (h *Handler) AcceptBid(c *gin.Context) {
	var body acceptBidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "bid_id and payment_method are required",
		})
		return
	}

	result, err := h.coordinator.AcceptBid(c.Request.Context(),
		c.Param("id"), body.BidID, c.GetString("actorID"), body.PaymentMethod)
	h.respond(c, result, err)
}

// retryPaymentBody is the JSON body for POST /v1/requests/:id/retry-payment.
type retryPaymentBody struct {
	PaymentMethod string `json:"payment_method"`
}

// RetryPayment handles POST /v1/requests/:id/retry-payment
func (h *Handler) RetryPayment(c *gin.Context) {
	// Body is optional; an empty body keeps the original payment method.
	var body retryPaymentBody
	_ = c.ShouldBindJSON(&body)

	result, err := h.coordinator.RetryPayment(c.Request.Context(),
		c.Param("id"), c.GetString("actorID"), body.PaymentMethod)
	h.respond(c, result, err)
}

// Deliver handles POST /v1/requests/:id/deliver
func (h *Handler) Deliver(c *gin.Context) {
	result, err := h.coordinator.Deliver(c.Request.Context(),
		c.Param("id"), c.GetString("actorID"))
	h.respond(c, result, err)
}

// lifecycleBody carries the optional free-text note for release, dispute,
// and refund actions.
type lifecycleBody struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

// ReleaseFunds handles POST /v1/requests/:id/release
func (h *Handler) ReleaseFunds(c *gin.Context) {
	var body lifecycleBody
	_ = c.ShouldBindJSON(&body)

	result, err := h.coordinator.ReleaseFunds(c.Request.Context(),
		c.Param("id"), c.GetString("actorID"), body.Notes)
	h.respond(c, result, err)
}

// HoldForDispute handles POST /v1/requests/:id/dispute
func (h *Handler) HoldForDispute(c *gin.Context) {
	var body lifecycleBody
	_ = c.ShouldBindJSON(&body)

	result, err := h.coordinator.HoldForDispute(c.Request.Context(),
		c.Param("id"), c.GetString("actorID"), body.Reason)
	h.respond(c, result, err)
}

// RefundFunds handles POST /v1/requests/:id/refund
func (h *Handler) RefundFunds(c *gin.Context) {
	var body lifecycleBody
	_ = c.ShouldBindJSON(&body)

	result, err := h.coordinator.RefundFunds(c.Request.Context(),
		c.Param("id"), c.GetString("actorID"), body.Reason)
	h.respond(c, result, err)
}

func (h *Handler) respond(c *gin.Context, result *Result, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"result": result})
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrPaymentProcessing):
		// Retryable: the acceptance stands, only the charge failed.
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "payment_processing_failed",
			"message": err.Error(),
			"result":  result,
			"retry":   true,
		})
		return
	case errors.Is(err, requests.ErrRequestNotFound),
		errors.Is(err, bids.ErrBidNotFound),
		errors.Is(err, escrow.ErrEscrowNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
		code = "forbidden"
	case errors.Is(err, ErrBidMismatch):
		status = http.StatusUnprocessableEntity
		code = "bid_mismatch"
	case errors.Is(err, bids.ErrRequestNotBiddable):
		status = http.StatusConflict
		code = "request_not_biddable"
	case errors.Is(err, bids.ErrNotAcceptable):
		status = http.StatusConflict
		code = "bid_not_acceptable"
	case errors.Is(err, bids.ErrBidExpired):
		status = http.StatusConflict
		code = "bid_expired"
	case errors.Is(err, escrow.ErrEscrowExists):
		status = http.StatusConflict
		code = "escrow_already_exists"
	case errors.Is(err, ErrFundsNotLocked):
		status = http.StatusConflict
		code = "funds_not_locked"
	case errors.Is(err, escrow.ErrNotReleasable):
		status = http.StatusConflict
		code = "not_releasable"
	case errors.Is(err, escrow.ErrInvalidTransition),
		errors.Is(err, requests.ErrInvalidTransition):
		status = http.StatusConflict
		code = "invalid_transition"
	case errors.Is(err, ErrStatusTransition):
		status = http.StatusInternalServerError
		code = "status_transition_failed"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
