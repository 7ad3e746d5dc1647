package bids

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mbd888/tendera/internal/requests"
	"github.com/mbd888/tendera/internal/validation"
)

// Handler provides HTTP endpoints for bid operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new bid handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) bid routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/requests/:id/bids", h.ListBids)
	r.GET("/bids/:id", h.GetBid)
}

// RegisterProtectedRoutes sets up routes that require a caller identity.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/requests/:id/bids", h.PlaceBid)
	r.PUT("/bids/:id", h.UpdateBid)
	r.DELETE("/bids/:id", h.WithdrawBid)
	r.GET("/my/bids", h.ListMyBids)
}

// placeBidBody is the JSON body for POST /v1/requests/:id/bids.
type placeBidBody struct {
	Amount       string     `json:"amount"`
	Message      string     `json:"message"`
	DeliveryDays *int       `json:"delivery_days"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// PlaceBid handles POST /v1/requests/:id/bids
func (h *Handler) PlaceBid(c *gin.Context) {
	var body placeBidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidAmount("amount", body.Amount),
		validation.MinLength("message", body.Message, 10),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	amount, _ := decimal.NewFromString(body.Amount)
	bid, err := h.service.Place(c.Request.Context(), PlaceParams{
		RequestID:    c.Param("id"),
		SellerID:     c.GetString("actorID"),
		Amount:       amount,
		Message:      body.Message,
		DeliveryDays: body.DeliveryDays,
		ExpiresAt:    body.ExpiresAt,
	})
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, requests.ErrRequestNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrOwnRequest):
			status = http.StatusForbidden
			code = "own_request"
		case errors.Is(err, ErrRequestNotBiddable):
			status = http.StatusConflict
			code = "request_not_biddable"
		case errors.Is(err, ErrExceedsBudget):
			status = http.StatusUnprocessableEntity
			code = "exceeds_budget"
		case errors.Is(err, ErrDuplicateBid):
			status = http.StatusConflict
			code = "duplicate_bid"
		case errors.Is(err, ErrInvalidInput):
			status = http.StatusBadRequest
			code = "validation_error"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"bid": bid})
}

// GetBid handles GET /v1/bids/:id
func (h *Handler) GetBid(c *gin.Context) {
	bid, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrBidNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Bid not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bid": bid})
}

// ListBids handles GET /v1/requests/:id/bids
func (h *Handler) ListBids(c *gin.Context) {
	bids, err := h.service.ListByRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bids":  bids,
		"count": len(bids),
	})
}

// ListMyBids handles GET /v1/my/bids
func (h *Handler) ListMyBids(c *gin.Context) {
	bids, err := h.service.ListBySeller(c.Request.Context(), c.GetString("actorID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bids":  bids,
		"count": len(bids),
	})
}

// updateBidBody is the JSON body for PUT /v1/bids/:id.
type updateBidBody struct {
	Amount       *string    `json:"amount"`
	Message      *string    `json:"message"`
	DeliveryDays *int       `json:"delivery_days"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// UpdateBid handles PUT /v1/bids/:id
func (h *Handler) UpdateBid(c *gin.Context) {
	var body updateBidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	params := UpdateParams{
		Message:      body.Message,
		DeliveryDays: body.DeliveryDays,
		ExpiresAt:    body.ExpiresAt,
	}
	if body.Amount != nil {
		if errs := validation.Validate(validation.ValidAmount("amount", *body.Amount)); len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": errs.Error(),
				"details": errs,
			})
			return
		}
		amount, _ := decimal.NewFromString(*body.Amount)
		params.Amount = &amount
	}

	bid, err := h.service.Update(c.Request.Context(), c.Param("id"), c.GetString("actorID"), params)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrBidNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrNotSeller):
			status = http.StatusForbidden
			code = "forbidden"
		case errors.Is(err, ErrNotEditable):
			status = http.StatusConflict
			code = "not_editable"
		case errors.Is(err, ErrExceedsBudget):
			status = http.StatusUnprocessableEntity
			code = "exceeds_budget"
		case errors.Is(err, ErrInvalidInput):
			status = http.StatusBadRequest
			code = "validation_error"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bid": bid})
}

// WithdrawBid handles DELETE /v1/bids/:id
func (h *Handler) WithdrawBid(c *gin.Context) {
	err := h.service.Withdraw(c.Request.Context(), c.Param("id"), c.GetString("actorID"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrBidNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrNotSeller):
			status = http.StatusForbidden
			code = "forbidden"
		case errors.Is(err, ErrNotEditable):
			status = http.StatusConflict
			code = "not_editable"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"withdrawn": true})
}
