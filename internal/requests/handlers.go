package requests

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mbd888/tendera/internal/validation"
)

// Handler provides HTTP endpoints for request CRUD.
type Handler struct {
	service *Service
}

// NewHandler creates a new request handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) request routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/requests", h.ListRequests)
	r.GET("/requests/:id", h.GetRequest)
}

// RegisterProtectedRoutes sets up routes that require a caller identity.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/requests", h.CreateRequest)
	r.PUT("/requests/:id", h.UpdateRequest)
	r.DELETE("/requests/:id", h.DeleteRequest)
	r.GET("/my/requests", h.ListMyRequests)
}

// createRequestBody is the JSON body for POST /v1/requests.
type createRequestBody struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Budget      string     `json:"budget"`
	Deadline    *time.Time `json:"deadline"`
}

// CreateRequest handles POST /v1/requests
func (h *Handler) CreateRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("title", body.Title),
		validation.MaxLength("title", body.Title, 200),
		validation.ValidAmount("budget", body.Budget),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	budget, _ := decimal.NewFromString(body.Budget)
	req, err := h.service.Create(c.Request.Context(), CreateParams{
		BuyerID:     c.GetString("actorID"),
		Title:       body.Title,
		Description: body.Description,
		Category:    body.Category,
		Budget:      budget,
		Deadline:    body.Deadline,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to create request",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"request": req})
}

// GetRequest handles GET /v1/requests/:id
func (h *Handler) GetRequest(c *gin.Context) {
	req, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Request not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": req})
}

// ListRequests handles GET /v1/requests
func (h *Handler) ListRequests(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 100 {
				limit = 100
			}
		}
	}

	reqs, err := h.service.ListOpen(c.Request.Context(), c.Query("category"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": reqs,
		"count":    len(reqs),
	})
}

// ListMyRequests handles GET /v1/my/requests
func (h *Handler) ListMyRequests(c *gin.Context) {
	reqs, err := h.service.ListByBuyer(c.Request.Context(), c.GetString("actorID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": reqs,
		"count":    len(reqs),
	})
}

// updateRequestBody is the JSON body for PUT /v1/requests/:id.
type updateRequestBody struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Category    *string    `json:"category"`
	Budget      *string    `json:"budget"`
	Deadline    *time.Time `json:"deadline"`
}

// UpdateRequest handles PUT /v1/requests/:id
func (h *Handler) UpdateRequest(c *gin.Context) {
	var body updateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	params := UpdateParams{
		Title:       body.Title,
		Description: body.Description,
		Category:    body.Category,
		Deadline:    body.Deadline,
	}
	if body.Budget != nil {
		if errs := validation.Validate(validation.ValidAmount("budget", *body.Budget)); len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": errs.Error(),
				"details": errs,
			})
			return
		}
		budget, _ := decimal.NewFromString(*body.Budget)
		params.Budget = &budget
	}

	req, err := h.service.Update(c.Request.Context(), c.Param("id"), c.GetString("actorID"), params)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrRequestNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrNotOwner):
			status = http.StatusForbidden
			code = "forbidden"
		case errors.Is(err, ErrNotEditable):
			status = http.StatusConflict
			code = "not_editable"
		case errors.Is(err, ErrInvalidInput):
			status = http.StatusBadRequest
			code = "validation_error"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": req})
}

// DeleteRequest handles DELETE /v1/requests/:id
func (h *Handler) DeleteRequest(c *gin.Context) {
	err := h.service.Delete(c.Request.Context(), c.Param("id"), c.GetString("actorID"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrRequestNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrNotOwner):
			status = http.StatusForbidden
			code = "forbidden"
		case errors.Is(err, ErrNotEditable):
			status = http.StatusConflict
			code = "not_editable"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
