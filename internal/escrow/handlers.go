package escrow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for reading escrow state. Escrow details
// are visible only to the buyer and seller involved.
type Handler struct {
	service *Service
}

// NewHandler creates a new escrow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up routes that require a caller identity.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/requests/:id/escrow", h.GetByRequest)
	r.GET("/escrows/:id", h.GetEscrow)
}

// GetByRequest handles GET /v1/requests/:id/escrow
func (h *Handler) GetByRequest(c *gin.Context) {
	t, err := h.service.GetByRequest(c.Request.Context(), c.Param("id"))
	h.respond(c, t, err)
}

// GetEscrow handles GET /v1/escrows/:id
func (h *Handler) GetEscrow(c *gin.Context) {
	t, err := h.service.Get(c.Request.Context(), c.Param("id"))
	h.respond(c, t, err)
}

func (h *Handler) respond(c *gin.Context, t *Transaction, err error) {
	if err != nil {
		if errors.Is(err, ErrEscrowNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Escrow not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	actor := c.GetString("actorID")
	if actor != t.BuyerID && actor != t.SellerID {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Only the buyer or seller may view this escrow",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow": t})
}
