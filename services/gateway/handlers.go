package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openlend/lending-platform/internal/faults"
)

// RejectPayload carries the optional admin note attached to a rejection.
type RejectPayload struct {
	AdminNotes *string `json:"admin_notes"`
}

// GatewayHandler contains the HTTP handlers of the gateway.
type GatewayHandler struct {
	orchestrator *Orchestrator
}

// NewGatewayHandler creates a new GatewayHandler.
func NewGatewayHandler(orchestrator *Orchestrator) *GatewayHandler {
	return &GatewayHandler{orchestrator: orchestrator}
}

// CreateBorrowing handles POST /api/borrowings.
func (h *GatewayHandler) CreateBorrowing(c *gin.Context) {
	var input CreateBorrowingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(faults.Response(faults.New(faults.KindInvalidArgument, err.Error())))
		return
	}

	request, err := h.orchestrator.Create(c.Request.Context(), input)
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"borrow_request": request})
}

// Approve handles POST /api/borrowings/:id/approve.
func (h *GatewayHandler) Approve(c *gin.Context) {
	request, err := h.orchestrator.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrow_request": request})
}

// Reject handles POST /api/borrowings/:id/reject.
func (h *GatewayHandler) Reject(c *gin.Context) {
	var payload RejectPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(faults.Response(faults.New(faults.KindInvalidArgument, err.Error())))
			return
		}
	}

	request, err := h.orchestrator.Reject(c.Request.Context(), c.Param("id"), payload.AdminNotes)
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrow_request": request})
}

// Return handles POST /api/borrowings/:id/return.
func (h *GatewayHandler) Return(c *gin.Context) {
	request, err := h.orchestrator.Return(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrow_request": request})
}

// Cancel handles POST /api/borrowings/:id/cancel.
func (h *GatewayHandler) Cancel(c *gin.Context) {
	request, err := h.orchestrator.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrow_request": request})
}

// GetBorrowing handles GET /api/borrowings/:id.
func (h *GatewayHandler) GetBorrowing(c *gin.Context) {
	request, err := h.orchestrator.GetBorrowing(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrow_request": request})
}

// ListMyBorrowings handles GET /api/borrowings/my/:userID.
func (h *GatewayHandler) ListMyBorrowings(c *gin.Context) {
	requests, err := h.orchestrator.ListBorrowingsByUser(c.Request.Context(), c.Param("userID"))
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrow_requests": requests})
}

// ListBorrowings handles GET /api/borrowings.
func (h *GatewayHandler) ListBorrowings(c *gin.Context) {
	requests, err := h.orchestrator.ListBorrowings(c.Request.Context(), c.Query("status"))
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrow_requests": requests})
}

// History handles GET /api/borrowings/history.
func (h *GatewayHandler) History(c *gin.Context) {
	query := HistoryQuery{
		UserID:        c.Query("user_id"),
		CreatedAfter:  c.Query("created_after"),
		CreatedBefore: c.Query("created_before"),
	}

	requests, err := h.orchestrator.History(c.Request.Context(), query)
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrow_requests": requests})
}

// GetItem handles GET /api/items/:id.
func (h *GatewayHandler) GetItem(c *gin.Context) {
	item, err := h.orchestrator.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// ListItems handles GET /api/items.
func (h *GatewayHandler) ListItems(c *gin.Context) {
	items, err := h.orchestrator.ListItems(c.Request.Context(), c.Query("category"))
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// HealthCheck handles GET /health.
func (h *GatewayHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "gateway"})
}
