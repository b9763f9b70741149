package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openlend/lending-platform/internal/faults"
)

// CreateBorrowRequestPayload is the payload for creating a request.
type CreateBorrowRequestPayload struct {
	UserID    string    `json:"user_id" binding:"required"`
	ItemID    string    `json:"item_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,gt=0"`
	StartDate time.Time `json:"start_date" binding:"required"`
	EndDate   time.Time `json:"end_date" binding:"required"`
	Notes     string    `json:"notes"`
}

// UpdateStatusPayload is the payload for the guarded status flip.
type UpdateStatusPayload struct {
	ExpectedStatus Status  `json:"expected_status" binding:"required"`
	NewStatus      Status  `json:"new_status" binding:"required"`
	AdminNotes     *string `json:"admin_notes"`
}

// BorrowHandler contains the HTTP handlers of the borrowings service.
type BorrowHandler struct {
	useCase *BorrowUseCase
	tracer  trace.Tracer
}

// NewBorrowHandler creates a new BorrowHandler.
func NewBorrowHandler(useCase *BorrowUseCase, tracer trace.Tracer) *BorrowHandler {
	return &BorrowHandler{useCase: useCase, tracer: tracer}
}

// Create handles POST /api/borrowings.
func (h *BorrowHandler) Create(c *gin.Context) {
	var req CreateBorrowRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(faults.Response(faults.New(faults.KindInvalidArgument, err.Error())))
		return
	}

	request, err := h.useCase.Create(c.Request.Context(), req.UserID, req.ItemID, req.Quantity, req.StartDate, req.EndDate, req.Notes)
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"borrow_request": request})
}

// Get handles GET /api/borrowings/:id.
func (h *BorrowHandler) Get(c *gin.Context) {
	request, err := h.useCase.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrow_request": request})
}

// UpdateStatus handles POST /api/borrowings/:id/status.
func (h *BorrowHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(faults.Response(faults.New(faults.KindInvalidArgument, err.Error())))
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "update_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("borrow_request_id", c.Param("id")),
		attribute.String("expected_status", string(req.ExpectedStatus)),
		attribute.String("new_status", string(req.NewStatus)),
	)

	request, err := h.useCase.UpdateStatus(ctx, c.Param("id"), req.ExpectedStatus, req.NewStatus, req.AdminNotes)
	if err != nil {
		span.RecordError(err)
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrow_request": request})
}

// ListByUser handles GET /api/borrowings/user/:userID.
func (h *BorrowHandler) ListByUser(c *gin.Context) {
	requests, err := h.useCase.ListByUser(c.Request.Context(), c.Param("userID"))
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrow_requests": requests})
}

// ListAll handles GET /api/borrowings.
func (h *BorrowHandler) ListAll(c *gin.Context) {
	requests, err := h.useCase.ListAll(c.Request.Context(), Status(c.Query("status")))
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrow_requests": requests})
}

// History handles GET /api/borrowings/history.
func (h *BorrowHandler) History(c *gin.Context) {
	filter := HistoryFilter{UserID: c.Query("user_id")}

	for param, dest := range map[string]**time.Time{
		"created_after":  &filter.CreatedAfter,
		"created_before": &filter.CreatedBefore,
	} {
		if raw := c.Query(param); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(faults.Response(faults.Errorf(faults.KindInvalidArgument, "invalid %s, expected RFC3339", param)))
				return
			}
			*dest = &parsed
		}
	}

	requests, err := h.useCase.History(c.Request.Context(), filter)
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"borrow_requests": requests})
}

// HealthCheck handles GET /health.
func (h *BorrowHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "borrowings-service"})
}
