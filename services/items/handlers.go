package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openlend/lending-platform/internal/faults"
)

// CreateItemRequest is the payload for registering a new item.
type CreateItemRequest struct {
	Name          string `json:"name" binding:"required"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	ImageURL      string `json:"image_url"`
	TotalQuantity int    `json:"total_quantity" binding:"min=0"`
}

// StockRequest is the payload for reserve and release calls. The borrow
// request id keys the movement log, so every stock call must carry it.
type StockRequest struct {
	Quantity        int    `json:"quantity" binding:"required,gt=0"`
	BorrowRequestID string `json:"borrow_request_id" binding:"required"`
}

// ItemHandler contains the HTTP handlers of the items service.
type ItemHandler struct {
	useCase *ItemUseCase
	tracer  trace.Tracer
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(useCase *ItemUseCase, tracer trace.Tracer) *ItemHandler {
	return &ItemHandler{useCase: useCase, tracer: tracer}
}

// CreateItem handles POST /api/items.
func (h *ItemHandler) CreateItem(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(faults.Response(faults.New(faults.KindInvalidArgument, err.Error())))
		return
	}

	item, err := h.useCase.CreateItem(c.Request.Context(), req.Name, req.Description, req.Category, req.ImageURL, req.TotalQuantity)
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": item})
}

// GetItem handles GET /api/items/:id.
func (h *ItemHandler) GetItem(c *gin.Context) {
	item, err := h.useCase.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// ListItems handles GET /api/items.
func (h *ItemHandler) ListItems(c *gin.Context) {
	items, err := h.useCase.ListItems(c.Request.Context(), c.Query("category"))
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// UpdateItem handles PATCH /api/items/:id.
func (h *ItemHandler) UpdateItem(c *gin.Context) {
	var patch ItemPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(faults.Response(faults.New(faults.KindInvalidArgument, err.Error())))
		return
	}

	item, err := h.useCase.UpdateItem(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// DeleteItem handles DELETE /api/items/:id.
func (h *ItemHandler) DeleteItem(c *gin.Context) {
	if err := h.useCase.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// Reserve handles POST /api/items/:id/reserve, the forward saga action.
func (h *ItemHandler) Reserve(c *gin.Context) {
	var req StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(faults.Response(faults.New(faults.KindInvalidArgument, err.Error())))
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "reserve_stock")
	defer span.End()
	span.SetAttributes(
		attribute.String("item_id", c.Param("id")),
		attribute.Int("quantity", req.Quantity),
		attribute.String("borrow_request_id", req.BorrowRequestID),
	)

	item, err := h.useCase.Reserve(ctx, c.Param("id"), req.BorrowRequestID, req.Quantity)
	if err != nil {
		span.RecordError(err)
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// Release handles POST /api/items/:id/release, the compensating action.
func (h *ItemHandler) Release(c *gin.Context) {
	var req StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(faults.Response(faults.New(faults.KindInvalidArgument, err.Error())))
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "release_stock")
	defer span.End()
	span.SetAttributes(
		attribute.String("item_id", c.Param("id")),
		attribute.Int("quantity", req.Quantity),
		attribute.String("borrow_request_id", req.BorrowRequestID),
	)

	item, err := h.useCase.Release(ctx, c.Param("id"), req.BorrowRequestID, req.Quantity)
	if err != nil {
		span.RecordError(err)
		c.JSON(faults.Response(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// HealthCheck handles GET /health.
func (h *ItemHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "items-service"})
}
