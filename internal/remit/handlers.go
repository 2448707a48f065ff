package remit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/swiftremit/swiftremit/internal/logging"
	"github.com/swiftremit/swiftremit/internal/stroops"
	"github.com/swiftremit/swiftremit/internal/validation"
)

// Handler provides HTTP endpoints for remittance operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new remittance handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the remittance routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/remittances", h.Create)
	r.GET("/remittances/:id", h.Get)
	r.GET("/remittances/:id/settlement-id", h.SettlementID)
	r.POST("/remittances/:id/start", h.Start)
	r.POST("/remittances/:id/confirm", h.Confirm)
	r.POST("/remittances/:id/cancel", h.Cancel)
	r.POST("/remittances/:id/fail", h.Fail)
	r.POST("/remittances/batch-settle", h.BatchSettle)
	r.GET("/fees/quote", h.Quote)
}

type createBody struct {
	Agent          string  `json:"agent" binding:"required"`
	Amount         string  `json:"amount" binding:"required"`
	Expiry         *uint64 `json:"expiry"`
	FromCountry    string  `json:"fromCountry"`
	ToCountry      string  `json:"toCountry"`
	IdempotencyKey string  `json:"idempotencyKey"`
}

// Create handles POST /v1/remittances
func (h *Handler) Create(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}

	var body createBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	agent, ok := validation.ParseAddress(body.Agent)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "agent must be a valid 0x address",
		})
		return
	}
	amount, ok := validation.ParseAmount(body.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "amount must be a positive decimal",
		})
		return
	}

	id, err := h.service.Create(c.Request.Context(), CreateRequest{
		Sender:         caller,
		Agent:          agent,
		Amount:         amount,
		Expiry:         body.Expiry,
		FromCountry:    body.FromCountry,
		ToCountry:      body.ToCountry,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		validation.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// Get handles GET /v1/remittances/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remittance": r})
}

// SettlementID handles GET /v1/remittances/:id/settlement-id
func (h *Handler) SettlementID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		validation.RespondError(c, err)
		return
	}
	settlementID, err := SettlementID(r)
	if err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "settlementId": settlementID})
}

// Start handles POST /v1/remittances/:id/start
func (h *Handler) Start(c *gin.Context) {
	h.lifecycleOp(c, h.service.StartProcessing)
}

// Confirm handles POST /v1/remittances/:id/confirm
func (h *Handler) Confirm(c *gin.Context) {
	h.lifecycleOp(c, h.service.ConfirmPayout)
}

// Cancel handles POST /v1/remittances/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	h.lifecycleOp(c, h.service.Cancel)
}

// Fail handles POST /v1/remittances/:id/fail
func (h *Handler) Fail(c *gin.Context) {
	h.lifecycleOp(c, h.service.MarkFailed)
}

type batchBody struct {
	IDs []uint64 `json:"ids" binding:"required"`
}

// BatchSettle handles POST /v1/remittances/batch-settle
func (h *Handler) BatchSettle(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	var body batchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	settled, err := h.service.BatchSettle(c.Request.Context(), caller, body.IDs)
	if err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settledIds": settled})
}

// Quote handles GET /v1/fees/quote?amount=&from=&to=
func (h *Handler) Quote(c *gin.Context) {
	amount, ok := validation.ParseAmount(c.Query("amount"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "amount must be a positive decimal",
		})
		return
	}

	r := &Remittance{Amount: amount, FromCountry: c.Query("from"), ToCountry: c.Query("to")}
	breakdown, err := h.service.breakdownFor(c.Request.Context(), h.service.store, r)
	if err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"amount":          stroops.Format(breakdown.Amount),
		"platformFee":     stroops.Format(breakdown.PlatformFee),
		"protocolFee":     stroops.Format(breakdown.ProtocolFee),
		"totalFees":       stroops.Format(breakdown.TotalFees),
		"netAmount":       stroops.Format(breakdown.NetAmount),
		"strategyUsed":    breakdown.StrategyUsed,
		"corridorApplied": breakdown.CorridorApplied,
	})
}

func (h *Handler) lifecycleOp(c *gin.Context, op func(ctx context.Context, caller common.Address, id uint64) error) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := logging.WithRemittanceID(c.Request.Context(), id)
	if err := op(ctx, caller, id); err != nil {
		validation.RespondError(c, err)
		return
	}
	r, err := h.service.Get(ctx, id)
	if err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remittance": r})
}

func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_id",
			"message": "id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}
