package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swiftremit/swiftremit/internal/fees"
	"github.com/swiftremit/swiftremit/internal/guards"
	"github.com/swiftremit/swiftremit/internal/roles"
	"github.com/swiftremit/swiftremit/internal/stroops"
	"github.com/swiftremit/swiftremit/internal/validation"
)

// Handler provides HTTP endpoints for the admin surface.
type Handler struct {
	service *Service
}

// NewHandler creates a new admin handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the admin routes. The group is expected to carry
// the admin-secret middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/initialize", h.Initialize)
	r.POST("/roles", h.AssignRole)
	r.DELETE("/roles", h.RemoveRole)
	r.POST("/agents", h.RegisterAgent)
	r.DELETE("/agents/:address", h.RemoveAgent)
	r.PUT("/fee", h.UpdateFee)
	r.PUT("/protocol-fee", h.SetProtocolFee)
	r.POST("/corridors", h.SetCorridor)
	r.GET("/corridors/:from/:to", h.GetCorridor)
	r.DELETE("/corridors/:from/:to", h.RemoveCorridor)
	r.PUT("/rate-limit", h.SetRateLimit)
	r.PUT("/daily-limit", h.SetDailyLimit)
	r.POST("/blacklist", h.SetBlacklist)
	r.POST("/kyc", h.SetKYC)
	r.POST("/pause", h.Pause)
	r.POST("/unpause", h.Unpause)
	r.POST("/withdraw-fees", h.WithdrawFees)
}

type initializeBody struct {
	Admin          string `json:"admin" binding:"required"`
	TokenAddress   string `json:"tokenAddress" binding:"required"`
	FeeBps         uint32 `json:"feeBps"`
	ProtocolFeeBps uint32 `json:"protocolFeeBps"`
}

// Initialize handles POST /admin/initialize
func (h *Handler) Initialize(c *gin.Context) {
	var body initializeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	adminAddr, ok := validation.ParseAddress(body.Admin)
	if !ok {
		badRequest(c, "admin must be a valid 0x address")
		return
	}
	err := h.service.Initialize(c.Request.Context(), InitializeRequest{
		Admin:          adminAddr,
		TokenAddress:   body.TokenAddress,
		FeeBps:         body.FeeBps,
		ProtocolFeeBps: body.ProtocolFeeBps,
	})
	if err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"initialized": true})
}

type roleBody struct {
	Address string `json:"address" binding:"required"`
	Role    string `json:"role" binding:"required"`
}

// AssignRole handles POST /admin/roles
func (h *Handler) AssignRole(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	var body roleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	addr, ok := validation.ParseAddress(body.Address)
	if !ok {
		badRequest(c, "address must be a valid 0x address")
		return
	}
	if err := h.service.AssignRole(c.Request.Context(), caller, addr, roles.Role(body.Role)); err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assigned": true})
}

// RemoveRole handles DELETE /admin/roles
func (h *Handler) RemoveRole(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	var body roleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	addr, ok := validation.ParseAddress(body.Address)
	if !ok {
		badRequest(c, "address must be a valid 0x address")
		return
	}
	if err := h.service.RemoveRole(c.Request.Context(), caller, addr, roles.Role(body.Role)); err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

type agentBody struct {
	Agent string `json:"agent" binding:"required"`
}

// RegisterAgent handles POST /admin/agents
func (h *Handler) RegisterAgent(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	var body agentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	agent, ok := validation.ParseAddress(body.Agent)
	if !ok {
		badRequest(c, "agent must be a valid 0x address")
		return
	}
	if err := h.service.RegisterAgent(c.Request.Context(), caller, agent); err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"registered": true})
}

// RemoveAgent handles DELETE /admin/agents/:address
func (h *Handler) RemoveAgent(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	agent, ok := validation.ParseAddress(c.Param("address"))
	if !ok {
		badRequest(c, "address must be a valid 0x address")
		return
	}
	if err := h.service.RemoveAgent(c.Request.Context(), caller, agent); err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

type feeBody struct {
	Bps uint32 `json:"bps"`
}

// UpdateFee handles PUT /admin/fee
func (h *Handler) UpdateFee(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	var body feeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if err := h.service.UpdateFee(c.Request.Context(), caller, body.Bps); err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feeBps": body.Bps})
}

// SetProtocolFee handles PUT /admin/protocol-fee
func (h *Handler) SetProtocolFee(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	var body feeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if err := h.service.SetProtocolFeeBps(c.Request.Context(), caller, body.Bps); err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"protocolFeeBps": body.Bps})
}

type corridorBody struct {
	FromCountry    string  `json:"fromCountry" binding:"required"`
	ToCountry      string  `json:"toCountry" binding:"required"`
	Kind           string  `json:"kind" binding:"required"` // percentage | flat | dynamic
	Bps            uint32  `json:"bps"`
	FlatAmount     string  `json:"flatAmount"`
	BaseBps        uint32  `json:"baseBps"`
	ProtocolFeeBps *uint32 `json:"protocolFeeBps"`
}

// SetCorridor handles POST /admin/corridors
func (h *Handler) SetCorridor(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	var body corridorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	var strategy fees.Strategy
	switch fees.StrategyKind(body.Kind) {
	case fees.Percentage:
		strategy = fees.PercentageStrategy(body.Bps)
	case fees.Flat:
		flat, ok := stroops.Parse(body.FlatAmount)
		if !ok {
			badRequest(c, "flatAmount must be a decimal amount")
			return
		}
		strategy = fees.FlatStrategy(flat)
	case fees.Dynamic:
		strategy = fees.DynamicStrategy(body.BaseBps)
	default:
		badRequest(c, "kind must be percentage, flat, or dynamic")
		return
	}

	corridor := fees.Corridor{
		FromCountry:    body.FromCountry,
		ToCountry:      body.ToCountry,
		Strategy:       strategy,
		ProtocolFeeBps: body.ProtocolFeeBps,
	}
	if err := h.service.SetFeeCorridor(c.Request.Context(), caller, corridor); err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"corridor": corridor})
}

// GetCorridor handles GET /admin/corridors/:from/:to
func (h *Handler) GetCorridor(c *gin.Context) {
	corridor, err := h.service.GetFeeCorridor(c.Request.Context(), c.Param("from"), c.Param("to"))
	if err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"corridor": corridor})
}

// RemoveCorridor handles DELETE /admin/corridors/:from/:to
func (h *Handler) RemoveCorridor(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	if err := h.service.RemoveFeeCorridor(c.Request.Context(), caller, c.Param("from"), c.Param("to")); err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

type rateLimitBody struct {
	Enabled       bool   `json:"enabled"`
	MaxOps        uint32 `json:"maxOps"`
	WindowSeconds uint64 `json:"windowSeconds"`
}

// SetRateLimit handles PUT /admin/rate-limit
func (h *Handler) SetRateLimit(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	var body rateLimitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	cfg := guards.RateLimitConfig{
		Enabled:       body.Enabled,
		MaxOps:        body.MaxOps,
		WindowSeconds: body.WindowSeconds,
	}
	if err := h.service.SetRateLimit(c.Request.Context(), caller, cfg); err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rateLimit": cfg})
}

type dailyLimitBody struct {
	Enabled   bool   `json:"enabled"`
	MaxAmount string `json:"maxAmount"`
}

// SetDailyLimit handles PUT /admin/daily-limit
func (h *Handler) SetDailyLimit(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	var body dailyLimitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	cfg := guards.DailyLimitConfig{Enabled: body.Enabled}
	if body.Enabled {
		max, ok := validation.ParseAmount(body.MaxAmount)
		if !ok {
			badRequest(c, "maxAmount must be a positive decimal")
			return
		}
		cfg.MaxAmount = max
	}
	if err := h.service.SetDailyLimit(c.Request.Context(), caller, cfg); err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dailyLimit": cfg})
}

type blacklistBody struct {
	Address     string `json:"address" binding:"required"`
	Blacklisted bool   `json:"blacklisted"`
}

// SetBlacklist handles POST /admin/blacklist
func (h *Handler) SetBlacklist(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	var body blacklistBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	addr, ok := validation.ParseAddress(body.Address)
	if !ok {
		badRequest(c, "address must be a valid 0x address")
		return
	}
	if err := h.service.SetUserBlacklisted(c.Request.Context(), caller, addr, body.Blacklisted); err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blacklisted": body.Blacklisted})
}

type kycBody struct {
	Address  string `json:"address" binding:"required"`
	Approved bool   `json:"approved"`
	Expiry   uint64 `json:"expiry"`
}

// SetKYC handles POST /admin/kyc
func (h *Handler) SetKYC(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	var body kycBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	addr, ok := validation.ParseAddress(body.Address)
	if !ok {
		badRequest(c, "address must be a valid 0x address")
		return
	}
	var err error
	if body.Approved {
		err = h.service.SetKYCApproved(c.Request.Context(), caller, addr, body.Expiry)
	} else {
		err = h.service.RevokeKYC(c.Request.Context(), caller, addr)
	}
	if err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approved": body.Approved})
}

// Pause handles POST /admin/pause
func (h *Handler) Pause(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	if err := h.service.Pause(c.Request.Context(), caller); err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// Unpause handles POST /admin/unpause
func (h *Handler) Unpause(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	if err := h.service.Unpause(c.Request.Context(), caller); err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

type withdrawBody struct {
	To string `json:"to" binding:"required"`
}

// WithdrawFees handles POST /admin/withdraw-fees
func (h *Handler) WithdrawFees(c *gin.Context) {
	caller, ok := validation.Caller(c)
	if !ok {
		return
	}
	var body withdrawBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	to, ok := validation.ParseAddress(body.To)
	if !ok {
		badRequest(c, "to must be a valid 0x address")
		return
	}
	withdrawn, err := h.service.WithdrawFees(c.Request.Context(), caller, to)
	if err != nil {
		validation.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawn": stroops.Format(withdrawn)})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": message,
	})
}
