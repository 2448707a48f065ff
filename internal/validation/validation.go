// Package validation provides shared HTTP-layer validation and error
// translation for the SwiftRemit API.
//
// The engine itself returns errs.Code values; this package is the single
// place those codes are mapped to HTTP statuses, so every handler responds
// uniformly.
package validation

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/swiftremit/swiftremit/internal/errs"
	"github.com/swiftremit/swiftremit/internal/metrics"
	"github.com/swiftremit/swiftremit/internal/stroops"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// CallerHeader carries the principal the request acts as. The demo
// deployment trusts it; production deployments authenticate it upstream.
const CallerHeader = "X-Caller-Address"

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAddress checks if a string is a valid 0x address.
func IsValidAddress(addr string) bool {
	return common.IsHexAddress(addr)
}

// ParseAddress returns the address for a valid 0x string.
func ParseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// Caller extracts and validates the calling principal from the request.
func Caller(c *gin.Context) (common.Address, bool) {
	addr, ok := ParseAddress(c.GetHeader(CallerHeader))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_caller",
			"message": "X-Caller-Address must be a valid 0x address",
		})
		return common.Address{}, false
	}
	return addr, true
}

// ParseAmount converts a decimal stablecoin amount to stroops.
func ParseAmount(s string) (*big.Int, bool) {
	v, ok := stroops.Parse(s)
	if !ok || v.Sign() <= 0 {
		return nil, false
	}
	return v, true
}

// RespondError translates an engine error into a uniform HTTP response.
func RespondError(c *gin.Context, err error) {
	var code errs.Code
	if !errors.As(err, &code) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	metrics.EngineErrorsTotal.WithLabelValues(code.Error()).Inc()

	status := http.StatusInternalServerError
	switch code.Category() {
	case errs.Validation:
		status = http.StatusBadRequest
	case errs.Authorization:
		status = http.StatusForbidden
	case errs.State:
		status = http.StatusConflict
	case errs.Resource:
		status = http.StatusNotFound
	case errs.System:
		status = http.StatusInternalServerError
	}
	// A paused engine and rate limits deserve their conventional statuses.
	switch code {
	case errs.ContractPaused:
		status = http.StatusServiceUnavailable
	case errs.RateLimitExceeded:
		status = http.StatusTooManyRequests
	}

	c.JSON(status, gin.H{
		"error":   code.Error(),
		"code":    uint32(code),
		"message": code.Error(),
	})
}
