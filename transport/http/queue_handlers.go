package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/service"
	"github.com/shopspring/decimal"
)

// QueueHandlers serves queue, quota and payment endpoints
type QueueHandlers struct {
	coordinator *service.Coordinator
	quota       *service.QuotaService
	payments    *service.PaymentService
}

// NewQueueHandlers creates queue handlers
func NewQueueHandlers(coordinator *service.Coordinator, quota *service.QuotaService, payments *service.PaymentService) *QueueHandlers {
	return &QueueHandlers{
		coordinator: coordinator,
		quota:       quota,
		payments:    payments,
	}
}

// QueueStatus reports the current pool size
func (h *QueueHandlers) QueueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"queueSize": h.coordinator.QueueSize(),
		"timestamp": time.Now().UnixMilli(),
	})
}

// Quota reports today's usage for a wallet
func (h *QueueHandlers) Quota(c *gin.Context) {
	wallet := c.Query("wallet")
	if wallet == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet required"})
		return
	}

	usage, err := h.quota.Usage(c.Request.Context(), wallet)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Quota unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet":    usage.WalletAddress,
		"day":       usage.Day,
		"used":      usage.Matches,
		"limit":     usage.Allowance(h.quota.Limit()),
		"remaining": usage.Remaining(h.quota.Limit()),
	})
}

// InitiatePayment creates a pending payment reference
func (h *QueueHandlers) InitiatePayment(c *gin.Context) {
	var req struct {
		Wallet string          `json:"wallet" binding:"required"`
		Amount decimal.Decimal `json:"amount"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ref, err := h.payments.Initiate(c.Request.Context(), req.Wallet, req.Amount)
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, core.ErrInvalidPayment) {
			statusCode = http.StatusBadRequest
		}
		c.JSON(statusCode, gin.H{"error": "Failed to initiate payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": ref.ID})
}

// ConfirmPayment applies the payment provider's status callback
func (h *QueueHandlers) ConfirmPayment(c *gin.Context) {
	var req struct {
		Reference     string `json:"reference" binding:"required"`
		TransactionID string `json:"transaction_id"`
		Status        string `json:"status" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ref, err := h.payments.Confirm(c.Request.Context(), req.Reference, req.TransactionID, core.PaymentStatus(req.Status))
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "Failed to confirm payment"

		switch {
		case errors.Is(err, core.ErrPaymentNotFound):
			statusCode = http.StatusNotFound
			errorMsg = "Payment reference not found"
		case errors.Is(err, core.ErrInvalidPayment):
			statusCode = http.StatusBadRequest
			errorMsg = "Invalid payment status"
		}

		c.JSON(statusCode, gin.H{"success": false, "error": errorMsg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": ref.Status == core.PaymentConfirmed,
		"status":  ref.Status,
	})
}

// Healthz is the liveness probe
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
