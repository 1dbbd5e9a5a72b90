package handlers

import (
	"errors"
	"net/http"

	"tixledger/internal/models"
	"tixledger/internal/service"

	"github.com/gin-gonic/gin"
)

// Payments handlers

// PaymentWebhook - POST /api/payments/webhook
// Принимать уведомления от платежного провайдера. Повторы и неизвестные платежи
// подтверждаются 200, чтобы провайдер не ретраил; 500 только для наших сбоев.
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	var notification models.PaymentNotificationPayload
	if err := c.ShouldBindJSON(&notification); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.services.Reconciler.Reconcile(c.Request.Context(), notification)
	if err != nil {
		if errors.Is(err, service.ErrUnknownEvent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respondError(c, err, "Failed to handle notification")
		return
	}

	c.JSON(http.StatusOK, models.WebhookResponse{Outcome: outcome})
}

// ListReconciliations - GET /api/reconciliations?outcome=mismatch&paymentId=...
// Журнал сверки для ручного разбора оператором
func (h *Handlers) ListReconciliations(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Reconciliation audit is disabled"})
		return
	}

	records, err := h.audit.Search(c.Request.Context(), c.Query("outcome"), c.Query("paymentId"), 100)
	if err != nil {
		respondError(c, err, "Failed to search reconciliations")
		return
	}

	c.JSON(http.StatusOK, records)
}
