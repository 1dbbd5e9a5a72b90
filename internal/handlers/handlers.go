package handlers

import (
	"context"
	"errors"
	"net/http"

	"tixledger/internal/auth"
	apperrors "tixledger/internal/errors"
	"tixledger/internal/logger"
	"tixledger/internal/middleware"
	"tixledger/internal/models"
	"tixledger/internal/service"

	"github.com/gin-gonic/gin"
)

// AuditSearcher is satisfied by *search.ElasticsearchClient
type AuditSearcher interface {
	Search(ctx context.Context, outcome, externalPaymentID string, size int) ([]models.ReconciliationRecord, error)
}

type Handlers struct {
	services *service.Services
	audit    AuditSearcher
}

// NewHandlers builds the HTTP layer. audit may be nil when the audit index is disabled.
func NewHandlers(services *service.Services, audit AuditSearcher) *Handlers {
	return &Handlers{
		services: services,
		audit:    audit,
	}
}

// Register mounts all routes on r
func (h *Handlers) Register(r gin.IRouter, jwtService *auth.JWTService, webhookSecret string) {
	api := r.Group("/api")

	// Покупки и билеты требуют токен покупателя
	buyer := api.Group("")
	buyer.Use(middleware.JWTAuth(jwtService))
	{
		purchases := buyer.Group("/purchases")
		{
			purchases.POST("", h.CreatePurchase)
			purchases.GET("/:id", h.GetPurchaseStatus)
			purchases.PATCH("/:id/cancel", h.CancelPurchase)
		}

		buyer.GET("/ticket-types/:id/availability", h.GetAvailability)

		tickets := buyer.Group("/tickets")
		{
			tickets.GET("/:purchaseId/qr", h.GetTicketQR)
			tickets.POST("/redeem", middleware.RequireRole(auth.RoleOperator), h.RedeemTicket)
		}

		buyer.GET("/reconciliations", middleware.RequireRole(auth.RoleOperator), h.ListReconciliations)
	}

	// Уведомления провайдера подписаны общим секретом, без токена
	api.POST("/payments/webhook", middleware.WebhookSignature(webhookSecret), h.PaymentWebhook)
}

func buyerID(c *gin.Context) (string, bool) {
	id, ok := middleware.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": apperrors.ErrUnauthorized.Error()})
	}
	return id, ok
}

// respondError maps domain errors onto HTTP statuses. Anything unrecognised is a 500
// and its details stay in the log.
func respondError(c *gin.Context, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrInsufficientStock), errors.Is(err, apperrors.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrTicketTypeInactive), errors.Is(err, apperrors.ErrSaleWindowClosed),
		errors.Is(err, apperrors.ErrPurchaseNotCompleted):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidQuantity), errors.Is(err, apperrors.ErrInvalidQRCode):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperrors.ErrTicketAlreadyUsed):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error(msg, "error", err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
