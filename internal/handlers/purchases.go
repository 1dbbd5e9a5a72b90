package handlers

import (
	"net/http"
	"strconv"

	"tixledger/internal/models"

	"github.com/gin-gonic/gin"
)

// CreatePurchase - POST /api/purchases
// Зарезервировать билеты и создать ожидающий платеж
func (h *Handlers) CreatePurchase(c *gin.Context) {
	userID, ok := buyerID(c)
	if !ok {
		return
	}

	var req models.CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.services.Purchases.CreatePurchase(c.Request.Context(), userID, req.TicketTypeID, req.Quantity)
	if err != nil {
		respondError(c, err, "Failed to create purchase")
		return
	}

	c.JSON(http.StatusCreated, response)
}

// GetPurchaseStatus - GET /api/purchases/:id
// Получить статус оплаты покупки
func (h *Handlers) GetPurchaseStatus(c *gin.Context) {
	userID, ok := buyerID(c)
	if !ok {
		return
	}

	status, err := h.services.Purchases.PurchaseStatus(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get purchase status")
		return
	}

	c.JSON(http.StatusOK, status)
}

// CancelPurchase - PATCH /api/purchases/:id/cancel
// Отменить неоплаченную покупку и вернуть билеты в продажу
func (h *Handlers) CancelPurchase(c *gin.Context) {
	userID, ok := buyerID(c)
	if !ok {
		return
	}

	if err := h.services.Purchases.CancelPurchase(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err, "Failed to cancel purchase")
		return
	}

	c.Status(http.StatusOK)
}

// GetAvailability - GET /api/ticket-types/:id/availability?quantity=n
// Проверить наличие билетов без резервирования
func (h *Handlers) GetAvailability(c *gin.Context) {
	quantity, err := strconv.Atoi(c.DefaultQuery("quantity", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be an integer"})
		return
	}

	response, err := h.services.Purchases.Availability(c.Request.Context(), c.Param("id"), quantity)
	if err != nil {
		respondError(c, err, "Failed to check availability")
		return
	}

	c.JSON(http.StatusOK, response)
}
