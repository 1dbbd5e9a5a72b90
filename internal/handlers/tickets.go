package handlers

import (
	"net/http"

	"tixledger/internal/models"

	"github.com/gin-gonic/gin"
)

// GetTicketQR - GET /api/tickets/:purchaseId/qr
// Получить QR-код билета оплаченной покупки
func (h *Handlers) GetTicketQR(c *gin.Context) {
	userID, ok := buyerID(c)
	if !ok {
		return
	}

	png, err := h.services.Tickets.RenderQR(c.Request.Context(), userID, c.Param("purchaseId"))
	if err != nil {
		respondError(c, err, "Failed to generate QR code")
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// RedeemTicket - POST /api/tickets/redeem
// Погасить билет на входе
func (h *Handlers) RedeemTicket(c *gin.Context) {
	var req models.RedeemTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.services.Tickets.Redeem(c.Request.Context(), req.QRData)
	if err != nil {
		respondError(c, err, "Failed to redeem ticket")
		return
	}

	c.JSON(http.StatusOK, response)
}
