package api

import (
	"errors"
	"net/http"

	"bridal-order-service/internal/momo"
	"bridal-order-service/internal/service"

	"github.com/gin-gonic/gin"
)

// startPayment opens a MoMo payment for a pending order
func (h *Handler) startPayment(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	resp, err := h.paymentService.StartPayment(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, "Failed to start payment", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// momoIPN receives MoMo's server-to-server notification. MoMo expects
// 204 No Content once the notification is accepted, including replays.
func (h *Handler) momoIPN(c *gin.Context) {
	var payload momo.IPNPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid notification body",
			"details": err.Error(),
		})
		return
	}

	_, err := h.paymentService.HandleIPN(c.Request.Context(), payload)
	if err != nil && !errors.Is(err, service.ErrDuplicateCallback) {
		_ = c.Error(err)
		status := statusForError(err)
		if errors.Is(err, service.ErrSignatureMismatch) {
			c.JSON(status, gin.H{"error": "Invalid signature"})
			return
		}
		c.JSON(status, gin.H{
			"error":   "Notification rejected",
			"details": err.Error(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}
