// internal/handlers/payment.go
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

const maxWebhookBody = 64 << 10

type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// POST /orders/:id/payment
func (h *PaymentHandler) CreatePaymentOrder(c *gin.Context) {
	buyerID, _ := utils.GetUserIDFromContext(c)
	orderID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	response, err := h.paymentService.CreatePaymentOrder(c.Request.Context(), orderID, buyerID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, "Payment order created", response)
}

// POST /orders/:id/payment/verify
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	buyerID, _ := utils.GetUserIDFromContext(c)
	orderID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.VerifyPaymentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	order, err := h.paymentService.VerifyPayment(c.Request.Context(), orderID, buyerID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Payment verified", order)
}

// POST /payments/webhook/stripe
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.BadRequestResponse(c, "unreadable body", nil)
		return
	}

	event, err := h.paymentService.ParseStripeWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		logrus.WithError(err).Warn("Stripe webhook signature verification failed")
		utils.HandleError(c, err)
		return
	}

	if err := h.paymentService.HandleStripeEvent(c.Request.Context(), event); err != nil {
		utils.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
