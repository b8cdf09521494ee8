package services_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/agrilink/marketplace-backend/internal/config"
	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

func TestToMinorUnits(t *testing.T) {
	tests := map[string]int64{
		"0":       0,
		"1":       100,
		"12.5":    1250,
		"37.50":   3750,
		"99.999":  10000,
		"1234.01": 123401,
	}
	for amount, want := range tests {
		assert.Equal(t, want, services.ToMinorUnits(decimal.RequireFromString(amount)), amount)
	}
}

func TestNewPaymentGateway(t *testing.T) {
	razorpay, err := services.NewPaymentGateway(config.PaymentConfig{Provider: "razorpay", RazorpayKeyID: "rzp_test_key"})
	require.NoError(t, err)
	assert.Equal(t, "razorpay", razorpay.Name())
	assert.Equal(t, "rzp_test_key", razorpay.PublicKey())

	stripeGateway, err := services.NewPaymentGateway(config.PaymentConfig{Provider: "stripe"})
	require.NoError(t, err)
	assert.Equal(t, "stripe", stripeGateway.Name())
	assert.Empty(t, stripeGateway.PublicKey())

	_, err = services.NewPaymentGateway(config.PaymentConfig{Provider: "paypal"})
	assert.Error(t, err)
}

func TestRazorpaySignature(t *testing.T) {
	gateway := services.NewRazorpayGateway("rzp_test_key", "rzp_test_secret")
	signature := utils.PaymentSignature("rzp_test_secret", "order_Nx1", "pay_Nx1")

	assert.True(t, gateway.VerifySignature("order_Nx1", "pay_Nx1", signature))
	assert.False(t, gateway.VerifySignature("order_Nx2", "pay_Nx1", signature))

	unconfigured := services.NewRazorpayGateway("rzp_test_key", "")
	assert.False(t, unconfigured.VerifySignature("order_Nx1", "pay_Nx1", utils.PaymentSignature("", "order_Nx1", "pay_Nx1")))
}

func TestStripeConstructEvent(t *testing.T) {
	gateway := services.NewStripeGateway("sk_test_unused", "whsec_test")

	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_1",
		"object":      "event",
		"type":        "payment_intent.succeeded",
		"api_version": stripe.APIVersion,
		"data": map[string]interface{}{
			"object": map[string]interface{}{"id": "pi_1", "object": "payment_intent"},
		},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	event, err := gateway.ConstructEvent(payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)

	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_other",
		Timestamp: time.Now(),
	})
	_, err = gateway.ConstructEvent(payload, forged.Header)
	assert.Error(t, err)
}
