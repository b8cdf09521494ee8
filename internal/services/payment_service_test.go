package services_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"

	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/testutil"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

func TestCreatePaymentOrder(t *testing.T) {
	f := newMarketFixture(t)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 50, "12.50")
	order := f.placeOrder(t, crop, 3)

	payment, err := f.payments.CreatePaymentOrder(f.ctx, order.ID, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, "fake", payment.Provider)
	assert.Equal(t, "order_test_1", payment.ProviderOrderID)
	assert.Equal(t, int64(3750), payment.Amount)
	assert.Equal(t, "INR", payment.Currency)
	assert.Equal(t, "key_test", payment.KeyID)
	assert.Equal(t, "order_test_1", testutil.ReloadOrder(t, f.db, order.ID).ProviderOrderID)

	_, err = f.payments.CreatePaymentOrder(f.ctx, order.ID, f.farmer.ID)
	assert.ErrorIs(t, err, utils.ErrForbidden)
}

func TestCreatePaymentOrder_GatewayFailure(t *testing.T) {
	f := newMarketFixture(t)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 50, "10")
	order := f.placeOrder(t, crop, 3)
	f.gateway.CreateErr = errors.New("connection refused")

	_, err := f.payments.CreatePaymentOrder(f.ctx, order.ID, f.buyer.ID)
	assert.ErrorIs(t, err, utils.ErrPaymentProvider)
	assert.Empty(t, testutil.ReloadOrder(t, f.db, order.ID).ProviderOrderID)
}

func TestVerifyPayment_IsIdempotent(t *testing.T) {
	f := newMarketFixture(t)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 50, "10")
	order := f.placeOrder(t, crop, 5)

	payment, err := f.payments.CreatePaymentOrder(f.ctx, order.ID, f.buyer.ID)
	require.NoError(t, err)
	req := signedRequest(payment.ProviderOrderID, "pay_abc")

	paid, err := f.payments.VerifyPayment(f.ctx, order.ID, f.buyer.ID, req)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, paid.PaymentStatus)
	assert.Equal(t, "pay_abc", paid.ProviderPaymentID)
	require.NotNil(t, paid.PaidAt)

	again, err := f.payments.VerifyPayment(f.ctx, order.ID, f.buyer.ID, req)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, again.PaymentStatus)
	assert.Equal(t, paid.PaidAt.Unix(), again.PaidAt.Unix())

	// A bad signature against a paid order never downgrades it.
	bad := signedRequest(payment.ProviderOrderID, "pay_abc")
	bad.Signature = "deadbeef"
	_, err = f.payments.VerifyPayment(f.ctx, order.ID, f.buyer.ID, bad)
	assert.ErrorIs(t, err, utils.ErrVerificationFailed)
	assert.Equal(t, models.PaymentStatusPaid, testutil.ReloadOrder(t, f.db, order.ID).PaymentStatus)

	_, err = f.payments.CreatePaymentOrder(f.ctx, order.ID, f.buyer.ID)
	assert.ErrorIs(t, err, utils.ErrAlreadyPaid)

	paidEvents := 0
	for _, eventType := range f.publisher.Types() {
		if eventType == models.EventPaymentPaid {
			paidEvents++
		}
	}
	assert.Equal(t, 1, paidEvents)
}

func TestVerifyPayment_TamperedSignatureFailsAndReleasesStock(t *testing.T) {
	f := newMarketFixture(t)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 50, "10")
	order := f.placeOrder(t, crop, 50)
	assert.Equal(t, models.CropStatusSold, testutil.ReloadCrop(t, f.db, crop.ID).Status)

	payment, err := f.payments.CreatePaymentOrder(f.ctx, order.ID, f.buyer.ID)
	require.NoError(t, err)

	req := signedRequest(payment.ProviderOrderID, "pay_abc")
	req.ProviderPaymentID = "pay_other"
	_, err = f.payments.VerifyPayment(f.ctx, order.ID, f.buyer.ID, req)
	assert.ErrorIs(t, err, utils.ErrVerificationFailed)

	reloaded := testutil.ReloadOrder(t, f.db, order.ID)
	assert.Equal(t, models.PaymentStatusFailed, reloaded.PaymentStatus)
	assert.True(t, reloaded.StockReleased)
	assert.Nil(t, reloaded.PaidAt)

	restored := testutil.ReloadCrop(t, f.db, crop.ID)
	assert.Equal(t, 50, restored.Quantity)
	assert.Equal(t, models.CropStatusAvailable, restored.Status)

	// The failed order can no longer be paid, even with a valid signature.
	_, err = f.payments.VerifyPayment(f.ctx, order.ID, f.buyer.ID, signedRequest(payment.ProviderOrderID, "pay_abc"))
	assert.ErrorIs(t, err, utils.ErrInvalidOrderState)
	assert.Equal(t, models.PaymentStatusFailed, testutil.ReloadOrder(t, f.db, order.ID).PaymentStatus)
	assert.Contains(t, f.publisher.Types(), models.EventPaymentFailed)
}

func TestVerifyPayment_StaleProviderOrderLeavesOrderUnchanged(t *testing.T) {
	f := newMarketFixture(t)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 50, "10")
	order := f.placeOrder(t, crop, 5)

	stale, err := f.payments.CreatePaymentOrder(f.ctx, order.ID, f.buyer.ID)
	require.NoError(t, err)
	current, err := f.payments.CreatePaymentOrder(f.ctx, order.ID, f.buyer.ID)
	require.NoError(t, err)
	require.NotEqual(t, stale.ProviderOrderID, current.ProviderOrderID)

	_, err = f.payments.VerifyPayment(f.ctx, order.ID, f.buyer.ID, signedRequest(stale.ProviderOrderID, "pay_1"))
	assert.ErrorIs(t, err, utils.ErrVerificationFailed)
	assert.Equal(t, models.PaymentStatusUnpaid, testutil.ReloadOrder(t, f.db, order.ID).PaymentStatus)
	assert.Equal(t, 45, testutil.ReloadCrop(t, f.db, crop.ID).Quantity)

	paid, err := f.payments.VerifyPayment(f.ctx, order.ID, f.buyer.ID, signedRequest(current.ProviderOrderID, "pay_2"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, paid.PaymentStatus)
}

func TestVerifyPayment_RejectedOrderCannotBePaid(t *testing.T) {
	f := newMarketFixture(t)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 50, "10")
	order := f.placeOrder(t, crop, 5)

	payment, err := f.payments.CreatePaymentOrder(f.ctx, order.ID, f.buyer.ID)
	require.NoError(t, err)
	_, err = f.orders.Reject(f.ctx, order.ID, f.farmer.ID, "")
	require.NoError(t, err)

	_, err = f.payments.VerifyPayment(f.ctx, order.ID, f.buyer.ID, signedRequest(payment.ProviderOrderID, "pay_1"))
	assert.ErrorIs(t, err, utils.ErrInvalidOrderState)

	reloaded := testutil.ReloadOrder(t, f.db, order.ID)
	assert.Equal(t, models.OrderStatusRejected, reloaded.Status)
	assert.Equal(t, models.PaymentStatusUnpaid, reloaded.PaymentStatus)

	_, err = f.payments.CreatePaymentOrder(f.ctx, order.ID, f.buyer.ID)
	assert.ErrorIs(t, err, utils.ErrInvalidOrderState)
}

func TestVerifyPayment_ConfirmedOrderCanBePaid(t *testing.T) {
	f := newMarketFixture(t)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 50, "10")
	order := f.placeOrder(t, crop, 5)
	_, err := f.orders.Confirm(f.ctx, order.ID, f.farmer.ID)
	require.NoError(t, err)

	paid := f.pay(t, order)
	assert.Equal(t, models.OrderStatusConfirmed, paid.Status)
	assert.Equal(t, models.PaymentStatusPaid, paid.PaymentStatus)
}

// paymentIntentEvent decodes a webhook body the way Stripe sends it.
func paymentIntentEvent(t *testing.T, eventType, intentID string) stripe.Event {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":   "evt_" + intentID,
		"type": eventType,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":     intentID,
				"object": "payment_intent",
			},
		},
	})
	require.NoError(t, err)

	var event stripe.Event
	require.NoError(t, json.Unmarshal(body, &event))
	return event
}

func TestHandleStripeEvent(t *testing.T) {
	f := newMarketFixture(t)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 50, "10")
	order := f.placeOrder(t, crop, 5)
	payment, err := f.payments.CreatePaymentOrder(f.ctx, order.ID, f.buyer.ID)
	require.NoError(t, err)

	succeeded := paymentIntentEvent(t, "payment_intent.succeeded", payment.ProviderOrderID)
	require.NoError(t, f.payments.HandleStripeEvent(f.ctx, succeeded))
	reloaded := testutil.ReloadOrder(t, f.db, order.ID)
	assert.Equal(t, models.PaymentStatusPaid, reloaded.PaymentStatus)
	assert.Equal(t, payment.ProviderOrderID, reloaded.ProviderPaymentID)

	// Redelivery and a late failure are both no-ops.
	require.NoError(t, f.payments.HandleStripeEvent(f.ctx, succeeded))
	require.NoError(t, f.payments.HandleStripeEvent(f.ctx, paymentIntentEvent(t, "payment_intent.payment_failed", payment.ProviderOrderID)))
	assert.Equal(t, models.PaymentStatusPaid, testutil.ReloadOrder(t, f.db, order.ID).PaymentStatus)
	assert.Equal(t, 45, testutil.ReloadCrop(t, f.db, crop.ID).Quantity)

	// Unknown intents and unrelated event types are acknowledged.
	assert.NoError(t, f.payments.HandleStripeEvent(f.ctx, paymentIntentEvent(t, "payment_intent.succeeded", "pi_unknown")))
	assert.NoError(t, f.payments.HandleStripeEvent(f.ctx, paymentIntentEvent(t, "charge.refunded", "ch_1")))
}

func TestHandleStripeEvent_FailureReleasesStock(t *testing.T) {
	f := newMarketFixture(t)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 50, "10")
	order := f.placeOrder(t, crop, 5)
	payment, err := f.payments.CreatePaymentOrder(f.ctx, order.ID, f.buyer.ID)
	require.NoError(t, err)

	failed := paymentIntentEvent(t, "payment_intent.payment_failed", payment.ProviderOrderID)
	require.NoError(t, f.payments.HandleStripeEvent(f.ctx, failed))
	require.NoError(t, f.payments.HandleStripeEvent(f.ctx, failed))

	assert.Equal(t, models.PaymentStatusFailed, testutil.ReloadOrder(t, f.db, order.ID).PaymentStatus)
	assert.Equal(t, 50, testutil.ReloadCrop(t, f.db, crop.ID).Quantity)
}

func TestParseStripeWebhook_DisabledForOtherGateways(t *testing.T) {
	f := newMarketFixture(t)

	_, err := f.payments.ParseStripeWebhook([]byte(`{}`), "t=1,v1=abc")
	assert.ErrorIs(t, err, utils.ErrNotFound)
}
