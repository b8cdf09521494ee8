package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agrilink/marketplace-backend/internal/config"
	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/testutil"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

type marketFixture struct {
	ctx       context.Context
	db        *gorm.DB
	gateway   *testutil.FakeGateway
	publisher *testutil.RecordingPublisher
	orders    *services.OrderService
	payments  *services.PaymentService
	farmer    *models.User
	buyer     *models.User
}

func newMarketFixture(t *testing.T) *marketFixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	gateway := &testutil.FakeGateway{}
	publisher := &testutil.RecordingPublisher{}
	notifications := services.NewNotificationService(db, &config.Config{})

	return &marketFixture{
		ctx:       context.Background(),
		db:        db,
		gateway:   gateway,
		publisher: publisher,
		orders:    services.NewOrderService(db, gateway, publisher, notifications),
		payments:  services.NewPaymentService(db, gateway, publisher, notifications, "INR"),
		farmer:    testutil.CreateUser(t, db, models.RoleFarmer),
		buyer:     testutil.CreateUser(t, db, models.RoleBuyer),
	}
}

func (f *marketFixture) placeOrder(t *testing.T, crop *models.Crop, quantity int) *models.Order {
	t.Helper()
	order, err := f.orders.PlaceOrder(f.ctx, f.buyer.ID, &services.PlaceOrderRequest{
		CropID:          crop.ID,
		Quantity:        quantity,
		DeliveryAddress: "12 Market Road, Pune",
	})
	require.NoError(t, err)
	return order
}

// pay runs the full checkout: provider order, then a correctly signed verification.
func (f *marketFixture) pay(t *testing.T, order *models.Order) *models.Order {
	t.Helper()
	payment, err := f.payments.CreatePaymentOrder(f.ctx, order.ID, f.buyer.ID)
	require.NoError(t, err)

	paid, err := f.payments.VerifyPayment(f.ctx, order.ID, f.buyer.ID, signedRequest(payment.ProviderOrderID, "pay_"+order.ID.String()[:8]))
	require.NoError(t, err)
	return paid
}

func signedRequest(providerOrderID, providerPaymentID string) *services.VerifyPaymentRequest {
	return &services.VerifyPaymentRequest{
		ProviderOrderID:   providerOrderID,
		ProviderPaymentID: providerPaymentID,
		Signature:         utils.PaymentSignature(testutil.GatewaySecret, providerOrderID, providerPaymentID),
	}
}
