// internal/services/payment_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"gorm.io/gorm"

	"github.com/agrilink/marketplace-backend/internal/messaging"
	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

type PaymentService struct {
	db            *gorm.DB
	gateway       PaymentGateway
	publisher     messaging.EventPublisher
	notifications *NotificationService
	currency      string
}

type PaymentOrderResponse struct {
	OrderID         uuid.UUID `json:"order_id"`
	Provider        string    `json:"provider"`
	ProviderOrderID string    `json:"provider_order_id"`
	Amount          int64     `json:"amount"` // minor units
	Currency        string    `json:"currency"`
	KeyID           string    `json:"key_id,omitempty"`
	ClientSecret    string    `json:"client_secret,omitempty"`
}

type VerifyPaymentRequest struct {
	ProviderOrderID   string `json:"provider_order_id" validate:"required"`
	ProviderPaymentID string `json:"provider_payment_id" validate:"required"`
	Signature         string `json:"signature" validate:"required"`
}

// stripeEventVerifier is implemented by gateways that receive webhooks.
type stripeEventVerifier interface {
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

func NewPaymentService(db *gorm.DB, gateway PaymentGateway, publisher messaging.EventPublisher, notifications *NotificationService, currency string) *PaymentService {
	return &PaymentService{
		db:            db,
		gateway:       gateway,
		publisher:     publisher,
		notifications: notifications,
		currency:      currency,
	}
}

func (s *PaymentService) loadBuyerOrder(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrOrderNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if order.BuyerID != buyerID {
		return nil, utils.ErrForbidden.WithMessage("only the buyer can pay for this order")
	}
	return &order, nil
}

// CreatePaymentOrder registers the order total with the gateway and stores the
// provider order id the client widget will pay against. Each call creates a
// fresh provider order; only the latest one verifies.
func (s *PaymentService) CreatePaymentOrder(ctx context.Context, orderID, buyerID uuid.UUID) (*PaymentOrderResponse, error) {
	order, err := s.loadBuyerOrder(ctx, orderID, buyerID)
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil, utils.ErrAlreadyPaid
	}
	if !order.ExpectsPayment() {
		return nil, utils.ErrInvalidOrderState.WithMessage(
			fmt.Sprintf("order is %s with payment %s", order.Status, order.PaymentStatus))
	}

	amount := ToMinorUnits(order.Total)
	gatewayOrder, err := s.gateway.CreateOrder(ctx, amount, s.currency, order.ID.String())
	if err != nil {
		return nil, utils.ErrPaymentProvider.Wrap(err)
	}

	result := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", order.ID, models.PaymentStatusUnpaid).
		Update("provider_order_id", gatewayOrder.ID)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to store provider order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		current, err := s.loadBuyerOrder(ctx, orderID, buyerID)
		if err != nil {
			return nil, err
		}
		if current.PaymentStatus == models.PaymentStatusPaid {
			return nil, utils.ErrAlreadyPaid
		}
		return nil, utils.ErrInvalidOrderState
	}

	logrus.WithFields(logrus.Fields{
		"order_id":          order.ID,
		"provider":          s.gateway.Name(),
		"provider_order_id": gatewayOrder.ID,
		"amount":            amount,
	}).Info("Payment order created")

	return &PaymentOrderResponse{
		OrderID:         order.ID,
		Provider:        s.gateway.Name(),
		ProviderOrderID: gatewayOrder.ID,
		Amount:          amount,
		Currency:        s.currency,
		KeyID:           s.gateway.PublicKey(),
		ClientSecret:    gatewayOrder.ClientSecret,
	}, nil
}

// VerifyPayment checks the gateway signature and settles the payment. It is
// idempotent: verifying a paid order again with valid data succeeds without
// changes, and a paid order is never flipped to failed.
func (s *PaymentService) VerifyPayment(ctx context.Context, orderID, buyerID uuid.UUID, req *VerifyPaymentRequest) (*models.Order, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, utils.ErrInvalidInput.Wrap(err)
	}

	order, err := s.loadBuyerOrder(ctx, orderID, buyerID)
	if err != nil {
		return nil, err
	}

	matchesOrder := order.ProviderOrderID != "" && req.ProviderOrderID == order.ProviderOrderID
	valid := matchesOrder && s.gateway.VerifySignature(req.ProviderOrderID, req.ProviderPaymentID, req.Signature)

	if order.PaymentStatus == models.PaymentStatusPaid {
		if valid {
			return order, nil
		}
		return nil, utils.ErrVerificationFailed
	}

	if !order.ExpectsPayment() {
		return nil, utils.ErrInvalidOrderState.WithMessage(
			fmt.Sprintf("order is %s with payment %s", order.Status, order.PaymentStatus))
	}

	// A stale or foreign provider order id is rejected without touching the order.
	if !matchesOrder {
		return nil, utils.ErrVerificationFailed.WithMessage("payment does not belong to this order")
	}

	if !valid {
		logrus.WithFields(logrus.Fields{
			"order_id":            order.ID,
			"provider_payment_id": req.ProviderPaymentID,
		}).Warn("Payment signature mismatch")

		if _, err := s.markFailed(ctx, order.ID); err != nil {
			return nil, err
		}
		return nil, utils.ErrVerificationFailed
	}

	return s.markPaid(ctx, order.ID, req.ProviderPaymentID, req.Signature)
}

// markPaid flips unpaid to paid. Losing the race to another verifier that
// already marked the order paid counts as success.
func (s *PaymentService) markPaid(ctx context.Context, orderID uuid.UUID, providerPaymentID, signature string) (*models.Order, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ? AND status IN ?", orderID, models.PaymentStatusUnpaid,
			[]models.OrderStatus{models.OrderStatusPending, models.OrderStatusConfirmed}).
		Updates(map[string]interface{}{
			"payment_status":      models.PaymentStatusPaid,
			"provider_payment_id": providerPaymentID,
			"provider_signature":  signature,
			"paid_at":             now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to mark order paid: %w", result.Error)
	}

	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if result.RowsAffected == 0 {
		if order.PaymentStatus == models.PaymentStatusPaid {
			return &order, nil
		}
		return nil, utils.ErrInvalidOrderState.WithMessage(
			fmt.Sprintf("order is %s with payment %s", order.Status, order.PaymentStatus))
	}

	logrus.WithFields(logrus.Fields{
		"order_id":            order.ID,
		"provider_payment_id": providerPaymentID,
	}).Info("Payment captured")

	publishOrderEvent(ctx, s.publisher, models.EventPaymentPaid, &order)
	s.notifications.NotifyPaymentUpdate(ctx, &order)
	return &order, nil
}

// markFailed flips unpaid to failed and releases the reserved stock. It
// reports whether this call made the change.
func (s *PaymentService) markFailed(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var order models.Order
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Order{}).
			Where("id = ? AND payment_status = ?", orderID, models.PaymentStatusUnpaid).
			Update("payment_status", models.PaymentStatusFailed)
		if result.Error != nil {
			return fmt.Errorf("failed to mark payment failed: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		changed = true

		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		return releaseStock(tx, &order)
	})
	if err != nil || !changed {
		return false, err
	}

	publishOrderEvent(ctx, s.publisher, models.EventPaymentFailed, &order)
	s.notifications.NotifyPaymentUpdate(ctx, &order)
	return true, nil
}

// ParseStripeWebhook verifies the Stripe-Signature header. It fails with
// NotFound when the configured gateway does not receive webhooks.
func (s *PaymentService) ParseStripeWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	verifier, ok := s.gateway.(stripeEventVerifier)
	if !ok {
		return stripe.Event{}, utils.ErrNotFound.WithMessage("stripe webhooks are not enabled")
	}

	event, err := verifier.ConstructEvent(payload, signatureHeader)
	if err != nil {
		return stripe.Event{}, utils.ErrVerificationFailed.WithMessage("invalid webhook signature").Wrap(err)
	}
	return event, nil
}

// HandleStripeEvent applies payment intent outcomes. Stripe delivers at least
// once, so repeated or late events are acknowledged without changes.
func (s *PaymentService) HandleStripeEvent(ctx context.Context, event stripe.Event) error {
	var succeeded bool
	switch event.Type {
	case "payment_intent.succeeded":
		succeeded = true
	case "payment_intent.payment_failed":
	default:
		logrus.WithField("event_type", event.Type).Debug("Ignoring Stripe event")
		return nil
	}

	if event.Data == nil {
		return utils.ErrInvalidInput.WithMessage("webhook event has no data")
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return utils.ErrInvalidInput.WithMessage("malformed payment intent").Wrap(err)
	}

	var order models.Order
	if err := s.db.WithContext(ctx).Where("provider_order_id = ?", pi.ID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithField("payment_intent_id", pi.ID).Warn("No order for Stripe payment intent")
			return nil
		}
		return fmt.Errorf("database error: %w", err)
	}

	entry := logrus.WithFields(logrus.Fields{
		"event_id":          event.ID,
		"event_type":        event.Type,
		"order_id":          order.ID,
		"payment_intent_id": pi.ID,
	})

	if !succeeded {
		changed, err := s.markFailed(ctx, order.ID)
		if err != nil {
			return err
		}
		if !changed {
			entry.WithField("payment_status", order.PaymentStatus).Info("Skipping duplicate payment webhook")
		}
		return nil
	}

	if _, err := s.markPaid(ctx, order.ID, pi.ID, ""); err != nil {
		if errors.Is(err, utils.ErrInvalidOrderState) {
			entry.WithError(err).Warn("Payment succeeded for an order that no longer accepts payment")
			return nil
		}
		return err
	}
	return nil
}
