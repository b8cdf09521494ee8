// internal/services/gateway.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/razorpay/razorpay-go"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/agrilink/marketplace-backend/internal/config"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

// GatewayOrder is the provider-side payment order the client widget pays.
type GatewayOrder struct {
	ID           string
	ClientSecret string
}

// PaymentGateway is the external payment provider. Calls are made once; the
// caller decides whether to retry.
type PaymentGateway interface {
	Name() string
	// PublicKey is safe to hand to the browser widget.
	PublicKey() string
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*GatewayOrder, error)
	VerifySignature(providerOrderID, providerPaymentID, signature string) bool
	Refund(ctx context.Context, providerPaymentID string, amountMinor int64) error
}

func NewPaymentGateway(cfg config.PaymentConfig) (PaymentGateway, error) {
	switch cfg.Provider {
	case "razorpay":
		return NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret), nil
	case "stripe":
		return NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret), nil
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", cfg.Provider)
	}
}

// ToMinorUnits converts a rupee amount to paise.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

type RazorpayGateway struct {
	client    *razorpay.Client
	keyID     string
	keySecret string
}

func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{
		client:    razorpay.NewClient(keyID, keySecret),
		keyID:     keyID,
		keySecret: keySecret,
	}
}

func (g *RazorpayGateway) Name() string { return "razorpay" }

func (g *RazorpayGateway) PublicKey() string { return g.keyID }

func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*GatewayOrder, error) {
	data := map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay order create: %w", err)
	}

	id, ok := body["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("razorpay order create: response has no order id")
	}
	return &GatewayOrder{ID: id}, nil
}

// VerifySignature checks the checkout signature Razorpay returns to the
// client after a successful payment.
func (g *RazorpayGateway) VerifySignature(providerOrderID, providerPaymentID, signature string) bool {
	return utils.VerifyPaymentSignature(g.keySecret, providerOrderID, providerPaymentID, signature)
}

func (g *RazorpayGateway) Refund(ctx context.Context, providerPaymentID string, amountMinor int64) error {
	if _, err := g.client.Payment.Refund(providerPaymentID, int(amountMinor), nil, nil); err != nil {
		return fmt.Errorf("razorpay refund: %w", err)
	}
	return nil
}

type StripeGateway struct {
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{webhookSecret: webhookSecret}
}

func (g *StripeGateway) Name() string { return "stripe" }

// PublicKey is empty: Stripe clients confirm with the intent's client secret.
func (g *StripeGateway) PublicKey() string { return "" }

func (g *StripeGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*GatewayOrder, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(strings.ToLower(currency)),
	}
	params.Context = ctx
	params.AddMetadata("order_id", receipt)

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe payment intent create: %w", err)
	}
	return &GatewayOrder{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// VerifySignature accepts the same HMAC scheme keyed with the webhook secret.
// Stripe payments normally settle through the webhook instead.
func (g *StripeGateway) VerifySignature(providerOrderID, providerPaymentID, signature string) bool {
	return utils.VerifyPaymentSignature(g.webhookSecret, providerOrderID, providerPaymentID, signature)
}

func (g *StripeGateway) Refund(ctx context.Context, providerPaymentID string, amountMinor int64) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(providerPaymentID),
		Amount:        stripe.Int64(amountMinor),
	}
	params.Context = ctx

	if _, err := refund.New(params); err != nil {
		return fmt.Errorf("stripe refund: %w", err)
	}
	return nil
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event.
func (g *StripeGateway) ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
}
