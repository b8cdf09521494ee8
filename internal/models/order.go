// internal/models/order.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusDelivered OrderStatus = "delivered"
)

// orderTransitions lists every allowed status change. Anything absent is invalid,
// which makes rejected and delivered terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusRejected},
	OrderStatusConfirmed: {OrderStatusDelivered},
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusRejected, OrderStatusDelivered:
		return true
	}
	return false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

type Order struct {
	BaseModel
	BuyerID           uuid.UUID       `json:"buyer_id" gorm:"type:uuid;not null;index"`
	FarmerID          uuid.UUID       `json:"farmer_id" gorm:"type:uuid;not null;index"`
	CropID            uuid.UUID       `json:"crop_id" gorm:"type:uuid;not null;index"`
	Quantity          int             `json:"quantity" gorm:"not null"`
	PricePerUnit      decimal.Decimal `json:"price_per_unit" gorm:"type:decimal(10,2);not null"`
	Total             decimal.Decimal `json:"total" gorm:"type:decimal(12,2);not null"`
	DeliveryAddress   string          `json:"delivery_address" gorm:"type:text;not null"`
	Status            OrderStatus     `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	PaymentStatus     PaymentStatus   `json:"payment_status" gorm:"type:varchar(20);default:'unpaid';index"`
	ProviderOrderID   string          `json:"provider_order_id,omitempty" gorm:"size:255;index"`
	ProviderPaymentID string          `json:"provider_payment_id,omitempty" gorm:"size:255"`
	ProviderSignature string          `json:"-" gorm:"size:255"`
	StockReleased     bool            `json:"stock_released" gorm:"default:false"`
	RejectionReason   string          `json:"rejection_reason,omitempty" gorm:"type:text"`
	PaidAt            *time.Time      `json:"paid_at"`
	ConfirmedAt       *time.Time      `json:"confirmed_at"`
	RejectedAt        *time.Time      `json:"rejected_at"`
	DeliveredAt       *time.Time      `json:"delivered_at"`

	// Relationships
	Crop   *Crop `json:"crop,omitempty" gorm:"foreignKey:CropID"`
	Buyer  *User `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
	Farmer *User `json:"farmer,omitempty" gorm:"foreignKey:FarmerID"`
}

// ExpectsPayment reports whether a payment can still be attached to the order.
func (o *Order) ExpectsPayment() bool {
	if o.PaymentStatus != PaymentStatusUnpaid {
		return false
	}
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

func (o *Order) IsParty(userID uuid.UUID) bool {
	return o.BuyerID == userID || o.FarmerID == userID
}

// Order event types published after a state change commits.
const (
	EventOrderPlaced    = "order.placed"
	EventOrderConfirmed = "order.confirmed"
	EventOrderRejected  = "order.rejected"
	EventOrderDelivered = "order.delivered"
	EventPaymentPaid    = "payment.paid"
	EventPaymentFailed  = "payment.failed"
	EventPaymentRefund  = "payment.refunded"
)

type OrderEvent struct {
	Type          string          `json:"type"`
	OrderID       uuid.UUID       `json:"order_id"`
	BuyerID       uuid.UUID       `json:"buyer_id"`
	FarmerID      uuid.UUID       `json:"farmer_id"`
	CropID        uuid.UUID       `json:"crop_id"`
	Quantity      int             `json:"quantity"`
	Total         decimal.Decimal `json:"total"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Timestamp     time.Time       `json:"timestamp"`
}

func NewOrderEvent(eventType string, order *Order) *OrderEvent {
	return &OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		FarmerID:      order.FarmerID,
		CropID:        order.CropID,
		Quantity:      order.Quantity,
		Total:         order.Total,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Timestamp:     time.Now().UTC(),
	}
}
