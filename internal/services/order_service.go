// internal/services/order_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/agrilink/marketplace-backend/internal/messaging"
	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

type OrderService struct {
	db            *gorm.DB
	gateway       PaymentGateway
	publisher     messaging.EventPublisher
	notifications *NotificationService
}

type PlaceOrderRequest struct {
	CropID          uuid.UUID `json:"crop_id" validate:"required"`
	Quantity        int       `json:"quantity"`
	DeliveryAddress string    `json:"delivery_address" validate:"required,max=1000"`
}

type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required,oneof=confirmed rejected delivered"`
	Reason string             `json:"reason,omitempty" validate:"max=1000"`
}

type OrderListParams struct {
	utils.PaginationParams
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
}

func NewOrderService(db *gorm.DB, gateway PaymentGateway, publisher messaging.EventPublisher, notifications *NotificationService) *OrderService {
	return &OrderService{
		db:            db,
		gateway:       gateway,
		publisher:     publisher,
		notifications: notifications,
	}
}

// PlaceOrder reserves stock and creates a pending, unpaid order in one
// transaction. Price and total are frozen from the crop at this moment.
func (s *OrderService) PlaceOrder(ctx context.Context, buyerID uuid.UUID, req *PlaceOrderRequest) (*models.Order, error) {
	if req.Quantity <= 0 {
		return nil, utils.ErrInvalidQuantity
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, utils.ErrInvalidInput.Wrap(err)
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var crop models.Crop
		if err := tx.First(&crop, "id = ?", req.CropID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrCropNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}

		if crop.FarmerID == buyerID {
			return utils.ErrForbidden.WithMessage("you cannot order your own crop")
		}
		// A sold-out crop reports insufficient stock; only a listing the
		// farmer has withheld is inactive.
		if crop.IsWithheld() {
			return utils.ErrCropInactive
		}
		if req.Quantity > crop.Quantity {
			return utils.ErrInsufficientStock
		}

		if err := decrementStock(tx, crop.ID, req.Quantity); err != nil {
			return err
		}

		order = &models.Order{
			BuyerID:         buyerID,
			FarmerID:        crop.FarmerID,
			CropID:          crop.ID,
			Quantity:        req.Quantity,
			PricePerUnit:    crop.PricePerUnit,
			Total:           crop.PricePerUnit.Mul(decimal.NewFromInt(int64(req.Quantity))),
			DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
			Status:          models.OrderStatusPending,
			PaymentStatus:   models.PaymentStatusUnpaid,
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_id": order.ID,
		"crop_id":  order.CropID,
		"quantity": order.Quantity,
		"total":    order.Total.StringFixed(2),
	}).Info("Order placed")

	publishOrderEvent(ctx, s.publisher, models.EventOrderPlaced, order)
	s.notifications.NotifyOrderPlaced(ctx, order)

	return order, nil
}

// decrementStock takes quantity units from an available crop with a single
// conditional UPDATE, so concurrent orders can never drive stock below zero.
func decrementStock(tx *gorm.DB, cropID uuid.UUID, quantity int) error {
	result := tx.Model(&models.Crop{}).
		Where("id = ? AND status = ? AND quantity >= ?", cropID, models.CropStatusAvailable, quantity).
		Update("quantity", gorm.Expr("quantity - ?", quantity))
	if result.Error != nil {
		return fmt.Errorf("failed to decrement stock: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		var crop models.Crop
		if err := tx.Select("id", "status", "quantity").First(&crop, "id = ?", cropID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrCropNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}
		if crop.IsWithheld() {
			return utils.ErrCropInactive
		}
		return utils.ErrInsufficientStock
	}

	if err := tx.Model(&models.Crop{}).
		Where("id = ? AND quantity = 0", cropID).
		Update("status", models.CropStatusSold).Error; err != nil {
		return fmt.Errorf("failed to mark crop sold: %w", err)
	}
	return nil
}

// releaseStock returns an order's reserved quantity to its crop. The
// stock_released flag is flipped first so the quantity is returned at most once.
func releaseStock(tx *gorm.DB, order *models.Order) error {
	result := tx.Model(&models.Order{}).
		Where("id = ? AND stock_released = ?", order.ID, false).
		Update("stock_released", true)
	if result.Error != nil {
		return fmt.Errorf("failed to flag stock release: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil
	}
	order.StockReleased = true

	if err := tx.Model(&models.Crop{}).Where("id = ?", order.CropID).Updates(map[string]interface{}{
		"quantity": gorm.Expr("quantity + ?", order.Quantity),
		"status":   gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", models.CropStatusSold, models.CropStatusAvailable),
	}).Error; err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	return nil
}

func (s *OrderService) Confirm(ctx context.Context, orderID, farmerID uuid.UUID) (*models.Order, error) {
	return s.UpdateStatus(ctx, orderID, farmerID, models.OrderStatusConfirmed, "")
}

func (s *OrderService) Reject(ctx context.Context, orderID, farmerID uuid.UUID, reason string) (*models.Order, error) {
	return s.UpdateStatus(ctx, orderID, farmerID, models.OrderStatusRejected, reason)
}

func (s *OrderService) Deliver(ctx context.Context, orderID, farmerID uuid.UUID) (*models.Order, error) {
	return s.UpdateStatus(ctx, orderID, farmerID, models.OrderStatusDelivered, "")
}

// UpdateStatus moves an order along pending -> confirmed -> delivered or
// pending -> rejected. Only the order's farmer may do so, and the write is a
// compare-and-set on the current status.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, farmerID uuid.UUID, next models.OrderStatus, reason string) (*models.Order, error) {
	order, err := s.findOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	if order.FarmerID != farmerID {
		return nil, utils.ErrForbidden.WithMessage("only the farmer who received this order can update it")
	}

	if !order.Status.CanTransitionTo(next) {
		return nil, utils.ErrInvalidTransition.WithMessage(
			fmt.Sprintf("cannot change order status from %s to %s", order.Status, next))
	}

	// A failed payment has already released the order's stock.
	if requiresLiveStock(next) && order.PaymentStatus == models.PaymentStatusFailed {
		return nil, utils.ErrInvalidOrderState.WithMessage(
			fmt.Sprintf("cannot mark an order %s after its payment failed", next))
	}

	var refunded bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]interface{}{"status": next}
		switch next {
		case models.OrderStatusConfirmed:
			updates["confirmed_at"] = now
		case models.OrderStatusRejected:
			updates["rejected_at"] = now
			updates["rejection_reason"] = strings.TrimSpace(reason)
		case models.OrderStatusDelivered:
			updates["delivered_at"] = now
		}

		query := tx.Model(&models.Order{}).Where("id = ? AND status = ?", order.ID, order.Status)
		if requiresLiveStock(next) {
			query = query.Where("payment_status <> ? AND stock_released = ?", models.PaymentStatusFailed, false)
		}
		result := query.Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to update order status: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			current, err := s.findOrder(ctx, tx, order.ID)
			if err == nil && current.Status == order.Status && current.PaymentStatus == models.PaymentStatusFailed {
				return utils.ErrInvalidOrderState.WithMessage(
					fmt.Sprintf("cannot mark an order %s after its payment failed", next))
			}
			return utils.ErrInvalidTransition.WithMessage("order was modified concurrently, reload and retry")
		}

		if next != models.OrderStatusRejected {
			return nil
		}

		// Re-read inside the transaction so a payment that landed since the
		// first read is refunded.
		current, err := s.findOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if err := releaseStock(tx, current); err != nil {
			return err
		}
		if current.PaymentStatus == models.PaymentStatusPaid {
			if err := s.refund(ctx, tx, current); err != nil {
				return err
			}
			refunded = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.findOrder(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_id": updated.ID,
		"from":     order.Status,
		"to":       updated.Status,
	}).Info("Order status updated")

	publishOrderEvent(ctx, s.publisher, statusEventType(next), updated)
	if refunded {
		publishOrderEvent(ctx, s.publisher, models.EventPaymentRefund, updated)
	}
	s.notifications.NotifyOrderStatus(ctx, updated)

	return updated, nil
}

// refund returns the buyer's money through the gateway. A gateway failure
// rolls the surrounding transaction back, leaving the order untouched.
func (s *OrderService) refund(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if err := s.gateway.Refund(ctx, order.ProviderPaymentID, ToMinorUnits(order.Total)); err != nil {
		return utils.ErrPaymentProvider.Wrap(err)
	}

	result := tx.Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", order.ID, models.PaymentStatusPaid).
		Update("payment_status", models.PaymentStatusRefunded)
	if result.Error != nil {
		return fmt.Errorf("failed to mark order refunded: %w", result.Error)
	}
	order.PaymentStatus = models.PaymentStatusRefunded
	return nil
}

// requiresLiveStock reports whether moving to next assumes the order still
// holds its reserved stock.
func requiresLiveStock(next models.OrderStatus) bool {
	return next == models.OrderStatusConfirmed || next == models.OrderStatusDelivered
}

func statusEventType(status models.OrderStatus) string {
	switch status {
	case models.OrderStatusConfirmed:
		return models.EventOrderConfirmed
	case models.OrderStatusRejected:
		return models.EventOrderRejected
	default:
		return models.EventOrderDelivered
	}
}

func (s *OrderService) findOrder(ctx context.Context, db *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrOrderNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &order, nil
}

// GetOrder returns an order to its buyer, its farmer or an admin.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID uuid.UUID, isAdmin bool) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Crop").Preload("Buyer").Preload("Farmer").
		First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrOrderNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !isAdmin && !order.IsParty(userID) {
		return nil, utils.ErrForbidden.WithMessage("you are not a party to this order")
	}
	return &order, nil
}

func (s *OrderService) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params OrderListParams) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).Where("buyer_id = ?", buyerID)
	return listOrders(query, params, "Crop", "Farmer")
}

func (s *OrderService) ListFarmerOrders(ctx context.Context, farmerID uuid.UUID, params OrderListParams) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).Where("farmer_id = ?", farmerID)
	return listOrders(query, params, "Crop", "Buyer")
}

func listOrders(query *gorm.DB, params OrderListParams, preloads ...string) ([]models.Order, int64, error) {
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.PaymentStatus != "" {
		query = query.Where("payment_status = ?", params.PaymentStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "total", "status"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)
	for _, preload := range preloads {
		query = query.Preload(preload)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch orders: %w", err)
	}
	return orders, total, nil
}

// publishOrderEvent runs after commit; a broker outage is logged, never
// returned, because the order change has already happened.
func publishOrderEvent(ctx context.Context, publisher messaging.EventPublisher, eventType string, order *models.Order) {
	if err := publisher.PublishOrderEvent(ctx, models.NewOrderEvent(eventType, order)); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"event_type": eventType,
			"order_id":   order.ID,
		}).Warn("Failed to publish order event")
	}
}
