// internal/handlers/order.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

type OrderHandler struct {
	orderService *services.OrderService
}

func NewOrderHandler(orderService *services.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

func orderListParams(c *gin.Context) services.OrderListParams {
	return services.OrderListParams{
		PaginationParams: utils.GetPaginationParams(c),
		Status:           models.OrderStatus(c.Query("status")),
		PaymentStatus:    models.PaymentStatus(c.Query("payment_status")),
	}
}

// POST /orders
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	buyerID, _ := utils.GetUserIDFromContext(c)

	var req services.PlaceOrderRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	order, err := h.orderService.PlaceOrder(c.Request.Context(), buyerID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, "Order placed", order)
}

// GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, _ := utils.GetUserIDFromContext(c)
	role, _ := utils.GetUserRoleFromContext(c)
	orderID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID, userID, role == string(models.RoleAdmin))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "", order)
}

// GET /orders/my
func (h *OrderHandler) ListBuyerOrders(c *gin.Context) {
	buyerID, _ := utils.GetUserIDFromContext(c)
	params := orderListParams(c)

	orders, total, err := h.orderService.ListBuyerOrders(c.Request.Context(), buyerID, params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(orders, total, params.PaginationParams))
}

// GET /farmer/orders
func (h *OrderHandler) ListFarmerOrders(c *gin.Context) {
	farmerID, _ := utils.GetUserIDFromContext(c)
	params := orderListParams(c)

	orders, total, err := h.orderService.ListFarmerOrders(c.Request.Context(), farmerID, params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(orders, total, params.PaginationParams))
}

// PATCH /orders/:id/status
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	farmerID, _ := utils.GetUserIDFromContext(c)
	orderID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateOrderStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), orderID, farmerID, req.Status, req.Reason)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Order "+string(order.Status), order)
}

// PATCH /orders/:id/confirm
func (h *OrderHandler) Confirm(c *gin.Context) {
	h.transition(c, models.OrderStatusConfirmed)
}

// PATCH /orders/:id/reject
func (h *OrderHandler) Reject(c *gin.Context) {
	h.transition(c, models.OrderStatusRejected)
}

// PATCH /orders/:id/deliver
func (h *OrderHandler) Deliver(c *gin.Context) {
	h.transition(c, models.OrderStatusDelivered)
}

func (h *OrderHandler) transition(c *gin.Context, next models.OrderStatus) {
	farmerID, _ := utils.GetUserIDFromContext(c)
	orderID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	// The reject reason is optional, so an empty body is fine.
	var req struct {
		Reason string `json:"reason" validate:"max=1000"`
	}
	if c.Request.ContentLength > 0 && !utils.BindAndValidate(c, &req) {
		return
	}

	var (
		order *models.Order
		err   error
	)
	ctx := c.Request.Context()
	switch next {
	case models.OrderStatusConfirmed:
		order, err = h.orderService.Confirm(ctx, orderID, farmerID)
	case models.OrderStatusRejected:
		order, err = h.orderService.Reject(ctx, orderID, farmerID, req.Reason)
	default:
		order, err = h.orderService.Deliver(ctx, orderID, farmerID)
	}
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Order "+string(order.Status), order)
}
