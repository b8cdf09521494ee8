// internal/handlers/admin.go
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type AdminHandler struct {
	adminService *services.AdminService
}

func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// GET /admin/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats(c.Request.Context())
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "", stats)
}

// GET /admin/users
func (h *AdminHandler) GetUsers(c *gin.Context) {
	filter := services.AdminUserFilter{
		PaginationParams: utils.GetPaginationParams(c),
		Role:             models.UserRole(c.Query("role")),
	}

	if blocked := c.Query("blocked"); blocked != "" {
		value, err := strconv.ParseBool(blocked)
		if err != nil {
			utils.BadRequestResponse(c, "invalid blocked filter", nil)
			return
		}
		filter.Blocked = &value
	}

	users, total, err := h.adminService.GetUsers(c.Request.Context(), filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(users, total, filter.PaginationParams))
}

// PATCH /admin/users/:id/block
func (h *AdminHandler) BlockUser(c *gin.Context) {
	h.setBlocked(c, true)
}

// PATCH /admin/users/:id/unblock
func (h *AdminHandler) UnblockUser(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *AdminHandler) setBlocked(c *gin.Context, blocked bool) {
	adminID, _ := utils.GetUserIDFromContext(c)
	userID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	user, err := h.adminService.SetUserBlocked(c.Request.Context(), adminID, userID, blocked)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	message := "User unblocked"
	if blocked {
		message = "User blocked"
	}
	utils.SuccessResponse(c, message, user)
}

// DELETE /admin/crops/:id
func (h *AdminHandler) DeleteCrop(c *gin.Context) {
	adminID, _ := utils.GetUserIDFromContext(c)
	cropID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.DeleteCrop(c.Request.Context(), adminID, cropID); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Crop removed", nil)
}

func parseOrderFilter(c *gin.Context) (services.AdminOrderFilter, bool) {
	filter := services.AdminOrderFilter{
		OrderListParams: orderListParams(c),
	}

	for key, dest := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			utils.BadRequestResponse(c, fmt.Sprintf("invalid %s date, expected YYYY-MM-DD", key), nil)
			return filter, false
		}
		if key == "to" {
			// Inclusive of the whole day.
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		*dest = &t
	}

	return filter, true
}

// GET /admin/orders
func (h *AdminHandler) GetOrders(c *gin.Context) {
	filter, ok := parseOrderFilter(c)
	if !ok {
		return
	}

	orders, total, err := h.adminService.GetOrders(c.Request.Context(), filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(orders, total, filter.PaginationParams))
}

// GET /admin/orders/export
func (h *AdminHandler) ExportOrders(c *gin.Context) {
	filter, ok := parseOrderFilter(c)
	if !ok {
		return
	}

	data, err := h.adminService.ExportOrdersXLSX(c.Request.Context(), filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	filename := fmt.Sprintf("orders-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// POST /admin/schemes
func (h *AdminHandler) CreateScheme(c *gin.Context) {
	adminID, _ := utils.GetUserIDFromContext(c)

	var req services.SchemeRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	scheme, err := h.adminService.CreateScheme(c.Request.Context(), adminID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, "Scheme created", scheme)
}

// PUT /admin/schemes/:id
func (h *AdminHandler) UpdateScheme(c *gin.Context) {
	schemeID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.SchemeRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	scheme, err := h.adminService.UpdateScheme(c.Request.Context(), schemeID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Scheme updated", scheme)
}

// DELETE /admin/schemes/:id
func (h *AdminHandler) DeleteScheme(c *gin.Context) {
	schemeID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.DeleteScheme(c.Request.Context(), schemeID); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Scheme deleted", nil)
}
