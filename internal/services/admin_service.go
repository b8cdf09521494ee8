// internal/services/admin_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

const maxExportRows = 50000

type AdminService struct {
	db    *gorm.DB
	crops *CropService
}

type AdminDashboardStats struct {
	TotalUsers        int64           `json:"total_users"`
	TotalFarmers      int64           `json:"total_farmers"`
	TotalBuyers       int64           `json:"total_buyers"`
	BlockedUsers      int64           `json:"blocked_users"`
	NewUsersThisMonth int64           `json:"new_users_this_month"`
	ActiveCrops       int64           `json:"active_crops"`
	TotalOrders       int64           `json:"total_orders"`
	PendingOrders     int64           `json:"pending_orders"`
	DeliveredOrders   int64           `json:"delivered_orders"`
	PaidOrders        int64           `json:"paid_orders"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	MonthlyRevenue    decimal.Decimal `json:"monthly_revenue"`
}

type AdminUserFilter struct {
	utils.PaginationParams
	Role    models.UserRole
	Blocked *bool
}

type AdminOrderFilter struct {
	OrderListParams
	From *time.Time
	To   *time.Time
}

type SchemeRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=255"`
	Description string `json:"description" validate:"required,min=10"`
	Eligibility string `json:"eligibility" validate:"max=5000"`
	Link        string `json:"link" validate:"omitempty,url,max=512"`
}

func NewAdminService(db *gorm.DB, crops *CropService) *AdminService {
	return &AdminService{
		db:    db,
		crops: crops,
	}
}

func (s *AdminService) GetDashboardStats(ctx context.Context) (*AdminDashboardStats, error) {
	stats := &AdminDashboardStats{}
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	db := s.db.WithContext(ctx)

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.TotalUsers, db.Model(&models.User{})},
		{&stats.TotalFarmers, db.Model(&models.User{}).Where("role = ?", models.RoleFarmer)},
		{&stats.TotalBuyers, db.Model(&models.User{}).Where("role = ?", models.RoleBuyer)},
		{&stats.BlockedUsers, db.Model(&models.User{}).Where("is_blocked = ?", true)},
		{&stats.NewUsersThisMonth, db.Model(&models.User{}).Where("created_at >= ?", monthStart)},
		{&stats.ActiveCrops, db.Model(&models.Crop{}).Where("status = ?", models.CropStatusAvailable)},
		{&stats.TotalOrders, db.Model(&models.Order{})},
		{&stats.PendingOrders, db.Model(&models.Order{}).Where("status = ?", models.OrderStatusPending)},
		{&stats.DeliveredOrders, db.Model(&models.Order{}).Where("status = ?", models.OrderStatusDelivered)},
		{&stats.PaidOrders, db.Model(&models.Order{}).Where("payment_status = ?", models.PaymentStatusPaid)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to compute stats: %w", err)
		}
	}

	// Revenue counts money that was captured and kept.
	revenue := func(query *gorm.DB, dest *decimal.Decimal) error {
		return query.Model(&models.Order{}).
			Where("payment_status = ?", models.PaymentStatusPaid).
			Select("COALESCE(SUM(total), 0)").Row().Scan(dest)
	}
	if err := revenue(db, &stats.TotalRevenue); err != nil {
		return nil, fmt.Errorf("failed to compute revenue: %w", err)
	}
	if err := revenue(db.Where("paid_at >= ?", monthStart), &stats.MonthlyRevenue); err != nil {
		return nil, fmt.Errorf("failed to compute revenue: %w", err)
	}

	return stats, nil
}

func (s *AdminService) GetUsers(ctx context.Context, filter AdminUserFilter) ([]models.User, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})

	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.Blocked != nil {
		query = query.Where("is_blocked = ?", *filter.Blocked)
	}
	if filter.Search != "" {
		searchTerm := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	allowedSortFields := []string{"created_at", "name", "email", "last_login_at"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	return users, total, nil
}

// SetUserBlocked blocks or unblocks a farmer or buyer. Blocked users are
// refused by the auth gate on their next request.
func (s *AdminService) SetUserBlocked(ctx context.Context, adminID, userID uuid.UUID, blocked bool) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrNotFound.WithMessage("user not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if user.Role == models.RoleAdmin {
		return nil, utils.ErrCannotModerateUser
	}

	if user.IsBlocked != blocked {
		if err := s.db.WithContext(ctx).Model(&user).Update("is_blocked", blocked).Error; err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
		user.IsBlocked = blocked
	}

	logrus.WithFields(logrus.Fields{
		"admin_id": adminID,
		"user_id":  userID,
		"blocked":  blocked,
	}).Info("User moderation updated")

	return &user, nil
}

func (s *AdminService) DeleteCrop(ctx context.Context, adminID, cropID uuid.UUID) error {
	if err := s.crops.DeleteCrop(ctx, cropID, adminID, true); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"admin_id": adminID,
		"crop_id":  cropID,
	}).Info("Crop removed by admin")
	return nil
}

func (s *AdminService) filteredOrders(ctx context.Context, filter AdminOrderFilter) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	return query
}

func (s *AdminService) GetOrders(ctx context.Context, filter AdminOrderFilter) ([]models.Order, int64, error) {
	return listOrders(s.filteredOrders(ctx, filter), filter.OrderListParams, "Crop", "Buyer", "Farmer")
}

// ExportOrdersXLSX renders the filtered orders as a spreadsheet.
func (s *AdminService) ExportOrdersXLSX(ctx context.Context, filter AdminOrderFilter) ([]byte, error) {
	query := s.filteredOrders(ctx, filter)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PaymentStatus != "" {
		query = query.Where("payment_status = ?", filter.PaymentStatus)
	}

	var orders []models.Order
	if err := query.Preload("Crop").Preload("Buyer").Preload("Farmer").
		Order("created_at DESC").Limit(maxExportRows).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Orders"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to prepare sheet: %w", err)
	}

	header := []interface{}{
		"Order ID", "Placed At", "Crop", "Quantity", "Price Per Unit", "Total",
		"Buyer", "Farmer", "Status", "Payment Status", "Paid At", "Delivery Address",
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", "L1", style)
	}
	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "L", 18)

	for i, order := range orders {
		row := []interface{}{
			order.ID.String(),
			order.CreatedAt.Format(time.RFC3339),
			cropName(order.Crop),
			order.Quantity,
			order.PricePerUnit.InexactFloat64(),
			order.Total.InexactFloat64(),
			userName(order.Buyer),
			userName(order.Farmer),
			string(order.Status),
			string(order.PaymentStatus),
			formatOptionalTime(order.PaidAt),
			order.DeliveryAddress,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render spreadsheet: %w", err)
	}
	return buf.Bytes(), nil
}

func cropName(crop *models.Crop) string {
	if crop == nil {
		return ""
	}
	return crop.Name
}

func userName(user *models.User) string {
	if user == nil {
		return ""
	}
	return user.Name
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Schemes

func (s *AdminService) ListSchemes(ctx context.Context, params utils.PaginationParams) ([]models.Scheme, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Scheme{})
	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count schemes: %w", err)
	}

	var schemes []models.Scheme
	query = utils.ApplySort(query, params, []string{"created_at", "title"})
	if err := utils.ApplyPagination(query, params).Find(&schemes).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch schemes: %w", err)
	}
	return schemes, total, nil
}

func (s *AdminService) GetScheme(ctx context.Context, id uuid.UUID) (*models.Scheme, error) {
	var scheme models.Scheme
	if err := s.db.WithContext(ctx).First(&scheme, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrSchemeNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &scheme, nil
}

func (s *AdminService) CreateScheme(ctx context.Context, adminID uuid.UUID, req *SchemeRequest) (*models.Scheme, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, utils.ErrInvalidInput.Wrap(err)
	}

	scheme := &models.Scheme{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Eligibility: req.Eligibility,
		Link:        req.Link,
		CreatedBy:   adminID,
	}
	if err := s.db.WithContext(ctx).Create(scheme).Error; err != nil {
		return nil, fmt.Errorf("failed to create scheme: %w", err)
	}
	return scheme, nil
}

func (s *AdminService) UpdateScheme(ctx context.Context, id uuid.UUID, req *SchemeRequest) (*models.Scheme, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, utils.ErrInvalidInput.Wrap(err)
	}

	scheme, err := s.GetScheme(ctx, id)
	if err != nil {
		return nil, err
	}

	scheme.Title = strings.TrimSpace(req.Title)
	scheme.Description = req.Description
	scheme.Eligibility = req.Eligibility
	scheme.Link = req.Link
	if err := s.db.WithContext(ctx).Save(scheme).Error; err != nil {
		return nil, fmt.Errorf("failed to update scheme: %w", err)
	}
	return scheme, nil
}

func (s *AdminService) DeleteScheme(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.Scheme{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete scheme: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.ErrSchemeNotFound
	}
	return nil
}
