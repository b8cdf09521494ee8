package services_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/testutil"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

func newAdminService(f *marketFixture) *services.AdminService {
	return services.NewAdminService(f.db, services.NewCropService(f.db))
}

func TestAdminDashboardStats(t *testing.T) {
	f := newMarketFixture(t)
	admin := newAdminService(f)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 50, "10")

	paid := f.placeOrder(t, crop, 10)
	f.pay(t, paid)
	f.placeOrder(t, crop, 5)

	stats, err := admin.GetDashboardStats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.TotalFarmers)
	assert.Equal(t, int64(1), stats.TotalBuyers)
	assert.Equal(t, int64(1), stats.ActiveCrops)
	assert.Equal(t, int64(2), stats.TotalOrders)
	assert.Equal(t, int64(2), stats.PendingOrders)
	assert.Equal(t, int64(1), stats.PaidOrders)
	assert.True(t, stats.TotalRevenue.Equal(decimal.NewFromInt(100)), "revenue = %s", stats.TotalRevenue)
}

func TestAdminBlockUser(t *testing.T) {
	f := newMarketFixture(t)
	admin := newAdminService(f)
	adminUser := testutil.CreateUser(t, f.db, models.RoleAdmin)

	blocked, err := admin.SetUserBlocked(f.ctx, adminUser.ID, f.buyer.ID, true)
	require.NoError(t, err)
	assert.True(t, blocked.IsBlocked)

	isBlocked := true
	users, total, err := admin.GetUsers(f.ctx, services.AdminUserFilter{
		PaginationParams: utils.PaginationParams{Page: 1, Limit: 10},
		Blocked:          &isBlocked,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, f.buyer.ID, users[0].ID)

	unblocked, err := admin.SetUserBlocked(f.ctx, adminUser.ID, f.buyer.ID, false)
	require.NoError(t, err)
	assert.False(t, unblocked.IsBlocked)

	_, err = admin.SetUserBlocked(f.ctx, adminUser.ID, adminUser.ID, true)
	assert.ErrorIs(t, err, utils.ErrCannotModerateUser)

	_, err = admin.SetUserBlocked(f.ctx, adminUser.ID, uuid.New(), true)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestAdminOrdersAndExport(t *testing.T) {
	f := newMarketFixture(t)
	admin := newAdminService(f)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 50, "10")

	first := f.placeOrder(t, crop, 3)
	f.placeOrder(t, crop, 4)
	_, err := f.orders.Confirm(f.ctx, first.ID, f.farmer.ID)
	require.NoError(t, err)

	filter := services.AdminOrderFilter{
		OrderListParams: services.OrderListParams{
			PaginationParams: utils.PaginationParams{Page: 1, Limit: 10},
			Status:           models.OrderStatusConfirmed,
		},
	}
	orders, total, err := admin.GetOrders(f.ctx, filter)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, first.ID, orders[0].ID)

	future := time.Now().Add(time.Hour)
	_, total, err = admin.GetOrders(f.ctx, services.AdminOrderFilter{
		OrderListParams: services.OrderListParams{PaginationParams: utils.PaginationParams{Page: 1, Limit: 10}},
		From:            &future,
	})
	require.NoError(t, err)
	assert.Zero(t, total)

	data, err := admin.ExportOrdersXLSX(f.ctx, services.AdminOrderFilter{})
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("Orders")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Order ID", rows[0][0])
	assert.Equal(t, "Delivery Address", rows[0][11])
	assert.Equal(t, "Tomato", rows[1][2])
}

func TestAdminDeleteCropRespectsOpenOrders(t *testing.T) {
	f := newMarketFixture(t)
	admin := newAdminService(f)
	adminUser := testutil.CreateUser(t, f.db, models.RoleAdmin)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 50, "10")
	idle := testutil.CreateCrop(t, f.db, f.farmer.ID, 50, "10")
	f.placeOrder(t, crop, 3)

	assert.ErrorIs(t, admin.DeleteCrop(f.ctx, adminUser.ID, crop.ID), utils.ErrCropHasOpenOrders)
	assert.NoError(t, admin.DeleteCrop(f.ctx, adminUser.ID, idle.ID))
}

func TestSchemes(t *testing.T) {
	f := newMarketFixture(t)
	admin := newAdminService(f)
	adminUser := testutil.CreateUser(t, f.db, models.RoleAdmin)

	scheme, err := admin.CreateScheme(f.ctx, adminUser.ID, &services.SchemeRequest{
		Title:       "PM-KISAN",
		Description: "Income support of 6000 rupees per year for farmer families.",
		Link:        "https://pmkisan.gov.in",
	})
	require.NoError(t, err)
	assert.Equal(t, adminUser.ID, scheme.CreatedBy)

	_, err = admin.CreateScheme(f.ctx, adminUser.ID, &services.SchemeRequest{Title: "x", Description: "short"})
	assert.ErrorIs(t, err, utils.ErrInvalidInput)

	updated, err := admin.UpdateScheme(f.ctx, scheme.ID, &services.SchemeRequest{
		Title:       "PM-KISAN 2026",
		Description: "Income support of 6000 rupees per year for farmer families.",
	})
	require.NoError(t, err)
	assert.Equal(t, "PM-KISAN 2026", updated.Title)

	schemes, total, err := admin.ListSchemes(f.ctx, utils.PaginationParams{Page: 1, Limit: 10, Search: "kisan"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, schemes, 1)

	require.NoError(t, admin.DeleteScheme(f.ctx, scheme.ID))
	assert.ErrorIs(t, admin.DeleteScheme(f.ctx, scheme.ID), utils.ErrSchemeNotFound)
	_, err = admin.GetScheme(f.ctx, scheme.ID)
	assert.ErrorIs(t, err, utils.ErrSchemeNotFound)
}
