package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/testutil"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

func TestCreateCrop(t *testing.T) {
	db := testutil.NewTestDB(t)
	crops := services.NewCropService(db)
	farmer := testutil.CreateUser(t, db, models.RoleFarmer)
	ctx := context.Background()

	crop, err := crops.CreateCrop(ctx, farmer.ID, &services.CreateCropRequest{
		Name:         "  Basmati Rice ",
		Category:     "Grains",
		Quantity:     100,
		PricePerUnit: decimal.RequireFromString("45.499"),
		Location:     "Karnal, Haryana",
	})
	require.NoError(t, err)
	assert.Equal(t, "Basmati Rice", crop.Name)
	assert.Equal(t, "grains", crop.Category)
	assert.Equal(t, "kg", crop.Unit)
	assert.Equal(t, models.CropStatusAvailable, crop.Status)
	assert.True(t, crop.PricePerUnit.Equal(decimal.RequireFromString("45.5")))

	_, err = crops.CreateCrop(ctx, farmer.ID, &services.CreateCropRequest{
		Name:         "Wheat",
		Category:     "grains",
		Quantity:     10,
		PricePerUnit: decimal.Zero,
		Location:     "Karnal",
	})
	assert.ErrorIs(t, err, utils.ErrInvalidInput)

	_, err = crops.CreateCrop(ctx, farmer.ID, &services.CreateCropRequest{
		Name:         "Wheat",
		Category:     "grains",
		Quantity:     0,
		PricePerUnit: decimal.NewFromInt(20),
		Location:     "Karnal",
	})
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}

func TestUpdateCrop_StatusFollowsQuantity(t *testing.T) {
	db := testutil.NewTestDB(t)
	crops := services.NewCropService(db)
	farmer := testutil.CreateUser(t, db, models.RoleFarmer)
	crop := testutil.CreateCrop(t, db, farmer.ID, 10, "30")
	ctx := context.Background()

	zero := 0
	updated, err := crops.UpdateCrop(ctx, crop.ID, farmer.ID, &services.UpdateCropRequest{Quantity: &zero})
	require.NoError(t, err)
	assert.Equal(t, models.CropStatusSold, updated.Status)

	restock := 25
	updated, err = crops.UpdateCrop(ctx, crop.ID, farmer.ID, &services.UpdateCropRequest{Quantity: &restock})
	require.NoError(t, err)
	assert.Equal(t, models.CropStatusAvailable, updated.Status)
	assert.Equal(t, 25, updated.Quantity)

	reserved := models.CropStatusReserved
	updated, err = crops.UpdateCrop(ctx, crop.ID, farmer.ID, &services.UpdateCropRequest{Status: &reserved})
	require.NoError(t, err)
	assert.Equal(t, models.CropStatusReserved, updated.Status)

	// Editing the price keeps a withheld crop withheld.
	price := decimal.NewFromInt(35)
	updated, err = crops.UpdateCrop(ctx, crop.ID, farmer.ID, &services.UpdateCropRequest{PricePerUnit: &price})
	require.NoError(t, err)
	assert.Equal(t, models.CropStatusReserved, updated.Status)
	assert.True(t, updated.PricePerUnit.Equal(price))

	other := testutil.CreateUser(t, db, models.RoleFarmer)
	_, err = crops.UpdateCrop(ctx, crop.ID, other.ID, &services.UpdateCropRequest{PricePerUnit: &price})
	assert.ErrorIs(t, err, utils.ErrForbidden)

	_, err = crops.UpdateCrop(ctx, uuid.New(), farmer.ID, &services.UpdateCropRequest{PricePerUnit: &price})
	assert.ErrorIs(t, err, utils.ErrCropNotFound)
}

func TestUpdateCrop_RenameKeepsConcurrentSellOut(t *testing.T) {
	f := newMarketFixture(t)
	crops := services.NewCropService(f.db)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 5, "30")

	testutil.AfterNextRead(t, f.db, "crops", func(*gorm.DB) {
		f.placeOrder(t, crop, 5)
	})

	name := "Cherry Tomato"
	updated, err := crops.UpdateCrop(f.ctx, crop.ID, f.farmer.ID, &services.UpdateCropRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Cherry Tomato", updated.Name)
	assert.Equal(t, 0, updated.Quantity)
	assert.Equal(t, models.CropStatusSold, updated.Status)
}

func TestUpdateCrop_StatusRacingSellOut(t *testing.T) {
	f := newMarketFixture(t)
	crops := services.NewCropService(f.db)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 5, "30")

	testutil.AfterNextRead(t, f.db, "crops", func(*gorm.DB) {
		f.placeOrder(t, crop, 5)
	})

	available := models.CropStatusAvailable
	updated, err := crops.UpdateCrop(f.ctx, crop.ID, f.farmer.ID, &services.UpdateCropRequest{Status: &available})
	require.NoError(t, err)
	assert.Equal(t, models.CropStatusSold, updated.Status)
}

func TestUpdateCrop_QuantityRejectedWhenStockMoved(t *testing.T) {
	f := newMarketFixture(t)
	crops := services.NewCropService(f.db)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 10, "30")

	testutil.AfterNextRead(t, f.db, "crops", func(*gorm.DB) {
		f.placeOrder(t, crop, 4)
	})

	restock := 20
	name := "Roma Tomato"
	_, err := crops.UpdateCrop(f.ctx, crop.ID, f.farmer.ID, &services.UpdateCropRequest{Quantity: &restock, Name: &name})
	assert.ErrorIs(t, err, utils.ErrStockChanged)

	reloaded := testutil.ReloadCrop(t, f.db, crop.ID)
	assert.Equal(t, 6, reloaded.Quantity)
	assert.Equal(t, "Tomato", reloaded.Name)

	// Retrying against the fresh stock level succeeds.
	updated, err := crops.UpdateCrop(f.ctx, crop.ID, f.farmer.ID, &services.UpdateCropRequest{Quantity: &restock})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.Quantity)
	assert.Equal(t, models.CropStatusAvailable, updated.Status)
}

func TestUpdateCrop_Images(t *testing.T) {
	db := testutil.NewTestDB(t)
	crops := services.NewCropService(db)
	farmer := testutil.CreateUser(t, db, models.RoleFarmer)
	crop := testutil.CreateCrop(t, db, farmer.ID, 10, "30")
	ctx := context.Background()

	images := []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"}
	updated, err := crops.UpdateCrop(ctx, crop.ID, farmer.ID, &services.UpdateCropRequest{Images: images})
	require.NoError(t, err)
	assert.Equal(t, images, updated.Images)

	price := decimal.NewFromInt(32)
	updated, err = crops.UpdateCrop(ctx, crop.ID, farmer.ID, &services.UpdateCropRequest{PricePerUnit: &price})
	require.NoError(t, err)
	assert.Equal(t, images, updated.Images, "omitted images are left alone")

	updated, err = crops.UpdateCrop(ctx, crop.ID, farmer.ID, &services.UpdateCropRequest{Images: []string{}})
	require.NoError(t, err)
	assert.Empty(t, updated.Images)
	assert.Empty(t, testutil.ReloadCrop(t, db, crop.ID).Images)
}

func TestAddImages_Limit(t *testing.T) {
	db := testutil.NewTestDB(t)
	crops := services.NewCropService(db)
	farmer := testutil.CreateUser(t, db, models.RoleFarmer)
	crop := testutil.CreateCrop(t, db, farmer.ID, 10, "30")
	ctx := context.Background()

	urls := make([]string, 6)
	for i := range urls {
		urls[i] = "https://cdn.example.com/crop.jpg"
	}
	updated, err := crops.AddImages(ctx, crop.ID, farmer.ID, urls)
	require.NoError(t, err)
	assert.Len(t, updated.Images, 6)

	_, err = crops.AddImages(ctx, crop.ID, farmer.ID, urls[:3])
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
	assert.Len(t, testutil.ReloadCrop(t, db, crop.ID).Images, 6)

	assert.ErrorIs(t, crops.EnsureOwner(ctx, crop.ID, uuid.New()), utils.ErrForbidden)
	assert.NoError(t, crops.EnsureOwner(ctx, crop.ID, farmer.ID))
}

func TestDeleteCrop_BlockedByOpenOrders(t *testing.T) {
	f := newMarketFixture(t)
	crops := services.NewCropService(f.db)
	crop := testutil.CreateCrop(t, f.db, f.farmer.ID, 10, "30")
	order := f.placeOrder(t, crop, 2)

	err := crops.DeleteCrop(f.ctx, crop.ID, f.farmer.ID, false)
	assert.ErrorIs(t, err, utils.ErrCropHasOpenOrders)

	_, err = f.orders.Reject(f.ctx, order.ID, f.farmer.ID, "")
	require.NoError(t, err)

	err = crops.DeleteCrop(f.ctx, crop.ID, f.buyer.ID, false)
	assert.ErrorIs(t, err, utils.ErrForbidden)

	require.NoError(t, crops.DeleteCrop(f.ctx, crop.ID, f.farmer.ID, false))
	_, err = crops.GetCrop(f.ctx, crop.ID)
	assert.ErrorIs(t, err, utils.ErrCropNotFound)
}

func TestSearchCrops_Filters(t *testing.T) {
	db := testutil.NewTestDB(t)
	crops := services.NewCropService(db)
	farmer := testutil.CreateUser(t, db, models.RoleFarmer)
	ctx := context.Background()

	cheap := testutil.CreateCrop(t, db, farmer.ID, 10, "8")
	testutil.CreateCrop(t, db, farmer.ID, 10, "40")
	soldOut := testutil.CreateCrop(t, db, farmer.ID, 0, "20")

	onion := testutil.CreateCrop(t, db, farmer.ID, 5, "15")
	require.NoError(t, db.Model(onion).Updates(map[string]interface{}{
		"name":     "Red Onion",
		"category": "bulbs",
		"location": "Lasalgaon",
	}).Error)

	page := utils.PaginationParams{Page: 1, Limit: 10}

	results, total, err := crops.SearchCrops(ctx, services.CropSearchParams{PaginationParams: page})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total, "sold crops are hidden from the marketplace")
	for _, crop := range results {
		assert.NotEqual(t, soldOut.ID, crop.ID)
	}

	maxPrice := decimal.NewFromInt(10)
	results, total, err = crops.SearchCrops(ctx, services.CropSearchParams{PaginationParams: page, PriceMax: &maxPrice})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, cheap.ID, results[0].ID)

	_, total, err = crops.SearchCrops(ctx, services.CropSearchParams{PaginationParams: page, Category: "Bulbs"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, total, err = crops.SearchCrops(ctx, services.CropSearchParams{PaginationParams: page, Location: "lasal"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	search := page
	search.Search = "onion"
	_, total, err = crops.SearchCrops(ctx, services.CropSearchParams{PaginationParams: search})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, total, err = crops.ListFarmerCrops(ctx, farmer.ID, page)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total, "farmers see their sold crops too")
}

func TestCropVisibility_ByViewer(t *testing.T) {
	db := testutil.NewTestDB(t)
	crops := services.NewCropService(db)
	farmer := testutil.CreateUser(t, db, models.RoleFarmer)
	buyer := testutil.CreateUser(t, db, models.RoleBuyer)
	ctx := context.Background()

	listed := testutil.CreateCrop(t, db, farmer.ID, 10, "20")
	soldOut := testutil.CreateCrop(t, db, farmer.ID, 0, "20")
	withheld := testutil.CreateCrop(t, db, farmer.ID, 10, "20")
	require.NoError(t, db.Model(withheld).Update("status", models.CropStatusReserved).Error)

	anonymous := services.CropViewer{}
	owner := services.CropViewer{UserID: &farmer.ID}
	stranger := services.CropViewer{UserID: &buyer.ID}
	admin := services.CropViewer{UserID: &buyer.ID, IsAdmin: true}

	for _, viewer := range []services.CropViewer{anonymous, stranger} {
		_, err := crops.GetListing(ctx, listed.ID, viewer)
		assert.NoError(t, err)
		_, err = crops.GetListing(ctx, withheld.ID, viewer)
		assert.ErrorIs(t, err, utils.ErrCropNotFound)
		_, err = crops.GetListing(ctx, soldOut.ID, viewer)
		assert.ErrorIs(t, err, utils.ErrCropNotFound)
	}
	for _, viewer := range []services.CropViewer{owner, admin} {
		got, err := crops.GetListing(ctx, withheld.ID, viewer)
		require.NoError(t, err)
		assert.Equal(t, models.CropStatusReserved, got.Status)
	}

	page := utils.PaginationParams{Page: 1, Limit: 10}
	tests := []struct {
		name   string
		viewer services.CropViewer
		want   int64
	}{
		{"anonymous", anonymous, 1},
		{"another user", stranger, 1},
		{"owning farmer", owner, 3},
		{"admin", admin, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := crops.SearchCrops(ctx, services.CropSearchParams{
				PaginationParams: page,
				FarmerID:         &farmer.ID,
				Viewer:           tt.viewer,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
		})
	}
}
