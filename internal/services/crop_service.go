// internal/services/crop_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

const maxCropImages = 8

type CropService struct {
	db *gorm.DB
}

type CreateCropRequest struct {
	Name          string          `json:"name" validate:"required,min=2,max=100"`
	Category      string          `json:"category" validate:"required,max=50"`
	Description   string          `json:"description" validate:"max=5000"`
	Quantity      int             `json:"quantity" validate:"gt=0"`
	Unit          string          `json:"unit" validate:"omitempty,max=20"`
	PricePerUnit  decimal.Decimal `json:"price_per_unit"`
	Location      string          `json:"location" validate:"required,max=255"`
	AvailableFrom *time.Time      `json:"available_from,omitempty"`
	Images        []string        `json:"images,omitempty" validate:"max=8,dive,url"`
}

// UpdateCropRequest applies only the fields that are present.
type UpdateCropRequest struct {
	Name          *string            `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Category      *string            `json:"category,omitempty" validate:"omitempty,max=50"`
	Description   *string            `json:"description,omitempty" validate:"omitempty,max=5000"`
	Quantity      *int               `json:"quantity,omitempty" validate:"omitempty,min=0"`
	Unit          *string            `json:"unit,omitempty" validate:"omitempty,max=20"`
	PricePerUnit  *decimal.Decimal   `json:"price_per_unit,omitempty"`
	Location      *string            `json:"location,omitempty" validate:"omitempty,max=255"`
	AvailableFrom *time.Time         `json:"available_from,omitempty"`
	Images        []string           `json:"images,omitempty" validate:"omitempty,max=8,dive,url"`
	Status        *models.CropStatus `json:"status,omitempty" validate:"omitempty,oneof=available reserved"`
}

type CropSearchParams struct {
	utils.PaginationParams
	Category string
	Location string
	FarmerID *uuid.UUID
	PriceMin *decimal.Decimal
	PriceMax *decimal.Decimal
	InStock  bool
	Viewer   CropViewer
}

// CropViewer is who is looking at listings. Withheld and sold listings are
// only shown to their own farmer and to admins; the zero value is anonymous.
type CropViewer struct {
	UserID  *uuid.UUID
	IsAdmin bool
}

func (v CropViewer) canSee(crop *models.Crop) bool {
	if crop.Status == models.CropStatusAvailable || v.IsAdmin {
		return true
	}
	return v.UserID != nil && *v.UserID == crop.FarmerID
}

func NewCropService(db *gorm.DB) *CropService {
	return &CropService{db: db}
}

func (s *CropService) CreateCrop(ctx context.Context, farmerID uuid.UUID, req *CreateCropRequest) (*models.Crop, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, utils.ErrInvalidInput.Wrap(err)
	}
	if !req.PricePerUnit.IsPositive() {
		return nil, utils.ErrInvalidInput.WithMessage("price_per_unit must be greater than zero")
	}

	unit := req.Unit
	if unit == "" {
		unit = "kg"
	}

	crop := &models.Crop{
		FarmerID:      farmerID,
		Name:          strings.TrimSpace(req.Name),
		Category:      strings.ToLower(strings.TrimSpace(req.Category)),
		Description:   req.Description,
		Quantity:      req.Quantity,
		Unit:          unit,
		PricePerUnit:  req.PricePerUnit.Round(2),
		Location:      strings.TrimSpace(req.Location),
		AvailableFrom: req.AvailableFrom,
		Images:        req.Images,
		Status:        models.CropStatusAvailable,
	}

	if err := s.db.WithContext(ctx).Create(crop).Error; err != nil {
		return nil, fmt.Errorf("failed to create crop: %w", err)
	}

	return crop, nil
}

func (s *CropService) GetCrop(ctx context.Context, id uuid.UUID) (*models.Crop, error) {
	var crop models.Crop
	if err := s.db.WithContext(ctx).Preload("Farmer").Preload("Farmer.FarmerProfile").First(&crop, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrCropNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &crop, nil
}

// GetListing is GetCrop as seen by viewer. A listing the viewer may not
// see is reported as not found.
func (s *CropService) GetListing(ctx context.Context, id uuid.UUID, viewer CropViewer) (*models.Crop, error) {
	crop, err := s.GetCrop(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.canSee(crop) {
		return nil, utils.ErrCropNotFound
	}
	return crop, nil
}

func (s *CropService) findOwnedCrop(ctx context.Context, id, farmerID uuid.UUID) (*models.Crop, error) {
	var crop models.Crop
	if err := s.db.WithContext(ctx).First(&crop, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrCropNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if crop.FarmerID != farmerID {
		return nil, utils.ErrForbidden.WithMessage("you can only manage your own crops")
	}
	return &crop, nil
}

func (s *CropService) UpdateCrop(ctx context.Context, id, farmerID uuid.UUID, req *UpdateCropRequest) (*models.Crop, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, utils.ErrInvalidInput.Wrap(err)
	}

	crop, err := s.findOwnedCrop(ctx, id, farmerID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		updates["category"] = strings.ToLower(strings.TrimSpace(*req.Category))
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Unit != nil {
		updates["unit"] = *req.Unit
	}
	if req.PricePerUnit != nil {
		if !req.PricePerUnit.IsPositive() {
			return nil, utils.ErrInvalidInput.WithMessage("price_per_unit must be greater than zero")
		}
		updates["price_per_unit"] = req.PricePerUnit.Round(2)
	}
	if req.Location != nil {
		updates["location"] = strings.TrimSpace(*req.Location)
	}
	if req.AvailableFrom != nil {
		updates["available_from"] = *req.AvailableFrom
	}

	// Status follows the stock level; a farmer may additionally hold back
	// in-stock produce as reserved. It is only written when the request
	// touches stock or status, and is derived in SQL so an order that sells
	// the crop out meanwhile still leaves it sold.
	var stockGuard *int
	switch {
	case req.Quantity != nil:
		updates["quantity"] = *req.Quantity
		switch {
		case *req.Quantity == 0:
			updates["status"] = models.CropStatusSold
		case req.Status != nil:
			updates["status"] = *req.Status
		default:
			updates["status"] = gorm.Expr("CASE WHEN status = ? THEN ? ELSE ? END",
				models.CropStatusReserved, models.CropStatusReserved, models.CropStatusAvailable)
		}
		// An absolute quantity only applies to the stock level the farmer saw.
		stockGuard = &crop.Quantity
	case req.Status != nil:
		updates["status"] = gorm.Expr("CASE WHEN quantity <= 0 THEN ? ELSE ? END",
			models.CropStatusSold, *req.Status)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			query := tx.Model(&models.Crop{}).Where("id = ?", crop.ID)
			if stockGuard != nil {
				query = query.Where("quantity = ?", *stockGuard)
			}
			result := query.Updates(updates)
			if result.Error != nil {
				return fmt.Errorf("failed to update crop: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return utils.ErrStockChanged
			}
		}
		// A nil slice leaves images alone; an empty one clears them.
		if req.Images != nil {
			if err := tx.Model(crop).Select("images").Updates(&models.Crop{Images: req.Images}).Error; err != nil {
				return fmt.Errorf("failed to update crop images: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetCrop(ctx, id)
}

// EnsureOwner fails unless farmerID owns the crop.
func (s *CropService) EnsureOwner(ctx context.Context, id, farmerID uuid.UUID) error {
	_, err := s.findOwnedCrop(ctx, id, farmerID)
	return err
}

// AddImages appends uploaded image URLs to a crop, keeping at most eight.
func (s *CropService) AddImages(ctx context.Context, id, farmerID uuid.UUID, urls []string) (*models.Crop, error) {
	crop, err := s.findOwnedCrop(ctx, id, farmerID)
	if err != nil {
		return nil, err
	}

	if len(crop.Images)+len(urls) > maxCropImages {
		return nil, utils.ErrInvalidInput.WithMessage(fmt.Sprintf("a crop can have at most %d images", maxCropImages))
	}

	crop.Images = append(crop.Images, urls...)
	if err := s.db.WithContext(ctx).Model(crop).Select("images").Updates(crop).Error; err != nil {
		return nil, fmt.Errorf("failed to save crop images: %w", err)
	}
	return crop, nil
}

// DeleteCrop soft-deletes a crop. The owner or an admin may delete it, but
// never while an order still holds stock from it.
func (s *CropService) DeleteCrop(ctx context.Context, id, userID uuid.UUID, isAdmin bool) error {
	var crop models.Crop
	if err := s.db.WithContext(ctx).First(&crop, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrCropNotFound
		}
		return fmt.Errorf("database error: %w", err)
	}

	if !isAdmin && crop.FarmerID != userID {
		return utils.ErrForbidden.WithMessage("you can only manage your own crops")
	}

	var openOrders int64
	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("crop_id = ? AND status IN ?", id, []models.OrderStatus{models.OrderStatusPending, models.OrderStatusConfirmed}).
		Count(&openOrders).Error; err != nil {
		return fmt.Errorf("failed to check open orders: %w", err)
	}
	if openOrders > 0 {
		return utils.ErrCropHasOpenOrders
	}

	if err := s.db.WithContext(ctx).Delete(&crop).Error; err != nil {
		return fmt.Errorf("failed to delete crop: %w", err)
	}
	return nil
}

// SearchCrops backs the marketplace listing. Only available crops are
// shown, plus the viewer's own listings in any status.
func (s *CropService) SearchCrops(ctx context.Context, params CropSearchParams) ([]models.Crop, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Crop{})

	switch {
	case params.Viewer.IsAdmin:
	case params.Viewer.UserID != nil:
		query = query.Where("(status = ? OR farmer_id = ?)", models.CropStatusAvailable, *params.Viewer.UserID)
	default:
		query = query.Where("status = ?", models.CropStatusAvailable)
	}

	if params.FarmerID != nil {
		query = query.Where("farmer_id = ?", *params.FarmerID)
	}

	if params.Category != "" {
		query = query.Where("category = ?", strings.ToLower(params.Category))
	}

	if params.Location != "" {
		query = query.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(params.Location)+"%")
	}

	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	if params.PriceMin != nil {
		query = query.Where("price_per_unit >= ?", *params.PriceMin)
	}

	if params.PriceMax != nil {
		query = query.Where("price_per_unit <= ?", *params.PriceMax)
	}

	if params.InStock {
		query = query.Where("quantity > 0")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count crops: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "name", "price_per_unit", "quantity"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)

	var crops []models.Crop
	if err := query.Preload("Farmer").Find(&crops).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch crops: %w", err)
	}

	return crops, total, nil
}

func (s *CropService) ListFarmerCrops(ctx context.Context, farmerID uuid.UUID, params utils.PaginationParams) ([]models.Crop, int64, error) {
	return s.SearchCrops(ctx, CropSearchParams{
		PaginationParams: params,
		FarmerID:         &farmerID,
		Viewer:           CropViewer{UserID: &farmerID},
	})
}
