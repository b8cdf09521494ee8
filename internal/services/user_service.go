// internal/services/user_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

const maxWishlistSize = 100

type UserService struct {
	db *gorm.DB
}

// UpdateProfileRequest covers both account kinds; fields that do not apply to
// the caller's role are ignored.
type UpdateProfileRequest struct {
	Name       *string          `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Phone      *string          `json:"phone,omitempty" validate:"omitempty,phone"`
	Location   *string          `json:"location,omitempty" validate:"omitempty,max=255"`
	LandSize   *decimal.Decimal `json:"land_size,omitempty"`
	CropsGrown []string         `json:"crops_grown,omitempty" validate:"omitempty,max=50,dive,min=1,max=50"`
	Address    *string          `json:"address,omitempty" validate:"omitempty,max=1000"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"password" validate:"required,strong_password"`
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("FarmerProfile").Preload("BuyerProfile").
		First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

// GetFarmerPublicProfile is what buyers see on a farmer's page.
func (s *UserService) GetFarmerPublicProfile(ctx context.Context, farmerID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "name", "role", "created_at").Preload("FarmerProfile").
		First(&user, "id = ? AND role = ? AND is_blocked = ?", farmerID, models.RoleFarmer, false).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrNotFound.WithMessage("farmer not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateProfileRequest) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, utils.ErrInvalidInput.Wrap(err)
	}
	if req.LandSize != nil && req.LandSize.IsNegative() {
		return nil, utils.ErrInvalidInput.WithMessage("land_size cannot be negative")
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userUpdates := make(map[string]interface{})
		if req.Name != nil {
			userUpdates["name"] = strings.TrimSpace(*req.Name)
		}
		if req.Phone != nil {
			userUpdates["phone"] = *req.Phone
		}
		if len(userUpdates) > 0 {
			if err := tx.Model(user).Updates(userUpdates).Error; err != nil {
				return err
			}
		}

		switch {
		case user.FarmerProfile != nil:
			profile := user.FarmerProfile
			if req.Location != nil {
				profile.Location = strings.TrimSpace(*req.Location)
			}
			if req.LandSize != nil {
				profile.LandSize = req.LandSize.Round(2)
			}
			if req.CropsGrown != nil {
				profile.CropsGrown = req.CropsGrown
			}
			return tx.Save(profile).Error
		case user.BuyerProfile != nil:
			if req.Address != nil {
				user.BuyerProfile.Address = strings.TrimSpace(*req.Address)
				return tx.Save(user.BuyerProfile).Error
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return s.GetProfile(ctx, userID)
}

func (s *UserService) ChangePassword(ctx context.Context, userID uuid.UUID, req *ChangePasswordRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrInvalidInput.Wrap(err)
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrUserNotFound
		}
		return fmt.Errorf("database error: %w", err)
	}

	if err := user.CheckPassword(req.OldPassword); err != nil {
		return utils.ErrInvalidCredentials.WithMessage("current password is incorrect")
	}
	if err := user.SetPassword(req.NewPassword); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&user).Update("password_hash", user.PasswordHash).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (s *UserService) buyerProfile(ctx context.Context, buyerID uuid.UUID) (*models.BuyerProfile, error) {
	var profile models.BuyerProfile
	if err := s.db.WithContext(ctx).First(&profile, "user_id = ?", buyerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrNotFound.WithMessage("buyer profile not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &profile, nil
}

// GetWishlist returns the wishlisted crops that still exist.
func (s *UserService) GetWishlist(ctx context.Context, buyerID uuid.UUID) ([]models.Crop, error) {
	profile, err := s.buyerProfile(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	crops := []models.Crop{}
	if len(profile.Wishlist) == 0 {
		return crops, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", profile.Wishlist).Order("created_at DESC").Find(&crops).Error; err != nil {
		return nil, fmt.Errorf("failed to load wishlist: %w", err)
	}
	return crops, nil
}

func (s *UserService) AddToWishlist(ctx context.Context, buyerID, cropID uuid.UUID) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Crop{}).Where("id = ?", cropID).Count(&count).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if count == 0 {
		return utils.ErrCropNotFound
	}

	profile, err := s.buyerProfile(ctx, buyerID)
	if err != nil {
		return err
	}
	if profile.HasInWishlist(cropID) {
		return nil
	}
	if len(profile.Wishlist) >= maxWishlistSize {
		return utils.ErrInvalidInput.WithMessage(fmt.Sprintf("wishlist is limited to %d crops", maxWishlistSize))
	}

	profile.Wishlist = append(profile.Wishlist, cropID)
	return s.saveWishlist(ctx, profile)
}

func (s *UserService) RemoveFromWishlist(ctx context.Context, buyerID, cropID uuid.UUID) error {
	profile, err := s.buyerProfile(ctx, buyerID)
	if err != nil {
		return err
	}

	kept := make([]uuid.UUID, 0, len(profile.Wishlist))
	for _, id := range profile.Wishlist {
		if id != cropID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(profile.Wishlist) {
		return nil
	}

	profile.Wishlist = kept
	return s.saveWishlist(ctx, profile)
}

func (s *UserService) saveWishlist(ctx context.Context, profile *models.BuyerProfile) error {
	if err := s.db.WithContext(ctx).Model(profile).Select("wishlist").Updates(profile).Error; err != nil {
		return fmt.Errorf("failed to save wishlist: %w", err)
	}
	return nil
}
