// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Name         string     `json:"name" gorm:"size:100;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Phone        string     `json:"phone" gorm:"size:20"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	Role         UserRole   `json:"role" gorm:"type:varchar(20);not null;index"`
	IsBlocked    bool       `json:"is_blocked" gorm:"default:false;index"`
	LastLoginAt  *time.Time `json:"last_login_at"`

	// Relationships
	FarmerProfile *FarmerProfile `json:"farmer_profile,omitempty" gorm:"foreignKey:UserID"`
	BuyerProfile  *BuyerProfile  `json:"buyer_profile,omitempty" gorm:"foreignKey:UserID"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

// FarmerProfile extends a farmer account 1:1.
type FarmerProfile struct {
	BaseModel
	UserID     uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;uniqueIndex"`
	LandSize   decimal.Decimal `json:"land_size" gorm:"type:decimal(10,2);default:0"`
	CropsGrown []string        `json:"crops_grown" gorm:"serializer:json"`
	Location   string          `json:"location" gorm:"size:255"`
}

// BuyerProfile extends a buyer account 1:1.
type BuyerProfile struct {
	BaseModel
	UserID   uuid.UUID   `json:"user_id" gorm:"type:uuid;not null;uniqueIndex"`
	Address  string      `json:"address" gorm:"type:text"`
	Wishlist []uuid.UUID `json:"wishlist" gorm:"serializer:json"`
}

func (p *BuyerProfile) HasInWishlist(cropID uuid.UUID) bool {
	for _, id := range p.Wishlist {
		if id == cropID {
			return true
		}
	}
	return false
}
