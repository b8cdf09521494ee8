// internal/models/crop.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Crop struct {
	BaseModel
	FarmerID      uuid.UUID       `json:"farmer_id" gorm:"type:uuid;not null;index"`
	Name          string          `json:"name" gorm:"size:100;not null;index"`
	Category      string          `json:"category" gorm:"size:50;index"`
	Description   string          `json:"description" gorm:"type:text"`
	Quantity      int             `json:"quantity" gorm:"not null;default:0"`
	Unit          string          `json:"unit" gorm:"size:20;default:'kg'"`
	PricePerUnit  decimal.Decimal `json:"price_per_unit" gorm:"type:decimal(10,2);not null"`
	Location      string          `json:"location" gorm:"size:255;index"`
	AvailableFrom *time.Time      `json:"available_from"`
	Images        []string        `json:"images" gorm:"serializer:json"`
	Status        CropStatus      `json:"status" gorm:"type:varchar(20);default:'available';index"`

	// Relationships
	Farmer *User `json:"farmer,omitempty" gorm:"foreignKey:FarmerID"`
}

// IsWithheld reports whether the farmer has paused ordering on an in-stock crop.
func (c *Crop) IsWithheld() bool {
	return c.Status == CropStatusReserved
}

// StatusForQuantity is the listing status implied by a stock level.
func StatusForQuantity(quantity int) CropStatus {
	if quantity <= 0 {
		return CropStatusSold
	}
	return CropStatusAvailable
}
