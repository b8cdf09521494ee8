// internal/models/admin.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Scheme is an admin-authored announcement (government schemes, subsidies).
type Scheme struct {
	BaseModel
	Title       string    `json:"title" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text;not null"`
	Eligibility string    `json:"eligibility" gorm:"type:text"`
	Link        string    `json:"link" gorm:"size:512"`
	CreatedBy   uuid.UUID `json:"created_by" gorm:"type:uuid;not null"`
}

type AuditLog struct {
	BaseModel
	UserID       *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	StatusCode   int        `json:"status_code"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`
}

type Notification struct {
	BaseModel
	UserID         uuid.UUID        `json:"user_id" gorm:"type:uuid;not null;index"`
	Type           NotificationType `json:"type" gorm:"type:varchar(50);not null;index"`
	Title          string           `json:"title" gorm:"size:255;not null"`
	Message        string           `json:"message" gorm:"type:text;not null"`
	RelatedOrderID *uuid.UUID       `json:"related_order_id" gorm:"type:uuid"`
	ReadAt         *time.Time       `json:"read_at"`
}
