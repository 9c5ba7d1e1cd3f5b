package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dmcastano/evdex-backend/pkg/enums"
)

// Contribution is a community proposal to add or change a catalog vehicle.
// VehicleData holds the full candidate record as an opaque payload; approval
// replaces the target vehicle's fields wholesale, never a partial merge.
type Contribution struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID                `gorm:"column:user_id;type:uuid;not null"`
	ChangeType      enums.ChangeType         `gorm:"column:change_type;not null"`
	TargetVehicleID *uuid.UUID               `gorm:"column:target_vehicle_id;type:uuid"`
	VehicleData     json.RawMessage          `gorm:"column:vehicle_data;type:jsonb;not null"`
	Status          enums.ContributionStatus `gorm:"column:status;not null;default:'pending'"`

	RejectionComment *string `gorm:"column:rejection_comment"`

	Reviews []ContributionReview `gorm:"foreignKey:ContributionID;constraint:OnDelete:CASCADE"`

	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	ApprovedAt  *time.Time `gorm:"column:approved_at"`
	RejectedAt  *time.Time `gorm:"column:rejected_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`
}
