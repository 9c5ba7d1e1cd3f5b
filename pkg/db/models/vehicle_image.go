package models

import (
	"time"

	"github.com/google/uuid"
)

// VehicleImage is durable, approved media attached to a vehicle. Rows are
// created only by image contribution approval.
type VehicleImage struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VehicleID           uuid.UUID `gorm:"column:vehicle_id;type:uuid;not null" json:"vehicle_id"`
	ImageContributionID uuid.UUID `gorm:"column:image_contribution_id;type:uuid;not null" json:"image_contribution_id"`
	DurableRef          string    `gorm:"column:durable_ref;not null" json:"durable_ref"`
	DisplayOrder        int       `gorm:"column:display_order;not null;default:0" json:"display_order"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
