package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmcastano/evdex-backend/pkg/enums"
)

// ImageContribution is a proposed vehicle image moving through the same
// lifecycle as a vehicle contribution. StagedPath references the object held
// by the file-staging collaborator until a moderator decides; approval
// promotes it into durable storage.
type ImageContribution struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID                `gorm:"column:user_id;type:uuid;not null"`
	VehicleID      uuid.UUID                `gorm:"column:vehicle_id;type:uuid;not null"`
	ContributionID *uuid.UUID               `gorm:"column:contribution_id;type:uuid"`
	StagedPath     string                   `gorm:"column:staged_path;not null"`
	Status         enums.ContributionStatus `gorm:"column:status;not null;default:'pending'"`

	RejectionComment *string `gorm:"column:rejection_comment"`

	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	ApprovedAt  *time.Time `gorm:"column:approved_at"`
	RejectedAt  *time.Time `gorm:"column:rejected_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`
}
