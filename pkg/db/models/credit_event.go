package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmcastano/evdex-backend/pkg/enums"
)

// CreditEvent records an immutable credit issuance to a contributor. A user's
// balance is the sum of their events.
type CreditEvent struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	ContributionID *uuid.UUID            `gorm:"column:contribution_id;type:uuid"`
	Type           enums.CreditEventType `gorm:"column:type;not null"`
	Amount         int                   `gorm:"column:amount;not null"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}
