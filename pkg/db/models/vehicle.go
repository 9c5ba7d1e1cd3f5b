package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Vehicle is the canonical catalog row. It is created or overwritten only by
// the approval applier (or direct admin action).
type Vehicle struct {
	ID    uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Make  string    `gorm:"column:make;not null" json:"make"`
	Model string    `gorm:"column:model;not null" json:"model"`
	Year  int       `gorm:"column:year;not null" json:"year"`

	BatteryCapacityKWH *float64         `gorm:"column:battery_capacity_kwh;type:numeric(6,2)" json:"battery_capacity_kwh,omitempty"`
	RangeKM            *int             `gorm:"column:range_km" json:"range_km,omitempty"`
	ChargingSpeedKW    *float64         `gorm:"column:charging_speed_kw;type:numeric(6,2)" json:"charging_speed_kw,omitempty"`
	AccelerationSec    *float64         `gorm:"column:acceleration_sec;type:numeric(4,2)" json:"acceleration_sec,omitempty"`
	TopSpeedKMH        *int             `gorm:"column:top_speed_kmh" json:"top_speed_kmh,omitempty"`
	Price              *decimal.Decimal `gorm:"column:price;type:numeric(12,2)" json:"price,omitempty"`
	ChargePorts        pq.StringArray   `gorm:"column:charge_ports;type:text[]" json:"charge_ports,omitempty"`
	Description        *string          `gorm:"column:description" json:"description,omitempty"`

	Images []VehicleImage `gorm:"foreignKey:VehicleID;constraint:OnDelete:CASCADE" json:"images,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
