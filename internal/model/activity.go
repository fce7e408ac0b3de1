package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Activity is one recorded recycling deposit. PointsEarned is computed
// server-side from the material rate at deposit time and never changes
// afterwards, even if the rate does. Immutable once written.
type Activity struct {
	ID             uint64          `gorm:"primaryKey" json:"id"`
	UserID         uint64          `gorm:"not null;index" json:"user_id"`
	MachineID      uint64          `gorm:"not null;index" json:"machine_id"`
	MaterialID     uint64          `gorm:"not null" json:"material_id"`
	Weight         decimal.Decimal `gorm:"type:numeric(8,3);not null" json:"weight"`
	PointsEarned   decimal.Decimal `gorm:"type:numeric(8,2);not null" json:"points_earned"`
	IdempotencyKey *string         `gorm:"size:64;index" json:"-"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"timestamp"`

	Machine  *Machine  `gorm:"foreignKey:MachineID" json:"machine,omitempty"`
	Material *Material `gorm:"foreignKey:MaterialID" json:"material,omitempty"`
}

func (Activity) TableName() string { return "recycling_activity" }
