package model

import "github.com/shopspring/decimal"

// Material is a recyclable material type and its reward rate.
// Rate edits never rewrite points on historical activities.
type Material struct {
	ID          uint64          `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:100;uniqueIndex;not null" json:"name"`
	PointsPerKG decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"points_per_kg"`
	IsActive    bool            `gorm:"not null;default:true" json:"is_active"`
}

func (Material) TableName() string { return "material_type" }
