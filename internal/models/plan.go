package models

import "gorm.io/datatypes"

// SubscriptionPlan - read-only справочник тарифов.
// Цена всегда в USD; длительность в днях.
type SubscriptionPlan struct {
	BaseModel
	SKU          string         `gorm:"type:varchar(50);uniqueIndex"`
	Name         string         `gorm:"not null"`
	DisplayName  string
	Price        float64        `gorm:"not null"`
	Currency     string         `gorm:"type:varchar(10);default:'USD'"`
	DurationDays int            `gorm:"not null"`
	Features     datatypes.JSON `gorm:"type:jsonb"`
	IsActive     bool           `gorm:"default:true"`
}
