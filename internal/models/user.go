package models

import "time"

type User struct {
	BaseModel
	Email     string `gorm:"index"`
	FirstName string
	Language  string `gorm:"type:varchar(5);default:'es'"`

	// Поля подписки мутируются ровно один раз на каждый завершенный платеж
	// (эффект активации).
	SubscriptionStatus SubscriptionStatus `gorm:"type:varchar(20)"`
	PlanID             string             `gorm:"index"`
	SubscriptionExpiry *time.Time
}

// HasActiveSubscription - активна ли подписка прямо сейчас.
func (u *User) HasActiveSubscription(now time.Time) bool {
	return u.SubscriptionStatus == SubscriptionStatusActive &&
		u.SubscriptionExpiry != nil &&
		u.SubscriptionExpiry.After(now)
}
