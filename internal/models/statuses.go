package models

type PaymentStatus string
type PaymentProvider string
type SubscriptionStatus string

const (
	// Статусы платежа. Переходы монотонные:
	// pending -> processing/awaiting_3ds -> completed | rejected | abandoned
	PaymentStatusPending     PaymentStatus = "pending"
	PaymentStatusProcessing  PaymentStatus = "processing"
	PaymentStatusAwaiting3DS PaymentStatus = "awaiting_3ds"
	PaymentStatusCompleted   PaymentStatus = "completed"
	PaymentStatusRejected    PaymentStatus = "rejected"
	PaymentStatusAbandoned   PaymentStatus = "abandoned"

	PaymentProviderEpayco PaymentProvider = "epayco"
	PaymentProviderDaimo  PaymentProvider = "daimo"

	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// IsTerminal сообщает, достиг ли платеж конечного состояния.
// После терминального статуса переходы и повторная активация невозможны.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusRejected, PaymentStatusAbandoned:
		return true
	}
	return false
}

// NonTerminalStatuses - статусы, из которых платеж еще может перейти в
// терминальное состояние. Используется в условных UPDATE'ах репозитория.
func NonTerminalStatuses() []PaymentStatus {
	return []PaymentStatus{
		PaymentStatusPending,
		PaymentStatusProcessing,
		PaymentStatusAwaiting3DS,
	}
}
