package email

// ActivationData — данные письма о подтверждении подписки.
type ActivationData struct {
	FirstName string
	PlanName  string
	AmountUSD float64
	Reference string
	ExpiresAt string
	Language  string
}

// Provider определяет интерфейс для отправки email.
// Отправка всегда некритична: ошибка логируется и не влияет
// на состояние платежа.
type Provider interface {
	// SendActivation отправляет подтверждение активации подписки
	SendActivation(to string, data ActivationData) error
}
