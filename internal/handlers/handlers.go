package handlers

// AppHandlers собирает все хэндлеры приложения для регистрации маршрутов.
type AppHandlers struct {
	PaymentHandler *PaymentHandler
	WebhookHandler *WebhookHandler
}
