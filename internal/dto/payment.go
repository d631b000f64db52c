package dto

// CreatePaymentRequest — создание платежа под checkout-страницу.
type CreatePaymentRequest struct {
	UserID   string `json:"userId" validate:"required,uuid"`
	PlanID   string `json:"planId" validate:"required"`
	Provider string `json:"provider" validate:"required,is-payment-provider"`
}

// ChargeRequest — отправка токенизированного списания со страницы оплаты.
// Сырых карточных данных здесь нет: token выдает провайдер в браузере.
type ChargeRequest struct {
	Token        string `json:"token" validate:"required,min=8,no-card-data"`
	ConfirmToken string `json:"confirmToken" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name" validate:"required,max=120,no-card-data"`
	DocType      string `json:"docType" validate:"omitempty,max=10"`
	DocNumber    string `json:"docNumber" validate:"omitempty,max=30"`
	Fingerprint  string `json:"fingerprint" validate:"omitempty,max=255"`
	Use3DS       bool   `json:"use3ds"`
}

// PaymentResponse — платеж, как его видит клиент. Суммы маскируются:
// наружу уходят только USD для показа и COP для расчета.
type PaymentResponse struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	Provider      string  `json:"provider"`
	Reference     string  `json:"reference"`
	AmountUSD     float64 `json:"amountUsd"`
	AmountCOP     float64 `json:"amountCop"`
	Currency      string  `json:"currency"`
	PaymentURL    string  `json:"paymentUrl,omitempty"`
	PlanName      string  `json:"planName,omitempty"`
	CreatedAt     string  `json:"createdAt"`
}

// CheckoutResponse — полный payload для hosted checkout-страницы.
type CheckoutResponse struct {
	Payment          PaymentResponse `json:"payment"`
	CheckoutSignature string         `json:"checkoutSignature"`
	ConfirmToken      string         `json:"confirmToken"`
	PublicKey         string         `json:"publicKey"`
	TestMode          bool           `json:"testMode"`
}

// ChargeResponse — исход попытки списания.
type ChargeResponse struct {
	Status      string `json:"status"`
	Reference   string `json:"reference,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	Message     string `json:"message,omitempty"`
}

// StatusResponse — опрос статуса со страницы оплаты.
type StatusResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference,omitempty"`
	Recovered bool   `json:"recovered,omitempty"`
}

// WebhookAck — ответ на вебхук провайдера.
type WebhookAck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
