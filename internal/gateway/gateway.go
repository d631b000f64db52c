package gateway

import (
	"context"
	"time"
)

// ResultKind — нормализованный исход операции в шлюзе.
// Словарь статусов конкретного провайдера не должен утекать выше этого слоя.
type ResultKind string

const (
	ResultApproved         ResultKind = "approved"
	ResultPendingChallenge ResultKind = "pending_challenge"
	ResultRejected         ResultKind = "rejected"
)

// ChargeResult — нормализованный результат charge или запроса статуса.
type ChargeResult struct {
	Kind          ResultKind
	Reference     string // ссылка провайдера (ref_payco)
	TransactionID string
	RedirectURL   string // только для PendingChallenge (3DS)
	Reason        string // только для Rejected, уже очищенная
}

// ChargeRequest — все, что нужно шлюзу для списания по токену.
// Сырых карточных данных здесь нет и быть не может.
type ChargeRequest struct {
	Token       string
	CustomerID  string
	Invoice     string  // наш Reference (PAY-XXXXXXXX)
	Description string
	Amount      float64 // сумма в валюте расчета (COP)
	Currency    string
	Email       string
	Name        string
	DocType     string
	DocNumber   string
	IP          string
	UserAgent   string
	Fingerprint string // отпечаток браузера для антифрода/3DS-скоринга
	Use3DS      bool
}

// Gateway — граница платежного шлюза.
type Gateway interface {
	// CreateToken токенизирует карту на стороне сервера. Запасной путь,
	// основной поток получает токен от браузера.
	CreateToken(ctx context.Context, cardJSON map[string]string) (string, error)
	// CreateCustomer создает клиента у провайдера и возвращает его ID.
	CreateCustomer(ctx context.Context, token, name, email string) (string, error)
	// CreateCharge отправляет списание. НЕ идемпотентно, никогда не ретраится.
	CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	// GetTransactionStatus запрашивает статус по ссылке провайдера.
	// Идемпотентно, единственная операция, к которой применяется RetryPolicy.
	GetTransactionStatus(ctx context.Context, ref string) (ChargeResult, error)
}

// RetryPolicy — экспоненциальный backoff для идемпотентных запросов статуса.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	CapDelay    time.Duration
}

// DefaultRetryPolicy подходит для опроса статуса из воркера восстановления.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		CapDelay:    5 * time.Second,
	}
}

// Delay возвращает задержку перед попыткой attempt (с нуля).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if d > p.CapDelay || d <= 0 {
		return p.CapDelay
	}
	return d
}
