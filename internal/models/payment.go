package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Payment - единственный источник правды о платеже.
// Amount хранится в USD (display currency), списание идет в COP.
type Payment struct {
	BaseModel
	UserID   string          `gorm:"not null;index"`
	PlanID   string          `gorm:"not null;index"`
	Provider PaymentProvider `gorm:"type:varchar(20);not null"`
	Amount   float64         `gorm:"not null"`
	Currency string          `gorm:"type:varchar(10);default:'USD'"`
	Status   PaymentStatus   `gorm:"type:varchar(20);default:'pending';index"`

	// Ссылка транзакции на стороне провайдера (ref_payco / tx hash).
	TransactionID string `gorm:"type:varchar(255);uniqueIndex"`
	// Короткий инвойс-код для checkout-страницы и подписи (PAY-XXXXXXXX).
	Reference  string `gorm:"type:varchar(32);index"`
	PaymentURL string `gorm:"type:text"`

	// Произвольные данные провайдера: customer_id для идемпотентных
	// повторов, причина отказа, флаги 3DS и т.д.
	Metadata datatypes.JSONMap `gorm:"type:jsonb"`

	CompletedAt *time.Time
	FailedAt    *time.Time
}

// MakeReference выводит человекочитаемый инвойс-код из id платежа.
func MakeReference(paymentID string) string {
	short := strings.ReplaceAll(paymentID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("PAY-%s", strings.ToUpper(short))
}

// GatewayRef возвращает ссылку транзакции на стороне шлюза, по которой
// можно опрашивать статус. Ранние платежи хранили ее только в TransactionID.
func (p *Payment) GatewayRef() string {
	if ref := p.MetaString("ref_payco"); ref != "" {
		return ref
	}
	return p.TransactionID
}

// MetaString достает строковое значение из metadata, пустая строка если нет.
func (p *Payment) MetaString(key string) string {
	if p.Metadata == nil {
		return ""
	}
	if v, ok := p.Metadata[key].(string); ok {
		return v
	}
	return ""
}
