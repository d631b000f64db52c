package security

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"pnptv_backend/internal/cache"
	"pnptv_backend/internal/logger"
	"pnptv_backend/pkg/apperrors"

	"github.com/google/uuid"
)

// Ключи в Redis. Все с TTL, ничего не живет вечно.
const (
	keyChargeLock   = "payment:lock:%s"          // paymentID
	keyCheckout     = "payment:checkout:%s"      // paymentID
	keyWebhookDedup = "webhook:dedup:%s:%s:%s"   // provider, txnID, eventType
	keyRateLimit    = "ratelimit:payments:%s"    // userID
)

var (
	// Последовательность из 13-19 цифр, возможно разбитая пробелами
	// или дефисами. Так выглядит PAN.
	panPattern = regexp.MustCompile(`\d(?:[\s\-]?\d){12,18}`)
	// Отдельно стоящие 3-4 цифры в поле с подозрительным именем - CVV.
	cvvPattern = regexp.MustCompile(`^\d{3,4}$`)
)

// Guard охраняет платежный конвейер: rate limit, запрет сырых карточных
// данных, распределенные блокировки, окно чекаута и дедупликация вебхуков.
type Guard struct {
	cache          *cache.Cache
	rateLimitPerHr int
	lockTTL        time.Duration
	checkoutWindow time.Duration
	dedupTTL       time.Duration
}

// NewGuard создает Guard поверх общего кэша.
func NewGuard(c *cache.Cache, rateLimitPerHr int, lockTTL, checkoutWindow time.Duration) *Guard {
	return &Guard{
		cache:          c,
		rateLimitPerHr: rateLimitPerHr,
		lockTTL:        lockTTL,
		checkoutWindow: checkoutWindow,
		dedupTTL:       24 * time.Hour,
	}
}

// CheckRateLimit считает попытки создания платежа на пользователя
// в скользящем часовом окне.
func (g *Guard) CheckRateLimit(ctx context.Context, userID string) error {
	key := fmt.Sprintf(keyRateLimit, userID)
	n, err := g.cache.Incr(ctx, key, time.Hour)
	if err != nil {
		// Redis недоступен. Пропускаем запрос, но шумно логируем:
		// лучше деградация лимита, чем отказ всем платежам.
		logger.CtxWithError(ctx, err).Warn("rate limit check degraded, allowing request")
		return nil
	}
	if n > int64(g.rateLimitPerHr) {
		logger.SecurityLog("payment_rate_limit_exceeded", "user_id", userID, "attempts", n)
		return apperrors.ErrRateLimited
	}
	return nil
}

// ValidateNoRawCardData проверяет, что в полях запроса нет сырого номера
// карты или CVV. Мы принимаем только одноразовые токены провайдера.
// Значения полей НИКОГДА не логируются, только имена.
func (g *Guard) ValidateNoRawCardData(ctx context.Context, fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			continue
		}
		if panPattern.MatchString(value) {
			logger.SecurityLog("raw_card_data_rejected", "field", name, "reason", "pan_like")
			return apperrors.ErrRawCardData
		}
		lower := strings.ToLower(name)
		if (strings.Contains(lower, "cvv") || strings.Contains(lower, "cvc")) && cvvPattern.MatchString(value) {
			logger.SecurityLog("raw_card_data_rejected", "field", name, "reason", "cvv_like")
			return apperrors.ErrRawCardData
		}
	}
	return nil
}

// AcquireChargeLock берет блокировку на платеж перед отправкой charge.
// Возвращает owner-токен для последующего освобождения. Если блокировку
// держит кто-то другой, возвращается ErrPaymentProcessing.
func (g *Guard) AcquireChargeLock(ctx context.Context, paymentID string) (string, error) {
	owner := uuid.NewString()
	key := fmt.Sprintf(keyChargeLock, paymentID)
	ok, err := g.cache.AcquireLock(ctx, key, owner, g.lockTTL)
	if err != nil {
		return "", apperrors.InternalError("Failed to acquire payment lock", err)
	}
	if !ok {
		logger.SecurityLog("concurrent_charge_blocked", "payment_id", paymentID)
		return "", apperrors.ErrPaymentProcessing
	}
	return owner, nil
}

// ReleaseChargeLock снимает блокировку, если она все еще наша.
// Ошибка здесь не критична, TTL добьет ключ сам.
func (g *Guard) ReleaseChargeLock(ctx context.Context, paymentID, owner string) {
	key := fmt.Sprintf(keyChargeLock, paymentID)
	if err := g.cache.ReleaseLock(ctx, key, owner); err != nil {
		logger.CtxWithError(ctx, err).Warn("failed to release payment lock", "payment_id", paymentID)
	}
}

// StartCheckoutWindow открывает окно чекаута для платежа.
func (g *Guard) StartCheckoutWindow(ctx context.Context, paymentID string) error {
	key := fmt.Sprintf(keyCheckout, paymentID)
	if err := g.cache.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), g.checkoutWindow); err != nil {
		return apperrors.InternalError("Failed to start checkout window", err)
	}
	return nil
}

// CheckoutExpired сообщает, истекло ли окно чекаута. Ключ исчезает
// по TTL, поэтому отсутствие ключа означает истечение.
func (g *Guard) CheckoutExpired(ctx context.Context, paymentID string) (bool, error) {
	key := fmt.Sprintf(keyCheckout, paymentID)
	_, err := g.cache.Get(ctx, key)
	if err == cache.ErrKeyNotFound {
		return true, nil
	}
	if err != nil {
		return false, apperrors.InternalError("Failed to check checkout window", err)
	}
	return false, nil
}

// ClearCheckoutWindow закрывает окно после терминального исхода.
func (g *Guard) ClearCheckoutWindow(ctx context.Context, paymentID string) {
	key := fmt.Sprintf(keyCheckout, paymentID)
	if err := g.cache.Del(ctx, key); err != nil {
		logger.CtxWithError(ctx, err).Warn("failed to clear checkout window", "payment_id", paymentID)
	}
}

// CheckWebhookReplay выполняет first-write-wins дедупликацию вебхука
// по тройке (провайдер, ID транзакции, тип события). Возвращает true,
// если событие видим впервые и его нужно обработать.
func (g *Guard) CheckWebhookReplay(ctx context.Context, provider, txnID, eventType string) (bool, error) {
	key := fmt.Sprintf(keyWebhookDedup, provider, txnID, eventType)
	first, err := g.cache.SetNX(ctx, key, "1", g.dedupTTL)
	if err != nil {
		return false, apperrors.InternalError("Failed to check webhook replay", err)
	}
	if !first {
		logger.SecurityLog("webhook_replay_ignored", "provider", provider, "transaction_id", txnID, "event", eventType)
	}
	return first, nil
}

// ValidateAmount сверяет ожидаемую сумму с суммой из вебхука.
// Допуск 0.01 покрывает ошибки округления при передаче через строки.
func (g *Guard) ValidateAmount(expected, got float64) error {
	if math.Abs(expected-got) > 0.01 {
		logger.SecurityLog("webhook_amount_mismatch", "expected", expected, "got", got)
		return apperrors.ErrAmountMismatch
	}
	return nil
}
