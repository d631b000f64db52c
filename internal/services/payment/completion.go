package payment

import (
	"context"

	"pnptv_backend/internal/gateway"
	"pnptv_backend/internal/logger"
	"pnptv_backend/internal/models"
	"pnptv_backend/internal/repositories"
	"pnptv_backend/internal/security"
	"pnptv_backend/internal/services/subscription"
)

// Completer применяет нормализованный результат шлюза к платежу.
// Это единственная точка завершения: через нее проходят charge-конвейер,
// вебхуки и воркер восстановления. Exactly-once активация держится на
// условном UPDATE в репозитории, а не на этом коде.
type Completer struct {
	payments   repositories.PaymentRepository
	activation *subscription.ActivationService
	guard      *security.Guard
}

func NewCompleter(payments repositories.PaymentRepository, activation *subscription.ActivationService, guard *security.Guard) *Completer {
	return &Completer{
		payments:   payments,
		activation: activation,
		guard:      guard,
	}
}

// Apply переводит платеж по результату шлюза и возвращает итоговый статус.
// Повторный вызов для уже терминального платежа — no-op.
func (c *Completer) Apply(ctx context.Context, p *models.Payment, res gateway.ChargeResult) (models.PaymentStatus, error) {
	ctx = logger.WithPaymentID(ctx, p.ID)

	switch res.Kind {
	case gateway.ResultApproved:
		won, err := c.payments.CompleteIfPending(ctx, p.ID, res.TransactionID, res.Reference)
		if err != nil {
			return p.Status, err
		}
		if !won {
			// Переход уже состоялся (или платеж ретирован). Активацию
			// выполнил победитель, нам остается подтвердить прием.
			logger.CtxInfo(ctx, "completion skipped, payment already terminal",
				"status", string(p.Status))
			return models.PaymentStatusCompleted, nil
		}

		c.guard.ClearCheckoutWindow(ctx, p.ID)

		expiry, err := c.activation.Activate(ctx, p.UserID, p.PlanID)
		if err != nil {
			// Платеж завершен, но активация не прошла. Деньги получены,
			// подписку доигрывает поддержка: откатывать completed нельзя.
			logger.CtxWithError(ctx, err).Error("activation failed after completion",
				"user_id", p.UserID, "plan_id", p.PlanID)
			return models.PaymentStatusCompleted, err
		}
		c.activation.NotifyActivation(ctx, p.UserID, p, expiry)
		return models.PaymentStatusCompleted, nil

	case gateway.ResultPendingChallenge:
		if _, err := c.payments.MarkAwaiting3DS(ctx, p.ID, res.TransactionID, res.Reference); err != nil {
			return p.Status, err
		}
		return models.PaymentStatusAwaiting3DS, nil

	case gateway.ResultRejected:
		won, err := c.payments.MarkRejected(ctx, p.ID, res.Reason)
		if err != nil {
			return p.Status, err
		}
		if won {
			c.guard.ClearCheckoutWindow(ctx, p.ID)
			logger.CtxInfo(ctx, "payment rejected", "reason", res.Reason)
		}
		return models.PaymentStatusRejected, nil
	}

	return p.Status, nil
}
