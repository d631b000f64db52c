package workers

import (
	"context"
	"time"

	"pnptv_backend/internal/config"
	"pnptv_backend/internal/gateway"
	"pnptv_backend/internal/logger"
	"pnptv_backend/internal/models"
	"pnptv_backend/internal/repositories"
	paymentsvc "pnptv_backend/internal/services/payment"
)

// PaymentWorker доводит до конца платежи, не дождавшиеся вебхука,
// и ретирует брошенные. Обе задачи проходят через ту же точку завершения,
// что и вебхуки, поэтому гонка с живым вебхуком безопасна.
type PaymentWorker struct {
	cfg       *config.Config
	payments  repositories.PaymentRepository
	epayco    gateway.Gateway
	completer *paymentsvc.Completer
}

func NewPaymentWorker(cfg *config.Config, payments repositories.PaymentRepository, epayco gateway.Gateway, completer *paymentsvc.Completer) *PaymentWorker {
	return &PaymentWorker{
		cfg:       cfg,
		payments:  payments,
		epayco:    epayco,
		completer: completer,
	}
}

// Start запускает фоновые задачи платежей
func (w *PaymentWorker) Start(ctx context.Context) {
	// Восстановление зависших платежей
	go w.runLoop(ctx, "stuck_recovery",
		time.Duration(w.cfg.Payments.RecoveryIntervalMin)*time.Minute, w.recoverStuck)

	// Ретирование брошенных платежей
	go w.runLoop(ctx, "abandoned_cleanup",
		time.Duration(w.cfg.Payments.CleanupIntervalMin)*time.Minute, w.cleanupAbandoned)
}

func (w *PaymentWorker) runLoop(ctx context.Context, name string, interval time.Duration, task func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WorkerLog(name, "started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			logger.WorkerLog(name, "stopped")
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}

// recoverStuck опрашивает шлюз по нетерминальным платежам старше короткого
// порога. Платеж, одобренный на стороне шлюза, завершается и активирует
// подписку без всякого вебхука.
func (w *PaymentWorker) recoverStuck(ctx context.Context) {
	olderThan := time.Now().Add(-time.Duration(w.cfg.Payments.StuckAfterMinutes) * time.Minute)
	stale, err := w.payments.FindStale(ctx, olderThan, models.NonTerminalStatuses())
	if err != nil {
		logger.WithError(err).Error("stuck recovery scan failed")
		return
	}

	recovered := 0
	for i := range stale {
		p := &stale[i]
		ref := p.GatewayRef()
		if ref == "" {
			// Charge так и не дошел до шлюза, опрашивать нечего.
			// Такие платежи ретирует cleanup по длинному порогу.
			continue
		}

		res, err := w.epayco.GetTransactionStatus(ctx, ref)
		if err != nil {
			logger.WithError(err).Warn("stuck recovery status query failed",
				"payment_id", p.ID, "gateway_ref", ref)
			continue
		}

		status, err := w.completer.Apply(ctx, p, res)
		if err != nil {
			logger.WithError(err).Error("stuck recovery apply failed", "payment_id", p.ID)
			continue
		}
		if status != p.Status {
			recovered++
			logger.WorkerLog("stuck_recovery", "payment recovered",
				"payment_id", p.ID, "status", string(status))
		}
	}

	if len(stale) > 0 {
		logger.WorkerLog("stuck_recovery", "scan finished",
			"scanned", len(stale), "recovered", recovered)
	}
}

// cleanupAbandoned переводит платежи старше длинного порога в abandoned.
// Условный UPDATE гарантирует, что платеж, успевший завершиться между
// выборкой и обновлением, останется нетронутым.
func (w *PaymentWorker) cleanupAbandoned(ctx context.Context) {
	olderThan := time.Now().Add(-time.Duration(w.cfg.Payments.AbandonedAfterHours) * time.Hour)
	stale, err := w.payments.FindStale(ctx, olderThan, models.NonTerminalStatuses())
	if err != nil {
		logger.WithError(err).Error("abandoned cleanup scan failed")
		return
	}

	retired := 0
	for i := range stale {
		won, err := w.payments.MarkAbandonedIfStale(ctx, stale[i].ID, olderThan)
		if err != nil {
			logger.WithError(err).Error("abandoned cleanup failed", "payment_id", stale[i].ID)
			continue
		}
		if won {
			retired++
		}
	}

	if retired > 0 {
		logger.WorkerLog("abandoned_cleanup", "payments retired", "count", retired)
	}
}
