package payment

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"pnptv_backend/internal/config"
	"pnptv_backend/internal/dto"
	"pnptv_backend/internal/gateway"
	"pnptv_backend/internal/logger"
	"pnptv_backend/internal/models"
	"pnptv_backend/internal/repositories"
	"pnptv_backend/internal/security"
	"pnptv_backend/pkg/apperrors"
)

// WebhookService — слой сверки. Вебхуки являются авторитетным источником
// того, что реально произошло в шлюзе, поэтому они никогда не ждут
// блокировку конвейера и способны завершить платеж в любой момент.
type WebhookService struct {
	cfg       *config.Config
	payments  repositories.PaymentRepository
	plans     repositories.PlanRepository
	guard     *security.Guard
	epayco    *gateway.EpaycoClient
	daimo     *gateway.DaimoClient
	completer *Completer
}

func NewWebhookService(
	cfg *config.Config,
	payments repositories.PaymentRepository,
	plans repositories.PlanRepository,
	guard *security.Guard,
	epayco *gateway.EpaycoClient,
	daimo *gateway.DaimoClient,
	completer *Completer,
) *WebhookService {
	return &WebhookService{
		cfg:       cfg,
		payments:  payments,
		plans:     plans,
		guard:     guard,
		epayco:    epayco,
		daimo:     daimo,
		completer: completer,
	}
}

// ProcessEpaycoWebhook обрабатывает form-encoded подтверждение ePayco.
func (s *WebhookService) ProcessEpaycoWebhook(ctx context.Context, form url.Values) (*dto.WebhookAck, error) {
	custID := form.Get("x_cust_id_cliente")
	refPayco := form.Get("x_ref_payco")
	txnID := form.Get("x_transaction_id")
	invoice := form.Get("x_id_invoice")
	amountStr := form.Get("x_amount")
	currency := form.Get("x_currency_code")
	estado := form.Get("x_transaction_state")
	if estado == "" {
		estado = form.Get("x_respuesta")
	}
	signature := form.Get("x_signature")

	if !s.epayco.VerifySignature(custID, refPayco, txnID, invoice, amountStr, currency, signature) {
		logger.SecurityLog("webhook_signature_rejected", "provider", "epayco", "ref_payco", refPayco)
		return nil, apperrors.ErrInvalidSignature
	}

	eventType := strings.ToLower(strings.TrimSpace(estado))
	first, err := s.guard.CheckWebhookReplay(ctx, string(models.PaymentProviderEpayco), txnID, eventType)
	if err != nil {
		return nil, err
	}
	if !first {
		return &dto.WebhookAck{Status: "ok", Message: "duplicate"}, nil
	}

	payment, err := s.locateEpaycoPayment(ctx, form.Get("x_extra1"), invoice, txnID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithPaymentID(ctx, payment.ID)

	res := s.mapEpaycoState(eventType, refPayco, txnID, form.Get("x_response_reason_text"))

	if res.Kind == gateway.ResultApproved {
		asserted, parseErr := strconv.ParseFloat(amountStr, 64)
		if parseErr != nil {
			return nil, apperrors.ValidationError("Invalid webhook amount", parseErr)
		}
		// ePayco подтверждает расчетную сумму в COP
		if err := s.validateSettlement(ctx, payment, asserted, true); err != nil {
			return nil, err
		}
	}

	if payment.Status.IsTerminal() {
		if payment.Status == models.PaymentStatusAbandoned && res.Kind == gateway.ResultApproved {
			// Платеж уже ретирован, а деньги пришли. Подтверждаем прием,
			// но состояние не трогаем: разбирается поддержка.
			logger.CtxWarn(ctx, "approved webhook for abandoned payment, ignored",
				"ref_payco", refPayco, "transaction_id", txnID)
		}
		return &dto.WebhookAck{Status: "ok", Message: "already terminal"}, nil
	}

	if _, err := s.completer.Apply(ctx, payment, res); err != nil {
		return nil, apperrors.InternalError("Failed to apply webhook result", err)
	}
	if res.Kind == gateway.ResultRejected {
		// Отказ применен этой доставкой: провайдер получает 4xx,
		// 200 остается за дубликатами и терминальными no-op
		return nil, apperrors.DeclinedError(res.Reason)
	}
	return &dto.WebhookAck{Status: "ok"}, nil
}

// validateSettlement сверяет сумму из вебхука и с суммой платежа, и с
// текущей ценой плана. Подмена любой из них — жесткий отказ.
func (s *WebhookService) validateSettlement(ctx context.Context, p *models.Payment, asserted float64, inCOP bool) error {
	expected := p.Amount
	if inCOP {
		expected = CopAmount(p.Amount, s.cfg.Payments.COPRate)
	}
	if err := s.guard.ValidateAmount(expected, asserted); err != nil {
		return err
	}

	plan, err := s.plans.FindByID(ctx, p.PlanID)
	if err != nil {
		// План сняли с продажи после покупки: платеж от этого не
		// перестает быть честным, сверки с суммой платежа достаточно
		logger.CtxWarn(ctx, "plan lookup failed during amount validation",
			"payment_id", p.ID, "plan_id", p.PlanID)
		return nil
	}
	fromPlan := plan.Price
	if inCOP {
		fromPlan = CopAmount(plan.Price, s.cfg.Payments.COPRate)
	}
	return s.guard.ValidateAmount(fromPlan, asserted)
}

// locateEpaycoPayment находит платеж по x_extra1 (наш id), инвойсу или,
// для повторных списаний без extras, по ссылке провайдера.
func (s *WebhookService) locateEpaycoPayment(ctx context.Context, paymentID, invoice, txnID string) (*models.Payment, error) {
	if paymentID != "" {
		if p, err := s.payments.FindByID(ctx, paymentID); err == nil {
			return p, nil
		}
	}
	if invoice != "" {
		if p, err := s.payments.FindByReference(ctx, invoice); err == nil {
			return p, nil
		}
	}
	p, err := s.payments.FindByTransactionID(ctx, models.PaymentProviderEpayco, txnID)
	if err != nil {
		return nil, apperrors.ErrPaymentNotFound.WithError(err)
	}
	return p, nil
}

func (s *WebhookService) mapEpaycoState(state, refPayco, txnID, reason string) gateway.ChargeResult {
	res := gateway.ChargeResult{
		Reference:     refPayco,
		TransactionID: txnID,
	}
	switch state {
	case "aceptada", "aprobada", "accepted", "approved":
		res.Kind = gateway.ResultApproved
	case "pendiente", "pending":
		res.Kind = gateway.ResultPendingChallenge
	default:
		res.Kind = gateway.ResultRejected
		res.Reason = reason
		if res.Reason == "" {
			res.Reason = "Transaction " + state
		}
	}
	return res
}

// ProcessDaimoWebhook обрабатывает JSON-событие Daimo.
func (s *WebhookService) ProcessDaimoWebhook(ctx context.Context, body []byte) (*dto.WebhookAck, error) {
	if !s.daimo.HasWebhookSecret() {
		// В production до этой ветки не дойти: старт падает на валидации
		// конфига. В dev пропускаем без подписи, но очень громко.
		if s.cfg.IsProduction() {
			return nil, apperrors.ConfigurationError("Daimo webhook secret is not configured")
		}
		logger.SecurityLog("webhook_signature_bypass", "provider", "daimo", "env", s.cfg.Server.Env)
	} else {
		var envelope struct {
			Signature string `json:"signature"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, apperrors.ValidationError("Invalid webhook payload", err)
		}
		if !s.daimo.VerifyWebhookSignature(body, envelope.Signature) {
			logger.SecurityLog("webhook_signature_rejected", "provider", "daimo")
			return nil, apperrors.ErrInvalidSignature
		}
	}

	event, err := s.daimo.ParseEvent(body)
	if err != nil {
		return nil, err
	}

	kind, known := gateway.NormalizeDaimoStatus(event.Type)
	if !known {
		// Неизвестные типы событий подтверждаем и пропускаем
		return &dto.WebhookAck{Status: "ok", Message: "ignored event type"}, nil
	}

	first, err := s.guard.CheckWebhookReplay(ctx, string(models.PaymentProviderDaimo), event.TransactionID, event.Type)
	if err != nil {
		return nil, err
	}
	if !first {
		return &dto.WebhookAck{Status: "ok", Message: "duplicate"}, nil
	}

	payment, err := s.locateDaimoPayment(ctx, event)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithPaymentID(ctx, payment.ID)

	if kind == gateway.ResultApproved && event.AmountUSD > 0 {
		// Крипто-провайдер подтверждает сумму в USD
		if err := s.validateSettlement(ctx, payment, event.AmountUSD, false); err != nil {
			return nil, err
		}
	}

	if payment.Status.IsTerminal() {
		if payment.Status == models.PaymentStatusAbandoned && kind == gateway.ResultApproved {
			logger.CtxWarn(ctx, "approved webhook for abandoned payment, ignored",
				"transaction_id", event.TransactionID)
		}
		return &dto.WebhookAck{Status: "ok", Message: "already terminal"}, nil
	}

	res := gateway.ChargeResult{
		Kind:          kind,
		Reference:     event.Invoice,
		TransactionID: event.TransactionID,
	}
	if kind == gateway.ResultRejected {
		res.Reason = "Crypto payment " + strings.TrimPrefix(event.Type, "payment_")
	}

	if _, err := s.completer.Apply(ctx, payment, res); err != nil {
		return nil, apperrors.InternalError("Failed to apply webhook result", err)
	}
	if kind == gateway.ResultRejected {
		return nil, apperrors.DeclinedError(res.Reason)
	}
	return &dto.WebhookAck{Status: "ok"}, nil
}

func (s *WebhookService) locateDaimoPayment(ctx context.Context, event gateway.DaimoEvent) (*models.Payment, error) {
	if id := event.Metadata["payment_id"]; id != "" {
		if p, err := s.payments.FindByID(ctx, id); err == nil {
			return p, nil
		}
	}
	if event.Invoice != "" {
		if p, err := s.payments.FindByReference(ctx, event.Invoice); err == nil {
			return p, nil
		}
	}
	p, err := s.payments.FindByTransactionID(ctx, models.PaymentProviderDaimo, event.TransactionID)
	if err != nil {
		return nil, apperrors.ErrPaymentNotFound.WithError(err)
	}
	return p, nil
}
