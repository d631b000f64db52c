package payment

import (
	"context"
	"fmt"

	"pnptv_backend/internal/auth"
	"pnptv_backend/internal/config"
	"pnptv_backend/internal/dto"
	"pnptv_backend/internal/gateway"
	"pnptv_backend/internal/logger"
	"pnptv_backend/internal/models"
	"pnptv_backend/internal/repositories"
	"pnptv_backend/internal/security"
	"pnptv_backend/pkg/apperrors"
)

// ChargeService — конвейер одной попытки токенизированного списания.
// Конвейер сериализуется распределенной блокировкой: на платеж в каждый
// момент летит не больше одного charge, независимо от числа инстансов.
type ChargeService struct {
	cfg       *config.Config
	payments  repositories.PaymentRepository
	guard     *security.Guard
	epayco    gateway.Gateway
	tokens    *auth.TokenIssuer
	completer *Completer
}

func NewChargeService(
	cfg *config.Config,
	payments repositories.PaymentRepository,
	guard *security.Guard,
	epayco gateway.Gateway,
	tokens *auth.TokenIssuer,
	completer *Completer,
) *ChargeService {
	return &ChargeService{
		cfg:       cfg,
		payments:  payments,
		guard:     guard,
		epayco:    epayco,
		tokens:    tokens,
		completer: completer,
	}
}

// ClientInfo — данные браузера, которые шлюз хочет видеть при charge.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// ProcessTokenizedCharge прогоняет платеж через весь конвейер списания.
func (s *ChargeService) ProcessTokenizedCharge(ctx context.Context, paymentID string, req dto.ChargeRequest, client ClientInfo) (*dto.ChargeResponse, error) {
	ctx = logger.WithPaymentID(ctx, paymentID)

	if _, err := s.tokens.Verify(req.ConfirmToken, paymentID); err != nil {
		return nil, apperrors.ErrInvalidSignature.WithError(err)
	}

	// Вторая линия обороны после DTO-валидации: в запросе не должно
	// быть ничего похожего на PAN или CVV
	fields := map[string]string{
		"token":      req.Token,
		"name":       req.Name,
		"doc_number": req.DocNumber,
	}
	if err := s.guard.ValidateNoRawCardData(ctx, fields); err != nil {
		return nil, err
	}

	owner, err := s.guard.AcquireChargeLock(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer s.guard.ReleaseChargeLock(ctx, paymentID, owner)

	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, apperrors.ErrPaymentNotFound.WithError(err)
	}

	switch payment.Status {
	case models.PaymentStatusCompleted:
		// Идемпотентный повтор: платеж уже прошел, возвращаем тот же исход
		return &dto.ChargeResponse{
			Status:    string(models.PaymentStatusCompleted),
			Reference: payment.Reference,
		}, nil
	case models.PaymentStatusRejected:
		return nil, apperrors.DeclinedError(payment.MetaString("rejection_reason"))
	case models.PaymentStatusAbandoned:
		return nil, apperrors.ErrPaymentExpired
	}

	if err := s.guard.CheckRateLimit(ctx, payment.UserID); err != nil {
		return nil, err
	}

	expired, err := s.guard.CheckoutExpired(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, apperrors.ErrPaymentExpired
	}

	if _, err := s.payments.MarkProcessing(ctx, paymentID); err != nil {
		return nil, apperrors.InternalError("Failed to mark payment processing", err)
	}

	customerID, err := s.resolveCustomer(ctx, payment, req)
	if err != nil {
		return nil, err
	}

	cop := CopAmount(payment.Amount, s.cfg.Payments.COPRate)
	res, err := s.epayco.CreateCharge(ctx, gateway.ChargeRequest{
		Token:       req.Token,
		CustomerID:  customerID,
		Invoice:     payment.Reference,
		Description: fmt.Sprintf("Suscripción %s", payment.MetaString("plan_name")),
		Amount:      cop,
		Currency:    "COP",
		Email:       req.Email,
		Name:        req.Name,
		DocType:     req.DocType,
		DocNumber:   req.DocNumber,
		IP:          client.IP,
		UserAgent:   client.UserAgent,
		Fingerprint: req.Fingerprint,
		Use3DS:      req.Use3DS,
	})
	if err != nil {
		// Исход неизвестен: деньги могли списаться. Платеж остается
		// нетерминальным, его доведет вебхук или воркер восстановления.
		logger.CtxWithError(ctx, err).Error("charge outcome unknown", "payment_id", paymentID)
		return nil, err
	}

	status, err := s.completer.Apply(ctx, payment, res)
	if err != nil {
		return nil, apperrors.InternalError("Failed to apply charge result", err)
	}

	switch status {
	case models.PaymentStatusCompleted:
		return &dto.ChargeResponse{
			Status:    string(status),
			Reference: res.Reference,
		}, nil
	case models.PaymentStatusAwaiting3DS:
		return &dto.ChargeResponse{
			Status:      "pending",
			Reference:   res.Reference,
			RedirectURL: res.RedirectURL,
			Message:     "Complete the bank challenge to finish the payment",
		}, nil
	default:
		return nil, apperrors.DeclinedError(res.Reason)
	}
}

// resolveCustomer переиспользует customer_id из metadata, чтобы повторная
// попытка charge не плодила клиентов у провайдера.
func (s *ChargeService) resolveCustomer(ctx context.Context, payment *models.Payment, req dto.ChargeRequest) (string, error) {
	if id := payment.MetaString("customer_id"); id != "" {
		return id, nil
	}

	id, err := s.epayco.CreateCustomer(ctx, req.Token, req.Name, req.Email)
	if err != nil {
		return "", err
	}
	if err := s.payments.MergeMetadata(ctx, payment.ID, map[string]interface{}{"customer_id": id}); err != nil {
		// Клиент создан, но не записан. Повторная попытка создаст еще
		// одного, это не ломает платеж, только мусорит у провайдера.
		logger.CtxWithError(ctx, err).Warn("failed to persist customer id", "payment_id", payment.ID)
	}
	return id, nil
}
