package payment

import (
	"context"
	"fmt"
	"math"
	"time"

	"pnptv_backend/internal/auth"
	"pnptv_backend/internal/config"
	"pnptv_backend/internal/dto"
	"pnptv_backend/internal/gateway"
	"pnptv_backend/internal/logger"
	"pnptv_backend/internal/models"
	"pnptv_backend/internal/repositories"
	"pnptv_backend/internal/security"
	"pnptv_backend/pkg/apperrors"

	"gorm.io/datatypes"
)

// PaymentService создает платежи, собирает checkout-данные и обслуживает
// опрос статуса со страницы оплаты.
type PaymentService struct {
	cfg       *config.Config
	payments  repositories.PaymentRepository
	plans     repositories.PlanRepository
	users     repositories.UserRepository
	guard     *security.Guard
	epayco    *gateway.EpaycoClient
	daimo     *gateway.DaimoClient
	tokens    *auth.TokenIssuer
	completer *Completer
}

func NewPaymentService(
	cfg *config.Config,
	payments repositories.PaymentRepository,
	plans repositories.PlanRepository,
	users repositories.UserRepository,
	guard *security.Guard,
	epayco *gateway.EpaycoClient,
	daimo *gateway.DaimoClient,
	tokens *auth.TokenIssuer,
	completer *Completer,
) *PaymentService {
	return &PaymentService{
		cfg:       cfg,
		payments:  payments,
		plans:     plans,
		users:     users,
		guard:     guard,
		epayco:    epayco,
		daimo:     daimo,
		tokens:    tokens,
		completer: completer,
	}
}

// CopAmount переводит отображаемую сумму USD в расчетную сумму COP.
func CopAmount(usd, rate float64) float64 {
	return math.Round(usd * rate)
}

// CreatePayment создает pending-платеж под план и открывает окно чекаута.
func (s *PaymentService) CreatePayment(ctx context.Context, req dto.CreatePaymentRequest) (*models.Payment, error) {
	if err := s.guard.CheckRateLimit(ctx, req.UserID); err != nil {
		return nil, err
	}

	plan, err := s.plans.FindByID(ctx, req.PlanID)
	if err != nil {
		return nil, apperrors.ErrPlanNotFound.WithError(err)
	}
	if !plan.IsActive {
		return nil, apperrors.ErrPlanNotFound
	}
	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, apperrors.ErrUserNotFound.WithError(err)
	}

	payment := &models.Payment{
		UserID:   user.ID,
		PlanID:   plan.ID,
		Provider: models.PaymentProvider(req.Provider),
		Amount:   plan.Price,
		Currency: plan.Currency,
		Status:   models.PaymentStatusPending,
		Metadata: datatypes.JSONMap{
			"plan_sku":  plan.SKU,
			"plan_name": plan.DisplayName,
		},
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, apperrors.InternalError("Failed to create payment", err)
	}

	// Reference зависит от ID, поэтому проставляется вторым шагом
	payment.Reference = models.MakeReference(payment.ID)

	switch payment.Provider {
	case models.PaymentProviderDaimo:
		// Крипто-провайдер сразу выдает hosted-ссылку
		linkID, url, err := s.daimo.CreatePaymentLink(ctx, gateway.PaymentLinkRequest{
			Invoice:     payment.Reference,
			Description: fmt.Sprintf("Suscripción %s", plan.DisplayName),
			AmountUSD:   payment.Amount,
			Metadata:    map[string]string{"payment_id": payment.ID, "user_id": user.ID},
		})
		if err != nil {
			return nil, err
		}
		payment.PaymentURL = url
		payment.Metadata["daimo_link_id"] = linkID
	default:
		payment.PaymentURL = fmt.Sprintf("%s/checkout/%s", s.cfg.Payments.CheckoutDomain, payment.ID)
	}

	meta := map[string]interface{}(payment.Metadata)
	if err := s.payments.SetCheckoutInfo(ctx, payment.ID, payment.Reference, payment.PaymentURL, meta); err != nil {
		return nil, apperrors.InternalError("Failed to persist checkout info", err)
	}

	if err := s.guard.StartCheckoutWindow(ctx, payment.ID); err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "payment created",
		"payment_id", payment.ID,
		"provider", string(payment.Provider),
		"plan_id", plan.ID,
		"amount_usd", payment.Amount)

	return payment, nil
}

// GetCheckout собирает payload для hosted checkout-страницы.
func (s *PaymentService) GetCheckout(ctx context.Context, paymentID string) (*dto.CheckoutResponse, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, apperrors.ErrPaymentNotFound.WithError(err)
	}

	cop := CopAmount(payment.Amount, s.cfg.Payments.COPRate)
	confirmToken, err := s.tokens.Issue(payment.ID, payment.UserID, payment.Amount)
	if err != nil {
		return nil, apperrors.InternalError("Failed to issue confirmation token", err)
	}

	resp := &dto.CheckoutResponse{
		Payment: toPaymentResponse(payment, cop),
		CheckoutSignature: s.epayco.CheckoutChecksum(
			s.cfg.Epayco.PublicKey,
			payment.Reference,
			fmt.Sprintf("%.0f", cop),
			"COP",
		),
		ConfirmToken: confirmToken,
		PublicKey:    s.cfg.Epayco.PublicKey,
		TestMode:     s.cfg.Epayco.TestMode,
	}
	return resp, nil
}

// GetStatusWithRecovery возвращает статус платежа и, если платеж завис
// в нетерминальном состоянии с известной ссылкой шлюза, тут же пробует
// довести его опросом статуса. Так checkout-страница сама долечивает
// платежи, не дождавшиеся вебхука.
func (s *PaymentService) GetStatusWithRecovery(ctx context.Context, paymentID string) (*dto.StatusResponse, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, apperrors.ErrPaymentNotFound.WithError(err)
	}

	resp := &dto.StatusResponse{
		Status:    string(payment.Status),
		Reference: payment.Reference,
	}

	if payment.Status.IsTerminal() || payment.GatewayRef() == "" {
		return resp, nil
	}

	res, err := s.epayco.GetTransactionStatus(ctx, payment.GatewayRef())
	if err != nil {
		// Шлюз недоступен. Отдаем текущее состояние, воркер дожмет позже.
		logger.CtxWithError(ctx, err).Warn("inline recovery failed", "payment_id", payment.ID)
		return resp, nil
	}

	status, err := s.completer.Apply(ctx, payment, res)
	if err != nil {
		return resp, nil
	}
	if status != payment.Status {
		resp.Status = string(status)
		resp.Recovered = true
	}
	return resp, nil
}

func toPaymentResponse(p *models.Payment, cop float64) dto.PaymentResponse {
	return dto.PaymentResponse{
		ID:         p.ID,
		Status:     string(p.Status),
		Provider:   string(p.Provider),
		Reference:  p.Reference,
		AmountUSD:  p.Amount,
		AmountCOP:  cop,
		Currency:   p.Currency,
		PaymentURL: p.PaymentURL,
		PlanName:   p.MetaString("plan_name"),
		CreatedAt:  p.CreatedAt.Format(time.RFC3339),
	}
}
