package subscription

import (
	"context"
	"time"

	"pnptv_backend/internal/email"
	"pnptv_backend/internal/logger"
	"pnptv_backend/internal/models"
	"pnptv_backend/internal/repositories"
	"pnptv_backend/pkg/apperrors"
)

// ActivationService — единственный бизнес-эффект успешного платежа.
// Вызывается ТОЛЬКО победителем условного перехода в completed,
// сам сервис свою идемпотентность не гарантирует.
type ActivationService struct {
	userRepo repositories.UserRepository
	planRepo repositories.PlanRepository
	email    email.Provider
}

func NewActivationService(userRepo repositories.UserRepository, planRepo repositories.PlanRepository, emailProvider email.Provider) *ActivationService {
	return &ActivationService{
		userRepo: userRepo,
		planRepo: planRepo,
		email:    emailProvider,
	}
}

// Activate включает подписку пользователю и возвращает новую дату истечения.
func (s *ActivationService) Activate(ctx context.Context, userID, planID string) (time.Time, error) {
	plan, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		return time.Time{}, apperrors.ErrPlanNotFound.WithError(err)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return time.Time{}, apperrors.ErrUserNotFound.WithError(err)
	}

	// Продление складывается: если подписка еще активна, новый срок
	// отсчитывается от текущей даты истечения, а не от сегодня.
	now := time.Now()
	base := now
	if user.SubscriptionExpiry != nil && user.SubscriptionExpiry.After(now) {
		base = *user.SubscriptionExpiry
	}
	expiry := base.AddDate(0, 0, plan.DurationDays)

	if err := s.userRepo.UpdateSubscription(ctx, userID, models.SubscriptionStatusActive, planID, expiry); err != nil {
		return time.Time{}, apperrors.InternalError("Failed to update subscription", err)
	}

	logger.CtxInfo(ctx, "subscription activated",
		"user_id", userID,
		"plan_id", planID,
		"expires_at", expiry.Format(time.RFC3339),
		"renewed", base != now)

	return expiry, nil
}

// NotifyActivation отправляет письмо об активации. Некритично:
// любая ошибка логируется и глотается, платеж не откатывается.
func (s *ActivationService) NotifyActivation(ctx context.Context, userID string, payment *models.Payment, expiry time.Time) {
	if s.email == nil {
		return
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil || user.Email == "" {
		return
	}
	plan, err := s.planRepo.FindByID(ctx, payment.PlanID)
	if err != nil {
		return
	}

	data := email.ActivationData{
		FirstName: user.FirstName,
		PlanName:  plan.DisplayName,
		AmountUSD: payment.Amount,
		Reference: payment.Reference,
		ExpiresAt: expiry.Format("2006-01-02"),
		Language:  user.Language,
	}
	if err := s.email.SendActivation(user.Email, data); err != nil {
		logger.CtxWithError(ctx, err).Warn("activation email failed", "user_id", userID)
	}
}
