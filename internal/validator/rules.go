package validator

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"pnptv_backend/internal/models"
)

// panLike находит последовательности из 13-19 цифр (возможно с пробелами
// или дефисами между группами). Так выглядят номера карт.
var panLike = regexp.MustCompile(`\d[\d\s\-]{11,21}\d`)

// registerCustomRules регистрирует все кастомные правила валидации.
func registerCustomRules(v *validator.Validate) {
	mustRegister(v, "is-payment-provider", validatePaymentProvider)
	mustRegister(v, "is-payment-status", validatePaymentStatus)
	mustRegister(v, "no-card-data", validateNoCardData)
}

// mustRegister паникует при ошибке регистрации. Это происходит только
// при старте приложения, поэтому паника здесь уместна.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("failed to register validation rule %q: %v", tag, err))
	}
}

// validatePaymentProvider проверяет, что провайдер платежа поддерживается.
func validatePaymentProvider(fl validator.FieldLevel) bool {
	provider := models.PaymentProvider(fl.Field().String())
	switch provider {
	case models.PaymentProviderEpayco, models.PaymentProviderDaimo:
		return true
	}
	return false
}

// validatePaymentStatus проверяет, что статус платежа из известного словаря.
func validatePaymentStatus(fl validator.FieldLevel) bool {
	status := models.PaymentStatus(fl.Field().String())
	switch status {
	case models.PaymentStatusPending,
		models.PaymentStatusProcessing,
		models.PaymentStatusAwaiting3DS,
		models.PaymentStatusCompleted,
		models.PaymentStatusRejected,
		models.PaymentStatusAbandoned:
		return true
	}
	return false
}

// validateNoCardData отклоняет строки, похожие на сырой номер карты.
// Сырые карточные данные никогда не должны попадать на наш бэкенд,
// только одноразовые токены от провайдера.
func validateNoCardData(fl validator.FieldLevel) bool {
	return !panLike.MatchString(fl.Field().String())
}
