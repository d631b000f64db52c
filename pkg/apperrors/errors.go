package apperrors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode - тип для кодов ошибок
type ErrorCode string

// AppError - основная структура ошибки приложения
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Details  interface{} `json:"details,omitempty"`
	Err      error       `json:"-"`
	HTTPCode int         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по коду, чтобы клоны с деталями
// (WithError, WithDetails) матчились со своим сентинелом.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Конструктор
func New(code ErrorCode, message string, httpCode int) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		HTTPCode: httpCode,
	}
}

// С цепочкой ошибок
func Wrap(err error, code ErrorCode, message string, httpCode int) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Err:      err,
		HTTPCode: httpCode,
	}
}

// Вспомогательные методы
func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

func (e *AppError) WithError(err error) *AppError {
	clone := *e
	clone.Err = err
	return &clone
}

// Для маршалинга в JSON
func (e *AppError) MarshalJSON() ([]byte, error) {
	type alias struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}
	return json.Marshal(&alias{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}

// Is - обертка над стандартной функцией errors.Is
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As - обертка над стандартной функцией errors.As
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Предопределенные ошибки платежного ядра.
var (
	// Валидация / PCI
	ErrValidationFailed = New(CodeValidationFailed, "Validation failed", http.StatusBadRequest)
	ErrRawCardData      = New(CodeRawCardData, "Raw card data is not accepted, use a gateway token", http.StatusBadRequest)

	// Ресурсы
	ErrPaymentNotFound = New(CodePaymentNotFound, "Payment not found", http.StatusNotFound)
	ErrPlanNotFound    = New(CodePlanNotFound, "Plan not found or inactive", http.StatusBadRequest)
	ErrUserNotFound    = New(CodeUserNotFound, "User not found", http.StatusNotFound)

	// Состояние платежа
	ErrPaymentProcessing = New(CodePaymentProcessing, "Payment is already being processed", http.StatusConflict)
	ErrPaymentExpired    = New(CodePaymentExpired, "The checkout window for this payment has expired", http.StatusBadRequest)
	ErrAmountMismatch    = New(CodeAmountMismatch, "Payment amount does not match the plan price", http.StatusBadRequest)

	// Вебхуки
	ErrInvalidSignature = New(CodeInvalidSignature, "Webhook signature verification failed", http.StatusUnauthorized)

	// Гейтвей / бизнес-отказ
	ErrPaymentDeclined = New(CodePaymentDeclined, "Payment was declined by the provider", http.StatusPaymentRequired)
	ErrGatewayFailure  = New(CodeGatewayError, "Payment gateway is temporarily unavailable", http.StatusInternalServerError)

	// Безопасность
	ErrRateLimited = New(CodeRateLimited, "Too many payment attempts, try again later", http.StatusTooManyRequests)
)

// Функции-помощники для создания ошибок с деталями
func ValidationError(message string, err error) *AppError {
	return Wrap(err, CodeValidationFailed, message, http.StatusBadRequest)
}

func ValidationDetails(details interface{}) *AppError {
	return ErrValidationFailed.WithDetails(details)
}

func InternalError(message string, err error) *AppError {
	return Wrap(err, CodeInternalError, message, http.StatusInternalServerError)
}

func GatewayError(message string, err error) *AppError {
	return Wrap(err, CodeGatewayError, message, http.StatusInternalServerError)
}

func DeclinedError(reason string) *AppError {
	if reason == "" {
		return ErrPaymentDeclined
	}
	return New(CodePaymentDeclined, reason, http.StatusPaymentRequired)
}

func ConfigurationError(message string) *AppError {
	return New(CodeConfigurationError, message, http.StatusInternalServerError)
}

func NewBadRequestError(message string) *AppError {
	return New(CodeValidationFailed, message, http.StatusBadRequest)
}

func NewNotFoundError(message string) *AppError {
	return New(CodePaymentNotFound, message, http.StatusNotFound)
}

func NewInternalError(message string) *AppError {
	return New(CodeInternalError, message, http.StatusInternalServerError)
}
