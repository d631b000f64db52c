package apperrors

// Коды ошибок сгруппированные по доменам
const (
	// Валидация
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeRawCardData      ErrorCode = "RAW_CARD_DATA"

	// Ресурсы
	CodePaymentNotFound ErrorCode = "PAYMENT_NOT_FOUND"
	CodePlanNotFound    ErrorCode = "PLAN_NOT_FOUND"
	CodeUserNotFound    ErrorCode = "USER_NOT_FOUND"

	// Состояние платежа
	CodePaymentProcessing ErrorCode = "PAYMENT_PROCESSING"
	CodePaymentExpired    ErrorCode = "PAYMENT_EXPIRED"
	CodeAmountMismatch    ErrorCode = "AMOUNT_MISMATCH"

	// Вебхуки и безопасность
	CodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"

	// Гейтвей
	CodePaymentDeclined ErrorCode = "PAYMENT_DECLINED"
	CodeGatewayError    ErrorCode = "GATEWAY_ERROR"

	// Системные ошибки
	CodeInternalError      ErrorCode = "INTERNAL_ERROR"
	CodeConfigurationError ErrorCode = "CONFIGURATION_ERROR"
)
