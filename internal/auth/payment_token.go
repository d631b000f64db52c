package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid payment confirmation token")

// PaymentClaims привязывает короткоживущий токен к конкретному платежу.
// Токен выдается вместе с checkout-данными и предъявляется страницей
// оплаты при отправке charge, чтобы нельзя было подставить чужой платеж.
type PaymentClaims struct {
	PaymentID string  `json:"payment_id"`
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	jwt.RegisteredClaims
}

// TokenIssuer выпускает и проверяет токены подтверждения платежа.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue выпускает токен для платежа.
func (t *TokenIssuer) Issue(paymentID, userID string, amount float64) (string, error) {
	now := time.Now()
	claims := PaymentClaims{
		PaymentID: paymentID,
		UserID:    userID,
		Amount:    amount,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   paymentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign payment token: %w", err)
	}
	return signed, nil
}

// Verify проверяет токен и его привязку к платежу.
func (t *TokenIssuer) Verify(tokenStr, paymentID string) (*PaymentClaims, error) {
	claims := &PaymentClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.PaymentID != paymentID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
