package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 15*time.Minute)

	token, err := issuer.Issue("pay-1", "user-1", 24.99)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Verify(token, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "pay-1", claims.PaymentID)
	assert.Equal(t, "user-1", claims.UserID)
	assert.InDelta(t, 24.99, claims.Amount, 0.001)
}

func TestTokenIssuer_RejectsWrongPayment(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 15*time.Minute)

	// Токен от одного платежа нельзя предъявить для другого
	token, err := issuer.Issue("pay-1", "user-1", 24.99)
	require.NoError(t, err)

	_, err = issuer.Verify(token, "pay-2")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", -time.Minute)

	token, err := issuer.Issue("pay-1", "user-1", 24.99)
	require.NoError(t, err)

	_, err = issuer.Verify(token, "pay-1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsForeignSecret(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 15*time.Minute)
	other := NewTokenIssuer("other-secret", 15*time.Minute)

	token, err := other.Issue("pay-1", "user-1", 24.99)
	require.NoError(t, err)

	_, err = issuer.Verify(token, "pay-1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 15*time.Minute)

	_, err := issuer.Verify("", "pay-1")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Verify("not.a.jwt", "pay-1")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Подпись порченая
	token, err := issuer.Issue("pay-1", "user-1", 24.99)
	require.NoError(t, err)
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	_, err = issuer.Verify(parts[0]+"."+parts[1]+".AAAA", "pay-1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
