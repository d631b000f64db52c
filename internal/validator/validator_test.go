package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chargeForm struct {
	Token    string `json:"token" validate:"required,min=8,no-card-data"`
	Provider string `json:"provider" validate:"required,is-payment-provider"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func TestValidate_OK(t *testing.T) {
	v := New()
	err := v.Validate(chargeForm{
		Token:    "tok_9f8a7b6c",
		Provider: "epayco",
		Email:    "ana@example.com",
	})
	assert.NoError(t, err)
}

func TestValidate_FieldNamesFromJSONTags(t *testing.T) {
	v := New()
	err := v.Validate(chargeForm{Provider: "stripe"})
	require.Error(t, err)

	vErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Contains(t, vErr.Errors, "token")
	assert.Contains(t, vErr.Errors, "provider")
	assert.Equal(t, "This field is required", vErr.Errors["token"])
}

func TestPaymentProviderRule(t *testing.T) {
	v := New()

	for _, provider := range []string{"epayco", "daimo"} {
		assert.NoError(t, v.Validate(chargeForm{Token: "tok_9f8a7b6c", Provider: provider}), provider)
	}
	for _, provider := range []string{"stripe", "EPAYCO", "paypal", ""} {
		assert.Error(t, v.Validate(chargeForm{Token: "tok_9f8a7b6c", Provider: provider}), provider)
	}
}

func TestPaymentStatusRule(t *testing.T) {
	v := New()

	type form struct {
		Status string `json:"status" validate:"is-payment-status"`
	}

	valid := []string{"pending", "processing", "awaiting_3ds", "completed", "rejected", "abandoned"}
	for _, s := range valid {
		assert.NoError(t, v.Validate(form{Status: s}), s)
	}
	for _, s := range []string{"paid", "PENDING", "done"} {
		assert.Error(t, v.Validate(form{Status: s}), s)
	}
}

func TestNoCardDataRule(t *testing.T) {
	v := New()

	form := func(token string) chargeForm {
		return chargeForm{Token: token, Provider: "epayco"}
	}

	assert.NoError(t, v.Validate(form("tok_9f8a7b6c")))

	// Номера карт в любом написании отклоняются
	for _, pan := range []string{
		"4111111111111111",
		"4111 1111 1111 1111",
		"4111-1111-1111-1111",
	} {
		err := v.Validate(form(pan))
		require.Error(t, err, pan)
		vErr, ok := err.(*ValidationError)
		require.True(t, ok)
		assert.Equal(t, "Raw card numbers are not accepted", vErr.Errors["token"])
	}
}
