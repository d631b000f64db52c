package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const daimoTestSecret = "whsec_test"

// signedDaimoBody собирает тело вебхука и подписывает его так же,
// как это делает провайдер: HMAC от канонического JSON без signature.
func signedDaimoBody(t *testing.T, payload map[string]interface{}) []byte {
	t.Helper()

	canonical, err := json.Marshal(payload)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(daimoTestSecret))
	mac.Write(canonical)
	payload["signature"] = hex.EncodeToString(mac.Sum(nil))

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := NewDaimoClient("api_test", daimoTestSecret, "")

	body := signedDaimoBody(t, map[string]interface{}{
		"type":          "payment_completed",
		"txHash":        "0xabc",
		"externalId":    "PAY-AAAA1111",
		"displayAmount": "24.99",
	})

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	sig := payload["signature"].(string)

	assert.True(t, c.VerifyWebhookSignature(body, sig))
	assert.True(t, c.VerifyWebhookSignature(body, strings.ToUpper(sig)))
	assert.False(t, c.VerifyWebhookSignature(body, ""))

	// Подпись от другого секрета
	other := NewDaimoClient("api_test", "whsec_other", "")
	assert.False(t, other.VerifyWebhookSignature(body, sig))
}

func TestVerifyWebhookSignature_TamperedBody(t *testing.T) {
	c := NewDaimoClient("api_test", daimoTestSecret, "")

	body := signedDaimoBody(t, map[string]interface{}{
		"type":          "payment_completed",
		"txHash":        "0xabc",
		"displayAmount": "24.99",
	})

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	sig := payload["signature"].(string)

	// Меняем сумму после подписания
	payload["displayAmount"] = "1.00"
	tampered, err := json.Marshal(payload)
	require.NoError(t, err)

	assert.False(t, c.VerifyWebhookSignature(tampered, sig))
}

func TestVerifyWebhookSignature_NoSecretConfigured(t *testing.T) {
	c := NewDaimoClient("api_test", "", "")
	assert.False(t, c.HasWebhookSecret())
	assert.False(t, c.VerifyWebhookSignature([]byte(`{}`), "deadbeef"))
}

func TestParseEvent_FlatShape(t *testing.T) {
	c := NewDaimoClient("api_test", daimoTestSecret, "")

	ev, err := c.ParseEvent([]byte(`{
		"type": "payment_completed",
		"txHash": "0xabc",
		"externalId": "PAY-AAAA1111",
		"displayAmount": "24.99",
		"metadata": {"payment_id": "pay-1"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "payment_completed", ev.Type)
	assert.Equal(t, "0xabc", ev.TransactionID)
	assert.Equal(t, "PAY-AAAA1111", ev.Invoice)
	assert.InDelta(t, 24.99, ev.AmountUSD, 0.001)
	assert.Equal(t, "pay-1", ev.Metadata["payment_id"])
}

func TestParseEvent_NestedShape(t *testing.T) {
	c := NewDaimoClient("api_test", daimoTestSecret, "")

	ev, err := c.ParseEvent([]byte(`{
		"type": "payment_completed",
		"payment": {
			"txHash": "0xdef",
			"externalId": "PAY-BBBB2222",
			"displayAmount": 24.99
		}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "0xdef", ev.TransactionID)
	assert.Equal(t, "PAY-BBBB2222", ev.Invoice)
	assert.InDelta(t, 24.99, ev.AmountUSD, 0.001)
}

func TestParseEvent_PaymentIDFallback(t *testing.T) {
	c := NewDaimoClient("api_test", daimoTestSecret, "")

	ev, err := c.ParseEvent([]byte(`{"type": "payment_started", "paymentId": "dp_123"}`))
	require.NoError(t, err)
	assert.Equal(t, "dp_123", ev.TransactionID)
}

func TestParseEvent_Invalid(t *testing.T) {
	c := NewDaimoClient("api_test", daimoTestSecret, "")

	_, err := c.ParseEvent([]byte(`not json`))
	assert.Error(t, err)

	// Без типа или ID транзакции событие бесполезно
	_, err = c.ParseEvent([]byte(`{"txHash": "0xabc"}`))
	assert.Error(t, err)
	_, err = c.ParseEvent([]byte(`{"type": "payment_completed"}`))
	assert.Error(t, err)
}

func TestNormalizeDaimoStatus(t *testing.T) {
	cases := []struct {
		event    string
		wantKind ResultKind
		known    bool
	}{
		{"payment_completed", ResultApproved, true},
		{"payment_started", ResultPendingChallenge, true},
		{"payment_bounced", ResultRejected, true},
		{"payment_failed", ResultRejected, true},
		{"payment_refunded", ResultRejected, true},
		{"payment_unverified", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		kind, known := NormalizeDaimoStatus(tc.event)
		assert.Equal(t, tc.known, known, tc.event)
		assert.Equal(t, tc.wantKind, kind, tc.event)
	}
}

func TestCreatePaymentLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "api_test", r.Header.Get("Api-Key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "PAY-AAAA1111", body["externalId"])
		assert.Equal(t, "24.99", body["displayAmount"])
		assert.Equal(t, "USD", body["displayCurrency"])

		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":  "dp_123",
			"url": "https://pay.daimo.test/dp_123",
		})
	}))
	defer srv.Close()

	c := NewDaimoClient("api_test", daimoTestSecret, srv.URL)
	id, url, err := c.CreatePaymentLink(context.Background(), PaymentLinkRequest{
		Invoice:     "PAY-AAAA1111",
		Description: "Golden 30",
		AmountUSD:   24.99,
		Metadata:    map[string]string{"payment_id": "pay-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "dp_123", id)
	assert.Equal(t, "https://pay.daimo.test/dp_123", url)
}

func TestCreatePaymentLink_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewDaimoClient("bad_key", daimoTestSecret, srv.URL)
	_, _, err := c.CreatePaymentLink(context.Background(), PaymentLinkRequest{Invoice: "PAY-AAAA1111", AmountUSD: 24.99})
	assert.Error(t, err)
}
