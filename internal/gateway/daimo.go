package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pnptv_backend/pkg/apperrors"
)

// Daimo — крипто-провайдер. Вместо charge по токену он выдает ссылку
// на оплату, а исход приходит только вебхуком.
type DaimoClient struct {
	apiKey        string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

func NewDaimoClient(apiKey, webhookSecret, baseURL string) *DaimoClient {
	return &DaimoClient{
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// PaymentLinkRequest — данные для генерации платежной ссылки.
type PaymentLinkRequest struct {
	Invoice     string
	Description string
	AmountUSD   float64
	Metadata    map[string]string
}

// CreatePaymentLink генерирует hosted-ссылку на оплату криптой.
func (c *DaimoClient) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (string, string, error) {
	body := map[string]interface{}{
		"intent":         req.Description,
		"externalId":     req.Invoice,
		"displayAmount":  fmt.Sprintf("%.2f", req.AmountUSD),
		"displayCurrency": "USD",
		"metadata":       req.Metadata,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", "", apperrors.InternalError("Failed to encode payment link request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(raw))
	if err != nil {
		return "", "", apperrors.InternalError("Failed to build payment link request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", "", apperrors.GatewayError("Daimo request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", apperrors.GatewayError("Failed to read Daimo response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", apperrors.GatewayError(fmt.Sprintf("Daimo returned HTTP %d", resp.StatusCode), nil)
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil || out.URL == "" {
		return "", "", apperrors.GatewayError("Failed to decode Daimo response", err)
	}
	return out.ID, out.URL, nil
}

// DaimoEvent — нормализованное событие вебхука. Daimo шлет два формата:
// плоский и с вложенным объектом payment, здесь они сведены к одному.
type DaimoEvent struct {
	Type          string
	TransactionID string
	Invoice       string
	AmountUSD     float64
	Metadata      map[string]string
}

// VerifyWebhookSignature проверяет HMAC-SHA256 от канонического payload
// (тело без поля signature, ключи отсортированы). Сравнение за
// постоянное время.
func (c *DaimoClient) VerifyWebhookSignature(body []byte, signature string) bool {
	if c.webhookSecret == "" || signature == "" {
		return false
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	delete(payload, "signature")

	// json.Marshal сортирует ключи карты, получаем канонический вид
	canonical, err := json.Marshal(payload)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(canonical)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(want))
}

// HasWebhookSecret сообщает, настроен ли секрет подписи.
func (c *DaimoClient) HasWebhookSecret() bool {
	return c.webhookSecret != ""
}

// ParseEvent разбирает тело вебхука в нормализованное событие.
func (c *DaimoClient) ParseEvent(body []byte) (DaimoEvent, error) {
	var raw struct {
		Type          string                 `json:"type"`
		TransactionID string                 `json:"txHash"`
		PaymentID     string                 `json:"paymentId"`
		ExternalID    string                 `json:"externalId"`
		Amount        json.Number            `json:"displayAmount"`
		Metadata      map[string]string      `json:"metadata"`
		Payment       map[string]interface{} `json:"payment"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return DaimoEvent{}, apperrors.ValidationError("Invalid webhook payload", err)
	}

	ev := DaimoEvent{
		Type:          raw.Type,
		TransactionID: raw.TransactionID,
		Invoice:       raw.ExternalID,
		Metadata:      raw.Metadata,
	}
	if raw.Amount != "" {
		if v, err := raw.Amount.Float64(); err == nil {
			ev.AmountUSD = v
		}
	}

	// Вложенный формат: поля лежат внутри payment{}
	if raw.Payment != nil {
		if ev.TransactionID == "" {
			ev.TransactionID = stringField(raw.Payment, "txHash", "id")
		}
		if ev.Invoice == "" {
			ev.Invoice = stringField(raw.Payment, "externalId")
		}
		if ev.AmountUSD == 0 {
			ev.AmountUSD = floatField(raw.Payment, "displayAmount", "amount")
		}
	}
	if ev.TransactionID == "" {
		ev.TransactionID = raw.PaymentID
	}

	if ev.Type == "" || ev.TransactionID == "" {
		return DaimoEvent{}, apperrors.ValidationError("Webhook payload missing type or transaction id", nil)
	}
	return ev, nil
}

// NormalizeDaimoStatus переводит тип события в нормализованный результат.
func NormalizeDaimoStatus(eventType string) (ResultKind, bool) {
	switch eventType {
	case "payment_completed":
		return ResultApproved, true
	case "payment_started":
		return ResultPendingChallenge, true
	case "payment_bounced", "payment_failed", "payment_refunded":
		return ResultRejected, true
	}
	return "", false
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func floatField(m map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	return 0
}
