package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pnptv_backend/internal/logger"
	"pnptv_backend/pkg/apperrors"
)

// EpaycoClient — REST-клиент ePayco. У ePayco нет Go SDK,
// поэтому клиент собран вручную поверх net/http.
type EpaycoClient struct {
	publicKey  string
	privateKey string
	baseURL    string
	testMode   bool
	httpClient *http.Client
	retry      RetryPolicy
}

func NewEpaycoClient(publicKey, privateKey, baseURL string, testMode bool) *EpaycoClient {
	return &EpaycoClient{
		publicKey:  publicKey,
		privateKey: privateKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		testMode:   testMode,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      DefaultRetryPolicy(),
	}
}

// epaycoResponse — общая обертка ответов ePayco.
type epaycoResponse struct {
	Success bool            `json:"success"`
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// epaycoTxnData — поля транзакции, которые нас интересуют.
type epaycoTxnData struct {
	RefPayco      json.Number `json:"ref_payco"`
	TransactionID string      `json:"transactionID"`
	Estado        string      `json:"estado"`
	Respuesta     string      `json:"respuesta"`
	URLBanco      string      `json:"urlbanco"`
	Franchise     string      `json:"franquicia"`
	Amount        json.Number `json:"valor"`
	Currency      string      `json:"moneda"`
}

func (c *EpaycoClient) do(ctx context.Context, method, path string, body interface{}) (*epaycoResponse, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.InternalError("Failed to encode gateway request", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, apperrors.InternalError("Failed to build gateway request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	// ePayco принимает Basic auth из пары ключей
	creds := base64.StdEncoding.EncodeToString([]byte(c.publicKey + ":" + c.privateKey))
	req.Header.Set("Authorization", "Basic "+creds)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.GatewayError("ePayco request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.GatewayError("Failed to read ePayco response", err)
	}
	if resp.StatusCode >= 500 {
		return nil, apperrors.GatewayError(fmt.Sprintf("ePayco returned HTTP %d", resp.StatusCode), nil)
	}

	var out epaycoResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperrors.GatewayError("Failed to decode ePayco response", err)
	}
	return &out, nil
}

// CreateToken токенизирует карту на стороне сервера. Используется только
// как запасной путь, основной поток получает токен от браузера.
func (c *EpaycoClient) CreateToken(ctx context.Context, cardJSON map[string]string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/tokens", cardJSON)
	if err != nil {
		return "", err
	}
	var data struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.ID == "" {
		return "", apperrors.GatewayError("ePayco tokenization failed: "+resp.Message, err)
	}
	return data.ID, nil
}

// CreateCustomer создает клиента ePayco, привязывая токен карты.
func (c *EpaycoClient) CreateCustomer(ctx context.Context, token, name, email string) (string, error) {
	body := map[string]interface{}{
		"token_card": token,
		"name":       name,
		"email":      email,
		"default":    true,
	}
	resp, err := c.do(ctx, http.MethodPost, "/payment/v1/customer/create", body)
	if err != nil {
		return "", err
	}
	var data struct {
		CustomerID string `json:"customerId"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.CustomerID == "" {
		return "", apperrors.GatewayError("ePayco customer creation failed: "+resp.Message, err)
	}
	return data.CustomerID, nil
}

// CreateCharge отправляет списание по токену. Не ретраится: повтор
// неидемпотентного charge может списать деньги дважды.
func (c *EpaycoClient) CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	body := map[string]interface{}{
		"token_card":  req.Token,
		"customer_id": req.CustomerID,
		"bill":        req.Invoice,
		"description": req.Description,
		"value":       fmt.Sprintf("%.0f", req.Amount),
		"currency":    req.Currency,
		"email":       req.Email,
		"name":        req.Name,
		"ip":          req.IP,
		"dues":        "1",
		"test":        c.testMode,
	}
	if req.DocType != "" {
		body["doc_type"] = req.DocType
	}
	if req.DocNumber != "" {
		body["doc_number"] = req.DocNumber
	}
	if req.UserAgent != "" {
		body["user_agent"] = req.UserAgent
	}
	if req.Fingerprint != "" {
		body["fingerprint"] = req.Fingerprint
	}
	if req.Use3DS {
		body["threeds"] = true
	}

	resp, err := c.do(ctx, http.MethodPost, "/payment/v1/charge/create", body)
	if err != nil {
		return ChargeResult{}, err
	}

	var data epaycoTxnData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return ChargeResult{}, apperrors.GatewayError("Failed to decode ePayco charge response", err)
	}
	return c.normalize(data), nil
}

// GetTransactionStatus опрашивает транзакцию по ref_payco.
// Идемпотентно, поэтому здесь (и только здесь) работает retry policy.
func (c *EpaycoClient) GetTransactionStatus(ctx context.Context, ref string) (ChargeResult, error) {
	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ChargeResult{}, ctx.Err()
			case <-time.After(c.retry.Delay(attempt - 1)):
			}
		}

		resp, err := c.do(ctx, http.MethodGet, "/validation/v1/reference/"+ref, nil)
		if err != nil {
			lastErr = err
			logger.CtxWithError(ctx, err).Warn("ePayco status query failed",
				"ref_payco", ref, "attempt", attempt+1)
			continue
		}

		var data epaycoTxnData
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			lastErr = apperrors.GatewayError("Failed to decode ePayco status response", err)
			continue
		}
		return c.normalize(data), nil
	}
	return ChargeResult{}, lastErr
}

// normalize переводит словарь статусов ePayco в нормализованный результат.
// Это единственное место, где испанские статусы имеют значение.
func (c *EpaycoClient) normalize(data epaycoTxnData) ChargeResult {
	res := ChargeResult{
		Reference:     data.RefPayco.String(),
		TransactionID: data.TransactionID,
	}
	if res.TransactionID == "" {
		res.TransactionID = res.Reference
	}

	switch strings.ToLower(strings.TrimSpace(data.Estado)) {
	case "aceptada", "aprobada":
		res.Kind = ResultApproved
	case "pendiente":
		res.Kind = ResultPendingChallenge
		res.RedirectURL = data.URLBanco
	default:
		// Rechazada, Fallida и все неизвестное считаем отказом
		res.Kind = ResultRejected
		res.Reason = sanitizeReason(data.Respuesta)
	}
	return res
}

// sanitizeReason убирает из причины отказа все, что может быть
// чувствительным, и оставляет короткий человекочитаемый текст.
func sanitizeReason(raw string) string {
	reason := strings.TrimSpace(raw)
	if reason == "" {
		return "Transaction declined"
	}
	if len(reason) > 120 {
		reason = reason[:120]
	}
	return reason
}

// ConfirmationSignature считает подпись webhook-подтверждения:
// SHA256 от цепочки полей через "^".
func (c *EpaycoClient) ConfirmationSignature(custID, refPayco, txnID, amount, currency string) string {
	chain := strings.Join([]string{custID, c.privateKey, refPayco, txnID, amount, currency}, "^")
	sum := sha256.Sum256([]byte(chain))
	return hex.EncodeToString(sum[:])
}

// CheckoutChecksum — MD5-вариант подписи, которым подписывается
// checkout-страница (custID^pKey^invoice^amount^currency).
func (c *EpaycoClient) CheckoutChecksum(custID, invoice, amount, currency string) string {
	chain := strings.Join([]string{custID, c.privateKey, invoice, amount, currency}, "^")
	sum := md5.Sum([]byte(chain))
	return hex.EncodeToString(sum[:])
}

// VerifySignature сравнивает подпись из вебхука с обеими вычисленными
// (SHA256 и MD5-вариант) за постоянное время.
func (c *EpaycoClient) VerifySignature(custID, refPayco, txnID, invoice, amount, currency, got string) bool {
	if got == "" {
		return false
	}
	want := c.ConfirmationSignature(custID, refPayco, txnID, amount, currency)
	if hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return true
	}
	legacy := c.CheckoutChecksum(custID, invoice, amount, currency)
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(legacy))
}

var _ Gateway = (*EpaycoClient)(nil)
