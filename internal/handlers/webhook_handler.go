package handlers

import (
	"io"
	"net/http"

	paymentsvc "pnptv_backend/internal/services/payment"
	"pnptv_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

// WebhookHandler принимает подтверждения провайдеров. Эндпоинты без
// аутентификации: единственная защита это подпись внутри payload.
type WebhookHandler struct {
	*BaseHandler
	webhookService *paymentsvc.WebhookService
}

func NewWebhookHandler(base *BaseHandler, webhookService *paymentsvc.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    base,
		webhookService: webhookService,
	}
}

func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/epayco", h.Epayco)
		webhooks.POST("/daimo", h.Daimo)
	}
}

// Epayco обрабатывает form-encoded подтверждение ePayco.
func (h *WebhookHandler) Epayco(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		h.HandleServiceError(c, apperrors.NewBadRequestError("Invalid form body"))
		return
	}

	ack, err := h.webhookService.ProcessEpaycoWebhook(c.Request.Context(), c.Request.PostForm)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// Daimo обрабатывает JSON-событие Daimo.
func (h *WebhookHandler) Daimo(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		h.HandleServiceError(c, apperrors.NewBadRequestError("Failed to read request body"))
		return
	}

	ack, err := h.webhookService.ProcessDaimoWebhook(c.Request.Context(), body)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}
