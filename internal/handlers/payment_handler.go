package handlers

import (
	"net/http"

	"pnptv_backend/internal/config"
	"pnptv_backend/internal/dto"
	paymentsvc "pnptv_backend/internal/services/payment"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	*BaseHandler
	cfg            *config.Config
	paymentService *paymentsvc.PaymentService
	chargeService  *paymentsvc.ChargeService
}

func NewPaymentHandler(base *BaseHandler, cfg *config.Config, paymentService *paymentsvc.PaymentService, chargeService *paymentsvc.ChargeService) *PaymentHandler {
	return &PaymentHandler{
		BaseHandler:    base,
		cfg:            cfg,
		paymentService: paymentService,
		chargeService:  chargeService,
	}
}

func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.POST("", h.CreatePayment)
		payments.GET("/:paymentId", h.GetCheckout)
		payments.POST("/:paymentId/charge", h.Charge)
		payments.GET("/:paymentId/status", h.GetStatus)
	}
}

// CreatePayment создает pending-платеж и возвращает ссылку на оплату.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req dto.CreatePaymentRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	payment, err := h.paymentService.CreatePayment(c.Request.Context(), req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"paymentId":  payment.ID,
		"reference":  payment.Reference,
		"paymentUrl": payment.PaymentURL,
		"status":     string(payment.Status),
	})
}

// GetCheckout отдает payload для hosted checkout-страницы.
func (h *PaymentHandler) GetCheckout(c *gin.Context) {
	resp, err := h.paymentService.GetCheckout(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Charge принимает токенизированное списание со страницы оплаты.
func (h *PaymentHandler) Charge(c *gin.Context) {
	var req dto.ChargeRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	resp, err := h.chargeService.ProcessTokenizedCharge(
		c.Request.Context(),
		c.Param("paymentId"),
		req,
		paymentsvc.ClientInfo{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		},
	)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetStatus — опрос статуса со страницы оплаты, с inline-восстановлением
// зависших платежей.
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	resp, err := h.paymentService.GetStatusWithRecovery(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
