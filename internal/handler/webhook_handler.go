package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/infrastructure/midtrans"
	"github.com/mansoorceksport/sitekit/internal/infrastructure/xendit"
	"github.com/mansoorceksport/sitekit/internal/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// XenditCallbackHeader carries the shared verification token on Xendit callbacks
const XenditCallbackHeader = "x-callback-token"

// WebhookHandler handles gateway payment notifications
type WebhookHandler struct {
	payments *service.PaymentDispatcher
	logger   zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(payments *service.PaymentDispatcher) *WebhookHandler {
	return &WebhookHandler{
		payments: payments,
		logger:   log.With().Str("component", "webhook").Logger(),
	}
}

// Xendit handles POST /v1/webhooks/xendit
// This is a public endpoint - the callback token is the only authentication
func (h *WebhookHandler) Xendit(c *fiber.Ctx) error {
	ctx := c.UserContext()

	valid, err := h.payments.VerifyXenditCallback(ctx, c.Get(XenditCallbackHeader))
	if err != nil {
		return writeError(c, err)
	}
	if !valid {
		h.logger.Warn().Str("ip", c.IP()).Msg("xendit callback token rejected")
		return fail(c, fiber.StatusUnauthorized, "invalid callback token")
	}

	var req xendit.CallbackPayload
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	h.logger.Info().Str("external_id", req.ExternalID).Str("invoice_id", req.ID).Str("status", req.Status).Msg("xendit callback received")

	return h.apply(c, service.Notification{
		Provider:    domain.ProviderXendit,
		OrderRef:    req.ExternalID,
		ProviderRef: req.ID,
		Status:      xendit.MapStatus(req.Status),
		Message:     "xendit: " + req.Status,
	})
}

// Midtrans handles POST /v1/webhooks/midtrans
func (h *WebhookHandler) Midtrans(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req midtrans.Notification
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	valid, err := h.payments.VerifyMidtransNotification(ctx, req)
	if err != nil {
		return writeError(c, err)
	}
	if !valid {
		h.logger.Warn().Str("order_id", req.OrderID).Msg("midtrans signature rejected")
		return fail(c, fiber.StatusUnauthorized, "invalid signature")
	}
	h.logger.Info().Str("order_id", req.OrderID).Str("transaction_status", req.TransactionStatus).Str("fraud_status", req.FraudStatus).Msg("midtrans notification received")

	return h.apply(c, service.Notification{
		Provider:    domain.ProviderMidtrans,
		OrderRef:    req.OrderID,
		ProviderRef: req.TransactionID,
		Status:      midtrans.MapStatus(req.TransactionStatus, req.FraudStatus),
		Message:     "midtrans: " + req.TransactionStatus,
	})
}

func (h *WebhookHandler) apply(c *fiber.Ctx, n service.Notification) error {
	if n.OrderRef == "" {
		return fail(c, fiber.StatusBadRequest, "missing order reference")
	}
	if err := h.payments.HandleNotification(c.UserContext(), n); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.logger.Warn().Str("order_ref", n.OrderRef).Str("provider", string(n.Provider)).Msg("notification for unknown attempt")
			return fail(c, fiber.StatusNotFound, "payment attempt not found")
		}
		h.logger.Error().Err(err).Str("order_ref", n.OrderRef).Msg("notification failed")
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "notification processed",
	})
}
