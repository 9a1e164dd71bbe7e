package handler

import (
	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/middleware"
	"github.com/mansoorceksport/sitekit/internal/service"
	"github.com/mansoorceksport/sitekit/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Function names served under /v1/functions/:name
const (
	FunctionPaymentGateway = "payment-gateway"
	FunctionPayments       = "payments"
)

type functionCall struct {
	Action string `json:"action"`
}

// action is one privileged operation. A nil roles list admits any signed-in caller.
type action struct {
	roles []string
	run   func(c *fiber.Ctx, claims *domain.AccessClaims, body []byte) (interface{}, error)
}

// FunctionsHandler is the action-discriminated gateway used by the admin panel and checkout
type FunctionsHandler struct {
	verifier middleware.TokenVerifier
	settings *service.GatewaySettingsService
	payments *service.PaymentDispatcher
	registry map[string]map[string]action
	logger   zerolog.Logger
}

// NewFunctionsHandler builds the handler and registers every action it dispatches
func NewFunctionsHandler(verifier middleware.TokenVerifier, settings *service.GatewaySettingsService, payments *service.PaymentDispatcher) *FunctionsHandler {
	h := &FunctionsHandler{
		verifier: verifier,
		settings: settings,
		payments: payments,
		logger:   log.With().Str("component", "functions").Logger(),
	}
	staff := []string{domain.RoleAdmin, domain.RoleSuperAdmin}
	owner := []string{domain.RoleSuperAdmin}
	h.registry = map[string]map[string]action{
		FunctionPaymentGateway: {
			"status":        {run: h.gatewayStatus},
			"get_settings":  {roles: staff, run: h.getSettings},
			"save_settings": {roles: owner, run: h.saveSettings},
			"set_active":    {roles: owner, run: h.setActive},
		},
		FunctionPayments: {
			"create_charge":  {run: h.createCharge},
			"capture_paypal": {run: h.capturePayPal},
		},
	}
	return h
}

// Invoke handles POST /v1/functions/:name. Unknown functions and actions are rejected
// before the token is looked at; nothing runs until the role check passes.
func (h *FunctionsHandler) Invoke(c *fiber.Ctx) error {
	name := c.Params("name")
	actions, found := h.registry[name]
	if !found {
		return fail(c, fiber.StatusBadRequest, "unknown function")
	}

	body := c.Body()
	var call functionCall
	if err := sonic.Unmarshal(body, &call); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	act, found := actions[call.Action]
	if !found {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "unknown action",
			"action":  call.Action,
		})
	}

	telemetry.SetSpanAttribute(c, "function.name", name)
	telemetry.SetSpanAttribute(c, "function.action", call.Action)

	token, present := middleware.BearerToken(c)
	if !present {
		return fail(c, fiber.StatusUnauthorized, "missing authorization token")
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "invalid or expired token")
	}
	if act.roles != nil && !service.HasAnyRole(claims.Roles, act.roles...) {
		h.logger.Warn().Str("function", name).Str("action", call.Action).Str("user_id", claims.UserID).Msg("action denied")
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success":        false,
			"error":          "insufficient permissions",
			"required_roles": act.roles,
		})
	}

	result, err := act.run(c, claims, body)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, result)
}

// decode unmarshals the action payload and runs its validate tags
func decode(body []byte, dst interface{}) error {
	if err := sonic.Unmarshal(body, dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return service.ValidateInput(dst)
}

func (h *FunctionsHandler) gatewayStatus(c *fiber.Ctx, _ *domain.AccessClaims, _ []byte) (interface{}, error) {
	return h.settings.Status(c.UserContext())
}

func (h *FunctionsHandler) getSettings(c *fiber.Ctx, _ *domain.AccessClaims, _ []byte) (interface{}, error) {
	return h.settings.Settings(c.UserContext())
}

func (h *FunctionsHandler) saveSettings(c *fiber.Ctx, claims *domain.AccessClaims, body []byte) (interface{}, error) {
	var in service.SaveGatewayConfigInput
	if err := decode(body, &in); err != nil {
		return nil, err
	}
	view, err := h.settings.SaveConfig(c.UserContext(), in)
	if err != nil {
		return nil, err
	}
	h.logger.Info().Str("user_id", claims.UserID).Str("provider", in.Provider).Msg("gateway settings saved")
	return view, nil
}

type setActiveRequest struct {
	ActiveProvider string `json:"active_provider" validate:"omitempty,oneof=xendit midtrans paypal"`
}

func (h *FunctionsHandler) setActive(c *fiber.Ctx, claims *domain.AccessClaims, body []byte) (interface{}, error) {
	var in setActiveRequest
	if err := decode(body, &in); err != nil {
		return nil, err
	}
	if err := h.settings.SetActive(c.UserContext(), in.ActiveProvider); err != nil {
		return nil, err
	}
	h.logger.Info().Str("user_id", claims.UserID).Str("active_provider", in.ActiveProvider).Msg("active gateway set")
	return h.settings.Status(c.UserContext())
}

type createChargeRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Provider  string `json:"provider" validate:"omitempty,oneof=xendit midtrans paypal"`
	CardToken string `json:"card_token"`
}

// createCharge runs checkout for a session the caller holds. Wizard sessions are anonymous,
// so holding the session id is the ownership proof.
func (h *FunctionsHandler) createCharge(c *fiber.Ctx, _ *domain.AccessClaims, body []byte) (interface{}, error) {
	var in createChargeRequest
	if err := decode(body, &in); err != nil {
		return nil, err
	}
	return h.payments.Checkout(c.UserContext(), in.SessionID, service.CheckoutRequest{
		Provider:  in.Provider,
		CardToken: in.CardToken,
	})
}

type capturePayPalRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	OrderID   string `json:"order_id" validate:"required"`
}

func (h *FunctionsHandler) capturePayPal(c *fiber.Ctx, _ *domain.AccessClaims, body []byte) (interface{}, error) {
	var in capturePayPalRequest
	if err := decode(body, &in); err != nil {
		return nil, err
	}
	return h.payments.CapturePayPal(c.UserContext(), in.SessionID, in.OrderID)
}
