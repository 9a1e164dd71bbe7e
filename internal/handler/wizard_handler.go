package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/service"
	"github.com/mansoorceksport/sitekit/internal/wizard"
)

// WizardHandler exposes the order wizard and checkout
type WizardHandler struct {
	wizards  *service.WizardService
	payments *service.PaymentDispatcher
}

func NewWizardHandler(wizards *service.WizardService, payments *service.PaymentDispatcher) *WizardHandler {
	return &WizardHandler{wizards: wizards, payments: payments}
}

type startRequest struct {
	Flow string `json:"flow" validate:"required,oneof=website plan"`
}

type domainRequest struct {
	Domain string `json:"domain" validate:"required,max=253"`
}

type templateRequest struct {
	TemplateID string `json:"template_id" validate:"required"`
}

type packageRequest struct {
	PackageID string `json:"package_id" validate:"required"`
}

type durationRequest struct {
	Months int `json:"months" validate:"gte=0,lte=120"`
	Years  int `json:"years" validate:"gte=0,lte=10"`
}

type addOnsRequest struct {
	AddOns map[string]int `json:"add_ons" validate:"required"`
}

type promoRequest struct {
	Code string `json:"code" validate:"required,max=40"`
}

type stepRequest struct {
	Step string `json:"step" validate:"required"`
}

type captureRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// Start handles POST /v1/wizard
func (h *WizardHandler) Start(c *fiber.Ctx) error {
	var req startRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	st, err := h.wizards.Start(c.UserContext(), req.Flow)
	if err != nil {
		return writeError(c, err)
	}
	return created(c, st)
}

// Get handles GET /v1/wizard/:session
func (h *WizardHandler) Get(c *fiber.Ctx) error {
	st, err := h.wizards.Load(c.UserContext(), c.Params("session"))
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, st)
}

// SetDomain handles PUT /v1/wizard/:session/domain
func (h *WizardHandler) SetDomain(c *fiber.Ctx) error {
	var req domainRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	return h.respond(c)(h.wizards.SetDomain(c.UserContext(), c.Params("session"), req.Domain))
}

// SelectTemplate handles PUT /v1/wizard/:session/template
func (h *WizardHandler) SelectTemplate(c *fiber.Ctx) error {
	var req templateRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	return h.respond(c)(h.wizards.SelectTemplate(c.UserContext(), c.Params("session"), req.TemplateID))
}

// SelectPackage handles PUT /v1/wizard/:session/package
func (h *WizardHandler) SelectPackage(c *fiber.Ctx) error {
	var req packageRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	return h.respond(c)(h.wizards.SelectPackage(c.UserContext(), c.Params("session"), req.PackageID))
}

// SetDuration handles PUT /v1/wizard/:session/duration with either months or years
func (h *WizardHandler) SetDuration(c *fiber.Ctx) error {
	var req durationRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	return h.respond(c)(h.wizards.SetDuration(c.UserContext(), c.Params("session"), service.DurationInput{
		Months: req.Months,
		Years:  req.Years,
	}))
}

// SetAddOns handles PUT /v1/wizard/:session/addons. Adjusted quantities come back as notices.
func (h *WizardHandler) SetAddOns(c *fiber.Ctx) error {
	var req addOnsRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	st, notices, err := h.wizards.SetAddOns(c.UserContext(), c.Params("session"), req.AddOns)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, fiber.Map{"state": st, "notices": notices})
}

// SetDetails handles PUT /v1/wizard/:session/details
func (h *WizardHandler) SetDetails(c *fiber.Ctx) error {
	var customer domain.Customer
	if err := c.BodyParser(&customer); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	return h.respond(c)(h.wizards.SetCustomer(c.UserContext(), c.Params("session"), customer))
}

// GoTo handles PUT /v1/wizard/:session/step, used for back navigation
func (h *WizardHandler) GoTo(c *fiber.Ctx) error {
	var req stepRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	return h.respond(c)(h.wizards.GoTo(c.UserContext(), c.Params("session"), wizard.Step(req.Step)))
}

// Retry handles POST /v1/wizard/:session/retry after a failed payment
func (h *WizardHandler) Retry(c *fiber.Ctx) error {
	return h.respond(c)(h.wizards.Retry(c.UserContext(), c.Params("session")))
}

// ApplyPromo handles PUT /v1/wizard/:session/promo
func (h *WizardHandler) ApplyPromo(c *fiber.Ctx) error {
	var req promoRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	st, res, err := h.wizards.ApplyPromo(c.UserContext(), c.Params("session"), req.Code)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, fiber.Map{"state": st, "promo": res})
}

// ClearPromo handles DELETE /v1/wizard/:session/promo
func (h *WizardHandler) ClearPromo(c *fiber.Ctx) error {
	return h.respond(c)(h.wizards.ClearPromo(c.UserContext(), c.Params("session")))
}

// Quote handles GET /v1/wizard/:session/quote
func (h *WizardHandler) Quote(c *fiber.Ctx) error {
	st, q, err := h.wizards.Quote(c.UserContext(), c.Params("session"))
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, fiber.Map{"state": st, "quote": q})
}

// Checkout handles POST /v1/wizard/:session/checkout
func (h *WizardHandler) Checkout(c *fiber.Ctx) error {
	var req service.CheckoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	res, err := h.payments.Checkout(c.UserContext(), c.Params("session"), req)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, res)
}

// CapturePayPal handles POST /v1/wizard/:session/paypal/capture
func (h *WizardHandler) CapturePayPal(c *fiber.Ctx) error {
	var req captureRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	res, err := h.payments.CapturePayPal(c.UserContext(), c.Params("session"), req.OrderID)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, res)
}

// Availability handles GET /v1/payments/availability
func (h *WizardHandler) Availability(c *fiber.Ctx) error {
	av, err := h.payments.Availability(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, av)
}

// attemptStatus is the public view of a payment attempt
type attemptStatus struct {
	ID          string          `json:"id"`
	OrderRef    string          `json:"order_ref"`
	Provider    domain.Provider `json:"provider"`
	Status      string          `json:"status"`
	Amount      int64           `json:"amount"`
	Message     string          `json:"message,omitempty"`
	RedirectURL string          `json:"redirect_url,omitempty"`
}

func statusOf(a *domain.PaymentAttempt) attemptStatus {
	return attemptStatus{
		ID:          a.ID,
		OrderRef:    a.OrderRef,
		Provider:    a.Provider,
		Status:      a.Status,
		Amount:      a.Amount,
		Message:     a.Message,
		RedirectURL: a.RedirectURL,
	}
}

// PaymentStatus handles GET /v1/payments/:id/status
func (h *WizardHandler) PaymentStatus(c *fiber.Ctx) error {
	attempt, err := h.payments.Attempt(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, statusOf(attempt))
}

func (h *WizardHandler) respond(c *fiber.Ctx) func(*wizard.State, error) error {
	return func(st *wizard.State, err error) error {
		if err != nil {
			return writeError(c, err)
		}
		return ok(c, st)
	}
}
