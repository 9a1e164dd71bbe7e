package handler

import (
	"bytes"
	"html/template"

	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/service"
)

var landingTemplate = template.Must(template.New("landing").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title></head>
<body>
<main>
<h1>{{.Title}}</h1>
<p>{{.Body}}</p>
{{if .Attempt}}<p>Order <strong>{{.Attempt.OrderRef}}</strong> is <strong>{{.Attempt.Status}}</strong>.</p>{{end}}
{{if .Message}}<p>{{.Message}}</p>{{end}}
</main>
</body>
</html>
`))

type landingCopy struct {
	Title string
	Body  string
}

var landingPages = map[string]landingCopy{
	"success": {"Payment received", "Thank you! We will contact you shortly to start on your order."},
	"pending": {"Payment pending", "We are waiting for the payment provider to confirm your payment."},
	"error":   {"Payment failed", "Your payment could not be completed. You can go back and try again."},
}

type landingView struct {
	landingCopy
	Attempt *attemptStatus
	Message string
}

// LandingHandler renders the pages gateways redirect buyers to. They only display the
// stored attempt status; settlement comes from webhooks.
type LandingHandler struct {
	payments *service.PaymentDispatcher
}

func NewLandingHandler(payments *service.PaymentDispatcher) *LandingHandler {
	return &LandingHandler{payments: payments}
}

// Show handles GET /payment/:outcome?attempt=
func (h *LandingHandler) Show(c *fiber.Ctx) error {
	page, found := landingPages[c.Params("outcome")]
	if !found {
		return fail(c, fiber.StatusNotFound, "not found")
	}
	view := landingView{landingCopy: page}

	if id := c.Query("attempt"); id != "" && h.payments != nil {
		attempt, err := h.payments.Attempt(c.UserContext(), id)
		if err == nil {
			s := statusOf(attempt)
			view.Attempt = &s
			if attempt.Status == domain.AttemptStatusFailed {
				view.Message = attempt.Message
			}
		}
	}

	if c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON {
		return ok(c, fiber.Map{"outcome": c.Params("outcome"), "attempt": view.Attempt})
	}

	var buf bytes.Buffer
	if err := landingTemplate.Execute(&buf, view); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}
