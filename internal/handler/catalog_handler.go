package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CatalogHandler serves the public pricing endpoints
type CatalogHandler struct {
	catalog *service.CatalogService
	quotes  *service.QuoteService
	promos  *service.PromoService
	logger  zerolog.Logger
}

func NewCatalogHandler(catalog *service.CatalogService, quotes *service.QuoteService, promos *service.PromoService) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		quotes:  quotes,
		promos:  promos,
		logger:  log.With().Str("component", "catalog_http").Logger(),
	}
}

// ListPackages handles GET /v1/catalog/packages
func (h *CatalogHandler) ListPackages(c *fiber.Ctx) error {
	pkgs, err := h.catalog.ListPackages(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, pkgs)
}

// GetPackage handles GET /v1/catalog/packages/:id
func (h *CatalogHandler) GetPackage(c *fiber.Ctx) error {
	pkg, err := h.catalog.GetPackage(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, pkg)
}

// ListTemplates handles GET /v1/catalog/templates
func (h *CatalogHandler) ListTemplates(c *fiber.Ctx) error {
	tmpls, err := h.catalog.ListTemplates(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, tmpls)
}

// Quote handles POST /v1/quote
func (h *CatalogHandler) Quote(c *fiber.Ctx) error {
	var req service.QuoteRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	q, err := h.quotes.Quote(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	if q.PromoErr != nil {
		h.logger.Warn().Err(q.PromoErr).Msg("quote priced without promo")
	}
	return ok(c, q)
}

// ValidatePromoRequest checks a code against a subtotal. The order facts are optional
// and only matter for promos with an eligibility rule.
type ValidatePromoRequest struct {
	Code      string `json:"code" validate:"required,max=40"`
	Subtotal  int64  `json:"subtotal" validate:"gte=0"`
	PackageID string `json:"package_id"`
	Months    int    `json:"months" validate:"gte=0"`
	Cadence   string `json:"cadence" validate:"omitempty,oneof=monthly yearly"`
}

// ValidatePromo handles POST /v1/promo/validate. A code that does not apply is a 200 with ok=false.
func (h *CatalogHandler) ValidatePromo(c *fiber.Ctx) error {
	var req ValidatePromoRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	res, err := h.promos.Validate(c.UserContext(), req.Code, req.Subtotal, service.PromoFacts{
		PackageID: req.PackageID,
		Months:    req.Months,
		Cadence:   domain.Cadence(req.Cadence),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("promo validation failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success":   false,
			"error":     "promo could not be checked, please try again",
			"retryable": true,
		})
	}
	return ok(c, res)
}
