package handler

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/sitekit/internal/middleware"
	"github.com/mansoorceksport/sitekit/internal/service"
)

// AdminHandler serves the settings panels, role management and the staff lead list
type AdminHandler struct {
	catalog         *service.CatalogService
	auth            *service.AuthService
	wizards         *service.WizardService
	maxUploadSizeMB int64
}

func NewAdminHandler(catalog *service.CatalogService, auth *service.AuthService, wizards *service.WizardService, maxUploadSizeMB int64) *AdminHandler {
	if maxUploadSizeMB <= 0 {
		maxUploadSizeMB = 5
	}
	return &AdminHandler{
		catalog:         catalog,
		auth:            auth,
		wizards:         wizards,
		maxUploadSizeMB: maxUploadSizeMB,
	}
}

// bind decodes the body; field validation happens in the service
func bind(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}

func reply(c *fiber.Ctx, status int, data interface{}, err error) error {
	if err != nil {
		return writeError(c, err)
	}
	if status == fiber.StatusCreated {
		return created(c, data)
	}
	return ok(c, data)
}

func deleted(c *fiber.Ctx, err error) error {
	if err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ===== Packages =====

func (h *AdminHandler) ListPackages(c *fiber.Ctx) error {
	pkgs, err := h.catalog.AdminListPackages(c.UserContext())
	return reply(c, fiber.StatusOK, pkgs, err)
}

func (h *AdminHandler) CreatePackage(c *fiber.Ctx) error {
	var in service.PackageInput
	if err := bind(c, &in); err != nil {
		return writeError(c, err)
	}
	pkg, err := h.catalog.CreatePackage(c.UserContext(), in)
	return reply(c, fiber.StatusCreated, pkg, err)
}

func (h *AdminHandler) UpdatePackage(c *fiber.Ctx) error {
	var in service.PackageInput
	if err := bind(c, &in); err != nil {
		return writeError(c, err)
	}
	pkg, err := h.catalog.UpdatePackage(c.UserContext(), c.Params("id"), in)
	return reply(c, fiber.StatusOK, pkg, err)
}

func (h *AdminHandler) DeletePackage(c *fiber.Ctx) error {
	return deleted(c, h.catalog.DeletePackage(c.UserContext(), c.Params("id")))
}

// ===== Durations =====

// ListDurations handles GET /v1/admin/packages/:id/durations
func (h *AdminHandler) ListDurations(c *fiber.Ctx) error {
	rows, err := h.catalog.ListDurations(c.UserContext(), c.Params("id"))
	return reply(c, fiber.StatusOK, rows, err)
}

// UpsertDuration handles PUT /v1/admin/packages/:id/durations. The row is keyed by months.
func (h *AdminHandler) UpsertDuration(c *fiber.Ctx) error {
	var in service.DurationOptionInput
	if err := bind(c, &in); err != nil {
		return writeError(c, err)
	}
	in.PackageID = c.Params("id")
	row, err := h.catalog.UpsertDuration(c.UserContext(), in)
	return reply(c, fiber.StatusOK, row, err)
}

func (h *AdminHandler) DeleteDuration(c *fiber.Ctx) error {
	return deleted(c, h.catalog.DeleteDuration(c.UserContext(), c.Params("id")))
}

// ===== Add-ons =====

func (h *AdminHandler) ListAddOns(c *fiber.Ctx) error {
	rows, err := h.catalog.ListAddOns(c.UserContext())
	return reply(c, fiber.StatusOK, rows, err)
}

func (h *AdminHandler) CreateAddOn(c *fiber.Ctx) error {
	var in service.AddOnInput
	if err := bind(c, &in); err != nil {
		return writeError(c, err)
	}
	row, err := h.catalog.CreateAddOn(c.UserContext(), in)
	return reply(c, fiber.StatusCreated, row, err)
}

func (h *AdminHandler) UpdateAddOn(c *fiber.Ctx) error {
	var in service.AddOnInput
	if err := bind(c, &in); err != nil {
		return writeError(c, err)
	}
	row, err := h.catalog.UpdateAddOn(c.UserContext(), c.Params("id"), in)
	return reply(c, fiber.StatusOK, row, err)
}

func (h *AdminHandler) DeleteAddOn(c *fiber.Ctx) error {
	return deleted(c, h.catalog.DeleteAddOn(c.UserContext(), c.Params("id")))
}

// ===== Templates =====

func (h *AdminHandler) ListTemplates(c *fiber.Ctx) error {
	rows, err := h.catalog.AdminListTemplates(c.UserContext())
	return reply(c, fiber.StatusOK, rows, err)
}

func (h *AdminHandler) CreateTemplate(c *fiber.Ctx) error {
	var in service.TemplateInput
	if err := bind(c, &in); err != nil {
		return writeError(c, err)
	}
	row, err := h.catalog.CreateTemplate(c.UserContext(), in)
	return reply(c, fiber.StatusCreated, row, err)
}

func (h *AdminHandler) UpdateTemplate(c *fiber.Ctx) error {
	var in service.TemplateInput
	if err := bind(c, &in); err != nil {
		return writeError(c, err)
	}
	row, err := h.catalog.UpdateTemplate(c.UserContext(), c.Params("id"), in)
	return reply(c, fiber.StatusOK, row, err)
}

// UploadPreview handles POST /v1/admin/templates/:id/preview (multipart field "preview")
func (h *AdminHandler) UploadPreview(c *fiber.Ctx) error {
	file, err := c.FormFile("preview")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "missing preview file")
	}

	maxSize := h.maxUploadSizeMB * 1024 * 1024
	if file.Size > maxSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"success":     false,
			"error":       "file too large",
			"max_size_mb": h.maxUploadSizeMB,
		})
	}

	f, err := file.Open()
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "unreadable preview file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "unreadable preview file")
	}

	tmpl, err := h.catalog.UploadTemplatePreview(c.UserContext(), c.Params("id"), data, file.Header.Get(fiber.HeaderContentType))
	return reply(c, fiber.StatusOK, tmpl, err)
}

func (h *AdminHandler) DeleteTemplate(c *fiber.Ctx) error {
	return deleted(c, h.catalog.DeleteTemplate(c.UserContext(), c.Params("id")))
}

// ===== Promo codes =====

func (h *AdminHandler) ListPromos(c *fiber.Ctx) error {
	rows, err := h.catalog.ListPromos(c.UserContext())
	return reply(c, fiber.StatusOK, rows, err)
}

func (h *AdminHandler) CreatePromo(c *fiber.Ctx) error {
	var in service.PromoInput
	if err := bind(c, &in); err != nil {
		return writeError(c, err)
	}
	row, err := h.catalog.CreatePromo(c.UserContext(), in)
	return reply(c, fiber.StatusCreated, row, err)
}

func (h *AdminHandler) UpdatePromo(c *fiber.Ctx) error {
	var in service.PromoInput
	if err := bind(c, &in); err != nil {
		return writeError(c, err)
	}
	row, err := h.catalog.UpdatePromo(c.UserContext(), c.Params("id"), in)
	return reply(c, fiber.StatusOK, row, err)
}

func (h *AdminHandler) DeletePromo(c *fiber.Ctx) error {
	return deleted(c, h.catalog.DeletePromo(c.UserContext(), c.Params("id")))
}

// ===== Users & roles (super_admin) =====

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

// ListUsers handles GET /v1/admin/users?role=
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	role := c.Query("role", "admin")
	users, err := h.auth.ListByRole(c.UserContext(), role)
	return reply(c, fiber.StatusOK, users, err)
}

// GrantRole handles POST /v1/admin/users/:id/roles
func (h *AdminHandler) GrantRole(c *fiber.Ctx) error {
	var req roleRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	user, err := h.auth.GrantRole(c.UserContext(), middleware.GetRoles(c), c.Params("id"), req.Role)
	return reply(c, fiber.StatusOK, user, err)
}

// RevokeRole handles DELETE /v1/admin/users/:id/roles/:role
func (h *AdminHandler) RevokeRole(c *fiber.Ctx) error {
	user, err := h.auth.RevokeRole(c.UserContext(), middleware.GetRoles(c), c.Params("id"), c.Params("role"))
	return reply(c, fiber.StatusOK, user, err)
}

// ===== Staff =====

// Leads handles GET /v1/staff/leads?kind=&limit=
func (h *AdminHandler) Leads(c *fiber.Ctx) error {
	drafts, err := h.wizards.Leads(c.UserContext(), c.Query("kind"), c.QueryInt("limit", 50))
	return reply(c, fiber.StatusOK, drafts, err)
}
