package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/sitekit/internal/middleware"
	"github.com/mansoorceksport/sitekit/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginOrRegister handles POST /v1/auth/login with the Firebase ID token as bearer
func (h *AuthHandler) LoginOrRegister(c *fiber.Ctx) error {
	token, found := middleware.BearerToken(c)
	if !found {
		return fail(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	resp, err := h.authService.LoginOrRegister(c.UserContext(), token)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"token":       resp.Token.AccessToken,
		"token_type":  resp.Token.TokenType,
		"expires_in":  resp.Token.ExpiresIn,
		"is_new_user": resp.IsNewUser,
		"message":     welcomeMessage(resp),
		"user": fiber.Map{
			"id":    resp.User.ID,
			"email": resp.User.Email,
			"name":  resp.User.Name,
			"roles": resp.User.Roles,
		},
	})
}

// Me handles GET /v1/auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return ok(c, fiber.Map{
		"user_id": middleware.GetUserID(c),
		"roles":   middleware.GetRoles(c),
	})
}

func welcomeMessage(resp *service.LoginResponse) string {
	if resp.IsNewUser {
		return "Welcome! Your account has been created."
	}
	return "Welcome back!"
}
