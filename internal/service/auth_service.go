package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FirebaseAuthClient defines the interface for Firebase Auth operations
// This allows mocking for tests
type FirebaseAuthClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// ErrLoginDisabled is returned when Firebase is not configured
var ErrLoginDisabled = errors.New("login is not configured")

// AuthService handles authentication and role management
type AuthService struct {
	userRepo   domain.UserRepository
	authClient FirebaseAuthClient
	tokens     *TokenService
	logger     zerolog.Logger
}

// NewAuthService creates a new auth service. authClient may be nil, which disables login.
func NewAuthService(userRepo domain.UserRepository, authClient FirebaseAuthClient, tokens *TokenService) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		authClient: authClient,
		tokens:     tokens,
		logger:     log.With().Str("component", "auth").Logger(),
	}
}

// LoginResponse contains the user, a service token and whether the account was just created
type LoginResponse struct {
	User      *domain.User `json:"user"`
	Token     *AccessToken `json:"token"`
	IsNewUser bool         `json:"is_new_user"`
}

// LoginOrRegister exchanges a Firebase ID token for a service token.
// Pre-provisioned accounts (created by email) are linked on first login;
// unknown identities become new users with the user role.
func (s *AuthService) LoginOrRegister(ctx context.Context, firebaseToken string) (*LoginResponse, error) {
	if s.authClient == nil {
		return nil, ErrLoginDisabled
	}

	token, err := s.authClient.VerifyIDToken(ctx, firebaseToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	email, _ := token.Claims["email"].(string)
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.NewValidationError("email", "firebase account has no email address")
	}
	name, _ := token.Claims["name"].(string)
	if name == "" {
		name = email
	}

	user, err := s.userRepo.GetByFirebaseUID(ctx, token.UID)
	if errors.Is(err, domain.ErrNotFound) {
		user, err = s.linkByEmail(ctx, email, token.UID)
	}

	isNew := false
	if errors.Is(err, domain.ErrNotFound) {
		user = &domain.User{
			FirebaseUID: token.UID,
			Email:       email,
			Name:        name,
			Roles:       []string{domain.RoleUser},
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		isNew = true
		s.logger.Info().Str("user_id", user.ID).Msg("user registered")
	} else if err != nil {
		return nil, err
	}

	access, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{User: user, Token: access, IsNewUser: isNew}, nil
}

// linkByEmail attaches a Firebase identity to an account created ahead of time by email
func (s *AuthService) linkByEmail(ctx context.Context, email, firebaseUID string) (*domain.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.FirebaseUID != "" && user.FirebaseUID != firebaseUID {
		return nil, fmt.Errorf("%w: email already linked to a different account", domain.ErrForbidden)
	}
	if err := s.userRepo.UpdateFirebaseUID(ctx, user.ID, firebaseUID); err != nil {
		return nil, fmt.Errorf("failed to link firebase account: %w", err)
	}
	user.FirebaseUID = firebaseUID
	s.logger.Info().Str("user_id", user.ID).Msg("firebase identity linked")
	return user, nil
}

// GrantRole adds role to a user. Only super admins may change roles.
func (s *AuthService) GrantRole(ctx context.Context, actorRoles []string, userID, role string) (*domain.User, error) {
	if err := s.checkRoleChange(actorRoles, role); err != nil {
		return nil, err
	}
	if err := s.userRepo.AddRole(ctx, userID, role); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Str("role", role).Msg("role granted")
	return s.userRepo.GetByID(ctx, userID)
}

// RevokeRole removes role from a user. Only super admins may change roles.
func (s *AuthService) RevokeRole(ctx context.Context, actorRoles []string, userID, role string) (*domain.User, error) {
	if err := s.checkRoleChange(actorRoles, role); err != nil {
		return nil, err
	}
	if err := s.userRepo.RemoveRole(ctx, userID, role); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Str("role", role).Msg("role revoked")
	return s.userRepo.GetByID(ctx, userID)
}

func (s *AuthService) checkRoleChange(actorRoles []string, role string) error {
	if !HasAnyRole(actorRoles, domain.RoleSuperAdmin) {
		return domain.ErrForbidden
	}
	if !domain.ValidRole(role) {
		return domain.NewValidationError("role", "must be user, assist, admin or super_admin")
	}
	return nil
}

// ListByRole returns the users holding role, for the staff screens
func (s *AuthService) ListByRole(ctx context.Context, role string) ([]*domain.User, error) {
	if !domain.ValidRole(role) {
		return nil, domain.NewValidationError("role", "must be user, assist, admin or super_admin")
	}
	return s.userRepo.GetByRole(ctx, role)
}

// HasAnyRole reports whether roles contains at least one of allowed
func HasAnyRole(roles []string, allowed ...string) bool {
	for _, r := range roles {
		for _, a := range allowed {
			if r == a {
				return true
			}
		}
	}
	return false
}
