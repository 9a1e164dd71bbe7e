package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mansoorceksport/sitekit/internal/config"
	"github.com/mansoorceksport/sitekit/internal/domain"
)

// ErrInvalidToken is returned for any token that fails parsing, signature or expiry checks
var ErrInvalidToken = errors.New("invalid or expired token")

const tokenIssuer = "sitekit"

// AccessToken is a signed service token and its lifetime
type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

// TokenService issues and verifies HS256 access tokens. There are no refresh tokens:
// clients exchange a fresh Firebase ID token when the access token expires.
type TokenService struct {
	cfg config.JWTConfig
	now func() time.Time
}

// NewTokenService creates a token service. A zero expiry defaults to 24h.
func NewTokenService(cfg config.JWTConfig) *TokenService {
	if cfg.AccessTokenExpiry <= 0 {
		cfg.AccessTokenExpiry = 24 * time.Hour
	}
	return &TokenService{cfg: cfg, now: time.Now}
}

// Issue signs an access token carrying the user's roles
func (s *TokenService) Issue(user *domain.User) (*AccessToken, error) {
	now := s.now()
	claims := domain.AccessClaims{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Roles:  user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &AccessToken{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.AccessTokenExpiry.Seconds()),
	}, nil
}

// Verify parses a token and returns its claims
func (s *TokenService) Verify(tokenString string) (*domain.AccessClaims, error) {
	claims := &domain.AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
