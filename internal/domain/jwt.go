package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims represents custom JWT claims issued after Firebase login
type AccessClaims struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name,omitempty"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}
