package domain

import (
	"context"
	"time"
)

// User represents a unified identity with multiple roles
type User struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	FirebaseUID string    `bson:"firebase_uid,omitempty" json:"firebase_uid"`
	Email       string    `bson:"email" json:"email"`
	Name        string    `bson:"name" json:"name"`
	Roles       []string  `bson:"roles" json:"roles"` // ["user", "assist", "admin"]
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// HasRole checks if user has a specific role
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// UserRepository defines operations for managing users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByFirebaseUID(ctx context.Context, uid string) (*User, error)
	UpdateFirebaseUID(ctx context.Context, userID string, firebaseUID string) error

	// Role management
	AddRole(ctx context.Context, userID string, role string) error
	RemoveRole(ctx context.Context, userID string, role string) error
	GetByRole(ctx context.Context, role string) ([]*User, error)
}

// Role constants
const (
	RoleUser       = "user"
	RoleAssist     = "assist" // staff following up on leads
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin" // may change gateway credentials
)

// ValidRole reports whether role can be granted
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssist, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}
