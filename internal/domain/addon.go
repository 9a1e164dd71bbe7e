package domain

import (
	"context"
	"time"
)

// AddOnScope distinguishes package add-ons from subscription add-ons
type AddOnScope string

const (
	AddOnScopePackage      AddOnScope = "package"
	AddOnScopeSubscription AddOnScope = "subscription"
)

// AddOn is an optional extra billed per unit on top of a package.
// Subscription-scoped add-ons with an empty PackageID apply to every package.
type AddOn struct {
	ID           string     `json:"id"`
	Scope        AddOnScope `json:"scope"`
	PackageID    string     `json:"package_id,omitempty"`
	Label        string     `json:"label"`
	PricePerUnit int64      `json:"price_per_unit"`
	UnitLabel    string     `json:"unit_label"`
	Step         int        `json:"step"`         // 0 or 1 means any integer
	MaxQuantity  int        `json:"max_quantity"` // 0 means unbounded
	IsActive     bool       `json:"is_active"`
	SortOrder    int        `json:"sort_order"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AddOnRepository manages add-on rows of both scopes
type AddOnRepository interface {
	Create(ctx context.Context, addOn *AddOn) error
	GetByID(ctx context.Context, id string) (*AddOn, error)
	// ListForPackage returns package-scoped rows for packageID plus global subscription rows.
	ListForPackage(ctx context.Context, packageID string) ([]*AddOn, error)
	List(ctx context.Context) ([]*AddOn, error)
	Update(ctx context.Context, addOn *AddOn) error
	Delete(ctx context.Context, id string) error
}
