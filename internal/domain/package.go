package domain

import (
	"context"
	"time"
)

// Cadence is the billing period a package's base price refers to
type Cadence string

const (
	CadenceMonthly Cadence = "monthly"
	CadenceYearly  Cadence = "yearly"
)

// Valid reports whether c is a known cadence
func (c Cadence) Valid() bool {
	return c == CadenceMonthly || c == CadenceYearly
}

// Package represents a purchasable website package or marketing plan
type Package struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // starter, growth, pro, ...
	Cadence   Cadence   `json:"cadence"`
	BasePrice int64     `json:"base_price"` // IDR per month (monthly) or per year (yearly)
	Features  []string  `json:"features"`
	IsActive  bool      `json:"is_active"`
	IsPublic  bool      `json:"is_public"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PackageRepository defines operations for managing packages
type PackageRepository interface {
	Create(ctx context.Context, pkg *Package) error
	GetByID(ctx context.Context, id string) (*Package, error)
	List(ctx context.Context, onlyPublic bool) ([]*Package, error)
	Update(ctx context.Context, pkg *Package) error
	Delete(ctx context.Context, id string) error
}
