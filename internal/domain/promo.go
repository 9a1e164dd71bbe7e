package domain

import (
	"context"
	"strings"
	"time"
)

// DiscountType is how a promo's value is interpreted
type DiscountType string

const (
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

// PromoCode is a redeemable discount
type PromoCode struct {
	ID            string       `json:"id"`
	Code          string       `json:"code"`
	Name          string       `json:"name"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"` // IDR for fixed, percent for percentage
	MaxDiscount   int64        `json:"max_discount"`   // 0 = no ceiling
	MinSubtotal   int64        `json:"min_subtotal"`
	// Eligibility is an optional CEL expression over subtotal, package_id, months, cadence.
	Eligibility string     `json:"eligibility,omitempty"`
	IsActive    bool       `json:"is_active"`
	ValidFrom   *time.Time `json:"valid_from,omitempty"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
	UsageLimit  int        `json:"usage_limit"` // 0 = unlimited
	UsedCount   int        `json:"used_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NormalizePromoCode is the lookup form of a user-entered code
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PromoRepository manages promo_codes
type PromoRepository interface {
	Create(ctx context.Context, promo *PromoCode) error
	GetByID(ctx context.Context, id string) (*PromoCode, error)
	GetByCode(ctx context.Context, normalizedCode string) (*PromoCode, error)
	List(ctx context.Context) ([]*PromoCode, error)
	Update(ctx context.Context, promo *PromoCode) error
	Delete(ctx context.Context, id string) error
	IncrementUsage(ctx context.Context, id string) error
}
