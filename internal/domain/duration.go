package domain

import (
	"context"
	"time"
)

// PriceMode selects how a duration's package price is produced
type PriceMode string

const (
	PriceModeAuto   PriceMode = "auto"
	PriceModeManual PriceMode = "manual"
)

// PriceRule is either Auto (formula) or Manual(amount), an admin-pinned final price.
// Amount is meaningful only for manual rules.
type PriceRule struct {
	Mode   PriceMode `json:"mode"`
	Amount int64     `json:"amount,omitempty"`
}

// AutoPrice returns a rule that defers to the discount formula
func AutoPrice() PriceRule { return PriceRule{Mode: PriceModeAuto} }

// ManualPrice pins the package price for a duration
func ManualPrice(amount int64) PriceRule {
	return PriceRule{Mode: PriceModeManual, Amount: amount}
}

// IsManual reports whether the rule overrides the formula
func (r PriceRule) IsManual() bool { return r.Mode == PriceModeManual }

// DurationOption is a selectable subscription length for one package
type DurationOption struct {
	ID              string    `json:"id"`
	PackageID       string    `json:"package_id"`
	Months          int       `json:"months"`
	DiscountPercent float64   `json:"discount_percent"`
	IsActive        bool      `json:"is_active"`
	SortOrder       int       `json:"sort_order"`
	Price           PriceRule `json:"price"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DurationRepository manages package_durations.
// Upsert uses (package_id, months) as its conflict key.
type DurationRepository interface {
	ListByPackage(ctx context.Context, packageID string) ([]*DurationOption, error)
	Upsert(ctx context.Context, opt *DurationOption) error
	Delete(ctx context.Context, id string) error
}
