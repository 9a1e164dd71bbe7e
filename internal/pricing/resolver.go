// Package pricing computes package prices, duration discounts and order totals.
// Everything here is pure: callers load configuration rows and pass them in.
package pricing

import (
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// ComputeDiscountedTotal returns monthlyPrice × months less discountPercent,
// rounded to a whole unit. Out-of-range inputs are clamped, never rejected.
func ComputeDiscountedTotal(monthlyPrice int64, months int, discountPercent float64) int64 {
	if monthlyPrice < 0 {
		monthlyPrice = 0
	}
	if months < 1 {
		months = 1
	}
	gross := decimal.NewFromInt(monthlyPrice).Mul(decimal.NewFromInt(int64(months)))
	return applyDiscount(gross, discountPercent)
}

// ComputeCadenceTotal prices months of a package whose base price is per cadence period.
// A yearly base price is prorated by months/12 before the discount.
func ComputeCadenceTotal(basePrice int64, cadence domain.Cadence, months int, discountPercent float64) int64 {
	if cadence != domain.CadenceYearly {
		return ComputeDiscountedTotal(basePrice, months, discountPercent)
	}
	if basePrice < 0 {
		basePrice = 0
	}
	if months < 1 {
		months = 1
	}
	gross := decimal.NewFromInt(basePrice).Mul(decimal.NewFromInt(int64(months))).Div(twelve)
	return applyDiscount(gross, discountPercent)
}

func applyDiscount(gross decimal.Decimal, discountPercent float64) int64 {
	d := clampPercent(discountPercent)
	factor := hundred.Sub(decimal.NewFromFloat(d)).Div(hundred)
	total := gross.Mul(factor).Round(0).IntPart()
	if total < 0 {
		return 0
	}
	return total
}

func clampPercent(p float64) float64 {
	if p != p || p < 0 { // NaN or negative
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// MatchDuration returns the active option for requestedMonths.
// Duplicate active rows resolve to the one with the largest discount.
func MatchDuration(options []*domain.DurationOption, requestedMonths int) *domain.DurationOption {
	var best *domain.DurationOption
	for _, opt := range options {
		if opt == nil || !opt.IsActive || opt.Months != requestedMonths {
			continue
		}
		if best == nil || opt.DiscountPercent > best.DiscountPercent {
			best = opt
		}
	}
	return best
}

// ResolveDiscountForDuration returns the discount configured for requestedMonths, or 0.
func ResolveDiscountForDuration(options []*domain.DurationOption, requestedMonths int) float64 {
	if opt := MatchDuration(options, requestedMonths); opt != nil {
		return clampPercent(opt.DiscountPercent)
	}
	return 0
}

// ResolveMaxDiscount is the "discount up to X%" figure: the best active discount, or 0.
func ResolveMaxDiscount(options []*domain.DurationOption) float64 {
	var best float64
	for _, opt := range options {
		if opt == nil || !opt.IsActive {
			continue
		}
		if d := clampPercent(opt.DiscountPercent); d > best {
			best = d
		}
	}
	return best
}

// HasActiveDuration reports whether any option can be selected
func HasActiveDuration(options []*domain.DurationOption) bool {
	for _, opt := range options {
		if opt != nil && opt.IsActive && opt.Months > 0 {
			return true
		}
	}
	return false
}
