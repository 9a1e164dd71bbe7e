package pricing

import (
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/shopspring/decimal"
)

// PromoDiscount computes the flat amount a promo takes off subtotal.
// The result is never negative and never exceeds subtotal.
func PromoDiscount(promo *domain.PromoCode, subtotal int64) int64 {
	if promo == nil || subtotal <= 0 {
		return 0
	}

	var amount int64
	switch promo.DiscountType {
	case domain.DiscountPercentage:
		pct := decimal.NewFromFloat(clampPercent(promo.DiscountValue))
		amount = decimal.NewFromInt(subtotal).Mul(pct).Div(hundred).Round(0).IntPart()
		if promo.MaxDiscount > 0 && amount > promo.MaxDiscount {
			amount = promo.MaxDiscount
		}
	default:
		amount = decimal.NewFromFloat(promo.DiscountValue).Round(0).IntPart()
	}

	if amount < 0 {
		return 0
	}
	if amount > subtotal {
		return subtotal
	}
	return amount
}
