package pricing

import (
	"fmt"

	"github.com/mansoorceksport/sitekit/internal/domain"
)

// MaxUnboundedQuantity caps add-ons configured without a maximum.
const MaxUnboundedQuantity = 1000

func quantityLimit(addOn *domain.AddOn) int {
	if addOn.MaxQuantity > 0 {
		return addOn.MaxQuantity
	}
	return MaxUnboundedQuantity
}

// ClampQuantity coerces a requested add-on quantity into range. The returned
// notice is empty when the request was already valid.
func ClampQuantity(addOn *domain.AddOn, requested int) (int, string) {
	q := requested
	if q < 0 {
		q = 0
	}
	limit := quantityLimit(addOn)
	if q > limit {
		q = limit
	}
	if addOn.Step > 1 {
		q -= q % addOn.Step
	}
	if q == requested {
		return q, ""
	}

	label := addOn.Label
	if label == "" {
		label = addOn.ID
	}
	switch {
	case requested < 0:
		return q, fmt.Sprintf("%s: quantity cannot be negative, set to %d", label, q)
	case requested > limit:
		return q, fmt.Sprintf("%s: maximum is %d, quantity set to %d", label, limit, q)
	default:
		return q, fmt.Sprintf("%s: quantity must be a multiple of %d, set to %d", label, addOn.Step, q)
	}
}
