package pricing

import (
	"fmt"
	"math"
	"sort"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/shopspring/decimal"
)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// toAmount converts a computed total back to rupiah, refusing anything an
// int64 cannot hold.
func toAmount(d decimal.Decimal, what string) (int64, error) {
	if d.IsNegative() || d.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: %s out of range", domain.ErrTotalUnavailable, what)
	}
	return d.IntPart(), nil
}

// QuoteInput is everything needed to price one order
type QuoteInput struct {
	Package    *domain.Package
	Months     int
	Durations  []*domain.DurationOption
	AddOns     []*domain.AddOn
	Quantities map[string]int
	// PromoDiscount is a flat amount subtracted after all other arithmetic.
	PromoDiscount int64
}

// LineKind classifies quote lines
type LineKind string

const (
	LinePackage LineKind = "package"
	LineAddOn   LineKind = "add_on"
	LinePromo   LineKind = "promo"
)

// QuoteLine is one labelled amount in the breakdown
type QuoteLine struct {
	Kind      LineKind `json:"kind"`
	RefID     string   `json:"ref_id,omitempty"`
	Label     string   `json:"label"`
	Quantity  int      `json:"quantity,omitempty"`
	UnitPrice int64    `json:"unit_price,omitempty"`
	Amount    int64    `json:"amount"`
}

// Quote is a fully priced order
type Quote struct {
	PackageID       string           `json:"package_id"`
	Cadence         domain.Cadence   `json:"cadence"`
	PeriodSuffix    string           `json:"period_suffix"`
	Months          int              `json:"months"`
	DiscountPercent float64          `json:"discount_percent"`
	PriceSource     domain.PriceMode `json:"price_source"`
	PackageTotal    int64            `json:"package_total"`
	AddOnTotal      int64            `json:"add_on_total"`
	Subtotal        int64            `json:"subtotal"`
	PromoDiscount   int64            `json:"promo_discount"`
	Total           int64            `json:"total"`
	Lines           []QuoteLine      `json:"lines"`
	Quantities      map[string]int   `json:"quantities"`
	Notices         []string         `json:"notices,omitempty"`
}

// BuildQuote combines the package price, add-ons and promo into a payable total.
// It returns domain.ErrTotalUnavailable when the configuration cannot produce a price.
func BuildQuote(in QuoteInput) (*Quote, error) {
	pkg := in.Package
	if pkg == nil || pkg.BasePrice < 0 {
		return nil, fmt.Errorf("%w: package price missing", domain.ErrTotalUnavailable)
	}
	if in.Months < 1 {
		return nil, fmt.Errorf("%w: no duration selected", domain.ErrTotalUnavailable)
	}
	if !HasActiveDuration(in.Durations) {
		return nil, fmt.Errorf("%w: package %s has no active durations", domain.ErrTotalUnavailable, pkg.ID)
	}

	cadence := EffectiveCadence(pkg)
	q := &Quote{
		PackageID:    pkg.ID,
		Cadence:      cadence,
		PeriodSuffix: PeriodSuffix(cadence),
		Months:       in.Months,
		PriceSource:  domain.PriceModeAuto,
		Quantities:   make(map[string]int),
	}

	opt := MatchDuration(in.Durations, in.Months)
	if opt == nil {
		return nil, fmt.Errorf("%w: package %s has no %d-month duration", domain.ErrTotalUnavailable, pkg.ID, in.Months)
	}
	if opt.Price.IsManual() {
		q.PriceSource = domain.PriceModeManual
		q.PackageTotal = opt.Price.Amount
	} else {
		q.DiscountPercent = ResolveDiscountForDuration(in.Durations, in.Months)
		q.PackageTotal = ComputeCadenceTotal(pkg.BasePrice, cadence, in.Months, q.DiscountPercent)
	}
	if q.PackageTotal < 0 {
		return nil, fmt.Errorf("%w: package total out of range", domain.ErrTotalUnavailable)
	}
	q.Lines = append(q.Lines, QuoteLine{
		Kind:   LinePackage,
		RefID:  pkg.ID,
		Label:  fmt.Sprintf("%s (%d bulan)", pkg.Name, in.Months),
		Amount: q.PackageTotal,
	})

	active := make(map[string]*domain.AddOn, len(in.AddOns))
	for _, a := range in.AddOns {
		if a != nil && a.IsActive {
			active[a.ID] = a
		}
	}

	ids := make([]string, 0, len(in.Quantities))
	for id := range in.Quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	multiplier := decimal.NewFromInt(1)
	if cadence == domain.CadenceMonthly {
		multiplier = decimal.NewFromInt(int64(in.Months))
	}
	addOnTotal := decimal.Zero

	for _, id := range ids {
		addOn, ok := active[id]
		if !ok {
			if in.Quantities[id] > 0 {
				q.Notices = append(q.Notices, fmt.Sprintf("add-on %s is no longer available and was removed", id))
			}
			continue
		}
		qty, notice := ClampQuantity(addOn, in.Quantities[id])
		if notice != "" {
			q.Notices = append(q.Notices, notice)
		}
		if qty == 0 {
			continue
		}
		amount, err := toAmount(decimal.NewFromInt(int64(qty)).Mul(decimal.NewFromInt(addOn.PricePerUnit)).Mul(multiplier), "add-on "+id)
		if err != nil {
			return nil, err
		}
		addOnTotal = addOnTotal.Add(decimal.NewFromInt(amount))
		q.Quantities[id] = qty
		q.Lines = append(q.Lines, QuoteLine{
			Kind:      LineAddOn,
			RefID:     id,
			Label:     addOn.Label,
			Quantity:  qty,
			UnitPrice: addOn.PricePerUnit,
			Amount:    amount,
		})
	}

	var err error
	if q.AddOnTotal, err = toAmount(addOnTotal, "add-on total"); err != nil {
		return nil, err
	}
	if q.Subtotal, err = toAmount(addOnTotal.Add(decimal.NewFromInt(q.PackageTotal)), "subtotal"); err != nil {
		return nil, err
	}

	q.PromoDiscount = in.PromoDiscount
	if q.PromoDiscount < 0 || q.Subtotal == 0 {
		q.PromoDiscount = 0
	}
	if q.PromoDiscount > q.Subtotal {
		q.PromoDiscount = q.Subtotal
	}
	if q.PromoDiscount > 0 {
		q.Lines = append(q.Lines, QuoteLine{Kind: LinePromo, Label: "Promo", Amount: -q.PromoDiscount})
	}
	q.Total = q.Subtotal - q.PromoDiscount

	return q, nil
}
