package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/pricing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// promoUnavailableReason is shown when the promo lookup itself failed
const promoUnavailableReason = "promo could not be checked, please try again"

// QuoteRequest is a stateless pricing request
type QuoteRequest struct {
	PackageID string         `json:"package_id" validate:"required"`
	Months    int            `json:"months" validate:"required,min=1"`
	AddOns    map[string]int `json:"add_ons"`
	PromoCode string         `json:"promo_code"`
}

// QuoteResult is a priced order plus the promo outcome, if a code was given
type QuoteResult struct {
	*pricing.Quote
	PackageName string       `json:"package_name"`
	Promo       *PromoResult `json:"promo,omitempty"`
	// PromoErr is set when the promo lookup failed. The quote is then priced without it.
	PromoErr error `json:"-"`
}

// QuoteService loads catalog rows and prices orders
type QuoteService struct {
	packages  domain.PackageRepository
	durations domain.DurationRepository
	addOns    domain.AddOnRepository
	promos    *PromoService
	logger    zerolog.Logger
}

// NewQuoteService creates a new quote service
func NewQuoteService(
	packages domain.PackageRepository,
	durations domain.DurationRepository,
	addOns domain.AddOnRepository,
	promos *PromoService,
) *QuoteService {
	return &QuoteService{
		packages:  packages,
		durations: durations,
		addOns:    addOns,
		promos:    promos,
		logger:    log.With().Str("component", "quote").Logger(),
	}
}

type catalogRows struct {
	pkg       *domain.Package
	durations []*domain.DurationOption
	addOns    []*domain.AddOn
}

// load reads a package and its pricing rows in parallel
func (s *QuoteService) load(ctx context.Context, packageID string) (*catalogRows, error) {
	var rows catalogRows
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pkg, err := s.packages.GetByID(gctx, packageID)
		if err != nil {
			return fmt.Errorf("failed to load package: %w", err)
		}
		rows.pkg = pkg
		return nil
	})
	g.Go(func() error {
		durations, err := s.durations.ListByPackage(gctx, packageID)
		if err != nil {
			return fmt.Errorf("failed to load durations: %w", err)
		}
		rows.durations = durations
		return nil
	})
	g.Go(func() error {
		addOns, err := s.addOns.ListForPackage(gctx, packageID)
		if err != nil {
			return fmt.Errorf("failed to load add-ons: %w", err)
		}
		rows.addOns = addOns
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !rows.pkg.IsActive {
		return nil, fmt.Errorf("%w: package %s is not active", domain.ErrTotalUnavailable, packageID)
	}
	return &rows, nil
}

// CheckDuration rejects a month count the package has no active duration row for
func (s *QuoteService) CheckDuration(ctx context.Context, packageID string, months int) error {
	durations, err := s.durations.ListByPackage(ctx, packageID)
	if err != nil {
		return fmt.Errorf("failed to load durations: %w", err)
	}
	if pricing.MatchDuration(durations, months) == nil {
		return domain.NewValidationError("duration", fmt.Sprintf("%d months is not offered for this package", months))
	}
	return nil
}

// Quote prices req. Missing configuration yields domain.ErrTotalUnavailable; a code that
// does not apply is reported in Promo and never fails the quote.
func (s *QuoteService) Quote(ctx context.Context, req QuoteRequest) (*QuoteResult, error) {
	if req.PackageID == "" {
		return nil, domain.NewValidationError("package_id", "is required")
	}

	rows, err := s.load(ctx, req.PackageID)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedRow) {
			return nil, fmt.Errorf("%w: %v", domain.ErrTotalUnavailable, err)
		}
		return nil, err
	}

	in := pricing.QuoteInput{
		Package:    rows.pkg,
		Months:     req.Months,
		Durations:  rows.durations,
		AddOns:     rows.addOns,
		Quantities: req.AddOns,
	}
	q, err := pricing.BuildQuote(in)
	if err != nil {
		return nil, err
	}

	result := &QuoteResult{Quote: q, PackageName: rows.pkg.Name}
	if req.PromoCode == "" || s.promos == nil {
		return result, nil
	}

	promo, err := s.promos.Validate(ctx, req.PromoCode, q.Subtotal, PromoFacts{
		PackageID: rows.pkg.ID,
		Months:    req.Months,
		Cadence:   q.Cadence,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("package_id", req.PackageID).Msg("promo lookup failed, quoting without promo")
		result.Promo = &PromoResult{Reason: promoUnavailableReason}
		result.PromoErr = err
		return result, nil
	}
	result.Promo = promo
	if !promo.OK {
		return result, nil
	}

	in.PromoDiscount = promo.DiscountAmount
	discounted, err := pricing.BuildQuote(in)
	if err != nil {
		return nil, err
	}
	result.Quote = discounted
	return result, nil
}

// ClampAddOns coerces requested quantities against the package's add-on rows and
// splits them by scope. Unknown or inactive ids are dropped with a notice.
func (s *QuoteService) ClampAddOns(ctx context.Context, packageID string, requested map[string]int) (pkgAddOns, subAddOns map[string]int, notices []string, err error) {
	rows, err := s.addOns.ListForPackage(ctx, packageID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load add-ons: %w", err)
	}
	byID := make(map[string]*domain.AddOn, len(rows))
	for _, a := range rows {
		if a.IsActive {
			byID[a.ID] = a
		}
	}

	pkgAddOns = map[string]int{}
	subAddOns = map[string]int{}
	for _, id := range slices.Sorted(maps.Keys(requested)) {
		qty := requested[id]
		addOn, ok := byID[id]
		if !ok {
			if qty > 0 {
				notices = append(notices, fmt.Sprintf("add-on %s is not available for this package", id))
			}
			continue
		}
		clamped, notice := pricing.ClampQuantity(addOn, qty)
		if notice != "" {
			notices = append(notices, notice)
		}
		if clamped == 0 {
			continue
		}
		if addOn.Scope == domain.AddOnScopeSubscription {
			subAddOns[id] = clamped
		} else {
			pkgAddOns[id] = clamped
		}
	}
	return pkgAddOns, subAddOns, notices, nil
}
