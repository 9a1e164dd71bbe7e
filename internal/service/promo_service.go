package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/pricing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Reasons reported when a promo does not apply. They are shown to the buyer as-is.
const (
	PromoReasonNotFound    = "promo not found"
	PromoReasonInactive    = "promo is not active"
	PromoReasonNotStarted  = "promo is not valid yet"
	PromoReasonExpired     = "promo has expired"
	PromoReasonUsedUp      = "promo usage limit reached"
	PromoReasonMinSubtotal = "order total is below the promo minimum"
	PromoReasonIneligible  = "promo does not apply to this order"
	PromoReasonNoSubtotal  = "order total is not available yet"
)

// PromoFacts describe the order a promo is checked against
type PromoFacts struct {
	PackageID string
	Months    int
	Cadence   domain.Cadence
}

// PromoResult is the outcome of a validation. OK false is a normal answer, not an error.
type PromoResult struct {
	OK             bool              `json:"ok"`
	Promo          *domain.PromoCode `json:"promo,omitempty"`
	DiscountAmount int64             `json:"discount_amount"`
	Reason         string            `json:"reason,omitempty"`
}

// PromoService validates promo codes against a subtotal
type PromoService struct {
	repo   domain.PromoRepository
	env    *cel.Env
	rules  sync.Map // expression -> cel.Program
	now    func() time.Time
	logger zerolog.Logger
}

// NewPromoService creates a promo service. repo is usually a cached repository.
func NewPromoService(repo domain.PromoRepository) (*PromoService, error) {
	env, err := cel.NewEnv(
		cel.Variable("subtotal", cel.IntType),
		cel.Variable("package_id", cel.StringType),
		cel.Variable("months", cel.IntType),
		cel.Variable("cadence", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule environment: %w", err)
	}
	return &PromoService{
		repo:   repo,
		env:    env,
		now:    time.Now,
		logger: log.With().Str("component", "promo").Logger(),
	}, nil
}

// Validate resolves code against subtotal. Lookup is trimmed and case-insensitive.
// Only datastore failures are returned as errors.
func (s *PromoService) Validate(ctx context.Context, code string, subtotal int64, facts PromoFacts) (*PromoResult, error) {
	normalized := domain.NormalizePromoCode(code)
	if normalized == "" {
		return &PromoResult{Reason: PromoReasonNotFound}, nil
	}
	if subtotal <= 0 {
		return &PromoResult{Reason: PromoReasonNoSubtotal}, nil
	}

	promo, err := s.repo.GetByCode(ctx, normalized)
	if errors.Is(err, domain.ErrNotFound) {
		return &PromoResult{Reason: PromoReasonNotFound}, nil
	}
	if errors.Is(err, domain.ErrMalformedRow) {
		s.logger.Warn().Err(err).Str("code", normalized).Msg("ignoring malformed promo row")
		return &PromoResult{Reason: PromoReasonNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up promo: %w", err)
	}

	if reason := s.check(promo, subtotal, facts); reason != "" {
		return &PromoResult{Reason: reason}, nil
	}

	return &PromoResult{
		OK:             true,
		Promo:          promo,
		DiscountAmount: pricing.PromoDiscount(promo, subtotal),
	}, nil
}

func (s *PromoService) check(p *domain.PromoCode, subtotal int64, facts PromoFacts) string {
	now := s.now()
	switch {
	case !p.IsActive:
		return PromoReasonInactive
	case p.ValidFrom != nil && now.Before(*p.ValidFrom):
		return PromoReasonNotStarted
	case p.ValidUntil != nil && now.After(*p.ValidUntil):
		return PromoReasonExpired
	case p.UsageLimit > 0 && p.UsedCount >= p.UsageLimit:
		return PromoReasonUsedUp
	case p.MinSubtotal > 0 && subtotal < p.MinSubtotal:
		return PromoReasonMinSubtotal
	}

	if p.Eligibility == "" {
		return ""
	}
	ok, err := s.eligible(p.Eligibility, subtotal, facts)
	if err != nil {
		s.logger.Warn().Err(err).Str("promo_id", p.ID).Msg("eligibility rule failed")
		return PromoReasonIneligible
	}
	if !ok {
		return PromoReasonIneligible
	}
	return ""
}

// CompileRule checks an eligibility expression. Admin writes call it before saving.
func (s *PromoService) CompileRule(expr string) error {
	_, err := s.program(expr)
	return err
}

func (s *PromoService) program(expr string) (cel.Program, error) {
	if cached, ok := s.rules.Load(expr); ok {
		return cached.(cel.Program), nil
	}

	ast, iss := s.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, domain.NewValidationError("eligibility", iss.Err().Error())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, domain.NewValidationError("eligibility", "rule must evaluate to a boolean")
	}
	prg, err := s.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule program: %w", err)
	}
	s.rules.Store(expr, prg)
	return prg, nil
}

func (s *PromoService) eligible(expr string, subtotal int64, facts PromoFacts) (bool, error) {
	prg, err := s.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"subtotal":   subtotal,
		"package_id": facts.PackageID,
		"months":     int64(facts.Months),
		"cadence":    string(facts.Cadence),
	})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule returned %T", out.Value())
	}
	return b, nil
}

// Redeem counts one use of a promo after a successful payment
func (s *PromoService) Redeem(ctx context.Context, promoID string) error {
	if promoID == "" {
		return nil
	}
	if err := s.repo.IncrementUsage(ctx, promoID); err != nil {
		return fmt.Errorf("failed to redeem promo: %w", err)
	}
	return nil
}
