package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/wizard"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WizardSessionStore persists wizard state between requests
type WizardSessionStore interface {
	Load(ctx context.Context, sessionID string) (*wizard.State, error)
	Save(ctx context.Context, state *wizard.State) error
	Delete(ctx context.Context, sessionID string) error
}

// DurationInput selects a duration either in months (plan flow) or years (website flow)
type DurationInput struct {
	Months int `json:"months"`
	Years  int `json:"years"`
}

// WizardService owns wizard sessions: every mutation goes load, mutate, save.
// Order drafts are written at checkpoints in the background.
type WizardService struct {
	sessions  WizardSessionStore
	drafts    domain.OrderDraftRepository
	packages  domain.PackageRepository
	templates domain.TemplateRepository
	quotes    *QuoteService
	promos    *PromoService
	changes   domain.ChangePublisher

	checkpointTimeout time.Duration
	now               func() time.Time
	wg                sync.WaitGroup

	// draftMu orders checkpoint writes; written holds the newest snapshot time per draft
	draftMu sync.Mutex
	written map[string]time.Time

	logger zerolog.Logger
}

// NewWizardService creates a new wizard service. changes may be nil.
func NewWizardService(
	sessions WizardSessionStore,
	drafts domain.OrderDraftRepository,
	packages domain.PackageRepository,
	templates domain.TemplateRepository,
	quotes *QuoteService,
	promos *PromoService,
	changes domain.ChangePublisher,
	checkpointTimeout time.Duration,
) *WizardService {
	if checkpointTimeout <= 0 {
		checkpointTimeout = 5 * time.Second
	}
	return &WizardService{
		sessions:          sessions,
		drafts:            drafts,
		packages:          packages,
		templates:         templates,
		quotes:            quotes,
		promos:            promos,
		changes:           changes,
		checkpointTimeout: checkpointTimeout,
		now:               func() time.Time { return time.Now().UTC() },
		written:           map[string]time.Time{},
		logger:            log.With().Str("component", "wizard").Logger(),
	}
}

// Start opens a new session for flow
func (s *WizardService) Start(ctx context.Context, flow string) (*wizard.State, error) {
	st, err := wizard.New(wizard.Flow(flow), s.now())
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, st); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("session_id", st.SessionID).Str("flow", flow).Msg("wizard started")
	return st, nil
}

// Load returns the session or domain.ErrNotFound
func (s *WizardService) Load(ctx context.Context, sessionID string) (*wizard.State, error) {
	return s.sessions.Load(ctx, sessionID)
}

// Save stamps and stores st
func (s *WizardService) Save(ctx context.Context, st *wizard.State) error {
	st.UpdatedAt = s.now()
	return s.sessions.Save(ctx, st)
}

// mutate applies fn and, on success, advances past completed and saves.
// Leaving a checkpoint step also persists the draft.
func (s *WizardService) mutate(ctx context.Context, sessionID string, completed wizard.Step, fn func(st *wizard.State) error) (*wizard.State, error) {
	st, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	checkpoint := completed != "" && wizard.IsCheckpoint(completed)
	st.Rewind()
	if completed != "" {
		st.Complete(completed)
	}
	if checkpoint && st.DraftID == "" {
		st.DraftID = ulid.Make().String()
	}
	if err := s.Save(ctx, st); err != nil {
		return nil, err
	}
	if checkpoint {
		s.Checkpoint(st)
	}
	return st, nil
}

// SetDomain records the domain name the buyer wants registered
func (s *WizardService) SetDomain(ctx context.Context, sessionID, name string) (*wizard.State, error) {
	return s.mutate(ctx, sessionID, wizard.StepDomain, func(st *wizard.State) error {
		return st.SetDomain(name)
	})
}

// SelectTemplate records an active template
func (s *WizardService) SelectTemplate(ctx context.Context, sessionID, templateID string) (*wizard.State, error) {
	tmpl, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewValidationError("template_id", "template not found")
		}
		return nil, err
	}
	if !tmpl.IsActive {
		return nil, domain.NewValidationError("template_id", "template is not available")
	}
	return s.mutate(ctx, sessionID, wizard.StepTemplate, func(st *wizard.State) error {
		return st.SelectTemplate(tmpl.ID, tmpl.Name)
	})
}

// SelectPackage records an active package. A different package drops package-scoped selections.
func (s *WizardService) SelectPackage(ctx context.Context, sessionID, packageID string) (*wizard.State, error) {
	pkg, err := s.packages.GetByID(ctx, packageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewValidationError("package_id", "package not found")
		}
		return nil, err
	}
	if !pkg.IsActive {
		return nil, domain.NewValidationError("package_id", "package is not available")
	}
	return s.mutate(ctx, sessionID, "", func(st *wizard.State) error {
		return st.SelectPackage(pkg.ID, pkg.Name)
	})
}

// SetDuration completes the plan step
func (s *WizardService) SetDuration(ctx context.Context, sessionID string, in DurationInput) (*wizard.State, error) {
	current, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	months := in.Months
	if in.Years > 0 {
		months = in.Years * 12
	}
	if current.PackageID != "" && months > 0 {
		if err := s.quotes.CheckDuration(ctx, current.PackageID, months); err != nil {
			return nil, err
		}
	}

	return s.mutate(ctx, sessionID, wizard.StepPlan, func(st *wizard.State) error {
		if in.Years > 0 {
			return st.SetDurationYears(in.Years)
		}
		return st.SetDurationMonths(in.Months)
	})
}

// SetAddOns clamps and stores add-on quantities. Adjustments come back as notices.
func (s *WizardService) SetAddOns(ctx context.Context, sessionID string, requested map[string]int) (*wizard.State, []string, error) {
	current, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if current.PackageID == "" {
		return nil, nil, &wizard.StepLockedError{Step: wizard.StepAddOns, Missing: []string{wizard.FieldPackage}}
	}

	pkgAddOns, subAddOns, notices, err := s.quotes.ClampAddOns(ctx, current.PackageID, requested)
	if err != nil {
		return nil, nil, err
	}
	st, err := s.mutate(ctx, sessionID, wizard.StepAddOns, func(st *wizard.State) error {
		return st.SetAddOns(pkgAddOns, subAddOns)
	})
	return st, notices, err
}

// SetCustomer stores the buyer's contact details
func (s *WizardService) SetCustomer(ctx context.Context, sessionID string, c domain.Customer) (*wizard.State, error) {
	return s.mutate(ctx, sessionID, wizard.StepDetails, func(st *wizard.State) error {
		return st.SetCustomer(c)
	})
}

// GoTo moves to an input step whose prerequisites are met
func (s *WizardService) GoTo(ctx context.Context, sessionID string, step wizard.Step) (*wizard.State, error) {
	return s.mutate(ctx, sessionID, "", func(st *wizard.State) error {
		return st.GoTo(step)
	})
}

// Retry returns a failed checkout to the payment step with every selection intact
func (s *WizardService) Retry(ctx context.Context, sessionID string) (*wizard.State, error) {
	return s.mutate(ctx, sessionID, "", func(st *wizard.State) error {
		return st.Retry()
	})
}

// ApplyPromo validates code against the session's current subtotal. A code that does
// not apply leaves the state untouched and is reported in the result.
func (s *WizardService) ApplyPromo(ctx context.Context, sessionID, code string) (*wizard.State, *PromoResult, error) {
	st, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if st.PackageID == "" || st.DurationMonths == 0 {
		return st, &PromoResult{Reason: PromoReasonNoSubtotal}, nil
	}

	base, err := s.quotes.Quote(ctx, quoteRequest(st, ""))
	if err != nil {
		if errors.Is(err, domain.ErrTotalUnavailable) {
			return st, &PromoResult{Reason: PromoReasonNoSubtotal}, nil
		}
		return nil, nil, err
	}

	result, err := s.promos.Validate(ctx, code, base.Subtotal, PromoFacts{
		PackageID: st.PackageID,
		Months:    st.DurationMonths,
		Cadence:   base.Cadence,
	})
	if err != nil {
		return nil, nil, err
	}
	if !result.OK {
		return st, result, nil
	}

	st.ApplyPromo(wizard.AppliedPromo{
		ID:       result.Promo.ID,
		Code:     domain.NormalizePromoCode(result.Promo.Code),
		Discount: result.DiscountAmount,
	})
	if err := s.Save(ctx, st); err != nil {
		return nil, nil, err
	}
	return st, result, nil
}

// ClearPromo drops the applied promo code, if any
func (s *WizardService) ClearPromo(ctx context.Context, sessionID string) (*wizard.State, error) {
	return s.mutate(ctx, sessionID, "", func(st *wizard.State) error {
		st.ClearPromo()
		return nil
	})
}

// Quote prices the session and re-validates its promo. A promo that no longer applies
// is dropped from the session and its reason is returned in the result.
func (s *WizardService) Quote(ctx context.Context, sessionID string) (*wizard.State, *QuoteResult, error) {
	st, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if st.PackageID == "" || st.DurationMonths == 0 {
		return st, nil, &wizard.StepLockedError{Step: wizard.StepAddOns, Missing: st.Missing(wizard.StepAddOns)}
	}

	code := ""
	if st.Promo != nil {
		code = st.Promo.Code
	}
	q, err := s.quotes.Quote(ctx, quoteRequest(st, code))
	if err != nil {
		return st, nil, err
	}

	if st.Promo != nil && q.PromoErr == nil && q.Promo != nil {
		changed := false
		switch {
		case !q.Promo.OK:
			st.ClearPromo()
			changed = true
		case q.Promo.DiscountAmount != st.Promo.Discount:
			st.Promo.Discount = q.Promo.DiscountAmount
			changed = true
		}
		if changed {
			if err := s.Save(ctx, st); err != nil {
				return nil, nil, err
			}
		}
	}
	return st, q, nil
}

func quoteRequest(st *wizard.State, promoCode string) QuoteRequest {
	return QuoteRequest{
		PackageID: st.PackageID,
		Months:    st.DurationMonths,
		AddOns:    st.AllAddOnQuantities(),
		PromoCode: promoCode,
	}
}

// Checkpoint upserts the order draft in the background. The draft id is assigned up front
// so the session can reference it before the write lands. Failures are only logged.
func (s *WizardService) Checkpoint(st *wizard.State) {
	if st.DraftID == "" {
		st.DraftID = ulid.Make().String()
		if err := s.Save(context.Background(), st); err != nil {
			s.logger.Warn().Err(err).Str("session_id", st.SessionID).Msg("failed to record draft id")
		}
	}

	snapshot := *st
	snapshot.AddOns = maps.Clone(st.AddOns)
	snapshot.SubscriptionAddOns = maps.Clone(st.SubscriptionAddOns)
	if st.Promo != nil {
		promo := *st.Promo
		snapshot.Promo = &promo
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.checkpointTimeout)
		defer cancel()

		if err := s.persistDraft(ctx, &snapshot); err != nil {
			s.logger.Warn().Err(err).Str("session_id", snapshot.SessionID).Str("draft_id", snapshot.DraftID).Msg("checkpoint failed")
		}
	}()
}

func (s *WizardService) persistDraft(ctx context.Context, st *wizard.State) error {
	s.draftMu.Lock()
	defer s.draftMu.Unlock()
	if last, ok := s.written[st.DraftID]; ok && st.UpdatedAt.Before(last) {
		return nil
	}

	var total *int64
	if st.PackageID != "" && st.DurationMonths > 0 {
		code := ""
		if st.Promo != nil {
			code = st.Promo.Code
		}
		if q, err := s.quotes.Quote(ctx, quoteRequest(st, code)); err == nil {
			t := q.Total
			total = &t
		}
	}

	draft := st.Draft(total)
	now := s.now()
	draft.CreatedAt = st.CreatedAt
	draft.UpdatedAt = now
	if err := s.drafts.Upsert(ctx, draft); err != nil {
		return fmt.Errorf("failed to upsert draft: %w", err)
	}
	s.written[st.DraftID] = st.UpdatedAt
	s.publish(ctx, draft.ID)
	return nil
}

func (s *WizardService) publish(ctx context.Context, draftID string) {
	if s.changes == nil {
		return
	}
	if err := s.changes.Publish(ctx, domain.ChangeEvent{Table: domain.TableOrderDrafts, RowID: draftID, Op: "update"}); err != nil {
		s.logger.Debug().Err(err).Msg("change publish failed")
	}
}

// Finish marks the session's draft paid and discards the session. In-flight checkpoints
// land first so a late snapshot cannot overwrite the paid status.
func (s *WizardService) Finish(ctx context.Context, sessionID, draftID string) error {
	s.wg.Wait()
	if draftID != "" {
		s.draftMu.Lock()
		delete(s.written, draftID)
		s.draftMu.Unlock()

		if err := s.drafts.UpdateStatus(ctx, draftID, domain.DraftStatusPaid); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to mark draft paid: %w", err)
		}
		s.publish(ctx, draftID)
	}
	if sessionID != "" {
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to discard wizard session")
		}
	}
	return nil
}

// Leads lists the newest order drafts for staff follow-up. An empty kind merges both kinds.
func (s *WizardService) Leads(ctx context.Context, kind string, limit int) ([]*domain.OrderDraft, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var kinds []domain.DraftKind
	switch domain.DraftKind(kind) {
	case domain.DraftKindLead, domain.DraftKindMarketing:
		kinds = []domain.DraftKind{domain.DraftKind(kind)}
	case "":
		kinds = []domain.DraftKind{domain.DraftKindLead, domain.DraftKindMarketing}
	default:
		return nil, domain.NewValidationError("kind", "must be lead or marketing")
	}

	var out []*domain.OrderDraft
	for _, k := range kinds {
		rows, err := s.drafts.ListRecent(ctx, k, int64(limit))
		if err != nil {
			return nil, fmt.Errorf("failed to list leads: %w", err)
		}
		out = append(out, rows...)
	}
	slices.SortFunc(out, func(a, b *domain.OrderDraft) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Wait blocks until background checkpoints finish
func (s *WizardService) Wait() {
	s.wg.Wait()
}
