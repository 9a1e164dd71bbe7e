package service

import (
	"context"
	"testing"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/wizard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wizardHarness struct {
	catalog *catalogFixture
	drafts  *memDrafts
	changes *recordingPublisher
	promos  *PromoService
	quotes  *QuoteService
	svc     *WizardService
}

func newWizardHarness(t *testing.T) *wizardHarness {
	t.Helper()
	h := &wizardHarness{
		catalog: newCatalogFixture(),
		drafts:  &memDrafts{rows: map[string]*domain.OrderDraft{}},
		changes: &recordingPublisher{},
	}
	h.promos, h.quotes = h.catalog.services(t)
	h.svc = NewWizardService(setupSessions(t), h.drafts, h.catalog.packages, h.catalog.templates, h.quotes, h.promos, h.changes, 0)
	t.Cleanup(h.svc.Wait)
	return h
}

// planSession walks the plan flow up to the payment step
func (h *wizardHarness) planSession(t *testing.T) *wizard.State {
	t.Helper()
	ctx := context.Background()

	st, err := h.svc.Start(ctx, "plan")
	require.NoError(t, err)
	_, err = h.svc.SelectPackage(ctx, st.SessionID, "growth")
	require.NoError(t, err)
	_, err = h.svc.SetDuration(ctx, st.SessionID, DurationInput{Months: 3})
	require.NoError(t, err)
	_, _, err = h.svc.SetAddOns(ctx, st.SessionID, map[string]int{"articles": 10})
	require.NoError(t, err)
	st, err = h.svc.SetCustomer(ctx, st.SessionID, domain.Customer{Name: "Sari", Email: "sari@example.com"})
	require.NoError(t, err)
	return st
}

func TestWizardPlanFlow(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()

	st, err := h.svc.Start(ctx, "plan")
	require.NoError(t, err)
	assert.Equal(t, wizard.StepPlan, st.Step)

	st, err = h.svc.SelectPackage(ctx, st.SessionID, "growth")
	require.NoError(t, err)
	assert.Equal(t, wizard.StepPlan, st.Step, "package alone does not complete the plan step")

	st, err = h.svc.SetDuration(ctx, st.SessionID, DurationInput{Months: 3})
	require.NoError(t, err)
	assert.Equal(t, wizard.StepAddOns, st.Step)
	assert.NotEmpty(t, st.DraftID, "completing the plan step checkpoints a draft")

	st, notices, err := h.svc.SetAddOns(ctx, st.SessionID, map[string]int{"articles": 12, "ads-budget": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"articles": 10}, st.AddOns)
	assert.Equal(t, map[string]int{"ads-budget": 1}, st.SubscriptionAddOns)
	assert.Len(t, notices, 1)
	assert.Equal(t, wizard.StepDetails, st.Step)

	st, err = h.svc.SetCustomer(ctx, st.SessionID, domain.Customer{Name: "Sari", Email: "sari@example.com"})
	require.NoError(t, err)
	assert.Equal(t, wizard.StepPayment, st.Step)

	_, q, err := h.svc.Quote(ctx, st.SessionID)
	require.NoError(t, err)
	// 8.1M package + 10 articles x 50k x 3 months + ads 500k x 3 months
	assert.Equal(t, int64(11_100_000), q.Total)

	h.svc.Wait()
	draft, err := h.drafts.GetByID(ctx, st.DraftID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftKindMarketing, draft.Kind)
	assert.Equal(t, "sari@example.com", draft.Customer.Email)
	require.NotNil(t, draft.QuotedTotal)
	assert.Equal(t, int64(11_100_000), *draft.QuotedTotal)
	assert.Contains(t, h.changes.tables(), domain.TableOrderDrafts)
}

func TestWizardWebsiteFlowRequiresActiveTemplate(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()

	st, err := h.svc.Start(ctx, "website")
	require.NoError(t, err)
	assert.Equal(t, wizard.StepDomain, st.Step)

	st, err = h.svc.SetDomain(ctx, st.SessionID, "WarungSari.com")
	require.NoError(t, err)
	assert.Equal(t, "warungsari.com", st.Domain)
	assert.Equal(t, wizard.StepTemplate, st.Step)

	_, err = h.svc.SelectTemplate(ctx, st.SessionID, "t-old")
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	st, err = h.svc.SelectTemplate(ctx, st.SessionID, "t-resto")
	require.NoError(t, err)
	assert.Equal(t, "Restaurant", st.TemplateName)
	assert.Equal(t, wizard.StepDetails, st.Step)
}

func TestWizardRejectsLockedSteps(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()

	st, err := h.svc.Start(ctx, "plan")
	require.NoError(t, err)

	_, err = h.svc.GoTo(ctx, st.SessionID, wizard.StepPayment)
	locked, ok := wizard.AsStepLocked(err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{wizard.FieldPackage, wizard.FieldDuration, wizard.FieldEmail}, locked.Missing)

	_, _, err = h.svc.SetAddOns(ctx, st.SessionID, map[string]int{"articles": 5})
	assert.ErrorIs(t, err, domain.ErrStepLocked)

	_, err = h.svc.SelectPackage(ctx, st.SessionID, "retired")
	assert.Error(t, err)

	_, err = h.svc.Start(ctx, "bogus")
	assert.Error(t, err)

	_, err = h.svc.Load(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWizardPromoLifecycle(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()
	st := h.planSession(t)

	_, res, err := h.svc.ApplyPromo(ctx, st.SessionID, "nope")
	require.NoError(t, err)
	assert.False(t, res.OK)

	st, res, err = h.svc.ApplyPromo(ctx, st.SessionID, " hemat100 ")
	require.NoError(t, err)
	require.True(t, res.OK)
	require.NotNil(t, st.Promo)
	assert.Equal(t, "HEMAT100", st.Promo.Code)
	keyWithPromo := st.IdempotencyKey

	// an invalid code leaves the applied promo alone
	st, res, err = h.svc.ApplyPromo(ctx, st.SessionID, "nope")
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.NotNil(t, st.Promo)
	assert.Equal(t, keyWithPromo, st.IdempotencyKey)

	_, q, err := h.svc.Quote(ctx, st.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(9_600_000-100_000), q.Total)

	// the promo is deactivated behind the buyer's back: the next quote drops it
	h.svc.Wait()
	h.catalog.promos.mu.Lock()
	h.catalog.promos.rows["p-fixed"].IsActive = false
	h.catalog.promos.mu.Unlock()
	st, q, err = h.svc.Quote(ctx, st.SessionID)
	require.NoError(t, err)
	assert.Nil(t, st.Promo)
	assert.Equal(t, PromoReasonInactive, q.Promo.Reason)
	assert.Equal(t, int64(9_600_000), q.Total)

	reloaded, err := h.svc.Load(ctx, st.SessionID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.Promo)
}

func TestWizardPackageSwitchKeepsPromoButClearsSelections(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()
	st := h.planSession(t)

	st, _, err := h.svc.ApplyPromo(ctx, st.SessionID, "HEMAT100")
	require.NoError(t, err)

	st, err = h.svc.SelectPackage(ctx, st.SessionID, "web-basic")
	require.NoError(t, err)
	assert.Zero(t, st.DurationMonths)
	assert.Empty(t, st.AddOns)
	assert.Empty(t, st.SubscriptionAddOns)
	assert.NotNil(t, st.Promo)
	assert.Equal(t, "sari@example.com", st.Customer.Email)
	assert.Equal(t, wizard.StepPlan, st.Step, "payment is locked again until a duration is chosen")
}

func TestWizardFinishMarksDraftPaid(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()
	st := h.planSession(t)

	require.NoError(t, h.svc.Finish(ctx, st.SessionID, st.DraftID))

	draft, err := h.drafts.GetByID(ctx, st.DraftID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftStatusPaid, draft.Status)

	_, err = h.svc.Load(ctx, st.SessionID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWizardSetDurationRejectsUnofferedMonths(t *testing.T) {
	h := newWizardHarness(t)
	ctx := context.Background()

	st, err := h.svc.Start(ctx, "plan")
	require.NoError(t, err)
	_, err = h.svc.SelectPackage(ctx, st.SessionID, "growth")
	require.NoError(t, err)

	_, err = h.svc.SetDuration(ctx, st.SessionID, DurationInput{Months: 2})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "duration")

	cur, err := h.svc.Load(ctx, st.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, cur.DurationMonths)
	assert.Equal(t, wizard.StepPlan, cur.Step)

	// years are checked against the same rows: growth has no 12-month option
	_, err = h.svc.SetDuration(ctx, st.SessionID, DurationInput{Years: 1})
	require.ErrorAs(t, err, &verr)

	cur, err = h.svc.SetDuration(ctx, st.SessionID, DurationInput{Months: 6})
	require.NoError(t, err)
	assert.Equal(t, 6, cur.DurationMonths)
}
