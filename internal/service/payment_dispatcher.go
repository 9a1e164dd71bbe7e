package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/infrastructure/midtrans"
	"github.com/mansoorceksport/sitekit/internal/infrastructure/xendit"
	"github.com/mansoorceksport/sitekit/internal/wizard"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// noGatewayMessage is the blocking notice shown when nothing can take payments
const noGatewayMessage = "no payment gateway available"

// Availability tells the checkout screen which pay actions to enable
type Availability struct {
	Available  bool              `json:"available"`
	Active     domain.Provider   `json:"active_provider,omitempty"`
	Configured []domain.Provider `json:"configured"`
	// Methods are the providers the buyer may pick: the active one plus PayPal when configured.
	Methods           []domain.Provider `json:"methods"`
	PayPalSelectable  bool              `json:"paypal_selectable"`
	PayPalClientID    string            `json:"paypal_client_id,omitempty"`
	MidtransClientKey string            `json:"midtrans_client_key,omitempty"`
	Message           string            `json:"message,omitempty"`
}

// CheckoutRequest starts or resumes a payment for a wizard session
type CheckoutRequest struct {
	Provider  string `json:"provider"`
	CardToken string `json:"card_token"`
}

// CheckoutResult is returned to the storefront
type CheckoutResult struct {
	Attempt *domain.PaymentAttempt `json:"attempt"`
	Quote   *QuoteResult           `json:"quote,omitempty"`
	State   *wizard.State          `json:"state,omitempty"`
	Token   string                 `json:"token,omitempty"`
	Reused  bool                   `json:"reused"`
}

// Notification is a verified provider callback in provider-neutral form
type Notification struct {
	Provider    domain.Provider
	OrderRef    string
	ProviderRef string
	Status      string // attempt status
	Message     string
}

// PaymentDispatcher picks the gateway for a checkout and records every attempt
type PaymentDispatcher struct {
	settings   *GatewaySettingsService
	factory    ProviderFactory
	attempts   domain.PaymentAttemptRepository
	wizards    *WizardService
	quotes     *QuoteService
	promos     *PromoService
	publicBase string

	attemptCounter metric.Int64Counter
	logger         zerolog.Logger
}

// NewPaymentDispatcher creates the dispatcher. publicBase is the storefront origin used
// for gateway redirect URLs.
func NewPaymentDispatcher(
	settings *GatewaySettingsService,
	factory ProviderFactory,
	attempts domain.PaymentAttemptRepository,
	wizards *WizardService,
	quotes *QuoteService,
	promos *PromoService,
	publicBase string,
) *PaymentDispatcher {
	counter, err := otel.Meter("sitekit/checkout").Int64Counter("checkout.attempts",
		metric.WithDescription("Checkout attempts by provider and outcome"))
	if err != nil {
		log.Warn().Err(err).Msg("checkout counter unavailable")
	}
	return &PaymentDispatcher{
		settings:       settings,
		factory:        factory,
		attempts:       attempts,
		wizards:        wizards,
		quotes:         quotes,
		promos:         promos,
		publicBase:     publicBase,
		attemptCounter: counter,
		logger:         log.With().Str("component", "checkout").Logger(),
	}
}

func availabilityFrom(snap *GatewaySnapshot) *Availability {
	configured := snap.Configured()
	av := &Availability{Configured: configured}
	if len(configured) == 0 {
		av.Configured = []domain.Provider{}
		av.Methods = []domain.Provider{}
		av.Message = noGatewayMessage
		return av
	}

	av.Available = true
	if slices.Contains(configured, snap.Active) {
		av.Active = snap.Active
	} else {
		av.Active = configured[0]
	}

	av.Methods = []domain.Provider{av.Active}
	if slices.Contains(configured, domain.ProviderPayPal) {
		av.PayPalSelectable = true
		av.PayPalClientID = snap.Config(domain.ProviderPayPal).ClientKey
		if av.Active != domain.ProviderPayPal {
			av.Methods = append(av.Methods, domain.ProviderPayPal)
		}
	}
	if av.Active == domain.ProviderMidtrans {
		av.MidtransClientKey = snap.Config(domain.ProviderMidtrans).ClientKey
	}
	return av
}

// Availability reports which providers the checkout can offer
func (d *PaymentDispatcher) Availability(ctx context.Context) (*Availability, error) {
	snap, err := d.settings.Effective(ctx)
	if err != nil {
		return nil, err
	}
	return availabilityFrom(snap), nil
}

// Checkout charges the wizard session through the selected provider. The amount is
// always recomputed here. Re-submitting the same order returns the stored attempt.
func (d *PaymentDispatcher) Checkout(ctx context.Context, sessionID string, req CheckoutRequest) (*CheckoutResult, error) {
	st, err := d.wizards.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := st.GoTo(wizard.StepPayment); err != nil {
		return nil, err
	}

	snap, err := d.settings.Effective(ctx)
	if err != nil {
		return nil, err
	}
	av := availabilityFrom(snap)
	if !av.Available {
		return nil, domain.ErrNoGatewayConfigured
	}

	provider := av.Active
	if req.Provider != "" {
		p, ok := domain.ParseProvider(req.Provider)
		if !ok || !slices.Contains(av.Methods, p) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotAllowed, req.Provider)
		}
		provider = p
	}

	q, err := d.quoteForCheckout(ctx, st)
	if err != nil {
		return nil, err
	}
	if q.Subtotal < 0 || q.Total < 0 {
		return nil, fmt.Errorf("%w: subtotal %d, total %d", domain.ErrTotalUnavailable, q.Subtotal, q.Total)
	}
	// the draft row exists, with checkout status, before any money moves
	d.wizards.Checkpoint(st)

	attempt, reused, err := d.attemptFor(ctx, st, provider, q)
	if err != nil {
		return nil, err
	}
	if reused && (attempt.Status == domain.AttemptStatusPending && attempt.RedirectURL+attempt.ProviderRef != "" || attempt.Status == domain.AttemptStatusPaid) {
		d.count(ctx, provider, "reused")
		return d.settle(ctx, st, attempt, q, attempt.ProviderRef, true)
	}

	if q.Total == 0 {
		attempt.Status = domain.AttemptStatusPaid
		attempt.Message = "no payment required"
		if err := d.attempts.Update(ctx, attempt); err != nil {
			return nil, err
		}
		d.count(ctx, provider, "free")
		return d.settle(ctx, st, attempt, q, "", false)
	}

	gateway, err := d.factory(snap.Config(provider))
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()
	res, err := gateway.CreateCharge(callCtx, d.chargeRequest(st, attempt, q, req.CardToken))
	if err != nil {
		return nil, d.fail(ctx, st, attempt, provider, err)
	}

	attempt.Status = res.Status
	attempt.ProviderRef = res.ProviderRef
	attempt.RedirectURL = res.RedirectURL
	attempt.Currency = res.Currency
	attempt.ProviderAmount = res.ProviderAmount
	attempt.Message = res.Message
	if err := d.attempts.Update(ctx, attempt); err != nil {
		return nil, err
	}
	d.count(ctx, provider, attempt.Status)
	d.logger.Info().
		Str("session_id", st.SessionID).
		Str("provider", string(provider)).
		Str("order_ref", attempt.OrderRef).
		Int64("amount", attempt.Amount).
		Str("status", attempt.Status).
		Msg("charge created")

	return d.settle(ctx, st, attempt, q, res.Token, false)
}

// quoteForCheckout prices the session. A promo that stopped applying is removed and
// reported so the buyer sees the new total before paying.
func (d *PaymentDispatcher) quoteForCheckout(ctx context.Context, st *wizard.State) (*QuoteResult, error) {
	code := ""
	if st.Promo != nil {
		code = st.Promo.Code
	}
	q, err := d.quotes.Quote(ctx, quoteRequest(st, code))
	if err != nil {
		return nil, err
	}
	if q.PromoErr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, q.PromoErr)
	}
	if st.Promo != nil && q.Promo != nil && !q.Promo.OK {
		st.ClearPromo()
		if err := d.wizards.Save(ctx, st); err != nil {
			return nil, err
		}
		return nil, domain.NewValidationError("promo_code", q.Promo.Reason)
	}
	return q, nil
}

// attemptFor returns the attempt for the session's current idempotency key, creating it
// when this is the first submission. An attempt whose amount no longer matches is replaced
// under a fresh key.
func (d *PaymentDispatcher) attemptFor(ctx context.Context, st *wizard.State, provider domain.Provider, q *QuoteResult) (*domain.PaymentAttempt, bool, error) {
	existing, err := d.attempts.GetByIdempotencyKey(ctx, st.IdempotencyKey, provider)
	switch {
	case err == nil && existing.Status == domain.AttemptStatusPaid:
		return existing, true, nil
	case err == nil && existing.Status == domain.AttemptStatusFailed:
		// providers reject a second charge on a failed order ref
		st.RenewIdempotencyKey()
	case err == nil && existing.Amount == q.Total:
		return existing, true, nil
	case err == nil:
		d.logger.Warn().Str("order_ref", existing.OrderRef).Int64("stored", existing.Amount).Int64("quoted", q.Total).Msg("amount changed, starting a new attempt")
		st.RenewIdempotencyKey()
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, err
	}

	attempt := &domain.PaymentAttempt{
		SessionID:      st.SessionID,
		DraftID:        st.DraftID,
		IdempotencyKey: st.IdempotencyKey,
		Provider:       provider,
		Amount:         q.Total,
		Currency:       "IDR",
		Status:         domain.AttemptStatusPending,
	}
	if q.Promo != nil && q.Promo.OK {
		attempt.PromoID = q.Promo.Promo.ID
	}
	err = d.attempts.Create(ctx, attempt)
	if errors.Is(err, domain.ErrDuplicateAttempt) {
		// a concurrent submission won the insert
		existing, err := d.attempts.GetByIdempotencyKey(ctx, st.IdempotencyKey, provider)
		if err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return attempt, false, nil
}

func (d *PaymentDispatcher) chargeRequest(st *wizard.State, attempt *domain.PaymentAttempt, q *QuoteResult, cardToken string) ChargeRequest {
	description := fmt.Sprintf("%s %s", st.PackageName, DurationDescriptor(st.DurationMonths))
	if st.Domain != "" {
		description += " - " + st.Domain
	}
	req := ChargeRequest{
		IdempotencyKey: st.IdempotencyKey,
		OrderRef:       attempt.OrderRef,
		Amount:         attempt.Amount,
		Description:    description,
		Domain:         st.Domain,
		TemplateID:     st.TemplateID,
		TemplateName:   st.TemplateName,
		PackageName:    st.PackageName,
		Lines:          q.Lines,
		Customer:       st.Customer,
		CardToken:      cardToken,
		SuccessURL:     d.landingURL("success", attempt.ID),
		PendingURL:     d.landingURL("pending", attempt.ID),
		ErrorURL:       d.landingURL("error", attempt.ID),
	}
	if st.Promo != nil {
		req.PromoCode = st.Promo.Code
	}
	return req
}

func (d *PaymentDispatcher) landingURL(outcome, attemptID string) string {
	return fmt.Sprintf("%s/payment/%s?attempt=%s", d.publicBase, outcome, url.QueryEscape(attemptID))
}

// fail records a provider failure and moves the wizard to its error step. Selections stay.
func (d *PaymentDispatcher) fail(ctx context.Context, st *wizard.State, attempt *domain.PaymentAttempt, provider domain.Provider, cause error) error {
	var gwErr *domain.GatewayError
	if !errors.As(cause, &gwErr) {
		gwErr = &domain.GatewayError{Provider: provider, Err: cause}
	}

	if err := d.attempts.UpdateStatus(ctx, attempt.ID, domain.AttemptStatusFailed, gwErr.UserMessage()); err != nil {
		d.logger.Error().Err(err).Str("attempt_id", attempt.ID).Msg("failed to record failed attempt")
	}
	st.RecordPayment(wizard.PaymentOutcome{
		AttemptID: attempt.ID,
		Provider:  provider,
		Status:    domain.AttemptStatusFailed,
		Message:   gwErr.UserMessage(),
	})
	if err := d.wizards.Save(ctx, st); err != nil {
		d.logger.Error().Err(err).Str("session_id", st.SessionID).Msg("failed to save wizard after payment failure")
	}

	d.count(ctx, provider, domain.AttemptStatusFailed)
	d.logger.Warn().Err(cause).Str("session_id", st.SessionID).Str("provider", string(provider)).Msg("charge failed")
	return gwErr
}

// settle applies the attempt outcome to the wizard. A paid attempt finishes the session.
func (d *PaymentDispatcher) settle(ctx context.Context, st *wizard.State, attempt *domain.PaymentAttempt, q *QuoteResult, token string, reused bool) (*CheckoutResult, error) {
	st.RecordPayment(wizard.PaymentOutcome{
		AttemptID:   attempt.ID,
		Provider:    attempt.Provider,
		Status:      attempt.Status,
		Message:     attempt.Message,
		RedirectURL: attempt.RedirectURL,
	})
	result := &CheckoutResult{Attempt: attempt, Quote: q, Token: token, Reused: reused}

	if attempt.Status == domain.AttemptStatusPaid {
		d.redeem(ctx, attempt)
		if err := d.wizards.Finish(ctx, st.SessionID, st.DraftID); err != nil {
			d.logger.Error().Err(err).Str("session_id", st.SessionID).Msg("failed to finish wizard")
		}
		return result, nil
	}

	if err := d.wizards.Save(ctx, st); err != nil {
		return nil, err
	}
	result.State = st
	return result, nil
}

func (d *PaymentDispatcher) redeem(ctx context.Context, attempt *domain.PaymentAttempt) {
	if attempt.PromoID == "" || d.promos == nil {
		return
	}
	if err := d.promos.Redeem(ctx, attempt.PromoID); err != nil {
		d.logger.Error().Err(err).Str("promo_id", attempt.PromoID).Msg("failed to redeem promo")
	}
}

// CapturePayPal completes the PayPal order the buyer approved in the embedded button
func (d *PaymentDispatcher) CapturePayPal(ctx context.Context, sessionID, orderID string) (*CheckoutResult, error) {
	st, err := d.wizards.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	attempt, err := d.attempts.GetByProviderRef(ctx, domain.ProviderPayPal, orderID)
	if err != nil {
		return nil, err
	}
	if attempt.SessionID != st.SessionID {
		return nil, domain.ErrForbidden
	}
	if attempt.Status == domain.AttemptStatusPaid {
		return d.settle(ctx, st, attempt, nil, orderID, true)
	}

	snap, err := d.settings.Effective(ctx)
	if err != nil {
		return nil, err
	}
	gateway, err := d.factory(snap.Config(domain.ProviderPayPal))
	if err != nil {
		return nil, err
	}
	capturer, ok := gateway.(PaymentCapturer)
	if !ok {
		return nil, fmt.Errorf("provider %s cannot capture", gateway.Name())
	}

	callCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()
	res, err := capturer.Capture(callCtx, attempt.IdempotencyKey+"-capture", orderID)
	if err != nil {
		return nil, d.fail(ctx, st, attempt, domain.ProviderPayPal, err)
	}

	attempt.Status = res.Status
	if err := d.attempts.Update(ctx, attempt); err != nil {
		return nil, err
	}
	d.count(ctx, domain.ProviderPayPal, "capture_"+attempt.Status)
	return d.settle(ctx, st, attempt, nil, orderID, false)
}

// Attempt returns an attempt for the landing pages
func (d *PaymentDispatcher) Attempt(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	return d.attempts.GetByID(ctx, id)
}

// VerifyXenditCallback checks the x-callback-token header against the effective config
func (d *PaymentDispatcher) VerifyXenditCallback(ctx context.Context, token string) (bool, error) {
	snap, err := d.settings.Effective(ctx)
	if err != nil {
		return false, err
	}
	return xendit.VerifyCallbackToken(snap.Config(domain.ProviderXendit).WebhookToken, token), nil
}

// VerifyMidtransNotification checks the SHA-512 signature against the effective server key
func (d *PaymentDispatcher) VerifyMidtransNotification(ctx context.Context, n midtrans.Notification) (bool, error) {
	snap, err := d.settings.Effective(ctx)
	if err != nil {
		return false, err
	}
	return midtrans.VerifySignature(n, snap.Config(domain.ProviderMidtrans).SecretKey), nil
}

// HandleNotification applies a verified callback. Repeated or stale notifications are no-ops.
func (d *PaymentDispatcher) HandleNotification(ctx context.Context, n Notification) error {
	attempt, err := d.attempts.GetByOrderRef(ctx, n.OrderRef)
	if errors.Is(err, domain.ErrNotFound) && n.ProviderRef != "" {
		attempt, err = d.attempts.GetByProviderRef(ctx, n.Provider, n.ProviderRef)
	}
	if err != nil {
		return err
	}
	if attempt.Provider != n.Provider {
		return fmt.Errorf("notification provider %s does not match attempt provider %s: %w", n.Provider, attempt.Provider, domain.ErrForbidden)
	}

	if attempt.Status == n.Status || attempt.Finished() {
		d.logger.Debug().Str("order_ref", attempt.OrderRef).Str("status", n.Status).Msg("duplicate notification ignored")
		return nil
	}

	if err := d.attempts.UpdateStatus(ctx, attempt.ID, n.Status, n.Message); err != nil {
		return err
	}
	attempt.Status = n.Status
	d.count(ctx, attempt.Provider, "notify_"+n.Status)
	d.logger.Info().Str("order_ref", attempt.OrderRef).Str("provider", string(n.Provider)).Str("status", n.Status).Msg("payment notification applied")

	if n.Status == domain.AttemptStatusPaid {
		d.redeem(ctx, attempt)
		return d.wizards.Finish(ctx, attempt.SessionID, attempt.DraftID)
	}

	// keep the session in step with the outcome when it is still around
	st, err := d.wizards.Load(ctx, attempt.SessionID)
	if err != nil {
		return nil
	}
	if st.LastPayment != nil && st.LastPayment.AttemptID == attempt.ID {
		st.RecordPayment(wizard.PaymentOutcome{
			AttemptID: attempt.ID,
			Provider:  attempt.Provider,
			Status:    n.Status,
			Message:   n.Message,
		})
		_ = d.wizards.Save(ctx, st)
	}
	return nil
}

func (d *PaymentDispatcher) count(ctx context.Context, provider domain.Provider, outcome string) {
	if d.attemptCounter == nil {
		return
	}
	d.attemptCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("outcome", outcome),
	))
}
