// Package wizard holds the order wizard state and its transition rules.
//
// A State is owned by one controller (service.WizardService) and passed to each
// step handler. Mutators only touch the fields of their own step, except where an
// upstream change invalidates package-scoped selections.
package wizard

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/oklog/ulid/v2"
)

var validate = validator.New()

// AppliedPromo is a promo that validated against the current subtotal
type AppliedPromo struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
}

// PaymentOutcome is the last result reported for a checkout attempt
type PaymentOutcome struct {
	AttemptID   string          `json:"attempt_id"`
	Provider    domain.Provider `json:"provider"`
	Status      string          `json:"status"`
	Message     string          `json:"message,omitempty"`
	RedirectURL string          `json:"redirect_url,omitempty"`
}

// State is the serializable wizard aggregate
type State struct {
	SessionID          string          `json:"session_id"`
	Flow               Flow            `json:"flow"`
	Step               Step            `json:"step"`
	Domain             string          `json:"domain,omitempty"`
	TemplateID         string          `json:"template_id,omitempty"`
	TemplateName       string          `json:"template_name,omitempty"`
	PackageID          string          `json:"package_id,omitempty"`
	PackageName        string          `json:"package_name,omitempty"`
	DurationMonths     int             `json:"duration_months,omitempty"`
	AddOns             map[string]int  `json:"add_ons"`
	SubscriptionAddOns map[string]int  `json:"subscription_add_ons"`
	Customer           domain.Customer `json:"customer"`
	Promo              *AppliedPromo   `json:"promo,omitempty"`
	DraftID            string          `json:"draft_id,omitempty"`
	// IdempotencyKey identifies the current checkout attempt. It changes whenever
	// the order content changes so a new order never reuses an old charge.
	IdempotencyKey string          `json:"idempotency_key"`
	LastPayment    *PaymentOutcome `json:"last_payment,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// New starts an empty wizard for flow
func New(flow Flow, now time.Time) (*State, error) {
	if !flow.Valid() {
		return nil, domain.NewValidationError("flow", "must be website or plan")
	}
	return &State{
		SessionID:          ulid.Make().String(),
		Flow:               flow,
		Step:               flowSteps[flow][0],
		AddOns:             map[string]int{},
		SubscriptionAddOns: map[string]int{},
		IdempotencyKey:     ulid.Make().String(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (s *State) rotateKey() {
	s.IdempotencyKey = ulid.Make().String()
}

// RenewIdempotencyKey starts a new checkout attempt for the same selections
func (s *State) RenewIdempotencyKey() {
	s.rotateKey()
}

// SetDomain records the buyer's domain name (website flow)
func (s *State) SetDomain(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if err := validate.Var(name, "required,fqdn"); err != nil {
		return domain.NewValidationError("domain", "must be a valid domain name")
	}
	if name != s.Domain {
		s.Domain = name
		s.rotateKey()
	}
	return nil
}

// SelectTemplate records the chosen design
func (s *State) SelectTemplate(id, name string) error {
	if strings.TrimSpace(id) == "" {
		return domain.NewValidationError("template_id", "is required")
	}
	if id != s.TemplateID {
		s.TemplateID = id
		s.rotateKey()
	}
	s.TemplateName = name
	return nil
}

// SelectPackage records the chosen package. Switching to a different package
// clears the duration and add-on selections, which are package-scoped.
func (s *State) SelectPackage(id, name string) error {
	if strings.TrimSpace(id) == "" {
		return domain.NewValidationError("package_id", "is required")
	}
	if id != s.PackageID {
		s.PackageID = id
		s.DurationMonths = 0
		s.AddOns = map[string]int{}
		s.SubscriptionAddOns = map[string]int{}
		s.rotateKey()
	}
	s.PackageName = name
	return nil
}

// SetDurationMonths records the chosen duration
func (s *State) SetDurationMonths(months int) error {
	if months < 1 {
		return domain.NewValidationError("duration", "must be at least one month")
	}
	if s.PackageID == "" {
		return &StepLockedError{Step: StepPlan, Missing: []string{FieldPackage}}
	}
	if months != s.DurationMonths {
		s.DurationMonths = months
		s.rotateKey()
	}
	return nil
}

// SetDurationYears records a website duration chosen in years
func (s *State) SetDurationYears(years int) error {
	if years < 1 {
		return domain.NewValidationError("duration", "must be at least one year")
	}
	return s.SetDurationMonths(years * 12)
}

// DurationYears is the whole-year view of the duration used by the website flow
func (s *State) DurationYears() int {
	return s.DurationMonths / 12
}

// SetAddOns replaces both add-on selections. Quantities must already be clamped;
// zero quantities are dropped.
func (s *State) SetAddOns(addOns, subscriptionAddOns map[string]int) error {
	if s.PackageID == "" {
		return &StepLockedError{Step: StepAddOns, Missing: []string{FieldPackage}}
	}
	next := pruneZero(addOns)
	nextSub := pruneZero(subscriptionAddOns)
	for id, q := range next {
		if q < 0 {
			return domain.NewValidationError("add_ons."+id, "quantity cannot be negative")
		}
	}
	for id, q := range nextSub {
		if q < 0 {
			return domain.NewValidationError("subscription_add_ons."+id, "quantity cannot be negative")
		}
	}
	if !maps.Equal(next, s.AddOns) || !maps.Equal(nextSub, s.SubscriptionAddOns) {
		s.AddOns = next
		s.SubscriptionAddOns = nextSub
		s.rotateKey()
	}
	return nil
}

// AllAddOnQuantities merges both selections for pricing
func (s *State) AllAddOnQuantities() map[string]int {
	out := make(map[string]int, len(s.AddOns)+len(s.SubscriptionAddOns))
	maps.Copy(out, s.AddOns)
	maps.Copy(out, s.SubscriptionAddOns)
	return out
}

// SetCustomer validates and stores buyer details
func (s *State) SetCustomer(c domain.Customer) error {
	c.Email = strings.TrimSpace(c.Email)
	c.Name = strings.TrimSpace(c.Name)
	if err := validate.Struct(c); err != nil {
		return customerValidationError(err)
	}
	if s.Flow == FlowWebsite && !c.AcceptedTerms {
		return domain.NewValidationError(FieldTerms, "terms must be accepted")
	}
	s.Customer = c
	return nil
}

// ApplyPromo stores a validated promo
func (s *State) ApplyPromo(p AppliedPromo) {
	if s.Promo == nil || s.Promo.Code != p.Code {
		s.rotateKey()
	}
	s.Promo = &p
}

// ClearPromo removes the applied promo
func (s *State) ClearPromo() {
	if s.Promo != nil {
		s.Promo = nil
		s.rotateKey()
	}
}

// Missing lists the prerequisite fields still empty for step
func (s *State) Missing(step Step) []string {
	var missing []string
	for _, field := range prerequisites[s.Flow][step] {
		if !s.has(field) {
			missing = append(missing, field)
		}
	}
	return missing
}

func (s *State) has(field string) bool {
	switch field {
	case FieldDomain:
		return s.Domain != ""
	case FieldTemplate:
		return s.TemplateID != ""
	case FieldPackage:
		return s.PackageID != ""
	case FieldDuration:
		return s.DurationMonths > 0
	case FieldEmail:
		return s.Customer.Email != "" && validate.Var(s.Customer.Email, "email") == nil
	case FieldTerms:
		return s.Customer.AcceptedTerms
	}
	return false
}

// CanEnter returns a *StepLockedError when step's prerequisites are not met
func (s *State) CanEnter(step Step) error {
	if _, ok := prerequisites[s.Flow][step]; !ok {
		return fmt.Errorf("step %s is not part of the %s flow: %w", step, s.Flow, domain.ErrStepLocked)
	}
	if missing := s.Missing(step); len(missing) > 0 {
		return &StepLockedError{Step: step, Missing: missing}
	}
	return nil
}

// GoTo moves to an input step. Outcome steps are only reached through RecordPayment.
func (s *State) GoTo(step Step) error {
	if step.Terminal() {
		return fmt.Errorf("cannot navigate to outcome step %s: %w", step, domain.ErrStepLocked)
	}
	if err := s.CanEnter(step); err != nil {
		return err
	}
	s.Step = step
	return nil
}

// Complete moves past step when the following step can be entered; otherwise the
// wizard stays where it is.
func (s *State) Complete(step Step) {
	if s.Step.Terminal() {
		return
	}
	next, ok := Next(s.Flow, step)
	if !ok {
		return
	}
	if s.CanEnter(next) == nil {
		s.Step = next
	}
}

// Rewind steps back until the current step's prerequisites hold again. It runs after
// an upstream change such as a package switch.
func (s *State) Rewind() {
	if s.Step.Terminal() {
		return
	}
	steps := flowSteps[s.Flow]
	i := slices.Index(steps, s.Step)
	for i > 0 && s.CanEnter(steps[i]) != nil {
		i--
	}
	if i >= 0 {
		s.Step = steps[i]
	}
}

// RecordPayment moves the wizard to the outcome step for status.
// A failed attempt lands on the error step with every selection intact.
func (s *State) RecordPayment(out PaymentOutcome) {
	s.LastPayment = &out
	switch out.Status {
	case domain.AttemptStatusPaid:
		s.Step = StepSuccess
	case domain.AttemptStatusPending:
		s.Step = StepPending
	default:
		s.Step = StepError
	}
}

// Retry returns from the error step to payment with the same selections
func (s *State) Retry() error {
	if s.Step != StepError {
		return fmt.Errorf("retry only allowed after a failed payment: %w", domain.ErrStepLocked)
	}
	return s.GoTo(StepPayment)
}

// Draft snapshots the state into a draft row
func (s *State) Draft(quotedTotal *int64) *domain.OrderDraft {
	d := &domain.OrderDraft{
		ID:                 s.DraftID,
		Kind:               s.Flow.DraftKind(),
		SessionID:          s.SessionID,
		Domain:             s.Domain,
		TemplateID:         s.TemplateID,
		TemplateName:       s.TemplateName,
		PackageID:          s.PackageID,
		PackageName:        s.PackageName,
		DurationMonths:     s.DurationMonths,
		AddOns:             maps.Clone(s.AddOns),
		SubscriptionAddOns: maps.Clone(s.SubscriptionAddOns),
		Customer:           s.Customer,
		QuotedTotal:        quotedTotal,
		Status:             domain.DraftStatusDraft,
	}
	if s.Promo != nil {
		d.PromoCode = s.Promo.Code
	}
	if s.Step == StepPayment || s.Step.Terminal() {
		d.Status = domain.DraftStatusCheckout
	}
	return d
}

func pruneZero(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for id, q := range in {
		if q != 0 {
			out[id] = q
		}
	}
	return out
}

func customerValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return domain.NewValidationError("customer", err.Error())
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			fields[name] = "is required"
		case "email":
			fields[name] = "must be a valid email address"
		case "max":
			fields[name] = "is too long"
		default:
			fields[name] = "is invalid"
		}
	}
	return &domain.ValidationError{Fields: fields}
}
