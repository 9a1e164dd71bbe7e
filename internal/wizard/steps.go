package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mansoorceksport/sitekit/internal/domain"
)

// Flow is the kind of order being placed
type Flow string

const (
	FlowWebsite Flow = "website" // domain + template + yearly website package
	FlowPlan    Flow = "plan"    // monthly marketing plan
)

// Valid reports whether f is a known flow
func (f Flow) Valid() bool { return f == FlowWebsite || f == FlowPlan }

// DraftKind maps the flow to the draft row it persists into
func (f Flow) DraftKind() domain.DraftKind {
	if f == FlowPlan {
		return domain.DraftKindMarketing
	}
	return domain.DraftKindLead
}

// Step is a wizard position
type Step string

const (
	StepDomain   Step = "domain"
	StepTemplate Step = "template"
	StepDetails  Step = "details"
	StepPlan     Step = "plan"
	StepAddOns   Step = "addons"
	StepPayment  Step = "payment"
	StepSuccess  Step = "success"
	StepPending  Step = "pending"
	StepError    Step = "error"
)

// Terminal reports whether s is an outcome step
func (s Step) Terminal() bool {
	return s == StepSuccess || s == StepPending || s == StepError
}

var flowSteps = map[Flow][]Step{
	FlowWebsite: {StepDomain, StepTemplate, StepDetails, StepPlan, StepAddOns, StepPayment},
	FlowPlan:    {StepPlan, StepAddOns, StepDetails, StepPayment},
}

// Steps returns the ordered input steps of a flow
func Steps(f Flow) []Step {
	return append([]Step(nil), flowSteps[f]...)
}

// Next returns the input step following step in flow
func Next(f Flow, step Step) (Step, bool) {
	steps := flowSteps[f]
	for i, st := range steps {
		if st == step && i+1 < len(steps) {
			return steps[i+1], true
		}
	}
	return "", false
}

// Field names reported as missing prerequisites
const (
	FieldDomain   = "domain"
	FieldTemplate = "template"
	FieldPackage  = "package"
	FieldDuration = "duration"
	FieldEmail    = "email"
	FieldTerms    = "accepted_terms"
)

var prerequisites = map[Flow]map[Step][]string{
	FlowWebsite: {
		StepDomain:   nil,
		StepTemplate: {FieldDomain},
		StepDetails:  {FieldDomain, FieldTemplate},
		StepPlan:     {FieldDomain, FieldTemplate},
		StepAddOns:   {FieldDomain, FieldTemplate, FieldPackage, FieldDuration},
		StepPayment:  {FieldDomain, FieldTemplate, FieldPackage, FieldDuration, FieldEmail, FieldTerms},
	},
	FlowPlan: {
		StepPlan:    nil,
		StepAddOns:  {FieldPackage, FieldDuration},
		StepDetails: {FieldPackage, FieldDuration},
		StepPayment: {FieldPackage, FieldDuration, FieldEmail},
	},
}

// checkpoints are the steps whose completion persists the order draft
var checkpoints = map[Step]bool{
	StepDetails: true,
	StepPlan:    true,
	StepPayment: true,
}

// IsCheckpoint reports whether leaving step should upsert the draft
func IsCheckpoint(step Step) bool { return checkpoints[step] }

// StepLockedError lists what is missing before a step can be entered
type StepLockedError struct {
	Step    Step
	Missing []string
}

func (e *StepLockedError) Error() string {
	return fmt.Sprintf("step %s requires %s", e.Step, strings.Join(e.Missing, ", "))
}

func (e *StepLockedError) Unwrap() error { return domain.ErrStepLocked }

// AsStepLocked extracts a StepLockedError from err
func AsStepLocked(err error) (*StepLockedError, bool) {
	var locked *StepLockedError
	if errors.As(err, &locked) {
		return locked, true
	}
	return nil, false
}
