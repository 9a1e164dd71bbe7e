package domain

import (
	"context"
	"time"
)

// DraftKind separates website order leads from marketing plan orders
type DraftKind string

const (
	DraftKindLead      DraftKind = "lead"
	DraftKindMarketing DraftKind = "marketing"
)

// Draft status constants
const (
	DraftStatusDraft     = "draft"
	DraftStatusCheckout  = "checkout"
	DraftStatusPaid      = "paid"
	DraftStatusAbandoned = "abandoned"
)

// Customer holds the buyer details collected by the wizard
type Customer struct {
	Name          string `json:"name" validate:"required,max=120"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"omitempty,max=32"`
	BusinessName  string `json:"business_name" validate:"omitempty,max=160"`
	Province      string `json:"province" validate:"omitempty,max=80"`
	City          string `json:"city" validate:"omitempty,max=80"`
	AcceptedTerms bool   `json:"accepted_terms"`
}

// OrderDraft is the durable snapshot of a wizard session so staff can follow up on leads
type OrderDraft struct {
	ID                 string         `json:"id"`
	Kind               DraftKind      `json:"kind"`
	SessionID          string         `json:"session_id"`
	Domain             string         `json:"domain,omitempty"`
	TemplateID         string         `json:"template_id,omitempty"`
	TemplateName       string         `json:"template_name,omitempty"`
	PackageID          string         `json:"package_id,omitempty"`
	PackageName        string         `json:"package_name,omitempty"`
	DurationMonths     int            `json:"duration_months,omitempty"`
	AddOns             map[string]int `json:"add_ons,omitempty"`
	SubscriptionAddOns map[string]int `json:"subscription_add_ons,omitempty"`
	Customer           Customer       `json:"customer"`
	PromoCode          string         `json:"promo_code,omitempty"`
	QuotedTotal        *int64         `json:"quoted_total,omitempty"`
	Status             string         `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// OrderDraftRepository manages order_drafts
type OrderDraftRepository interface {
	// Upsert creates the draft when ID is empty (setting ID) and updates it otherwise.
	Upsert(ctx context.Context, draft *OrderDraft) error
	GetByID(ctx context.Context, id string) (*OrderDraft, error)
	UpdateStatus(ctx context.Context, id string, status string) error
	ListRecent(ctx context.Context, kind DraftKind, limit int64) ([]*OrderDraft, error)
}
