package domain

import (
	"context"
	"time"
)

// Payment attempt status constants
const (
	AttemptStatusPending = "pending"
	AttemptStatusPaid    = "paid"
	AttemptStatusExpired = "expired"
	AttemptStatusFailed  = "failed"
)

// PaymentAttempt is one charge request sent to a provider.
// (IdempotencyKey, Provider) is unique: resubmitting the same attempt never charges twice.
type PaymentAttempt struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	DraftID        string    `json:"draft_id,omitempty"`
	PromoID        string    `json:"promo_id,omitempty"` // redeemed once the attempt is paid
	IdempotencyKey string    `json:"idempotency_key"`
	Provider       Provider  `json:"provider"`
	OrderRef       string    `json:"order_ref"`
	Amount         int64     `json:"amount"` // IDR
	Currency       string    `json:"currency"`
	ProviderAmount string    `json:"provider_amount"` // amount in the provider's currency, decimal string
	Status         string    `json:"status"`
	ProviderRef    string    `json:"provider_ref,omitempty"`
	RedirectURL    string    `json:"redirect_url,omitempty"`
	Message        string    `json:"message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Finished reports whether the attempt reached a terminal status
func (a *PaymentAttempt) Finished() bool {
	return a.Status == AttemptStatusPaid || a.Status == AttemptStatusExpired
}

// PaymentAttemptRepository manages payment_attempts
type PaymentAttemptRepository interface {
	Create(ctx context.Context, attempt *PaymentAttempt) error
	GetByID(ctx context.Context, id string) (*PaymentAttempt, error)
	GetByIdempotencyKey(ctx context.Context, key string, provider Provider) (*PaymentAttempt, error)
	GetByOrderRef(ctx context.Context, orderRef string) (*PaymentAttempt, error)
	GetByProviderRef(ctx context.Context, provider Provider, ref string) (*PaymentAttempt, error)
	UpdateStatus(ctx context.Context, id string, status string, message string) error
	Update(ctx context.Context, attempt *PaymentAttempt) error
}
