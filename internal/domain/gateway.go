package domain

import (
	"context"
	"time"
)

// Provider identifies a payment gateway
type Provider string

const (
	ProviderXendit   Provider = "xendit"
	ProviderMidtrans Provider = "midtrans"
	ProviderPayPal   Provider = "paypal"
)

// ProviderOrder is the fallback order used when no active provider is set
var ProviderOrder = []Provider{ProviderXendit, ProviderMidtrans, ProviderPayPal}

// ParseProvider validates a provider name
func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case ProviderXendit, ProviderMidtrans, ProviderPayPal:
		return Provider(s), true
	}
	return "", false
}

// GatewayEnvironment selects sandbox or production endpoints
type GatewayEnvironment string

const (
	EnvSandbox    GatewayEnvironment = "sandbox"
	EnvProduction GatewayEnvironment = "production"
)

// GatewayConfig holds one provider's credentials. Secrets never leave the server unmasked.
type GatewayConfig struct {
	Provider     Provider           `json:"provider"`
	Enabled      bool               `json:"enabled"`
	Environment  GatewayEnvironment `json:"environment"`
	ClientKey    string             `json:"-"` // Midtrans client key / PayPal client id
	SecretKey    string             `json:"-"` // Xendit secret key / Midtrans server key / PayPal secret
	MerchantID   string             `json:"merchant_id,omitempty"`
	WebhookToken string             `json:"-"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Configured reports whether the provider can be offered at checkout
func (g *GatewayConfig) Configured() bool {
	if g == nil || !g.Enabled || g.SecretKey == "" {
		return false
	}
	switch g.Provider {
	case ProviderMidtrans, ProviderPayPal:
		return g.ClientKey != ""
	}
	return true
}

// GatewaySettings is the singleton row holding the admin-chosen default provider
type GatewaySettings struct {
	ActiveProvider Provider  `json:"active_provider"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GatewayRepository manages gateway_settings
type GatewayRepository interface {
	GetConfig(ctx context.Context, provider Provider) (*GatewayConfig, error)
	ListConfigs(ctx context.Context) ([]*GatewayConfig, error)
	SaveConfig(ctx context.Context, cfg *GatewayConfig) error
	GetSettings(ctx context.Context) (*GatewaySettings, error)
	SaveSettings(ctx context.Context, settings *GatewaySettings) error
}
