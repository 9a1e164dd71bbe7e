package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mansoorceksport/sitekit/internal/config"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maskBullets = "••••••••"

// MaskSecret previews a credential as its first and last four characters.
// Short values are fully masked.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return maskBullets
	}
	return secret[:4] + maskBullets + secret[len(secret)-4:]
}

// GatewaySnapshot is the effective gateway configuration read once per checkout
type GatewaySnapshot struct {
	Configs map[domain.Provider]*domain.GatewayConfig
	Active  domain.Provider
}

// Config returns the provider's configuration or nil
func (s *GatewaySnapshot) Config(p domain.Provider) *domain.GatewayConfig {
	return s.Configs[p]
}

// Configured lists usable providers in fallback order
func (s *GatewaySnapshot) Configured() []domain.Provider {
	var out []domain.Provider
	for _, p := range domain.ProviderOrder {
		if s.Configs[p].Configured() {
			out = append(out, p)
		}
	}
	return out
}

// GatewayConfigView is the admin-facing, masked form of a provider config
type GatewayConfigView struct {
	Provider            domain.Provider           `json:"provider"`
	Enabled             bool                      `json:"enabled"`
	Configured          bool                      `json:"configured"`
	Environment         domain.GatewayEnvironment `json:"environment"`
	ClientKeyPreview    string                    `json:"client_key_preview"`
	SecretKeyPreview    string                    `json:"secret_key_preview"`
	WebhookTokenPreview string                    `json:"webhook_token_preview"`
	MerchantID          string                    `json:"merchant_id,omitempty"`
	Source              string                    `json:"source"` // env or admin
	UpdatedAt           *time.Time                `json:"updated_at,omitempty"`
}

// GatewaySettingsView is returned by the get_settings action
type GatewaySettingsView struct {
	ActiveProvider domain.Provider     `json:"active_provider"`
	Providers      []GatewayConfigView `json:"providers"`
}

// GatewayStatus is what any signed-in caller may see
type GatewayStatus struct {
	ActiveProvider domain.Provider          `json:"active_provider"`
	Configured     map[domain.Provider]bool `json:"configured"`
}

// SaveGatewayConfigInput updates one provider. Blank credentials keep the stored value.
type SaveGatewayConfigInput struct {
	Provider     string `json:"provider" validate:"required,oneof=xendit midtrans paypal"`
	Enabled      *bool  `json:"enabled"`
	Environment  string `json:"environment" validate:"omitempty,oneof=sandbox production"`
	ClientKey    string `json:"client_key"`
	SecretKey    string `json:"secret_key"`
	MerchantID   string `json:"merchant_id"`
	WebhookToken string `json:"webhook_token"`
}

// GatewaySettingsService merges env defaults with admin-saved gateway rows
type GatewaySettingsService struct {
	repo          domain.GatewayRepository
	defaults      map[domain.Provider]*domain.GatewayConfig
	defaultActive domain.Provider
	changes       domain.ChangePublisher
	logger        zerolog.Logger
}

// NewGatewaySettingsService creates the service. changes may be nil.
func NewGatewaySettingsService(repo domain.GatewayRepository, cfg config.PaymentConfig, changes domain.ChangePublisher) *GatewaySettingsService {
	active, _ := domain.ParseProvider(cfg.DefaultProvider)
	return &GatewaySettingsService{
		repo:          repo,
		defaults:      envGatewayDefaults(cfg),
		defaultActive: active,
		changes:       changes,
		logger:        log.With().Str("component", "gateway_settings").Logger(),
	}
}

func envGatewayDefaults(cfg config.PaymentConfig) map[domain.Provider]*domain.GatewayConfig {
	xenditEnv := domain.EnvSandbox
	if strings.HasPrefix(cfg.Xendit.SecretKey, "xnd_production") {
		xenditEnv = domain.EnvProduction
	}
	return map[domain.Provider]*domain.GatewayConfig{
		domain.ProviderXendit: {
			Provider:     domain.ProviderXendit,
			Enabled:      cfg.Xendit.SecretKey != "",
			Environment:  xenditEnv,
			SecretKey:    cfg.Xendit.SecretKey,
			WebhookToken: cfg.Xendit.WebhookToken,
		},
		domain.ProviderMidtrans: {
			Provider:    domain.ProviderMidtrans,
			Enabled:     cfg.Midtrans.ServerKey != "",
			Environment: parseEnvironment(cfg.Midtrans.Environment),
			ClientKey:   cfg.Midtrans.ClientKey,
			SecretKey:   cfg.Midtrans.ServerKey,
			MerchantID:  cfg.Midtrans.MerchantID,
		},
		domain.ProviderPayPal: {
			Provider:    domain.ProviderPayPal,
			Enabled:     cfg.PayPal.ClientID != "",
			Environment: parseEnvironment(cfg.PayPal.Environment),
			ClientKey:   cfg.PayPal.ClientID,
			SecretKey:   cfg.PayPal.ClientSecret,
		},
	}
}

func parseEnvironment(s string) domain.GatewayEnvironment {
	if domain.GatewayEnvironment(s) == domain.EnvProduction {
		return domain.EnvProduction
	}
	return domain.EnvSandbox
}

// Effective reads the saved rows once and overlays them on the env defaults.
// A saved row wins per provider; its blank credentials fall back to env values.
func (s *GatewaySettingsService) Effective(ctx context.Context) (*GatewaySnapshot, error) {
	rows, err := s.repo.ListConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load gateway configs: %w", err)
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load gateway settings: %w", err)
	}

	snap := &GatewaySnapshot{Configs: make(map[domain.Provider]*domain.GatewayConfig, len(s.defaults))}
	for p, def := range s.defaults {
		c := *def
		snap.Configs[p] = &c
	}
	for _, row := range rows {
		merged := *row
		if def := s.defaults[row.Provider]; def != nil {
			merged.ClientKey = firstNonEmpty(row.ClientKey, def.ClientKey)
			merged.SecretKey = firstNonEmpty(row.SecretKey, def.SecretKey)
			merged.WebhookToken = firstNonEmpty(row.WebhookToken, def.WebhookToken)
			merged.MerchantID = firstNonEmpty(row.MerchantID, def.MerchantID)
		}
		snap.Configs[row.Provider] = &merged
	}

	snap.Active = settings.ActiveProvider
	if snap.Active == "" {
		snap.Active = s.defaultActive
	}
	return snap, nil
}

// Settings returns the masked admin view
func (s *GatewaySettingsService) Settings(ctx context.Context) (*GatewaySettingsView, error) {
	snap, err := s.Effective(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load gateway configs: %w", err)
	}
	saved := make(map[domain.Provider]bool, len(rows))
	for _, row := range rows {
		saved[row.Provider] = true
	}

	view := &GatewaySettingsView{ActiveProvider: snap.Active}
	for _, p := range domain.ProviderOrder {
		c := snap.Config(p)
		v := GatewayConfigView{
			Provider:            p,
			Enabled:             c.Enabled,
			Configured:          c.Configured(),
			Environment:         c.Environment,
			ClientKeyPreview:    MaskSecret(c.ClientKey),
			SecretKeyPreview:    MaskSecret(c.SecretKey),
			WebhookTokenPreview: MaskSecret(c.WebhookToken),
			MerchantID:          c.MerchantID,
			Source:              "env",
		}
		if saved[p] {
			v.Source = "admin"
			updated := c.UpdatedAt
			v.UpdatedAt = &updated
		}
		view.Providers = append(view.Providers, v)
	}
	return view, nil
}

// Status reports configured flags only
func (s *GatewaySettingsService) Status(ctx context.Context) (*GatewayStatus, error) {
	snap, err := s.Effective(ctx)
	if err != nil {
		return nil, err
	}
	status := &GatewayStatus{ActiveProvider: snap.Active, Configured: map[domain.Provider]bool{}}
	for _, p := range domain.ProviderOrder {
		status.Configured[p] = snap.Config(p).Configured()
	}
	return status, nil
}

// SaveConfig stores one provider's settings
func (s *GatewaySettingsService) SaveConfig(ctx context.Context, in SaveGatewayConfigInput) (*GatewayConfigView, error) {
	provider, ok := domain.ParseProvider(in.Provider)
	if !ok {
		return nil, domain.NewValidationError("provider", "must be xendit, midtrans or paypal")
	}
	if in.Environment != "" && in.Environment != string(domain.EnvSandbox) && in.Environment != string(domain.EnvProduction) {
		return nil, domain.NewValidationError("environment", "must be sandbox or production")
	}

	existing, err := s.repo.GetConfig(ctx, provider)
	if errors.Is(err, domain.ErrNotFound) {
		existing = &domain.GatewayConfig{Provider: provider, Environment: domain.EnvSandbox}
	} else if err != nil {
		return nil, err
	}

	if in.Enabled != nil {
		existing.Enabled = *in.Enabled
	}
	if in.Environment != "" {
		existing.Environment = domain.GatewayEnvironment(in.Environment)
	}
	existing.ClientKey = firstNonEmpty(strings.TrimSpace(in.ClientKey), existing.ClientKey)
	existing.SecretKey = firstNonEmpty(strings.TrimSpace(in.SecretKey), existing.SecretKey)
	existing.WebhookToken = firstNonEmpty(strings.TrimSpace(in.WebhookToken), existing.WebhookToken)
	existing.MerchantID = firstNonEmpty(strings.TrimSpace(in.MerchantID), existing.MerchantID)

	if err := s.repo.SaveConfig(ctx, existing); err != nil {
		return nil, err
	}
	s.logger.Info().Str("provider", string(provider)).Bool("enabled", existing.Enabled).Str("environment", string(existing.Environment)).Msg("gateway config saved")
	s.publish(ctx, string(provider))

	updated := existing.UpdatedAt
	return &GatewayConfigView{
		Provider:            provider,
		Enabled:             existing.Enabled,
		Configured:          existing.Configured(),
		Environment:         existing.Environment,
		ClientKeyPreview:    MaskSecret(existing.ClientKey),
		SecretKeyPreview:    MaskSecret(existing.SecretKey),
		WebhookTokenPreview: MaskSecret(existing.WebhookToken),
		MerchantID:          existing.MerchantID,
		Source:              "admin",
		UpdatedAt:           &updated,
	}, nil
}

// SetActive chooses the default checkout provider. An empty value clears the choice.
func (s *GatewaySettingsService) SetActive(ctx context.Context, provider string) error {
	var active domain.Provider
	if provider != "" {
		p, ok := domain.ParseProvider(provider)
		if !ok {
			return domain.NewValidationError("active_provider", "must be xendit, midtrans or paypal")
		}
		snap, err := s.Effective(ctx)
		if err != nil {
			return err
		}
		if !snap.Config(p).Configured() {
			return domain.NewValidationError("active_provider", "provider is not configured")
		}
		active = p
	}

	if err := s.repo.SaveSettings(ctx, &domain.GatewaySettings{ActiveProvider: active}); err != nil {
		return err
	}
	s.logger.Info().Str("active_provider", string(active)).Msg("active gateway changed")
	s.publish(ctx, "settings")
	return nil
}

func (s *GatewaySettingsService) publish(ctx context.Context, rowID string) {
	if s.changes == nil {
		return
	}
	_ = s.changes.Publish(ctx, domain.ChangeEvent{Table: domain.TableGatewaySettings, RowID: rowID, Op: "update"})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
