package service

import (
	"context"
	"testing"

	"github.com/mansoorceksport/sitekit/internal/config"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "••••••••", MaskSecret("short"))
	assert.Equal(t, "••••••••", MaskSecret("12345678"))
	assert.Equal(t, "xnd_••••••••9fA2", MaskSecret("xnd_development_abcdef9fA2"))
}

func envPayment() config.PaymentConfig {
	return config.PaymentConfig{
		Xendit: config.XenditConfig{SecretKey: "xnd_production_envsecret", WebhookToken: "env-callback-token"},
		PayPal: config.PayPalConfig{ClientID: "env-paypal-id", ClientSecret: "env-paypal-secret", Environment: "sandbox"},
	}
}

func TestGatewayEffectiveMergesEnvAndSavedRows(t *testing.T) {
	repo := newMemGateways()
	svc := NewGatewaySettingsService(repo, envPayment(), nil)
	ctx := context.Background()

	snap, err := svc.Effective(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Provider{domain.ProviderXendit, domain.ProviderPayPal}, snap.Configured())
	assert.Equal(t, domain.EnvProduction, snap.Config(domain.ProviderXendit).Environment)
	assert.Empty(t, snap.Active)

	// admin row for midtrans plus a xendit row that only flips the environment
	repo.configs[domain.ProviderMidtrans] = &domain.GatewayConfig{
		Provider: domain.ProviderMidtrans, Enabled: true, Environment: domain.EnvSandbox,
		ClientKey: "SB-Mid-client-1234", SecretKey: "SB-Mid-server-5678",
	}
	repo.configs[domain.ProviderXendit] = &domain.GatewayConfig{
		Provider: domain.ProviderXendit, Enabled: true, Environment: domain.EnvSandbox,
	}

	snap, err = svc.Effective(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Provider{domain.ProviderXendit, domain.ProviderMidtrans, domain.ProviderPayPal}, snap.Configured())
	xendit := snap.Config(domain.ProviderXendit)
	assert.Equal(t, domain.EnvSandbox, xendit.Environment)
	assert.Equal(t, "xnd_production_envsecret", xendit.SecretKey, "blank saved credential falls back to env")
	assert.Equal(t, "env-callback-token", xendit.WebhookToken)
}

func TestGatewaySaveConfigKeepsStoredSecretWhenBlank(t *testing.T) {
	repo := newMemGateways()
	changes := &recordingPublisher{}
	svc := NewGatewaySettingsService(repo, config.PaymentConfig{}, changes)
	ctx := context.Background()
	enabled := true

	view, err := svc.SaveConfig(ctx, SaveGatewayConfigInput{
		Provider:    "midtrans",
		Enabled:     &enabled,
		Environment: "production",
		ClientKey:   "Mid-client-abcdefgh",
		SecretKey:   "Mid-server-12345678",
	})
	require.NoError(t, err)
	assert.True(t, view.Configured)
	assert.Equal(t, "Mid-••••••••efgh", view.ClientKeyPreview)
	assert.Equal(t, "Mid-••••••••5678", view.SecretKeyPreview)
	assert.Equal(t, "admin", view.Source)

	_, err = svc.SaveConfig(ctx, SaveGatewayConfigInput{Provider: "midtrans", SecretKey: "  "})
	require.NoError(t, err)
	stored := repo.configs[domain.ProviderMidtrans]
	assert.Equal(t, "Mid-server-12345678", stored.SecretKey)
	assert.Equal(t, domain.EnvProduction, stored.Environment)
	assert.True(t, stored.Enabled)

	assert.Equal(t, []string{domain.TableGatewaySettings, domain.TableGatewaySettings}, changes.tables())

	_, err = svc.SaveConfig(ctx, SaveGatewayConfigInput{Provider: "stripe"})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
	_, err = svc.SaveConfig(ctx, SaveGatewayConfigInput{Provider: "midtrans", Environment: "staging"})
	assert.ErrorAs(t, err, &verr)
}

func TestGatewaySettingsViewNeverLeaksSecrets(t *testing.T) {
	svc := NewGatewaySettingsService(newMemGateways(), envPayment(), nil)

	view, err := svc.Settings(context.Background())
	require.NoError(t, err)
	require.Len(t, view.Providers, 3)
	for _, p := range view.Providers {
		assert.NotContains(t, p.SecretKeyPreview, "envsecret")
		assert.NotContains(t, p.SecretKeyPreview, "paypal-secret")
		assert.Equal(t, "env", p.Source)
	}
	assert.False(t, view.Providers[1].Configured, "midtrans has no credentials")
}

func TestGatewaySetActive(t *testing.T) {
	repo := newMemGateways()
	svc := NewGatewaySettingsService(repo, envPayment(), nil)
	ctx := context.Background()

	var verr *domain.ValidationError
	assert.ErrorAs(t, svc.SetActive(ctx, "midtrans"), &verr, "unconfigured provider cannot be active")
	assert.ErrorAs(t, svc.SetActive(ctx, "stripe"), &verr)

	require.NoError(t, svc.SetActive(ctx, "paypal"))
	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderPayPal, status.ActiveProvider)
	assert.True(t, status.Configured[domain.ProviderXendit])
	assert.False(t, status.Configured[domain.ProviderMidtrans])

	require.NoError(t, svc.SetActive(ctx, ""))
	assert.Empty(t, repo.settings.ActiveProvider)
}
