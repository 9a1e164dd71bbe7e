package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/repository"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

type memPackages struct {
	rows map[string]*domain.Package
}

func (m *memPackages) Create(ctx context.Context, pkg *domain.Package) error {
	if pkg.ID == "" {
		pkg.ID = ulid.Make().String()
	}
	m.rows[pkg.ID] = pkg
	return nil
}

func (m *memPackages) GetByID(ctx context.Context, id string) (*domain.Package, error) {
	if p, ok := m.rows[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memPackages) List(ctx context.Context, onlyPublic bool) ([]*domain.Package, error) {
	var out []*domain.Package
	for _, p := range m.rows {
		if onlyPublic && (!p.IsPublic || !p.IsActive) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memPackages) Update(ctx context.Context, pkg *domain.Package) error {
	if _, ok := m.rows[pkg.ID]; !ok {
		return domain.ErrNotFound
	}
	m.rows[pkg.ID] = pkg
	return nil
}

func (m *memPackages) Delete(ctx context.Context, id string) error {
	delete(m.rows, id)
	return nil
}

type memDurations struct {
	rows []*domain.DurationOption
	err  error
}

func (m *memDurations) ListByPackage(ctx context.Context, packageID string) ([]*domain.DurationOption, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.DurationOption
	for _, d := range m.rows {
		if d.PackageID == packageID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDurations) Upsert(ctx context.Context, opt *domain.DurationOption) error {
	for i, d := range m.rows {
		if d.PackageID == opt.PackageID && d.Months == opt.Months {
			opt.ID = d.ID
			m.rows[i] = opt
			return nil
		}
	}
	if opt.ID == "" {
		opt.ID = ulid.Make().String()
	}
	m.rows = append(m.rows, opt)
	return nil
}

func (m *memDurations) Delete(ctx context.Context, id string) error {
	for i, d := range m.rows {
		if d.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type memAddOns struct {
	rows []*domain.AddOn
}

func (m *memAddOns) Create(ctx context.Context, a *domain.AddOn) error {
	if a.ID == "" {
		a.ID = ulid.Make().String()
	}
	m.rows = append(m.rows, a)
	return nil
}

func (m *memAddOns) GetByID(ctx context.Context, id string) (*domain.AddOn, error) {
	for _, a := range m.rows {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memAddOns) ListForPackage(ctx context.Context, packageID string) ([]*domain.AddOn, error) {
	var out []*domain.AddOn
	for _, a := range m.rows {
		if a.PackageID == packageID || (a.Scope == domain.AddOnScopeSubscription && a.PackageID == "") {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAddOns) List(ctx context.Context) ([]*domain.AddOn, error) { return m.rows, nil }

func (m *memAddOns) Update(ctx context.Context, a *domain.AddOn) error {
	for i, row := range m.rows {
		if row.ID == a.ID {
			m.rows[i] = a
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memAddOns) Delete(ctx context.Context, id string) error {
	for i, a := range m.rows {
		if a.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type memPromos struct {
	mu   sync.Mutex
	rows map[string]*domain.PromoCode
	err  error
}

func newMemPromos(promos ...*domain.PromoCode) *memPromos {
	m := &memPromos{rows: map[string]*domain.PromoCode{}}
	for _, p := range promos {
		m.rows[p.ID] = p
	}
	return m
}

func (m *memPromos) Create(ctx context.Context, p *domain.PromoCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = ulid.Make().String()
	}
	m.rows[p.ID] = p
	return nil
}

func (m *memPromos) GetByID(ctx context.Context, id string) (*domain.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rows[id]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memPromos) GetByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.rows {
		if domain.NormalizePromoCode(p.Code) == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPromos) List(ctx context.Context) ([]*domain.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PromoCode
	for _, p := range m.rows {
		out = append(out, p)
	}
	return out, nil
}

func (m *memPromos) Update(ctx context.Context, p *domain.PromoCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.ID] = p
	return nil
}

func (m *memPromos) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memPromos) IncrementUsage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.UsedCount++
	return nil
}

type memTemplates struct {
	rows map[string]*domain.WebsiteTemplate
}

func (m *memTemplates) Create(ctx context.Context, t *domain.WebsiteTemplate) error {
	if t.ID == "" {
		t.ID = ulid.Make().String()
	}
	m.rows[t.ID] = t
	return nil
}

func (m *memTemplates) GetByID(ctx context.Context, id string) (*domain.WebsiteTemplate, error) {
	if t, ok := m.rows[id]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memTemplates) List(ctx context.Context, onlyActive bool) ([]*domain.WebsiteTemplate, error) {
	var out []*domain.WebsiteTemplate
	for _, t := range m.rows {
		if onlyActive && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memTemplates) Update(ctx context.Context, t *domain.WebsiteTemplate) error {
	m.rows[t.ID] = t
	return nil
}

func (m *memTemplates) Delete(ctx context.Context, id string) error {
	delete(m.rows, id)
	return nil
}

type memDrafts struct {
	mu   sync.Mutex
	rows map[string]*domain.OrderDraft
}

func (m *memDrafts) Upsert(ctx context.Context, d *domain.OrderDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = ulid.Make().String()
	}
	cp := *d
	m.rows[d.ID] = &cp
	return nil
}

func (m *memDrafts) GetByID(ctx context.Context, id string) (*domain.OrderDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.rows[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memDrafts) UpdateStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Status = status
	return nil
}

func (m *memDrafts) ListRecent(ctx context.Context, kind domain.DraftKind, limit int64) ([]*domain.OrderDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.OrderDraft
	for _, d := range m.rows {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out, nil
}

type memAttempts struct {
	mu   sync.Mutex
	rows map[string]*domain.PaymentAttempt
}

func newMemAttempts() *memAttempts {
	return &memAttempts{rows: map[string]*domain.PaymentAttempt{}}
}

func (m *memAttempts) Create(ctx context.Context, a *domain.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.IdempotencyKey == a.IdempotencyKey && row.Provider == a.Provider {
			return domain.ErrDuplicateAttempt
		}
	}
	a.ID = ulid.Make().String()
	if a.OrderRef == "" {
		a.OrderRef = "ORD-" + a.ID
	}
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memAttempts) find(match func(*domain.PaymentAttempt) bool) (*domain.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memAttempts) GetByID(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	return m.find(func(a *domain.PaymentAttempt) bool { return a.ID == id })
}

func (m *memAttempts) GetByIdempotencyKey(ctx context.Context, key string, provider domain.Provider) (*domain.PaymentAttempt, error) {
	return m.find(func(a *domain.PaymentAttempt) bool { return a.IdempotencyKey == key && a.Provider == provider })
}

func (m *memAttempts) GetByOrderRef(ctx context.Context, ref string) (*domain.PaymentAttempt, error) {
	return m.find(func(a *domain.PaymentAttempt) bool { return a.OrderRef == ref })
}

func (m *memAttempts) GetByProviderRef(ctx context.Context, provider domain.Provider, ref string) (*domain.PaymentAttempt, error) {
	return m.find(func(a *domain.PaymentAttempt) bool { return a.Provider == provider && a.ProviderRef == ref })
}

func (m *memAttempts) UpdateStatus(ctx context.Context, id, status, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Status = status
	a.Message = message
	return nil
}

func (m *memAttempts) Update(ctx context.Context, a *domain.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[a.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memAttempts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memGateways struct {
	configs  map[domain.Provider]*domain.GatewayConfig
	settings domain.GatewaySettings
}

func newMemGateways() *memGateways {
	return &memGateways{configs: map[domain.Provider]*domain.GatewayConfig{}}
}

func (m *memGateways) GetConfig(ctx context.Context, p domain.Provider) (*domain.GatewayConfig, error) {
	if c, ok := m.configs[p]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memGateways) ListConfigs(ctx context.Context) ([]*domain.GatewayConfig, error) {
	var out []*domain.GatewayConfig
	for _, p := range domain.ProviderOrder {
		if c, ok := m.configs[p]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memGateways) SaveConfig(ctx context.Context, c *domain.GatewayConfig) error {
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	m.configs[c.Provider] = &cp
	return nil
}

func (m *memGateways) GetSettings(ctx context.Context) (*domain.GatewaySettings, error) {
	s := m.settings
	return &s, nil
}

func (m *memGateways) SaveSettings(ctx context.Context, s *domain.GatewaySettings) error {
	m.settings = *s
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) tables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Table)
	}
	return out
}

// stubProvider records charge requests and answers with a canned result
type stubProvider struct {
	mu       sync.Mutex
	name     domain.Provider
	result   *ChargeResult
	err      error
	requests []ChargeRequest
}

func (s *stubProvider) Name() domain.Provider { return s.name }

func (s *stubProvider) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	return &res, nil
}

func (s *stubProvider) Capture(ctx context.Context, requestID, ref string) (*ChargeResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ChargeResult{Status: domain.AttemptStatusPaid, ProviderRef: ref}, nil
}

func (s *stubProvider) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

var errBoom = errors.New("boom")

// catalogFixture is a small catalog shared by the service tests:
// a yearly website package, a monthly marketing plan, and add-ons of both scopes.
type catalogFixture struct {
	packages  *memPackages
	durations *memDurations
	addOns    *memAddOns
	promos    *memPromos
	templates *memTemplates
}

func newCatalogFixture() *catalogFixture {
	return &catalogFixture{
		packages: &memPackages{rows: map[string]*domain.Package{
			"web-basic": {ID: "web-basic", Name: "Website Basic", Cadence: domain.CadenceYearly, BasePrice: 1_200_000, IsActive: true, IsPublic: true},
			"growth":    {ID: "growth", Name: "Growth", Cadence: domain.CadenceMonthly, BasePrice: 3_000_000, IsActive: true, IsPublic: true},
			"retired":   {ID: "retired", Name: "Retired", Cadence: domain.CadenceMonthly, BasePrice: 100_000, IsActive: false},
		}},
		durations: &memDurations{rows: []*domain.DurationOption{
			{ID: "d1", PackageID: "web-basic", Months: 12, IsActive: true, Price: domain.AutoPrice()},
			{ID: "d2", PackageID: "web-basic", Months: 24, DiscountPercent: 10, IsActive: true, Price: domain.AutoPrice()},
			{ID: "d3", PackageID: "growth", Months: 1, IsActive: true, Price: domain.AutoPrice()},
			{ID: "d4", PackageID: "growth", Months: 3, DiscountPercent: 10, IsActive: true, Price: domain.AutoPrice()},
			{ID: "d5", PackageID: "growth", Months: 6, IsActive: true, Price: domain.ManualPrice(15_000_000)},
			{ID: "d6", PackageID: "retired", Months: 1, IsActive: true, Price: domain.AutoPrice()},
		}},
		addOns: &memAddOns{rows: []*domain.AddOn{
			{ID: "extra-page", Scope: domain.AddOnScopePackage, PackageID: "web-basic", Label: "Extra page", PricePerUnit: 150_000, Step: 1, MaxQuantity: 10, IsActive: true},
			{ID: "articles", Scope: domain.AddOnScopePackage, PackageID: "growth", Label: "Articles", PricePerUnit: 50_000, Step: 5, MaxQuantity: 20, IsActive: true},
			{ID: "ads-budget", Scope: domain.AddOnScopeSubscription, Label: "Ads management", PricePerUnit: 500_000, Step: 1, IsActive: true},
		}},
		promos: newMemPromos(
			&domain.PromoCode{ID: "p-fixed", Code: "HEMAT100", DiscountType: domain.DiscountFixed, DiscountValue: 100_000, IsActive: true},
			&domain.PromoCode{ID: "p-pct", Code: "DISKON10", DiscountType: domain.DiscountPercentage, DiscountValue: 10, MaxDiscount: 500_000, IsActive: true},
		),
		templates: &memTemplates{rows: map[string]*domain.WebsiteTemplate{
			"t-resto": {ID: "t-resto", Name: "Restaurant", IsActive: true},
			"t-old":   {ID: "t-old", Name: "Old", IsActive: false},
		}},
	}
}

func (f *catalogFixture) services(t *testing.T) (*PromoService, *QuoteService) {
	t.Helper()
	promos, err := NewPromoService(f.promos)
	if err != nil {
		t.Fatalf("promo service: %v", err)
	}
	return promos, NewQuoteService(f.packages, f.durations, f.addOns, promos)
}

func setupSessions(t *testing.T) *repository.RedisWizardSessionStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return repository.NewRedisWizardSessionStore(repository.NewRedisCacheRepository(client), time.Hour)
}
