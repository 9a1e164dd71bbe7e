package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/pricing"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// previewTypes maps accepted preview content types to file extensions
var previewTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// PackageSummary is a package as listed on the pricing page
type PackageSummary struct {
	*domain.Package
	Cadence      domain.Cadence `json:"cadence"`
	PeriodSuffix string         `json:"period_suffix"`
	MaxDiscount  float64        `json:"max_discount"`
}

// PackageDetail adds the selectable durations and add-ons
type PackageDetail struct {
	PackageSummary
	Durations []*domain.DurationOption `json:"durations"`
	AddOns    []*domain.AddOn          `json:"add_ons"`
}

// PackageInput creates or replaces a package. A blank cadence is inferred from name and type.
type PackageInput struct {
	Name      string   `json:"name" validate:"required,max=120"`
	Type      string   `json:"type" validate:"omitempty,max=60"`
	Cadence   string   `json:"cadence" validate:"omitempty,oneof=monthly yearly"`
	BasePrice int64    `json:"base_price" validate:"gte=0"`
	Features  []string `json:"features" validate:"omitempty,dive,max=200"`
	IsActive  *bool    `json:"is_active"`
	IsPublic  *bool    `json:"is_public"`
	SortOrder int      `json:"sort_order"`
}

// DurationOptionInput upserts the row for (package_id, months)
type DurationOptionInput struct {
	PackageID       string  `json:"package_id" validate:"required"`
	Months          int     `json:"months" validate:"required,min=1,max=120"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
	// ManualPrice pins the package price for this duration; nil means formula pricing.
	ManualPrice *int64 `json:"manual_price" validate:"omitempty,gte=0"`
	IsActive    *bool  `json:"is_active"`
	SortOrder   int    `json:"sort_order"`
}

type AddOnInput struct {
	Scope        string `json:"scope" validate:"required,oneof=package subscription"`
	PackageID    string `json:"package_id"`
	Label        string `json:"label" validate:"required,max=120"`
	PricePerUnit int64  `json:"price_per_unit" validate:"gte=0"`
	UnitLabel    string `json:"unit_label" validate:"omitempty,max=40"`
	Step         int    `json:"step" validate:"gte=0"`
	MaxQuantity  int    `json:"max_quantity" validate:"gte=0"`
	IsActive     *bool  `json:"is_active"`
	SortOrder    int    `json:"sort_order"`
}

type TemplateInput struct {
	Name       string `json:"name" validate:"required,max=120"`
	Category   string `json:"category" validate:"omitempty,max=60"`
	PreviewURL string `json:"preview_url" validate:"omitempty,url"`
	IsActive   *bool  `json:"is_active"`
	SortOrder  int    `json:"sort_order"`
}

type PromoInput struct {
	Code          string     `json:"code" validate:"required,max=40"`
	Name          string     `json:"name" validate:"omitempty,max=120"`
	DiscountType  string     `json:"discount_type" validate:"required,oneof=fixed percentage"`
	DiscountValue float64    `json:"discount_value" validate:"gt=0"`
	MaxDiscount   int64      `json:"max_discount" validate:"gte=0"`
	MinSubtotal   int64      `json:"min_subtotal" validate:"gte=0"`
	Eligibility   string     `json:"eligibility" validate:"omitempty,max=500"`
	IsActive      *bool      `json:"is_active"`
	ValidFrom     *time.Time `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until"`
	UsageLimit    int        `json:"usage_limit" validate:"gte=0"`
}

// previewKeyer is implemented by file stores that can map a public URL back to its key
type previewKeyer interface {
	KeyFromURL(url string) string
}

// CatalogService serves the public catalog and the admin settings panels
type CatalogService struct {
	packages  domain.PackageRepository
	durations domain.DurationRepository
	addOns    domain.AddOnRepository
	templates domain.TemplateRepository
	promos    domain.PromoRepository
	rules     *PromoService
	files     domain.FileRepository
	changes   domain.ChangePublisher
	logger    zerolog.Logger
}

// NewCatalogService creates the service. files and changes may be nil.
func NewCatalogService(
	packages domain.PackageRepository,
	durations domain.DurationRepository,
	addOns domain.AddOnRepository,
	templates domain.TemplateRepository,
	promos domain.PromoRepository,
	rules *PromoService,
	files domain.FileRepository,
	changes domain.ChangePublisher,
) *CatalogService {
	return &CatalogService{
		packages:  packages,
		durations: durations,
		addOns:    addOns,
		templates: templates,
		promos:    promos,
		rules:     rules,
		files:     files,
		changes:   changes,
		logger:    log.With().Str("component", "catalog").Logger(),
	}
}

func summarize(pkg *domain.Package, durations []*domain.DurationOption) PackageSummary {
	cadence := pricing.EffectiveCadence(pkg)
	return PackageSummary{
		Package:      pkg,
		Cadence:      cadence,
		PeriodSuffix: pricing.PeriodSuffix(cadence),
		MaxDiscount:  pricing.ResolveMaxDiscount(durations),
	}
}

func bySortOrder[T any](order func(T) int, name func(T) string) func(a, b T) int {
	return func(a, b T) int {
		if c := cmp.Compare(order(a), order(b)); c != 0 {
			return c
		}
		return strings.Compare(name(a), name(b))
	}
}

// ListPackages returns the public, active packages with their best duration discount
func (s *CatalogService) ListPackages(ctx context.Context) ([]PackageSummary, error) {
	pkgs, err := s.packages.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}

	out := make([]PackageSummary, len(pkgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, pkg := range pkgs {
		g.Go(func() error {
			durations, err := s.durations.ListByPackage(gctx, pkg.ID)
			if err != nil {
				// a package with broken duration rows is still listed, just without a discount badge
				s.logger.Warn().Err(err).Str("package_id", pkg.ID).Msg("failed to load durations for listing")
				durations = nil
			}
			out[i] = summarize(pkg, durations)
			return nil
		})
	}
	_ = g.Wait()

	out = slices.DeleteFunc(out, func(p PackageSummary) bool { return !p.IsActive || !p.IsPublic })
	slices.SortFunc(out, bySortOrder(
		func(p PackageSummary) int { return p.SortOrder },
		func(p PackageSummary) string { return p.Name },
	))
	return out, nil
}

// GetPackage returns an active package with its active durations and add-ons
func (s *CatalogService) GetPackage(ctx context.Context, id string) (*PackageDetail, error) {
	var (
		pkg       *domain.Package
		durations []*domain.DurationOption
		addOns    []*domain.AddOn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pkg, err = s.packages.GetByID(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		durations, err = s.durations.ListByPackage(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		addOns, err = s.addOns.ListForPackage(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !pkg.IsActive {
		return nil, domain.ErrNotFound
	}

	durations = slices.DeleteFunc(durations, func(d *domain.DurationOption) bool { return !d.IsActive })
	slices.SortFunc(durations, func(a, b *domain.DurationOption) int { return cmp.Compare(a.Months, b.Months) })
	addOns = slices.DeleteFunc(addOns, func(a *domain.AddOn) bool { return !a.IsActive })
	slices.SortFunc(addOns, bySortOrder(
		func(a *domain.AddOn) int { return a.SortOrder },
		func(a *domain.AddOn) string { return a.Label },
	))

	return &PackageDetail{
		PackageSummary: summarize(pkg, durations),
		Durations:      durations,
		AddOns:         addOns,
	}, nil
}

// ListTemplates returns the active website templates
func (s *CatalogService) ListTemplates(ctx context.Context) ([]*domain.WebsiteTemplate, error) {
	return s.listTemplates(ctx, true)
}

func (s *CatalogService) listTemplates(ctx context.Context, onlyActive bool) ([]*domain.WebsiteTemplate, error) {
	tmpls, err := s.templates.List(ctx, onlyActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	slices.SortFunc(tmpls, bySortOrder(
		func(t *domain.WebsiteTemplate) int { return t.SortOrder },
		func(t *domain.WebsiteTemplate) string { return t.Name },
	))
	return tmpls, nil
}

// --- admin: packages ---

// AdminListPackages returns every package, including hidden and inactive ones
func (s *CatalogService) AdminListPackages(ctx context.Context) ([]*domain.Package, error) {
	pkgs, err := s.packages.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	slices.SortFunc(pkgs, bySortOrder(
		func(p *domain.Package) int { return p.SortOrder },
		func(p *domain.Package) string { return p.Name },
	))
	return pkgs, nil
}

func (s *CatalogService) CreatePackage(ctx context.Context, in PackageInput) (*domain.Package, error) {
	if err := ValidateInput(in); err != nil {
		return nil, err
	}
	pkg := &domain.Package{IsActive: true, IsPublic: true}
	applyPackageInput(pkg, in)
	if err := s.packages.Create(ctx, pkg); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.TablePackages, pkg.ID, "insert")
	return pkg, nil
}

func (s *CatalogService) UpdatePackage(ctx context.Context, id string, in PackageInput) (*domain.Package, error) {
	if err := ValidateInput(in); err != nil {
		return nil, err
	}
	pkg, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyPackageInput(pkg, in)
	if err := s.packages.Update(ctx, pkg); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.TablePackages, pkg.ID, "update")
	return pkg, nil
}

func applyPackageInput(pkg *domain.Package, in PackageInput) {
	pkg.Name = strings.TrimSpace(in.Name)
	pkg.Type = strings.TrimSpace(in.Type)
	pkg.Cadence = domain.Cadence(in.Cadence)
	if !pkg.Cadence.Valid() {
		pkg.Cadence = pricing.ClassifyCadence(pkg.Name, pkg.Type)
	}
	pkg.BasePrice = in.BasePrice
	pkg.Features = in.Features
	if in.IsActive != nil {
		pkg.IsActive = *in.IsActive
	}
	if in.IsPublic != nil {
		pkg.IsPublic = *in.IsPublic
	}
	pkg.SortOrder = in.SortOrder
}

func (s *CatalogService) DeletePackage(ctx context.Context, id string) error {
	if err := s.packages.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, domain.TablePackages, id, "delete")
	return nil
}

// --- admin: durations ---

// ListDurations returns every duration row of a package, active or not
func (s *CatalogService) ListDurations(ctx context.Context, packageID string) ([]*domain.DurationOption, error) {
	rows, err := s.durations.ListByPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(rows, func(a, b *domain.DurationOption) int { return cmp.Compare(a.Months, b.Months) })
	return rows, nil
}

// UpsertDuration creates or replaces the row for (package_id, months)
func (s *CatalogService) UpsertDuration(ctx context.Context, in DurationOptionInput) (*domain.DurationOption, error) {
	if err := ValidateInput(in); err != nil {
		return nil, err
	}
	if _, err := s.packages.GetByID(ctx, in.PackageID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewValidationError("package_id", "package does not exist")
		}
		return nil, err
	}

	opt := &domain.DurationOption{
		PackageID:       in.PackageID,
		Months:          in.Months,
		DiscountPercent: in.DiscountPercent,
		IsActive:        in.IsActive == nil || *in.IsActive,
		SortOrder:       in.SortOrder,
		Price:           domain.AutoPrice(),
	}
	if in.ManualPrice != nil {
		opt.Price = domain.ManualPrice(*in.ManualPrice)
	}
	if err := s.durations.Upsert(ctx, opt); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.TableDurations, opt.ID, "update")
	return opt, nil
}

func (s *CatalogService) DeleteDuration(ctx context.Context, id string) error {
	if err := s.durations.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, domain.TableDurations, id, "delete")
	return nil
}

// --- admin: add-ons ---

func (s *CatalogService) ListAddOns(ctx context.Context) ([]*domain.AddOn, error) {
	rows, err := s.addOns.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list add-ons: %w", err)
	}
	slices.SortFunc(rows, bySortOrder(
		func(a *domain.AddOn) int { return a.SortOrder },
		func(a *domain.AddOn) string { return a.Label },
	))
	return rows, nil
}

func (s *CatalogService) CreateAddOn(ctx context.Context, in AddOnInput) (*domain.AddOn, error) {
	a := &domain.AddOn{IsActive: true}
	if err := s.applyAddOnInput(ctx, a, in); err != nil {
		return nil, err
	}
	if err := s.addOns.Create(ctx, a); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.TableAddOns, a.ID, "insert")
	return a, nil
}

func (s *CatalogService) UpdateAddOn(ctx context.Context, id string, in AddOnInput) (*domain.AddOn, error) {
	a, err := s.addOns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyAddOnInput(ctx, a, in); err != nil {
		return nil, err
	}
	if err := s.addOns.Update(ctx, a); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.TableAddOns, a.ID, "update")
	return a, nil
}

func (s *CatalogService) applyAddOnInput(ctx context.Context, a *domain.AddOn, in AddOnInput) error {
	if err := ValidateInput(in); err != nil {
		return err
	}
	scope := domain.AddOnScope(in.Scope)
	packageID := strings.TrimSpace(in.PackageID)
	if scope == domain.AddOnScopePackage && packageID == "" {
		return domain.NewValidationError("package_id", "is required for package add-ons")
	}
	if packageID != "" {
		if _, err := s.packages.GetByID(ctx, packageID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewValidationError("package_id", "package does not exist")
			}
			return err
		}
	}

	a.Scope = scope
	a.PackageID = packageID
	a.Label = strings.TrimSpace(in.Label)
	a.PricePerUnit = in.PricePerUnit
	a.UnitLabel = strings.TrimSpace(in.UnitLabel)
	a.Step = in.Step
	a.MaxQuantity = in.MaxQuantity
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
	a.SortOrder = in.SortOrder
	return nil
}

func (s *CatalogService) DeleteAddOn(ctx context.Context, id string) error {
	if err := s.addOns.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, domain.TableAddOns, id, "delete")
	return nil
}

// --- admin: templates ---

func (s *CatalogService) AdminListTemplates(ctx context.Context) ([]*domain.WebsiteTemplate, error) {
	return s.listTemplates(ctx, false)
}

func (s *CatalogService) CreateTemplate(ctx context.Context, in TemplateInput) (*domain.WebsiteTemplate, error) {
	if err := ValidateInput(in); err != nil {
		return nil, err
	}
	t := &domain.WebsiteTemplate{IsActive: true}
	applyTemplateInput(t, in)
	if err := s.templates.Create(ctx, t); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.TableTemplates, t.ID, "insert")
	return t, nil
}

func (s *CatalogService) UpdateTemplate(ctx context.Context, id string, in TemplateInput) (*domain.WebsiteTemplate, error) {
	if err := ValidateInput(in); err != nil {
		return nil, err
	}
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyTemplateInput(t, in)
	if err := s.templates.Update(ctx, t); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.TableTemplates, t.ID, "update")
	return t, nil
}

func applyTemplateInput(t *domain.WebsiteTemplate, in TemplateInput) {
	t.Name = strings.TrimSpace(in.Name)
	t.Category = strings.TrimSpace(in.Category)
	if in.PreviewURL != "" {
		t.PreviewURL = in.PreviewURL
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	t.SortOrder = in.SortOrder
}

// UploadTemplatePreview stores a preview image and points the template at it.
// The previous image is removed when it lives in the same store.
func (s *CatalogService) UploadTemplatePreview(ctx context.Context, id string, file []byte, contentType string) (*domain.WebsiteTemplate, error) {
	if s.files == nil {
		return nil, domain.ErrUnavailable
	}
	ext, ok := previewTypes[strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))]
	if !ok {
		return nil, domain.NewValidationError("preview", "must be a PNG, JPEG or WebP image")
	}
	if len(file) == 0 {
		return nil, domain.NewValidationError("preview", "is empty")
	}

	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("templates/%s/%s.%s", t.ID, ulid.Make().String(), ext)
	url, err := s.files.Upload(ctx, file, key, contentType)
	if err != nil {
		return nil, err
	}

	previous := t.PreviewURL
	t.PreviewURL = url
	if err := s.templates.Update(ctx, t); err != nil {
		if delErr := s.files.Delete(ctx, key); delErr != nil {
			s.logger.Warn().Err(delErr).Str("key", key).Msg("failed to remove orphaned preview")
		}
		return nil, err
	}

	if keyer, ok := s.files.(previewKeyer); ok && previous != "" {
		if oldKey := keyer.KeyFromURL(previous); oldKey != "" {
			if err := s.files.Delete(ctx, oldKey); err != nil {
				s.logger.Warn().Err(err).Str("key", oldKey).Msg("failed to remove previous preview")
			}
		}
	}

	s.logger.Info().Str("template_id", t.ID).Str("key", key).Int("bytes", len(file)).Msg("template preview uploaded")
	s.publish(ctx, domain.TableTemplates, t.ID, "update")
	return t, nil
}

func (s *CatalogService) DeleteTemplate(ctx context.Context, id string) error {
	if err := s.templates.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, domain.TableTemplates, id, "delete")
	return nil
}

// --- admin: promo codes ---

func (s *CatalogService) ListPromos(ctx context.Context) ([]*domain.PromoCode, error) {
	return s.promos.List(ctx)
}

func (s *CatalogService) CreatePromo(ctx context.Context, in PromoInput) (*domain.PromoCode, error) {
	p := &domain.PromoCode{IsActive: true}
	if err := s.applyPromoInput(p, in); err != nil {
		return nil, err
	}
	if err := s.promos.Create(ctx, p); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.TablePromoCodes, p.ID, "insert")
	return p, nil
}

func (s *CatalogService) UpdatePromo(ctx context.Context, id string, in PromoInput) (*domain.PromoCode, error) {
	p, err := s.promos.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyPromoInput(p, in); err != nil {
		return nil, err
	}
	if err := s.promos.Update(ctx, p); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.TablePromoCodes, p.ID, "update")
	return p, nil
}

func (s *CatalogService) applyPromoInput(p *domain.PromoCode, in PromoInput) error {
	if err := ValidateInput(in); err != nil {
		return err
	}
	code := domain.NormalizePromoCode(in.Code)
	if strings.ContainsAny(code, " \t") {
		return domain.NewValidationError("code", "must not contain spaces")
	}
	kind := domain.DiscountType(in.DiscountType)
	if kind == domain.DiscountPercentage && in.DiscountValue > 100 {
		return domain.NewValidationError("discount_value", "must be at most 100 for percentage promos")
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && !in.ValidUntil.After(*in.ValidFrom) {
		return domain.NewValidationError("valid_until", "must be after valid_from")
	}
	rule := strings.TrimSpace(in.Eligibility)
	if rule != "" && s.rules != nil {
		if err := s.rules.CompileRule(rule); err != nil {
			return err
		}
	}

	p.Code = code
	p.Name = strings.TrimSpace(in.Name)
	p.DiscountType = kind
	p.DiscountValue = in.DiscountValue
	p.MaxDiscount = in.MaxDiscount
	p.MinSubtotal = in.MinSubtotal
	p.Eligibility = rule
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	p.ValidFrom = in.ValidFrom
	p.ValidUntil = in.ValidUntil
	p.UsageLimit = in.UsageLimit
	return nil
}

func (s *CatalogService) DeletePromo(ctx context.Context, id string) error {
	if err := s.promos.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, domain.TablePromoCodes, id, "delete")
	return nil
}

func (s *CatalogService) publish(ctx context.Context, table, rowID, op string) {
	if s.changes == nil {
		return
	}
	if err := s.changes.Publish(ctx, domain.ChangeEvent{Table: table, RowID: rowID, Op: op}); err != nil {
		s.logger.Warn().Err(err).Str("table", table).Str("row_id", rowID).Msg("failed to publish change")
	}
}
