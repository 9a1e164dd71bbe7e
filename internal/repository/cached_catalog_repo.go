package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mansoorceksport/sitekit/internal/domain"
)

const (
	packageByIDKeyPrefix     = "catalog:package:"
	packageListKey           = "catalog:packages:"
	durationsByPkgKeyPrefix  = "catalog:durations:"
	addOnsForPkgKeyPrefix    = "catalog:addons:"
	catalogCacheTTL          = 5 * time.Minute
	addOnsCacheInvalidateAll = "catalog:addons:*"
)

// CachedPackageRepository wraps a PackageRepository with Redis caching
type CachedPackageRepository struct {
	domain.PackageRepository
	cache *RedisCacheRepository
}

func NewCachedPackageRepository(inner domain.PackageRepository, cache *RedisCacheRepository) *CachedPackageRepository {
	return &CachedPackageRepository{PackageRepository: inner, cache: cache}
}

// GetByID retrieves a package with caching
func (r *CachedPackageRepository) GetByID(ctx context.Context, id string) (*domain.Package, error) {
	key := packageByIDKeyPrefix + id

	var pkg domain.Package
	if err := r.cache.Get(ctx, key, &pkg); err == nil {
		return &pkg, nil
	}

	result, err := r.PackageRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Store in cache (ignore cache errors)
	_ = r.cache.Set(ctx, key, result, catalogCacheTTL)
	return result, nil
}

func (r *CachedPackageRepository) List(ctx context.Context, onlyPublic bool) ([]*domain.Package, error) {
	key := fmt.Sprintf("%s%t", packageListKey, onlyPublic)

	var pkgs []*domain.Package
	if err := r.cache.Get(ctx, key, &pkgs); err == nil {
		return pkgs, nil
	}

	result, err := r.PackageRepository.List(ctx, onlyPublic)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Set(ctx, key, result, catalogCacheTTL)
	return result, nil
}

func (r *CachedPackageRepository) Create(ctx context.Context, pkg *domain.Package) error {
	if err := r.PackageRepository.Create(ctx, pkg); err != nil {
		return err
	}
	_ = r.cache.DeleteByPattern(ctx, packageListKey+"*")
	return nil
}

func (r *CachedPackageRepository) Update(ctx context.Context, pkg *domain.Package) error {
	if err := r.PackageRepository.Update(ctx, pkg); err != nil {
		return err
	}
	r.invalidate(ctx, pkg.ID)
	return nil
}

func (r *CachedPackageRepository) Delete(ctx context.Context, id string) error {
	if err := r.PackageRepository.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *CachedPackageRepository) invalidate(ctx context.Context, id string) {
	_ = r.cache.Delete(ctx, packageByIDKeyPrefix+id)
	_ = r.cache.DeleteByPattern(ctx, packageListKey+"*")
}

// CachedDurationRepository caches duration rows per package
type CachedDurationRepository struct {
	domain.DurationRepository
	cache *RedisCacheRepository
}

func NewCachedDurationRepository(inner domain.DurationRepository, cache *RedisCacheRepository) *CachedDurationRepository {
	return &CachedDurationRepository{DurationRepository: inner, cache: cache}
}

func (r *CachedDurationRepository) ListByPackage(ctx context.Context, packageID string) ([]*domain.DurationOption, error) {
	key := durationsByPkgKeyPrefix + packageID

	var rows []*domain.DurationOption
	if err := r.cache.Get(ctx, key, &rows); err == nil {
		return rows, nil
	}

	result, err := r.DurationRepository.ListByPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Set(ctx, key, result, catalogCacheTTL)
	return result, nil
}

func (r *CachedDurationRepository) Upsert(ctx context.Context, opt *domain.DurationOption) error {
	if err := r.DurationRepository.Upsert(ctx, opt); err != nil {
		return err
	}
	_ = r.cache.Delete(ctx, durationsByPkgKeyPrefix+opt.PackageID)
	return nil
}

// Delete drops every package's duration cache since the row's package is unknown here
func (r *CachedDurationRepository) Delete(ctx context.Context, id string) error {
	if err := r.DurationRepository.Delete(ctx, id); err != nil {
		return err
	}
	_ = r.cache.DeleteByPattern(ctx, durationsByPkgKeyPrefix+"*")
	return nil
}

// CachedAddOnRepository caches the add-on list offered for each package
type CachedAddOnRepository struct {
	domain.AddOnRepository
	cache *RedisCacheRepository
}

func NewCachedAddOnRepository(inner domain.AddOnRepository, cache *RedisCacheRepository) *CachedAddOnRepository {
	return &CachedAddOnRepository{AddOnRepository: inner, cache: cache}
}

func (r *CachedAddOnRepository) ListForPackage(ctx context.Context, packageID string) ([]*domain.AddOn, error) {
	key := addOnsForPkgKeyPrefix + packageID

	var rows []*domain.AddOn
	if err := r.cache.Get(ctx, key, &rows); err == nil {
		return rows, nil
	}

	result, err := r.AddOnRepository.ListForPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Set(ctx, key, result, catalogCacheTTL)
	return result, nil
}

// Global subscription add-ons appear in every package's list, so writes clear them all.

func (r *CachedAddOnRepository) Create(ctx context.Context, a *domain.AddOn) error {
	if err := r.AddOnRepository.Create(ctx, a); err != nil {
		return err
	}
	_ = r.cache.DeleteByPattern(ctx, addOnsCacheInvalidateAll)
	return nil
}

func (r *CachedAddOnRepository) Update(ctx context.Context, a *domain.AddOn) error {
	if err := r.AddOnRepository.Update(ctx, a); err != nil {
		return err
	}
	_ = r.cache.DeleteByPattern(ctx, addOnsCacheInvalidateAll)
	return nil
}

func (r *CachedAddOnRepository) Delete(ctx context.Context, id string) error {
	if err := r.AddOnRepository.Delete(ctx, id); err != nil {
		return err
	}
	_ = r.cache.DeleteByPattern(ctx, addOnsCacheInvalidateAll)
	return nil
}

const (
	promoByCodeKeyPrefix = "promo:code:"
	promoCacheTTL        = time.Minute
)

// CachedPromoRepository caches code lookups briefly. Usage counts may lag by up to the TTL
// unless the write goes through this wrapper.
type CachedPromoRepository struct {
	domain.PromoRepository
	cache *RedisCacheRepository
}

func NewCachedPromoRepository(inner domain.PromoRepository, cache *RedisCacheRepository) *CachedPromoRepository {
	return &CachedPromoRepository{PromoRepository: inner, cache: cache}
}

func (r *CachedPromoRepository) GetByCode(ctx context.Context, normalizedCode string) (*domain.PromoCode, error) {
	key := promoByCodeKeyPrefix + normalizedCode

	var promo domain.PromoCode
	if err := r.cache.Get(ctx, key, &promo); err == nil {
		return &promo, nil
	}

	result, err := r.PromoRepository.GetByCode(ctx, normalizedCode)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Set(ctx, key, result, promoCacheTTL)
	return result, nil
}

func (r *CachedPromoRepository) Create(ctx context.Context, p *domain.PromoCode) error {
	if err := r.PromoRepository.Create(ctx, p); err != nil {
		return err
	}
	_ = r.cache.Delete(ctx, promoByCodeKeyPrefix+domain.NormalizePromoCode(p.Code))
	return nil
}

// Update clears every code since the previous code of the row is not known here
func (r *CachedPromoRepository) Update(ctx context.Context, p *domain.PromoCode) error {
	if err := r.PromoRepository.Update(ctx, p); err != nil {
		return err
	}
	_ = r.cache.DeleteByPattern(ctx, promoByCodeKeyPrefix+"*")
	return nil
}

func (r *CachedPromoRepository) Delete(ctx context.Context, id string) error {
	if err := r.PromoRepository.Delete(ctx, id); err != nil {
		return err
	}
	_ = r.cache.DeleteByPattern(ctx, promoByCodeKeyPrefix+"*")
	return nil
}

func (r *CachedPromoRepository) IncrementUsage(ctx context.Context, id string) error {
	if err := r.PromoRepository.IncrementUsage(ctx, id); err != nil {
		return err
	}
	_ = r.cache.DeleteByPattern(ctx, promoByCodeKeyPrefix+"*")
	return nil
}
