package service

import (
	"context"
	"testing"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuote(t *testing.T) {
	ctx := context.Background()

	t.Run("yearly package prorated by duration", func(t *testing.T) {
		_, quotes := newCatalogFixture().services(t)
		q, err := quotes.Quote(ctx, QuoteRequest{PackageID: "web-basic", Months: 24})
		require.NoError(t, err)
		assert.Equal(t, domain.CadenceYearly, q.Cadence)
		assert.Equal(t, "/tahun", q.PeriodSuffix)
		assert.Equal(t, int64(2_160_000), q.PackageTotal)
		assert.Equal(t, int64(2_160_000), q.Total)
		assert.Equal(t, "Website Basic", q.PackageName)
	})

	t.Run("monthly add-ons scale with months and promo is capped", func(t *testing.T) {
		_, quotes := newCatalogFixture().services(t)
		q, err := quotes.Quote(ctx, QuoteRequest{
			PackageID: "growth",
			Months:    3,
			AddOns:    map[string]int{"articles": 10},
			PromoCode: "diskon10",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(8_100_000), q.PackageTotal)
		assert.Equal(t, int64(1_500_000), q.AddOnTotal)
		assert.Equal(t, int64(9_600_000), q.Subtotal)
		require.NotNil(t, q.Promo)
		assert.True(t, q.Promo.OK)
		assert.Equal(t, int64(500_000), q.PromoDiscount)
		assert.Equal(t, int64(9_100_000), q.Total)

		last := q.Lines[len(q.Lines)-1]
		assert.Equal(t, pricing.LinePromo, last.Kind)
		assert.Equal(t, int64(-500_000), last.Amount)
	})

	t.Run("manual duration price wins", func(t *testing.T) {
		_, quotes := newCatalogFixture().services(t)
		q, err := quotes.Quote(ctx, QuoteRequest{PackageID: "growth", Months: 6})
		require.NoError(t, err)
		assert.Equal(t, domain.PriceModeManual, q.PriceSource)
		assert.Equal(t, int64(15_000_000), q.Total)
	})

	t.Run("promo that does not apply is reported, not fatal", func(t *testing.T) {
		_, quotes := newCatalogFixture().services(t)
		q, err := quotes.Quote(ctx, QuoteRequest{PackageID: "growth", Months: 1, PromoCode: "NOPE"})
		require.NoError(t, err)
		require.NotNil(t, q.Promo)
		assert.False(t, q.Promo.OK)
		assert.Equal(t, PromoReasonNotFound, q.Promo.Reason)
		assert.Equal(t, int64(3_000_000), q.Total)
	})

	t.Run("promo lookup failure quotes without promo", func(t *testing.T) {
		f := newCatalogFixture()
		f.promos.err = errBoom
		_, quotes := f.services(t)
		q, err := quotes.Quote(ctx, QuoteRequest{PackageID: "growth", Months: 1, PromoCode: "HEMAT100"})
		require.NoError(t, err)
		assert.ErrorIs(t, q.PromoErr, errBoom)
		assert.Equal(t, promoUnavailableReason, q.Promo.Reason)
		assert.Equal(t, int64(3_000_000), q.Total)
	})

	t.Run("inactive package has no total", func(t *testing.T) {
		_, quotes := newCatalogFixture().services(t)
		_, err := quotes.Quote(ctx, QuoteRequest{PackageID: "retired", Months: 1})
		assert.ErrorIs(t, err, domain.ErrTotalUnavailable)
	})

	t.Run("malformed duration rows have no total", func(t *testing.T) {
		f := newCatalogFixture()
		f.durations.err = domain.ErrMalformedRow
		_, quotes := f.services(t)
		_, err := quotes.Quote(ctx, QuoteRequest{PackageID: "growth", Months: 1})
		assert.ErrorIs(t, err, domain.ErrTotalUnavailable)
	})

	t.Run("unknown package", func(t *testing.T) {
		_, quotes := newCatalogFixture().services(t)
		_, err := quotes.Quote(ctx, QuoteRequest{PackageID: "nope", Months: 1})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("missing package id", func(t *testing.T) {
		_, quotes := newCatalogFixture().services(t)
		_, err := quotes.Quote(ctx, QuoteRequest{Months: 1})
		var verr *domain.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestClampAddOns(t *testing.T) {
	_, quotes := newCatalogFixture().services(t)

	pkg, sub, notices, err := quotes.ClampAddOns(context.Background(), "growth", map[string]int{
		"articles":   7, // step 5
		"ads-budget": 2, // global subscription add-on
		"extra-page": 1, // belongs to another package
		"ghost":      0, // unknown with zero quantity is silently ignored
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"articles": 5}, pkg)
	assert.Equal(t, map[string]int{"ads-budget": 2}, sub)
	assert.Len(t, notices, 2)
}
