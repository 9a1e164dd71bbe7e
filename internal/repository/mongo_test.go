package repository

import (
	"context"
	"testing"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func setupMongo(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:latest")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	return client.Database("repository_test")
}

func TestMongoRepositories(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	t.Run("legacy package without cadence is classified", func(t *testing.T) {
		_, err := db.Collection(domain.TablePackages).InsertOne(ctx, bson.M{
			"_id": "legacy", "name": "Growth", "base_price": int32(500000), "is_active": true,
		})
		require.NoError(t, err)

		pkg, err := NewMongoPackageRepository(db).GetByID(ctx, "legacy")
		require.NoError(t, err)
		assert.Equal(t, domain.CadenceMonthly, pkg.Cadence)
		assert.Equal(t, int64(500_000), pkg.BasePrice)
	})

	t.Run("package without price is malformed", func(t *testing.T) {
		_, err := db.Collection(domain.TablePackages).InsertOne(ctx, bson.M{"_id": "broken", "name": "Broken"})
		require.NoError(t, err)

		_, err = NewMongoPackageRepository(db).GetByID(ctx, "broken")
		assert.ErrorIs(t, err, domain.ErrMalformedRow)
	})

	t.Run("duration upsert keys on package and months", func(t *testing.T) {
		repo := NewMongoDurationRepository(db)
		first := &domain.DurationOption{PackageID: "growth", Months: 6, DiscountPercent: 5, IsActive: true}
		require.NoError(t, repo.Upsert(ctx, first))
		require.NotEmpty(t, first.ID)

		second := &domain.DurationOption{PackageID: "growth", Months: 6, DiscountPercent: 10, IsActive: true, Price: domain.ManualPrice(2_499_000)}
		require.NoError(t, repo.Upsert(ctx, second))
		assert.Equal(t, first.ID, second.ID)

		rows, err := repo.ListByPackage(ctx, "growth")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 10.0, rows[0].DiscountPercent)
		assert.True(t, rows[0].Price.IsManual())
		assert.Equal(t, int64(2_499_000), rows[0].Price.Amount)
	})

	t.Run("promo lookup is case insensitive", func(t *testing.T) {
		repo := NewMongoPromoRepository(db)
		require.NoError(t, repo.Create(ctx, &domain.PromoCode{Code: "Hemat10", DiscountType: domain.DiscountPercentage, DiscountValue: 10, IsActive: true}))

		p, err := repo.GetByCode(ctx, domain.NormalizePromoCode(" hemat10 "))
		require.NoError(t, err)
		assert.Equal(t, "Hemat10", p.Code)

		err = repo.Create(ctx, &domain.PromoCode{Code: "HEMAT10", DiscountType: domain.DiscountFixed, DiscountValue: 1})
		var verr *domain.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("payment attempt is unique per key and provider", func(t *testing.T) {
		repo := NewMongoPaymentAttemptRepository(db)
		a := &domain.PaymentAttempt{IdempotencyKey: "k1", Provider: domain.ProviderXendit, Amount: 100, Status: domain.AttemptStatusPending}
		require.NoError(t, repo.Create(ctx, a))

		dup := &domain.PaymentAttempt{IdempotencyKey: "k1", Provider: domain.ProviderXendit, Amount: 100}
		assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrDuplicateAttempt)

		other := &domain.PaymentAttempt{IdempotencyKey: "k1", Provider: domain.ProviderPayPal, Amount: 100}
		assert.NoError(t, repo.Create(ctx, other))

		got, err := repo.GetByIdempotencyKey(ctx, "k1", domain.ProviderXendit)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
	})

	t.Run("gateway settings default to empty", func(t *testing.T) {
		repo := NewMongoGatewayRepository(db)
		s, err := repo.GetSettings(ctx)
		require.NoError(t, err)
		assert.Empty(t, s.ActiveProvider)

		require.NoError(t, repo.SaveConfig(ctx, &domain.GatewayConfig{Provider: domain.ProviderMidtrans, Enabled: true, SecretKey: "SB-srv", ClientKey: "SB-cli"}))
		cfg, err := repo.GetConfig(ctx, domain.ProviderMidtrans)
		require.NoError(t, err)
		assert.True(t, cfg.Configured())
		assert.Equal(t, domain.EnvSandbox, cfg.Environment)

		configs, err := repo.ListConfigs(ctx)
		require.NoError(t, err)
		assert.Len(t, configs, 1)
	})
}
