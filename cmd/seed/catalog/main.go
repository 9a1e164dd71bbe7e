// Command catalog seeds a demo catalog. Running it twice leaves the catalog unchanged.
package main

import (
	"context"
	"strings"
	"time"

	"github.com/mansoorceksport/sitekit/internal/config"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/repository"
	"github.com/mansoorceksport/sitekit/internal/service"
	"github.com/mansoorceksport/sitekit/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type seedDuration struct {
	months   int
	discount float64
}

type seedPackage struct {
	input     service.PackageInput
	durations []seedDuration
	addOns    []service.AddOnInput
}

var packages = []seedPackage{
	{
		input: service.PackageInput{
			Name: "Website Only /Tahun", Type: "starter", BasePrice: 1_000_000, SortOrder: 1,
			Features: []string{"5 pages", "Free .com domain", "SSL certificate", "1 revision round"},
		},
		durations: []seedDuration{{12, 10}, {24, 20}},
		addOns: []service.AddOnInput{
			{Scope: string(domain.AddOnScopePackage), Label: "Extra page", PricePerUnit: 150_000, UnitLabel: "page", Step: 1, MaxQuantity: 5},
		},
	},
	{
		input: service.PackageInput{
			Name: "Growth", Type: "growth", BasePrice: 500_000, SortOrder: 2,
			Features: []string{"Website care", "8 social posts per month", "Monthly report"},
		},
		durations: []seedDuration{{1, 0}, {3, 5}, {6, 10}, {12, 15}},
		addOns: []service.AddOnInput{
			{Scope: string(domain.AddOnScopePackage), Label: "Extra social post", PricePerUnit: 50_000, UnitLabel: "post", Step: 1, MaxQuantity: 5},
		},
	},
	{
		input: service.PackageInput{
			Name: "Full Digital Marketing", Type: "pro", BasePrice: 2_500_000, SortOrder: 3,
			Features: []string{"Everything in Growth", "Ads management", "Content calendar", "Weekly report"},
		},
		durations: []seedDuration{{3, 0}, {6, 10}, {12, 20}},
	},
}

var subscriptionAddOns = []service.AddOnInput{
	{Scope: string(domain.AddOnScopeSubscription), Label: "Business email account", PricePerUnit: 25_000, UnitLabel: "account", Step: 1, MaxQuantity: 5},
}

var templates = []service.TemplateInput{
	{Name: "Kedai", Category: "food", SortOrder: 1},
	{Name: "Studio", Category: "portfolio", SortOrder: 2},
	{Name: "Toko", Category: "retail", SortOrder: 3},
}

func promos() []service.PromoInput {
	from := time.Now().UTC().Truncate(24 * time.Hour)
	until := from.AddDate(0, 3, 0)
	return []service.PromoInput{
		{Code: "HEMAT200", Name: "Flat 200K", DiscountType: string(domain.DiscountFixed), DiscountValue: 200_000},
		{
			Code: "RAMADAN25", Name: "Ramadan 25%", DiscountType: string(domain.DiscountPercentage), DiscountValue: 25,
			MaxDiscount: 750_000, Eligibility: `cadence == "yearly" && months >= 12`,
			ValidFrom: &from, ValidUntil: &until, UsageLimit: 100,
		},
	}
}

func main() {
	telemetry.SetupLogger("info", true)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer client.Disconnect(context.Background())
	db := client.Database(cfg.MongoDB.Database)

	// writes go through the cached repositories so a running API does not serve stale prices
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	defer redisClient.Close()
	cache := repository.NewRedisCacheRepository(redisClient)
	changes := repository.NewRedisChangeFeed(redisClient)

	promoRepo := repository.NewCachedPromoRepository(repository.NewMongoPromoRepository(db), cache)
	rules, err := service.NewPromoService(promoRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create promo service")
	}
	catalog := service.NewCatalogService(
		repository.NewCachedPackageRepository(repository.NewMongoPackageRepository(db), cache),
		repository.NewCachedDurationRepository(repository.NewMongoDurationRepository(db), cache),
		repository.NewCachedAddOnRepository(repository.NewMongoAddOnRepository(db), cache),
		repository.NewMongoTemplateRepository(db),
		promoRepo,
		rules,
		nil,
		changes,
	)

	if err := seed(ctx, catalog); err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
	log.Info().Msg("catalog seeded")
}

func seed(ctx context.Context, catalog *service.CatalogService) error {
	existing, err := catalog.AdminListPackages(ctx)
	if err != nil {
		return err
	}
	byName := map[string]*domain.Package{}
	for _, p := range existing {
		byName[strings.ToLower(strings.TrimSpace(p.Name))] = p
	}

	addOns, err := catalog.ListAddOns(ctx)
	if err != nil {
		return err
	}
	haveAddOn := func(packageID, label string) bool {
		for _, a := range addOns {
			if a.PackageID == packageID && strings.EqualFold(a.Label, label) {
				return true
			}
		}
		return false
	}

	for _, sp := range packages {
		pkg, found := byName[strings.ToLower(sp.input.Name)]
		if !found {
			pkg, err = catalog.CreatePackage(ctx, sp.input)
			if err != nil {
				return err
			}
			log.Info().Str("package", pkg.Name).Str("id", pkg.ID).Msg("package created")
		}

		// upsert is keyed by (package, months), so re-running only refreshes the rows
		for i, d := range sp.durations {
			if _, err := catalog.UpsertDuration(ctx, service.DurationOptionInput{
				PackageID: pkg.ID, Months: d.months, DiscountPercent: d.discount, SortOrder: i,
			}); err != nil {
				return err
			}
		}

		for _, in := range sp.addOns {
			if haveAddOn(pkg.ID, in.Label) {
				continue
			}
			in.PackageID = pkg.ID
			if _, err := catalog.CreateAddOn(ctx, in); err != nil {
				return err
			}
		}
	}

	for _, in := range subscriptionAddOns {
		if haveAddOn("", in.Label) {
			continue
		}
		if _, err := catalog.CreateAddOn(ctx, in); err != nil {
			return err
		}
	}

	tmpls, err := catalog.AdminListTemplates(ctx)
	if err != nil {
		return err
	}
	for _, in := range templates {
		exists := false
		for _, t := range tmpls {
			if strings.EqualFold(t.Name, in.Name) {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		if _, err := catalog.CreateTemplate(ctx, in); err != nil {
			return err
		}
	}

	codes, err := catalog.ListPromos(ctx)
	if err != nil {
		return err
	}
	for _, in := range promos() {
		exists := false
		for _, p := range codes {
			if p.Code == domain.NormalizePromoCode(in.Code) {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		if _, err := catalog.CreatePromo(ctx, in); err != nil {
			return err
		}
	}
	return nil
}
