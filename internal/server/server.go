package server

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mansoorceksport/sitekit/internal/config"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/handler"
	"github.com/mansoorceksport/sitekit/internal/middleware"
	"github.com/mansoorceksport/sitekit/internal/realtime"
	"github.com/mansoorceksport/sitekit/internal/repository"
	"github.com/mansoorceksport/sitekit/internal/service"
	"github.com/mansoorceksport/sitekit/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// AppDependencies holds the dependencies required to start the application
type AppDependencies struct {
	Config      *config.Config
	MongoDB     *mongo.Database
	RedisClient *redis.Client
	// AuthClient verifies Firebase ID tokens. Nil disables login.
	AuthClient service.FirebaseAuthClient
	// Files stores template previews. Nil disables preview uploads.
	Files domain.FileRepository
	// Providers builds payment gateways. Nil uses the real gateway clients.
	Providers service.ProviderFactory
}

// App is the configured HTTP server plus the services callers may need to drain on shutdown
type App struct {
	*fiber.App
	Wizards *service.WizardService
}

// NewApp creates and configures the Fiber application with the given dependencies
func NewApp(deps AppDependencies) (*App, error) {
	cfg := deps.Config

	// Repositories: catalog reads go through the Redis cache
	cache := repository.NewRedisCacheRepository(deps.RedisClient)
	changes := repository.NewRedisChangeFeed(deps.RedisClient)
	packageRepo := repository.NewCachedPackageRepository(repository.NewMongoPackageRepository(deps.MongoDB), cache)
	durationRepo := repository.NewCachedDurationRepository(repository.NewMongoDurationRepository(deps.MongoDB), cache)
	addOnRepo := repository.NewCachedAddOnRepository(repository.NewMongoAddOnRepository(deps.MongoDB), cache)
	promoRepo := repository.NewCachedPromoRepository(repository.NewMongoPromoRepository(deps.MongoDB), cache)
	templateRepo := repository.NewMongoTemplateRepository(deps.MongoDB)
	draftRepo := repository.NewMongoOrderDraftRepository(deps.MongoDB)
	attemptRepo := repository.NewMongoPaymentAttemptRepository(deps.MongoDB)
	gatewayRepo := repository.NewMongoGatewayRepository(deps.MongoDB)
	userRepo := repository.NewMongoUserRepository(deps.MongoDB)
	sessions := repository.NewRedisWizardSessionStore(cache, cfg.Wizard.SessionTTL)

	// Services
	promoService, err := service.NewPromoService(promoRepo)
	if err != nil {
		return nil, fmt.Errorf("failed to create promo service: %w", err)
	}
	quoteService := service.NewQuoteService(packageRepo, durationRepo, addOnRepo, promoService)
	catalogService := service.NewCatalogService(packageRepo, durationRepo, addOnRepo, templateRepo, promoRepo, promoService, deps.Files, changes)
	wizardService := service.NewWizardService(sessions, draftRepo, packageRepo, templateRepo, quoteService, promoService, changes, cfg.Wizard.CheckpointTimeout)
	gatewaySettings := service.NewGatewaySettingsService(gatewayRepo, cfg.Payment, changes)

	providers := deps.Providers
	if providers == nil {
		providers = service.NewProviderFactory(cfg.Payment)
	}
	dispatcher := service.NewPaymentDispatcher(gatewaySettings, providers, attemptRepo, wizardService, quoteService, promoService, cfg.Server.PublicBaseURL)

	tokenService := service.NewTokenService(cfg.JWT)
	authService := service.NewAuthService(userRepo, deps.AuthClient, tokenService)
	watcher := realtime.NewWatcher(changes, cfg.Wizard.ChangeDebounce)

	// Handlers
	authHandler := handler.NewAuthHandler(authService)
	catalogHandler := handler.NewCatalogHandler(catalogService, quoteService, promoService)
	wizardHandler := handler.NewWizardHandler(wizardService, dispatcher)
	functionsHandler := handler.NewFunctionsHandler(tokenService, gatewaySettings, dispatcher)
	webhookHandler := handler.NewWebhookHandler(dispatcher)
	landingHandler := handler.NewLandingHandler(dispatcher)
	adminHandler := handler.NewAdminHandler(catalogService, authService, wizardService, cfg.Server.MaxUploadSizeMB)
	realtimeHandler := handler.NewRealtimeHandler(watcher)

	app := fiber.New(fiber.Config{
		AppName:      "Sitekit Order API",
		BodyLimit:    int(cfg.Server.MaxUploadSizeMB * 1024 * 1024),
		ErrorHandler: handler.ErrorHandler,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
	})

	// Global middleware
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(telemetry.FiberMiddleware())
	app.Use(telemetry.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: strings.Join([]string{
			fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, fiber.HeaderAuthorization,
			middleware.CorrelationHeader, handler.XenditCallbackHeader,
		}, ", "),
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "sitekit",
		})
	})

	// Gateway redirect landings
	app.Get("/payment/:outcome", landingHandler.Show)

	v1 := app.Group("/v1")
	authenticated := middleware.VerifyAccessToken(tokenService)

	// ===========================================
	// AUTH
	// ===========================================
	auth := v1.Group("/auth")
	auth.Post("/login", middleware.RateLimit(20, 5), authHandler.LoginOrRegister)
	auth.Get("/me", authenticated, authHandler.Me)

	// ===========================================
	// PUBLIC CATALOG & QUOTES
	// ===========================================
	catalog := v1.Group("/catalog")
	catalog.Get("/packages", catalogHandler.ListPackages)
	catalog.Get("/packages/:id", catalogHandler.GetPackage)
	catalog.Get("/templates", catalogHandler.ListTemplates)

	promoLimit := middleware.RateLimit(cfg.Wizard.PromoRatePerMin, 5)
	v1.Post("/quote", catalogHandler.Quote)
	v1.Post("/promo/validate", promoLimit, catalogHandler.ValidatePromo)

	// ===========================================
	// ORDER WIZARD - anonymous, keyed by session id
	// ===========================================
	wizardGroup := v1.Group("/wizard")
	wizardGroup.Post("/", wizardHandler.Start)
	wizardGroup.Get("/:session", wizardHandler.Get)
	wizardGroup.Put("/:session/domain", wizardHandler.SetDomain)
	wizardGroup.Put("/:session/template", wizardHandler.SelectTemplate)
	wizardGroup.Put("/:session/package", wizardHandler.SelectPackage)
	wizardGroup.Put("/:session/duration", wizardHandler.SetDuration)
	wizardGroup.Put("/:session/addons", wizardHandler.SetAddOns)
	wizardGroup.Put("/:session/details", wizardHandler.SetDetails)
	wizardGroup.Put("/:session/step", wizardHandler.GoTo)
	wizardGroup.Put("/:session/promo", promoLimit, wizardHandler.ApplyPromo)
	wizardGroup.Delete("/:session/promo", wizardHandler.ClearPromo)
	wizardGroup.Get("/:session/quote", wizardHandler.Quote)
	wizardGroup.Post("/:session/retry", wizardHandler.Retry)

	replay := middleware.IdempotencyMiddleware(deps.RedisClient, cfg.Idempotency.TTL)
	wizardGroup.Post("/:session/checkout", replay, wizardHandler.Checkout)
	wizardGroup.Post("/:session/paypal/capture", replay, wizardHandler.CapturePayPal)

	payments := v1.Group("/payments")
	payments.Get("/availability", wizardHandler.Availability)
	payments.Get("/:id/status", wizardHandler.PaymentStatus)

	// ===========================================
	// FUNCTIONS - action-discriminated, checks its own token
	// ===========================================
	v1.Post("/functions/:name", functionsHandler.Invoke)

	// ===========================================
	// WEBHOOKS - verified by gateway signature
	// ===========================================
	webhooks := v1.Group("/webhooks")
	webhooks.Post("/xendit", webhookHandler.Xendit)
	webhooks.Post("/midtrans", webhookHandler.Midtrans)

	// ===========================================
	// STAFF - /v1/staff/* (assist, admin, super_admin)
	// ===========================================
	staff := v1.Group("/staff", authenticated, middleware.AuthorizeRole(domain.RoleAssist, domain.RoleAdmin, domain.RoleSuperAdmin))
	staff.Get("/leads", adminHandler.Leads)

	// ===========================================
	// ADMIN - /v1/admin/* (admin, super_admin)
	// ===========================================
	admin := v1.Group("/admin", authenticated, middleware.AuthorizeRole(domain.RoleAdmin, domain.RoleSuperAdmin))
	admin.Get("/changes", realtimeHandler.Changes)

	adminPackages := admin.Group("/packages")
	adminPackages.Get("/", adminHandler.ListPackages)
	adminPackages.Post("/", adminHandler.CreatePackage)
	adminPackages.Put("/:id", adminHandler.UpdatePackage)
	adminPackages.Delete("/:id", adminHandler.DeletePackage)
	adminPackages.Get("/:id/durations", adminHandler.ListDurations)
	adminPackages.Put("/:id/durations", adminHandler.UpsertDuration)
	admin.Delete("/durations/:id", adminHandler.DeleteDuration)

	adminAddOns := admin.Group("/addons")
	adminAddOns.Get("/", adminHandler.ListAddOns)
	adminAddOns.Post("/", adminHandler.CreateAddOn)
	adminAddOns.Put("/:id", adminHandler.UpdateAddOn)
	adminAddOns.Delete("/:id", adminHandler.DeleteAddOn)

	adminTemplates := admin.Group("/templates")
	adminTemplates.Get("/", adminHandler.ListTemplates)
	adminTemplates.Post("/", adminHandler.CreateTemplate)
	adminTemplates.Put("/:id", adminHandler.UpdateTemplate)
	adminTemplates.Post("/:id/preview", adminHandler.UploadPreview)
	adminTemplates.Delete("/:id", adminHandler.DeleteTemplate)

	adminPromos := admin.Group("/promos")
	adminPromos.Get("/", adminHandler.ListPromos)
	adminPromos.Post("/", adminHandler.CreatePromo)
	adminPromos.Put("/:id", adminHandler.UpdatePromo)
	adminPromos.Delete("/:id", adminHandler.DeletePromo)

	// role changes are re-checked in the service; only super_admin passes
	adminUsers := admin.Group("/users", middleware.AuthorizeRole(domain.RoleSuperAdmin))
	adminUsers.Get("/", adminHandler.ListUsers)
	adminUsers.Post("/:id/roles", adminHandler.GrantRole)
	adminUsers.Delete("/:id/roles/:role", adminHandler.RevokeRole)

	return &App{App: app, Wizards: wizardService}, nil
}
