package main

import (
	"context"
	"encoding/base64"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mansoorceksport/sitekit/internal/config"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/middleware"
	"github.com/mansoorceksport/sitekit/internal/repository"
	"github.com/mansoorceksport/sitekit/internal/server"
	"github.com/mansoorceksport/sitekit/internal/service"
	"github.com/mansoorceksport/sitekit/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().Str("port", cfg.Server.Port).Msg("starting sitekit order service")

	ctx := context.Background()

	// Grafana Cloud requires Basic auth with instanceId:apiToken base64 encoded
	authEncoded := base64.StdEncoding.EncodeToString([]byte(cfg.OTEL.InstanceID + ":" + cfg.OTEL.Token))
	otelProvider, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.OTEL.ServiceName,
		ServiceVersion: cfg.OTEL.ServiceVersion,
		Environment:    cfg.OTEL.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
		OTLPHeaders: map[string]string{
			"Authorization": "Basic " + authEncoded,
		},
		Enabled: cfg.OTEL.Enabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("opentelemetry unavailable")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelProvider.Shutdown(shutdownCtx)
	}()

	// Firebase is optional: without it login is disabled but the storefront still works
	var authClient service.FirebaseAuthClient
	if cfg.Firebase.Enabled() {
		firebaseApp, err := middleware.InitFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.PrivateKey, cfg.Firebase.ClientEmail)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize firebase")
		}
		client, err := middleware.FirebaseAuthClient(ctx, firebaseApp)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get firebase auth client")
		}
		authClient = client
		log.Info().Msg("firebase initialized")
	} else {
		log.Warn().Msg("firebase not configured, staff login disabled")
	}

	ctxMongo, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	mongoOpts := options.Client().ApplyURI(cfg.MongoDB.URI)
	if cfg.OTEL.Enabled {
		mongoOpts.SetMonitor(otelmongo.NewMonitor())
	}
	mongoClient, err := mongo.Connect(ctxMongo, mongoOpts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("mongodb disconnect failed")
		}
	}()
	if err := mongoClient.Ping(ctxMongo, nil); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mongodb")
	}
	log.Info().Str("database", cfg.MongoDB.Database).Msg("mongodb connected")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	log.Info().Msg("redis connected")

	var files domain.FileRepository
	if cfg.S3.Endpoint != "" {
		s3Repo, err := repository.NewSeaweedS3Repository(ctx, cfg.S3)
		if err != nil {
			log.Warn().Err(err).Msg("object storage unavailable, template preview uploads disabled")
		} else {
			files = s3Repo
		}
	}

	app, err := server.NewApp(server.AppDependencies{
		Config:      cfg,
		MongoDB:     mongoClient.Database(cfg.MongoDB.Database),
		RedisClient: redisClient,
		AuthClient:  authClient,
		Files:       files,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build app")
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("shutting down gracefully")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}

	// flush lead snapshots still being written
	app.Wizards.Wait()
}
