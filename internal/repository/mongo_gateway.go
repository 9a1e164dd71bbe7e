package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	gatewaySettingsID     = "settings"
	gatewayConfigIDPrefix = "provider:"
)

// MongoGatewayRepository implements domain.GatewayRepository.
// One document per provider plus a singleton settings document share the collection.
type MongoGatewayRepository struct {
	collection *mongo.Collection
}

func NewMongoGatewayRepository(db *mongo.Database) *MongoGatewayRepository {
	return &MongoGatewayRepository{
		collection: db.Collection(domain.TableGatewaySettings),
	}
}

func (r *MongoGatewayRepository) GetConfig(ctx context.Context, provider domain.Provider) (*domain.GatewayConfig, error) {
	var raw bson.M
	err := r.collection.FindOne(ctx, bson.M{"_id": gatewayConfigIDPrefix + string(provider)}).Decode(&raw)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get gateway config: %w", err)
	}
	return mapBsonToGatewayConfig(raw)
}

func (r *MongoGatewayRepository) ListConfigs(ctx context.Context) ([]*domain.GatewayConfig, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"kind": "provider"})
	if err != nil {
		return nil, fmt.Errorf("failed to list gateway configs: %w", err)
	}
	return decodeAll(ctx, cursor, mapBsonToGatewayConfig)
}

func (r *MongoGatewayRepository) SaveConfig(ctx context.Context, cfg *domain.GatewayConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"kind":          "provider",
			"provider":      string(cfg.Provider),
			"enabled":       cfg.Enabled,
			"environment":   string(cfg.Environment),
			"client_key":    cfg.ClientKey,
			"secret_key":    cfg.SecretKey,
			"merchant_id":   cfg.MerchantID,
			"webhook_token": cfg.WebhookToken,
			"updated_at":    cfg.UpdatedAt,
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": gatewayConfigIDPrefix + string(cfg.Provider)}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save gateway config: %w", err)
	}
	return nil
}

// GetSettings returns an empty settings value when none has been saved yet
func (r *MongoGatewayRepository) GetSettings(ctx context.Context) (*domain.GatewaySettings, error) {
	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"_id": gatewaySettingsID}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return &domain.GatewaySettings{}, nil
		}
		return nil, fmt.Errorf("failed to get gateway settings: %w", err)
	}

	settings := &domain.GatewaySettings{UpdatedAt: bsonTime(raw, "updated_at")}
	if active := bsonString(raw, "active_provider"); active != "" {
		p, ok := domain.ParseProvider(active)
		if !ok {
			return nil, malformed(domain.TableGatewaySettings, gatewaySettingsID, "active_provider")
		}
		settings.ActiveProvider = p
	}
	return settings, nil
}

func (r *MongoGatewayRepository) SaveSettings(ctx context.Context, settings *domain.GatewaySettings) error {
	settings.UpdatedAt = time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"kind":            "settings",
			"active_provider": string(settings.ActiveProvider),
			"updated_at":      settings.UpdatedAt,
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": gatewaySettingsID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save gateway settings: %w", err)
	}
	return nil
}

func mapBsonToGatewayConfig(raw bson.M) (*domain.GatewayConfig, error) {
	id := bsonID(raw)
	provider, ok := domain.ParseProvider(bsonString(raw, "provider"))
	if !ok {
		return nil, malformed(domain.TableGatewaySettings, id, "provider")
	}

	env := domain.GatewayEnvironment(bsonString(raw, "environment"))
	switch env {
	case domain.EnvSandbox, domain.EnvProduction:
	case "":
		env = domain.EnvSandbox
	default:
		return nil, malformed(domain.TableGatewaySettings, id, "environment")
	}

	return &domain.GatewayConfig{
		Provider:     provider,
		Enabled:      bsonBool(raw, "enabled"),
		Environment:  env,
		ClientKey:    bsonString(raw, "client_key"),
		SecretKey:    bsonString(raw, "secret_key"),
		MerchantID:   bsonString(raw, "merchant_id"),
		WebhookToken: bsonString(raw, "webhook_token"),
		UpdatedAt:    bsonTime(raw, "updated_at"),
	}, nil
}
