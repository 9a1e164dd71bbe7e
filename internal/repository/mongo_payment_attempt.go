package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPaymentAttemptRepository implements domain.PaymentAttemptRepository
type MongoPaymentAttemptRepository struct {
	collection *mongo.Collection
}

// NewMongoPaymentAttemptRepository creates the repository and its uniqueness index.
// The (idempotency_key, provider) index is what makes a resubmitted checkout a no-op.
func NewMongoPaymentAttemptRepository(db *mongo.Database) *MongoPaymentAttemptRepository {
	coll := db.Collection("payment_attempts")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "idempotency_key", Value: 1}, {Key: "provider", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "order_ref", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "provider_ref", Value: 1}}},
	})

	return &MongoPaymentAttemptRepository{
		collection: coll,
	}
}

// Create inserts the attempt. When one already exists for the same key and
// provider it returns domain.ErrDuplicateAttempt.
func (r *MongoPaymentAttemptRepository) Create(ctx context.Context, attempt *domain.PaymentAttempt) error {
	now := time.Now().UTC()
	attempt.CreatedAt = now
	attempt.UpdatedAt = now

	objID := primitive.NewObjectID()
	attempt.ID = objID.Hex()
	if attempt.OrderRef == "" {
		attempt.OrderRef = "ORD-" + attempt.ID
	}

	doc := bson.M{
		"_id":             objID,
		"session_id":      attempt.SessionID,
		"draft_id":        attempt.DraftID,
		"promo_id":        attempt.PromoID,
		"idempotency_key": attempt.IdempotencyKey,
		"provider":        string(attempt.Provider),
		"order_ref":       attempt.OrderRef,
		"amount":          attempt.Amount,
		"currency":        attempt.Currency,
		"provider_amount": attempt.ProviderAmount,
		"status":          attempt.Status,
		"provider_ref":    attempt.ProviderRef,
		"redirect_url":    attempt.RedirectURL,
		"message":         attempt.Message,
		"created_at":      attempt.CreatedAt,
		"updated_at":      attempt.UpdatedAt,
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateAttempt
		}
		return fmt.Errorf("failed to create payment attempt: %w", err)
	}
	return nil
}

func (r *MongoPaymentAttemptRepository) GetByID(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	return r.findOne(ctx, bson.M{"_id": objID})
}

func (r *MongoPaymentAttemptRepository) GetByIdempotencyKey(ctx context.Context, key string, provider domain.Provider) (*domain.PaymentAttempt, error) {
	return r.findOne(ctx, bson.M{"idempotency_key": key, "provider": string(provider)})
}

func (r *MongoPaymentAttemptRepository) GetByOrderRef(ctx context.Context, orderRef string) (*domain.PaymentAttempt, error) {
	return r.findOne(ctx, bson.M{"order_ref": orderRef})
}

func (r *MongoPaymentAttemptRepository) GetByProviderRef(ctx context.Context, provider domain.Provider, ref string) (*domain.PaymentAttempt, error) {
	return r.findOne(ctx, bson.M{"provider": string(provider), "provider_ref": ref})
}

func (r *MongoPaymentAttemptRepository) findOne(ctx context.Context, filter bson.M) (*domain.PaymentAttempt, error) {
	var raw bson.M
	if err := r.collection.FindOne(ctx, filter).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment attempt: %w", err)
	}
	return mapBsonToPaymentAttempt(raw), nil
}

func (r *MongoPaymentAttemptRepository) UpdateStatus(ctx context.Context, id string, status string, message string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrInvalidID
	}

	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"message":    message,
			"updated_at": time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to update payment attempt status: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Update stores the provider response fields of an attempt
func (r *MongoPaymentAttemptRepository) Update(ctx context.Context, attempt *domain.PaymentAttempt) error {
	objID, err := primitive.ObjectIDFromHex(attempt.ID)
	if err != nil {
		return domain.ErrInvalidID
	}

	attempt.UpdatedAt = time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"provider_amount": attempt.ProviderAmount,
			"status":          attempt.Status,
			"provider_ref":    attempt.ProviderRef,
			"redirect_url":    attempt.RedirectURL,
			"message":         attempt.Message,
			"updated_at":      attempt.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to update payment attempt: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapBsonToPaymentAttempt(raw bson.M) *domain.PaymentAttempt {
	attempt := &domain.PaymentAttempt{
		ID:             bsonID(raw),
		SessionID:      bsonString(raw, "session_id"),
		DraftID:        bsonString(raw, "draft_id"),
		PromoID:        bsonString(raw, "promo_id"),
		IdempotencyKey: bsonString(raw, "idempotency_key"),
		Provider:       domain.Provider(bsonString(raw, "provider")),
		OrderRef:       bsonString(raw, "order_ref"),
		Currency:       bsonString(raw, "currency"),
		ProviderAmount: bsonString(raw, "provider_amount"),
		Status:         bsonString(raw, "status"),
		ProviderRef:    bsonString(raw, "provider_ref"),
		RedirectURL:    bsonString(raw, "redirect_url"),
		Message:        bsonString(raw, "message"),
		CreatedAt:      bsonTime(raw, "created_at"),
		UpdatedAt:      bsonTime(raw, "updated_at"),
	}
	attempt.Amount, _ = bsonInt64(raw, "amount")
	return attempt
}
