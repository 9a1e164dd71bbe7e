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

// MongoPromoRepository implements domain.PromoRepository.
// Codes are stored as entered and matched through code_normalized.
type MongoPromoRepository struct {
	collection *mongo.Collection
}

func NewMongoPromoRepository(db *mongo.Database) *MongoPromoRepository {
	coll := db.Collection(domain.TablePromoCodes)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code_normalized", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return &MongoPromoRepository{
		collection: coll,
	}
}

func promoDoc(p *domain.PromoCode) bson.M {
	return bson.M{
		"code":            p.Code,
		"code_normalized": domain.NormalizePromoCode(p.Code),
		"name":            p.Name,
		"discount_type":   string(p.DiscountType),
		"discount_value":  p.DiscountValue,
		"max_discount":    p.MaxDiscount,
		"min_subtotal":    p.MinSubtotal,
		"eligibility":     p.Eligibility,
		"is_active":       p.IsActive,
		"valid_from":      p.ValidFrom,
		"valid_until":     p.ValidUntil,
		"usage_limit":     p.UsageLimit,
		"updated_at":      p.UpdatedAt,
	}
}

func (r *MongoPromoRepository) Create(ctx context.Context, p *domain.PromoCode) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.ID == "" {
		p.ID = newID()
	}

	doc := promoDoc(p)
	doc["_id"] = p.ID
	doc["used_count"] = p.UsedCount
	doc["created_at"] = p.CreatedAt

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.NewValidationError("code", "already exists")
		}
		return fmt.Errorf("failed to create promo: %w", err)
	}
	return nil
}

func (r *MongoPromoRepository) GetByID(ctx context.Context, id string) (*domain.PromoCode, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoPromoRepository) GetByCode(ctx context.Context, normalizedCode string) (*domain.PromoCode, error) {
	return r.findOne(ctx, bson.M{"code_normalized": normalizedCode})
}

func (r *MongoPromoRepository) findOne(ctx context.Context, filter bson.M) (*domain.PromoCode, error) {
	var raw bson.M
	if err := r.collection.FindOne(ctx, filter).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get promo: %w", err)
	}
	return mapBsonToPromo(raw)
}

func (r *MongoPromoRepository) List(ctx context.Context) ([]*domain.PromoCode, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list promos: %w", err)
	}
	return decodeAll(ctx, cursor, mapBsonToPromo)
}

func (r *MongoPromoRepository) Update(ctx context.Context, p *domain.PromoCode) error {
	p.UpdatedAt = time.Now().UTC()

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": promoDoc(p)})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.NewValidationError("code", "already exists")
		}
		return fmt.Errorf("failed to update promo: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoPromoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete promo: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementUsage counts one redemption
func (r *MongoPromoRepository) IncrementUsage(ctx context.Context, id string) error {
	update := bson.M{
		"$inc": bson.M{"used_count": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to increment promo usage: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapBsonToPromo(raw bson.M) (*domain.PromoCode, error) {
	p := &domain.PromoCode{
		ID:           bsonID(raw),
		Code:         bsonString(raw, "code"),
		Name:         bsonString(raw, "name"),
		DiscountType: domain.DiscountType(bsonString(raw, "discount_type")),
		Eligibility:  bsonString(raw, "eligibility"),
		IsActive:     bsonBool(raw, "is_active"),
		ValidFrom:    bsonTimePtr(raw, "valid_from"),
		ValidUntil:   bsonTimePtr(raw, "valid_until"),
		CreatedAt:    bsonTime(raw, "created_at"),
		UpdatedAt:    bsonTime(raw, "updated_at"),
	}
	if p.Code == "" {
		return nil, malformed(domain.TablePromoCodes, p.ID, "code")
	}
	if p.DiscountType != domain.DiscountFixed && p.DiscountType != domain.DiscountPercentage {
		return nil, malformed(domain.TablePromoCodes, p.ID, "discount_type")
	}

	value, ok := bsonFloat(raw, "discount_value")
	if !ok || value < 0 || (p.DiscountType == domain.DiscountPercentage && value > 100) {
		return nil, malformed(domain.TablePromoCodes, p.ID, "discount_value")
	}
	p.DiscountValue = value

	p.MaxDiscount, _ = bsonInt64(raw, "max_discount")
	p.MinSubtotal, _ = bsonInt64(raw, "min_subtotal")
	p.UsageLimit, _ = bsonInt(raw, "usage_limit")
	p.UsedCount, _ = bsonInt(raw, "used_count")

	return p, nil
}
