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

// MongoDurationRepository implements domain.DurationRepository
type MongoDurationRepository struct {
	collection *mongo.Collection
}

func NewMongoDurationRepository(db *mongo.Database) *MongoDurationRepository {
	coll := db.Collection(domain.TableDurations)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// (package_id, months) is the upsert conflict key
	_, _ = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "package_id", Value: 1}, {Key: "months", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return &MongoDurationRepository{
		collection: coll,
	}
}

func (r *MongoDurationRepository) ListByPackage(ctx context.Context, packageID string) ([]*domain.DurationOption, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "months", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"package_id": packageID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list durations: %w", err)
	}
	return decodeAll(ctx, cursor, mapBsonToDuration)
}

// Upsert inserts or replaces the row for (PackageID, Months) and fills opt.ID
func (r *MongoDurationRepository) Upsert(ctx context.Context, opt *domain.DurationOption) error {
	if opt.Months < 1 {
		return domain.NewValidationError("months", "must be at least 1")
	}
	if opt.Price.Mode == "" {
		opt.Price = domain.AutoPrice()
	}
	now := time.Now().UTC()
	opt.UpdatedAt = now

	price := bson.M{"mode": string(opt.Price.Mode)}
	if opt.Price.IsManual() {
		price["amount"] = opt.Price.Amount
	}

	filter := bson.M{"package_id": opt.PackageID, "months": opt.Months}
	update := bson.M{
		"$set": bson.M{
			"discount_percent": opt.DiscountPercent,
			"is_active":        opt.IsActive,
			"sort_order":       opt.SortOrder,
			"price":            price,
			"updated_at":       now,
		},
		"$setOnInsert": bson.M{
			"_id":        newID(),
			"created_at": now,
		},
	}
	findOpts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var raw bson.M
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, findOpts).Decode(&raw); err != nil {
		return fmt.Errorf("failed to upsert duration: %w", err)
	}
	opt.ID = bsonID(raw)
	opt.CreatedAt = bsonTime(raw, "created_at")
	return nil
}

func (r *MongoDurationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete duration: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapBsonToDuration(raw bson.M) (*domain.DurationOption, error) {
	opt := &domain.DurationOption{
		ID:        bsonID(raw),
		PackageID: bsonString(raw, "package_id"),
		IsActive:  bsonBool(raw, "is_active"),
		CreatedAt: bsonTime(raw, "created_at"),
		UpdatedAt: bsonTime(raw, "updated_at"),
		Price:     domain.AutoPrice(),
	}

	months, ok := bsonInt(raw, "months")
	if !ok || months < 1 {
		return nil, malformed(domain.TableDurations, opt.ID, "months")
	}
	opt.Months = months

	if d, ok := bsonFloat(raw, "discount_percent"); ok {
		if d < 0 || d > 100 {
			return nil, malformed(domain.TableDurations, opt.ID, "discount_percent")
		}
		opt.DiscountPercent = d
	}
	opt.SortOrder, _ = bsonInt(raw, "sort_order")

	if price, ok := bsonDoc(raw, "price"); ok {
		switch domain.PriceMode(bsonString(price, "mode")) {
		case domain.PriceModeAuto, "":
		case domain.PriceModeManual:
			amount, ok := bsonInt64(price, "amount")
			if !ok || amount < 0 {
				return nil, malformed(domain.TableDurations, opt.ID, "price.amount")
			}
			opt.Price = domain.ManualPrice(amount)
		default:
			return nil, malformed(domain.TableDurations, opt.ID, "price.mode")
		}
	}

	return opt, nil
}
