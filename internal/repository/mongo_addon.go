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

// MongoAddOnRepository implements domain.AddOnRepository
type MongoAddOnRepository struct {
	collection *mongo.Collection
}

func NewMongoAddOnRepository(db *mongo.Database) *MongoAddOnRepository {
	return &MongoAddOnRepository{
		collection: db.Collection(domain.TableAddOns),
	}
}

func addOnDoc(a *domain.AddOn) bson.M {
	return bson.M{
		"scope":          string(a.Scope),
		"package_id":     a.PackageID,
		"label":          a.Label,
		"price_per_unit": a.PricePerUnit,
		"unit_label":     a.UnitLabel,
		"step":           a.Step,
		"max_quantity":   a.MaxQuantity,
		"is_active":      a.IsActive,
		"sort_order":     a.SortOrder,
		"updated_at":     a.UpdatedAt,
	}
}

func (r *MongoAddOnRepository) Create(ctx context.Context, a *domain.AddOn) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.ID == "" {
		a.ID = newID()
	}

	doc := addOnDoc(a)
	doc["_id"] = a.ID
	doc["created_at"] = a.CreatedAt

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create add-on: %w", err)
	}
	return nil
}

func (r *MongoAddOnRepository) GetByID(ctx context.Context, id string) (*domain.AddOn, error) {
	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get add-on: %w", err)
	}
	return mapBsonToAddOn(raw)
}

func (r *MongoAddOnRepository) ListForPackage(ctx context.Context, packageID string) ([]*domain.AddOn, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"package_id": packageID},
			bson.M{"scope": string(domain.AddOnScopeSubscription), "package_id": ""},
		},
	}
	return r.find(ctx, filter)
}

func (r *MongoAddOnRepository) List(ctx context.Context) ([]*domain.AddOn, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoAddOnRepository) find(ctx context.Context, filter bson.M) ([]*domain.AddOn, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "label", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list add-ons: %w", err)
	}
	return decodeAll(ctx, cursor, mapBsonToAddOn)
}

func (r *MongoAddOnRepository) Update(ctx context.Context, a *domain.AddOn) error {
	a.UpdatedAt = time.Now().UTC()

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": a.ID}, bson.M{"$set": addOnDoc(a)})
	if err != nil {
		return fmt.Errorf("failed to update add-on: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoAddOnRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete add-on: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapBsonToAddOn(raw bson.M) (*domain.AddOn, error) {
	a := &domain.AddOn{
		ID:        bsonID(raw),
		Scope:     domain.AddOnScope(bsonString(raw, "scope")),
		PackageID: bsonString(raw, "package_id"),
		Label:     bsonString(raw, "label"),
		UnitLabel: bsonString(raw, "unit_label"),
		IsActive:  bsonBool(raw, "is_active"),
		CreatedAt: bsonTime(raw, "created_at"),
		UpdatedAt: bsonTime(raw, "updated_at"),
	}
	if a.Scope == "" {
		a.Scope = domain.AddOnScopePackage
	}
	if a.Scope != domain.AddOnScopePackage && a.Scope != domain.AddOnScopeSubscription {
		return nil, malformed(domain.TableAddOns, a.ID, "scope")
	}
	if a.Label == "" {
		return nil, malformed(domain.TableAddOns, a.ID, "label")
	}

	price, ok := bsonInt64(raw, "price_per_unit")
	if !ok || price < 0 {
		return nil, malformed(domain.TableAddOns, a.ID, "price_per_unit")
	}
	a.PricePerUnit = price

	a.Step, _ = bsonInt(raw, "step")
	a.MaxQuantity, _ = bsonInt(raw, "max_quantity")
	if a.Step < 0 || a.MaxQuantity < 0 {
		return nil, malformed(domain.TableAddOns, a.ID, "step/max_quantity")
	}
	a.SortOrder, _ = bsonInt(raw, "sort_order")

	return a, nil
}
