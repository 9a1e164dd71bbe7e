package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/pricing"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPackageRepository implements domain.PackageRepository
type MongoPackageRepository struct {
	collection *mongo.Collection
}

// NewMongoPackageRepository creates a new package repository
func NewMongoPackageRepository(db *mongo.Database) *MongoPackageRepository {
	coll := db.Collection(domain.TablePackages)
	return &MongoPackageRepository{
		collection: coll,
	}
}

func (r *MongoPackageRepository) Create(ctx context.Context, pkg *domain.Package) error {
	now := time.Now().UTC()
	pkg.CreatedAt = now
	pkg.UpdatedAt = now
	if pkg.ID == "" {
		pkg.ID = newID()
	}

	doc := bson.M{
		"_id":        pkg.ID, // string id so seeds can use stable slugs (e.g. "pkg_growth")
		"name":       pkg.Name,
		"type":       pkg.Type,
		"cadence":    string(pkg.Cadence),
		"base_price": pkg.BasePrice,
		"features":   pkg.Features,
		"is_active":  pkg.IsActive,
		"is_public":  pkg.IsPublic,
		"sort_order": pkg.SortOrder,
		"created_at": pkg.CreatedAt,
		"updated_at": pkg.UpdatedAt,
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}
	return nil
}

func (r *MongoPackageRepository) GetByID(ctx context.Context, id string) (*domain.Package, error) {
	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get package: %w", err)
	}
	return mapBsonToPackage(raw)
}

func (r *MongoPackageRepository) List(ctx context.Context, onlyPublic bool) ([]*domain.Package, error) {
	filter := bson.M{}
	if onlyPublic {
		filter = bson.M{"is_active": true, "is_public": true}
	}
	opts := options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "name", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	return decodeAll(ctx, cursor, mapBsonToPackage)
}

func (r *MongoPackageRepository) Update(ctx context.Context, pkg *domain.Package) error {
	pkg.UpdatedAt = time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"name":       pkg.Name,
			"type":       pkg.Type,
			"cadence":    string(pkg.Cadence),
			"base_price": pkg.BasePrice,
			"features":   pkg.Features,
			"is_active":  pkg.IsActive,
			"is_public":  pkg.IsPublic,
			"sort_order": pkg.SortOrder,
			"updated_at": pkg.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": pkg.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update package: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoPackageRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete package: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// mapBsonToPackage rejects rows without a name or price. Rows written before the
// cadence field existed get one inferred from their name and type.
func mapBsonToPackage(raw bson.M) (*domain.Package, error) {
	pkg := &domain.Package{
		ID:        bsonID(raw),
		Name:      bsonString(raw, "name"),
		Type:      bsonString(raw, "type"),
		Features:  bsonStrings(raw, "features"),
		IsActive:  bsonBool(raw, "is_active"),
		IsPublic:  bsonBool(raw, "is_public"),
		CreatedAt: bsonTime(raw, "created_at"),
		UpdatedAt: bsonTime(raw, "updated_at"),
	}
	if pkg.Name == "" {
		return nil, malformed(domain.TablePackages, pkg.ID, "name")
	}

	price, ok := bsonInt64(raw, "base_price")
	if !ok || price < 0 {
		return nil, malformed(domain.TablePackages, pkg.ID, "base_price")
	}
	pkg.BasePrice = price
	pkg.SortOrder, _ = bsonInt(raw, "sort_order")

	switch c := domain.Cadence(bsonString(raw, "cadence")); {
	case c.Valid():
		pkg.Cadence = c
	case c == "":
		pkg.Cadence = pricing.ClassifyCadence(pkg.Name, pkg.Type)
		log.Warn().
			Str("package_id", pkg.ID).
			Str("inferred_cadence", string(pkg.Cadence)).
			Msg("package has no cadence, inferred from name")
	default:
		return nil, malformed(domain.TablePackages, pkg.ID, "cadence")
	}

	return pkg, nil
}
