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

// MongoOrderDraftRepository implements domain.OrderDraftRepository
type MongoOrderDraftRepository struct {
	collection *mongo.Collection
}

func NewMongoOrderDraftRepository(db *mongo.Database) *MongoOrderDraftRepository {
	coll := db.Collection(domain.TableOrderDrafts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "updated_at", Value: -1}}},
	})

	return &MongoOrderDraftRepository{
		collection: coll,
	}
}

// Upsert writes the whole draft snapshot. An empty ID creates a new row.
func (r *MongoOrderDraftRepository) Upsert(ctx context.Context, d *domain.OrderDraft) error {
	now := time.Now().UTC()
	d.UpdatedAt = now
	if d.ID == "" {
		d.ID = newID()
	}

	set := bson.M{
		"kind":                 string(d.Kind),
		"session_id":           d.SessionID,
		"domain":               d.Domain,
		"template_id":          d.TemplateID,
		"template_name":        d.TemplateName,
		"package_id":           d.PackageID,
		"package_name":         d.PackageName,
		"duration_months":      d.DurationMonths,
		"add_ons":              d.AddOns,
		"subscription_add_ons": d.SubscriptionAddOns,
		"customer": bson.M{
			"name":           d.Customer.Name,
			"email":          d.Customer.Email,
			"phone":          d.Customer.Phone,
			"business_name":  d.Customer.BusinessName,
			"province":       d.Customer.Province,
			"city":           d.Customer.City,
			"accepted_terms": d.Customer.AcceptedTerms,
		},
		"promo_code":   d.PromoCode,
		"quoted_total": d.QuotedTotal,
		"status":       d.Status,
		"updated_at":   now,
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}

	findOpts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var raw bson.M
	if err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": d.ID}, update, findOpts).Decode(&raw); err != nil {
		return fmt.Errorf("failed to upsert order draft: %w", err)
	}
	d.CreatedAt = bsonTime(raw, "created_at")
	return nil
}

func (r *MongoOrderDraftRepository) GetByID(ctx context.Context, id string) (*domain.OrderDraft, error) {
	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order draft: %w", err)
	}
	return mapBsonToOrderDraft(raw)
}

func (r *MongoOrderDraftRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now().UTC(),
		},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update order draft status: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListRecent returns the newest drafts of kind, for staff follow-up
func (r *MongoOrderDraftRepository) ListRecent(ctx context.Context, kind domain.DraftKind, limit int64) ([]*domain.OrderDraft, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, bson.M{"kind": string(kind)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list order drafts: %w", err)
	}
	return decodeAll(ctx, cursor, mapBsonToOrderDraft)
}

func mapBsonToOrderDraft(raw bson.M) (*domain.OrderDraft, error) {
	d := &domain.OrderDraft{
		ID:                 bsonID(raw),
		Kind:               domain.DraftKind(bsonString(raw, "kind")),
		SessionID:          bsonString(raw, "session_id"),
		Domain:             bsonString(raw, "domain"),
		TemplateID:         bsonString(raw, "template_id"),
		TemplateName:       bsonString(raw, "template_name"),
		PackageID:          bsonString(raw, "package_id"),
		PackageName:        bsonString(raw, "package_name"),
		AddOns:             bsonQuantities(raw, "add_ons"),
		SubscriptionAddOns: bsonQuantities(raw, "subscription_add_ons"),
		PromoCode:          bsonString(raw, "promo_code"),
		Status:             bsonString(raw, "status"),
		CreatedAt:          bsonTime(raw, "created_at"),
		UpdatedAt:          bsonTime(raw, "updated_at"),
	}
	if d.Kind != domain.DraftKindLead && d.Kind != domain.DraftKindMarketing {
		return nil, malformed(domain.TableOrderDrafts, d.ID, "kind")
	}
	d.DurationMonths, _ = bsonInt(raw, "duration_months")
	if total, ok := bsonInt64(raw, "quoted_total"); ok {
		d.QuotedTotal = &total
	}

	if c, ok := bsonDoc(raw, "customer"); ok {
		d.Customer = domain.Customer{
			Name:          bsonString(c, "name"),
			Email:         bsonString(c, "email"),
			Phone:         bsonString(c, "phone"),
			BusinessName:  bsonString(c, "business_name"),
			Province:      bsonString(c, "province"),
			City:          bsonString(c, "city"),
			AcceptedTerms: bsonBool(c, "accepted_terms"),
		}
	}
	return d, nil
}
