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

type MongoTemplateRepository struct {
	collection *mongo.Collection
}

func NewMongoTemplateRepository(db *mongo.Database) *MongoTemplateRepository {
	return &MongoTemplateRepository{
		collection: db.Collection(domain.TableTemplates),
	}
}

// templateRow is the stored shape of a website template
type templateRow struct {
	ID         string    `bson:"_id"`
	Name       string    `bson:"name"`
	Category   string    `bson:"category"`
	PreviewURL string    `bson:"preview_url"`
	IsActive   bool      `bson:"is_active"`
	SortOrder  int       `bson:"sort_order"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func (row *templateRow) toDomain() (*domain.WebsiteTemplate, error) {
	if row.Name == "" {
		return nil, malformed(domain.TableTemplates, row.ID, "name")
	}
	return &domain.WebsiteTemplate{
		ID:         row.ID,
		Name:       row.Name,
		Category:   row.Category,
		PreviewURL: row.PreviewURL,
		IsActive:   row.IsActive,
		SortOrder:  row.SortOrder,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}, nil
}

func (r *MongoTemplateRepository) Create(ctx context.Context, tmpl *domain.WebsiteTemplate) error {
	tmpl.CreatedAt = time.Now().UTC()
	tmpl.UpdatedAt = tmpl.CreatedAt
	if tmpl.ID == "" {
		tmpl.ID = newID()
	}

	row := templateRow{
		ID:         tmpl.ID,
		Name:       tmpl.Name,
		Category:   tmpl.Category,
		PreviewURL: tmpl.PreviewURL,
		IsActive:   tmpl.IsActive,
		SortOrder:  tmpl.SortOrder,
		CreatedAt:  tmpl.CreatedAt,
		UpdatedAt:  tmpl.UpdatedAt,
	}
	if _, err := r.collection.InsertOne(ctx, row); err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *MongoTemplateRepository) GetByID(ctx context.Context, id string) (*domain.WebsiteTemplate, error) {
	var row templateRow
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&row)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return row.toDomain()
}

func (r *MongoTemplateRepository) List(ctx context.Context, onlyActive bool) ([]*domain.WebsiteTemplate, error) {
	filter := bson.M{}
	if onlyActive {
		filter["is_active"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "name", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []templateRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}

	templates := make([]*domain.WebsiteTemplate, 0, len(rows))
	for i := range rows {
		tmpl, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}

func (r *MongoTemplateRepository) Update(ctx context.Context, tmpl *domain.WebsiteTemplate) error {
	tmpl.UpdatedAt = time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"name":        tmpl.Name,
			"category":    tmpl.Category,
			"preview_url": tmpl.PreviewURL,
			"is_active":   tmpl.IsActive,
			"sort_order":  tmpl.SortOrder,
			"updated_at":  tmpl.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": tmpl.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoTemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
