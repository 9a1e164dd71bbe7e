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

// MongoUserRepository implements domain.UserRepository
type MongoUserRepository struct {
	collection *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	coll := db.Collection("users")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// firebase_uid is sparse (allows empty values, only indexes non-empty)
	_, _ = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "firebase_uid", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "roles", Value: 1}}},
	})

	return &MongoUserRepository{
		collection: coll,
	}
}

func (r *MongoUserRepository) Create(ctx context.Context, user *domain.User) error {
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	objID := primitive.NewObjectID()
	user.ID = objID.Hex()

	doc := bson.M{
		"_id":        objID,
		"email":      user.Email,
		"name":       user.Name,
		"roles":      user.Roles,
		"created_at": user.CreatedAt,
		"updated_at": user.UpdatedAt,
	}
	if user.FirebaseUID != "" {
		doc["firebase_uid"] = user.FirebaseUID
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	return r.findOne(ctx, bson.M{"_id": objID}, "failed to get user")
}

func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email}, "failed to get user by email")
}

func (r *MongoUserRepository) GetByFirebaseUID(ctx context.Context, uid string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"firebase_uid": uid}, "failed to get user by uid")
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M, msg string) (*domain.User, error) {
	var raw bson.M
	if err := r.collection.FindOne(ctx, filter).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	return mapBsonToUser(raw), nil
}

func (r *MongoUserRepository) UpdateFirebaseUID(ctx context.Context, userID string, firebaseUID string) error {
	return r.updateByID(ctx, userID, bson.M{
		"$set": bson.M{"firebase_uid": firebaseUID, "updated_at": time.Now().UTC()},
	}, "failed to update firebase uid")
}

func (r *MongoUserRepository) AddRole(ctx context.Context, userID string, role string) error {
	// $addToSet prevents duplicate roles
	return r.updateByID(ctx, userID, bson.M{
		"$addToSet": bson.M{"roles": role},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}, "failed to add role")
}

func (r *MongoUserRepository) RemoveRole(ctx context.Context, userID string, role string) error {
	return r.updateByID(ctx, userID, bson.M{
		"$pull": bson.M{"roles": role},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}, "failed to remove role")
}

func (r *MongoUserRepository) updateByID(ctx context.Context, userID string, update bson.M, msg string) error {
	objID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return domain.ErrInvalidID
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoUserRepository) GetByRole(ctx context.Context, role string) ([]*domain.User, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"roles": role})
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	return decodeAll(ctx, cursor, func(raw bson.M) (*domain.User, error) {
		return mapBsonToUser(raw), nil
	})
}

func mapBsonToUser(raw bson.M) *domain.User {
	return &domain.User{
		ID:          bsonID(raw),
		FirebaseUID: bsonString(raw, "firebase_uid"),
		Email:       bsonString(raw, "email"),
		Name:        bsonString(raw, "name"),
		Roles:       bsonStrings(raw, "roles"),
		CreatedAt:   bsonTime(raw, "created_at"),
		UpdatedAt:   bsonTime(raw, "updated_at"),
	}
}
