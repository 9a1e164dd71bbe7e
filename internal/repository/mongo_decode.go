package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mansoorceksport/sitekit/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Numbers come back as int32, int64 or double depending on who wrote the row
// (driver, mongosh, seed scripts). These helpers accept all three.

func bsonInt64(raw bson.M, key string) (int64, bool) {
	switch v := raw[key].(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func bsonInt(raw bson.M, key string) (int, bool) {
	v, ok := bsonInt64(raw, key)
	return int(v), ok
}

func bsonFloat(raw bson.M, key string) (float64, bool) {
	switch v := raw[key].(type) {
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func bsonString(raw bson.M, key string) string {
	s, _ := raw[key].(string)
	return s
}

func bsonBool(raw bson.M, key string) bool {
	b, _ := raw[key].(bool)
	return b
}

func bsonTime(raw bson.M, key string) time.Time {
	if dt, ok := raw[key].(primitive.DateTime); ok {
		return dt.Time().UTC()
	}
	return time.Time{}
}

func bsonTimePtr(raw bson.M, key string) *time.Time {
	if dt, ok := raw[key].(primitive.DateTime); ok {
		t := dt.Time().UTC()
		return &t
	}
	return nil
}

func bsonStrings(raw bson.M, key string) []string {
	arr, ok := raw[key].(primitive.A)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// bsonDoc reads an embedded document as bson.M
func bsonDoc(raw bson.M, key string) (bson.M, bool) {
	switch v := raw[key].(type) {
	case bson.M:
		return v, true
	case bson.D:
		return v.Map(), true
	}
	return nil, false
}

func bsonQuantities(raw bson.M, key string) map[string]int {
	out := map[string]int{}
	doc, ok := bsonDoc(raw, key)
	if !ok {
		return out
	}
	for id := range doc {
		if q, ok := bsonInt(doc, id); ok {
			out[id] = q
		}
	}
	return out
}

// bsonID reads _id whether it was stored as a string or an ObjectID
func bsonID(raw bson.M) string {
	switch v := raw["_id"].(type) {
	case string:
		return v
	case primitive.ObjectID:
		return v.Hex()
	}
	return ""
}

func malformed(collection, id, field string) error {
	return fmt.Errorf("%w: %s %s: %s", domain.ErrMalformedRow, collection, id, field)
}

func newID() string {
	return primitive.NewObjectID().Hex()
}

// decodeAll drains cursor through mapFn, failing on the first malformed row
func decodeAll[T any](ctx context.Context, cursor *mongo.Cursor, mapFn func(bson.M) (T, error)) ([]T, error) {
	defer cursor.Close(ctx)

	var out []T
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		item, err := mapFn(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}
