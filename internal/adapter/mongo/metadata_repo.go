package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// metadataDocument is one user's metadata; values are kept as JSON text so the
// blob comes back byte-for-byte the way it was written.
type metadataDocument struct {
	UserID    string            `bson:"_id"`
	Metadata  map[string]string `bson:"metadata"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

type MetadataRepository struct {
	collection *mongo.Collection
	maxBytes   int
}

func NewMetadataRepository(db *mongo.Database, collection string, maxBytes int) *MetadataRepository {
	return &MetadataRepository{
		collection: db.Collection(collection),
		maxBytes:   maxBytes,
	}
}

func (r *MetadataRepository) Get(ctx context.Context, userID, key string) (json.RawMessage, error) {
	if userID == "" {
		return nil, errors.New("cannot read metadata for empty userID")
	}

	opts := options.FindOne().SetProjection(bson.M{metadataField(key): 1})
	var doc metadataDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to read %s for user %s from mongodb: %v", repository.ErrRemoteUnavailable, key, userID, err)
	}

	val, ok := doc.Metadata[key]
	if !ok {
		return nil, nil
	}
	if !json.Valid([]byte(val)) {
		return nil, fmt.Errorf("%w: stored %s for user %s is not valid JSON", repository.ErrRemoteUnavailable, key, userID)
	}
	return json.RawMessage(val), nil
}

func (r *MetadataRepository) Set(ctx context.Context, userID, key string, value json.RawMessage) error {
	if userID == "" {
		return errors.New("cannot write metadata for empty userID")
	}
	if err := r.checkValue(key, value); err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{
		metadataField(key): string(value),
		"updated_at":       time.Now().UTC(),
	}}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
			return fmt.Errorf("%w: failed to write %s for user %s to mongodb: %v", repository.ErrRemoteUnavailable, key, userID, err)
		}
		var writeErr mongo.WriteException
		if errors.As(err, &writeErr) {
			return fmt.Errorf("%w: mongodb refused %s for user %s: %v", repository.ErrRemoteRejected, key, userID, err)
		}
		return fmt.Errorf("%w: failed to write %s for user %s to mongodb: %v", repository.ErrRemoteUnavailable, key, userID, err)
	}
	return nil
}

func (r *MetadataRepository) checkValue(key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("%w: %s value is not valid JSON", repository.ErrRemoteRejected, key)
	}
	if r.maxBytes > 0 && len(value) > r.maxBytes {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", repository.ErrRemoteRejected, key, len(value), r.maxBytes)
	}
	return nil
}

func metadataField(key string) string {
	return "metadata." + key
}
