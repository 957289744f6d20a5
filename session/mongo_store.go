package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoRecord struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	UserID      string        `bson:"user_id"`
	Email       string        `bson:"email"`
	AccessHash  string        `bson:"access_hash"`
	RefreshHash string        `bson:"refresh_hash"`
	ExpiresAt   time.Time     `bson:"expires_at"`
	CreatedAt   time.Time     `bson:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at"`
	Version     int64         `bson:"version"`
}

func (d *mongoRecord) toRecord() (*Record, error) {
	access, err := ParseTokenHash(d.AccessHash)
	if err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}
	refresh, err := ParseTokenHash(d.RefreshHash)
	if err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}
	return &Record{
		UserID:      d.UserID,
		Email:       d.Email,
		AccessHash:  access,
		RefreshHash: refresh,
		ExpiresAt:   d.ExpiresAt.UTC(),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
		Version:     d.Version,
	}, nil
}

// MongoStore keeps one document per user in a collection with a unique index
// on user_id and a TTL index on expires_at (see EnsureIndexes).
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore binds a store to database.collection on client.
func NewMongoStore(client *mongo.Client, database, collection string) *MongoStore {
	if collection == "" {
		collection = "token_sessions"
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}
}

// ConnectMongo opens a client for uri and verifies it with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the unique user_id index and the expires_at TTL index.
// It is idempotent.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("user_id_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("expires_at_ttl").SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get loads the record for userID. Documents past expires_at are returned
// until the TTL monitor removes them; callers decide expiry.
func (s *MongoStore) Get(ctx context.Context, userID string) (*Record, error) {
	var doc mongoRecord
	err := s.collection.FindOne(ctx, bson.D{{Key: "user_id", Value: userID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return doc.toRecord()
}

func recordUpdate(rec *Record, now time.Time, insert bool) bson.D {
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "email", Value: rec.Email},
			{Key: "access_hash", Value: rec.AccessHash.String()},
			{Key: "refresh_hash", Value: rec.RefreshHash.String()},
			{Key: "expires_at", Value: rec.ExpiresAt.UTC()},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: int64(1)}}},
	}
	if insert {
		update = append(update, bson.E{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: now}}})
	}
	return update
}

// Upsert replaces or inserts the user's document in one FindOneAndUpdate.
func (s *MongoStore) Upsert(ctx context.Context, rec *Record) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	now := writeTime(rec)

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	filter := bson.D{{Key: "user_id", Value: rec.UserID}}

	var doc mongoRecord
	err := s.collection.FindOneAndUpdate(ctx, filter, recordUpdate(rec, now, true), opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// Two upserts raced on insert; the loser retries as an update.
		err = s.collection.FindOneAndUpdate(ctx, filter, recordUpdate(rec, now, true), opts).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return doc.toRecord()
}

// Rotate updates the document only while refresh_hash equals expectedRefresh.
func (s *MongoStore) Rotate(ctx context.Context, rec *Record, expectedRefresh TokenHash) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	now := writeTime(rec)

	filter := bson.D{
		{Key: "user_id", Value: rec.UserID},
		{Key: "refresh_hash", Value: expectedRefresh.String()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mongoRecord
	err := s.collection.FindOneAndUpdate(ctx, filter, recordUpdate(rec, now, false), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, countErr := s.collection.CountDocuments(ctx, bson.D{{Key: "user_id", Value: rec.UserID}})
		if countErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, countErr)
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrRotateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return doc.toRecord()
}

// Delete removes the user's document.
func (s *MongoStore) Delete(ctx context.Context, userID string) (bool, error) {
	res, err := s.collection.DeleteOne(ctx, bson.D{{Key: "user_id", Value: userID}})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res.DeletedCount > 0, nil
}

// Ping checks the primary's reachability.
func (s *MongoStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.client.Ping(ctx, nil); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
