package results

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultServerSelectionTimeout bounds how long Connect waits for a usable
// results store before giving up.
const DefaultServerSelectionTimeout = 5 * time.Second

// Storage persists benchmark result documents to MongoDB. One Storage holds
// a single long-lived connection reused for all inserts of one run.
type Storage interface {
	Store(ctx context.Context, doc *Document) (string, error)
	Find(ctx context.Context, filter bson.D, sort bson.D, limit int64) ([]Document, error)
	Versions(ctx context.Context) (*VersionSet, error)
	Close(ctx context.Context) error
}

// VersionSet lists the distinct database and client versions present in the
// results collection.
type VersionSet struct {
	DatabaseVersions []string
	ClientVersions   []string
}

type storage struct {
	log        logrus.FieldLogger
	client     *mongo.Client
	collection *mongo.Collection
}

// Ensure interface compliance.
var _ Storage = (*storage)(nil)

// Connect opens the results store, verifies it with a ping, and ensures the
// query indexes exist. Index creation failure is logged, not fatal.
func Connect(ctx context.Context, log logrus.FieldLogger, uri, database, collection string) (Storage, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(DefaultServerSelectionTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to results store: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)

		return nil, fmt.Errorf("pinging results store: %w", err)
	}

	s := &storage{
		log:        log.WithField("component", "results"),
		client:     client,
		collection: client.Database(database).Collection(collection),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to create indexes (may already exist)")
	}

	s.log.WithFields(logrus.Fields{
		"database":   database,
		"collection": collection,
	}).Info("Connected to results storage")

	return s, nil
}

// ensureIndexes creates the indexes backing the common result queries.
func (s *storage) ensureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "database.type", Value: 1}}},
		{Keys: bson.D{{Key: "database.version", Value: 1}}},
		{Keys: bson.D{{Key: "test_run_id", Value: 1}}},
		{Keys: bson.D{{Key: "database.type", Value: 1}, {Key: "timestamp", Value: -1}}},
	}

	if _, err := s.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	return nil
}

// Store inserts one result document and returns its object ID.
func (s *storage) Store(ctx context.Context, doc *Document) (string, error) {
	res, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("inserting result document: %w", err)
	}

	id := ""
	if oid, ok := res.InsertedID.(interface{ Hex() string }); ok {
		id = oid.Hex()
	}

	s.log.WithField("id", id).Debug("Stored test result")

	return id, nil
}

// Find queries result documents with an optional filter, sort, and limit.
// The default sort is newest first.
func (s *storage) Find(ctx context.Context, filter bson.D, sort bson.D, limit int64) ([]Document, error) {
	if filter == nil {
		filter = bson.D{}
	}

	if sort == nil {
		sort = bson.D{{Key: "timestamp", Value: -1}}
	}

	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding results: %w", err)
	}

	return docs, nil
}

// Versions returns the distinct database and client versions stored so far.
func (s *storage) Versions(ctx context.Context) (*VersionSet, error) {
	dbVersions, err := s.collection.Distinct(ctx, "database.version", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("listing database versions: %w", err)
	}

	clientVersions, err := s.collection.Distinct(ctx, "client.version", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("listing client versions: %w", err)
	}

	set := &VersionSet{}

	for _, v := range dbVersions {
		if str, ok := v.(string); ok && str != "" {
			set.DatabaseVersions = append(set.DatabaseVersions, str)
		}
	}

	for _, v := range clientVersions {
		if str, ok := v.(string); ok && str != "" {
			set.ClientVersions = append(set.ClientVersions, str)
		}
	}

	return set, nil
}

// Close disconnects from the results store.
func (s *storage) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("closing results store: %w", err)
	}

	s.log.Debug("Results storage connection closed")

	return nil
}
