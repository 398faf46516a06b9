// Package mongo keeps an audit trail of lifecycle events in a MongoDB collection.
package mongo

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/syntrixbase/coldtier/internal/events"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config holds the audit store settings.
type Config struct {
	Enabled    bool   `yaml:"enabled"`
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	// Retention expires audit records through a TTL index (0 = keep forever).
	Retention time.Duration `yaml:"retention"`
}

// DefaultConfig returns the default audit store configuration.
func DefaultConfig() Config {
	return Config{
		URI:        "mongodb://localhost:27017",
		Database:   "coldtier",
		Collection: "lifecycle_events",
		Retention:  365 * 24 * time.Hour,
	}
}

func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.URI == "" {
		c.URI = d.URI
	}
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.Collection == "" {
		c.Collection = d.Collection
	}
}

func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("EVENTS_MONGO_URI"); v != "" {
		c.URI = v
		c.Enabled = true
	}
	if v := os.Getenv("EVENTS_MONGO_DB"); v != "" {
		c.Database = v
	}
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URI == "" || c.Database == "" || c.Collection == "" {
		return fmt.Errorf("events mongo uri, database and collection are required when enabled")
	}
	if c.Retention < 0 {
		return fmt.Errorf("events mongo retention cannot be negative")
	}
	return nil
}

// collection is the part of *mongo.Collection the store uses.
type collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// Store is an events.Sink that inserts every event as one document.
type Store struct {
	coll collection
}

var _ events.Sink = (*Store)(nil)

// NewStore wraps an existing collection.
func NewStore(coll collection) *Store {
	return &Store{coll: coll}
}

// Connect opens a client, verifies it with a ping and ensures the indexes of
// the event collection. The returned func disconnects the client.
func Connect(ctx context.Context, cfg Config) (*Store, func(context.Context) error, error) {
	cfg.ApplyDefaults()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	if err := ensureIndexes(ctx, coll, cfg.Retention); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	return NewStore(coll), client.Disconnect, nil
}

func ensureIndexes(ctx context.Context, coll *mongo.Collection, retention time.Duration) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "time", Value: -1}}},
		{Keys: bson.D{{Key: "run_id", Value: 1}}},
	}
	if retention > 0 {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "time", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention / time.Second)),
		})
	}
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create event indexes: %w", err)
	}
	return nil
}

// Emit inserts e. A duplicate id means the event is already recorded.
func (s *Store) Emit(ctx context.Context, e events.Event) error {
	_, err := s.coll.InsertOne(ctx, e)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", e.ID, err)
	}
	return nil
}

// Query selects recorded events. Zero fields match everything.
type Query struct {
	Kind  events.Kind
	RunID string
	Since time.Time
	Limit int64
}

// Recent returns the events matching q, newest first.
func (s *Store) Recent(ctx context.Context, q Query) ([]events.Event, error) {
	filter := bson.M{}
	if q.Kind != "" {
		filter["kind"] = q.Kind
	}
	if q.RunID != "" {
		filter["run_id"] = q.RunID
	}
	if !q.Since.IsZero() {
		filter["time"] = bson.M{"$gte": q.Since}
	}
	opts := options.Find().SetSort(bson.D{{Key: "time", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer cur.Close(ctx)

	var out []events.Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return out, nil
}
