// Package mongo keeps scraped projects in a MongoDB collection keyed by link.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
)

const connectTimeout = 10 * time.Second

// Config configures the MongoDB record store.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// RecordStore upserts one document per project link.
type RecordStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// Dial connects to cfg.URI, pings the server, and prepares the collection.
func Dial(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.URI == "" || cfg.Database == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("mongo uri, database and collection are required")
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	store, err := New(ctx, client.Database(cfg.Database).Collection(cfg.Collection))
	if err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	store.client = client
	return store, nil
}

// New wraps an existing collection and ensures its indexes.
func New(ctx context.Context, coll *mongo.Collection) (*RecordStore, error) {
	if coll == nil {
		return nil, fmt.Errorf("mongo collection is required")
	}
	s := &RecordStore{coll: coll, now: time.Now}
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique link index and the run index.
func (s *RecordStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "link", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "run_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create mongo indexes: %w", err)
	}
	return nil
}

// SaveRecords upserts every record with a link in one ordered bulk write.
// first_scraped is set once per link; scraped_count grows on every save.
func (s *RecordStore) SaveRecords(ctx context.Context, runID string, records []scraper.ProjectRecord) error {
	if s == nil || s.coll == nil {
		return errors.New("mongo store is not initialized")
	}
	now := s.now().UTC()
	models := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		if rec.Link == "" {
			continue
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"link": rec.Link}).
			SetUpdate(bson.M{
				"$set": bson.M{
					"run_id":          runID,
					"project_name":    rec.ProjectName,
					"project_details": rec.ProjectDetails,
					"project_status":  rec.ProjectStatus,
					"publish_date":    rec.PublishDate,
					"budget":          rec.Budget,
					"duration":        rec.Duration,
					"skills":          rec.Skills,
					"last_scraped":    now,
				},
				"$setOnInsert": bson.M{"first_scraped": now},
				"$inc":         bson.M{"scraped_count": 1},
			}).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return nil
	}
	if _, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("upsert %d projects: %w", len(models), err)
	}
	return nil
}

// Count returns how many projects the collection holds.
func (s *RecordStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return n, nil
}

// Close disconnects the client opened by Dial.
func (s *RecordStore) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
