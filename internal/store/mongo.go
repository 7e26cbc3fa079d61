package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const notificationsCollection = "notifications"

type mongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    zerolog.Logger

	strategy  string
	now       func() time.Time
	indexOnce sync.Once
}

func openMongo(ctx context.Context, cfg Config, log zerolog.Logger) (*mongoStore, error) {
	url := cfg.MongoURL
	if url == "" {
		url = "mongodb://localhost:27017"
	}
	dbName := cfg.Database
	if dbName == "" {
		dbName = "polymarket_notifications"
	}

	journal := true
	opts := options.Client().
		ApplyURI(url).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetSocketTimeout(30 * time.Second).
		SetMinPoolSize(1).
		SetMaxPoolSize(10).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true).
		SetRetryReads(true).
		SetWriteConcern(&writeconcern.WriteConcern{W: "majority", Journal: &journal})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("store: mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("store: mongo ping: %w", err)
	}

	return &mongoStore{
		client:   client,
		coll:     client.Database(dbName).Collection(notificationsCollection),
		log:      log,
		strategy: cfg.KeyStrategy,
		now:      time.Now,
	}, nil
}

// ensureIndex creates the uniqueness index on notification_id. CreateOne
// is idempotent for an identical spec, so "already exists" is not an
// error; anything else is logged and insertion proceeds without the
// guarantee rather than failing the batch.
func (s *mongoStore) ensureIndex(ctx context.Context) {
	s.indexOnce.Do(func() {
		_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "notification_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("could not ensure notification_id index")
		}
	})
}

func (s *mongoStore) SaveBatch(ctx context.Context, payloads []map[string]any) ([]Notification, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	docs := prepareBatch(payloads, s.strategy, s.now())

	return withRetry(ctx, s.log, "save_batch", isMongoTransient, func(ctx context.Context) ([]Notification, error) {
		s.ensureIndex(ctx)

		raw := make([]any, len(docs))
		for i := range docs {
			raw[i] = docs[i]
		}
		_, err := s.coll.InsertMany(ctx, raw, options.InsertMany().SetOrdered(false))
		if err == nil {
			return docs, nil
		}

		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) {
			failed := make(map[int]bool, len(bwe.WriteErrors))
			duplicates := 0
			for _, we := range bwe.WriteErrors {
				failed[we.Index] = true
				if we.Code == 11000 {
					duplicates++
				} else {
					s.log.Warn().Int("index", we.Index).Str("err", we.Message).Msg("notification insert rejected")
				}
			}
			inserted := make([]Notification, 0, len(docs)-len(failed))
			for i, d := range docs {
				if !failed[i] {
					inserted = append(inserted, d)
				}
			}
			s.log.Warn().
				Int("inserted", len(inserted)).
				Int("duplicates", duplicates).
				Int("other_errors", len(failed)-duplicates).
				Msg("bulk insert completed with rejected documents")
			return inserted, nil
		}
		return nil, err
	})
}

func (s *mongoStore) GetAll(ctx context.Context, limit, skip int) ([]Notification, error) {
	return withRetry(ctx, s.log, "get_all", isMongoTransient, func(ctx context.Context) ([]Notification, error) {
		opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
		if skip > 0 {
			opts.SetSkip(int64(skip))
		}
		if limit > 0 {
			opts.SetLimit(int64(limit))
		}
		cur, err := s.coll.Find(ctx, bson.D{}, opts)
		if err != nil {
			return nil, err
		}
		var out []Notification
		if err := cur.All(ctx, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (s *mongoStore) GetByDateRange(ctx context.Context, start, end time.Time) ([]Notification, error) {
	return withRetry(ctx, s.log, "get_by_date_range", isMongoTransient, func(ctx context.Context) ([]Notification, error) {
		filter := bson.D{{Key: "created_at", Value: bson.D{
			{Key: "$gte", Value: start.UTC()},
			{Key: "$lte", Value: end.UTC()},
		}}}
		cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
		if err != nil {
			return nil, err
		}
		var out []Notification
		if err := cur.All(ctx, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (s *mongoStore) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -days)
	return withRetry(ctx, s.log, "delete_older_than", isMongoTransient, func(ctx context.Context) (int64, error) {
		res, err := s.coll.DeleteMany(ctx, bson.D{{Key: "created_at", Value: bson.D{{Key: "$lt", Value: cutoff}}}})
		if err != nil {
			return 0, err
		}
		return res.DeletedCount, nil
	})
}

func (s *mongoStore) Count(ctx context.Context) (int64, error) {
	return withRetry(ctx, s.log, "count", isMongoTransient, func(ctx context.Context) (int64, error) {
		return s.coll.CountDocuments(ctx, bson.D{})
	})
}

func (s *mongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *mongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// isMongoTransient classifies connection resets, server-selection
// timeouts and other network-level failures as retryable. Duplicate keys
// are an expected integrity signal, never retried.
func isMongoTransient(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return false
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected)
}
