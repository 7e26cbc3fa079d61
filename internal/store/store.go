// Package store persists fill notifications. Documents are keyed by
// notification_id; a uniqueness constraint makes re-saving an already-seen
// notification a logged no-op instead of a duplicate row.
//
// Two drivers share the contract: mongo (the production document store)
// and sqlite (local development and tests).
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrUnknownDriver = errors.New("store: unknown driver")

type Config struct {
	Driver string // "mongo" (default) | "sqlite"

	// Mongo driver.
	MongoURL string
	Database string

	// SQLite driver.
	SQLitePath string

	// KeyStrategy decides how notification ids are assigned when the
	// upstream payload lacks one ("derived" | "random").
	KeyStrategy string
}

// Notification is the persisted form of one fill event.
type Notification struct {
	NotificationID string         `bson:"notification_id" json:"notification_id"`
	Question       string         `bson:"question" json:"question"`
	Side           string         `bson:"side" json:"side"`
	Price          string         `bson:"price" json:"price"`
	MatchedSize    string         `bson:"matched_size" json:"matched_size"`
	Extra          map[string]any `bson:"extra,omitempty" json:"extra,omitempty"`
	CreatedAt      time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `bson:"updated_at" json:"updated_at"`
}

// Store is the persistence contract of the pipeline.
//
// SaveBatch inserts the batch best-effort: duplicate keys are logged at
// warn and skipped, other rows still insert, and the newly inserted
// documents come back so callers know what is genuinely new. Transient
// backend failures are retried with exponential backoff; when the budget
// is exhausted the error is returned after being logged, and callers are
// expected to carry on with an empty saved set.
type Store interface {
	SaveBatch(ctx context.Context, payloads []map[string]any) ([]Notification, error)
	GetAll(ctx context.Context, limit, skip int) ([]Notification, error)
	GetByDateRange(ctx context.Context, start, end time.Time) ([]Notification, error)
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects the configured driver.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "mongo"
	}
	switch driver {
	case "mongo", "mongodb":
		return openMongo(ctx, cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
