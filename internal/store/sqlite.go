package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

type sqliteStore struct {
	db  *sqlx.DB
	log zerolog.Logger

	strategy string
	now      func() time.Time
}

func openSQLite(cfg Config, log zerolog.Logger) (*sqliteStore, error) {
	path := strings.TrimSpace(cfg.SQLitePath)
	if path == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: sqlite open: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	st := &sqliteStore{db: db, log: log, strategy: cfg.KeyStrategy, now: time.Now}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

// sqliteRow mirrors the notifications table for sqlx scanning.
type sqliteRow struct {
	NotificationID string         `db:"notification_id"`
	Question       string         `db:"question"`
	Side           string         `db:"side"`
	Price          string         `db:"price"`
	MatchedSize    string         `db:"matched_size"`
	Extra          sql.NullString `db:"extra"`
	CreatedAt      int64          `db:"created_at"`
	UpdatedAt      int64          `db:"updated_at"`
}

func (r sqliteRow) toNotification() Notification {
	n := Notification{
		NotificationID: r.NotificationID,
		Question:       r.Question,
		Side:           r.Side,
		Price:          r.Price,
		MatchedSize:    r.MatchedSize,
		CreatedAt:      time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:      time.UnixMilli(r.UpdatedAt).UTC(),
	}
	if r.Extra.Valid && r.Extra.String != "" {
		_ = json.Unmarshal([]byte(r.Extra.String), &n.Extra)
	}
	return n
}

const selectColumns = `notification_id, question, side, price, matched_size, extra, created_at, updated_at`

func (s *sqliteStore) SaveBatch(ctx context.Context, payloads []map[string]any) ([]Notification, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	docs := prepareBatch(payloads, s.strategy, s.now())

	return withRetry(ctx, s.log, "save_batch", isSQLiteTransient, func(ctx context.Context) ([]Notification, error) {
		inserted := make([]Notification, 0, len(docs))
		duplicates := 0
		for _, d := range docs {
			var extra any
			if len(d.Extra) > 0 {
				b, err := json.Marshal(d.Extra)
				if err != nil {
					return nil, fmt.Errorf("store: marshal extra: %w", err)
				}
				extra = string(b)
			}
			res, err := s.db.ExecContext(ctx,
				`INSERT OR IGNORE INTO notifications
				   (notification_id, question, side, price, matched_size, extra, created_at, updated_at)
				 VALUES (?,?,?,?,?,?,?,?)`,
				d.NotificationID, d.Question, d.Side, d.Price, d.MatchedSize, extra,
				d.CreatedAt.UnixMilli(), d.UpdatedAt.UnixMilli(),
			)
			if err != nil {
				return nil, err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return nil, err
			}
			if affected == 0 {
				duplicates++
				s.log.Warn().Str("notification_id", d.NotificationID).Msg("duplicate notification skipped")
				continue
			}
			inserted = append(inserted, d)
		}
		if duplicates > 0 {
			s.log.Warn().Int("inserted", len(inserted)).Int("duplicates", duplicates).
				Msg("batch insert completed with duplicates")
		}
		return inserted, nil
	})
}

func (s *sqliteStore) GetAll(ctx context.Context, limit, skip int) ([]Notification, error) {
	return withRetry(ctx, s.log, "get_all", isSQLiteTransient, func(ctx context.Context) ([]Notification, error) {
		if limit <= 0 {
			limit = -1 // sqlite: no limit
		}
		var rows []sqliteRow
		err := s.db.SelectContext(ctx, &rows,
			`SELECT `+selectColumns+` FROM notifications
			 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, skip)
		if err != nil {
			return nil, err
		}
		return toNotifications(rows), nil
	})
}

func (s *sqliteStore) GetByDateRange(ctx context.Context, start, end time.Time) ([]Notification, error) {
	return withRetry(ctx, s.log, "get_by_date_range", isSQLiteTransient, func(ctx context.Context) ([]Notification, error) {
		var rows []sqliteRow
		err := s.db.SelectContext(ctx, &rows,
			`SELECT `+selectColumns+` FROM notifications
			 WHERE created_at >= ? AND created_at <= ?
			 ORDER BY created_at DESC, id DESC`,
			start.UTC().UnixMilli(), end.UTC().UnixMilli())
		if err != nil {
			return nil, err
		}
		return toNotifications(rows), nil
	})
}

func (s *sqliteStore) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -days)
	return withRetry(ctx, s.log, "delete_older_than", isSQLiteTransient, func(ctx context.Context) (int64, error) {
		res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
}

func (s *sqliteStore) Count(ctx context.Context) (int64, error) {
	return withRetry(ctx, s.log, "count", isSQLiteTransient, func(ctx context.Context) (int64, error) {
		var n int64
		err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM notifications`)
		return n, err
	})
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close(context.Context) error {
	return s.db.Close()
}

func toNotifications(rows []sqliteRow) []Notification {
	out := make([]Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toNotification())
	}
	return out
}

// isSQLiteTransient treats lock contention as retryable. Constraint
// violations are handled by INSERT OR IGNORE and never reach here.
func isSQLiteTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
