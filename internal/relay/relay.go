// Package relay runs the fetch -> persist -> deliver pipeline on a
// fixed interval, plus a nightly retention job. A cycle that finds
// nothing upstream is a no-op; a cycle that fails to persist still
// delivers when the mode allows it.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"polynotify/internal/metrics"
	"polynotify/internal/store"
)

// Fetcher pulls pending notifications from the upstream API and
// acknowledges them.
type Fetcher interface {
	FetchPending(ctx context.Context) ([]map[string]any, error)
}

// Store is the slice of the persistence layer the relay needs.
type Store interface {
	SaveBatch(ctx context.Context, payloads []map[string]any) ([]store.Notification, error)
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

// Sink delivers one rendered message. Implementations absorb their own
// failures and report them as a false return.
type Sink interface {
	Send(ctx context.Context, message string) bool
	Name() string
}

// Delivery modes. "all" relays every fetched payload; "persisted"
// relays only documents the store accepted as new, which makes the
// store the dedupe gate for deliveries too.
const (
	DeliverAll       = "all"
	DeliverPersisted = "persisted"
)

type RetentionConfig struct {
	Enabled  bool
	Days     int
	Schedule string // cron spec, e.g. "0 4 * * *"
}

type Config struct {
	FetchInterval time.Duration
	Deliver       bool
	DeliverMode   string
	Retention     RetentionConfig
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	fetcher Fetcher
	store   Store
	sinks   []Sink
	log     zerolog.Logger

	c           *cron.Cron
	fetchEntry  cron.EntryID
	retainEntry cron.EntryID
	baseCtx     context.Context

	// guards against overlapping cycles when one runs longer than the
	// interval.
	cycleMu sync.Mutex
}

func New(cfg Config, fetcher Fetcher, st Store, sinks []Sink, log zerolog.Logger) *Service {
	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = time.Minute
	}
	if cfg.DeliverMode == "" {
		cfg.DeliverMode = DeliverAll
	}
	return &Service{
		cfg:     cfg,
		fetcher: fetcher,
		store:   st,
		sinks:   sinks,
		log:     log,
	}
}

// Start schedules the recurring cycle and runs the first one
// immediately so a fresh deploy doesn't sit idle for a full interval.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.baseCtx = ctx
	s.c = cron.New()

	if err := s.scheduleLocked(); err != nil {
		s.c = nil
		return err
	}
	s.c.Start()

	s.log.Info().
		Dur("interval", s.cfg.FetchInterval).
		Bool("deliver", s.cfg.Deliver).
		Str("mode", s.cfg.DeliverMode).
		Msg("relay started")

	go s.runCycle(ctx)
	return nil
}

func (s *Service) scheduleLocked() error {
	spec := fmt.Sprintf("@every %s", s.cfg.FetchInterval)
	id, err := s.c.AddFunc(spec, func() { s.runCycle(s.baseCtx) })
	if err != nil {
		return fmt.Errorf("relay: schedule %q: %w", spec, err)
	}
	s.fetchEntry = id

	if s.cfg.Retention.Enabled && s.cfg.Retention.Days > 0 {
		id, err := s.c.AddFunc(s.cfg.Retention.Schedule, func() { s.runRetention(s.baseCtx) })
		if err != nil {
			return fmt.Errorf("relay: retention schedule %q: %w", s.cfg.Retention.Schedule, err)
		}
		s.retainEntry = id
	}
	return nil
}

// Apply swaps in a new configuration without restarting the process.
// Cron entries are re-registered only when their schedule changed.
func (s *Service) Apply(cfg Config) error {
	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = time.Minute
	}
	if cfg.DeliverMode == "" {
		cfg.DeliverMode = DeliverAll
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	if s.c == nil {
		return nil
	}

	if old.FetchInterval != cfg.FetchInterval {
		s.c.Remove(s.fetchEntry)
		spec := fmt.Sprintf("@every %s", cfg.FetchInterval)
		id, err := s.c.AddFunc(spec, func() { s.runCycle(s.baseCtx) })
		if err != nil {
			return fmt.Errorf("relay: reschedule %q: %w", spec, err)
		}
		s.fetchEntry = id
		s.log.Info().Dur("interval", cfg.FetchInterval).Msg("fetch interval updated")
	}

	if old.Retention != cfg.Retention {
		if s.retainEntry != 0 {
			s.c.Remove(s.retainEntry)
			s.retainEntry = 0
		}
		if cfg.Retention.Enabled && cfg.Retention.Days > 0 {
			id, err := s.c.AddFunc(cfg.Retention.Schedule, func() { s.runRetention(s.baseCtx) })
			if err != nil {
				return fmt.Errorf("relay: retention reschedule %q: %w", cfg.Retention.Schedule, err)
			}
			s.retainEntry = id
		}
		s.log.Info().Bool("enabled", cfg.Retention.Enabled).Int("days", cfg.Retention.Days).
			Msg("retention policy updated")
	}
	return nil
}

// Stop halts the schedule and waits for any in-flight job to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// runCycle is one pass of the pipeline. Fetch errors abort the cycle;
// persistence errors are absorbed so delivery in "all" mode still
// happens; each delivery is isolated so one bad message or sink cannot
// starve the rest.
func (s *Service) runCycle(ctx context.Context) {
	if !s.cycleMu.TryLock() {
		s.log.Warn().Msg("previous cycle still running, skipping")
		return
	}
	defer s.cycleMu.Unlock()
	if ctx.Err() != nil {
		return
	}

	cfg := s.config()
	started := time.Now()
	metrics.CyclesTotal.Inc()
	defer func() { metrics.CycleDuration.Observe(time.Since(started).Seconds()) }()

	payloads, err := s.fetcher.FetchPending(ctx)
	if err != nil {
		metrics.CycleFailures.WithLabelValues("fetch").Inc()
		s.log.Error().Err(err).Msg("fetch failed")
		return
	}
	if len(payloads) == 0 {
		s.log.Debug().Msg("no pending notifications")
		return
	}
	metrics.FetchedTotal.Add(float64(len(payloads)))
	s.log.Info().Int("count", len(payloads)).Msg("notifications fetched")

	saved, err := s.store.SaveBatch(ctx, payloads)
	if err != nil {
		metrics.CycleFailures.WithLabelValues("save").Inc()
		s.log.Error().Err(err).Msg("persist failed, continuing cycle")
	} else {
		metrics.SavedTotal.Add(float64(len(saved)))
		if d := len(payloads) - len(saved); d > 0 {
			metrics.DuplicatesTotal.Add(float64(d))
		}
	}

	if !cfg.Deliver {
		return
	}

	var messages []string
	if cfg.DeliverMode == DeliverPersisted {
		messages = make([]string, 0, len(saved))
		for _, n := range saved {
			messages = append(messages, RenderNotification(n))
		}
	} else {
		messages = make([]string, 0, len(payloads))
		for _, p := range payloads {
			messages = append(messages, RenderPayload(p))
		}
	}
	s.deliver(ctx, messages)
}

func (s *Service) deliver(ctx context.Context, messages []string) {
	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		for _, sink := range s.sinks {
			ok := sink.Send(ctx, msg)
			metrics.RecordDelivery(sink.Name(), ok)
			if !ok {
				s.log.Warn().Str("sink", sink.Name()).Msg("delivery failed")
			}
		}
	}
}

func (s *Service) runRetention(ctx context.Context) {
	cfg := s.config()
	if !cfg.Retention.Enabled || cfg.Retention.Days <= 0 {
		return
	}
	n, err := s.store.DeleteOlderThan(ctx, cfg.Retention.Days)
	if err != nil {
		metrics.CycleFailures.WithLabelValues("retention").Inc()
		s.log.Error().Err(err).Msg("retention purge failed")
		return
	}
	metrics.PurgedTotal.Add(float64(n))
	s.log.Info().Int64("purged", n).Int("days", cfg.Retention.Days).Msg("retention purge completed")
}
