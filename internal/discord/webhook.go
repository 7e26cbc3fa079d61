// Package discord posts messages to a Discord channel through an incoming
// webhook. Each call is independently retried on transport failures and
// server-busy statuses; a failure reduces to a false return, never an
// error, so a broken webhook can't take down the pipeline.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"polynotify/pkg/backoff"
)

const (
	defaultTimeout    = 3 * time.Second
	defaultMaxRetries = 3
	backoffFactor     = 500 * time.Millisecond
)

type Config struct {
	WebhookURL string
	Username   string
	Timeout    time.Duration // per-request deadline, default 3s
	MaxRetries int           // attempts per message, default 3
	RatePerSec int           // 0 disables the limiter
}

// Notifier is safe to reuse across many sequential sends; it keeps no
// state besides the pooled HTTP connections and the rate limiter.
type Notifier struct {
	url        string
	username   string
	httpc      *http.Client
	limiter    *rate.Limiter
	maxRetries int
	log        zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, log zerolog.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil, errors.New("discord: webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	n := &Notifier{
		url:        cfg.WebhookURL,
		username:   cfg.Username,
		httpc:      &http.Client{Timeout: timeout},
		maxRetries: retries,
		log:        log,
		sleep:      backoff.Sleep,
	}
	if cfg.RatePerSec > 0 {
		n.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return n, nil
}

func (n *Notifier) Name() string { return "discord" }

// Send posts one message. True only when Discord accepted it (200 or 204).
// An empty message short-circuits to false without a network call.
func (n *Notifier) Send(ctx context.Context, message string) bool {
	if message == "" {
		return false
	}
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return false
		}
	}

	body, err := json.Marshal(map[string]string{
		"content":  message,
		"username": n.username,
	})
	if err != nil {
		return false
	}

	for attempt := 0; attempt < n.maxRetries; attempt++ {
		if attempt > 0 {
			// 0.5s factor doubling per attempt, unless the server asked
			// for a specific pause.
			if err := n.sleep(ctx, backoffFactor<<(attempt-1)); err != nil {
				return false
			}
		}

		ok, retryAfter, retryable := n.post(ctx, body)
		if ok {
			return true
		}
		if !retryable {
			return false
		}
		if retryAfter > 0 {
			if err := n.sleep(ctx, retryAfter); err != nil {
				return false
			}
		}
	}
	n.log.Warn().Int("attempts", n.maxRetries).Msg("discord delivery failed")
	return false
}

// post performs one webhook call. Returns (accepted, server-requested
// delay, whether another attempt is worthwhile).
func (n *Notifier) post(ctx context.Context, body []byte) (ok bool, retryAfter time.Duration, retryable bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return false, 0, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpc.Do(req)
	if err != nil {
		// Timeouts and connection failures are worth retrying.
		n.log.Debug().Err(err).Msg("discord request failed")
		return false, 0, true
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<14))
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, 0, false
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return false, parseRetryAfter(resp.Header.Get("Retry-After")), true
	default:
		n.log.Warn().Int("status", resp.StatusCode).Msg("discord rejected message")
		return false, 0, false
	}
}

// parseRetryAfter understands the delay-seconds form (Discord also sends
// fractional seconds).
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}
