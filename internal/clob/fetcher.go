package clob

import (
	"context"

	"github.com/rs/zerolog"
)

// notificationAPI is the narrow client capability the fetcher needs:
// fetch the queue, acknowledge by id. Kept as an interface so tests can
// substitute a fake without a live CLOB session.
type notificationAPI interface {
	Notifications(ctx context.Context) ([]Notification, error)
	DropNotifications(ctx context.Context, ids []string) error
}

// Fetcher drains the upstream notification queue. One call fetches
// everything pending, acknowledges it server-side, and hands back just the
// payloads.
type Fetcher struct {
	api notificationAPI
	log zerolog.Logger
}

func NewFetcher(c *Client, log zerolog.Logger) *Fetcher {
	return &Fetcher{api: c, log: log}
}

// FetchPending returns the payloads of all queued notifications, after
// acknowledging them upstream.
//
// If the acknowledgment fails the payloads are still returned: the source
// already surfaced them and the store dedups on re-fetch, so losing the
// ack only risks redelivery, never data loss. A fetch error propagates and
// aborts the caller's cycle.
func (f *Fetcher) FetchPending(ctx context.Context) ([]map[string]any, error) {
	notis, err := f.api.Notifications(ctx)
	if err != nil {
		return nil, err
	}
	if len(notis) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(notis))
	for _, n := range notis {
		ids = append(ids, string(n.ID))
	}
	if err := f.api.DropNotifications(ctx, ids); err != nil {
		f.log.Warn().Err(err).Int("count", len(ids)).
			Msg("notification drop failed; upstream may redeliver next cycle")
	}

	payloads := make([]map[string]any, 0, len(notis))
	for _, n := range notis {
		payloads = append(payloads, n.Payload)
	}
	return payloads, nil
}
