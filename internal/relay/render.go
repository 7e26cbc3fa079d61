package relay

import (
	"fmt"

	"polynotify/internal/store"
)

// Messages are a fixed three-line-ish shape: the market question on its
// own line, then side, matched size and price. Missing fields render as
// empty rather than being dropped, so every message has the same layout.
const messageFormat = "%s\nSide:%s Matched Size:%s At Price:%s"

// RenderPayload formats a raw upstream payload for delivery.
func RenderPayload(p map[string]any) string {
	return fmt.Sprintf(messageFormat,
		store.PayloadField(p, "question"),
		store.PayloadField(p, "side"),
		store.PayloadField(p, "matched_size"),
		store.PayloadField(p, "price"),
	)
}

// RenderNotification formats a persisted document for delivery.
func RenderNotification(n store.Notification) string {
	return fmt.Sprintf(messageFormat, n.Question, n.Side, n.MatchedSize, n.Price)
}
