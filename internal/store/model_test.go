package store

import (
	"testing"
	"time"
)

func TestPrepareBatchPromotesKnownFields(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	docs := prepareBatch([]map[string]any{{
		"notification_id": "n-1",
		"question":        "Will X happen?",
		"side":            "BUY",
		"price":           0.42,
		"matched_size":    100.5,
		"market_slug":     "will-x-happen",
	}}, "derived", now)

	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}
	d := docs[0]
	if d.NotificationID != "n-1" {
		t.Fatalf("notification id = %q, want the payload's own id", d.NotificationID)
	}
	if d.Question != "Will X happen?" || d.Side != "BUY" {
		t.Fatalf("promoted fields = %+v", d)
	}
	if d.Price != "0.42" || d.MatchedSize != "100.5" {
		t.Fatalf("numeric fields = price %q size %q", d.Price, d.MatchedSize)
	}
	if d.Extra["market_slug"] != "will-x-happen" {
		t.Fatalf("extra = %v, want unpromoted fields preserved", d.Extra)
	}
	if _, ok := d.Extra["question"]; ok {
		t.Fatal("promoted field leaked into extra")
	}
	if !d.CreatedAt.Equal(now) || !d.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps = %v / %v, want %v", d.CreatedAt, d.UpdatedAt, now)
	}
}

func TestDerivedKeyIsDeterministic(t *testing.T) {
	t.Parallel()
	p := map[string]any{"question": "q", "side": "SELL", "price": 0.5, "matched_size": 10}
	// Same fields, different map construction order.
	q := map[string]any{"matched_size": 10, "price": 0.5, "side": "SELL", "question": "q"}

	k1 := assignKey(p, "derived")
	k2 := assignKey(q, "derived")
	if k1 != k2 {
		t.Fatalf("derived keys differ: %q vs %q", k1, k2)
	}
	if len(k1) != 64 {
		t.Fatalf("derived key %q is not a sha256 hex digest", k1)
	}

	q["price"] = 0.6
	if assignKey(q, "derived") == k1 {
		t.Fatal("changing a field must change the derived key")
	}
}

func TestAssignKeyPrefersPayloadID(t *testing.T) {
	t.Parallel()
	p := map[string]any{"notification_id": "given", "question": "q"}
	if got := assignKey(p, "derived"); got != "given" {
		t.Fatalf("key = %q, want the payload id", got)
	}
	if got := assignKey(p, "random"); got != "given" {
		t.Fatalf("key = %q, want the payload id even under random strategy", got)
	}
}

func TestAssignKeyRandomStrategy(t *testing.T) {
	t.Parallel()
	p := map[string]any{"question": "q"}
	k1 := assignKey(p, "random")
	k2 := assignKey(p, "random")
	if k1 == "" || k1 == k2 {
		t.Fatalf("random keys should be fresh UUIDs, got %q and %q", k1, k2)
	}
}

func TestAssignKeyFallsBackToUUIDWhenNothingStable(t *testing.T) {
	t.Parallel()
	p := map[string]any{"question": ""}
	k1 := assignKey(p, "derived")
	k2 := assignKey(p, "derived")
	if k1 == "" || k1 == k2 {
		t.Fatalf("empty payloads must get unique keys, got %q and %q", k1, k2)
	}
}

func TestPayloadField(t *testing.T) {
	t.Parallel()
	p := map[string]any{
		"s": "text",
		"f": 0.420000,
		"i": 7,
		"b": true,
		"n": nil,
	}
	tests := []struct {
		key  string
		want string
	}{
		{"s", "text"},
		{"f", "0.42"},
		{"i", "7"},
		{"b", "true"},
		{"n", ""},
		{"missing", ""},
	}
	for _, tt := range tests {
		if got := PayloadField(p, tt.key); got != tt.want {
			t.Fatalf("PayloadField(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
