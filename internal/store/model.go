package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Payload fields promoted to first-class columns. Everything else lands in
// Extra untouched.
const (
	fieldNotificationID = "notification_id"
	fieldQuestion       = "question"
	fieldSide           = "side"
	fieldPrice          = "price"
	fieldMatchedSize    = "matched_size"
)

// prepareBatch converts raw payloads into documents ready to insert:
// UTC timestamps, a notification_id per document, known fields promoted.
func prepareBatch(payloads []map[string]any, strategy string, now time.Time) []Notification {
	now = now.UTC()
	docs := make([]Notification, 0, len(payloads))
	for _, p := range payloads {
		n := Notification{
			Question:    PayloadField(p, fieldQuestion),
			Side:        PayloadField(p, fieldSide),
			Price:       PayloadField(p, fieldPrice),
			MatchedSize: PayloadField(p, fieldMatchedSize),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		n.NotificationID = assignKey(p, strategy)
		for k, v := range p {
			switch k {
			case fieldNotificationID, fieldQuestion, fieldSide, fieldPrice, fieldMatchedSize:
			default:
				if n.Extra == nil {
					n.Extra = map[string]any{}
				}
				n.Extra[k] = v
			}
		}
		docs = append(docs, n)
	}
	return docs
}

// assignKey returns the payload's own notification_id when present.
// Otherwise the derived strategy hashes the stable payload fields, so a
// re-fetch of the same fill produces the same key and dedups at the store;
// the random strategy (and the fallback when no stable fields exist)
// generates a UUID, which can never collide with a re-fetch.
func assignKey(p map[string]any, strategy string) string {
	if id := PayloadField(p, fieldNotificationID); id != "" {
		return id
	}
	if strategy == "derived" {
		if key := derivedKey(p); key != "" {
			return key
		}
	}
	return uuid.NewString()
}

// derivedKey hashes the payload fields that identify a fill. Returns ""
// when none are present (nothing stable to hash).
func derivedKey(p map[string]any) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	nonEmpty := false
	for _, k := range keys {
		v := PayloadField(p, k)
		if v == "" {
			continue
		}
		nonEmpty = true
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('|')
	}
	if !nonEmpty {
		return ""
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// PayloadField renders a payload value as text. Numbers are formatted
// without a trailing ".000000" so prices read naturally. Shared with the
// relay's message rendering so stored and delivered values agree.
func PayloadField(p map[string]any, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
