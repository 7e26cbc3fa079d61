package clob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testCreds() Credentials {
	return Credentials{
		PrivateKey:    "0xdeadbeef",
		SignatureType: 1,
		ProxyAddress:  "0xproxy",
		APIKey:        "key-1",
		APISecret:     base64.URLEncoding.EncodeToString([]byte("super-secret")),
		APIPassphrase: "pass-1",
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(srv.URL, testCreds(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRequiresPrivateKey(t *testing.T) {
	t.Parallel()
	if _, err := NewClient("", Credentials{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error without private key")
	}
}

func TestOk(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	if err := newTestClient(t, srv).Ok(context.Background()); err != nil {
		t.Fatalf("Ok: %v", err)
	}
}

func TestServerTime(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("1700000000"))
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv).ServerTime(context.Background())
	if err != nil {
		t.Fatalf("ServerTime: %v", err)
	}
	if want := time.Unix(1700000000, 0).UTC(); !got.Equal(want) {
		t.Fatalf("ServerTime = %v, want %v", got, want)
	}
}

func TestNotificationsSendsAuthHeaders(t *testing.T) {
	t.Parallel()
	fixed := time.Unix(1699999999, 0)

	var gotHeaders http.Header
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[{"id": 17, "payload": {"question": "Will it rain?", "price": 0.42}}]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.now = func() time.Time { return fixed }

	notis, err := c.Notifications(context.Background())
	if err != nil {
		t.Fatalf("Notifications: %v", err)
	}
	if len(notis) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notis))
	}
	// Numeric id decodes to its string form.
	if notis[0].ID != "17" {
		t.Fatalf("id = %q, want \"17\"", notis[0].ID)
	}
	if notis[0].Payload["question"] != "Will it rain?" {
		t.Fatalf("payload = %v", notis[0].Payload)
	}
	if gotQuery != "signature_type=1" {
		t.Fatalf("query = %q", gotQuery)
	}

	if got := gotHeaders.Get("POLY_ADDRESS"); got != "0xproxy" {
		t.Fatalf("POLY_ADDRESS = %q", got)
	}
	if got := gotHeaders.Get("POLY_API_KEY"); got != "key-1" {
		t.Fatalf("POLY_API_KEY = %q", got)
	}
	if got := gotHeaders.Get("POLY_PASSPHRASE"); got != "pass-1" {
		t.Fatalf("POLY_PASSPHRASE = %q", got)
	}
	if got := gotHeaders.Get("POLY_TIMESTAMP"); got != "1699999999" {
		t.Fatalf("POLY_TIMESTAMP = %q", got)
	}

	// The signature must be HMAC-SHA256(secret, ts+method+path).
	mac := hmac.New(sha256.New, []byte("super-secret"))
	mac.Write([]byte("1699999999GET/notifications"))
	want := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	if got := gotHeaders.Get("POLY_SIGNATURE"); got != want {
		t.Fatalf("POLY_SIGNATURE = %q, want %q", got, want)
	}
}

func TestNotificationsRequiresAPICredentials(t *testing.T) {
	t.Parallel()
	creds := testCreds()
	creds.APISecret = ""
	c, err := NewClient("http://127.0.0.1:0", creds, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Notifications(context.Background()); err == nil {
		t.Fatal("expected error without api credentials")
	}
}

func TestDropNotifications(t *testing.T) {
	t.Parallel()
	var gotMethod, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.Query().Get("ids")
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.DropNotifications(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatalf("DropNotifications: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Fatalf("method = %q, want DELETE", gotMethod)
	}
	if gotQuery != "a,b,c" {
		t.Fatalf("ids = %q, want \"a,b,c\"", gotQuery)
	}
}

func TestDropNotificationsEmptyList(t *testing.T) {
	t.Parallel()
	c, err := NewClient("http://127.0.0.1:0", testCreds(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.DropNotifications(context.Background(), nil); err != ErrEmptyDropList {
		t.Fatalf("error = %v, want ErrEmptyDropList", err)
	}
}

func TestNotificationsErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv).Notifications(context.Background()); err == nil {
		t.Fatal("expected error on 401")
	}
}
