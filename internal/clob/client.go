// Package clob talks to the Polymarket CLOB REST API. The Client covers
// the primitive calls (health probe, server time, notification fetch/drop);
// Fetcher composes them into the fetch-and-acknowledge operation the relay
// pipeline consumes.
package clob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultHost is the production CLOB endpoint.
	DefaultHost = "https://clob.polymarket.com"
	// ChainID is Polygon mainnet; the CLOB only trades there.
	ChainID = 137
)

// ErrEmptyDropList marks a drop request with no ids. The fetcher never
// issues one; hitting this error means a caller broke the contract.
var ErrEmptyDropList = errors.New("clob: drop requires at least one notification id")

// Credentials carries what the client needs to authenticate.
//
// PrivateKey is the L1 signing key the account is bound to and is required.
// The L2 API credentials (key/secret/passphrase) sign individual requests;
// SignatureType and ProxyAddress describe how the account's funds are held
// (EOA, email/magic proxy, or gnosis safe).
type Credentials struct {
	PrivateKey    string
	SignatureType int
	ProxyAddress  string

	APIKey        string
	APISecret     string
	APIPassphrase string
}

type Client struct {
	host  string
	creds Credentials
	httpc *http.Client
	log   zerolog.Logger

	now func() time.Time
}

func NewClient(host string, creds Credentials, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(creds.PrivateKey) == "" {
		return nil, errors.New("clob: private key is required")
	}
	if host == "" {
		host = DefaultHost
	}
	return &Client{
		host:  strings.TrimRight(host, "/"),
		creds: creds,
		httpc: &http.Client{Timeout: 10 * time.Second},
		log:   log,
		now:   time.Now,
	}, nil
}

// Ok probes the API root. The server answers with a bare "OK".
func (c *Client) Ok(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("clob: health probe: %w", err)
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clob: health probe: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// ServerTime returns the CLOB server clock (unix seconds).
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/time", nil)
	if err != nil {
		return time.Time{}, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("clob: server time: %w", err)
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("clob: server time: unexpected status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("clob: server time: parse %q: %w", string(b), err)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// Notification is one queued upstream event. ID is the source-assigned
// identifier used for acknowledgment; Payload carries the market fields
// (question, side, price, matched_size, ...).
type Notification struct {
	ID      ID             `json:"id"`
	Type    int            `json:"type,omitempty"`
	Owner   string         `json:"owner,omitempty"`
	Payload map[string]any `json:"payload"`
}

// ID tolerates both string and numeric JSON ids.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("notification id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Notifications fetches everything currently queued for the account.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	q := url.Values{"signature_type": {strconv.Itoa(c.creds.SignatureType)}}
	req, err := c.signedRequest(ctx, http.MethodGet, "/notifications", q)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clob: fetch notifications: %w", err)
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clob: fetch notifications: unexpected status %d", resp.StatusCode)
	}
	var out []Notification
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("clob: fetch notifications: decode: %w", err)
	}
	return out, nil
}

// DropNotifications acknowledges the given ids upstream so they are not
// redelivered on the next fetch.
func (c *Client) DropNotifications(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return ErrEmptyDropList
	}
	q := url.Values{"ids": {strings.Join(ids, ",")}}
	req, err := c.signedRequest(ctx, http.MethodDelete, "/notifications", q)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("clob: drop notifications: %w", err)
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clob: drop notifications: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) signedRequest(ctx context.Context, method, path string, q url.Values) (*http.Request, error) {
	u := c.host + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	if err := c.applyL2Headers(req, method, path); err != nil {
		return nil, err
	}
	return req, nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	_ = body.Close()
}
