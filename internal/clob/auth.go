package clob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
)

// L2 ("API key") auth headers. Every authenticated request carries the
// account address, the API key and passphrase, a unix-seconds timestamp,
// and an HMAC signature over timestamp+method+path.
const (
	headerAddress    = "POLY_ADDRESS"
	headerSignature  = "POLY_SIGNATURE"
	headerTimestamp  = "POLY_TIMESTAMP"
	headerAPIKey     = "POLY_API_KEY"
	headerPassphrase = "POLY_PASSPHRASE"
)

func (c *Client) applyL2Headers(req *http.Request, method, path string) error {
	if c.creds.APIKey == "" || c.creds.APISecret == "" || c.creds.APIPassphrase == "" {
		return errors.New("clob: api credentials (key/secret/passphrase) are required for authenticated calls")
	}
	ts := strconv.FormatInt(c.now().Unix(), 10)
	sig, err := hmacSignature(c.creds.APISecret, ts, method, path)
	if err != nil {
		return err
	}
	req.Header.Set(headerAddress, c.creds.ProxyAddress)
	req.Header.Set(headerSignature, sig)
	req.Header.Set(headerTimestamp, ts)
	req.Header.Set(headerAPIKey, c.creds.APIKey)
	req.Header.Set(headerPassphrase, c.creds.APIPassphrase)
	return nil
}

// hmacSignature builds the url-safe base64 HMAC-SHA256 the CLOB expects:
// the secret is url-safe base64, the message is timestamp+method+path.
func hmacSignature(secret, timestamp, method, path string) (string, error) {
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		return "", errors.New("clob: api secret is not valid base64")
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp + method + path))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
