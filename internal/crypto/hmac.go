// Package crypto provides request signing and secret-key management for the
// marketplace API. Signing is a pure function of the request and a clock, so
// tests can pin the timestamp.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Request signing headers expected by the marketplace API.
const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderSignature = "X-Request-Sign"
	HeaderTimestamp = "X-Sign-Date"
)

// Credential is the marketplace API keypair. It is owned by the signer,
// never logged and never written to any cache.
type Credential struct {
	PublicKey string
	SecretKey string
}

// IsZero reports whether no credential is configured (anonymous scope).
func (c Credential) IsZero() bool {
	return c.PublicKey == "" && c.SecretKey == ""
}

// Signer produces the authentication headers for marketplace requests.
// The signature is HMAC-SHA256 over the canonical string
//
//	timestamp + method + path[?query] + body
//
// hex-encoded. path must already carry the encoded query string when one is
// present, exactly as it will appear on the wire.
type Signer struct {
	cred Credential
	now  func() time.Time
}

// NewSigner creates a Signer for the given credential using the wall clock.
func NewSigner(cred Credential) *Signer {
	return &Signer{cred: cred, now: time.Now}
}

// NewSignerAt creates a Signer with an injected clock for deterministic tests.
func NewSignerAt(cred Credential, now func() time.Time) *Signer {
	return &Signer{cred: cred, now: now}
}

// Headers returns the three authentication headers for a request.
func (s *Signer) Headers(method, pathWithQuery, body string) map[string]string {
	return s.HeadersAt(method, pathWithQuery, body, s.now().Unix())
}

// HeadersAt is like Headers but takes an explicit Unix timestamp.
func (s *Signer) HeadersAt(method, pathWithQuery, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	message := ts + method + pathWithQuery + body

	mac := hmac.New(sha256.New, []byte(s.cred.SecretKey))
	mac.Write([]byte(message))
	sig := hex.EncodeToString(mac.Sum(nil))

	return map[string]string{
		HeaderAPIKey:    s.cred.PublicKey,
		HeaderTimestamp: ts,
		HeaderSignature: sig,
	}
}
