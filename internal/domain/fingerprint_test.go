package domain

import (
	"net/url"
	"testing"
)

func TestNewFingerprint(t *testing.T) {
	t.Run("normalizes method and path case", func(t *testing.T) {
		a := NewFingerprint("get", "/Exchange/V1/Market/Items", nil)
		b := NewFingerprint("GET", "/exchange/v1/market/items", nil)
		if a != b {
			t.Errorf("fingerprints differ: %q vs %q", a, b)
		}
	})

	t.Run("query order independent", func(t *testing.T) {
		q1 := url.Values{}
		q1.Set("gameId", "csgo")
		q1.Set("limit", "100")
		q1.Set("orderBy", "price")

		q2 := url.Values{}
		q2.Set("orderBy", "price")
		q2.Set("limit", "100")
		q2.Set("gameId", "csgo")

		a := NewFingerprint("GET", "/exchange/v1/market/items", q1)
		b := NewFingerprint("GET", "/exchange/v1/market/items", q2)
		if a != b {
			t.Errorf("fingerprints differ: %q vs %q", a, b)
		}
	})

	t.Run("multi-value keys sorted", func(t *testing.T) {
		q1 := url.Values{"tier": {"covert", "classified"}}
		q2 := url.Values{"tier": {"classified", "covert"}}

		a := NewFingerprint("GET", "/items", q1)
		b := NewFingerprint("GET", "/items", q2)
		if a != b {
			t.Errorf("fingerprints differ: %q vs %q", a, b)
		}
	})

	t.Run("different queries differ", func(t *testing.T) {
		q1 := url.Values{"gameId": {"csgo"}}
		q2 := url.Values{"gameId": {"rust"}}

		a := NewFingerprint("GET", "/items", q1)
		b := NewFingerprint("GET", "/items", q2)
		if a == b {
			t.Errorf("distinct queries produced the same fingerprint %q", a)
		}
	})

	t.Run("empty query omitted", func(t *testing.T) {
		fp := NewFingerprint("GET", "/items", url.Values{})
		if got, want := fp.String(), "GET /items"; got != want {
			t.Errorf("fingerprint = %q, want %q", got, want)
		}
	})

	t.Run("prefix match", func(t *testing.T) {
		fp := NewFingerprint("GET", "/exchange/v1/customized-fees", url.Values{"gameId": {"csgo"}})
		prefix := NewFingerprint("GET", "/exchange/v1/customized-fees", nil)
		if !fp.HasPrefix(prefix.String()) {
			t.Errorf("%q should have prefix %q", fp, prefix)
		}
	})
}
