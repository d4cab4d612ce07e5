package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// entry is one time-boxed payload in the local tier.
type entry struct {
	payload   []byte
	expiresAt time.Time
}

// Local is the process-local cache tier: a TTL map with lazy expiry on read
// and an optional proactive sweep. The clock is injectable so tests can move
// time without sleeping.
type Local struct {
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

// NewLocal creates an empty local tier using the wall clock.
func NewLocal() *Local {
	return NewLocalWithClock(time.Now)
}

// NewLocalWithClock creates a local tier with an injected clock.
func NewLocalWithClock(now func() time.Time) *Local {
	return &Local{
		now:     now,
		entries: make(map[string]entry),
	}
}

// Get returns the payload for key and whether it is present and fresh.
// Expired entries are removed on the way out.
func (l *Local) Get(key string) ([]byte, bool) {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if l.now().After(e.expiresAt) {
		l.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have renewed it.
		if cur, ok := l.entries[key]; ok && l.now().After(cur.expiresAt) {
			delete(l.entries, key)
		}
		l.mu.Unlock()
		return nil, false
	}
	return e.payload, true
}

// Set stores payload under key for the given TTL.
func (l *Local) Set(key string, payload []byte, ttl time.Duration) {
	l.mu.Lock()
	l.entries[key] = entry{payload: payload, expiresAt: l.now().Add(ttl)}
	l.mu.Unlock()
}

// Delete removes a single key.
func (l *Local) Delete(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// DeletePrefix removes every key under the given prefix.
func (l *Local) DeletePrefix(prefix string) {
	l.mu.Lock()
	for k := range l.entries {
		if strings.HasPrefix(k, prefix) {
			delete(l.entries, k)
		}
	}
	l.mu.Unlock()
}

// Len returns the number of entries currently held, expired or not.
func (l *Local) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// sweep drops every expired entry.
func (l *Local) sweep() {
	now := l.now()
	l.mu.Lock()
	for k, e := range l.entries {
		if now.After(e.expiresAt) {
			delete(l.entries, k)
		}
	}
	l.mu.Unlock()
}

// StartSweeper runs a proactive expiry sweep every interval until ctx is
// done. Lazy expiry on read keeps results correct without it; the sweeper
// only bounds memory between reads.
func (l *Local) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}
