// Package dedup suppresses duplicate captures of the same logical tracking
// call. The same request is frequently observed through more than one
// interception channel and would otherwise be double-counted.
package dedup

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Fixed constants; they affect verdict reproducibility and must not change
// without a documented rationale.
const (
	BucketWidth = 500 * time.Millisecond
	KeyTTL      = 5 * time.Second
	baseURLMax  = 96
)

// Filter is a short-window duplicate suppressor. The dedup key combines a
// truncated base URL, the extracted event name and a coarse time bucket.
// The first occurrence of a key is kept; identical keys are suppressed
// until the key expires, after which a repeated event is accepted as new.
type Filter struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	bucket time.Duration
	now    func() time.Time
}

// New returns a filter with the default window constants.
func New() *Filter {
	return &Filter{
		seen:   make(map[string]time.Time),
		ttl:    KeyTTL,
		bucket: BucketWidth,
		now:    time.Now,
	}
}

// Accept reports whether an event with the given base URL and event name
// is the first of its kind within the active window.
func (f *Filter) Accept(rawURL, eventName string) bool {
	now := f.now()
	key := Key(rawURL, eventName, now.UnixMilli()/f.bucket.Milliseconds())

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sweep(now)
	if _, ok := f.seen[key]; ok {
		return false
	}
	f.seen[key] = now.Add(f.ttl)
	return true
}

// sweep drops expired keys. Called under the lock on every Accept; the map
// stays small because keys live for a few seconds at most.
func (f *Filter) sweep(now time.Time) {
	for k, exp := range f.seen {
		if now.After(exp) {
			delete(f.seen, k)
		}
	}
}

// Key builds the dedup key for a capture. Exported for tests and for
// consumers that need to reason about collapse behaviour.
func Key(rawURL, eventName string, bucket int64) string {
	return BaseURL(rawURL) + "|" + eventName + "|" + strconv.FormatInt(bucket, 10)
}

// BaseURL truncates a request URL to scheme+host+path, capped at a fixed
// prefix length, so query-string noise does not defeat deduplication.
func BaseURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if len(raw) > baseURLMax {
		raw = raw[:baseURLMax]
	}
	return raw
}
