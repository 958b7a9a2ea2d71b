// Package ratelimit implements the fixed-window login attempt limiter.
package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/walletgate/internal/common"
)

// defaultPruneThreshold is the map size past which expired records are
// dropped opportunistically on Take.
const defaultPruneThreshold = 10000

// Error is returned when a key has exhausted its window.
type Error struct {
	Key        string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: key %q, retry after %s", common.ErrRateLimited, e.Key, e.RetryAfter)
}

func (e *Error) Unwrap() error { return common.ErrRateLimited }

type record struct {
	count       int
	windowStart time.Time
}

// Limiter allows at most maxAttempts attempts per key within a fixed window.
// Keys are compared case-insensitively. Safe for concurrent use.
type Limiter struct {
	mu             sync.Mutex
	records        map[string]*record
	maxAttempts    int
	window         time.Duration
	now            func() time.Time
	pruneThreshold int
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithPruneThreshold(n int) Option {
	return func(l *Limiter) { l.pruneThreshold = n }
}

func New(maxAttempts int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		records:        make(map[string]*record),
		maxAttempts:    maxAttempts,
		window:         window,
		now:            time.Now,
		pruneThreshold: defaultPruneThreshold,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Check reports whether another attempt for key would be allowed. It does
// not count as an attempt.
func (l *Limiter) Check(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.check(normalize(key), l.now())
}

// Record counts one attempt for key.
func (l *Limiter) Record(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.record(normalize(key), l.now())
}

// Take checks and records in one step: the attempt is counted only when it
// is allowed.
func (l *Limiter) Take(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key = normalize(key)
	now := l.now()
	if err := l.check(key, now); err != nil {
		return err
	}
	l.record(key, now)

	if len(l.records) > l.pruneThreshold {
		l.prune(now)
	}
	return nil
}

// Reset drops the given keys, or every key when called without arguments.
func (l *Limiter) Reset(keys ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(keys) == 0 {
		l.records = make(map[string]*record)
		return
	}
	for _, k := range keys {
		delete(l.records, normalize(k))
	}
}

// Prune drops records whose window has ended and returns how many were
// removed.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.prune(l.now())
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.records)
}

func (l *Limiter) check(key string, now time.Time) error {
	r, ok := l.records[key]
	if !ok || l.expired(r, now) {
		return nil
	}
	if r.count >= l.maxAttempts {
		return &Error{Key: key, RetryAfter: r.windowStart.Add(l.window).Sub(now)}
	}
	return nil
}

func (l *Limiter) record(key string, now time.Time) {
	r, ok := l.records[key]
	if !ok || l.expired(r, now) {
		l.records[key] = &record{count: 1, windowStart: now}
		return
	}
	r.count++
}

func (l *Limiter) prune(now time.Time) int {
	n := 0
	for k, r := range l.records {
		if l.expired(r, now) {
			delete(l.records, k)
			n++
		}
	}
	return n
}

func (l *Limiter) expired(r *record, now time.Time) bool {
	return !now.Before(r.windowStart.Add(l.window))
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
