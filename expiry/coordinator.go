// Package expiry tracks time-to-live deadlines for cache entries written by
// this process, so expired entries read as absent even before the store
// evicts them. State is process-local and advisory: an entry with no known
// deadline is trusted as the store reports it.
package expiry

import (
	"context"
	"sync"
	"time"
)

type entryKey struct {
	key   string
	field string
}

// Coordinator maps (key, field) to an absolute deadline. Bucket entries use
// the empty field.
type Coordinator struct {
	mu        sync.Mutex
	deadlines map[entryKey]time.Time
	now       func() time.Time
}

// New creates a Coordinator reading time from now, or time.Now when nil.
func New(now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{deadlines: make(map[entryKey]time.Time), now: now}
}

// Register records a deadline of now+ttl and returns it.
func (c *Coordinator) Register(key, field string, ttl time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.now().Add(ttl)
	c.deadlines[entryKey{key, field}] = d
	return d
}

func (c *Coordinator) Forget(key, field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deadlines, entryKey{key, field})
}

// ForgetKey drops the deadlines of every field of key.
func (c *Coordinator) ForgetKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.deadlines {
		if k.key == key {
			delete(c.deadlines, k)
		}
	}
}

// Expired reports whether a tracked deadline for the entry has passed. The
// deadline stays tracked until it is forgotten, so the entry keeps reading
// as absent until the store has confirmed its removal.
func (c *Coordinator) Expired(key, field string) bool {
	_, ok := c.PassedDeadline(key, field)
	return ok
}

// PassedDeadline returns the tracked deadline when it has passed.
func (c *Coordinator) PassedDeadline(key, field string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.deadlines[entryKey{key, field}]
	if !ok || c.now().Before(d) {
		return time.Time{}, false
	}
	return d, true
}

// ForgetIf drops the entry only while its deadline is still d, so a
// deadline registered by a newer write survives.
func (c *Coordinator) ForgetIf(key, field string, d time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := entryKey{key, field}
	if cur, ok := c.deadlines[k]; ok && cur.Equal(d) {
		delete(c.deadlines, k)
		return true
	}
	return false
}

// Deadline returns the tracked deadline, if any.
func (c *Coordinator) Deadline(key, field string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.deadlines[entryKey{key, field}]
	return d, ok
}

func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deadlines)
}

// Entry is a tracked deadline. Bucket entries have an empty Field.
type Entry struct {
	Key      string
	Field    string
	Deadline time.Time
}

// Passed lists the entries whose deadline has passed. They stay tracked.
func (c *Coordinator) Passed() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var out []Entry
	for k, d := range c.deadlines {
		if !now.Before(d) {
			out = append(out, Entry{Key: k.key, Field: k.field, Deadline: d})
		}
	}
	return out
}

// Run hands every passed entry to evict each interval until ctx is done.
// evict is expected to remove the entry from the store and then ForgetIf
// it; nothing is forgotten here.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration, evict func(Entry)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, e := range c.Passed() {
				evict(e)
			}
		}
	}
}
