// Package window implements sliding-time-window event counters keyed by
// (subject, event kind). State is memory-resident only: a process restart
// empties every window. That gap is accepted; persistence of detection
// windows is an extension, not a correctness requirement.
package window

import (
	"sync"
	"time"

	"go-guardian/internal/models"
	"go-guardian/pkg/util"
)

const shardCount = 64

type entryKey struct {
	subject models.Subject
	kind    models.EventKind
}

type shard struct {
	mu      sync.Mutex
	entries map[entryKey][]time.Time
}

// Counter tracks ordered timestamps per (subject, kind). Entries older than
// the window are purged lazily on each access. Calls for the same subject
// serialize on one shard lock; distinct subjects spread across shards and
// proceed independently.
type Counter struct {
	shards [shardCount]*shard
}

func NewCounter() *Counter {
	c := &Counter{}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[entryKey][]time.Time)}
	}
	return c
}

func (c *Counter) shardFor(sub models.Subject) *shard {
	return c.shards[util.HashU64(sub.GuildID^util.HashU64(sub.UserID))&(shardCount-1)]
}

// Record appends a timestamp for (subject, kind).
func (c *Counter) Record(sub models.Subject, kind models.EventKind, at time.Time) {
	s := c.shardFor(sub)
	key := entryKey{subject: sub, kind: kind}

	s.mu.Lock()
	s.entries[key] = append(s.entries[key], at)
	s.mu.Unlock()
}

// Count returns how many recorded timestamps fall within window of at,
// purging anything older as a side effect.
func (c *Counter) Count(sub models.Subject, kind models.EventKind, at time.Time, window time.Duration) int {
	s := c.shardFor(sub)
	key := entryKey{subject: sub, kind: kind}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(key, at, window)
}

// RecordAndCount is Record followed by Count under a single lock
// acquisition, so concurrent increments for one subject never lose updates.
func (c *Counter) RecordAndCount(sub models.Subject, kind models.EventKind, at time.Time, window time.Duration) int {
	s := c.shardFor(sub)
	key := entryKey{subject: sub, kind: kind}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append(s.entries[key], at)
	return s.purgeLocked(key, at, window)
}

// ResetKind drops a single window for the subject.
func (c *Counter) ResetKind(sub models.Subject, kind models.EventKind) {
	s := c.shardFor(sub)

	s.mu.Lock()
	delete(s.entries, entryKey{subject: sub, kind: kind})
	s.mu.Unlock()
}

// Reset drops every window for the subject. Used when a punished subject
// should start from a clean slate.
func (c *Counter) Reset(sub models.Subject) {
	s := c.shardFor(sub)

	s.mu.Lock()
	for key := range s.entries {
		if key.subject == sub {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}

// purgeLocked trims timestamps older than window relative to at and returns
// the surviving count. Timestamps are kept in insertion order, so the stale
// prefix is contiguous.
func (s *shard) purgeLocked(key entryKey, at time.Time, window time.Duration) int {
	ts := s.entries[key]
	cutoff := at.Add(-window)

	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		ts = append(ts[:0:0], ts[i:]...)
		if len(ts) == 0 {
			delete(s.entries, key)
		} else {
			s.entries[key] = ts
		}
	}
	return len(ts)
}
