package detectors

import (
	"sync"
	"time"

	"go-guardian/internal/config"
	"go-guardian/internal/models"
	"go-guardian/internal/window"
)

// recentCap bounds how many message bodies are kept per author. FIFO: the
// oldest entry is evicted when full.
const recentCap = 32

type recentMessage struct {
	content string
	at      time.Time
}

type messageRing struct {
	items [recentCap]recentMessage
	head  int
	size  int
}

func (r *messageRing) push(content string, at time.Time) {
	r.items[r.head] = recentMessage{content: content, at: at}
	r.head = (r.head + 1) % recentCap
	if r.size < recentCap {
		r.size++
	}
}

// duplicates counts entries matching content within win of at, the entry
// just pushed included.
func (r *messageRing) duplicates(content string, at time.Time, win time.Duration) int {
	cutoff := at.Add(-win)
	n := 0
	for i := 0; i < r.size; i++ {
		m := r.items[(r.head-1-i+2*recentCap)%recentCap]
		if m.at.After(cutoff) && m.content == content {
			n++
		}
	}
	return n
}

func (r *messageRing) newest() (time.Time, bool) {
	if r.size == 0 {
		return time.Time{}, false
	}
	return r.items[(r.head-1+recentCap)%recentCap].at, true
}

// AntiSpam runs three independent checks on each message: rate, duplicate
// content, and mentions. All three are evaluated even after one fires so
// the verdict records every violated rule; the maximum severity drives
// escalation. After a flag the author's tracker is reset, so a punished
// spammer starts from a fresh window.
type AntiSpam struct {
	settings *config.Store
	counters *window.Counter

	mu     sync.Mutex
	recent map[models.Subject]*messageRing
}

func NewAntiSpam(settings *config.Store, counters *window.Counter) *AntiSpam {
	return &AntiSpam{
		settings: settings,
		counters: counters,
		recent:   make(map[models.Subject]*messageRing),
	}
}

func (d *AntiSpam) Inspect(ev models.Event) *models.Verdict {
	s := d.settings.Snapshot().AntiSpam
	if !s.Enabled || ev.Kind != models.EventKindMessage {
		return nil
	}

	sub := ev.Subject()
	win := s.Window()

	rateCount := d.counters.RecordAndCount(sub, models.EventKindMessage, ev.Timestamp, win)

	d.mu.Lock()
	ring := d.recent[sub]
	if ring == nil {
		ring = &messageRing{}
		d.recent[sub] = ring
		d.pruneLocked(ev.Timestamp, win)
	}
	ring.push(ev.Content, ev.Timestamp)
	dupCount := ring.duplicates(ev.Content, ev.Timestamp, win)
	d.mu.Unlock()

	var checks uint32
	severity := models.SeverityNone
	evidence := 0

	if rateCount > s.MessageLimit {
		checks |= models.CheckRate
		severity = models.SeverityMedium
		evidence = rateCount
	}
	if dupCount >= s.DuplicateLimit {
		checks |= models.CheckDuplicate
		severity = models.SeverityMedium
		if dupCount > evidence {
			evidence = dupCount
		}
	}
	if ev.MentionCount > s.MentionLimit {
		checks |= models.CheckMention
		severity = models.SeverityMedium
		if ev.MentionCount > evidence {
			evidence = ev.MentionCount
		}
	}

	if checks == 0 {
		return nil
	}

	// Several rules violated at once reads as a stronger signal, but spam
	// stays below Critical: it goes through the warning ladder, never
	// immediate containment.
	if checks&(checks-1) != 0 {
		severity = models.SeverityHigh
	}

	d.resetTracker(sub)

	return &models.Verdict{
		GuildID:  ev.GuildID,
		ActorID:  ev.ActorID,
		Kind:     models.EventKindMessage,
		Severity: severity,
		Checks:   checks,
		Evidence: evidence,
		At:       ev.Timestamp,
	}
}

func (d *AntiSpam) resetTracker(sub models.Subject) {
	d.counters.ResetKind(sub, models.EventKindMessage)

	d.mu.Lock()
	delete(d.recent, sub)
	d.mu.Unlock()
}

// pruneLocked drops rings whose newest message is long stale. Called while
// holding mu, only when a new author appears.
func (d *AntiSpam) pruneLocked(now time.Time, win time.Duration) {
	if len(d.recent) < 8192 {
		return
	}
	for sub, ring := range d.recent {
		if newest, ok := ring.newest(); !ok || now.Sub(newest) > 2*win {
			delete(d.recent, sub)
		}
	}
}
