// Package detectors turns raw events into verdicts. Detectors never act:
// they count, compare against the active thresholds, and hand judgments to
// the escalation engine.
package detectors

import (
	"sync"
	"time"

	"go-guardian/internal/config"
	"go-guardian/internal/models"
	"go-guardian/internal/window"
)

type firedKey struct {
	subject models.Subject
	kind    models.EventKind
}

// AntiNuke watches destructive actions (ban, kick, channel delete, role
// delete) per actor. Each kind has its own sliding window, plus one
// combined window across all destructive kinds. A rule fires at most once
// per qualifying window: the latch clears when the window has passed.
//
// Windows live in memory only; a restart resets them. Accepted gap.
type AntiNuke struct {
	settings *config.Store
	counters *window.Counter

	mu        sync.Mutex
	lastFired map[firedKey]time.Time
}

func NewAntiNuke(settings *config.Store, counters *window.Counter) *AntiNuke {
	return &AntiNuke{
		settings:  settings,
		counters:  counters,
		lastFired: make(map[firedKey]time.Time),
	}
}

// Inspect records the event and returns a verdict when a threshold is
// exceeded, nil otherwise. Per-kind rules are evaluated first, then the
// combined rule; when both fire, the combined check is flagged so
// escalation gives server-wide protection precedence.
func (d *AntiNuke) Inspect(ev models.Event) *models.Verdict {
	s := d.settings.Snapshot().AntiNuke
	if !s.Enabled || !ev.Kind.Destructive() {
		return nil
	}

	sub := ev.Subject()
	perRule, ok := s.Threshold(ev.Kind)
	if !ok {
		return nil
	}

	perCount := d.counters.RecordAndCount(sub, ev.Kind, ev.Timestamp, perRule.Window())
	combCount := d.counters.RecordAndCount(sub, models.EventKindAggregate, ev.Timestamp, s.Combined.Window())

	var checks uint32
	evidence := 0

	if perCount > perRule.MaxCount && d.arm(sub, ev.Kind, ev.Timestamp, perRule.Window()) {
		checks |= models.CheckPerKind
		evidence = perCount
	}
	if combCount > s.Combined.MaxCount && d.arm(sub, models.EventKindAggregate, ev.Timestamp, s.Combined.Window()) {
		checks |= models.CheckCombined
		evidence = combCount
	}

	if checks == 0 {
		return nil
	}

	return &models.Verdict{
		GuildID:  ev.GuildID,
		ActorID:  ev.ActorID,
		Kind:     ev.Kind,
		Severity: models.SeverityCritical,
		Checks:   checks,
		Evidence: evidence,
		At:       ev.Timestamp,
	}
}

// arm reports whether the latch for (subject, kind) allows firing at t, and
// sets it if so. A latch set within the current window suppresses repeats.
func (d *AntiNuke) arm(sub models.Subject, kind models.EventKind, t time.Time, win time.Duration) bool {
	key := firedKey{subject: sub, kind: kind}

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastFired[key]; ok && t.Sub(last) < win {
		return false
	}
	d.lastFired[key] = t

	if len(d.lastFired) > 8192 {
		for k, v := range d.lastFired {
			if t.Sub(v) > time.Hour {
				delete(d.lastFired, k)
			}
		}
	}
	return true
}
