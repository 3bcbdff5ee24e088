// Package pipeline moves gateway events through detection and escalation.
// Events are sharded by subject so one user's stream is processed in order
// by a single worker, which keeps the detectors' window bookkeeping free of
// cross-call races for that subject.
package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-guardian/internal/audit"
	"go-guardian/internal/botswitch"
	"go-guardian/internal/config"
	"go-guardian/internal/detectors"
	"go-guardian/internal/escalation"
	"go-guardian/internal/logging"
	"go-guardian/internal/models"
	"go-guardian/pkg/util"
)

const (
	shardCount   = 16
	shardBuffer  = 1024
	dedupHistory = 512
)

// dedupRing remembers recently seen event IDs per shard. Gateway reconnects
// can replay events; an ID seen twice is dropped the second time.
type dedupRing struct {
	ids  [dedupHistory]uuid.UUID
	seen map[uuid.UUID]struct{}
	next int
}

func newDedupRing() *dedupRing {
	return &dedupRing{seen: make(map[uuid.UUID]struct{}, dedupHistory)}
}

// observe records the ID and reports whether it was already present.
func (r *dedupRing) observe(id uuid.UUID) bool {
	if _, ok := r.seen[id]; ok {
		return true
	}
	if old := r.ids[r.next]; old != uuid.Nil {
		delete(r.seen, old)
	}
	r.ids[r.next] = id
	r.seen[id] = struct{}{}
	r.next = (r.next + 1) % dedupHistory
	return false
}

type shard struct {
	ch    chan models.Event
	dedup *dedupRing
}

type Pipeline struct {
	settings *config.Store
	sw       *botswitch.Switch
	antinuke *detectors.AntiNuke
	antispam *detectors.AntiSpam
	engine   *escalation.Engine
	sink     *audit.Sink

	shards  [shardCount]*shard
	mu      sync.RWMutex
	stopped bool
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

func New(settings *config.Store, sw *botswitch.Switch, nuke *detectors.AntiNuke, spam *detectors.AntiSpam, engine *escalation.Engine, sink *audit.Sink) *Pipeline {
	p := &Pipeline{
		settings: settings,
		sw:       sw,
		antinuke: nuke,
		antispam: spam,
		engine:   engine,
		sink:     sink,
	}
	for i := range p.shards {
		p.shards[i] = &shard{
			ch:    make(chan models.Event, shardBuffer),
			dedup: newDedupRing(),
		}
		p.wg.Add(1)
		go p.run(p.shards[i])
	}
	return p
}

// Submit enqueues an event for detection. It returns false once shutdown
// has begun or when the subject's shard is saturated; a saturated shard
// sheds load rather than stalling the gateway reader.
func (p *Pipeline) Submit(ev models.Event) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	sub := ev.Subject()
	idx := util.HashIndex64(util.HashU64(sub.GuildID)^util.HashU64(sub.UserID), shardCount-1)
	select {
	case p.shards[idx].ch <- ev:
		return true
	default:
		p.dropped.Add(1)
		logging.Log().WithFields(logrus.Fields{
			"guild": ev.GuildID,
			"actor": ev.ActorID,
			"kind":  ev.Kind.String(),
		}).Warn("pipeline shard saturated, event dropped")
		return false
	}
}

// Dropped returns how many events were shed due to shard backpressure.
func (p *Pipeline) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Pipeline) run(s *shard) {
	defer p.wg.Done()
	for ev := range s.ch {
		p.process(s, ev)
	}
}

func (p *Pipeline) process(s *shard, ev models.Event) {
	if err := ev.Validate(); err != nil {
		logging.Log().WithError(err).Debug("dropping invalid event")
		p.sink.Emit(audit.Record{
			GuildID:   ev.GuildID,
			SubjectID: ev.ActorID,
			Action:    "event",
			Severity:  models.SeverityNone.String(),
			Outcome:   audit.OutcomeDroppedInvalid,
			Detail:    map[string]any{"error": err.Error()},
		})
		return
	}

	if s.dedup.observe(ev.ID) {
		return
	}

	if !p.sw.Enabled() {
		p.sink.Emit(audit.Record{
			GuildID:   ev.GuildID,
			SubjectID: ev.ActorID,
			Action:    "event",
			Severity:  models.SeverityNone.String(),
			Outcome:   audit.OutcomeDroppedDisabled,
			Detail:    map[string]any{"kind": ev.Kind.String()},
		})
		return
	}

	if p.settings.Snapshot().IsWhitelisted(ev.ActorID, ev.ActorRoles) {
		return
	}

	if v := p.antinuke.Inspect(ev); v != nil {
		p.emitVerdict(v)
		p.engine.HandleVerdict(*v)
		return
	}
	if v := p.antispam.Inspect(ev); v != nil {
		p.emitVerdict(v)
		p.engine.HandleVerdict(*v)
	}
}

func (p *Pipeline) emitVerdict(v *models.Verdict) {
	p.sink.Emit(audit.Record{
		GuildID:   v.GuildID,
		SubjectID: v.ActorID,
		Action:    v.Kind.String(),
		Severity:  v.Severity.String(),
		Outcome:   audit.OutcomeVerdict,
		Detail: map[string]any{
			"checks":   models.CheckNames(v.Checks),
			"evidence": v.Evidence,
		},
	})
}

// Stop refuses new submissions, drains the shards and waits for in-flight
// events to finish.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, s := range p.shards {
		close(s.ch)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
