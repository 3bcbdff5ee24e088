// Package dispatcher delivers punishment directives to the external action
// executor. The engine decides, the executor acts: a delivery failure is
// logged and audited, never retried here, and never unwinds the decision
// state already committed.
package dispatcher

import (
	"sync"
	"time"

	"go-guardian/internal/audit"
	"go-guardian/internal/logging"
	"go-guardian/internal/models"
)

// Executor is the outbound collaborator applying punitive actions.
type Executor interface {
	Mute(guildID, userID uint64, duration time.Duration, reason string) error
	Kick(guildID, userID uint64, reason string) error
	Ban(guildID, userID uint64, reason string) error
	Warn(guildID, userID uint64, reason string) error
}

type Dispatcher struct {
	queue  chan models.Directive
	execMu sync.RWMutex
	exec   Executor
	sink   *audit.Sink
	wg     sync.WaitGroup

	// mu orders Dispatch against Stop so no send can hit a closed queue.
	mu      sync.RWMutex
	stopped bool
}

func New(exec Executor, sink *audit.Sink, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		queue: make(chan models.Directive, queueSize),
		exec:  exec,
		sink:  sink,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Bind sets the executor. The session that backs it is only available after
// the gateway is constructed, which itself needs the pipeline this
// dispatcher feeds, hence the late binding.
func (d *Dispatcher) Bind(exec Executor) {
	d.execMu.Lock()
	d.exec = exec
	d.execMu.Unlock()
}

func (d *Dispatcher) executor() Executor {
	d.execMu.RLock()
	defer d.execMu.RUnlock()
	return d.exec
}

// Dispatch enqueues a directive for delivery. Returns false once shutdown
// has begun or when the queue is saturated; the caller's decision state is
// already committed either way.
func (d *Dispatcher) Dispatch(dir models.Directive) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		logging.Log().WithField("directive", dir.Kind.String()).
			Warn("directive refused, dispatcher shut down")
		return false
	}
	select {
	case d.queue <- dir:
		return true
	default:
		logging.Log().WithField("directive", dir.Kind.String()).
			Error("directive dropped, queue saturated")
		d.sink.Emit(audit.Record{
			GuildID:   dir.GuildID,
			SubjectID: dir.UserID,
			Action:    dir.Kind.String(),
			Severity:  models.SeverityNone.String(),
			Outcome:   audit.OutcomeDirectiveDropped,
			Detail:    map[string]any{"reason": "queue saturated"},
		})
		return false
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for dir := range d.queue {
		if d.isStopped() {
			// Shutdown began after enqueue. Decisions stand, but no
			// further punitive actions leave the process.
			d.emitDelivery(dir, audit.OutcomeDirectiveDropped, map[string]any{"reason": "shutdown"})
			continue
		}
		d.deliver(dir)
	}
}

func (d *Dispatcher) deliver(dir models.Directive) {
	exec := d.executor()
	if exec == nil {
		d.emitDelivery(dir, audit.OutcomeDirectiveFailed, map[string]any{"error": "no executor bound"})
		return
	}

	var err error
	switch dir.Kind {
	case models.DirectiveMute:
		err = exec.Mute(dir.GuildID, dir.UserID, dir.Duration, dir.Reason)
	case models.DirectiveKick:
		err = exec.Kick(dir.GuildID, dir.UserID, dir.Reason)
	case models.DirectiveBan:
		err = exec.Ban(dir.GuildID, dir.UserID, dir.Reason)
	case models.DirectiveWarn:
		err = exec.Warn(dir.GuildID, dir.UserID, dir.Reason)
	}

	if err != nil {
		delivErr := &models.DirectiveDeliveryError{Directive: dir, Err: err}
		logging.Log().WithError(delivErr).Error("directive delivery failed")
		d.emitDelivery(dir, audit.OutcomeDirectiveFailed, map[string]any{"error": err.Error()})
		return
	}
	d.emitDelivery(dir, audit.OutcomeDirectiveDelivered, nil)
}

func (d *Dispatcher) emitDelivery(dir models.Directive, outcome string, detail map[string]any) {
	d.sink.Emit(audit.Record{
		GuildID:   dir.GuildID,
		SubjectID: dir.UserID,
		Action:    dir.Kind.String(),
		Severity:  models.SeverityNone.String(),
		Outcome:   outcome,
		Detail:    detail,
	})
}

// Stop refuses new directives immediately and waits for workers to finish.
// Directives still queued are dropped with an audit record.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) isStopped() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stopped
}
