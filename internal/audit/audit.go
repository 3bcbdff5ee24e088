// Package audit emits one structured record per engine decision to an
// append-only JSON-lines file, optionally mirrored into the ledger's event
// log table. Consumers (alerting, display) are external collaborators.
package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"go-guardian/internal/logging"
)

// Outcome values. Every decision produces a record, including "no action".
const (
	OutcomeVerdict            = "verdict"
	OutcomeDirectiveIssued    = "directive_issued"
	OutcomeDirectiveDelivered = "directive_delivered"
	OutcomeDirectiveFailed    = "directive_failed"
	OutcomeDirectiveDropped   = "directive_dropped"
	OutcomeWarned             = "warned"
	OutcomeNoAction           = "no_action"
	OutcomeDroppedDisabled    = "dropped_disabled"
	OutcomeDroppedInvalid     = "dropped_invalid"
	OutcomeStorageError       = "storage_error"
	OutcomeSettingsChanged    = "settings_changed"
)

type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	GuildID   uint64         `json:"guild_id"`
	SubjectID uint64         `json:"subject_id"`
	Action    string         `json:"action"`
	Severity  string         `json:"severity"`
	Outcome   string         `json:"outcome"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Mirror receives every record in addition to the file sink. Implemented by
// the ledger's event log.
type Mirror interface {
	RecordAudit(rec Record) error
}

// Sink is an async writer: Emit never blocks the event hot path. Records
// are dropped (and counted) if the buffer is full, flushed on Close.
type Sink struct {
	ch      chan Record
	file    *os.File
	mirror  Mirror
	dropped uint64
	mu      sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewSink(path string, mirror Mirror) (*Sink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	s := &Sink{
		ch:     make(chan Record, 4096),
		file:   file,
		mirror: mirror,
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

func (s *Sink) Emit(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	select {
	case s.ch <- rec:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Dropped reports how many records were discarded due to backpressure.
func (s *Sink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Sink) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case rec := <-s.ch:
			s.write(rec)
		case <-s.done:
			for {
				select {
				case rec := <-s.ch:
					s.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) write(rec Record) {
	line, err := json.Marshal(rec)
	if err != nil {
		logging.Log().WithError(err).Error("audit record marshal failed")
		return
	}
	line = append(line, '\n')
	if _, err := s.file.Write(line); err != nil {
		logging.Log().WithError(err).Error("audit record write failed")
	}

	if s.mirror != nil {
		if err := s.mirror.RecordAudit(rec); err != nil {
			logging.Log().WithError(err).Warn("audit mirror write failed")
		}
	}
}

func (s *Sink) Close() error {
	close(s.done)
	s.wg.Wait()
	return s.file.Close()
}
