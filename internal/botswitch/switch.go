// Package botswitch holds the process-wide enabled/disabled gate. Detectors
// consult it before any action fires; only the configured owner may toggle
// it. State starts Disabled and is persisted on every toggle so a restart
// comes back in the last commanded state.
package botswitch

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go-guardian/internal/logging"
)

var ErrNotAuthorized = errors.New("botswitch: actor is not the owner")

type persistedState struct {
	Enabled bool `json:"enabled"`
}

type Switch struct {
	path    string
	ownerID uint64
	enabled atomic.Bool
	saveMu  sync.Mutex
}

// Load reads the persisted state, defaulting to Disabled when the file is
// absent or unreadable.
func Load(path string, ownerID uint64) *Switch {
	sw := &Switch{path: path, ownerID: ownerID}

	data, err := os.ReadFile(path)
	if err == nil {
		var st persistedState
		if json.Unmarshal(data, &st) == nil {
			sw.enabled.Store(st.Enabled)
		}
	}

	logging.Log().WithField("enabled", sw.enabled.Load()).Info("bot switch state loaded")
	return sw
}

// Enabled is the lock-free gate read on every event.
func (sw *Switch) Enabled() bool {
	return sw.enabled.Load()
}

func (sw *Switch) Enable(actorID uint64) error {
	return sw.set(actorID, true)
}

func (sw *Switch) Disable(actorID uint64) error {
	return sw.set(actorID, false)
}

func (sw *Switch) set(actorID uint64, enabled bool) error {
	if actorID != sw.ownerID {
		return ErrNotAuthorized
	}

	sw.enabled.Store(enabled)
	if err := sw.save(enabled); err != nil {
		// The toggle still takes effect for this process; persistence
		// failure only affects the state after a restart.
		logging.Log().WithError(err).Warn("bot switch state not persisted")
		return err
	}
	return nil
}

func (sw *Switch) save(enabled bool) error {
	sw.saveMu.Lock()
	defer sw.saveMu.Unlock()

	data, err := json.MarshalIndent(persistedState{Enabled: enabled}, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(sw.path)
	tmp, err := os.CreateTemp(dir, ".botstate-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, sw.path)
}
