package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go-guardian/internal/logging"
	"go-guardian/internal/models"
)

const (
	saveRetries    = 3
	saveRetryDelay = 50 * time.Millisecond
)

// Store owns the threshold configuration file. Readers take lock-free
// snapshots; updates are rare, validated, written temp-then-rename, and
// only then published, so in-flight evaluations never observe a partial
// config.
type Store struct {
	path     string
	current  atomic.Pointer[Settings]
	writeMu  sync.Mutex
	onChange atomic.Pointer[func(*Settings)]
}

// Load opens the settings file at path, generating documented defaults on
// first run. A malformed file is a ConfigError: logged as a warning, never
// fatal, defaults take over.
func Load(path string) (*Store, error) {
	st := &Store{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Log().WithField("path", path).Info("settings file absent, writing defaults")
		st.current.Store(DefaultSettings())
		if err := st.persist(DefaultSettings()); err != nil {
			return nil, err
		}
		return st, nil
	case err != nil:
		return nil, &models.ConfigError{Key: path, Reason: err.Error()}
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		logging.Log().WithField("path", path).WithError(err).
			Warn("settings file malformed, falling back to defaults")
		st.current.Store(DefaultSettings())
		return st, nil
	}
	if err := settings.Validate(); err != nil {
		logging.Log().WithField("path", path).WithError(err).
			Warn("settings file invalid, falling back to defaults")
		st.current.Store(DefaultSettings())
		return st, nil
	}

	st.current.Store(settings)
	return st, nil
}

// Snapshot returns the active settings. The returned value is shared and
// must be treated as read-only.
func (st *Store) Snapshot() *Settings {
	return st.current.Load()
}

// Update applies mutate to a copy of the active settings, validates the
// result, persists it durably, then publishes the new snapshot. On any
// failure the previous snapshot stays active.
func (st *Store) Update(mutate func(*Settings)) error {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	next := st.current.Load().Clone()
	mutate(next)

	if err := next.Validate(); err != nil {
		return err
	}
	if err := st.persist(next); err != nil {
		return err
	}

	st.current.Store(next)
	if fn := st.onChange.Load(); fn != nil {
		(*fn)(next)
	}
	return nil
}

// OnChange registers a single hook invoked after each successful update,
// used to emit settings-change audit records.
func (st *Store) OnChange(fn func(*Settings)) {
	st.onChange.Store(&fn)
}

// persist writes the settings with write-temp-then-rename discipline so a
// concurrent reader of the file never sees a torn write. Retries are
// bounded; exhaustion surfaces a StorageError instead of hanging.
func (st *Store) persist(s *Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	data = append(data, '\n')

	var lastErr error
	for attempt := 0; attempt < saveRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(saveRetryDelay * time.Duration(attempt))
		}
		lastErr = writeFileAtomic(st.path, data)
		if lastErr == nil {
			return nil
		}
	}
	return &models.StorageError{Op: "persist settings", Err: lastErr}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
