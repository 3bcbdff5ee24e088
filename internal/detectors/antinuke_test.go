package detectors

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-guardian/internal/config"
	"go-guardian/internal/models"
	"go-guardian/internal/window"
)

func newStore(t *testing.T, mutate func(*config.Settings)) *config.Store {
	t.Helper()
	st, err := config.Load(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	if mutate != nil {
		require.NoError(t, st.Update(mutate))
	}
	return st
}

func destructiveEvent(kind models.EventKind, at time.Time) models.Event {
	return models.NewEvent(kind, 1, 2, at)
}

func TestAntiNukeBelowThresholdStaysQuiet(t *testing.T) {
	st := newStore(t, nil)
	d := NewAntiNuke(st, window.NewCounter())
	base := time.Now()

	// Default per-kind max is 3: three bans is normal moderation.
	for i := 0; i < 3; i++ {
		v := d.Inspect(destructiveEvent(models.EventKindBan, base.Add(time.Duration(i)*time.Second)))
		assert.Nil(t, v)
	}
}

func TestAntiNukeFiresOnExceedingThreshold(t *testing.T) {
	st := newStore(t, nil)
	d := NewAntiNuke(st, window.NewCounter())
	base := time.Now()

	for i := 0; i < 3; i++ {
		require.Nil(t, d.Inspect(destructiveEvent(models.EventKindBan, base.Add(time.Duration(i)*time.Second))))
	}

	v := d.Inspect(destructiveEvent(models.EventKindBan, base.Add(3*time.Second)))
	require.NotNil(t, v)
	assert.Equal(t, models.SeverityCritical, v.Severity)
	assert.True(t, v.HasCheck(models.CheckPerKind))
	assert.False(t, v.HasCheck(models.CheckCombined))
	assert.Equal(t, 4, v.Evidence)
	assert.Equal(t, uint64(1), v.GuildID)
	assert.Equal(t, uint64(2), v.ActorID)
}

func TestAntiNukeFiresOncePerWindow(t *testing.T) {
	st := newStore(t, nil)
	d := NewAntiNuke(st, window.NewCounter())
	base := time.Now()

	for i := 0; i < 3; i++ {
		require.Nil(t, d.Inspect(destructiveEvent(models.EventKindBan, base.Add(time.Duration(i)*time.Second))))
	}
	require.NotNil(t, d.Inspect(destructiveEvent(models.EventKindBan, base.Add(3*time.Second))))

	// The fifth ban exceeds the per-kind rule again, but the latch holds
	// and the combined rule (max 5) is not yet exceeded.
	assert.Nil(t, d.Inspect(destructiveEvent(models.EventKindBan, base.Add(4*time.Second))))
}

func TestAntiNukeCombinedWindowAcrossKinds(t *testing.T) {
	st := newStore(t, nil)
	d := NewAntiNuke(st, window.NewCounter())
	base := time.Now()

	// Three channel deletes plus three role deletes: no per-kind rule is
	// exceeded, the combined window reaches six.
	for i := 0; i < 3; i++ {
		require.Nil(t, d.Inspect(destructiveEvent(models.EventKindChannelDelete, base.Add(time.Duration(i)*time.Second))))
	}
	for i := 0; i < 2; i++ {
		require.Nil(t, d.Inspect(destructiveEvent(models.EventKindRoleDelete, base.Add(time.Duration(3+i)*time.Second))))
	}

	v := d.Inspect(destructiveEvent(models.EventKindRoleDelete, base.Add(5*time.Second)))
	require.NotNil(t, v)
	assert.True(t, v.HasCheck(models.CheckCombined))
	assert.False(t, v.HasCheck(models.CheckPerKind))
	assert.Equal(t, models.SeverityCritical, v.Severity)
	assert.Equal(t, 6, v.Evidence)
}

func TestAntiNukeRefiresAfterWindowPasses(t *testing.T) {
	st := newStore(t, nil)
	d := NewAntiNuke(st, window.NewCounter())
	base := time.Now()

	for i := 0; i < 4; i++ {
		d.Inspect(destructiveEvent(models.EventKindBan, base.Add(time.Duration(i)*time.Second)))
	}

	// Well past the 10s window: counts expired, latch released.
	later := base.Add(30 * time.Second)
	for i := 0; i < 3; i++ {
		require.Nil(t, d.Inspect(destructiveEvent(models.EventKindBan, later.Add(time.Duration(i)*time.Second))))
	}
	v := d.Inspect(destructiveEvent(models.EventKindBan, later.Add(3*time.Second)))
	require.NotNil(t, v)
	assert.True(t, v.HasCheck(models.CheckPerKind))
}

func TestAntiNukeDisabledIgnoresEverything(t *testing.T) {
	st := newStore(t, func(s *config.Settings) { s.AntiNuke.Enabled = false })
	d := NewAntiNuke(st, window.NewCounter())
	base := time.Now()

	for i := 0; i < 20; i++ {
		assert.Nil(t, d.Inspect(destructiveEvent(models.EventKindBan, base.Add(time.Duration(i)*time.Millisecond))))
	}
}

func TestAntiNukeIgnoresMessages(t *testing.T) {
	st := newStore(t, nil)
	d := NewAntiNuke(st, window.NewCounter())

	ev := models.NewMessageEvent(1, 2, "hello", 0, time.Now())
	assert.Nil(t, d.Inspect(ev))
}

func TestAntiNukeActorsAreIndependent(t *testing.T) {
	st := newStore(t, nil)
	d := NewAntiNuke(st, window.NewCounter())
	base := time.Now()

	for i := 0; i < 3; i++ {
		ev := models.NewEvent(models.EventKindBan, 1, uint64(100+i), base)
		assert.Nil(t, d.Inspect(ev), "one ban each from three mods is not a nuke")
	}
}
