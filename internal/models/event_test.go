package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventAssignsUniqueIDs(t *testing.T) {
	a := NewEvent(EventKindBan, 1, 2, time.Now())
	b := NewEvent(EventKindBan, 1, 2, time.Now())

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestValidate(t *testing.T) {
	valid := NewEvent(EventKindBan, 1, 2, time.Now())
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Event)
	}{
		{"unknown kind", func(e *Event) { e.Kind = EventKindUnknown }},
		{"aggregate sentinel", func(e *Event) { e.Kind = EventKindAggregate }},
		{"missing guild", func(e *Event) { e.GuildID = 0 }},
		{"missing actor", func(e *Event) { e.ActorID = 0 }},
		{"zero timestamp", func(e *Event) { e.Timestamp = time.Time{} }},
		{"negative mentions", func(e *Event) { e.MentionCount = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := NewEvent(EventKindBan, 1, 2, time.Now())
			tc.mutate(&ev)

			err := ev.Validate()
			var invalid *InvalidEventError
			require.ErrorAs(t, err, &invalid)
		})
	}
}

func TestDestructiveKinds(t *testing.T) {
	assert.True(t, EventKindBan.Destructive())
	assert.True(t, EventKindKick.Destructive())
	assert.True(t, EventKindChannelDelete.Destructive())
	assert.True(t, EventKindRoleDelete.Destructive())
	assert.False(t, EventKindMessage.Destructive())
	assert.False(t, EventKindUnknown.Destructive())
}

func TestCheckNames(t *testing.T) {
	assert.Empty(t, CheckNames(0))
	assert.Equal(t, []string{"per_kind"}, CheckNames(CheckPerKind))

	names := CheckNames(CheckRate | CheckDuplicate | CheckMention)
	assert.ElementsMatch(t, []string{"rate", "duplicate", "mention"}, names)
}

func TestVerdictHelpers(t *testing.T) {
	v := Verdict{GuildID: 1, ActorID: 2, Severity: SeverityCritical, Checks: CheckPerKind | CheckCombined}

	assert.True(t, v.IsCritical())
	assert.True(t, v.HasCheck(CheckCombined))
	assert.False(t, v.HasCheck(CheckRate))
	assert.Equal(t, Subject{GuildID: 1, UserID: 2}, v.Subject())

	low := Verdict{Severity: SeverityHigh}
	assert.False(t, low.IsCritical())
}

func TestSeverityOrdering(t *testing.T) {
	assert.Less(t, SeverityLow, SeverityMedium)
	assert.Less(t, SeverityMedium, SeverityHigh)
	assert.Less(t, SeverityHigh, SeverityCritical)
	assert.Equal(t, "critical", SeverityCritical.String())
}
