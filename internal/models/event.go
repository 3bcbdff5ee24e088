package models

import (
	"time"

	"github.com/google/uuid"
)

type EventKind uint8

const (
	EventKindUnknown EventKind = iota
	EventKindBan
	EventKindKick
	EventKindChannelDelete
	EventKindRoleDelete
	EventKindMessage
)

// EventKindAggregate is reserved for the cross-kind destructive window.
// It never appears on an Event; detectors use it as a counter key.
const EventKindAggregate EventKind = 255

func (k EventKind) String() string {
	switch k {
	case EventKindBan:
		return "ban"
	case EventKindKick:
		return "kick"
	case EventKindChannelDelete:
		return "channel_delete"
	case EventKindRoleDelete:
		return "role_delete"
	case EventKindMessage:
		return "message"
	case EventKindAggregate:
		return "destructive_aggregate"
	default:
		return "unknown"
	}
}

func (k EventKind) Destructive() bool {
	return k == EventKindBan ||
		k == EventKindKick ||
		k == EventKindChannelDelete ||
		k == EventKindRoleDelete
}

// Subject identifies whose behavior is being counted: one actor in one guild.
type Subject struct {
	GuildID uint64
	UserID  uint64
}

// Event is a single gateway occurrence, immutable once created. ID is the
// dedup key for replay protection.
type Event struct {
	ID        uuid.UUID
	Kind      EventKind
	GuildID   uint64
	ActorID   uint64
	TargetID  uint64
	Timestamp time.Time

	// Roles held by the actor at event time, used for exemption checks.
	ActorRoles []uint64

	// Message payload, set only for EventKindMessage.
	Content      string
	MentionCount int
}

func NewEvent(kind EventKind, guildID, actorID uint64, at time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Kind:      kind,
		GuildID:   guildID,
		ActorID:   actorID,
		Timestamp: at,
	}
}

func NewMessageEvent(guildID, authorID uint64, content string, mentions int, at time.Time) Event {
	ev := NewEvent(EventKindMessage, guildID, authorID, at)
	ev.Content = content
	ev.MentionCount = mentions
	return ev
}

func (e *Event) Subject() Subject {
	return Subject{GuildID: e.GuildID, UserID: e.ActorID}
}

// Validate rejects events the pipeline cannot attribute. A bad event is
// dropped and logged, never fatal.
func (e *Event) Validate() error {
	if e.Kind == EventKindUnknown || e.Kind == EventKindAggregate {
		return &InvalidEventError{Field: "kind", Reason: "unrecognized event kind"}
	}
	if e.GuildID == 0 {
		return &InvalidEventError{Field: "guild_id", Reason: "missing guild"}
	}
	if e.ActorID == 0 {
		return &InvalidEventError{Field: "actor_id", Reason: "missing actor"}
	}
	if e.Timestamp.IsZero() {
		return &InvalidEventError{Field: "timestamp", Reason: "missing timestamp"}
	}
	if e.MentionCount < 0 {
		return &InvalidEventError{Field: "mention_count", Reason: "negative mention count"}
	}
	return nil
}
