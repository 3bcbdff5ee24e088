package models

import "time"

type DirectiveKind uint8

const (
	DirectiveWarn DirectiveKind = iota
	DirectiveMute
	DirectiveKick
	DirectiveBan
)

func (k DirectiveKind) String() string {
	switch k {
	case DirectiveWarn:
		return "warn"
	case DirectiveMute:
		return "mute"
	case DirectiveKick:
		return "kick"
	case DirectiveBan:
		return "ban"
	default:
		return "unknown"
	}
}

// Directive is an instruction to the external action executor. The engine
// only decides; it never performs the punitive action itself.
type Directive struct {
	Kind     DirectiveKind
	GuildID  uint64
	UserID   uint64
	Duration time.Duration // mute only
	Reason   string
	IssuedAt time.Time
}

func NewBanDirective(guildID, userID uint64, reason string, at time.Time) Directive {
	return Directive{Kind: DirectiveBan, GuildID: guildID, UserID: userID, Reason: reason, IssuedAt: at}
}

func NewKickDirective(guildID, userID uint64, reason string, at time.Time) Directive {
	return Directive{Kind: DirectiveKick, GuildID: guildID, UserID: userID, Reason: reason, IssuedAt: at}
}

func NewMuteDirective(guildID, userID uint64, d time.Duration, reason string, at time.Time) Directive {
	return Directive{Kind: DirectiveMute, GuildID: guildID, UserID: userID, Duration: d, Reason: reason, IssuedAt: at}
}

func NewWarnDirective(guildID, userID uint64, reason string, at time.Time) Directive {
	return Directive{Kind: DirectiveWarn, GuildID: guildID, UserID: userID, Reason: reason, IssuedAt: at}
}
