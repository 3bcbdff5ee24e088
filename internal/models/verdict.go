package models

import "time"

type Severity uint8

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Check flags identify which sub-check produced a verdict. A verdict can
// carry several: all spam checks run even after one fires, for audit.
const (
	CheckPerKind uint32 = 1 << iota
	CheckCombined
	CheckRate
	CheckDuplicate
	CheckMention
)

func CheckNames(flags uint32) []string {
	names := make([]string, 0, 5)
	if flags&CheckPerKind != 0 {
		names = append(names, "per_kind")
	}
	if flags&CheckCombined != 0 {
		names = append(names, "combined")
	}
	if flags&CheckRate != 0 {
		names = append(names, "rate")
	}
	if flags&CheckDuplicate != 0 {
		names = append(names, "duplicate")
	}
	if flags&CheckMention != 0 {
		names = append(names, "mention")
	}
	return names
}

// Verdict is a detector's judgment that a subject crossed a threshold.
type Verdict struct {
	GuildID  uint64
	ActorID  uint64
	Kind     EventKind
	Severity Severity
	Checks   uint32
	Evidence int
	At       time.Time
}

func (v *Verdict) Subject() Subject {
	return Subject{GuildID: v.GuildID, UserID: v.ActorID}
}

func (v *Verdict) IsCritical() bool {
	return v.Severity >= SeverityCritical
}

func (v *Verdict) HasCheck(flag uint32) bool {
	return v.Checks&flag != 0
}
