package config

import (
	"fmt"
	"time"

	"go-guardian/internal/models"
)

// KindThreshold is one sliding-window rule: how many actions of a kind are
// tolerated inside the window, and what the containment response is when
// the count is exceeded.
type KindThreshold struct {
	WindowSeconds int    `json:"time_window"`
	MaxCount      int    `json:"max_count"`
	Response      string `json:"response"` // "ban" or "kick"
}

func (t KindThreshold) Window() time.Duration {
	return time.Duration(t.WindowSeconds) * time.Second
}

type AntiNukeSettings struct {
	Enabled       bool          `json:"enabled"`
	Ban           KindThreshold `json:"ban"`
	Kick          KindThreshold `json:"kick"`
	ChannelDelete KindThreshold `json:"channel_delete"`
	RoleDelete    KindThreshold `json:"role_delete"`
	// Combined counts every destructive kind in one window. Server-wide
	// protection: it takes precedence over per-kind rules on a tie.
	Combined KindThreshold `json:"combined"`
}

// Threshold returns the rule for a destructive event kind.
func (a *AntiNukeSettings) Threshold(kind models.EventKind) (KindThreshold, bool) {
	switch kind {
	case models.EventKindBan:
		return a.Ban, true
	case models.EventKindKick:
		return a.Kick, true
	case models.EventKindChannelDelete:
		return a.ChannelDelete, true
	case models.EventKindRoleDelete:
		return a.RoleDelete, true
	case models.EventKindAggregate:
		return a.Combined, true
	default:
		return KindThreshold{}, false
	}
}

// Punishment actions accepted by the anti-spam response and the warning
// ladder.
const (
	ActionMute = "mute"
	ActionKick = "kick"
	ActionBan  = "ban"
)

type AntiSpamSettings struct {
	Enabled        bool   `json:"enabled"`
	WindowSeconds  int    `json:"time_window"`
	MessageLimit   int    `json:"message_limit"`
	MentionLimit   int    `json:"mention_limit"`
	DuplicateLimit int    `json:"duplicate_limit"`
	Action         string `json:"action"` // "mute", "kick" or "ban"
	MuteMinutes    int    `json:"mute_duration"`
}

func (a *AntiSpamSettings) Window() time.Duration {
	return time.Duration(a.WindowSeconds) * time.Second
}

// TierSetting maps a warning count to a punishment. Thresholds must be
// strictly increasing across the ladder.
type TierSetting struct {
	Count       int    `json:"count"`
	Action      string `json:"action"` // "mute", "kick" or "ban"
	MuteMinutes int    `json:"mute_duration,omitempty"`
}

type Settings struct {
	AntiNuke         AntiNukeSettings `json:"antinuke"`
	AntiSpam         AntiSpamSettings `json:"antispam"`
	Tiers            []TierSetting    `json:"punishment_tiers"`
	WhitelistedUsers []uint64         `json:"whitelisted_users"`
	WhitelistedRoles []uint64         `json:"whitelisted_roles"`
}

// DefaultSettings mirrors the documented first-run defaults.
func DefaultSettings() *Settings {
	return &Settings{
		AntiNuke: AntiNukeSettings{
			Enabled:       true,
			Ban:           KindThreshold{WindowSeconds: 10, MaxCount: 3, Response: "ban"},
			Kick:          KindThreshold{WindowSeconds: 10, MaxCount: 3, Response: "kick"},
			ChannelDelete: KindThreshold{WindowSeconds: 10, MaxCount: 3, Response: "ban"},
			RoleDelete:    KindThreshold{WindowSeconds: 10, MaxCount: 3, Response: "ban"},
			Combined:      KindThreshold{WindowSeconds: 10, MaxCount: 5, Response: "ban"},
		},
		AntiSpam: AntiSpamSettings{
			Enabled:        true,
			WindowSeconds:  5,
			MessageLimit:   5,
			MentionLimit:   5,
			DuplicateLimit: 3,
			Action:         "mute",
			MuteMinutes:    10,
		},
		Tiers: []TierSetting{
			{Count: 3, Action: "mute", MuteMinutes: 10},
			{Count: 4, Action: "mute", MuteMinutes: 60},
			{Count: 6, Action: "kick"},
			{Count: 7, Action: "ban"},
		},
	}
}

func (t KindThreshold) validate(name string) error {
	if t.WindowSeconds <= 0 {
		return &models.ConfigError{Key: name, Reason: "time_window must be positive"}
	}
	if t.MaxCount < 1 {
		return &models.ConfigError{Key: name, Reason: "max_count must be at least 1"}
	}
	if t.Response != "ban" && t.Response != "kick" {
		return &models.ConfigError{Key: name, Reason: fmt.Sprintf("unknown response %q", t.Response)}
	}
	return nil
}

// Validate enforces the threshold invariants before a settings snapshot is
// ever published to readers.
func (s *Settings) Validate() error {
	checks := []struct {
		name string
		t    KindThreshold
	}{
		{"antinuke.ban", s.AntiNuke.Ban},
		{"antinuke.kick", s.AntiNuke.Kick},
		{"antinuke.channel_delete", s.AntiNuke.ChannelDelete},
		{"antinuke.role_delete", s.AntiNuke.RoleDelete},
		{"antinuke.combined", s.AntiNuke.Combined},
	}
	for _, c := range checks {
		if err := c.t.validate(c.name); err != nil {
			return err
		}
	}

	if s.AntiSpam.WindowSeconds <= 0 {
		return &models.ConfigError{Key: "antispam.time_window", Reason: "must be positive"}
	}
	if s.AntiSpam.MessageLimit < 1 || s.AntiSpam.MentionLimit < 1 || s.AntiSpam.DuplicateLimit < 1 {
		return &models.ConfigError{Key: "antispam", Reason: "limits must be at least 1"}
	}
	switch s.AntiSpam.Action {
	case "mute", "kick", "ban":
	default:
		return &models.ConfigError{Key: "antispam.action", Reason: fmt.Sprintf("unknown action %q", s.AntiSpam.Action)}
	}
	if s.AntiSpam.Action == "mute" && s.AntiSpam.MuteMinutes < 1 {
		return &models.ConfigError{Key: "antispam.mute_duration", Reason: "must be at least 1 minute"}
	}

	prev := 0
	for i, tier := range s.Tiers {
		if tier.Count <= prev {
			return &models.ConfigError{Key: "punishment_tiers", Reason: fmt.Sprintf("tier %d: thresholds must be strictly increasing", i)}
		}
		switch tier.Action {
		case "mute":
			if tier.MuteMinutes < 1 {
				return &models.ConfigError{Key: "punishment_tiers", Reason: fmt.Sprintf("tier %d: mute_duration must be at least 1 minute", i)}
			}
		case "kick", "ban":
		default:
			return &models.ConfigError{Key: "punishment_tiers", Reason: fmt.Sprintf("tier %d: unknown action %q", i, tier.Action)}
		}
		prev = tier.Count
	}

	return nil
}

// Clone returns a deep copy so updates never mutate a published snapshot.
func (s *Settings) Clone() *Settings {
	out := *s
	out.Tiers = append([]TierSetting(nil), s.Tiers...)
	out.WhitelistedUsers = append([]uint64(nil), s.WhitelistedUsers...)
	out.WhitelistedRoles = append([]uint64(nil), s.WhitelistedRoles...)
	return &out
}

// IsWhitelisted reports whether an actor or any of its roles is exempt from
// detection.
func (s *Settings) IsWhitelisted(userID uint64, roleIDs []uint64) bool {
	for _, id := range s.WhitelistedUsers {
		if id == userID {
			return true
		}
	}
	for _, rid := range roleIDs {
		for _, id := range s.WhitelistedRoles {
			if id == rid {
				return true
			}
		}
	}
	return false
}
