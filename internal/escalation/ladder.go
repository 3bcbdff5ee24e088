package escalation

import (
	"fmt"
	"time"

	"go-guardian/internal/config"
	"go-guardian/internal/models"
)

// Highest returns the highest tier whose threshold is at or below count.
// Tiers are validated as strictly increasing at load time, so a single
// ascending scan is enough.
func Highest(tiers []config.TierSetting, count int) (config.TierSetting, bool) {
	var best config.TierSetting
	found := false
	for _, t := range tiers {
		if count >= t.Count {
			best = t
			found = true
		}
	}
	return best, found
}

// directiveFor translates a crossed tier into the directive it mandates.
func directiveFor(tier config.TierSetting, guildID, userID uint64, count int, at time.Time) models.Directive {
	reason := fmt.Sprintf("Reached %d warnings", count)
	switch tier.Action {
	case config.ActionKick:
		return models.NewKickDirective(guildID, userID, reason, at)
	case config.ActionBan:
		return models.NewBanDirective(guildID, userID, reason, at)
	default:
		return models.NewMuteDirective(guildID, userID, time.Duration(tier.MuteMinutes)*time.Minute, reason, at)
	}
}
