// Package escalation turns detector verdicts and operator warnings into
// punishment directives. Critical verdicts are contained immediately;
// everything else feeds the per-user warning ladder, where each tier fires
// at most once per accumulation cycle.
package escalation

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"go-guardian/internal/audit"
	"go-guardian/internal/botswitch"
	"go-guardian/internal/config"
	"go-guardian/internal/dispatcher"
	"go-guardian/internal/ledger"
	"go-guardian/internal/logging"
	"go-guardian/internal/models"
)

// SystemIssuer tags warnings booked by the detectors rather than a human.
const SystemIssuer = "guardian"

type Engine struct {
	settings *config.Store
	ledger   *ledger.Ledger
	sw       *botswitch.Switch
	dispatch *dispatcher.Dispatcher
	sink     *audit.Sink
}

func New(settings *config.Store, led *ledger.Ledger, sw *botswitch.Switch, disp *dispatcher.Dispatcher, sink *audit.Sink) *Engine {
	return &Engine{
		settings: settings,
		ledger:   led,
		sw:       sw,
		dispatch: disp,
		sink:     sink,
	}
}

// HandleVerdict is the single entry point for detector output. The pipeline
// serializes calls per subject, so tier bookkeeping here never races with
// itself for one user.
func (e *Engine) HandleVerdict(v models.Verdict) {
	if !e.sw.Enabled() {
		e.emit(v.GuildID, v.ActorID, "verdict", v.Severity.String(), audit.OutcomeDroppedDisabled, map[string]any{
			"checks": models.CheckNames(v.Checks),
		})
		return
	}

	if v.IsCritical() {
		e.contain(v)
		return
	}

	reason := fmt.Sprintf("Spam detected: %s", strings.Join(models.CheckNames(v.Checks), ", "))
	e.warn(v.GuildID, v.ActorID, reason, SystemIssuer, v.Severity, v.At)

	// Egregious spam (several checks in one message) gets the configured
	// containment on top of the warning, matching the instant mute users
	// expect from the spam filter.
	if v.Severity >= models.SeverityHigh {
		e.containSpam(v)
	}
}

// Warn books an operator-issued warning. It bypasses the enable switch so
// moderators can build history while automation is paused.
func (e *Engine) Warn(guildID, userID uint64, reason, issuer string) (int, error) {
	return e.warn(guildID, userID, reason, issuer, models.SeverityLow, time.Now())
}

// ClearWarnings resets the subject's count and tier watermark. History rows
// are kept, flagged as cleared.
func (e *Engine) ClearWarnings(guildID, userID uint64, issuer string) error {
	if err := e.ledger.Clear(guildID, userID); err != nil {
		logging.Log().WithFields(logrus.Fields{
			"guild": guildID,
			"user":  userID,
		}).WithError(err).Error("failed to clear warnings")
		e.emit(guildID, userID, "clear_warnings", models.SeverityLow.String(), audit.OutcomeStorageError, map[string]any{
			"issuer": issuer,
			"error":  err.Error(),
		})
		return err
	}
	e.emit(guildID, userID, "clear_warnings", models.SeverityLow.String(), audit.OutcomeNoAction, map[string]any{
		"issuer": issuer,
	})
	return nil
}

// contain handles a critical anti-nuke verdict. The combined counter always
// answers with a ban; per-kind verdicts use the configured response.
func (e *Engine) contain(v models.Verdict) {
	snap := e.settings.Snapshot()

	response := config.ActionBan
	if !v.HasCheck(models.CheckCombined) {
		if rule, ok := snap.AntiNuke.Threshold(v.Kind); ok {
			response = rule.Response
		}
	}

	reason := fmt.Sprintf("Mass %s detected (%d in window)", v.Kind, v.Evidence)
	var dir models.Directive
	if response == config.ActionKick {
		dir = models.NewKickDirective(v.GuildID, v.ActorID, reason, v.At)
	} else {
		dir = models.NewBanDirective(v.GuildID, v.ActorID, reason, v.At)
	}

	logging.Log().WithFields(logrus.Fields{
		"guild":  v.GuildID,
		"actor":  v.ActorID,
		"kind":   v.Kind.String(),
		"count":  v.Evidence,
		"action": dir.Kind.String(),
	}).Warn("containing destructive actor")

	accepted := e.dispatch.Dispatch(dir)
	outcome := audit.OutcomeDirectiveIssued
	if !accepted {
		outcome = audit.OutcomeDirectiveDropped
	}
	e.emit(v.GuildID, v.ActorID, dir.Kind.String(), v.Severity.String(), outcome, map[string]any{
		"checks":   models.CheckNames(v.Checks),
		"evidence": v.Evidence,
		"reason":   reason,
	})
}

// containSpam applies the configured anti-spam response directly.
func (e *Engine) containSpam(v models.Verdict) {
	snap := e.settings.Snapshot()
	spam := snap.AntiSpam

	var dir models.Directive
	reason := "Aggressive spam"
	switch spam.Action {
	case config.ActionKick:
		dir = models.NewKickDirective(v.GuildID, v.ActorID, reason, v.At)
	case config.ActionBan:
		dir = models.NewBanDirective(v.GuildID, v.ActorID, reason, v.At)
	default:
		dir = models.NewMuteDirective(v.GuildID, v.ActorID, time.Duration(spam.MuteMinutes)*time.Minute, reason, v.At)
	}

	accepted := e.dispatch.Dispatch(dir)
	outcome := audit.OutcomeDirectiveIssued
	if !accepted {
		outcome = audit.OutcomeDirectiveDropped
	}
	e.emit(v.GuildID, v.ActorID, dir.Kind.String(), v.Severity.String(), outcome, map[string]any{
		"checks": models.CheckNames(v.Checks),
		"reason": reason,
	})
}

// warn increments the ledger count and fires the ladder if a new tier was
// crossed. The fired-tier watermark guarantees each tier acts at most once:
// repeated warnings inside the same tier band are recorded but produce no
// second punishment, and skipping over several tiers fires only the highest.
func (e *Engine) warn(guildID, userID uint64, reason, issuer string, sev models.Severity, at time.Time) (int, error) {
	count, firedTier, err := e.ledger.Warn(guildID, userID, reason, issuer)
	if err != nil {
		logging.Log().WithFields(logrus.Fields{
			"guild": guildID,
			"user":  userID,
		}).WithError(err).Error("failed to record warning")
		e.emit(guildID, userID, "warn", sev.String(), audit.OutcomeStorageError, map[string]any{
			"reason": reason,
			"error":  err.Error(),
		})
		return 0, err
	}

	e.emit(guildID, userID, "warn", sev.String(), audit.OutcomeWarned, map[string]any{
		"reason": reason,
		"issuer": issuer,
		"count":  count,
	})

	e.dispatch.Dispatch(models.NewWarnDirective(guildID, userID,
		fmt.Sprintf("%s (warning %d)", reason, count), at))

	snap := e.settings.Snapshot()
	tier, ok := Highest(snap.Tiers, count)
	if !ok || tier.Count <= firedTier {
		e.emit(guildID, userID, "escalate", sev.String(), audit.OutcomeNoAction, map[string]any{
			"count":      count,
			"fired_tier": firedTier,
		})
		return count, nil
	}

	dir := directiveFor(tier, guildID, userID, count, at)
	logging.Log().WithFields(logrus.Fields{
		"guild":  guildID,
		"user":   userID,
		"count":  count,
		"tier":   tier.Count,
		"action": dir.Kind.String(),
	}).Info("warning tier crossed")

	if err := e.ledger.MarkTierFired(guildID, userID, tier.Count); err != nil {
		logging.Log().WithError(err).Error("failed to persist fired tier")
	}

	accepted := e.dispatch.Dispatch(dir)
	outcome := audit.OutcomeDirectiveIssued
	if !accepted {
		outcome = audit.OutcomeDirectiveDropped
	}
	e.emit(guildID, userID, dir.Kind.String(), sev.String(), outcome, map[string]any{
		"count":  count,
		"tier":   tier.Count,
		"reason": dir.Reason,
	})
	return count, nil
}

func (e *Engine) emit(guildID, userID uint64, action, severity, outcome string, detail map[string]any) {
	e.sink.Emit(audit.Record{
		GuildID:   guildID,
		SubjectID: userID,
		Action:    action,
		Severity:  severity,
		Outcome:   outcome,
		Detail:    detail,
	})
}
