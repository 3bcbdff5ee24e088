// Package gateway adapts the Discord gateway into pipeline events. Actor
// attribution for destructive actions comes from audit log entry events,
// which name the executor directly and avoid racing REST lookups against
// the audit log.
package gateway

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"go-guardian/internal/logging"
	"go-guardian/internal/models"
	"go-guardian/internal/pipeline"
	"go-guardian/pkg/util"
)

type Gateway struct {
	session *discordgo.Session
	pipe    *pipeline.Pipeline
	selfID  string
}

func New(token string, pipe *pipeline.Pipeline) (*Gateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentGuildModeration |
		discordgo.IntentGuildMembers |
		discordgo.IntentMessageContent

	g := &Gateway{session: session, pipe: pipe}
	session.AddHandler(g.onReady)
	session.AddHandler(g.onAuditLogEntry)
	session.AddHandler(g.onMessageCreate)
	return g, nil
}

// Session exposes the underlying connection for the directive executor.
func (g *Gateway) Session() *discordgo.Session {
	return g.session
}

func (g *Gateway) Open() error {
	if err := g.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	return nil
}

func (g *Gateway) Close() error {
	return g.session.Close()
}

func (g *Gateway) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	g.selfID = r.User.ID
	logging.Log().WithFields(logrus.Fields{
		"user":   r.User.Username,
		"guilds": len(r.Guilds),
	}).Info("gateway connected")
}

func (g *Gateway) onAuditLogEntry(_ *discordgo.Session, e *discordgo.GuildAuditLogEntryCreate) {
	if e.ActionType == nil || e.UserID == g.selfID {
		return
	}

	var kind models.EventKind
	switch *e.ActionType {
	case discordgo.AuditLogActionMemberBanAdd:
		kind = models.EventKindBan
	case discordgo.AuditLogActionMemberKick:
		kind = models.EventKindKick
	case discordgo.AuditLogActionChannelDelete:
		kind = models.EventKindChannelDelete
	case discordgo.AuditLogActionRoleDelete:
		kind = models.EventKindRoleDelete
	default:
		return
	}

	guildID, err := util.ParseSnowflake(e.GuildID)
	if err != nil {
		logging.Log().WithError(err).Debug("unparseable guild id in audit entry")
		return
	}
	actorID, err := util.ParseSnowflake(e.UserID)
	if err != nil {
		logging.Log().WithError(err).Debug("unparseable actor id in audit entry")
		return
	}

	ev := models.NewEvent(kind, guildID, actorID, time.Now())
	if e.TargetID != "" {
		if target, err := util.ParseSnowflake(e.TargetID); err == nil {
			ev.TargetID = target
		}
	}
	g.pipe.Submit(ev)
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == g.selfID || m.GuildID == "" {
		return
	}
	ev, ok := messageEvent(m)
	if !ok {
		return
	}
	g.pipe.Submit(ev)
}

// messageEvent maps a guild message onto a pipeline event. The reported
// mention count covers user and role pings alike, since a role ping reaches
// every member holding it.
func messageEvent(m *discordgo.MessageCreate) (models.Event, bool) {
	guildID, err := util.ParseSnowflake(m.GuildID)
	if err != nil {
		return models.Event{}, false
	}
	authorID, err := util.ParseSnowflake(m.Author.ID)
	if err != nil {
		return models.Event{}, false
	}

	mentions := len(m.Mentions) + len(m.MentionRoles)
	ev := models.NewMessageEvent(guildID, authorID, m.Content, mentions, time.Now())
	if m.Member != nil {
		ev.ActorRoles = make([]uint64, 0, len(m.Member.Roles))
		for _, rid := range m.Member.Roles {
			if id, err := util.ParseSnowflake(rid); err == nil {
				ev.ActorRoles = append(ev.ActorRoles, id)
			}
		}
	}
	return ev, true
}
