package dispatcher

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"go-guardian/internal/logging"
	"go-guardian/pkg/util"
)

// DiscordExecutor applies directives through the Discord REST API. Mutes
// use the native timeout facility, same as the moderation flow it replaces.
type DiscordExecutor struct {
	session *discordgo.Session
}

func NewDiscordExecutor(session *discordgo.Session) *DiscordExecutor {
	return &DiscordExecutor{session: session}
}

func (e *DiscordExecutor) Ban(guildID, userID uint64, reason string) error {
	return e.session.GuildBanCreateWithReason(
		util.SnowflakeString(guildID), util.SnowflakeString(userID), reason, 0)
}

func (e *DiscordExecutor) Kick(guildID, userID uint64, reason string) error {
	return e.session.GuildMemberDeleteWithReason(
		util.SnowflakeString(guildID), util.SnowflakeString(userID), reason)
}

func (e *DiscordExecutor) Mute(guildID, userID uint64, duration time.Duration, reason string) error {
	until := time.Now().Add(duration)
	return e.session.GuildMemberTimeout(
		util.SnowflakeString(guildID), util.SnowflakeString(userID), &until)
}

// Warn notifies the user over DM. Users with DMs closed reject the send;
// that is not worth failing the directive for, so only channel creation
// errors surface.
func (e *DiscordExecutor) Warn(guildID, userID uint64, reason string) error {
	channel, err := e.session.UserChannelCreate(util.SnowflakeString(userID))
	if err != nil {
		return err
	}
	if _, err := e.session.ChannelMessageSend(channel.ID,
		fmt.Sprintf("⚠️ You have been warned.\n**Reason:** %s", reason)); err != nil {
		logging.Log().WithError(err).WithField("user", userID).Debug("warn DM rejected")
	}
	return nil
}
