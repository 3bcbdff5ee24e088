package gateway

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-guardian/internal/models"
)

func guildMessage(content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "100",
		Content: content,
		Author:  &discordgo.User{ID: "200"},
	}}
}

func TestMessageEventMapsMessageFields(t *testing.T) {
	m := guildMessage("hello")
	m.Member = &discordgo.Member{Roles: []string{"300", "301"}}

	ev, ok := messageEvent(m)
	require.True(t, ok)
	assert.Equal(t, models.EventKindMessage, ev.Kind)
	assert.Equal(t, uint64(100), ev.GuildID)
	assert.Equal(t, uint64(200), ev.ActorID)
	assert.Equal(t, "hello", ev.Content)
	assert.Equal(t, []uint64{300, 301}, ev.ActorRoles)
}

func TestMessageEventCountsRoleMentions(t *testing.T) {
	m := guildMessage("@everyone look")
	m.Mentions = []*discordgo.User{{ID: "1"}, {ID: "2"}}
	m.MentionRoles = []string{"400", "401", "402"}

	ev, ok := messageEvent(m)
	require.True(t, ok)
	assert.Equal(t, 5, ev.MentionCount, "user and role pings both count")
}

func TestMessageEventRejectsBadSnowflakes(t *testing.T) {
	m := guildMessage("x")
	m.GuildID = "not-a-snowflake"
	_, ok := messageEvent(m)
	assert.False(t, ok)

	m = guildMessage("x")
	m.Author.ID = ""
	_, ok = messageEvent(m)
	assert.False(t, ok)
}
