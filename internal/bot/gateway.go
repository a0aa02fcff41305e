package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// sessionGateway adapts a discordgo session to the moderation.Gateway
// interface.
type sessionGateway struct {
	session *discordgo.Session
}

func (g *sessionGateway) SendAlert(channelID string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) (string, error) {
	msg, err := g.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send alert message: %w", err)
	}
	return msg.ID, nil
}

func (g *sessionGateway) AddRole(guildID, userID, roleID string) error {
	return g.session.GuildMemberRoleAdd(guildID, userID, roleID)
}

func (g *sessionGateway) SendDM(userID string, embed *discordgo.MessageEmbed) error {
	channel, err := g.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("failed to open DM channel: %w", err)
	}
	_, err = g.session.ChannelMessageSendEmbed(channel.ID, embed)
	return err
}

func (g *sessionGateway) Kick(guildID, userID, reason string) error {
	return g.session.GuildMemberDeleteWithReason(guildID, userID, reason)
}

func (g *sessionGateway) Ban(guildID, userID, reason string) error {
	return g.session.GuildBanCreateWithReason(guildID, userID, reason, 0)
}

func (g *sessionGateway) GuildName(guildID string) string {
	if guild, err := g.session.State.Guild(guildID); err == nil && guild.Name != "" {
		return guild.Name
	}
	if guild, err := g.session.Guild(guildID); err == nil {
		return guild.Name
	}
	return "this server"
}
