package bot

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/caesarakalaeii/streamer-verification/internal/moderation"
)

const componentPrefix = "impersonation"

// handleComponent processes alert button clicks. The custom ID carries the
// detection ID, so clicks resolve through storage alone and keep working
// across bot restarts.
func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID

	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != componentPrefix {
		return
	}

	action := moderation.Action(parts[1])
	detectionID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		slog.Warn("Malformed component ID", "customID", customID)
		return
	}

	moderator := moderation.Moderator{}
	if i.Member != nil && i.Member.User != nil {
		moderator.ID = i.Member.User.ID
		moderator.Username = i.Member.User.Username
	}

	result, err := b.manager.ExecuteAction(detectionID, action, moderator, "", "")
	if err != nil {
		slog.Error("Failed to execute moderation action",
			"detection", detectionID, "action", action, "error", err)
		respondEphemeral(s, i, fmt.Sprintf("Action failed: %v", err))
		return
	}

	if !result.Applied {
		respondEphemeral(s, i, result.Message)
		return
	}

	b.resolveAlertMessage(s, i, result, moderator)
}

// resolveAlertMessage replaces the alert's buttons with a resolution note so
// the channel shows who handled the detection.
func (b *Bot) resolveAlertMessage(s *discordgo.Session, i *discordgo.InteractionCreate, result *moderation.ActionResult, moderator moderation.Moderator) {
	embeds := i.Message.Embeds
	if len(embeds) > 0 {
		embeds[0].Fields = append(embeds[0].Fields, &discordgo.MessageEmbedField{
			Name:  "✅ Resolved",
			Value: fmt.Sprintf("%s — by <@%s>", result.Message, moderator.ID),
		})
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     embeds,
			Components: []discordgo.MessageComponent{},
		},
	})
	if err != nil {
		slog.Error("Failed to update alert message", "message", i.Message.ID, "error", err)
	}
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}
