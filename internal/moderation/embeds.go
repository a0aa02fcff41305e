package moderation

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/caesarakalaeii/streamer-verification/internal/storage"
)

// Risk level embed colors
const (
	colorDarkRed = 0x992D22
	colorRed     = 0xE74C3C
	colorOrange  = 0xE67E22
	colorGold    = 0xF1C40F
	colorGreen   = 0x2ECC71
)

func riskColor(level storage.RiskLevel) int {
	switch level {
	case storage.RiskCritical:
		return colorDarkRed
	case storage.RiskHigh:
		return colorRed
	case storage.RiskMedium:
		return colorOrange
	default:
		return colorGold
	}
}

func riskDisplay(level storage.RiskLevel) string {
	emoji := map[storage.RiskLevel]string{
		storage.RiskCritical: "🔴",
		storage.RiskHigh:     "🟠",
		storage.RiskMedium:   "🟡",
		storage.RiskLow:      "🟢",
	}[level]
	return fmt.Sprintf("%s %s", emoji, strings.ToUpper(string(level)))
}

// AlertEmbed builds the moderation-channel alert for a detection.
func AlertEmbed(d *storage.DetectionRecord) *discordgo.MessageEmbed {
	ageText := fmt.Sprintf("%d days", d.MemberAccountAgeDays)
	if d.MemberAccountAgeDays == 1 {
		ageText = "1 day"
	}

	var indicators []string
	if d.UsernameSimilarity > 0 {
		indicators = append(indicators, fmt.Sprintf("• Username Match: %d/40", d.UsernameSimilarity))
	}
	if d.AccountAge > 0 {
		indicators = append(indicators, fmt.Sprintf("• New Account: %d/20", d.AccountAge))
	}
	if d.BioMatch > 0 {
		indicators = append(indicators, fmt.Sprintf("• Bio Match: %d/20", d.BioMatch))
	}
	if d.CreatorPopularity > 0 {
		indicators = append(indicators, fmt.Sprintf("• Target Range: %d/10", d.CreatorPopularity))
	}
	if d.DiscordAbsence > 0 {
		indicators = append(indicators, fmt.Sprintf("• No Discord Link: %d/10", d.DiscordAbsence))
	}
	if d.AvatarMatch > 0 {
		indicators = append(indicators, fmt.Sprintf("• Avatar Match: %d/10", d.AvatarMatch))
	}

	var recommendation string
	switch d.RiskLevel {
	case storage.RiskCritical:
		recommendation = "🔴 **Immediate review recommended** - Very high confidence"
	case storage.RiskHigh:
		recommendation = "🟠 **Review recommended** - High confidence"
	case storage.RiskMedium:
		recommendation = "🟡 **Monitor** - Moderate suspicion"
	default:
		recommendation = "🟢 **Low priority** - Minor similarity"
	}

	return &discordgo.MessageEmbed{
		Title:       "🚨 Suspicious User Detected",
		Description: fmt.Sprintf("Potential impersonation of **%s**", d.SuspectedUsername),
		Color:       riskColor(d.RiskLevel),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "👤 User Information",
				Value: fmt.Sprintf("**Username:** %s\n**User ID:** %s\n**Mention:** <@%s>\n**Account Age:** %s",
					d.MemberUsername, d.MemberID, d.MemberID, ageText),
			},
			{
				Name: "🔍 Detection Details",
				Value: fmt.Sprintf("**Score:** ⚠️ %d/100 (%s)\n**Suspected Streamer:** %s\n**Followers:** %d",
					d.TotalScore, riskDisplay(d.RiskLevel), d.SuspectedUsername, d.SuspectedFollowers),
			},
			{
				Name:  "📊 Key Indicators",
				Value: strings.Join(indicators, "\n"),
			},
			{
				Name:  "💡 Recommended Action",
				Value: recommendation,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Detection ID: %d | Trigger: %s", d.ID, d.Trigger),
		},
		Timestamp: d.DetectedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// AlertButtons builds the action row for an alert. Custom IDs carry the
// detection ID so clicks resolve through storage alone.
func AlertButtons(detectionID int64) []discordgo.MessageComponent {
	customID := func(action Action) string {
		return fmt.Sprintf("impersonation:%s:%d", action, detectionID)
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Ban", Style: discordgo.DangerButton, CustomID: customID(ActionBan)},
				discordgo.Button{Label: "Kick", Style: discordgo.DangerButton, CustomID: customID(ActionKick)},
				discordgo.Button{Label: "Warn", Style: discordgo.PrimaryButton, CustomID: customID(ActionWarn)},
				discordgo.Button{Label: "Mark Safe", Style: discordgo.SecondaryButton, CustomID: customID(ActionMarkSafe)},
				discordgo.Button{Label: "False Positive", Style: discordgo.SuccessButton, CustomID: customID(ActionFalsePositive)},
			},
		},
	}
}

// VerificationDMEmbed explains a flag to the affected member.
func VerificationDMEmbed(d *storage.DetectionRecord, guildName string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🔍 Identity Verification Required",
		Description: "Our automated system has flagged your account for potential impersonation.",
		Color:       colorOrange,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "What happened?",
				Value: fmt.Sprintf("Your username and profile closely resemble the Twitch streamer **%s**.",
					d.SuspectedUsername),
			},
			{
				Name: "If you are NOT impersonating anyone:",
				Value: "1. Contact server moderators to explain\n" +
					"2. Consider changing your username/avatar if similar to the streamer\n" +
					"3. Wait for moderator review",
			},
			{
				Name: "If you ARE the actual streamer:",
				Value: "1. Verify your identity with server moderators\n" +
					"2. Use `/verify` to link your official Twitch account\n" +
					"3. This will prevent future flags",
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("This is an automated message from %s", guildName),
		},
	}
}

// WarningDMEmbed is sent when a moderator chooses the warn action.
func WarningDMEmbed(d *storage.DetectionRecord, guildName, reason string) *discordgo.MessageEmbed {
	if reason == "" {
		reason = "Suspected impersonation behavior"
	}
	return &discordgo.MessageEmbed{
		Title:       "⚠️ Warning from Server Moderators",
		Description: fmt.Sprintf("You have been warned in **%s**", guildName),
		Color:       colorOrange,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Reason", Value: reason},
			{
				Name:  "Action Required",
				Value: "Please review your username and profile to avoid confusion with other users.",
			},
		},
	}
}
