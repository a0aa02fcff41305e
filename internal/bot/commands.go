package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/caesarakalaeii/streamer-verification/internal/storage"
	"github.com/caesarakalaeii/streamer-verification/internal/twitch"
)

const (
	minScoreFloor   = 40
	minScoreCeiling = 100

	reviewListLimit = 10
)

// Slash command definitions. All commands require Manage Server; the scan
// command additionally checks nothing else because the sweep itself only
// reads members and posts alerts.
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	manageGuild := int64(discordgo.PermissionManageGuild)

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "impersonation-setup",
			Description:              "Enable impersonation detection in this server",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "alert_channel",
					Description: "Channel for moderation alerts",
					Required:    true,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "min_score",
					Description: "Alert threshold, 40-100 (default 60)",
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "quarantine_role",
					Description: "Role applied automatically to flagged members",
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "auto_dm",
					Description: "DM flagged members with verification steps (default true)",
				},
			},
		},
		{
			Name:                     "impersonation-config",
			Description:              "View or change detection settings",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Turn detection on or off",
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "min_score",
					Description: "Alert threshold, 40-100",
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "trusted_role",
					Description: "Add a role whose members are never flagged",
				},
			},
		},
		{
			Name:                     "impersonation-review",
			Description:              "List pending detections in this server",
			DefaultMemberPermissions: &manageGuild,
		},
		{
			Name:                     "impersonation-details",
			Description:              "Show the full score breakdown for a detection",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "detection_id",
					Description: "Detection ID from the alert footer",
					Required:    true,
				},
			},
		},
		{
			Name:                     "impersonation-whitelist",
			Description:              "Manage the detection whitelist",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Exempt a member from detection",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "member",
							Description: "Member to whitelist",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "reason",
							Description: "Why this member is exempt",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Remove a member from the whitelist",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "member",
							Description: "Member to remove",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "Show all whitelisted members",
				},
			},
		},
		{
			Name:                     "impersonation-stats",
			Description:              "Show detection and cache statistics",
			DefaultMemberPermissions: &manageGuild,
		},
		{
			Name:                     "impersonation-cache-refresh",
			Description:              "Fetch or refresh a streamer in the identity cache",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "twitch_login",
					Description: "Twitch login name of the streamer",
					Required:    true,
				},
			},
		},
		{
			Name:                     "impersonation-scan",
			Description:              "Scan all current members for impersonation",
			DefaultMemberPermissions: &manageGuild,
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			"", // Empty string = global command
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// handleSetup handles /impersonation-setup
func (b *Bot) handleSetup(s *discordgo.Session, i *discordgo.InteractionCreate) {
	policy := &storage.GuildPolicy{
		GuildID:  i.GuildID,
		Enabled:  true,
		MinScore: 60,
		AutoDM:   true,
	}

	// Preserve settings from an earlier setup
	if existing, err := b.repo.GetGuildPolicy(i.GuildID); err == nil && existing != nil {
		policy = existing
		policy.Enabled = true
	}

	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "alert_channel":
			policy.ModerationChannelID = opt.ChannelValue(s).ID
		case "min_score":
			score := int(opt.IntValue())
			if score < minScoreFloor || score > minScoreCeiling {
				respondWithMessage(s, i, fmt.Sprintf("`min_score` must be between %d and %d.", minScoreFloor, minScoreCeiling))
				return
			}
			policy.MinScore = score
		case "quarantine_role":
			policy.QuarantineRoleID = opt.RoleValue(s, i.GuildID).ID
			policy.AutoQuarantine = true
		case "auto_dm":
			policy.AutoDM = opt.BoolValue()
		}
	}

	if err := b.repo.SaveGuildPolicy(policy); err != nil {
		slog.Error("Failed to save guild policy", "guild", i.GuildID, "error", err)
		respondWithMessage(s, i, "Failed to save settings. Please try again.")
		return
	}

	respondWithMessage(s, i, fmt.Sprintf(
		"Impersonation detection is now **enabled**.\nAlerts go to <#%s>, threshold %d/100.",
		policy.ModerationChannelID, policy.MinScore))
}

// handleConfig handles /impersonation-config
func (b *Bot) handleConfig(s *discordgo.Session, i *discordgo.InteractionCreate) {
	policy, err := b.repo.GetGuildPolicy(i.GuildID)
	if err != nil {
		slog.Error("Failed to load guild policy", "guild", i.GuildID, "error", err)
		respondWithMessage(s, i, "Failed to load settings. Please try again.")
		return
	}
	if policy == nil {
		respondWithMessage(s, i, "Detection is not set up yet. Run `/impersonation-setup` first.")
		return
	}

	options := i.ApplicationCommandData().Options

	// No options: show the current configuration
	if len(options) == 0 {
		var sb strings.Builder
		sb.WriteString("**Detection Settings:**\n")
		sb.WriteString(fmt.Sprintf("Enabled: %v\n", policy.Enabled))
		sb.WriteString(fmt.Sprintf("Alert channel: <#%s>\n", policy.ModerationChannelID))
		sb.WriteString(fmt.Sprintf("Alert threshold: %d/100\n", policy.MinScore))
		sb.WriteString(fmt.Sprintf("Auto-quarantine: %v", policy.AutoQuarantine))
		if policy.QuarantineRoleID != "" {
			sb.WriteString(fmt.Sprintf(" (<@&%s>)", policy.QuarantineRoleID))
		}
		sb.WriteString(fmt.Sprintf("\nAuto-DM: %v\n", policy.AutoDM))
		if len(policy.TrustedRoleIDs) > 0 {
			mentions := make([]string, len(policy.TrustedRoleIDs))
			for idx, roleID := range policy.TrustedRoleIDs {
				mentions[idx] = fmt.Sprintf("<@&%s>", roleID)
			}
			sb.WriteString("Trusted roles: " + strings.Join(mentions, ", "))
		}
		respondWithMessage(s, i, sb.String())
		return
	}

	for _, opt := range options {
		switch opt.Name {
		case "enabled":
			policy.Enabled = opt.BoolValue()
		case "min_score":
			score := int(opt.IntValue())
			if score < minScoreFloor || score > minScoreCeiling {
				respondWithMessage(s, i, fmt.Sprintf("`min_score` must be between %d and %d.", minScoreFloor, minScoreCeiling))
				return
			}
			policy.MinScore = score
		case "trusted_role":
			roleID := opt.RoleValue(s, i.GuildID).ID
			exists := false
			for _, id := range policy.TrustedRoleIDs {
				if id == roleID {
					exists = true
					break
				}
			}
			if !exists {
				policy.TrustedRoleIDs = append(policy.TrustedRoleIDs, roleID)
			}
		}
	}

	if err := b.repo.SaveGuildPolicy(policy); err != nil {
		slog.Error("Failed to save guild policy", "guild", i.GuildID, "error", err)
		respondWithMessage(s, i, "Failed to save settings. Please try again.")
		return
	}

	respondWithMessage(s, i, "Settings updated.")
}

// handleReview handles /impersonation-review
func (b *Bot) handleReview(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pending, err := b.repo.GetPendingDetections(i.GuildID, reviewListLimit)
	if err != nil {
		slog.Error("Failed to list pending detections", "guild", i.GuildID, "error", err)
		respondWithMessage(s, i, "Failed to load pending detections.")
		return
	}

	if len(pending) == 0 {
		respondWithMessage(s, i, "No pending detections. All clear!")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Pending Detections (%d):**\n\n", len(pending)))
	for _, d := range pending {
		sb.WriteString(fmt.Sprintf("`#%d` <@%s> — suspected **%s**, score %d/100 (%s)\n",
			d.ID, d.MemberID, d.SuspectedUsername, d.TotalScore, d.RiskLevel))
	}
	sb.WriteString("\nUse `/impersonation-details detection_id:<id>` for the full breakdown.")

	respondWithMessage(s, i, sb.String())
}

// handleDetails handles /impersonation-details
func (b *Bot) handleDetails(s *discordgo.Session, i *discordgo.InteractionCreate) {
	detectionID := i.ApplicationCommandData().Options[0].IntValue()

	record, err := b.repo.GetDetectionByID(detectionID)
	if err != nil {
		slog.Error("Failed to load detection", "detection", detectionID, "error", err)
		respondWithMessage(s, i, "Failed to load detection.")
		return
	}
	if record == nil || record.GuildID != i.GuildID {
		respondWithMessage(s, i, fmt.Sprintf("No detection `#%d` in this server.", detectionID))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Detection `#%d`** — <@%s> vs **%s**\n\n", record.ID, record.MemberID, record.SuspectedUsername))
	sb.WriteString(fmt.Sprintf("Username similarity: %d/40\n", record.UsernameSimilarity))
	sb.WriteString(fmt.Sprintf("Account age (%d days): %d/20\n", record.MemberAccountAgeDays, record.AccountAge))
	sb.WriteString(fmt.Sprintf("Bio match: %d/20\n", record.BioMatch))
	sb.WriteString(fmt.Sprintf("Creator popularity (%d followers): %d/10\n", record.SuspectedFollowers, record.CreatorPopularity))
	sb.WriteString(fmt.Sprintf("No Discord link: %d/10\n", record.DiscordAbsence))
	sb.WriteString(fmt.Sprintf("Avatar match: %d/10\n", record.AvatarMatch))
	sb.WriteString(fmt.Sprintf("\n**Total: %d/100 (%s)**\n", record.TotalScore, strings.ToUpper(string(record.RiskLevel))))
	sb.WriteString(fmt.Sprintf("Status: %s | Trigger: %s | Detected: %s\n",
		record.Status, record.Trigger, record.DetectedAt.Format("2006-01-02 15:04 UTC")))
	if record.ReviewerUsername != "" {
		sb.WriteString(fmt.Sprintf("Reviewed by %s (%s)\n", record.ReviewerUsername, record.Action))
	}

	respondWithMessage(s, i, sb.String())
}

// handleWhitelist handles the /impersonation-whitelist subcommands
func (b *Bot) handleWhitelist(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sub := i.ApplicationCommandData().Options[0]

	switch sub.Name {
	case "add":
		user := sub.Options[0].UserValue(s)
		reason := "Manually whitelisted"
		if len(sub.Options) > 1 {
			reason = sub.Options[1].StringValue()
		}

		entry := &storage.WhitelistEntry{
			GuildID:        i.GuildID,
			MemberID:       user.ID,
			MemberUsername: user.Username,
			Reason:         reason,
		}
		if i.Member != nil && i.Member.User != nil {
			entry.AddedByID = i.Member.User.ID
			entry.AddedByUsername = i.Member.User.Username
		}

		if err := b.repo.AddWhitelistEntry(entry); err != nil {
			slog.Error("Failed to add whitelist entry", "member", user.ID, "error", err)
			respondWithMessage(s, i, "Failed to update whitelist.")
			return
		}
		respondWithMessage(s, i, fmt.Sprintf("`%s` is now exempt from detection.", user.Username))

	case "remove":
		user := sub.Options[0].UserValue(s)
		removed, err := b.repo.RemoveWhitelistEntry(i.GuildID, user.ID)
		if err != nil {
			slog.Error("Failed to remove whitelist entry", "member", user.ID, "error", err)
			respondWithMessage(s, i, "Failed to update whitelist.")
			return
		}
		if !removed {
			respondWithMessage(s, i, fmt.Sprintf("`%s` was not on the whitelist.", user.Username))
			return
		}
		respondWithMessage(s, i, fmt.Sprintf("Removed `%s` from the whitelist.", user.Username))

	case "list":
		entries, err := b.repo.ListWhitelist(i.GuildID)
		if err != nil {
			slog.Error("Failed to list whitelist", "guild", i.GuildID, "error", err)
			respondWithMessage(s, i, "Failed to load whitelist.")
			return
		}
		if len(entries) == 0 {
			respondWithMessage(s, i, "The whitelist is empty.")
			return
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("**Whitelisted Members (%d):**\n\n", len(entries)))
		for idx, e := range entries {
			sb.WriteString(fmt.Sprintf("%d. <@%s> — %s\n", idx+1, e.MemberID, e.Reason))
		}
		respondWithMessage(s, i, sb.String())
	}
}

// handleStats handles /impersonation-stats
func (b *Bot) handleStats(s *discordgo.Session, i *discordgo.InteractionCreate) {
	counts, err := b.repo.CountDetectionsByStatus(i.GuildID)
	if err != nil {
		slog.Error("Failed to count detections", "guild", i.GuildID, "error", err)
		respondWithMessage(s, i, "Failed to load statistics.")
		return
	}

	cacheSize, err := b.cache.Size()
	if err != nil {
		slog.Error("Failed to count cached streamers", "error", err)
		respondWithMessage(s, i, "Failed to load statistics.")
		return
	}

	var sb strings.Builder
	sb.WriteString("**Detection Statistics:**\n")
	sb.WriteString(fmt.Sprintf("Pending: %d | Reviewed: %d | Whitelisted: %d | Actioned: %d\n\n",
		counts[storage.StatusPending], counts[storage.StatusReviewed],
		counts[storage.StatusWhitelisted], counts[storage.StatusActioned]))
	sb.WriteString(fmt.Sprintf("**Identity Cache:** %d streamers\n", cacheSize))

	if top, err := b.cache.TopHits(5); err == nil && len(top) > 0 {
		sb.WriteString("Most matched:\n")
		for idx, p := range top {
			sb.WriteString(fmt.Sprintf("  %d. `%s` (%d hits)\n", idx+1, p.Username, p.HitCount))
		}
	}

	respondWithMessage(s, i, sb.String())
}

// handleCacheRefresh handles /impersonation-cache-refresh
func (b *Bot) handleCacheRefresh(s *discordgo.Session, i *discordgo.InteractionCreate) {
	login := strings.TrimSpace(i.ApplicationCommandData().Options[0].StringValue())

	// Respond immediately to avoid timeout
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	profile, err := b.fetcher.FetchByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, twitch.ErrNotFound) {
			b.editResponse(s, i, fmt.Sprintf("No Twitch user named `%s`.", login))
			return
		}
		slog.Error("Failed to refresh streamer", "login", login, "error", err)
		b.editResponse(s, i, fmt.Sprintf("Could not fetch `%s` from Twitch. Please try again.", login))
		return
	}

	b.editResponse(s, i, fmt.Sprintf("Cached **%s** (%s followers).",
		profile.DisplayName, formatCount(profile.FollowerCount)))
}

// handleScan handles /impersonation-scan
func (b *Bot) handleScan(s *discordgo.Session, i *discordgo.InteractionCreate) {
	policy, err := b.repo.GetGuildPolicy(i.GuildID)
	if err != nil || policy == nil || !policy.Enabled {
		respondWithMessage(s, i, "Detection is not enabled here. Run `/impersonation-setup` first.")
		return
	}

	// Respond immediately to avoid timeout; the sweep itself runs detached
	// because it can outlive the interaction token.
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
		defer cancel()

		var content string
		summary, err := b.scanGuild(ctx, policy)
		if err != nil {
			slog.Error("Manual scan failed", "guild", i.GuildID, "error", err)
			content = "Scan failed. Check the logs for details."
		} else {
			content = fmt.Sprintf(
				"Scan complete: **%d** members checked, **%d** flagged, %d skipped, %d errors.",
				summary.Scanned, summary.Flagged, summary.Skipped, summary.Errored)
		}

		deliverScanResult(
			func(msg string) error { return b.editResponse(s, i, msg) },
			func(msg string) error {
				_, err := s.ChannelMessageSend(policy.ModerationChannelID, msg)
				return err
			},
			content)
	}()
}

// deliverScanResult reports a finished sweep. Interaction tokens expire after
// 15 minutes, so a sweep that outlives the deferred response falls back to
// posting in the moderation channel.
func deliverScanResult(edit, announce func(content string) error, content string) {
	if err := edit(content); err == nil {
		return
	}
	if err := announce(content); err != nil {
		slog.Error("Failed to report scan result", "error", err)
	}
}

// Helper functions

func respondWithMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
}

func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	return err
}

func formatCount(n int) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return strconv.Itoa(n)
}
