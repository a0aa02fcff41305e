// Package moderation owns the detection-record lifecycle: persisting scored
// evaluations, posting alerts, applying per-guild handling policy and
// executing moderator decisions.
package moderation

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/caesarakalaeii/streamer-verification/internal/detect"
	"github.com/caesarakalaeii/streamer-verification/internal/storage"
)

// Action is a moderator decision on a detection record.
type Action string

const (
	ActionBan           Action = "ban"
	ActionKick          Action = "kick"
	ActionWarn          Action = "warn"
	ActionMarkSafe      Action = "mark-safe"
	ActionFalsePositive Action = "false-positive"
)

// Moderator identifies who took an action.
type Moderator struct {
	ID       string
	Username string
}

// ActionResult reports the outcome of executing a moderator action.
type ActionResult struct {
	Status  storage.DetectionStatus
	Message string
	// Applied is false when the record was already terminal and the call
	// was a no-op (repeated button clicks).
	Applied bool
}

// Gateway is the slice of the chat platform the manager needs. Implemented
// by the Discord session adapter; faked in tests.
type Gateway interface {
	SendAlert(channelID string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) (messageID string, err error)
	AddRole(guildID, userID, roleID string) error
	SendDM(userID string, embed *discordgo.MessageEmbed) error
	Kick(guildID, userID, reason string) error
	Ban(guildID, userID, reason string) error
	GuildName(guildID string) string
}

// Manager drives the per-record moderation state machine
// (pending -> reviewed | whitelisted | actioned).
type Manager struct {
	repo    *storage.Repository
	gateway Gateway
}

// NewManager creates a Manager.
func NewManager(repo *storage.Repository, gateway Gateway) *Manager {
	return &Manager{repo: repo, gateway: gateway}
}

// HandleDetection persists an evaluation and applies the guild's handling
// policy: alert post, auto-quarantine and auto-DM. Quarantine and DM run
// concurrently and are strictly best-effort; their failures never roll back
// the record or block the alert.
func (m *Manager) HandleDetection(eval *detect.Evaluation, policy *storage.GuildPolicy, trigger storage.Trigger) (*storage.DetectionRecord, error) {
	record, err := m.repo.UpsertDetection(&storage.DetectionRecord{
		GuildID:              eval.Member.GuildID,
		MemberID:             eval.Member.ID,
		MemberUsername:       eval.Member.Username,
		MemberAccountAgeDays: eval.Member.AccountAgeDays,
		MemberBio:            eval.Member.Bio,
		SuspectedID:          eval.Streamer.TwitchUserID,
		SuspectedUsername:    eval.Streamer.Username,
		SuspectedFollowers:   eval.Streamer.FollowerCount,
		UsernameSimilarity:   eval.Scores.UsernameSimilarity,
		AccountAge:           eval.Scores.AccountAge,
		BioMatch:             eval.Scores.BioMatch,
		CreatorPopularity:    eval.Scores.CreatorPopularity,
		DiscordAbsence:       eval.Scores.DiscordAbsence,
		AvatarMatch:          eval.Scores.AvatarMatch,
		TotalScore:           eval.Scores.Total,
		RiskLevel:            eval.Scores.RiskLevel,
		Trigger:              trigger,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Detection recorded",
		"member", record.MemberUsername,
		"suspected", record.SuspectedUsername,
		"score", record.TotalScore,
		"risk", record.RiskLevel,
		"guild", record.GuildID)

	if record.Status != storage.StatusPending {
		// Terminal record refreshed with new scores; no further handling.
		return record, nil
	}

	if policy == nil {
		return record, nil
	}

	m.postAlert(record, policy)

	var wg sync.WaitGroup
	if policy.AutoQuarantine {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.applyQuarantine(record, policy)
		}()
	}
	if policy.AutoDM {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.sendVerificationDM(record)
		}()
	}
	wg.Wait()

	return record, nil
}

// postAlert sends the alert embed with action buttons to the moderation
// channel and binds the returned message ID to the record so buttons can be
// resolved from storage after a restart.
func (m *Manager) postAlert(record *storage.DetectionRecord, policy *storage.GuildPolicy) {
	if policy.ModerationChannelID == "" {
		slog.Warn("No moderation channel configured, skipping alert", "guild", record.GuildID)
		return
	}

	messageID, err := m.gateway.SendAlert(policy.ModerationChannelID,
		AlertEmbed(record), AlertButtons(record.ID))
	if err != nil {
		slog.Error("Failed to post alert", "detection", record.ID, "error", err)
		return
	}

	if err := m.repo.SetAlertMessageID(record.ID, messageID); err != nil {
		slog.Error("Failed to bind alert message to detection", "detection", record.ID, "error", err)
		return
	}
	record.AlertMessageID = messageID
}

// applyQuarantine assigns the configured quarantine role. Permission or
// hierarchy failures are logged and swallowed.
func (m *Manager) applyQuarantine(record *storage.DetectionRecord, policy *storage.GuildPolicy) {
	if policy.QuarantineRoleID == "" {
		slog.Warn("Auto-quarantine enabled but no role configured", "guild", record.GuildID)
		return
	}
	if err := m.gateway.AddRole(record.GuildID, record.MemberID, policy.QuarantineRoleID); err != nil {
		slog.Error("Failed to apply quarantine role",
			"member", record.MemberID, "guild", record.GuildID, "error", err)
		return
	}
	slog.Info("Applied quarantine role", "member", record.MemberID, "guild", record.GuildID)
}

// sendVerificationDM tells the member how to clear the flag. Closed DMs are
// expected and non-fatal.
func (m *Manager) sendVerificationDM(record *storage.DetectionRecord) {
	embed := VerificationDMEmbed(record, m.gateway.GuildName(record.GuildID))
	if err := m.gateway.SendDM(record.MemberID, embed); err != nil {
		slog.Warn("Could not DM flagged member", "member", record.MemberID, "error", err)
		return
	}
	slog.Info("Sent verification DM", "member", record.MemberID)
}

// ExecuteAction applies a moderator decision to a detection record.
//
// ban/kick/warn move the record to actioned, mark-safe to reviewed and
// false-positive to whitelisted (also inserting a whitelist entry so the
// member is never re-flagged). Re-invoking an action on a terminal record is
// a no-op returning the current state, which makes repeated button clicks
// harmless.
func (m *Manager) ExecuteAction(detectionID int64, action Action, moderator Moderator, reason string, notes string) (*ActionResult, error) {
	record, err := m.repo.GetDetectionByID(detectionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("detection %d not found", detectionID)
	}

	if record.Status == storage.StatusActioned || record.Status == storage.StatusWhitelisted {
		return &ActionResult{
			Status:  record.Status,
			Message: fmt.Sprintf("Detection already resolved (%s)", record.Status),
			Applied: false,
		}, nil
	}

	var (
		status  storage.DetectionStatus
		message string
	)

	switch action {
	case ActionBan:
		if reason == "" {
			reason = "Confirmed impersonation attempt"
		}
		if err := m.gateway.Ban(record.GuildID, record.MemberID, reason); err != nil {
			return nil, fmt.Errorf("ban failed: %w", err)
		}
		status = storage.StatusActioned
		message = fmt.Sprintf("Banned %s", record.MemberUsername)

	case ActionKick:
		if reason == "" {
			reason = "Suspected impersonation"
		}
		if err := m.gateway.Kick(record.GuildID, record.MemberID, reason); err != nil {
			return nil, fmt.Errorf("kick failed: %w", err)
		}
		status = storage.StatusActioned
		message = fmt.Sprintf("Kicked %s", record.MemberUsername)

	case ActionWarn:
		embed := WarningDMEmbed(record, m.gateway.GuildName(record.GuildID), reason)
		if err := m.gateway.SendDM(record.MemberID, embed); err != nil {
			slog.Warn("Could not DM warning", "member", record.MemberID, "error", err)
		}
		status = storage.StatusActioned
		message = fmt.Sprintf("Warned %s", record.MemberUsername)

	case ActionMarkSafe:
		status = storage.StatusReviewed
		message = fmt.Sprintf("Marked %s as safe", record.MemberUsername)

	case ActionFalsePositive:
		if reason == "" {
			reason = "Marked as false positive"
		}
		if err := m.repo.AddWhitelistEntry(&storage.WhitelistEntry{
			GuildID:         record.GuildID,
			MemberID:        record.MemberID,
			MemberUsername:  record.MemberUsername,
			Reason:          reason,
			AddedByID:       moderator.ID,
			AddedByUsername: moderator.Username,
		}); err != nil {
			return nil, fmt.Errorf("whitelist insert failed: %w", err)
		}
		status = storage.StatusWhitelisted
		message = fmt.Sprintf("Added %s to whitelist", record.MemberUsername)

	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}

	if err := m.repo.UpdateDetectionStatus(record.ID, status,
		moderator.ID, moderator.Username, string(action), notes); err != nil {
		return nil, fmt.Errorf("failed to update detection status: %w", err)
	}

	if err := m.repo.InsertAuditEntry(&storage.AuditEntry{
		GuildID:        record.GuildID,
		MemberID:       record.MemberID,
		MemberUsername: record.MemberUsername,
		Action:         "impersonation_" + string(action),
		Reason:         reason,
	}); err != nil {
		slog.Error("Failed to write audit entry", "detection", record.ID, "error", err)
	}

	slog.Info("Executed moderation action",
		"detection", record.ID, "action", action, "moderator", moderator.ID)

	return &ActionResult{Status: status, Message: message, Applied: true}, nil
}

// ResolveAlert maps an alert message back to its detection record.
func (m *Manager) ResolveAlert(messageID string) (*storage.DetectionRecord, error) {
	return m.repo.GetDetectionByAlertMessage(messageID)
}
