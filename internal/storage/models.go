package storage

import "time"

// RiskLevel classifies a detection's total score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelForScore maps a total score to its risk classification.
func RiskLevelForScore(total int) RiskLevel {
	switch {
	case total >= 80:
		return RiskCritical
	case total >= 60:
		return RiskHigh
	case total >= 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// DetectionStatus is the moderation state of a detection record.
type DetectionStatus string

const (
	StatusPending     DetectionStatus = "pending"
	StatusReviewed    DetectionStatus = "reviewed"
	StatusWhitelisted DetectionStatus = "whitelisted"
	StatusActioned    DetectionStatus = "actioned"
)

// Trigger identifies what caused a detection check to run.
type Trigger string

const (
	TriggerJoin      Trigger = "join"
	TriggerBatchScan Trigger = "batch-scan"
	TriggerManual    Trigger = "manual"
)

// StreamerProfile is a cached Twitch creator identity
type StreamerProfile struct {
	ID              int64
	TwitchUserID    string
	Username        string // login, stored lower-cased for similarity search
	DisplayName     string
	FollowerCount   int
	Bio             string
	AvatarURL       string
	AvatarHash      string // difference-hash string, empty if never computed
	HasDiscordLink  bool
	CachedAt        time.Time
	LastRefreshedAt time.Time
	HitCount        int64
}

// DetectionRecord is the persisted outcome of scoring a member against a
// suspected streamer. At most one row exists per (GuildID, MemberID).
type DetectionRecord struct {
	ID                    int64
	GuildID               string
	MemberID              string
	MemberUsername        string
	MemberAccountAgeDays  int
	MemberBio             string
	SuspectedID           string // Twitch user ID
	SuspectedUsername     string
	SuspectedFollowers    int
	UsernameSimilarity    int
	AccountAge            int
	BioMatch              int
	CreatorPopularity     int
	DiscordAbsence        int
	AvatarMatch           int
	TotalScore            int
	RiskLevel             RiskLevel
	Trigger               Trigger
	Status                DetectionStatus
	ReviewerID            string
	ReviewerUsername      string
	ReviewedAt            *time.Time
	Action                string
	Notes                 string
	AlertMessageID        string
	DetectedAt            time.Time
	UpdatedAt             time.Time
}

// WhitelistEntry exempts a member from detection in one guild.
type WhitelistEntry struct {
	ID              int64
	GuildID         string
	MemberID        string
	MemberUsername  string
	Reason          string
	AddedByID       string
	AddedByUsername string
	CreatedAt       time.Time
}

// GuildPolicy stores per-server detection configuration.
type GuildPolicy struct {
	GuildID             string
	Enabled             bool
	ModerationChannelID string
	MinScore            int
	AutoQuarantine      bool
	QuarantineRoleID    string
	AutoDM              bool
	TrustedRoleIDs      []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Verification is a confirmed Discord-to-Twitch account link. Rows are
// written by the external account-linking flow; the engine only reads them.
type Verification struct {
	ID             int64
	MemberID       string
	TwitchUserID   string
	TwitchUsername string
	VerifiedAt     time.Time
}

// AuditEntry records a moderator action for later review.
type AuditEntry struct {
	ID             int64
	GuildID        string
	MemberID       string
	MemberUsername string
	Action         string
	Reason         string
	CreatedAt      time.Time
}

// ScanSummary reports the outcome of a batch guild sweep.
type ScanSummary struct {
	Scanned int
	Flagged int
	Errored int
	Skipped int
}
