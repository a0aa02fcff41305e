package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists unless using an in-memory database
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writers queue instead of failing with SQLITE_BUSY
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS streamer_cache (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			twitch_user_id VARCHAR(64) UNIQUE NOT NULL,
			username VARCHAR(100) NOT NULL,
			display_name VARCHAR(100),
			follower_count INTEGER NOT NULL DEFAULT 0,
			bio TEXT,
			avatar_url TEXT,
			avatar_hash VARCHAR(32),
			has_discord_link INTEGER NOT NULL DEFAULT 0,
			cached_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_refreshed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			hit_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS impersonation_detections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id VARCHAR(20) NOT NULL,
			discord_user_id VARCHAR(20) NOT NULL,
			member_username VARCHAR(100) NOT NULL,
			member_account_age_days INTEGER NOT NULL DEFAULT 0,
			member_bio TEXT,
			suspected_streamer_id VARCHAR(64) NOT NULL,
			suspected_streamer_username VARCHAR(100) NOT NULL,
			suspected_streamer_follower_count INTEGER NOT NULL DEFAULT 0,
			username_similarity_score INTEGER NOT NULL DEFAULT 0,
			account_age_score INTEGER NOT NULL DEFAULT 0,
			bio_match_score INTEGER NOT NULL DEFAULT 0,
			creator_popularity_score INTEGER NOT NULL DEFAULT 0,
			discord_absence_score INTEGER NOT NULL DEFAULT 0,
			avatar_match_score INTEGER NOT NULL DEFAULT 0,
			total_score INTEGER NOT NULL DEFAULT 0,
			risk_level VARCHAR(10) NOT NULL DEFAULT 'low',
			detection_trigger VARCHAR(20) NOT NULL DEFAULT 'join',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			reviewer_id VARCHAR(20) NOT NULL DEFAULT '',
			reviewer_username VARCHAR(100) NOT NULL DEFAULT '',
			reviewed_at TIMESTAMP,
			action VARCHAR(20) NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			alert_message_id VARCHAR(20) NOT NULL DEFAULT '',
			detected_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(guild_id, discord_user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS impersonation_whitelist (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id VARCHAR(20) NOT NULL,
			discord_user_id VARCHAR(20) NOT NULL,
			member_username VARCHAR(100) NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			added_by_id VARCHAR(20) NOT NULL DEFAULT '',
			added_by_username VARCHAR(100) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(guild_id, discord_user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS guild_policies (
			guild_id VARCHAR(20) PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 0,
			moderation_channel_id VARCHAR(20) NOT NULL DEFAULT '',
			min_score INTEGER NOT NULL DEFAULT 60,
			auto_quarantine INTEGER NOT NULL DEFAULT 0,
			quarantine_role_id VARCHAR(20) NOT NULL DEFAULT '',
			auto_dm INTEGER NOT NULL DEFAULT 0,
			trusted_role_ids TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_verifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			discord_user_id VARCHAR(20) UNIQUE NOT NULL,
			twitch_user_id VARCHAR(64) NOT NULL,
			twitch_username VARCHAR(100) NOT NULL,
			verified_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS moderation_audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id VARCHAR(20) NOT NULL,
			discord_user_id VARCHAR(20) NOT NULL,
			member_username VARCHAR(100) NOT NULL DEFAULT '',
			action VARCHAR(50) NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_streamer_cache_username ON streamer_cache(username)`,
		`CREATE INDEX IF NOT EXISTS idx_streamer_cache_username_len ON streamer_cache(LENGTH(username))`,
		`CREATE INDEX IF NOT EXISTS idx_detections_guild_status ON impersonation_detections(guild_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_alert_message ON impersonation_detections(alert_message_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Streamer cache operations

const streamerColumns = `id, twitch_user_id, username, display_name, follower_count, bio,
	avatar_url, avatar_hash, has_discord_link, cached_at, last_refreshed_at, hit_count`

func scanStreamer(row interface{ Scan(...any) error }) (*StreamerProfile, error) {
	p := &StreamerProfile{}
	err := row.Scan(&p.ID, &p.TwitchUserID, &p.Username, &p.DisplayName, &p.FollowerCount,
		&p.Bio, &p.AvatarURL, &p.AvatarHash, &p.HasDiscordLink, &p.CachedAt,
		&p.LastRefreshedAt, &p.HitCount)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpsertStreamer inserts or refreshes a cached streamer profile, keyed by
// Twitch user ID. The username is stored lower-cased for similarity search.
func (r *Repository) UpsertStreamer(p *StreamerProfile) error {
	p.Username = strings.ToLower(p.Username)
	now := time.Now().UTC()
	_, err := r.db.Exec(
		`INSERT INTO streamer_cache
			(twitch_user_id, username, display_name, follower_count, bio, avatar_url, avatar_hash, has_discord_link, cached_at, last_refreshed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(twitch_user_id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			follower_count = excluded.follower_count,
			bio = excluded.bio,
			avatar_url = excluded.avatar_url,
			avatar_hash = CASE WHEN excluded.avatar_hash != '' THEN excluded.avatar_hash ELSE streamer_cache.avatar_hash END,
			has_discord_link = excluded.has_discord_link,
			last_refreshed_at = excluded.last_refreshed_at`,
		p.TwitchUserID, p.Username, p.DisplayName, p.FollowerCount, p.Bio,
		p.AvatarURL, p.AvatarHash, p.HasDiscordLink, now, now,
	)
	return err
}

// GetStreamerByTwitchID returns a cached profile, or nil if not cached.
func (r *Repository) GetStreamerByTwitchID(twitchUserID string) (*StreamerProfile, error) {
	p, err := scanStreamer(r.db.QueryRow(
		`SELECT `+streamerColumns+` FROM streamer_cache WHERE twitch_user_id = ?`, twitchUserID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// GetStreamerByUsername returns a cached profile by login, case-insensitive.
func (r *Repository) GetStreamerByUsername(username string) (*StreamerProfile, error) {
	p, err := scanStreamer(r.db.QueryRow(
		`SELECT `+streamerColumns+` FROM streamer_cache WHERE username = ?`,
		strings.ToLower(username)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// FindNearestStreamers returns candidate profiles for similarity checking.
//
// SQLite has no trigram index, so this uses the coarse length-bucket filter:
// only usernames within ±3 characters of the probe are scanned, most recently
// refreshed first. Bounded by limit, never materializes the full cache.
func (r *Repository) FindNearestStreamers(username string, limit int) ([]*StreamerProfile, error) {
	if username == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	minLen := len(username) - 3
	if minLen < 3 {
		minLen = 3
	}
	maxLen := len(username) + 3

	rows, err := r.db.Query(
		`SELECT `+streamerColumns+` FROM streamer_cache
		 WHERE LENGTH(username) BETWEEN ? AND ?
		 ORDER BY last_refreshed_at DESC
		 LIMIT ?`,
		minLen, maxLen, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*StreamerProfile
	for rows.Next() {
		p, err := scanStreamer(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// GetStaleStreamers returns cache entries not refreshed since the cutoff.
func (r *Repository) GetStaleStreamers(cutoff time.Time) ([]*StreamerProfile, error) {
	rows, err := r.db.Query(
		`SELECT `+streamerColumns+` FROM streamer_cache WHERE last_refreshed_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*StreamerProfile
	for rows.Next() {
		p, err := scanStreamer(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// IncrementStreamerHits bumps the cache hit counter for a profile.
func (r *Repository) IncrementStreamerHits(twitchUserID string) error {
	_, err := r.db.Exec(
		`UPDATE streamer_cache SET hit_count = hit_count + 1 WHERE twitch_user_id = ?`, twitchUserID)
	return err
}

// CountStreamers returns the number of cached profiles.
func (r *Repository) CountStreamers() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM streamer_cache`).Scan(&n)
	return n, err
}

// TopStreamersByHits returns the most frequently matched cached profiles.
func (r *Repository) TopStreamersByHits(limit int) ([]*StreamerProfile, error) {
	rows, err := r.db.Query(
		`SELECT `+streamerColumns+` FROM streamer_cache ORDER BY hit_count DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*StreamerProfile
	for rows.Next() {
		p, err := scanStreamer(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Detection operations

const detectionColumns = `id, guild_id, discord_user_id, member_username, member_account_age_days,
	member_bio, suspected_streamer_id, suspected_streamer_username, suspected_streamer_follower_count,
	username_similarity_score, account_age_score, bio_match_score, creator_popularity_score,
	discord_absence_score, avatar_match_score, total_score, risk_level, detection_trigger,
	status, reviewer_id, reviewer_username, reviewed_at, action, notes, alert_message_id,
	detected_at, updated_at`

func scanDetection(row interface{ Scan(...any) error }) (*DetectionRecord, error) {
	d := &DetectionRecord{}
	err := row.Scan(&d.ID, &d.GuildID, &d.MemberID, &d.MemberUsername, &d.MemberAccountAgeDays,
		&d.MemberBio, &d.SuspectedID, &d.SuspectedUsername, &d.SuspectedFollowers,
		&d.UsernameSimilarity, &d.AccountAge, &d.BioMatch, &d.CreatorPopularity,
		&d.DiscordAbsence, &d.AvatarMatch, &d.TotalScore, &d.RiskLevel, &d.Trigger,
		&d.Status, &d.ReviewerID, &d.ReviewerUsername, &d.ReviewedAt, &d.Action, &d.Notes,
		&d.AlertMessageID, &d.DetectedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// UpsertDetection atomically inserts a detection record or updates the
// existing row for the same (guild, member) pair. Concurrent create attempts
// resolve to a single row through the UNIQUE constraint; no application lock.
//
// A record previously reviewed without action is reset to pending; terminal
// records (actioned, whitelisted) keep their status and only pick up fresh
// scores.
func (r *Repository) UpsertDetection(d *DetectionRecord) (*DetectionRecord, error) {
	now := time.Now().UTC()
	var id int64
	err := r.db.QueryRow(
		`INSERT INTO impersonation_detections
			(guild_id, discord_user_id, member_username, member_account_age_days, member_bio,
			 suspected_streamer_id, suspected_streamer_username, suspected_streamer_follower_count,
			 username_similarity_score, account_age_score, bio_match_score, creator_popularity_score,
			 discord_absence_score, avatar_match_score, total_score, risk_level, detection_trigger,
			 status, detected_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)
		 ON CONFLICT(guild_id, discord_user_id) DO UPDATE SET
			member_username = excluded.member_username,
			member_account_age_days = excluded.member_account_age_days,
			member_bio = excluded.member_bio,
			suspected_streamer_id = excluded.suspected_streamer_id,
			suspected_streamer_username = excluded.suspected_streamer_username,
			suspected_streamer_follower_count = excluded.suspected_streamer_follower_count,
			username_similarity_score = excluded.username_similarity_score,
			account_age_score = excluded.account_age_score,
			bio_match_score = excluded.bio_match_score,
			creator_popularity_score = excluded.creator_popularity_score,
			discord_absence_score = excluded.discord_absence_score,
			avatar_match_score = excluded.avatar_match_score,
			total_score = excluded.total_score,
			risk_level = excluded.risk_level,
			detection_trigger = excluded.detection_trigger,
			status = CASE
				WHEN impersonation_detections.status = 'reviewed' AND impersonation_detections.action = ''
				THEN 'pending'
				ELSE impersonation_detections.status
			END,
			updated_at = excluded.updated_at
		 RETURNING id`,
		d.GuildID, d.MemberID, d.MemberUsername, d.MemberAccountAgeDays, d.MemberBio,
		d.SuspectedID, d.SuspectedUsername, d.SuspectedFollowers,
		d.UsernameSimilarity, d.AccountAge, d.BioMatch, d.CreatorPopularity,
		d.DiscordAbsence, d.AvatarMatch, d.TotalScore, d.RiskLevel, d.Trigger,
		now, now,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert detection: %w", err)
	}
	return r.GetDetectionByID(id)
}

// GetDetectionByID returns a detection record, or nil if none exists.
func (r *Repository) GetDetectionByID(id int64) (*DetectionRecord, error) {
	d, err := scanDetection(r.db.QueryRow(
		`SELECT `+detectionColumns+` FROM impersonation_detections WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// GetDetectionByMember returns the detection record for a member in a guild.
func (r *Repository) GetDetectionByMember(guildID, memberID string) (*DetectionRecord, error) {
	d, err := scanDetection(r.db.QueryRow(
		`SELECT `+detectionColumns+` FROM impersonation_detections
		 WHERE guild_id = ? AND discord_user_id = ?`, guildID, memberID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// GetDetectionByAlertMessage resolves an alert message back to its record,
// so button clicks survive process restarts.
func (r *Repository) GetDetectionByAlertMessage(messageID string) (*DetectionRecord, error) {
	d, err := scanDetection(r.db.QueryRow(
		`SELECT `+detectionColumns+` FROM impersonation_detections WHERE alert_message_id = ?`, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// GetPendingDetections returns unreviewed detections for a guild, highest score first.
func (r *Repository) GetPendingDetections(guildID string, limit int) ([]*DetectionRecord, error) {
	rows, err := r.db.Query(
		`SELECT `+detectionColumns+` FROM impersonation_detections
		 WHERE guild_id = ? AND status = 'pending'
		 ORDER BY total_score DESC, detected_at DESC
		 LIMIT ?`, guildID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var detections []*DetectionRecord
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		detections = append(detections, d)
	}
	return detections, rows.Err()
}

// SetAlertMessageID binds the posted alert message to a detection record.
func (r *Repository) SetAlertMessageID(detectionID int64, messageID string) error {
	_, err := r.db.Exec(
		`UPDATE impersonation_detections SET alert_message_id = ?, updated_at = ? WHERE id = ?`,
		messageID, time.Now().UTC(), detectionID)
	return err
}

// UpdateDetectionStatus records a moderation outcome on a detection.
func (r *Repository) UpdateDetectionStatus(detectionID int64, status DetectionStatus, reviewerID, reviewerUsername, action, notes string) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(
		`UPDATE impersonation_detections
		 SET status = ?, reviewer_id = ?, reviewer_username = ?, reviewed_at = ?, action = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		status, reviewerID, reviewerUsername, now, action, notes, now, detectionID)
	return err
}

// CountDetectionsByStatus returns per-status detection counts for a guild.
func (r *Repository) CountDetectionsByStatus(guildID string) (map[DetectionStatus]int, error) {
	rows, err := r.db.Query(
		`SELECT status, COUNT(*) FROM impersonation_detections WHERE guild_id = ? GROUP BY status`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[DetectionStatus]int)
	for rows.Next() {
		var status DetectionStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Whitelist operations

// AddWhitelistEntry whitelists a member in a guild. Idempotent: re-adding an
// existing entry refreshes the reason instead of failing.
func (r *Repository) AddWhitelistEntry(e *WhitelistEntry) error {
	_, err := r.db.Exec(
		`INSERT INTO impersonation_whitelist
			(guild_id, discord_user_id, member_username, reason, added_by_id, added_by_username)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id, discord_user_id) DO UPDATE SET
			reason = excluded.reason,
			added_by_id = excluded.added_by_id,
			added_by_username = excluded.added_by_username`,
		e.GuildID, e.MemberID, e.MemberUsername, e.Reason, e.AddedByID, e.AddedByUsername)
	return err
}

// RemoveWhitelistEntry deletes a whitelist entry. Returns true if one existed.
func (r *Repository) RemoveWhitelistEntry(guildID, memberID string) (bool, error) {
	res, err := r.db.Exec(
		`DELETE FROM impersonation_whitelist WHERE guild_id = ? AND discord_user_id = ?`,
		guildID, memberID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IsWhitelisted reports whether a member is whitelisted in a guild.
func (r *Repository) IsWhitelisted(guildID, memberID string) (bool, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM impersonation_whitelist WHERE guild_id = ? AND discord_user_id = ?`,
		guildID, memberID).Scan(&n)
	return n > 0, err
}

// ListWhitelist returns all whitelist entries for a guild.
func (r *Repository) ListWhitelist(guildID string) ([]*WhitelistEntry, error) {
	rows, err := r.db.Query(
		`SELECT id, guild_id, discord_user_id, member_username, reason, added_by_id, added_by_username, created_at
		 FROM impersonation_whitelist WHERE guild_id = ? ORDER BY created_at DESC`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*WhitelistEntry
	for rows.Next() {
		e := &WhitelistEntry{}
		if err := rows.Scan(&e.ID, &e.GuildID, &e.MemberID, &e.MemberUsername, &e.Reason,
			&e.AddedByID, &e.AddedByUsername, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Guild policy operations

// SaveGuildPolicy creates or replaces a guild's detection policy.
func (r *Repository) SaveGuildPolicy(p *GuildPolicy) error {
	_, err := r.db.Exec(
		`INSERT INTO guild_policies
			(guild_id, enabled, moderation_channel_id, min_score, auto_quarantine, quarantine_role_id, auto_dm, trusted_role_ids, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
			enabled = excluded.enabled,
			moderation_channel_id = excluded.moderation_channel_id,
			min_score = excluded.min_score,
			auto_quarantine = excluded.auto_quarantine,
			quarantine_role_id = excluded.quarantine_role_id,
			auto_dm = excluded.auto_dm,
			trusted_role_ids = excluded.trusted_role_ids,
			updated_at = excluded.updated_at`,
		p.GuildID, p.Enabled, p.ModerationChannelID, p.MinScore, p.AutoQuarantine,
		p.QuarantineRoleID, p.AutoDM, strings.Join(p.TrustedRoleIDs, ","), time.Now().UTC())
	return err
}

// GetGuildPolicy returns the policy for a guild, or nil if not configured.
func (r *Repository) GetGuildPolicy(guildID string) (*GuildPolicy, error) {
	p := &GuildPolicy{}
	var trustedRoles string
	err := r.db.QueryRow(
		`SELECT guild_id, enabled, moderation_channel_id, min_score, auto_quarantine,
			quarantine_role_id, auto_dm, trusted_role_ids, created_at, updated_at
		 FROM guild_policies WHERE guild_id = ?`, guildID,
	).Scan(&p.GuildID, &p.Enabled, &p.ModerationChannelID, &p.MinScore, &p.AutoQuarantine,
		&p.QuarantineRoleID, &p.AutoDM, &trustedRoles, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if trustedRoles != "" {
		p.TrustedRoleIDs = strings.Split(trustedRoles, ",")
	}
	return p, nil
}

// ListEnabledPolicies returns policies with detection enabled.
func (r *Repository) ListEnabledPolicies() ([]*GuildPolicy, error) {
	rows, err := r.db.Query(`SELECT guild_id FROM guild_policies WHERE enabled = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guildIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		guildIDs = append(guildIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	policies := make([]*GuildPolicy, 0, len(guildIDs))
	for _, id := range guildIDs {
		p, err := r.GetGuildPolicy(id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			policies = append(policies, p)
		}
	}
	return policies, nil
}

// Verification operations

// SaveVerification records a confirmed Discord-to-Twitch account link,
// replacing any previous link for the same member.
func (r *Repository) SaveVerification(v *Verification) error {
	_, err := r.db.Exec(
		`INSERT INTO user_verifications (discord_user_id, twitch_user_id, twitch_username, verified_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(discord_user_id) DO UPDATE SET
			twitch_user_id = excluded.twitch_user_id,
			twitch_username = excluded.twitch_username,
			verified_at = excluded.verified_at`,
		v.MemberID, v.TwitchUserID, v.TwitchUsername, time.Now().UTC())
	return err
}

// GetVerificationByMemberID returns a member's account link, or nil if none.
func (r *Repository) GetVerificationByMemberID(memberID string) (*Verification, error) {
	v := &Verification{}
	err := r.db.QueryRow(
		`SELECT id, discord_user_id, twitch_user_id, twitch_username, verified_at
		 FROM user_verifications WHERE discord_user_id = ?`, memberID,
	).Scan(&v.ID, &v.MemberID, &v.TwitchUserID, &v.TwitchUsername, &v.VerifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListVerifications returns all account links, used to seed the streamer cache.
func (r *Repository) ListVerifications() ([]*Verification, error) {
	rows, err := r.db.Query(
		`SELECT id, discord_user_id, twitch_user_id, twitch_username, verified_at FROM user_verifications`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var verifications []*Verification
	for rows.Next() {
		v := &Verification{}
		if err := rows.Scan(&v.ID, &v.MemberID, &v.TwitchUserID, &v.TwitchUsername, &v.VerifiedAt); err != nil {
			return nil, err
		}
		verifications = append(verifications, v)
	}
	return verifications, rows.Err()
}

// Audit log operations

// InsertAuditEntry appends a moderation action to the audit log.
func (r *Repository) InsertAuditEntry(e *AuditEntry) error {
	_, err := r.db.Exec(
		`INSERT INTO moderation_audit_log (guild_id, discord_user_id, member_username, action, reason)
		 VALUES (?, ?, ?, ?, ?)`,
		e.GuildID, e.MemberID, e.MemberUsername, e.Action, e.Reason)
	return err
}
