package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testProfile(twitchUserID, username string) *StreamerProfile {
	return &StreamerProfile{
		TwitchUserID:  twitchUserID,
		Username:      username,
		DisplayName:   username,
		FollowerCount: 5000,
		Bio:           "twitch streamer",
	}
}

func testDetection(guildID, memberID string) *DetectionRecord {
	return &DetectionRecord{
		GuildID:            guildID,
		MemberID:           memberID,
		MemberUsername:     "streamerx123",
		SuspectedID:        "1001",
		SuspectedUsername:  "streamerx",
		UsernameSimilarity: 30,
		AccountAge:         20,
		TotalScore:         50,
		RiskLevel:          RiskMedium,
		Trigger:            TriggerJoin,
	}
}

func TestUpsertStreamer_LowercasesUsername(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertStreamer(testProfile("1001", "StreamerX")))

	p, err := repo.GetStreamerByTwitchID("1001")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "streamerx", p.Username)

	// Case-insensitive lookup by login
	byName, err := repo.GetStreamerByUsername("STREAMERX")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, "1001", byName.TwitchUserID)
}

func TestUpsertStreamer_RefreshKeepsAvatarHash(t *testing.T) {
	repo := newTestRepo(t)

	p := testProfile("1001", "streamerx")
	p.AvatarHash = "d:00ff00ff00ff00ff"
	require.NoError(t, repo.UpsertStreamer(p))

	// Refresh without a recomputed hash must not clobber the stored one.
	refresh := testProfile("1001", "streamerx")
	refresh.FollowerCount = 9000
	require.NoError(t, repo.UpsertStreamer(refresh))

	stored, err := repo.GetStreamerByTwitchID("1001")
	require.NoError(t, err)
	assert.Equal(t, "d:00ff00ff00ff00ff", stored.AvatarHash)
	assert.Equal(t, 9000, stored.FollowerCount)
}

func TestGetStreamer_MissReturnsNil(t *testing.T) {
	repo := newTestRepo(t)

	p, err := repo.GetStreamerByTwitchID("nope")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFindNearestStreamers_LengthBucket(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.UpsertStreamer(testProfile("1", "streamerx")))    // len 9
	require.NoError(t, repo.UpsertStreamer(testProfile("2", "xy")))           // len 2
	require.NoError(t, repo.UpsertStreamer(testProfile("3", "averyverylongstreamername"))) // len 25

	// Probe length 12 scans the 9..15 bucket only.
	profiles, err := repo.FindNearestStreamers("streamerx123", 50)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "streamerx", profiles[0].Username)
}

func TestIncrementStreamerHits(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.UpsertStreamer(testProfile("1001", "streamerx")))

	require.NoError(t, repo.IncrementStreamerHits("1001"))
	require.NoError(t, repo.IncrementStreamerHits("1001"))

	p, err := repo.GetStreamerByTwitchID("1001")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.HitCount)
}

func TestUpsertDetection_OneRowPerMember(t *testing.T) {
	repo := newTestRepo(t)

	first, err := repo.UpsertDetection(testDetection("guild-1", "member-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, first.Status)

	// Second detection for the same member updates in place.
	update := testDetection("guild-1", "member-1")
	update.TotalScore = 75
	update.RiskLevel = RiskHigh
	update.Trigger = TriggerBatchScan

	second, err := repo.UpsertDetection(update)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 75, second.TotalScore)
	assert.Equal(t, TriggerBatchScan, second.Trigger)

	// Same member in another guild is a separate record.
	other, err := repo.UpsertDetection(testDetection("guild-2", "member-1"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestUpsertDetection_ConcurrentCreatesYieldOneRow(t *testing.T) {
	repo := newTestRepo(t)

	// A join event and a batch scan can race on the same member; the
	// ON CONFLICT upsert must collapse them into a single record.
	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	ids := make(chan int64, attempts)
	for n := 0; n < attempts; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := repo.UpsertDetection(testDetection("guild-1", "member-1"))
			errs <- err
			if err == nil {
				ids <- record.ID
			}
		}()
	}
	wg.Wait()
	close(errs)
	close(ids)

	for err := range errs {
		require.NoError(t, err)
	}

	var first int64
	for id := range ids {
		if first == 0 {
			first = id
			continue
		}
		assert.Equal(t, first, id)
	}

	counts, err := repo.CountDetectionsByStatus("guild-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[StatusPending])
}

func TestUpsertDetection_TerminalStatusSticks(t *testing.T) {
	repo := newTestRepo(t)

	record, err := repo.UpsertDetection(testDetection("guild-1", "member-1"))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateDetectionStatus(record.ID, StatusActioned,
		"mod-1", "moderator", "ban", ""))

	// Re-detection refreshes scores but must not resurrect an actioned record.
	update := testDetection("guild-1", "member-1")
	update.TotalScore = 90
	refreshed, err := repo.UpsertDetection(update)
	require.NoError(t, err)
	assert.Equal(t, StatusActioned, refreshed.Status)
	assert.Equal(t, 90, refreshed.TotalScore)
}

func TestUpsertDetection_ReviewedWithoutActionResets(t *testing.T) {
	repo := newTestRepo(t)

	record, err := repo.UpsertDetection(testDetection("guild-1", "member-1"))
	require.NoError(t, err)

	// Reviewed but no action taken: a fresh detection reopens the record.
	require.NoError(t, repo.UpdateDetectionStatus(record.ID, StatusReviewed,
		"mod-1", "moderator", "", ""))

	refreshed, err := repo.UpsertDetection(testDetection("guild-1", "member-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, refreshed.Status)
}

func TestAlertMessageBinding(t *testing.T) {
	repo := newTestRepo(t)

	record, err := repo.UpsertDetection(testDetection("guild-1", "member-1"))
	require.NoError(t, err)

	require.NoError(t, repo.SetAlertMessageID(record.ID, "msg-42"))

	resolved, err := repo.GetDetectionByAlertMessage("msg-42")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, record.ID, resolved.ID)

	missing, err := repo.GetDetectionByAlertMessage("msg-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetPendingDetections_OrderedByScore(t *testing.T) {
	repo := newTestRepo(t)

	low := testDetection("guild-1", "member-low")
	low.TotalScore = 45
	_, err := repo.UpsertDetection(low)
	require.NoError(t, err)

	high := testDetection("guild-1", "member-high")
	high.TotalScore = 92
	_, err = repo.UpsertDetection(high)
	require.NoError(t, err)

	pending, err := repo.GetPendingDetections("guild-1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "member-high", pending[0].MemberID)
	assert.Equal(t, "member-low", pending[1].MemberID)
}

func TestCountDetectionsByStatus(t *testing.T) {
	repo := newTestRepo(t)

	a, err := repo.UpsertDetection(testDetection("guild-1", "member-a"))
	require.NoError(t, err)
	_, err = repo.UpsertDetection(testDetection("guild-1", "member-b"))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateDetectionStatus(a.ID, StatusActioned, "mod", "mod", "kick", ""))

	counts, err := repo.CountDetectionsByStatus("guild-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[StatusPending])
	assert.Equal(t, 1, counts[StatusActioned])
}

func TestWhitelist(t *testing.T) {
	repo := newTestRepo(t)

	entry := &WhitelistEntry{
		GuildID:        "guild-1",
		MemberID:       "member-1",
		MemberUsername: "someone",
		Reason:         "verified elsewhere",
	}
	require.NoError(t, repo.AddWhitelistEntry(entry))
	// Adding twice is idempotent, not an error.
	require.NoError(t, repo.AddWhitelistEntry(entry))

	listed, err := repo.ListWhitelist("guild-1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	whitelisted, err := repo.IsWhitelisted("guild-1", "member-1")
	require.NoError(t, err)
	assert.True(t, whitelisted)

	// Whitelisting is per guild.
	elsewhere, err := repo.IsWhitelisted("guild-2", "member-1")
	require.NoError(t, err)
	assert.False(t, elsewhere)

	removed, err := repo.RemoveWhitelistEntry("guild-1", "member-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removedAgain, err := repo.RemoveWhitelistEntry("guild-1", "member-1")
	require.NoError(t, err)
	assert.False(t, removedAgain)
}

func TestGuildPolicyRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	missing, err := repo.GetGuildPolicy("guild-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	policy := &GuildPolicy{
		GuildID:             "guild-1",
		Enabled:             true,
		ModerationChannelID: "chan-1",
		MinScore:            70,
		AutoQuarantine:      true,
		QuarantineRoleID:    "role-q",
		AutoDM:              true,
		TrustedRoleIDs:      []string{"role-a", "role-b"},
	}
	require.NoError(t, repo.SaveGuildPolicy(policy))

	loaded, err := repo.GetGuildPolicy("guild-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 70, loaded.MinScore)
	assert.Equal(t, []string{"role-a", "role-b"}, loaded.TrustedRoleIDs)

	// Disabled guilds drop out of the enabled listing.
	policy.Enabled = false
	require.NoError(t, repo.SaveGuildPolicy(policy))

	enabled, err := repo.ListEnabledPolicies()
	require.NoError(t, err)
	assert.Empty(t, enabled)
}

func TestSaveVerification_ReplacesLink(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.SaveVerification(&Verification{
		MemberID: "member-1", TwitchUserID: "1001", TwitchUsername: "streamerx",
	}))
	require.NoError(t, repo.SaveVerification(&Verification{
		MemberID: "member-1", TwitchUserID: "2002", TwitchUsername: "otherchannel",
	}))

	v, err := repo.GetVerificationByMemberID("member-1")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "2002", v.TwitchUserID)

	all, err := repo.ListVerifications()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetStaleStreamers(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.UpsertStreamer(testProfile("1001", "streamerx")))

	// Fresh row is not stale against a cutoff in the past.
	stale, err := repo.GetStaleStreamers(time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)

	// Everything is stale against a future cutoff.
	stale, err = repo.GetStaleStreamers(time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, stale, 1)
}
