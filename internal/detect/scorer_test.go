package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/caesarakalaeii/streamer-verification/internal/storage"
)

func TestAgeDays(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		created  time.Time
		expected int
	}{
		{"brand new", now.Add(-2 * time.Hour), 0},
		{"36 hours", now.Add(-36 * time.Hour), 1},
		{"exactly a week", now.AddDate(0, 0, -7), 7},
		{"clock skew never negative", now.Add(time.Hour), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AgeDays(tt.created, now))
		})
	}
}

func TestUsernameScoreBands(t *testing.T) {
	tests := []struct {
		similarity float64
		expected   int
	}{
		{100, 40}, {95, 40}, {94.9, 30}, {85, 30}, {84.9, 20},
		{75, 20}, {74.9, 10}, {65, 10}, {64.9, 0}, {0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, usernameScore(tt.similarity), "similarity %.1f", tt.similarity)
	}
}

func TestAccountAgeScoreBands(t *testing.T) {
	tests := []struct {
		ageDays  int
		expected int
	}{
		{0, 20}, {7, 20}, {8, 15}, {30, 15}, {31, 10}, {90, 10},
		{91, 5}, {180, 5}, {181, 2}, {365, 2}, {366, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, accountAgeScore(tt.ageDays), "age %d days", tt.ageDays)
	}
}

func TestPopularityScoreBands(t *testing.T) {
	tests := []struct {
		followers int
		expected  int
	}{
		{0, 0}, {99, 0}, {100, 2}, {499, 2}, {500, 5}, {999, 5},
		{1000, 10}, {50000, 10}, {50001, 5}, {100000, 5},
		{100001, 2}, {500000, 2}, {500001, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, popularityScore(tt.followers), "%d followers", tt.followers)
	}
}

func TestAvatarScoreBands(t *testing.T) {
	assert.Equal(t, 10, avatarScore(100))
	assert.Equal(t, 10, avatarScore(90))
	assert.Equal(t, 5, avatarScore(85))
	assert.Equal(t, 0, avatarScore(79.9))
	assert.Equal(t, 0, avatarScore(0))
}

func TestScore_HighRiskImpersonator(t *testing.T) {
	scorer := NewScorer()

	member := Member{
		Username:       "streamerx123",
		Bio:            "twitch streamer",
		AccountAgeDays: 3,
	}
	candidate := &storage.StreamerProfile{
		TwitchUserID:   "1001",
		Username:       "streamerx",
		Bio:            "twitch streamer",
		FollowerCount:  10000,
		HasDiscordLink: false,
	}

	breakdown := scorer.Score(member, candidate)

	assert.Equal(t, 30, breakdown.UsernameSimilarity)
	assert.Equal(t, 20, breakdown.AccountAge)
	assert.Equal(t, 20, breakdown.BioMatch)
	assert.Equal(t, 10, breakdown.CreatorPopularity)
	assert.Equal(t, 10, breakdown.DiscordAbsence)
	assert.Equal(t, 0, breakdown.AvatarMatch)
	assert.Equal(t, 90, breakdown.Total)
	assert.Equal(t, storage.RiskCritical, breakdown.RiskLevel)
}

func TestScore_EstablishedUnrelatedMember(t *testing.T) {
	scorer := NewScorer()

	member := Member{
		Username:       "longtime_regular",
		AccountAgeDays: 1200,
	}
	candidate := &storage.StreamerProfile{
		Username:       "streamerx",
		FollowerCount:  10000,
		HasDiscordLink: true,
	}

	breakdown := scorer.Score(member, candidate)

	assert.Equal(t, 0, breakdown.UsernameSimilarity)
	assert.Equal(t, 0, breakdown.AccountAge)
	assert.Equal(t, 0, breakdown.DiscordAbsence)
	assert.Equal(t, storage.RiskLow, breakdown.RiskLevel)
}

func TestScore_AvatarGatedOnUsernameSimilarity(t *testing.T) {
	scorer := NewScorer()
	hash := "d:00ff00ff00ff00ff"

	// Identical usernames and identical avatar hashes: full avatar bonus.
	exact := scorer.Score(
		Member{Username: "streamerx", AvatarHash: hash, AccountAgeDays: 3},
		&storage.StreamerProfile{Username: "streamerx", AvatarHash: hash},
	)
	assert.Equal(t, 10, exact.AvatarMatch)

	// Identical hashes but dissimilar usernames: the gate keeps the avatar
	// signal out entirely.
	dissimilar := scorer.Score(
		Member{Username: "totally_other", AvatarHash: hash, AccountAgeDays: 3},
		&storage.StreamerProfile{Username: "streamerx", AvatarHash: hash},
	)
	assert.Equal(t, 0, dissimilar.AvatarMatch)
}

func TestScore_Deterministic(t *testing.T) {
	scorer := NewScorer()

	member := Member{Username: "streamerx123", Bio: "bio", AccountAgeDays: 10}
	candidate := &storage.StreamerProfile{Username: "streamerx", Bio: "bio", FollowerCount: 2000}

	first := scorer.Score(member, candidate)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, scorer.Score(member, candidate))
	}
}

func TestRiskLevelForScore(t *testing.T) {
	assert.Equal(t, storage.RiskCritical, storage.RiskLevelForScore(80))
	assert.Equal(t, storage.RiskHigh, storage.RiskLevelForScore(79))
	assert.Equal(t, storage.RiskHigh, storage.RiskLevelForScore(60))
	assert.Equal(t, storage.RiskMedium, storage.RiskLevelForScore(59))
	assert.Equal(t, storage.RiskMedium, storage.RiskLevelForScore(40))
	assert.Equal(t, storage.RiskLow, storage.RiskLevelForScore(39))
	assert.Equal(t, storage.RiskLow, storage.RiskLevelForScore(0))
}
