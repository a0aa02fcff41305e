package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caesarakalaeii/streamer-verification/internal/storage"
)

func newTestRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNew_ZeroTTLsUseDefaults(t *testing.T) {
	c := New(newTestRepo(t), 0, 0)
	assert.Equal(t, DefaultGeneralTTL, c.generalTTL)
	assert.Equal(t, DefaultStatsTTL, c.statsTTL)
}

func TestUpsertAndGet(t *testing.T) {
	c := New(newTestRepo(t), 0, 0)

	require.NoError(t, c.Upsert(&storage.StreamerProfile{
		TwitchUserID: "1001",
		Username:     "StreamerX",
	}))

	p, err := c.Get("1001")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "streamerx", p.Username)

	byName, err := c.GetByUsername("streamerx")
	require.NoError(t, err)
	require.NotNil(t, byName)

	size, err := c.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestFindNearest_NormalizesProbe(t *testing.T) {
	c := New(newTestRepo(t), 0, 0)
	require.NoError(t, c.Upsert(&storage.StreamerProfile{
		TwitchUserID: "1001",
		Username:     "streamerx",
	}))

	profiles, err := c.FindNearest("  StreamerX12  ", 10)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "streamerx", profiles[0].Username)
}

func TestStaleness(t *testing.T) {
	repo := newTestRepo(t)

	fresh := New(repo, time.Hour, time.Hour)
	aged := New(repo, time.Nanosecond, time.Nanosecond)

	require.NoError(t, fresh.Upsert(&storage.StreamerProfile{
		TwitchUserID: "1001",
		Username:     "streamerx",
	}))

	p, err := fresh.Get("1001")
	require.NoError(t, err)

	assert.False(t, fresh.IsStale(p))
	assert.True(t, aged.IsStale(p))

	none, err := fresh.StaleProfiles()
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := aged.StaleProfiles()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordHitAndTopHits(t *testing.T) {
	c := New(newTestRepo(t), 0, 0)
	require.NoError(t, c.Upsert(&storage.StreamerProfile{TwitchUserID: "1", Username: "quiet"}))
	require.NoError(t, c.Upsert(&storage.StreamerProfile{TwitchUserID: "2", Username: "popular"}))

	require.NoError(t, c.RecordHit("2"))
	require.NoError(t, c.RecordHit("2"))
	require.NoError(t, c.RecordHit("1"))

	top, err := c.TopHits(1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "popular", top[0].Username)
}
