package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caesarakalaeii/streamer-verification/internal/cache"
	"github.com/caesarakalaeii/streamer-verification/internal/fetch"
	"github.com/caesarakalaeii/streamer-verification/internal/storage"
	"github.com/caesarakalaeii/streamer-verification/internal/twitch"
)

type stubAPI struct {
	refreshed []string
}

func (s *stubAPI) GetUserByID(ctx context.Context, userID string) (*twitch.User, error) {
	s.refreshed = append(s.refreshed, userID)
	return &twitch.User{ID: userID, Login: "refreshed"}, nil
}

func (s *stubAPI) GetUserByLogin(ctx context.Context, login string) (*twitch.User, error) {
	return nil, twitch.ErrNotFound
}

func (s *stubAPI) GetFollowerCount(ctx context.Context, broadcasterID string) (int, error) {
	return 0, nil
}

func (s *stubAPI) SearchChannels(ctx context.Context, query string, limit int) ([]twitch.Channel, error) {
	return nil, nil
}

func TestNew_RegistersJobs(t *testing.T) {
	repo, err := storage.NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	identityCache := cache.New(repo, 0, 0)
	fetcher := fetch.New(&stubAPI{}, identityCache, nil, 600)

	scheduler, err := New(identityCache, fetcher, nil)
	require.NoError(t, err)
	t.Cleanup(func() { scheduler.Stop() })

	assert.Len(t, scheduler.scheduler.Jobs(), 2)
}

func TestRefreshStaleProfiles(t *testing.T) {
	repo, err := storage.NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	// Nanosecond TTL makes every row immediately stale.
	identityCache := cache.New(repo, 1, 1)
	api := &stubAPI{}
	fetcher := fetch.New(api, identityCache, nil, 600)

	require.NoError(t, identityCache.Upsert(&storage.StreamerProfile{
		TwitchUserID: "1001",
		Username:     "oldname",
	}))

	scheduler, err := New(identityCache, fetcher, nil)
	require.NoError(t, err)
	t.Cleanup(func() { scheduler.Stop() })

	scheduler.refreshStaleProfiles()

	assert.Equal(t, []string{"1001"}, api.refreshed)

	p, err := identityCache.Get("1001")
	require.NoError(t, err)
	assert.Equal(t, "refreshed", p.Username)
}

func TestGuildSweepCallback(t *testing.T) {
	repo, err := storage.NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	identityCache := cache.New(repo, 0, 0)
	fetcher := fetch.New(&stubAPI{}, identityCache, nil, 600)

	called := false
	scheduler, err := New(identityCache, fetcher, func(ctx context.Context) { called = true })
	require.NoError(t, err)
	t.Cleanup(func() { scheduler.Stop() })

	scheduler.runGuildSweep()
	assert.True(t, called)
}
