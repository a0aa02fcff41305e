// Package fetch pulls creator profiles from Twitch under a shared
// requests-per-minute budget and writes them through the identity cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/caesarakalaeii/streamer-verification/internal/avatar"
	"github.com/caesarakalaeii/streamer-verification/internal/cache"
	"github.com/caesarakalaeii/streamer-verification/internal/storage"
	"github.com/caesarakalaeii/streamer-verification/internal/twitch"
)

const (
	// DefaultRequestsPerMinute stays well under the Helix 800/min cap.
	DefaultRequestsPerMinute = 600

	maxPopulateConcurrency = 5
	maxAttempts            = 3
	baseRetryDelay         = 500 * time.Millisecond
	populateResultDelay    = 100 * time.Millisecond
)

// API is the part of the Twitch client the fetcher needs.
type API interface {
	GetUserByID(ctx context.Context, userID string) (*twitch.User, error)
	GetUserByLogin(ctx context.Context, login string) (*twitch.User, error)
	GetFollowerCount(ctx context.Context, broadcasterID string) (int, error)
	SearchChannels(ctx context.Context, query string, limit int) ([]twitch.Channel, error)
}

// Fetcher is a bounded-concurrency Twitch client wrapper. All callers share
// one token budget; excess callers queue on the limiter instead of bursting.
type Fetcher struct {
	api       API
	cache     *cache.IdentityCache
	hasher    *avatar.Hasher
	limiter   *rate.Limiter
	backfills *semaphore.Weighted
}

// New creates a Fetcher with the given requests-per-minute budget.
func New(api API, identityCache *cache.IdentityCache, hasher *avatar.Hasher, requestsPerMinute int) *Fetcher {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	return &Fetcher{
		api:       api,
		cache:     identityCache,
		hasher:    hasher,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerMinute)/60, 10),
		backfills: semaphore.NewWeighted(maxPopulateConcurrency),
	}
}

// do runs one API call under the rate budget, retrying with exponential
// backoff when Twitch throttles us. Repeated throttling is surfaced to the
// caller rather than silently dropped.
func (f *Fetcher) do(ctx context.Context, call func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err = f.limiter.Wait(ctx); err != nil {
			return err
		}

		err = call(ctx)
		if !errors.Is(err, twitch.ErrRateLimited) {
			return err
		}
		slog.Warn("Twitch throttled request, backing off", "attempt", attempt+1)
	}
	return err
}

// FetchByID fetches a creator profile by Twitch user ID, stores it in the
// identity cache and returns it.
func (f *Fetcher) FetchByID(ctx context.Context, twitchUserID string) (*storage.StreamerProfile, error) {
	var user *twitch.User
	err := f.do(ctx, func(ctx context.Context) error {
		var err error
		user, err = f.api.GetUserByID(ctx, twitchUserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f.storeProfile(ctx, user)
}

// FetchByLogin fetches a creator profile by login name.
func (f *Fetcher) FetchByLogin(ctx context.Context, login string) (*storage.StreamerProfile, error) {
	var user *twitch.User
	err := f.do(ctx, func(ctx context.Context) error {
		var err error
		user, err = f.api.GetUserByLogin(ctx, login)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f.storeProfile(ctx, user)
}

// Refresh re-fetches a cached profile from Twitch. Returns ErrNotFound when
// the creator no longer exists.
func (f *Fetcher) Refresh(ctx context.Context, twitchUserID string) error {
	_, err := f.FetchByID(ctx, twitchUserID)
	return err
}

// Populate searches Twitch for channels resembling the probe name and adds
// any missing ones to the cache. Concurrency across callers is bounded so a
// mass scan cannot overwhelm the API. Returns the number of profiles added.
func (f *Fetcher) Populate(ctx context.Context, probe string, limit int) (int, error) {
	if err := f.backfills.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer f.backfills.Release(1)

	var channels []twitch.Channel
	err := f.do(ctx, func(ctx context.Context) error {
		var err error
		channels, err = f.api.SearchChannels(ctx, probe, limit)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("channel search failed: %w", err)
	}

	added := 0
	for i, ch := range channels {
		existing, err := f.cache.Get(ch.ID)
		if err != nil {
			return added, err
		}
		if existing != nil {
			if err := f.cache.RecordHit(ch.ID); err != nil {
				slog.Warn("Failed to record cache hit", "twitchUserID", ch.ID, "error", err)
			}
			continue
		}

		if _, err := f.FetchByID(ctx, ch.ID); err != nil {
			slog.Warn("Failed to backfill streamer", "login", ch.Login, "error", err)
			continue
		}
		added++

		// Spread the per-result calls out a little; helps when several
		// populate operations run concurrently.
		if i < len(channels)-1 {
			select {
			case <-time.After(populateResultDelay):
			case <-ctx.Done():
				return added, ctx.Err()
			}
		}
	}

	slog.Info("Populated streamer cache from search", "probe", probe, "added", added)
	return added, nil
}

// storeProfile assembles the full profile (followers, Discord link, avatar
// hash) and upserts it into the identity cache.
func (f *Fetcher) storeProfile(ctx context.Context, user *twitch.User) (*storage.StreamerProfile, error) {
	followers := 0
	err := f.do(ctx, func(ctx context.Context) error {
		var err error
		followers, err = f.api.GetFollowerCount(ctx, user.ID)
		return err
	})
	if err != nil {
		// Follower count is a scoring signal, not a hard requirement
		slog.Warn("Failed to get follower count", "login", user.Login, "error", err)
	}

	profile := &storage.StreamerProfile{
		TwitchUserID:   user.ID,
		Username:       user.Login,
		DisplayName:    user.DisplayName,
		FollowerCount:  followers,
		Bio:            user.Description,
		AvatarURL:      user.ProfileImageURL,
		HasDiscordLink: twitch.HasDiscordLink(user.Description),
	}

	if existing, err := f.cache.Get(user.ID); err == nil && existing != nil &&
		existing.AvatarURL == user.ProfileImageURL {
		profile.AvatarHash = existing.AvatarHash
	}
	if profile.AvatarHash == "" && f.hasher != nil {
		hash, err := f.hasher.FetchHash(ctx, user.ProfileImageURL)
		if err != nil {
			slog.Warn("Failed to hash streamer avatar", "login", user.Login, "error", err)
		} else {
			profile.AvatarHash = hash
		}
	}

	if err := f.cache.Upsert(profile); err != nil {
		return nil, fmt.Errorf("failed to cache streamer profile: %w", err)
	}
	return f.cache.Get(user.ID)
}
