// Package cache owns the durable store of known-creator profiles and its
// staleness policy. Construct one instance at service start and hand it to
// every caller; there is no ambient global.
package cache

import (
	"strings"
	"time"

	"github.com/caesarakalaeii/streamer-verification/internal/storage"
)

const (
	// DefaultGeneralTTL is how long a profile row stays fresh overall.
	DefaultGeneralTTL = 7 * 24 * time.Hour
	// DefaultStatsTTL covers the fast-churning fields (followers, bio).
	DefaultStatsTTL = 24 * time.Hour

	// DefaultNearestLimit caps candidates returned per lookup.
	DefaultNearestLimit = 50
)

// IdentityCache is the similarity-searchable store of streamer profiles.
type IdentityCache struct {
	repo       *storage.Repository
	generalTTL time.Duration
	statsTTL   time.Duration
}

// New creates an IdentityCache. Zero TTLs fall back to the defaults.
func New(repo *storage.Repository, generalTTL, statsTTL time.Duration) *IdentityCache {
	if generalTTL <= 0 {
		generalTTL = DefaultGeneralTTL
	}
	if statsTTL <= 0 {
		statsTTL = DefaultStatsTTL
	}
	return &IdentityCache{repo: repo, generalTTL: generalTTL, statsTTL: statsTTL}
}

// Get returns a cached profile by Twitch user ID, or nil when absent.
func (c *IdentityCache) Get(twitchUserID string) (*storage.StreamerProfile, error) {
	return c.repo.GetStreamerByTwitchID(twitchUserID)
}

// GetByUsername returns a cached profile by login, case-insensitive.
func (c *IdentityCache) GetByUsername(username string) (*storage.StreamerProfile, error) {
	return c.repo.GetStreamerByUsername(username)
}

// FindNearest returns up to limit candidate profiles for a member name.
// The backing store buckets by username length, so callers still need to
// score each returned profile.
func (c *IdentityCache) FindNearest(name string, limit int) ([]*storage.StreamerProfile, error) {
	if limit <= 0 {
		limit = DefaultNearestLimit
	}
	return c.repo.FindNearestStreamers(strings.ToLower(strings.TrimSpace(name)), limit)
}

// Upsert writes a profile into the cache, idempotent by Twitch user ID.
func (c *IdentityCache) Upsert(p *storage.StreamerProfile) error {
	return c.repo.UpsertStreamer(p)
}

// IsStale reports whether a profile's fast-churning stats (follower count,
// bio) are past their TTL. Stats age out after 24h even when the row itself
// is younger than the general 7-day TTL.
func (c *IdentityCache) IsStale(p *storage.StreamerProfile) bool {
	return time.Since(p.LastRefreshedAt) > c.statsTTL
}

// StaleProfiles returns rows past the general TTL, for the periodic refresh.
func (c *IdentityCache) StaleProfiles() ([]*storage.StreamerProfile, error) {
	return c.repo.GetStaleStreamers(time.Now().UTC().Add(-c.generalTTL))
}

// RecordHit bumps a profile's hit counter.
func (c *IdentityCache) RecordHit(twitchUserID string) error {
	return c.repo.IncrementStreamerHits(twitchUserID)
}

// Size returns the number of cached profiles.
func (c *IdentityCache) Size() (int, error) {
	return c.repo.CountStreamers()
}

// TopHits returns the most frequently matched profiles.
func (c *IdentityCache) TopHits(limit int) ([]*storage.StreamerProfile, error) {
	return c.repo.TopStreamersByHits(limit)
}
