package detect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/caesarakalaeii/streamer-verification/internal/cache"
	"github.com/caesarakalaeii/streamer-verification/internal/fetch"
	"github.com/caesarakalaeii/streamer-verification/internal/storage"
)

const (
	// minSimilarity is the raw username similarity below which a cached
	// profile is not considered a candidate at all.
	minSimilarity = 65.0

	populateSearchLimit = 10
	refreshTimeout      = 30 * time.Second
)

// Candidate pairs a member with its best-matching streamer profile.
type Candidate struct {
	Streamer      *storage.StreamerProfile
	Scores        ScoreBreakdown
	RawSimilarity float64
}

// Selector narrows the identity cache down to the single best candidate for
// a member, backfilling the cache from Twitch when nothing matches.
type Selector struct {
	cache   *cache.IdentityCache
	fetcher *fetch.Fetcher
	scorer  *Scorer

	mu         sync.Mutex
	refreshing map[string]struct{}
}

// NewSelector creates a Selector.
func NewSelector(identityCache *cache.IdentityCache, fetcher *fetch.Fetcher, scorer *Scorer) *Selector {
	return &Selector{
		cache:      identityCache,
		fetcher:    fetcher,
		scorer:     scorer,
		refreshing: make(map[string]struct{}),
	}
}

// Best returns the highest-scoring candidate for the member, or nil when no
// cached or freshly backfilled profile clears the similarity floor.
func (s *Selector) Best(ctx context.Context, m Member) (*Candidate, error) {
	best, err := s.scan(m)
	if err != nil {
		return nil, err
	}

	// Nothing convincing in the cache: search Twitch for lookalike channels
	// and try once more with the expanded cache.
	if best == nil {
		probe := normalizeUsername(m.Username)
		if len(probe) < 3 {
			probe = m.Username
		}
		added, err := s.fetcher.Populate(ctx, probe, populateSearchLimit)
		if err != nil {
			slog.Warn("Cache backfill failed, continuing with cached data",
				"member", m.Username, "error", err)
		}
		if added > 0 {
			if best, err = s.scan(m); err != nil {
				return nil, err
			}
		}
	}

	if best != nil {
		if err := s.cache.RecordHit(best.Streamer.TwitchUserID); err != nil {
			slog.Warn("Failed to record cache hit", "twitchUserID", best.Streamer.TwitchUserID, "error", err)
		}
	}
	return best, nil
}

// scan runs one scoring pass over the nearest cached profiles.
func (s *Selector) scan(m Member) (*Candidate, error) {
	profiles, err := s.cache.FindNearest(m.Username, cache.DefaultNearestLimit)
	if err != nil {
		return nil, err
	}

	var best *Candidate
	for _, profile := range profiles {
		similarity := s.scorer.UsernameSimilarity(m.Username, profile.Username)
		if similarity < minSimilarity {
			continue
		}

		if s.cache.IsStale(profile) {
			s.refreshAsync(profile.TwitchUserID)
		}

		scores := s.scorer.Score(m, profile)
		if best == nil || scores.Total > best.Scores.Total {
			best = &Candidate{Streamer: profile, Scores: scores, RawSimilarity: similarity}
		}
	}
	return best, nil
}

// refreshAsync requests a best-effort profile refresh unless one is already
// in flight. Scoring proceeds with the cached copy either way.
func (s *Selector) refreshAsync(twitchUserID string) {
	s.mu.Lock()
	if _, inFlight := s.refreshing[twitchUserID]; inFlight {
		s.mu.Unlock()
		return
	}
	s.refreshing[twitchUserID] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.refreshing, twitchUserID)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		if err := s.fetcher.Refresh(ctx, twitchUserID); err != nil {
			slog.Warn("Stale profile refresh failed", "twitchUserID", twitchUserID, "error", err)
		}
	}()
}
