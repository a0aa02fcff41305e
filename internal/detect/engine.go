// Package detect implements the impersonation detection engine: the trust
// filter, the similarity scorer, the candidate selector and the pipeline
// tying them together.
package detect

import (
	"context"
	"log/slog"
	"time"

	"github.com/caesarakalaeii/streamer-verification/internal/avatar"
	"github.com/caesarakalaeii/streamer-verification/internal/storage"
)

// DefaultMinScore is the alert threshold used when a guild has not set one.
const DefaultMinScore = 60

// Evaluation is the outcome of running the pipeline for one member.
type Evaluation struct {
	Member   Member
	Streamer *storage.StreamerProfile
	Scores   ScoreBreakdown
}

// Engine runs the detection pipeline: trust filter, candidate selection,
// scoring. It produces evaluations; persisting them and acting on them is
// the moderation manager's job.
type Engine struct {
	trust    *TrustFilter
	selector *Selector
	scorer   *Scorer
	hasher   *avatar.Hasher
}

// NewEngine creates an Engine.
func NewEngine(trust *TrustFilter, selector *Selector, scorer *Scorer, hasher *avatar.Hasher) *Engine {
	return &Engine{trust: trust, selector: selector, scorer: scorer, hasher: hasher}
}

// Evaluate scores one member. Returns nil when the member is a bot, trusted,
// has no candidate, or scores below the guild's alert threshold.
func (e *Engine) Evaluate(ctx context.Context, m Member, policy *storage.GuildPolicy) (*Evaluation, error) {
	if m.IsBot {
		return nil, nil
	}

	trusted, err := e.trust.IsTrusted(m, policy)
	if err != nil {
		return nil, err
	}
	if trusted {
		slog.Debug("Member trusted, skipping detection", "member", m.Username, "guild", m.GuildID)
		return nil, nil
	}

	m.AccountAgeDays = AgeDays(m.AccountCreatedAt, time.Now().UTC())

	best, err := e.selector.Best(ctx, m)
	if err != nil {
		return nil, err
	}
	if best == nil {
		slog.Debug("No streamer candidate for member", "member", m.Username)
		return nil, nil
	}

	// Avatar comparison only pays off for near-identical usernames; fetch
	// the member's hash lazily and re-score once.
	if best.RawSimilarity >= avatarCompareThreshold &&
		best.Streamer.AvatarHash != "" && m.AvatarURL != "" && e.hasher != nil {
		hash, err := e.hasher.FetchHash(ctx, m.AvatarURL)
		if err != nil {
			slog.Warn("Failed to hash member avatar", "member", m.Username, "error", err)
		} else if hash != "" {
			m.AvatarHash = hash
			best.Scores = e.scorer.Score(m, best.Streamer)
		}
	}

	minScore := DefaultMinScore
	if policy != nil && policy.MinScore > 0 {
		minScore = policy.MinScore
	}
	if best.Scores.Total < minScore {
		slog.Debug("Member below alert threshold",
			"member", m.Username, "score", best.Scores.Total, "minScore", minScore)
		return nil, nil
	}

	return &Evaluation{Member: m, Streamer: best.Streamer, Scores: best.Scores}, nil
}
