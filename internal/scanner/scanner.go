// Package scanner sweeps whole guild memberships through the detection
// pipeline in paced batches.
package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/caesarakalaeii/streamer-verification/internal/detect"
	"github.com/caesarakalaeii/streamer-verification/internal/moderation"
	"github.com/caesarakalaeii/streamer-verification/internal/storage"
)

const (
	// DefaultBatchSize keeps a burst of cache misses within the Twitch
	// rate budget.
	DefaultBatchSize = 50
	// DefaultBatchDelay is the pause between batches.
	DefaultBatchDelay = 5 * time.Second
)

// Scanner drives full-guild sweeps.
type Scanner struct {
	engine     *detect.Engine
	manager    *moderation.Manager
	repo       *storage.Repository
	batchSize  int
	batchDelay time.Duration
}

// New creates a Scanner. Zero batch parameters fall back to the defaults.
func New(engine *detect.Engine, manager *moderation.Manager, repo *storage.Repository, batchSize int, batchDelay time.Duration) *Scanner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchDelay <= 0 {
		batchDelay = DefaultBatchDelay
	}
	return &Scanner{
		engine:     engine,
		manager:    manager,
		repo:       repo,
		batchSize:  batchSize,
		batchDelay: batchDelay,
	}
}

// Scan runs the pipeline over a membership snapshot. One member's failure is
// logged and never aborts the sweep. Cancellation is cooperative: the context
// is checked between batches, not mid-member.
func (s *Scanner) Scan(ctx context.Context, members []detect.Member, policy *storage.GuildPolicy, trigger storage.Trigger) (*storage.ScanSummary, error) {
	summary := &storage.ScanSummary{}

	for start := 0; start < len(members); start += s.batchSize {
		if start > 0 {
			select {
			case <-time.After(s.batchDelay):
			case <-ctx.Done():
				slog.Info("Scan cancelled between batches",
					"scanned", summary.Scanned, "flagged", summary.Flagged)
				return summary, ctx.Err()
			}
		}

		end := start + s.batchSize
		if end > len(members) {
			end = len(members)
		}

		for _, member := range members[start:end] {
			if member.IsBot {
				summary.Skipped++
				continue
			}

			// Members already handled by a moderator stay handled.
			existing, err := s.repo.GetDetectionByMember(member.GuildID, member.ID)
			if err != nil {
				slog.Error("Failed to look up existing detection", "member", member.ID, "error", err)
				summary.Errored++
				continue
			}
			if existing != nil && existing.Status != storage.StatusPending {
				summary.Skipped++
				continue
			}

			summary.Scanned++

			eval, err := s.engine.Evaluate(ctx, member, policy)
			if err != nil {
				slog.Error("Member evaluation failed", "member", member.Username, "error", err)
				summary.Errored++
				continue
			}
			if eval == nil {
				continue
			}

			if _, err := s.manager.HandleDetection(eval, policy, trigger); err != nil {
				slog.Error("Failed to handle detection", "member", member.Username, "error", err)
				summary.Errored++
				continue
			}
			summary.Flagged++
		}
	}

	slog.Info("Guild scan complete",
		"scanned", summary.Scanned,
		"flagged", summary.Flagged,
		"skipped", summary.Skipped,
		"errored", summary.Errored)
	return summary, nil
}
