// Package tasks runs the periodic maintenance jobs: the nightly stale-cache
// refresh and the daily guild sweep.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/caesarakalaeii/streamer-verification/internal/cache"
	"github.com/caesarakalaeii/streamer-verification/internal/fetch"
	"github.com/caesarakalaeii/streamer-verification/internal/twitch"
)

const (
	cacheRefreshCron = "0 4 * * *"
	guildSweepCron   = "0 5 * * *"

	refreshJobTimeout = 30 * time.Minute
)

// SweepFunc runs a full scan over every guild with detection enabled. The bot
// wires this in because only it can snapshot guild memberships.
type SweepFunc func(ctx context.Context)

// Scheduler owns the cron jobs. Jobs run in UTC.
type Scheduler struct {
	scheduler gocron.Scheduler
	cache     *cache.IdentityCache
	fetcher   *fetch.Fetcher
	sweep     SweepFunc
}

// New creates the Scheduler and registers both jobs. Call Start to begin.
func New(identityCache *cache.IdentityCache, fetcher *fetch.Fetcher, sweep SweepFunc) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	t := &Scheduler{scheduler: s, cache: identityCache, fetcher: fetcher, sweep: sweep}

	if _, err := s.NewJob(
		gocron.CronJob(cacheRefreshCron, false),
		gocron.NewTask(t.refreshStaleProfiles),
		gocron.WithName("streamer-cache-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("failed to schedule cache refresh: %w", err)
	}

	if _, err := s.NewJob(
		gocron.CronJob(guildSweepCron, false),
		gocron.NewTask(t.runGuildSweep),
		gocron.WithName("guild-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("failed to schedule guild sweep: %w", err)
	}

	return t, nil
}

// Start begins executing the registered jobs.
func (t *Scheduler) Start() {
	t.scheduler.Start()
	slog.Info("Task scheduler started", "jobs", len(t.scheduler.Jobs()))
}

// Stop shuts the scheduler down, waiting for running jobs to finish.
func (t *Scheduler) Stop() error {
	if err := t.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	return nil
}

// refreshStaleProfiles re-fetches every cached profile past the general TTL.
// Profiles whose creator vanished from Twitch are left to age out rather than
// deleted, so a transient 404 cannot empty the cache.
func (t *Scheduler) refreshStaleProfiles() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshJobTimeout)
	defer cancel()

	stale, err := t.cache.StaleProfiles()
	if err != nil {
		slog.Error("Failed to list stale profiles", "error", err)
		return
	}
	if len(stale) == 0 {
		slog.Debug("No stale profiles to refresh")
		return
	}

	refreshed, gone, failed := 0, 0, 0
	for _, profile := range stale {
		if ctx.Err() != nil {
			slog.Warn("Cache refresh timed out", "remaining", len(stale)-refreshed-gone-failed)
			break
		}
		err := t.fetcher.Refresh(ctx, profile.TwitchUserID)
		switch {
		case err == nil:
			refreshed++
		case errors.Is(err, twitch.ErrNotFound):
			gone++
			slog.Debug("Streamer no longer exists on Twitch", "username", profile.Username)
		default:
			failed++
			slog.Warn("Failed to refresh streamer profile",
				"username", profile.Username, "error", err)
		}
	}

	slog.Info("Stale cache refresh complete",
		"refreshed", refreshed, "gone", gone, "failed", failed)
}

func (t *Scheduler) runGuildSweep() {
	if t.sweep == nil {
		return
	}
	slog.Info("Starting scheduled guild sweep")
	t.sweep(context.Background())
}
