// Package bot wires the detection pipeline to Discord: session lifecycle,
// slash commands, alert buttons and the member-join hook.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/caesarakalaeii/streamer-verification/internal/avatar"
	"github.com/caesarakalaeii/streamer-verification/internal/cache"
	"github.com/caesarakalaeii/streamer-verification/internal/config"
	"github.com/caesarakalaeii/streamer-verification/internal/detect"
	"github.com/caesarakalaeii/streamer-verification/internal/fetch"
	"github.com/caesarakalaeii/streamer-verification/internal/moderation"
	"github.com/caesarakalaeii/streamer-verification/internal/scanner"
	"github.com/caesarakalaeii/streamer-verification/internal/storage"
	"github.com/caesarakalaeii/streamer-verification/internal/tasks"
	"github.com/caesarakalaeii/streamer-verification/internal/twitch"
)

const (
	joinCheckTimeout = 60 * time.Second
	scanTimeout      = 30 * time.Minute

	memberPageSize = 1000
)

// Bot represents the Discord bot instance
type Bot struct {
	config    *config.Config
	session   *discordgo.Session
	repo      *storage.Repository
	cache     *cache.IdentityCache
	fetcher   *fetch.Fetcher
	engine    *detect.Engine
	manager   *moderation.Manager
	scanner   *scanner.Scanner
	scheduler *tasks.Scheduler
	commands  []*discordgo.ApplicationCommand
}

// New creates a new Bot instance
func New(cfg *config.Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// GuildMembers is privileged; required for join events and batch scans.
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	identityCache := cache.New(repo, cfg.CacheGeneralTTL, cfg.CacheStatsTTL)
	hasher := avatar.NewHasher()
	twitchClient := twitch.NewClient(cfg.TwitchClientID, cfg.TwitchClientSecret)
	fetcher := fetch.New(twitchClient, identityCache, hasher, cfg.TwitchRequestsPerMinute)

	scorer := detect.NewScorer()
	selector := detect.NewSelector(identityCache, fetcher, scorer)
	trust := detect.NewTrustFilter(repo)
	engine := detect.NewEngine(trust, selector, scorer, hasher)

	b := &Bot{
		config:  cfg,
		session: session,
		repo:    repo,
		cache:   identityCache,
		fetcher: fetcher,
		engine:  engine,
	}

	b.manager = moderation.NewManager(repo, &sessionGateway{session: session})
	b.scanner = scanner.New(engine, b.manager, repo, cfg.ScanBatchSize, cfg.ScanBatchDelay)

	b.scheduler, err = tasks.New(identityCache, fetcher, b.sweepAllGuilds)
	if err != nil {
		return nil, fmt.Errorf("failed to create task scheduler: %w", err)
	}

	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection and starts background tasks
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	go b.warmCacheFromVerifications(ctx)

	b.scheduler.Start()

	return nil
}

// warmCacheFromVerifications makes sure every streamer with a verified
// Discord link has a cache entry. Verified streamers are exactly the ones
// most worth protecting, so they should never miss the candidate scan.
func (b *Bot) warmCacheFromVerifications(ctx context.Context) {
	verifications, err := b.repo.ListVerifications()
	if err != nil {
		slog.Error("Failed to list verifications for cache warmup", "error", err)
		return
	}

	added := 0
	for _, v := range verifications {
		if ctx.Err() != nil {
			return
		}
		cached, err := b.cache.Get(v.TwitchUserID)
		if err != nil || cached != nil {
			continue
		}
		if _, err := b.fetcher.FetchByID(ctx, v.TwitchUserID); err != nil {
			slog.Warn("Failed to warm cache for verified streamer",
				"twitchUsername", v.TwitchUsername, "error", err)
			continue
		}
		added++
	}
	if added > 0 {
		slog.Info("Warmed streamer cache from verifications", "added", added)
	}
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	if b.scheduler != nil {
		if err := b.scheduler.Stop(); err != nil {
			slog.Error("Failed to stop task scheduler", "error", err)
		}
	}

	if b.repo != nil {
		b.repo.Close()
	}

	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(b.handleGuildMemberAdd)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// handleInteraction dispatches slash commands and alert button clicks
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

		switch data.Name {
		case "impersonation-setup":
			b.handleSetup(s, i)
		case "impersonation-config":
			b.handleConfig(s, i)
		case "impersonation-review":
			b.handleReview(s, i)
		case "impersonation-details":
			b.handleDetails(s, i)
		case "impersonation-whitelist":
			b.handleWhitelist(s, i)
		case "impersonation-stats":
			b.handleStats(s, i)
		case "impersonation-cache-refresh":
			b.handleCacheRefresh(s, i)
		case "impersonation-scan":
			b.handleScan(s, i)
		default:
			slog.Warn("Unknown command", "command", data.Name)
		}

	case discordgo.InteractionMessageComponent:
		b.handleComponent(s, i)
	}
}

// handleGuildMemberAdd runs the detection pipeline for every new member.
func (b *Bot) handleGuildMemberAdd(s *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.User == nil || e.User.Bot {
		return
	}

	policy, err := b.repo.GetGuildPolicy(e.GuildID)
	if err != nil {
		slog.Error("Failed to load guild policy", "guild", e.GuildID, "error", err)
		return
	}
	if policy == nil || !policy.Enabled {
		return
	}

	member := memberFromDiscord(e.GuildID, e.Member)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), joinCheckTimeout)
		defer cancel()

		eval, err := b.engine.Evaluate(ctx, member, policy)
		if err != nil {
			slog.Error("Join check failed", "member", member.Username, "error", err)
			return
		}
		if eval == nil {
			return
		}
		if _, err := b.manager.HandleDetection(eval, policy, storage.TriggerJoin); err != nil {
			slog.Error("Failed to handle join detection", "member", member.Username, "error", err)
		}
	}()
}

// sweepAllGuilds scans every guild with detection enabled. Used by the daily
// scheduled job.
func (b *Bot) sweepAllGuilds(ctx context.Context) {
	policies, err := b.repo.ListEnabledPolicies()
	if err != nil {
		slog.Error("Failed to list enabled guild policies", "error", err)
		return
	}

	for _, policy := range policies {
		sweepCtx, cancel := context.WithTimeout(ctx, scanTimeout)
		summary, err := b.scanGuild(sweepCtx, policy)
		cancel()
		if err != nil {
			slog.Error("Scheduled guild sweep failed", "guild", policy.GuildID, "error", err)
			continue
		}
		slog.Info("Scheduled guild sweep finished",
			"guild", policy.GuildID, "scanned", summary.Scanned, "flagged", summary.Flagged)
	}
}

// scanGuild snapshots a guild's membership and runs the batch scanner on it.
func (b *Bot) scanGuild(ctx context.Context, policy *storage.GuildPolicy) (*storage.ScanSummary, error) {
	members, err := b.fetchAllMembers(policy.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot guild members: %w", err)
	}
	return b.scanner.Scan(ctx, members, policy, storage.TriggerBatchScan)
}

// fetchAllMembers pages through the guild member list.
func (b *Bot) fetchAllMembers(guildID string) ([]detect.Member, error) {
	var members []detect.Member
	after := ""
	for {
		page, err := b.session.GuildMembers(guildID, after, memberPageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			members = append(members, memberFromDiscord(guildID, m))
			after = m.User.ID
		}
		if len(page) < memberPageSize {
			break
		}
	}
	return members, nil
}

// memberFromDiscord converts a discordgo member to the engine's member view.
// Account age comes from the snowflake timestamp.
func memberFromDiscord(guildID string, m *discordgo.Member) detect.Member {
	created, err := discordgo.SnowflakeTimestamp(m.User.ID)
	if err != nil {
		created = time.Now().UTC()
	}

	displayName := m.Nick
	if displayName == "" {
		displayName = m.User.GlobalName
	}

	return detect.Member{
		GuildID:          guildID,
		ID:               m.User.ID,
		Username:         m.User.Username,
		DisplayName:      displayName,
		AvatarURL:        m.User.AvatarURL("256"),
		AccountCreatedAt: created,
		IsBot:            m.User.Bot,
		RoleIDs:          m.Roles,
	}
}
