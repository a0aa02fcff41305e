package detect

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/caesarakalaeii/streamer-verification/internal/avatar"
	"github.com/caesarakalaeii/streamer-verification/internal/storage"
)

// avatarCompareThreshold gates the avatar comparison: only near-identical
// usernames are worth the extra signal.
const avatarCompareThreshold = 85.0

// Member is the engine's view of a Discord guild member.
type Member struct {
	GuildID          string
	ID               string
	Username         string
	DisplayName      string
	Bio              string
	AvatarURL        string
	AvatarHash       string // difference-hash string, filled lazily
	AccountCreatedAt time.Time
	AccountAgeDays   int
	IsBot            bool
	RoleIDs          []string
}

// AgeDays returns the account age in whole days, floored at zero.
func AgeDays(createdAt time.Time, now time.Time) int {
	days := int(now.Sub(createdAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ScoreBreakdown carries every component score plus the classification.
// All fields are deterministic functions of the scoring inputs.
type ScoreBreakdown struct {
	UsernameSimilarity int
	AccountAge         int
	BioMatch           int
	CreatorPopularity  int
	DiscordAbsence     int
	AvatarMatch        int
	Total              int
	RiskLevel          storage.RiskLevel
}

// Scorer computes composite impersonation risk scores. The raw username
// similarity blend is memoized since it is by far the hottest computation
// during batch scans.
type Scorer struct {
	memo *lru.Cache[[2]string, float64]
}

// NewScorer creates a Scorer with a bounded similarity memo.
func NewScorer() *Scorer {
	return &Scorer{memo: newSimilarityMemo()}
}

// UsernameSimilarity returns the raw 0-100 similarity blend for two usernames.
func (s *Scorer) UsernameSimilarity(a, b string) float64 {
	key := memoKey(a, b)
	if cached, ok := s.memo.Get(key); ok {
		return cached
	}
	result := usernameSimilarity(a, b)
	s.memo.Add(key, result)
	return result
}

// Score computes the full breakdown for a member against a candidate
// streamer profile. Identical inputs always produce identical output.
func (s *Scorer) Score(m Member, candidate *storage.StreamerProfile) ScoreBreakdown {
	similarity := s.UsernameSimilarity(m.Username, candidate.Username)

	avatarSimilarity := 0.0
	if similarity >= avatarCompareThreshold && m.AvatarHash != "" && candidate.AvatarHash != "" {
		avatarSimilarity = avatar.Similarity(m.AvatarHash, candidate.AvatarHash)
	}

	breakdown := ScoreBreakdown{
		UsernameSimilarity: usernameScore(similarity),
		AccountAge:         accountAgeScore(m.AccountAgeDays),
		BioMatch:           bioScore(bioSimilarity(m.Bio, candidate.Bio)),
		CreatorPopularity:  popularityScore(candidate.FollowerCount),
		DiscordAbsence:     discordAbsenceScore(candidate.HasDiscordLink),
		AvatarMatch:        avatarScore(avatarSimilarity),
	}
	breakdown.Total = breakdown.UsernameSimilarity + breakdown.AccountAge +
		breakdown.BioMatch + breakdown.CreatorPopularity +
		breakdown.DiscordAbsence + breakdown.AvatarMatch
	breakdown.RiskLevel = storage.RiskLevelForScore(breakdown.Total)
	return breakdown
}

// usernameScore maps the raw similarity blend onto the 0-40 band.
func usernameScore(similarity float64) int {
	switch {
	case similarity >= 95:
		return 40
	case similarity >= 85:
		return 30
	case similarity >= 75:
		return 20
	case similarity >= 65:
		return 10
	default:
		return 0
	}
}

// accountAgeScore rates freshly created accounts highest; anything past a
// year is established and scores zero.
func accountAgeScore(ageDays int) int {
	switch {
	case ageDays <= 7:
		return 20
	case ageDays <= 30:
		return 15
	case ageDays <= 90:
		return 10
	case ageDays <= 180:
		return 5
	case ageDays <= 365:
		return 2
	default:
		return 0
	}
}

func bioScore(similarity float64) int {
	switch {
	case similarity >= 100:
		return 20
	case similarity >= 90:
		return 15
	case similarity >= 70:
		return 10
	case similarity >= 50:
		return 5
	default:
		return 0
	}
}

// popularityScore peaks in the 1k-50k follower band: mega-creators are too
// well protected and micro-creators too low-value to impersonate.
func popularityScore(followers int) int {
	switch {
	case followers >= 1000 && followers <= 50000:
		return 10
	case (followers >= 500 && followers < 1000) || (followers > 50000 && followers <= 100000):
		return 5
	case (followers >= 100 && followers < 500) || (followers > 100000 && followers <= 500000):
		return 2
	default:
		return 0
	}
}

func discordAbsenceScore(hasDiscordLink bool) int {
	if hasDiscordLink {
		return 0
	}
	return 10
}

func avatarScore(similarity float64) int {
	switch {
	case similarity >= 90:
		return 10
	case similarity >= 80:
		return 5
	default:
		return 0
	}
}
