package detect

import (
	"fmt"
	"slices"

	"github.com/caesarakalaeii/streamer-verification/internal/storage"
)

// TrustFilter decides whether a member is exempt from scoring. Verified,
// trusted-role and whitelisted members structurally cannot be impersonators
// of the platform we defend, so the scoring path is skipped entirely.
type TrustFilter struct {
	repo *storage.Repository
}

// NewTrustFilter creates a TrustFilter over the given store.
func NewTrustFilter(repo *storage.Repository) *TrustFilter {
	return &TrustFilter{repo: repo}
}

// IsTrusted checks, in order and short-circuiting on the first hit:
// an internal verification record, membership in a configured trusted role,
// a whitelist entry for this guild. Pure read, no side effects.
func (t *TrustFilter) IsTrusted(m Member, policy *storage.GuildPolicy) (bool, error) {
	verification, err := t.repo.GetVerificationByMemberID(m.ID)
	if err != nil {
		return false, fmt.Errorf("verification lookup failed: %w", err)
	}
	if verification != nil {
		return true, nil
	}

	if policy != nil {
		for _, trusted := range policy.TrustedRoleIDs {
			if slices.Contains(m.RoleIDs, trusted) {
				return true, nil
			}
		}
	}

	whitelisted, err := t.repo.IsWhitelisted(m.GuildID, m.ID)
	if err != nil {
		return false, fmt.Errorf("whitelist lookup failed: %w", err)
	}
	return whitelisted, nil
}
