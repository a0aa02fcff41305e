package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase passthrough", "streamer", "streamer"},
		{"uppercase folded", "StreamerX", "streamerx"},
		{"underscores stripped", "streamer_x", "streamerx"},
		{"mixed separators", "Stream-er.X name", "streamerx"},
		{"digits kept", "streamer123", "streamer123"},
		{"only separators", "_-. ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeUsername(tt.input))
		})
	}
}

func TestUsernameSimilarity_IdenticalAfterNormalization(t *testing.T) {
	assert.Equal(t, 100.0, usernameSimilarity("Streamer_X", "streamerx"))
	assert.Equal(t, 100.0, usernameSimilarity("same", "same"))
}

func TestUsernameSimilarity_Empty(t *testing.T) {
	assert.Equal(t, 0.0, usernameSimilarity("", "streamer"))
	assert.Equal(t, 0.0, usernameSimilarity("streamer", ""))
	assert.Equal(t, 0.0, usernameSimilarity("___", "streamer"))
}

func TestUsernameSimilarity_DigitSuffix(t *testing.T) {
	// Digit-suffix insertion is the classic disguise; the pattern detector
	// pushes this into the near-identical band.
	sim := usernameSimilarity("streamerx123", "streamerx")
	assert.GreaterOrEqual(t, sim, 85.0)
	assert.Less(t, sim, 95.0)
}

func TestUsernameSimilarity_LeetSubstitution(t *testing.T) {
	sim := usernameSimilarity("n1nja", "ninja")
	assert.GreaterOrEqual(t, sim, 65.0)
}

func TestUsernameSimilarity_HomoglyphSubstitution(t *testing.T) {
	// "3" reads as "e"; once the separator is stripped this is a single
	// substitution away from the real name and must clear the 75 band.
	sim := usernameSimilarity("str3amer_x", "streamerx")
	assert.GreaterOrEqual(t, sim, 75.0)
	assert.Less(t, sim, 85.0)
}

func TestUsernameSimilarity_Unrelated(t *testing.T) {
	assert.Less(t, usernameSimilarity("xqc", "pokimane"), 40.0)
}

func TestUsernameSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"streamerx123", "streamerx"},
		{"n1nja", "ninja"},
		{"abcdef", "ghijkl"},
	}
	for _, p := range pairs {
		assert.Equal(t, usernameSimilarity(p[0], p[1]), usernameSimilarity(p[1], p[0]),
			"similarity must not depend on argument order for %q/%q", p[0], p[1])
	}
}

func TestImpersonationPatternScore(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		// stripDigits match + containment (diff 3) + leet containment
		{"digit suffix", "streamerx123", "streamerx", 100},
		// leet-map containment plus containment with a longer addition
		{"long addition", "shortname", "shortnameplusalot", 50},
		{"no pattern", "abcdef", "uvwxyz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, impersonationPatternScore(tt.a, tt.b))
		})
	}
}

func TestBioSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, bioSimilarity("", "streamer bio"))
	assert.Equal(t, 0.0, bioSimilarity("streamer bio", ""))
	assert.Equal(t, 100.0, bioSimilarity("Twitch Streamer", "twitch streamer"))
	assert.Greater(t, bioSimilarity("twitch streamer and gamer", "twitch streamer"), 50.0)
	assert.Less(t, bioSimilarity("completely different text here", "nothing alike"), 50.0)
}
