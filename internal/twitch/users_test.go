package twitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasDiscordLink(t *testing.T) {
	tests := []struct {
		name     string
		bio      string
		expected bool
	}{
		{"invite link", "Join my community: discord.gg/streamerx", true},
		{"full invite url", "https://discord.com/invite/abc123", true},
		{"case insensitive", "DISCORD.GG/ABC", true},
		{"bare mention", "I hang out on discord sometimes", false},
		{"empty bio", "", false},
		{"unrelated url", "https://example.com/discordgg", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HasDiscordLink(tt.bio))
		})
	}
}
