package moderation

import (
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caesarakalaeii/streamer-verification/internal/storage"
)

func TestAlertEmbed(t *testing.T) {
	d := &storage.DetectionRecord{
		ID:                   42,
		MemberID:             "member-1",
		MemberUsername:       "streamerx123",
		MemberAccountAgeDays: 3,
		SuspectedUsername:    "streamerx",
		SuspectedFollowers:   10000,
		UsernameSimilarity:   30,
		AccountAge:           20,
		DiscordAbsence:       10,
		TotalScore:           60,
		RiskLevel:            storage.RiskHigh,
		Trigger:              storage.TriggerJoin,
		DetectedAt:           time.Now().UTC(),
	}

	embed := AlertEmbed(d)

	assert.Contains(t, embed.Description, "streamerx")
	assert.Equal(t, colorRed, embed.Color)
	require.NotNil(t, embed.Footer)
	assert.Contains(t, embed.Footer.Text, "Detection ID: 42")
	assert.Contains(t, embed.Footer.Text, "join")
}

func TestAlertButtons_CustomIDsCarryDetectionID(t *testing.T) {
	components := AlertButtons(42)
	require.Len(t, components, 1)

	row, ok := components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 5)

	expected := map[string]bool{
		"impersonation:ban:42":            false,
		"impersonation:kick:42":           false,
		"impersonation:warn:42":           false,
		"impersonation:mark-safe:42":      false,
		"impersonation:false-positive:42": false,
	}
	for _, c := range row.Components {
		button, ok := c.(discordgo.Button)
		require.True(t, ok)
		_, known := expected[button.CustomID]
		assert.True(t, known, "unexpected custom ID %q", button.CustomID)
		expected[button.CustomID] = true
	}
	for id, seen := range expected {
		assert.True(t, seen, fmt.Sprintf("missing button %s", id))
	}
}

func TestRiskColor(t *testing.T) {
	assert.Equal(t, colorDarkRed, riskColor(storage.RiskCritical))
	assert.Equal(t, colorRed, riskColor(storage.RiskHigh))
	assert.Equal(t, colorOrange, riskColor(storage.RiskMedium))
	assert.Equal(t, colorGold, riskColor(storage.RiskLow))
}
