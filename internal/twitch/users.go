package twitch

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
)

// User is a Twitch user from the Helix Users API
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Channel is a search result from the Helix Search Channels API
type Channel struct {
	ID           string `json:"id"`
	Login        string `json:"broadcaster_login"`
	DisplayName  string `json:"display_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// GetUserByID retrieves a user by Twitch user ID.
func (c *Client) GetUserByID(ctx context.Context, userID string) (*User, error) {
	return c.getUser(ctx, fmt.Sprintf("%s/users?id=%s", helixBaseURL, url.QueryEscape(userID)))
}

// GetUserByLogin retrieves a user by login name.
func (c *Client) GetUserByLogin(ctx context.Context, login string) (*User, error) {
	return c.getUser(ctx, fmt.Sprintf("%s/users?login=%s", helixBaseURL, url.QueryEscape(login)))
}

func (c *Client) getUser(ctx context.Context, endpoint string) (*User, error) {
	var result struct {
		Data []User `json:"data"`
	}
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, ErrNotFound
	}
	return &result.Data[0], nil
}

// GetFollowerCount returns the number of followers for a broadcaster.
func (c *Client) GetFollowerCount(ctx context.Context, broadcasterID string) (int, error) {
	endpoint := fmt.Sprintf("%s/channels/followers?broadcaster_id=%s&first=1",
		helixBaseURL, url.QueryEscape(broadcasterID))

	var result struct {
		Total int `json:"total"`
	}
	if err := c.get(ctx, endpoint, &result); err != nil {
		return 0, fmt.Errorf("failed to get follower count: %w", err)
	}
	return result.Total, nil
}

// SearchChannels searches Twitch channels by name.
func (c *Client) SearchChannels(ctx context.Context, query string, limit int) ([]Channel, error) {
	if limit <= 0 {
		limit = 10
	}
	endpoint := fmt.Sprintf("%s/search/channels?query=%s&first=%d",
		helixBaseURL, url.QueryEscape(query), limit)

	var result struct {
		Data []Channel `json:"data"`
	}
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("failed to search channels: %w", err)
	}
	return result.Data, nil
}

var discordLinkPattern = regexp.MustCompile(`(?i)discord\.(gg|com/invite)/`)

// HasDiscordLink reports whether a channel description advertises a Discord server.
func HasDiscordLink(description string) bool {
	return discordLinkPattern.MatchString(description)
}
