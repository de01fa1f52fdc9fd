package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	twitchTokenURL  = "https://id.twitch.tv/oauth2/token"
	twitchUsersURL  = "https://api.twitch.tv/helix/users"
	httpCallTimeout = 10 * time.Second
)

// TwitchOAuthClient handles the Twitch OAuth code exchange and user lookup.
type TwitchOAuthClient interface {
	ExchangeCodeForToken(ctx context.Context, code string) (*TwitchTokenResult, error)
}

// TwitchTokenResult identifies the broadcaster who completed the login flow.
type TwitchTokenResult struct {
	UserID   string
	Username string
}

type twitchOAuthHTTPClient struct {
	clientID     string
	clientSecret string
	redirectURI  string
}

// NewTwitchOAuthClient returns the production OAuth client against the
// Twitch identity and Helix HTTP APIs.
func NewTwitchOAuthClient(clientID, clientSecret, redirectURI string) TwitchOAuthClient {
	return &twitchOAuthHTTPClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
	}
}

func (c *twitchOAuthHTTPClient) ExchangeCodeForToken(ctx context.Context, code string) (*TwitchTokenResult, error) {
	accessToken, err := c.exchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	userID, username, err := c.fetchTwitchUser(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("user info fetch failed: %w", err)
	}

	return &TwitchTokenResult{UserID: userID, Username: username}, nil
}

func (c *twitchOAuthHTTPClient) exchangeCode(ctx context.Context, code string) (string, error) {
	data := url.Values{}
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("code", code)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", c.redirectURI)

	req, err := http.NewRequestWithContext(ctx, "POST", twitchTokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.URL.RawQuery = data.Encode()

	client := &http.Client{Timeout: httpCallTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("twitch returned status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	return tokenResp.AccessToken, nil
}

func (c *twitchOAuthHTTPClient) fetchTwitchUser(ctx context.Context, accessToken string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", twitchUsersURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Client-Id", c.clientID)

	client := &http.Client{Timeout: httpCallTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to execute user request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("twitch user API returned status %d", resp.StatusCode)
	}

	var userResp struct {
		Data []struct {
			ID          string `json:"id"`
			Login       string `json:"login"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userResp); err != nil {
		return "", "", fmt.Errorf("failed to decode user response: %w", err)
	}
	if len(userResp.Data) == 0 {
		return "", "", fmt.Errorf("no user data returned")
	}

	username := userResp.Data[0].DisplayName
	if username == "" {
		username = userResp.Data[0].Login
	}
	return userResp.Data[0].ID, username, nil
}
