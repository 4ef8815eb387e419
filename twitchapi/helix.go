// Package twitchapi connects the recap bot to Twitch: IRC chat for messages and
// the Helix API for user names and the channel title, which serves as the topic.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// BaseURL is the Helix API root.
const BaseURL = "https://api.twitch.tv/helix"

// HelixClient provides the few Helix calls the bot needs.
type HelixClient struct {
	AppTokenSource oauth2.TokenSource
	ClientID       string
	// UserToken is the bot's user access token, required to edit a channel.
	UserToken  string
	HTTPClient *http.Client
}

// User is a Helix user profile.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) appToken() (string, error) {
	if hc.AppTokenSource == nil {
		return "", fmt.Errorf("twitch app token source not configured")
	}
	tok, err := hc.AppTokenSource.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (hc *HelixClient) do(ctx context.Context, method, path string, q url.Values, body any, token string) (*http.Response, error) {
	u := BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return hc.http().Do(req)
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

func (hc *HelixClient) users(ctx context.Context, q url.Values) ([]User, error) {
	tok, err := hc.appToken()
	if err != nil {
		return nil, err
	}
	resp, err := hc.do(ctx, http.MethodGet, "/users", q, nil, tok)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("helix users: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	users, err := hc.users(ctx, url.Values{"login": {login}})
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return users[0].ID, nil
}

// GetUser fetches a profile by user ID.
func (hc *HelixClient) GetUser(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, fmt.Errorf("user id empty")
	}
	users, err := hc.users(ctx, url.Values{"id": {id}})
	if err != nil {
		return User{}, err
	}
	if len(users) == 0 {
		return User{}, fmt.Errorf("user not found")
	}
	return users[0], nil
}

// ModifyChannelTitle sets the stream title of broadcasterID. Twitch has no
// channel topic; the title is where viewers look for it.
func (hc *HelixClient) ModifyChannelTitle(ctx context.Context, broadcasterID, title string) error {
	if broadcasterID == "" {
		return fmt.Errorf("broadcaster id empty")
	}
	if hc.UserToken == "" {
		return fmt.Errorf("editing a channel requires a user token")
	}
	resp, err := hc.do(ctx, http.MethodPatch, "/channels",
		url.Values{"broadcaster_id": {broadcasterID}},
		map[string]string{"title": title},
		strings.TrimPrefix(hc.UserToken, "oauth:"))
	if err != nil {
		return err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("helix modify channel: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	return nil
}
