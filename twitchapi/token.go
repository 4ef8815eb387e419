package twitchapi

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenURL is Twitch's OAuth token endpoint.
const TokenURL = "https://id.twitch.tv/oauth2/token"

// errMissingCredentials is returned by the app token source when no client
// id or secret is configured.
var errMissingCredentials = errors.New("missing client id/secret for twitch app token")

type missingCredentials struct{}

func (missingCredentials) Token() (*oauth2.Token, error) { return nil, errMissingCredentials }

// NewAppTokenSource returns a cached Twitch app access token source
// (client credentials grant). The token refreshes itself shortly before expiry.
// NOTE: an app token cannot be used for IRC chat or for editing a channel;
// those need the bot's user token.
func NewAppTokenSource(clientID, clientSecret string, httpClient *http.Client) oauth2.TokenSource {
	if clientID == "" || clientSecret == "" {
		return missingCredentials{}
	}
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx := context.Background()
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	return cfg.TokenSource(ctx)
}
