// Package config loads environment variables and provides a typed Config used across the bot.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required transport credentials, use Validate.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/d3vgru/easy-peasy-bot/db"
	"github.com/d3vgru/easy-peasy-bot/recap"
)

// Transport names accepted in CHAT_TRANSPORT.
const (
	TransportSlack  = "slack"
	TransportTwitch = "twitch"
)

const (
	defaultRepoURL  = "https://github.com/d3vgru/easy-peasy-bot"
	defaultGreeting = "I'm here! COME ON, DO IT NOW, KILL ME!"
)

type Config struct {
	Transport string

	// Slack
	SlackBotToken string
	SlackAppToken string

	// Twitch
	TwitchBotUsername  string
	TwitchOAuthToken   string
	TwitchClientID     string
	TwitchClientSecret string
	TwitchChannels     []string

	// Bot
	CanonicalChannel string
	Aliases          recap.Aliases
	TopicRepoURL     string
	TopicDataURL     string
	ReplyNotFound    bool
	Greeting         string

	// Database
	DBDsn           string
	DatastoreSecret string
	DBConnectWait   time.Duration

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail when
// transport credentials are missing; call Validate before connecting.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Transport = strings.ToLower(strings.TrimSpace(os.Getenv("CHAT_TRANSPORT")))
	if cfg.Transport == "" {
		cfg.Transport = TransportSlack
	}

	cfg.SlackBotToken = os.Getenv("SLACK_BOT_TOKEN")
	cfg.SlackAppToken = os.Getenv("SLACK_APP_TOKEN")

	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchChannels = splitList(os.Getenv("TWITCH_CHANNELS"))

	cfg.CanonicalChannel = strings.TrimSpace(os.Getenv("CANONICAL_CHANNEL"))
	if cfg.Transport == TransportTwitch {
		for i, ch := range cfg.TwitchChannels {
			cfg.TwitchChannels[i] = twitchChannel(ch)
		}
		cfg.CanonicalChannel = twitchChannel(cfg.CanonicalChannel)
		if cfg.CanonicalChannel == "" && len(cfg.TwitchChannels) > 0 {
			cfg.CanonicalChannel = cfg.TwitchChannels[0]
		}
	}

	aliases := recap.Aliases{}
	if path := os.Getenv("ALIAS_FILE"); path != "" {
		fromFile, err := LoadAliases(path)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			aliases[k] = v
		}
	}
	inline, err := ParseAliases(os.Getenv("ALIASES"))
	if err != nil {
		return nil, err
	}
	for k, v := range inline {
		aliases[k] = v
	}
	cfg.Aliases = aliases

	cfg.TopicRepoURL = os.Getenv("TOPIC_REPO_URL")
	if cfg.TopicRepoURL == "" {
		cfg.TopicRepoURL = defaultRepoURL
	}
	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	cfg.TopicDataURL = os.Getenv("TOPIC_DATA_URL")
	if cfg.TopicDataURL == "" {
		cfg.TopicDataURL = "http://localhost" + cfg.HTTPAddr + "/episodes"
		if !strings.HasPrefix(cfg.HTTPAddr, ":") {
			cfg.TopicDataURL = "http://" + cfg.HTTPAddr + "/episodes"
		}
	}
	cfg.ReplyNotFound = isTrue(os.Getenv("REPLY_NOT_FOUND"))
	cfg.Greeting = defaultGreeting
	if v, ok := os.LookupEnv("GREETING"); ok {
		cfg.Greeting = v
	}

	cfg.DBDsn = os.Getenv("DB_DSN")
	if cfg.DBDsn == "" {
		cfg.DBDsn = db.DefaultDSN
	}
	cfg.DatastoreSecret = os.Getenv("DATASTORE_SECRET")
	cfg.DBConnectWait = 2 * time.Minute
	if v := os.Getenv("DB_CONNECT_WAIT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid DB_CONNECT_WAIT %q", v)
		}
		cfg.DBConnectWait = d
	}

	return cfg, nil
}

// Validate checks the fields the selected transport needs to connect.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportSlack:
		if c.SlackBotToken == "" || c.SlackAppToken == "" {
			return fmt.Errorf("missing slack env: require SLACK_BOT_TOKEN, SLACK_APP_TOKEN")
		}
		if !strings.HasPrefix(c.SlackAppToken, "xapp-") {
			return fmt.Errorf("SLACK_APP_TOKEN must be an app-level token (xapp-...)")
		}
	case TransportTwitch:
		if c.TwitchBotUsername == "" || c.TwitchOAuthToken == "" || len(c.TwitchChannels) == 0 {
			return fmt.Errorf("missing twitch env: require TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN, TWITCH_CHANNELS")
		}
	default:
		return fmt.Errorf("unknown CHAT_TRANSPORT %q (want %s or %s)", c.Transport, TransportSlack, TransportTwitch)
	}
	if c.CanonicalChannel == "" {
		return fmt.Errorf("missing CANONICAL_CHANNEL")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// twitchChannel matches the form go-twitch-irc reports in messages: the
// broadcaster login, lowercase, without the leading '#'.
func twitchChannel(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
