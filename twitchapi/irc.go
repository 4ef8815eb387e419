package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/d3vgru/easy-peasy-bot/chat"
)

// ErrNotConnected is returned by Send while no IRC session is live.
var ErrNotConnected = errors.New("twitch irc: not connected")

// postedAtLayout is fixed-width so stored timestamps sort as text.
const postedAtLayout = "2006-01-02T15:04:05.000000Z"

// session is one IRC connection.
type session struct {
	connect    func() error
	disconnect func()
	say        func(channel, text string)
}

// IRCTransport implements chat.Transport over Twitch IRC. Channel names are
// logins without '#'. The stream title stands in for the topic.
type IRCTransport struct {
	Username string
	Token    string // user token with chat:read chat:edit, "oauth:" prefix optional
	Channels []string
	Helix    *HelixClient

	newSession func(ctx context.Context) session
	log        *slog.Logger

	mu      sync.RWMutex
	handler chat.Handler
	onOpen  func()
	cur     *session
	names   map[string]string // user id -> login
	rooms   map[string]string // channel login -> broadcaster id
}

var _ chat.Transport = (*IRCTransport)(nil)

// NewIRCTransport returns a transport joining channels as username.
func NewIRCTransport(username, token string, channels []string, helix *HelixClient) *IRCTransport {
	t := &IRCTransport{
		Username: username,
		Token:    token,
		Channels: channels,
		Helix:    helix,
		log:      slog.Default().With(slog.String("component", "twitch_irc")),
		names:    make(map[string]string),
		rooms:    make(map[string]string),
	}
	t.newSession = t.dial
	return t
}

// SetHandler sets where inbound messages go. Call before Connect.
func (t *IRCTransport) SetHandler(h chat.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// OnOpen registers a callback fired when the IRC connection is up.
func (t *IRCTransport) OnOpen(fn func()) {
	t.mu.Lock()
	t.onOpen = fn
	t.mu.Unlock()
}

func (t *IRCTransport) dial(ctx context.Context) session {
	token := t.Token
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	c := twitch.NewClient(t.Username, token)
	c.OnConnect(t.opened)
	c.OnPrivateMessage(func(m twitch.PrivateMessage) { t.dispatch(ctx, m) })
	c.OnSelfJoinMessage(func(m twitch.UserJoinMessage) { t.joined(ctx, m.Channel) })
	c.Join(t.Channels...)
	return session{
		connect:    c.Connect,
		disconnect: func() { c.Disconnect() },
		say:        func(channel, text string) { c.Say(channel, text) },
	}
}

// Connect runs one IRC session and blocks until it drops or ctx ends.
func (t *IRCTransport) Connect(ctx context.Context) error {
	s := t.newSession(ctx)
	t.mu.Lock()
	t.cur = &s
	t.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.disconnect()
		case <-done:
		}
	}()

	err := s.connect()
	t.mu.Lock()
	t.cur = nil
	t.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("twitch irc connection closed")
	}
	t.log.Warn("irc session ended", slog.Any("err", err))
	return err
}

func (t *IRCTransport) opened() {
	t.log.Info("connected to twitch irc", slog.Any("channels", t.Channels))
	t.mu.RLock()
	fn := t.onOpen
	t.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (t *IRCTransport) joined(ctx context.Context, channel string) {
	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()
	if h != nil {
		h.HandleJoin(ctx, channel)
	}
}

// dispatch routes one chat line: "@<bot> ..." is a mention, anything else
// ambient. The bot's own lines are dropped.
func (t *IRCTransport) dispatch(ctx context.Context, m twitch.PrivateMessage) {
	if strings.EqualFold(m.User.Name, t.Username) {
		return
	}
	t.mu.Lock()
	if m.User.ID != "" && m.User.Name != "" {
		t.names[m.User.ID] = m.User.Name
	}
	if m.RoomID != "" {
		t.rooms[m.Channel] = m.RoomID
	}
	h := t.handler
	t.mu.Unlock()
	if h == nil {
		return
	}

	posted := m.Time
	if posted.IsZero() {
		posted = time.Now()
	}
	msg := chat.Message{
		Text:      m.Message,
		User:      m.User.ID,
		Channel:   m.Channel,
		Timestamp: posted.UTC().Format(postedAtLayout),
	}
	if msg.User == "" {
		msg.User = m.User.Name
	}
	if fields := strings.Fields(m.Message); len(fields) > 0 && strings.EqualFold(fields[0], "@"+t.Username) {
		h.HandleMention(ctx, msg)
		return
	}
	h.HandleAmbient(ctx, msg)
}

// Send says text in channel.
func (t *IRCTransport) Send(_ context.Context, channel, text string) error {
	t.mu.RLock()
	s := t.cur
	t.mu.RUnlock()
	if s == nil {
		return ErrNotConnected
	}
	s.say(channel, text)
	return nil
}

// SetTopic sets the stream title of channel.
func (t *IRCTransport) SetTopic(ctx context.Context, channel, topic string) error {
	if t.Helix == nil {
		return fmt.Errorf("twitch: no helix client to set the title of %s", channel)
	}
	t.mu.RLock()
	id := t.rooms[channel]
	t.mu.RUnlock()
	if id == "" {
		var err error
		if id, err = t.Helix.GetUserID(ctx, channel); err != nil {
			return fmt.Errorf("resolve broadcaster %s: %w", channel, err)
		}
		t.mu.Lock()
		t.rooms[channel] = id
		t.mu.Unlock()
	}
	return t.Helix.ModifyChannelTitle(ctx, id, topic)
}

// UserName returns the login of a user id, from chat history or Helix.
func (t *IRCTransport) UserName(ctx context.Context, userID string) (string, error) {
	t.mu.RLock()
	name := t.names[userID]
	t.mu.RUnlock()
	if name != "" {
		return name, nil
	}
	if t.Helix == nil {
		return "", fmt.Errorf("twitch: unknown user %s", userID)
	}
	u, err := t.Helix.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	t.names[userID] = u.Login
	t.mu.Unlock()
	return u.Login, nil
}
