package slackapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/d3vgru/easy-peasy-bot/chat"
)

// ErrSessionEnded is returned by Connect when Slack drops the socket.
var ErrSessionEnded = errors.New("slack socket mode session ended")

// Transport implements chat.Transport over the Web API and delivers Socket
// Mode events to a chat.Handler. Each Connect call is one socket session.
type Transport struct {
	api       SlackAPI
	newSocket func() *socketmode.Client
	log       *slog.Logger

	mu        sync.RWMutex
	handler   chat.Handler
	onOpen    func()
	botUserID string
}

var _ chat.Transport = (*Transport)(nil)

// New builds a Transport from a bot token (xoxb-) and an app-level token (xapp-).
func New(botToken, appToken string, debug bool) (*Transport, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if !strings.HasPrefix(appToken, "xapp-") {
		return nil, fmt.Errorf("app token must start with xapp-")
	}
	client := slack.New(
		botToken,
		slack.OptionDebug(debug),
		slack.OptionAppLevelToken(appToken),
	)
	t := newTransport(client)
	t.newSocket = func() *socketmode.Client {
		return socketmode.New(client, socketmode.OptionDebug(debug))
	}
	return t, nil
}

func newTransport(api SlackAPI) *Transport {
	return &Transport{
		api: api,
		log: slog.Default().With(slog.String("component", "slack")),
	}
}

// SetHandler sets where inbound messages go. Call before Connect.
func (t *Transport) SetHandler(h chat.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// OnOpen registers a callback fired when a socket session is established.
func (t *Transport) OnOpen(fn func()) {
	t.mu.Lock()
	t.onOpen = fn
	t.mu.Unlock()
}

// Send posts text into channel.
func (t *Transport) Send(ctx context.Context, channel, text string) error {
	if _, _, err := t.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("post message to %s: %w", channel, err)
	}
	return nil
}

// SetTopic replaces channel's topic.
func (t *Transport) SetTopic(ctx context.Context, channel, topic string) error {
	if _, err := t.api.SetTopicOfConversationContext(ctx, channel, topic); err != nil {
		return fmt.Errorf("set topic of %s: %w", channel, err)
	}
	return nil
}

// UserName returns the account name of userID.
func (t *Transport) UserName(ctx context.Context, userID string) (string, error) {
	u, err := t.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("users.info %s: %w", userID, err)
	}
	return u.Name, nil
}

// Connect runs one Socket Mode session and blocks until Slack drops it or ctx
// ends. Events are handled sequentially on this goroutine.
func (t *Transport) Connect(ctx context.Context) error {
	if t.newSocket == nil {
		return fmt.Errorf("slack transport has no socket mode client")
	}
	t.identify(ctx)

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sm := t.newSocket()
	errc := make(chan error, 1)
	go func() { errc <- sm.RunContext(sessCtx) }()

	ack := func(req socketmode.Request) { sm.Ack(req) }
	for {
		select {
		case err := <-errc:
			if err == nil || errors.Is(err, context.Canceled) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrSessionEnded
			}
			return fmt.Errorf("socket mode: %w", err)
		case evt, ok := <-sm.Events:
			if !ok {
				return ErrSessionEnded
			}
			if t.handleEvent(ctx, evt, ack) {
				cancel()
				drain(sm.Events, errc)
				return ErrSessionEnded
			}
		}
	}
}

// drain discards events until RunContext returns so it never blocks on send.
func drain(events chan socketmode.Event, errc <-chan error) {
	for {
		select {
		case <-errc:
			return
		case <-events:
		}
	}
}

// identify learns the bot's own user id once, for self-message filtering.
func (t *Transport) identify(ctx context.Context) {
	t.mu.RLock()
	known := t.botUserID != ""
	t.mu.RUnlock()
	if known {
		return
	}
	resp, err := t.api.AuthTestContext(ctx)
	if err != nil {
		t.log.Warn("failed to get bot user id", slog.Any("err", err))
		return
	}
	t.mu.Lock()
	t.botUserID = resp.UserID
	t.mu.Unlock()
	t.log.Info("bot identified", slog.String("user_id", resp.UserID), slog.String("team", resp.Team))
}

// handleEvent dispatches one Socket Mode event. It reports true when the
// session should end.
func (t *Transport) handleEvent(ctx context.Context, evt socketmode.Event, ack func(socketmode.Request)) bool {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		t.log.Info("connecting to socket mode")

	case socketmode.EventTypeConnected:
		t.log.Info("connected to socket mode")
		t.mu.RLock()
		onOpen := t.onOpen
		t.mu.RUnlock()
		if onOpen != nil {
			onOpen()
		}

	case socketmode.EventTypeConnectionError, socketmode.EventTypeIncomingError, socketmode.EventTypeDisconnect:
		t.log.Warn("socket mode session lost", slog.String("event", string(evt.Type)), slog.Any("data", evt.Data))
		return true

	case socketmode.EventTypeInvalidAuth:
		t.log.Error("slack rejected the app token", slog.Any("data", evt.Data))
		return true

	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return false
		}
		if evt.Request != nil {
			ack(*evt.Request)
		}
		t.handleEventsAPI(ctx, apiEvent)
	}
	return false
}

func (t *Transport) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	t.mu.RLock()
	h, self := t.handler, t.botUserID
	t.mu.RUnlock()
	if h == nil {
		return
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if ev.User == self || ev.BotID != "" {
			return
		}
		h.HandleMention(ctx, chat.Message{Text: ev.Text, User: ev.User, Channel: ev.Channel, Timestamp: ev.TimeStamp})
	case *slackevents.MessageEvent:
		// edits, joins and other subtypes are not announcements
		if ev.SubType != "" || ev.BotID != "" || (self != "" && ev.User == self) {
			return
		}
		h.HandleAmbient(ctx, chat.Message{Text: ev.Text, User: ev.User, Channel: ev.Channel, Timestamp: ev.TimeStamp})
	case *slackevents.MemberJoinedChannelEvent:
		if self != "" && ev.User == self {
			h.HandleJoin(ctx, ev.Channel)
		}
	}
}
