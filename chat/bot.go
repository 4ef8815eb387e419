package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/d3vgru/easy-peasy-bot/ledger"
	"github.com/d3vgru/easy-peasy-bot/recap"
	"github.com/d3vgru/easy-peasy-bot/telemetry"
)

// DefaultGreeting is said when the bot joins a channel.
const DefaultGreeting = "I'm here! COME ON, DO IT NOW, KILL ME!"

// Options configures a Bot.
type Options struct {
	Canonical     string // channel that receives topic updates and reposts
	Aliases       recap.Aliases
	RepoURL       string
	DataURL       string
	Greeting      string
	NotFoundReply bool
}

// Bot wires the recap pipeline and the query responder to one transport.
type Bot struct {
	transport   Transport
	ledger      Ledger
	aliases     recap.Aliases
	canonical   string
	greeting    string
	announcer   *TopicAnnouncer
	broadcaster *Broadcaster
	responder   *Responder
}

var _ Handler = (*Bot)(nil)

// NewBot returns a Bot sending through t and persisting to l.
func NewBot(t Transport, l Ledger, opts Options) *Bot {
	return &Bot{
		transport:   t,
		ledger:      l,
		aliases:     opts.Aliases,
		canonical:   opts.Canonical,
		greeting:    opts.Greeting,
		announcer:   &TopicAnnouncer{Transport: t, RepoURL: opts.RepoURL, DataURL: opts.DataURL},
		broadcaster: &Broadcaster{Transport: t},
		responder:   &Responder{Transport: t, Ledger: l, NotFoundReply: opts.NotFoundReply},
	}
}

// HandleAmbient records, announces and reposts production-code announcements.
// Other chatter is ignored.
func (b *Bot) HandleAmbient(ctx context.Context, m Message) {
	r, ok := recap.Parse(m.Text)
	if !ok {
		return
	}
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerChat, "chat.announcement",
		telemetry.ChannelAttr(m.Channel), telemetry.CodeAttr(r.Code))
	defer span.End()
	start := time.Now()
	defer func() { telemetry.Observe(telemetry.HandleDuration, time.Since(start)) }()
	telemetry.Inc(telemetry.RecapsParsed)

	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "chat"), slog.String("code", r.Code))

	author := b.userName(ctx, m.User)
	display := b.aliases.Resolve(author)

	rec := recap.NewRecord(r, author, m.Timestamp, m.User, m.Channel)
	if id, err := b.ledger.Append(ctx, rec); err != nil {
		reason := "persistence"
		if ledger.IsAuth(err) {
			reason = "auth"
		}
		telemetry.IncVec(telemetry.RecapPersistFailed, reason)
		telemetry.RecordError(span, err)
		log.Error("failed to persist episode", slog.Any("err", err), slog.String("reason", reason), slog.Bool("transient", ledger.Transient(err)))
	} else {
		telemetry.Inc(telemetry.RecapsPersisted)
		log.Info("episode recorded", slog.String("id", id), slog.String("author", author), slog.String("channel", m.Channel))
	}

	b.announcer.Announce(ctx, b.canonical, r.Code)
	b.broadcaster.Broadcast(ctx, display, r.Line(), m.Channel, b.canonical)
}

// HandleMention answers lookup commands.
func (b *Bot) HandleMention(ctx context.Context, m Message) {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerChat, "chat.mention", telemetry.ChannelAttr(m.Channel))
	defer span.End()
	b.responder.Respond(ctx, m)
}

// HandleJoin greets a channel the bot was added to.
func (b *Bot) HandleJoin(ctx context.Context, channel string) {
	if b.greeting == "" {
		return
	}
	if err := b.transport.Send(ctx, channel, b.greeting); err != nil {
		slog.Warn("greeting failed", slog.String("channel", channel), slog.Any("err", err), slog.String("component", "chat"))
	}
}

// userName returns the poster's profile name, or the raw id when the lookup
// fails.
func (b *Bot) userName(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	name, err := b.transport.UserName(ctx, userID)
	if err != nil || name == "" {
		telemetry.LoggerWithCorr(ctx).Debug("user lookup failed; using id",
			slog.String("user", userID), slog.Any("err", err), slog.String("component", "chat"))
		return userID
	}
	return name
}
