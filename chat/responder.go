package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/d3vgru/easy-peasy-bot/ledger"
	"github.com/d3vgru/easy-peasy-bot/recap"
	"github.com/d3vgru/easy-peasy-bot/telemetry"
)

// Responder answers direct-mention commands from the ledger.
type Responder struct {
	Transport Transport
	Ledger    Ledger
	// NotFoundReply makes empty lookups answer "no episode found for <param>"
	// instead of staying silent.
	NotFoundReply bool
}

// Respond handles one direct mention. The first token is the mention itself,
// the second the command and the third its parameter. Unknown commands,
// malformed parameters and ledger failures produce no reply.
func (r *Responder) Respond(ctx context.Context, m Message) {
	tokens := strings.Fields(m.Text)
	if len(tokens) < 2 {
		return
	}
	command := tokens[1]
	var param string
	if len(tokens) > 2 {
		param = tokens[2]
	}
	switch command {
	case "replay":
		r.replay(ctx, m.Channel, param)
	case "season":
		r.season(ctx, m.Channel, param)
	default:
		telemetry.IncVec(telemetry.Queries, "other", "ignored")
	}
}

func (r *Responder) replay(ctx context.Context, channel, code string) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "chat_query"), slog.String("command", "replay"))
	rec, found, err := r.Ledger.FindByProductionCode(ctx, code)
	if err != nil {
		telemetry.IncVec(telemetry.Queries, "replay", "error")
		log.Error("lookup failed", slog.String("code", code), slog.Any("err", err), slog.Bool("transient", ledger.Transient(err)))
		return
	}
	if !found {
		telemetry.IncVec(telemetry.Queries, "replay", "not_found")
		log.Debug("no episode", slog.String("code", code))
		r.notFound(ctx, channel, code)
		return
	}
	telemetry.IncVec(telemetry.Queries, "replay", "ok")
	r.say(ctx, channel, rec)
}

func (r *Responder) season(ctx context.Context, channel, param string) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "chat_query"), slog.String("command", "season"))
	season, ok := recap.ParseSeason(param)
	if !ok {
		telemetry.IncVec(telemetry.Queries, "season", "ignored")
		log.Debug("season is not a number", slog.String("param", param))
		return
	}
	n := 0
	for rec, err := range r.Ledger.FindBySeason(ctx, season) {
		if err != nil {
			telemetry.IncVec(telemetry.Queries, "season", "error")
			log.Error("season lookup failed", slog.Int("season", season), slog.Int("sent", n), slog.Any("err", err))
			return
		}
		r.say(ctx, channel, rec)
		n++
	}
	if n == 0 {
		telemetry.IncVec(telemetry.Queries, "season", "not_found")
		r.notFound(ctx, channel, param)
		return
	}
	telemetry.IncVec(telemetry.Queries, "season", "ok")
}

func (r *Responder) say(ctx context.Context, channel string, rec recap.Record) {
	if err := r.Transport.Send(ctx, channel, rec.Line()); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("reply failed",
			slog.String("channel", channel),
			slog.String("code", rec.ProductionCode),
			slog.Any("err", err),
			slog.String("component", "chat_query"))
	}
}

func (r *Responder) notFound(ctx context.Context, channel, param string) {
	if !r.NotFoundReply || param == "" {
		return
	}
	if err := r.Transport.Send(ctx, channel, "no episode found for "+param); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("reply failed", slog.String("channel", channel), slog.Any("err", err), slog.String("component", "chat_query"))
	}
}
