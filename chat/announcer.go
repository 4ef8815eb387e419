package chat

import (
	"context"
	"log/slog"

	"github.com/d3vgru/easy-peasy-bot/telemetry"
)

// TopicAnnouncer keeps a channel topic pointing at the latest production code.
type TopicAnnouncer struct {
	Transport Transport
	RepoURL   string
	DataURL   string
}

// Topic renders the topic text for code.
func (a *TopicAnnouncer) Topic(code string) string {
	return "Latest: " + code + " / Code: " + a.RepoURL + " / Data: " + a.DataURL
}

// Announce sets channel's topic for code. Failures are logged and counted.
func (a *TopicAnnouncer) Announce(ctx context.Context, channel, code string) {
	if err := a.Transport.SetTopic(ctx, channel, a.Topic(code)); err != nil {
		telemetry.IncVec(telemetry.TopicUpdates, "error")
		telemetry.LoggerWithCorr(ctx).Warn("topic update failed",
			slog.String("channel", channel),
			slog.String("code", code),
			slog.Any("err", err),
			slog.String("component", "chat_topic"))
		return
	}
	telemetry.IncVec(telemetry.TopicUpdates, "ok")
}
