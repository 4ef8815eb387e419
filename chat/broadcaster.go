package chat

import (
	"context"
	"log/slog"

	"github.com/d3vgru/easy-peasy-bot/telemetry"
)

// Broadcaster reposts recaps from other channels into the canonical one.
type Broadcaster struct {
	Transport Transport
}

// Broadcast sends "[displayName]: recapLine" to canonical unless the recap was
// posted there already.
func (b *Broadcaster) Broadcast(ctx context.Context, displayName, recapLine, source, canonical string) {
	if source == canonical {
		telemetry.IncVec(telemetry.Broadcasts, "suppressed")
		return
	}
	if err := b.Transport.Send(ctx, canonical, "["+displayName+"]: "+recapLine); err != nil {
		telemetry.IncVec(telemetry.Broadcasts, "error")
		telemetry.LoggerWithCorr(ctx).Warn("broadcast failed",
			slog.String("channel", canonical),
			slog.Any("err", err),
			slog.String("component", "chat_broadcast"))
		return
	}
	telemetry.IncVec(telemetry.Broadcasts, "ok")
}
