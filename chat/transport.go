package chat

import (
	"context"
	"iter"

	"github.com/d3vgru/easy-peasy-bot/recap"
)

// Message is one inbound chat message as delivered by a transport adapter.
type Message struct {
	Text      string
	User      string // transport user identifier
	Channel   string
	Timestamp string // opaque source timestamp
}

// Transport is the outbound side of a chat connection.
type Transport interface {
	Send(ctx context.Context, channel, text string) error
	SetTopic(ctx context.Context, channel, topic string) error
	// UserName resolves a user identifier to the account name shown in profiles.
	UserName(ctx context.Context, userID string) (string, error)
}

// Handler is implemented by Bot and called by transport adapters, one message
// at a time.
type Handler interface {
	HandleAmbient(ctx context.Context, m Message)
	HandleMention(ctx context.Context, m Message)
	HandleJoin(ctx context.Context, channel string)
}

// Ledger is the subset of *ledger.Ledger the bot needs.
type Ledger interface {
	Append(ctx context.Context, rec recap.Record) (string, error)
	FindByProductionCode(ctx context.Context, code string) (recap.Record, bool, error)
	FindBySeason(ctx context.Context, season int) iter.Seq2[recap.Record, error]
}
