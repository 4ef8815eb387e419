// Package chat is the transport-independent recap bot.
//
// A Bot receives messages from a transport adapter through the Handler
// interface:
//   - HandleAmbient: channel chatter. Production-code announcements
//     ("S01E05: synopsis") are persisted to the ledger, announced in the
//     canonical channel's topic and reposted into the canonical channel.
//   - HandleMention: direct mentions. "replay <code>" and "season <n>" are
//     answered from the ledger in the originating channel.
//   - HandleJoin: the bot joined a channel and says hello.
//
// Each step after parsing fails independently: a failed write does not stop
// the topic update or the repost, and nothing is reported back to the poster.
package chat
