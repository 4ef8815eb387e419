// Package slackapi connects the recap bot to Slack over Socket Mode.
package slackapi

import (
	"context"

	"github.com/slack-go/slack"
)

// SlackAPI is the subset of *slack.Client the transport uses, so tests can
// substitute a fake without a live workspace.
type SlackAPI interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	SetTopicOfConversationContext(ctx context.Context, channelID, topic string) (*slack.Channel, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
}
