package changelog

import (
	"context"
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// SlackSink posts digests to a Slack channel via slack-go/slack,
// grounded in steveyegge-beads/internal/slackbot/bot.go's PostMessage
// usage. CTT posts one-off messages, not Socket Mode, so only the REST
// client is needed.
type SlackSink struct {
	client  *slack.Client
	channel string
}

// NewSlackSink builds a SlackSink posting to channel using token.
func NewSlackSink(token, channel string) *SlackSink {
	return &SlackSink{client: slack.New(token), channel: channel}
}

// Post sends message to the configured channel.
func (s *SlackSink) Post(_ context.Context, message string) error {
	_, _, err := s.client.PostMessage(s.channel, slack.MsgOptionText(message, false))
	if err != nil {
		return fmt.Errorf("slack post to #%s: %w", s.channel, err)
	}
	return nil
}

var _ ChatSink = (*SlackSink)(nil)

// LogSink writes digests to the standard logger. Grounded in
// original_source/src/changelog.rs's `#[cfg(not(feature = "slack"))]`
// fallback arm, which logs each update instead of posting to chat when
// no chat backend is configured.
type LogSink struct{}

// Post logs message at info level.
func (LogSink) Post(_ context.Context, message string) error {
	log.Print(message)
	return nil
}

var _ ChatSink = LogSink{}
