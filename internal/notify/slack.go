package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// Slack posts to an incoming webhook.
type Slack struct {
	WebhookURL string
}

func (s Slack) Send(ctx context.Context, m Message) error {
	msg := &slack.WebhookMessage{
		Text: m.Title,
		Attachments: []slack.Attachment{{
			Title:    m.Title,
			Text:     m.Body,
			Color:    m.Kind.color(),
			Fallback: m.Title,
		}},
	}
	// A "#channel" recipient overrides the webhook's default channel.
	if strings.HasPrefix(m.Recipient, "#") {
		msg.Channel = m.Recipient
	} else if m.Recipient != "" {
		msg.Attachments[0].Fields = []slack.AttachmentField{{Title: "For", Value: m.Recipient, Short: true}}
	}
	if err := slack.PostWebhookContext(ctx, s.WebhookURL, msg); err != nil {
		return fmt.Errorf("notify: slack: %w", err)
	}
	return nil
}
