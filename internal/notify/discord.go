package notify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// webhookExecutor is the part of *discordgo.Session the notifier needs.
type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord executes a channel webhook.
type Discord struct {
	exec  webhookExecutor
	id    string
	token string
}

// NewDiscord parses a webhook URL of the form .../api/webhooks/{id}/{token}.
func NewDiscord(webhookURL string) (*Discord, error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("notify: discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 3 || parts[len(parts)-3] != "webhooks" {
		return nil, fmt.Errorf("notify: discord webhook url %q has no id/token", webhookURL)
	}
	sess, err := discordgo.New("")
	if err != nil {
		return nil, err
	}
	return &Discord{exec: sess, id: parts[len(parts)-2], token: parts[len(parts)-1]}, nil
}

func (d *Discord) Send(ctx context.Context, m Message) error {
	params := &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       m.Title,
			Description: m.Body,
			Color:       hexColor(m.Kind.color()),
		}},
	}
	// Numeric recipients are Discord user ids.
	if _, err := strconv.ParseUint(m.Recipient, 10, 64); err == nil {
		params.Content = "<@" + m.Recipient + ">"
	}
	if _, err := d.exec.WebhookExecute(d.id, d.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("notify: discord: %w", err)
	}
	return nil
}

func hexColor(hex string) int {
	v, _ := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	return int(v)
}
