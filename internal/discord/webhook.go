package discord

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"trash2action-backend/internal/model"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Webhook posts staff alerts through a channel webhook, for deployments
// without a bot account.
type Webhook struct {
	exec  webhookExecutor
	id    string
	token string
	log   zerolog.Logger
}

// NewWebhook returns nil when rawURL is empty. A nil *Webhook is a valid
// no-op sink.
func NewWebhook(log zerolog.Logger, rawURL string) (*Webhook, error) {
	if rawURL == "" {
		return nil, nil
	}
	id, token, err := parseWebhookURL(rawURL)
	if err != nil {
		return nil, err
	}
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Webhook{
		exec:  s,
		id:    id,
		token: token,
		log:   log.With().Str("component", "discord-webhook").Logger(),
	}, nil
}

// parseWebhookURL extracts id and token from
// https://discord.com/api/webhooks/{id}/{token}.
func parseWebhookURL(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("webhook url %q has no /webhooks/{id}/{token} path", u.Redacted())
}

// Deliver posts n in the background when it is a staff alert.
func (w *Webhook) Deliver(_ context.Context, n model.Notification) {
	if w == nil || !Relays(n) {
		return
	}
	params := &discordgo.WebhookParams{
		Username: "Trash2Action",
		Embeds:   []*discordgo.MessageEmbed{notificationEmbed(n)},
	}
	go func() {
		if _, err := w.exec.WebhookExecute(w.id, w.token, false, params); err != nil {
			w.log.Warn().Err(err).Str("notification", n.ID).Msg("webhook send failed")
		}
	}()
}
