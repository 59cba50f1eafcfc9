package discord

import (
	"context"
	"fmt"
	"time"

	"trash2action-backend/internal/model"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// embedSender is the slice of *discordgo.Session the relay needs.
type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Relay mirrors staff-facing notifications to a Discord channel. It is a
// service.NotificationSink; delivery is fire-and-forget.
type Relay struct {
	session   *discordgo.Session
	sender    embedSender
	channelID string
	log       zerolog.Logger
}

// NewRelay returns nil when no bot token is configured. A nil *Relay is a
// valid no-op sink.
func NewRelay(log zerolog.Logger, token, channelID string) (*Relay, error) {
	log = log.With().Str("component", "discord").Logger()
	if token == "" {
		log.Info().Msg("no bot token configured, relay disabled")
		return nil, nil
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages

	return &Relay{session: s, sender: s, channelID: channelID, log: log}, nil
}

// Start opens the Discord gateway connection.
func (r *Relay) Start() error {
	if r == nil || r.session == nil {
		return nil
	}
	if err := r.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	r.log.Info().Str("channel", r.channelID).Msg("relay connected")
	return nil
}

// Stop closes the Discord gateway connection.
func (r *Relay) Stop() {
	if r == nil || r.session == nil {
		return
	}
	_ = r.session.Close()
	r.log.Info().Msg("relay disconnected")
}

// Relays reports whether n is posted to the staff channel.
func Relays(n model.Notification) bool {
	if n.RecipientRole != model.RoleResponder {
		return false
	}
	return n.Type == model.NotificationAdminRequest || n.Type == model.NotificationReport
}

// Deliver posts n in the background when it is a staff alert.
func (r *Relay) Deliver(_ context.Context, n model.Notification) {
	if r == nil || r.sender == nil || !Relays(n) {
		return
	}
	embed := notificationEmbed(n)
	go func() {
		if _, err := r.sender.ChannelMessageSendEmbed(r.channelID, embed); err != nil {
			r.log.Warn().Err(err).Str("notification", n.ID).Msg("relay send failed")
		}
	}()
}

func notificationEmbed(n model.Notification) *discordgo.MessageEmbed {
	color := 0x3498DB // Blue
	icon := "📝"
	if n.Type == model.NotificationReport {
		color = 0xE67E22 // Orange
		icon = "🗑️"
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Type", Value: string(n.Type), Inline: true},
	}
	if n.RelatedID != "" {
		related := n.RelatedID
		if n.RelatedType != "" {
			related = fmt.Sprintf("%s %s", n.RelatedType, n.RelatedID)
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Related", Value: related, Inline: true})
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s %s", icon, n.Title),
		Description: n.Message,
		Color:       color,
		Fields:      fields,
		Timestamp:   n.CreatedAt.UTC().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "Trash2Action staff alerts"},
	}
}
