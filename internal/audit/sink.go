// Package audit renders lifecycle events into the guild's configured log
// channel.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/platform"
	"github.com/spec-kit/ticket-bot/internal/settings"
)

var eventTitles = map[events.EventType]string{
	events.EventTicketCreated:   "Ticket created",
	events.EventTicketClosed:    "Ticket closed",
	events.EventReviewPublished: "Review published",
	events.EventSettingsUpdated: "Settings updated",
	events.EventGuildJoined:     "Guild joined",
	events.EventError:           "Error",
}

var eventColors = map[events.EventType]int{
	events.EventTicketCreated:   0x2ecc71,
	events.EventTicketClosed:    0xe74c3c,
	events.EventReviewPublished: 0x3498db,
	events.EventSettingsUpdated: 0x9b59b6,
	events.EventGuildJoined:     0x2ecc71,
	events.EventError:           0xe67e22,
}

const defaultColor = 0x95a5a6

// Sink subscribes to the dispatcher and posts audit embeds. Delivery is best
// effort: an unset or unresolvable log channel is a silent no-op, and send
// failures never propagate to the flow that emitted the event.
type Sink struct {
	channels platform.ChannelManager
	settings settings.Store
	logger   *zap.Logger
}

// NewSink creates the sink.
func NewSink(channels platform.ChannelManager, store settings.Store, logger *zap.Logger) *Sink {
	return &Sink{
		channels: channels,
		settings: store,
		logger:   logger,
	}
}

// RegisterHandlers subscribes to all audit-worthy events.
func (s *Sink) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	for eventType := range eventTitles {
		dispatcher.Subscribe(eventType, s.handle)
	}
}

func (s *Sink) handle(ctx context.Context, event events.Event) error {
	record, err := s.settings.Get(ctx, event.GuildID)
	if err != nil {
		s.logger.Warn("audit: load settings", zap.String("guild_id", event.GuildID), zap.Error(err))
		return nil
	}
	if record.LogChannelID == "" {
		return nil
	}

	embed := &platform.Embed{
		Title:     "📝 " + titleFor(event.Type),
		Color:     colorFor(event.Type),
		Timestamp: timestampOf(event),
	}
	if event.UserID != "" {
		embed.Fields = append(embed.Fields, platform.EmbedField{
			Name:  "👤 User",
			Value: "<@" + event.UserID + "> (" + event.UserID + ")",
		})
	}
	if event.ChannelID != "" {
		embed.Fields = append(embed.Fields, platform.EmbedField{
			Name:  "📁 Channel",
			Value: "<#" + event.ChannelID + "> (" + event.ChannelID + ")",
		})
	}
	if event.Target != "" {
		embed.Fields = append(embed.Fields, platform.EmbedField{
			Name:  "🎯 Target",
			Value: event.Target,
		})
	}
	embed.Fields = append(embed.Fields, platform.EmbedField{
		Name:  "📋 Details",
		Value: event.Details,
	})

	if err := s.channels.SendMessage(ctx, record.LogChannelID, platform.Outgoing{Embed: embed}); err != nil {
		s.logger.Warn("audit: send log message",
			zap.String("guild_id", event.GuildID),
			zap.String("log_channel_id", record.LogChannelID),
			zap.Error(err))
	}
	return nil
}

func titleFor(eventType events.EventType) string {
	if title, ok := eventTitles[eventType]; ok {
		return title
	}
	return string(eventType)
}

func colorFor(eventType events.EventType) int {
	if color, ok := eventColors[eventType]; ok {
		return color
	}
	return defaultColor
}

func timestampOf(event events.Event) time.Time {
	if event.Timestamp.IsZero() {
		return time.Now()
	}
	return event.Timestamp
}
