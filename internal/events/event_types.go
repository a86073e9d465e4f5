package events

import "time"

// EventType enumerates supported audit event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketClosed    EventType = "ticket_closed"
	EventReviewPublished EventType = "review_published"
	EventSettingsUpdated EventType = "settings_updated"
	EventGuildJoined     EventType = "guild_joined"
	EventError           EventType = "error"
)

// Event represents a lifecycle event emitted by the controller and the
// presentation layer.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	GuildID   string    `json:"guild_id"`
	Details   string    `json:"details"`
	UserID    string    `json:"user_id,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	Target    string    `json:"target,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
