package domain

import (
	"sync"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen      TicketStatus = "open"
	TicketStatusPublished TicketStatus = "published"
	TicketStatusClosed    TicketStatus = "closed"
)

// allowedTransitions encodes the monotonic forward-only status machine.
// Nothing leaves closed, nothing re-enters open.
var allowedTransitions = map[TicketStatus]map[TicketStatus]bool{
	TicketStatusOpen: {
		TicketStatusPublished: true,
		TicketStatusClosed:    true,
	},
	TicketStatusPublished: {
		TicketStatusClosed: true,
	},
	TicketStatusClosed: {},
}

// TranscriptMessage is one entry in a ticket's local transcript mirror.
// The channel itself stays authoritative; this cache exists so flows can
// consult recent history without a round trip.
type TranscriptMessage struct {
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Ticket is one tracked feedback conversation bound to a dedicated channel.
type Ticket struct {
	mu sync.Mutex

	ChannelID string
	CreatorID string
	GuildID   string
	CreatedAt time.Time

	status    TicketStatus
	closedAt  *time.Time
	published bool
	messages  []TranscriptMessage
}

// NewTicket constructs an open ticket.
func NewTicket(channelID, creatorID, guildID string, createdAt time.Time) *Ticket {
	return &Ticket{
		ChannelID: channelID,
		CreatorID: creatorID,
		GuildID:   guildID,
		CreatedAt: createdAt,
		status:    TicketStatusOpen,
	}
}

// Status returns the current lifecycle status.
func (t *Ticket) Status() TicketStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// ClosedAt returns the terminal timestamp, nil while the ticket is open.
func (t *Ticket) ClosedAt() *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closedAt
}

// WasPublished reports whether the ticket ever reached the published state,
// surviving the later transition to closed.
func (t *Ticket) WasPublished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.published
}

// Close transitions the ticket to closed. Idempotent once terminal: closing
// an already closed or published-then-closed ticket keeps the original
// closedAt stamp and publish evidence.
func (t *Ticket) Close() {
	t.transition(TicketStatusClosed)
}

// Publish transitions the ticket to published. A no-op unless the ticket is
// still open.
func (t *Ticket) Publish() {
	t.transition(TicketStatusPublished)
}

func (t *Ticket) transition(next TicketStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !allowedTransitions[t.status][next] {
		return
	}
	t.status = next
	if next == TicketStatusPublished {
		t.published = true
	}
	if t.closedAt == nil {
		now := time.Now()
		t.closedAt = &now
	}
}

// AddMessage appends to the transcript unconditionally. Callers filter
// bot-authored messages before calling.
func (t *Ticket) AddMessage(authorID, content string, timestamp time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, TranscriptMessage{
		AuthorID:  authorID,
		Content:   content,
		Timestamp: timestamp,
	})
}

// Transcript returns a copy of the accumulated transcript in append order.
func (t *Ticket) Transcript() []TranscriptMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscriptMessage, len(t.messages))
	copy(out, t.messages)
	return out
}
