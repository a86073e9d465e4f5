// Package registry holds the in-memory authoritative map of in-flight
// tickets. It is process-wide, initialized once, and never torn down mid-run;
// live ticket state deliberately does not survive restarts.
package registry

import (
	"sync"
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/pkg/util"
)

// Error codes surfaced by the registry.
const (
	CodeChannelTaken     = "TICKET_CHANNEL_TAKEN"
	CodeActiveTicket     = "TICKET_ACTIVE_EXISTS"
	CodeCreationReserved = "TICKET_CREATION_IN_FLIGHT"
)

// Registry is the single source of truth for in-flight ticket state, keyed
// by channel ID.
type Registry struct {
	mu           sync.Mutex
	tickets      map[string]*domain.Ticket
	reservations map[userKey]struct{}
}

type userKey struct {
	creatorID string
	guildID   string
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		tickets:      make(map[string]*domain.Ticket),
		reservations: make(map[userKey]struct{}),
	}
}

// Reserve claims the (creator, guild) pair for a creation sequence. It fails
// if the user already has an open ticket or another creation for the same
// pair is in flight. Callers must Release once the sequence finishes,
// whether or not a ticket was registered. Holding the reservation across the
// whole check/create-channel/register sequence is what closes the
// check-then-create race: channel creation is an I/O round trip, and two
// concurrent gestures from the same user would otherwise both pass the check.
func (r *Registry) Reserve(creatorID, guildID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userHasActiveTicketLocked(creatorID, guildID) {
		return util.NewPrecondition(CodeActiveTicket, "you already have an active ticket, wait for it to be closed")
	}
	key := userKey{creatorID: creatorID, guildID: guildID}
	if _, held := r.reservations[key]; held {
		return util.NewPrecondition(CodeCreationReserved, "your ticket is already being created")
	}
	r.reservations[key] = struct{}{}
	return nil
}

// Release drops a reservation taken by Reserve.
func (r *Registry) Release(creatorID, guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reservations, userKey{creatorID: creatorID, guildID: guildID})
}

// Create registers a new open ticket. Insert-if-absent: a duplicate channel
// ID is a conflict, never a silent overwrite of a live ticket.
func (r *Registry) Create(channelID, creatorID, guildID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickets[channelID]; exists {
		return nil, util.NewDomainError(CodeChannelTaken, "a ticket already exists for this channel", 409, nil)
	}
	ticket := domain.NewTicket(channelID, creatorID, guildID, time.Now())
	r.tickets[channelID] = ticket
	return ticket, nil
}

// Get looks up a ticket by channel ID. Pure lookup, no side effects.
func (r *Registry) Get(channelID string) (*domain.Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[channelID]
	return ticket, ok
}

// Close transitions the ticket at channelID to closed. No-op if absent. The
// entry is kept until Remove confirms the backing channel is gone.
func (r *Registry) Close(channelID string) {
	r.mu.Lock()
	ticket, ok := r.tickets[channelID]
	r.mu.Unlock()
	if ok {
		ticket.Close()
	}
}

// Remove evicts a ticket once its backing channel has been deleted.
func (r *Registry) Remove(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tickets, channelID)
}

// UserHasActiveTicket scans for an open ticket owned by the user in the
// guild. Linear in tracked tickets, which stays small because closed tickets
// are evicted after channel deletion.
func (r *Registry) UserHasActiveTicket(userID, guildID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userHasActiveTicketLocked(userID, guildID)
}

func (r *Registry) userHasActiveTicketLocked(userID, guildID string) bool {
	for _, ticket := range r.tickets {
		if ticket.CreatorID == userID && ticket.GuildID == guildID && ticket.Status() == domain.TicketStatusOpen {
			return true
		}
	}
	return false
}

// Snapshot returns the currently tracked tickets in no particular order.
func (r *Registry) Snapshot() []*domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Ticket, 0, len(r.tickets))
	for _, ticket := range r.tickets {
		out = append(out, ticket)
	}
	return out
}

// Stats summarizes registry contents for the admin API.
type Stats struct {
	Tracked   int `json:"tracked"`
	Open      int `json:"open"`
	Published int `json:"published"`
	Closed    int `json:"closed"`
}

// Stats counts tracked tickets by status.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{Tracked: len(r.tickets)}
	for _, ticket := range r.tickets {
		switch ticket.Status() {
		case domain.TicketStatusOpen:
			stats.Open++
		case domain.TicketStatusPublished:
			stats.Published++
		case domain.TicketStatusClosed:
			stats.Closed++
		}
	}
	return stats
}
