package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/registry"
)

// AdminHandler exposes registry state to operators.
type AdminHandler struct {
	registry *registry.Registry
	metrics  *observability.Metrics
}

// NewAdminHandler constructs handler.
func NewAdminHandler(reg *registry.Registry, metrics *observability.Metrics) *AdminHandler {
	return &AdminHandler{registry: reg, metrics: metrics}
}

// ticketSummary is the wire shape for one tracked ticket.
type ticketSummary struct {
	ChannelID string     `json:"channel_id"`
	GuildID   string     `json:"guild_id"`
	CreatorID string     `json:"creator_id"`
	Status    string     `json:"status"`
	Published bool       `json:"published"`
	Messages  int        `json:"messages"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Stats GET /admin/stats.
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	requests, errors := h.metrics.Snapshot()
	return c.JSON(fiber.Map{"data": fiber.Map{
		"tickets":  h.registry.Stats(),
		"requests": requests,
		"errors":   errors,
	}})
}

// Tickets GET /admin/tickets.
func (h *AdminHandler) Tickets(c *fiber.Ctx) error {
	snapshot := h.registry.Snapshot()
	items := make([]ticketSummary, 0, len(snapshot))
	for _, ticket := range snapshot {
		items = append(items, summarize(ticket))
	}
	return c.JSON(fiber.Map{"data": items})
}

func summarize(ticket *domain.Ticket) ticketSummary {
	return ticketSummary{
		ChannelID: ticket.ChannelID,
		GuildID:   ticket.GuildID,
		CreatorID: ticket.CreatorID,
		Status:    string(ticket.Status()),
		Published: ticket.WasPublished(),
		Messages:  len(ticket.Transcript()),
		CreatedAt: ticket.CreatedAt,
		ClosedAt:  ticket.ClosedAt(),
	}
}
