// Package service drives the ticket lifecycle: open, publish, close, and the
// shared closing procedure, coordinating the registry with channel-management
// side effects and audit events.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/archive"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/platform"
	"github.com/spec-kit/ticket-bot/internal/registry"
	"github.com/spec-kit/ticket-bot/internal/settings"
	"github.com/spec-kit/ticket-bot/pkg/util"
)

// Component custom IDs shared with the presentation layer.
const (
	ComponentCreateTicket  = "create_ticket_button"
	ComponentPublishTicket = "publish_ticket"
	ComponentCloseTicket   = "close_ticket"
)

const closedNamePrefix = "closed-"

// Actor identifies the user behind a gesture, with the guild-level facts the
// controller needs for authorization.
type Actor struct {
	ID              string
	DisplayName     string
	Mention         string
	IsAdministrator bool
	RoleIDs         []string
}

// ActionContext locates a gesture against an existing ticket channel.
type ActionContext struct {
	GuildID   string
	ChannelID string
	Actor     Actor
}

// OpenResult reports a successful ticket creation.
type OpenResult struct {
	Ticket    *domain.Ticket
	ChannelID string
}

// Controller is the ticket lifecycle state machine. One ticket moves through
// Open, an optional Published window, a delayed Closing phase, and terminal
// Closed; the transient phases exist so humans can read the final messages
// before the channel disappears.
type Controller struct {
	registry   *registry.Registry
	settings   settings.Store
	channels   platform.ChannelManager
	dispatcher events.Dispatcher
	scheduler  *Scheduler
	archive    archive.Store
	logger     *zap.Logger
	cfg        config.LifecycleConfig
}

// ControllerDependencies bundles collaborators for the controller.
type ControllerDependencies struct {
	Registry   *registry.Registry
	Settings   settings.Store
	Channels   platform.ChannelManager
	Dispatcher events.Dispatcher
	Scheduler  *Scheduler
	Archive    archive.Store
	Logger     *zap.Logger
}

// NewController constructs the controller.
func NewController(cfg config.LifecycleConfig, deps ControllerDependencies) *Controller {
	scheduler := deps.Scheduler
	if scheduler == nil {
		scheduler = NewScheduler()
	}
	return &Controller{
		registry:   deps.Registry,
		settings:   deps.Settings,
		channels:   deps.Channels,
		dispatcher: deps.Dispatcher,
		scheduler:  scheduler,
		archive:    deps.Archive,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

// Scheduler exposes the delayed-task scheduler, mainly for shutdown.
func (c *Controller) Scheduler() *Scheduler {
	return c.scheduler
}

// OpenTicket runs the creation flow. The (creator, guild) reservation is held
// across the whole sequence because channel creation suspends on I/O; without
// it two concurrent gestures from one user could both pass the active-ticket
// check.
func (c *Controller) OpenTicket(ctx context.Context, guildID string, actor Actor) (*OpenResult, error) {
	if err := c.registry.Reserve(actor.ID, guildID); err != nil {
		return nil, err
	}
	defer c.registry.Release(actor.ID, guildID)

	record, err := c.settings.Get(ctx, guildID)
	if err != nil {
		return nil, util.NewInternalError(err)
	}

	overwrites := []platform.PermissionOverwrite{
		{
			// The guild's @everyone role shares the guild's own ID.
			TargetID:    guildID,
			TargetType:  platform.OverwriteRole,
			ViewChannel: boolPtr(false),
		},
		{
			TargetID:     actor.ID,
			TargetType:   platform.OverwriteMember,
			ViewChannel:  boolPtr(true),
			SendMessages: boolPtr(true),
			AttachFiles:  boolPtr(true),
		},
	}

	// An unresolvable admin role means the feature is not configured; the
	// ticket is created without the overwrite.
	adminRoleID, err := c.channels.RoleIDByName(ctx, guildID, record.AdminRoleName)
	if err != nil {
		c.logger.Warn("resolve admin role", zap.String("guild_id", guildID), zap.Error(err))
	} else if adminRoleID != "" {
		overwrites = append(overwrites, platform.PermissionOverwrite{
			TargetID:     adminRoleID,
			TargetType:   platform.OverwriteRole,
			ViewChannel:  boolPtr(true),
			SendMessages: boolPtr(true),
			AttachFiles:  boolPtr(true),
			ManageAccess: boolPtr(true),
		})
	}

	channel, err := c.channels.CreateChannel(ctx, platform.CreateChannelInput{
		GuildID:    guildID,
		Name:       c.ticketChannelName(actor.DisplayName),
		Topic:      fmt.Sprintf("Feedback from %s | ID: %s", actor.DisplayName, actor.ID),
		ParentID:   record.TicketCategoryID,
		Overwrites: overwrites,
	})
	if err != nil {
		// No registry mutation on channel-creation failure: no orphaned
		// ticket record.
		return nil, util.NewDomainError("TICKET_CHANNEL_CREATE_FAILED", "could not create the ticket channel", 502, nil)
	}

	ticket, err := c.registry.Create(channel.ID, actor.ID, guildID)
	if err != nil {
		// Platform channel IDs are unique, so a registered duplicate should
		// be unreachable; fail loudly and drop the fresh channel.
		if delErr := c.channels.DeleteChannel(ctx, channel.ID); delErr != nil && !c.channels.IsChannelGone(delErr) {
			c.logger.Warn("delete orphaned ticket channel", zap.String("channel_id", channel.ID), zap.Error(delErr))
		}
		return nil, err
	}

	welcome := platform.Outgoing{
		Content: fmt.Sprintf("%s, %s", actor.Mention, record.WelcomeMessage),
		Embed: &platform.Embed{
			Title:       "📝 Feedback ticket",
			Description: record.TicketMessage,
			Color:       parseColor(record.EmbedColor),
			Fields: []platform.EmbedField{
				{Name: "👤 Author", Value: actor.Mention, Inline: true},
				{Name: "📅 Created", Value: time.Now().Format(time.RFC1123), Inline: true},
			},
			Footer: "The team will reply shortly",
		},
		Components: []platform.Button{
			{CustomID: ComponentPublishTicket, Label: "Publish", Emoji: "📢", Style: platform.ButtonSuccess},
			{CustomID: ComponentCloseTicket, Label: "Close", Emoji: "🔒", Style: platform.ButtonDanger},
		},
	}
	if err := c.channels.SendMessage(ctx, channel.ID, welcome); err != nil {
		c.logger.Warn("send welcome message", zap.String("channel_id", channel.ID), zap.Error(err))
	}

	c.emit(ctx, events.Event{
		Type:      events.EventTicketCreated,
		GuildID:   guildID,
		Details:   fmt.Sprintf("Ticket created by %s", actor.DisplayName),
		UserID:    actor.ID,
		ChannelID: channel.ID,
	})

	return &OpenResult{Ticket: ticket, ChannelID: channel.ID}, nil
}

// PublishTicket runs the publish flow: transcript scan first, destination
// resolution second, so a missing destination can never follow a partial
// publish; the status flip happens only after the destination accepted the
// composed transcript.
func (c *Controller) PublishTicket(ctx context.Context, action ActionContext) error {
	record, err := c.authorize(ctx, action)
	if err != nil {
		return err
	}

	ticket, ok := c.registry.Get(action.ChannelID)
	if !ok {
		return util.NewPrecondition("TICKET_NOT_FOUND", "no ticket is tracked for this channel")
	}
	if ticket.Status() != domain.TicketStatusOpen {
		return util.NewPrecondition("TICKET_NOT_OPEN", "this ticket is already published or closed")
	}

	history, err := c.channels.FetchHistory(ctx, action.ChannelID, c.cfg.HistoryScanLimit, true)
	if err != nil {
		return util.NewInternalError(err)
	}
	var creatorMessages []string
	for _, msg := range history {
		if msg.AuthorID == ticket.CreatorID && msg.Content != "" && !msg.AuthorBot {
			creatorMessages = append(creatorMessages, msg.Content)
		}
	}
	if len(creatorMessages) == 0 {
		return util.NewPrecondition("TICKET_TRANSCRIPT_EMPTY", "no messages found to publish")
	}

	if record.PublishChannelID == "" {
		return util.NewPrecondition("TICKET_PUBLISH_UNCONFIGURED", "no publish channel is configured")
	}
	if _, err := c.channels.Channel(ctx, record.PublishChannelID); err != nil {
		return util.NewPrecondition("TICKET_PUBLISH_UNRESOLVED", "the configured publish channel was not found")
	}

	creatorName, err := c.channels.MemberDisplayName(ctx, action.GuildID, ticket.CreatorID)
	if err != nil || creatorName == "" {
		creatorName = ticket.CreatorID
	}

	publishEmbed := &platform.Embed{
		Title:       "📢 New review",
		Description: strings.Join(creatorMessages, "\n\n"),
		Color:       parseColor(record.EmbedColor),
		AuthorName:  "Review from " + creatorName,
		Footer:      "Thank you for your feedback!",
		Timestamp:   time.Now(),
	}
	if err := c.channels.SendMessage(ctx, record.PublishChannelID, platform.Outgoing{Embed: publishEmbed}); err != nil {
		return util.NewDomainError("TICKET_PUBLISH_SEND_FAILED", "could not deliver the review to the publish channel", 502, nil)
	}

	ticket.Publish()

	notice := fmt.Sprintf("✅ Review published! The ticket will close in %d seconds...", int(c.cfg.PublishCloseDelay.Seconds()))
	if err := c.channels.SendMessage(ctx, action.ChannelID, platform.Outgoing{Content: notice}); err != nil {
		c.logger.Warn("send publish notice", zap.String("channel_id", action.ChannelID), zap.Error(err))
	}

	c.emit(ctx, events.Event{
		Type:      events.EventReviewPublished,
		GuildID:   action.GuildID,
		Details:   fmt.Sprintf("Review published to <#%s>", record.PublishChannelID),
		UserID:    action.Actor.ID,
		ChannelID: action.ChannelID,
		Target:    creatorName,
	})

	c.scheduleClose(action.GuildID, action.ChannelID, c.cfg.PublishCloseDelay)
	return nil
}

// CloseTicket runs the close flow: notify, audit, then the shared closing
// procedure after a short delay so the notice can be read.
func (c *Controller) CloseTicket(ctx context.Context, action ActionContext) error {
	if _, err := c.authorize(ctx, action); err != nil {
		return err
	}

	notice := fmt.Sprintf("🔒 The ticket will close in %d seconds...", int(c.cfg.CloseDelay.Seconds()))
	if err := c.channels.SendMessage(ctx, action.ChannelID, platform.Outgoing{Content: notice}); err != nil {
		c.logger.Warn("send close notice", zap.String("channel_id", action.ChannelID), zap.Error(err))
	}

	c.emit(ctx, events.Event{
		Type:      events.EventTicketClosed,
		GuildID:   action.GuildID,
		Details:   "Ticket closed without publication",
		UserID:    action.Actor.ID,
		ChannelID: action.ChannelID,
	})

	c.scheduleClose(action.GuildID, action.ChannelID, c.cfg.CloseDelay)
	return nil
}

// CancelPendingClose drops a scheduled closing step for a channel, used when
// another path already deleted it.
func (c *Controller) CancelPendingClose(channelID string) bool {
	return c.scheduler.Cancel(channelID)
}

func (c *Controller) scheduleClose(guildID, channelID string, delay time.Duration) {
	c.scheduler.Schedule(channelID, delay, func() {
		c.runClosingProcedure(context.Background(), guildID, channelID)
	})
}

// runClosingProcedure is shared by both flows. Duplicate invocations converge
// on the idempotent status transition, and "channel no longer exists" is an
// expected, non-fatal outcome at every step. Side-effect failures here are
// logged warnings only: the primary action already succeeded, so nothing is
// surfaced to users.
func (c *Controller) runClosingProcedure(ctx context.Context, guildID, channelID string) {
	c.registry.Close(channelID)

	record, err := c.settings.Get(ctx, guildID)
	if err != nil {
		c.logger.Warn("closing: load settings", zap.String("guild_id", guildID), zap.Error(err))
		c.deleteAndFinalize(ctx, channelID)
		return
	}

	if record.ClosedCategoryID == "" {
		c.deleteAndFinalize(ctx, channelID)
		return
	}

	channel, err := c.channels.Channel(ctx, channelID)
	if err != nil {
		if c.channels.IsChannelGone(err) {
			c.finalize(ctx, channelID)
			return
		}
		c.logger.Warn("closing: fetch channel", zap.String("channel_id", channelID), zap.Error(err))
		c.deleteAndFinalize(ctx, channelID)
		return
	}

	edit := platform.ChannelEdit{ParentID: record.ClosedCategoryID}
	if !strings.HasPrefix(channel.Name, closedNamePrefix) {
		edit.Name = closedNamePrefix + channel.Name
	}
	if err := c.channels.EditChannel(ctx, channelID, edit); err != nil {
		if c.channels.IsChannelGone(err) {
			c.finalize(ctx, channelID)
			return
		}
		c.logger.Warn("closing: move channel", zap.String("channel_id", channelID), zap.Error(err))
	}

	// Strip send permission from every individually-overwritten member
	// except the bot, keeping the channel readable during the grace window.
	botID := c.channels.BotUserID()
	for _, overwrite := range channel.Overwrites {
		if overwrite.TargetType != platform.OverwriteMember || overwrite.TargetID == botID {
			continue
		}
		overwrite.SendMessages = boolPtr(false)
		if err := c.channels.SetPermission(ctx, channelID, overwrite); err != nil {
			if c.channels.IsChannelGone(err) {
				c.finalize(ctx, channelID)
				return
			}
			c.logger.Warn("closing: strip send permission",
				zap.String("channel_id", channelID),
				zap.String("target_id", overwrite.TargetID),
				zap.Error(err))
		}
	}

	c.scheduler.Schedule(channelID, c.cfg.DeleteGraceDelay, func() {
		c.deleteAndFinalize(context.Background(), channelID)
	})
}

func (c *Controller) deleteAndFinalize(ctx context.Context, channelID string) {
	if err := c.channels.DeleteChannel(ctx, channelID); err != nil && !c.channels.IsChannelGone(err) {
		c.logger.Warn("closing: delete channel", zap.String("channel_id", channelID), zap.Error(err))
	}
	c.finalize(ctx, channelID)
}

// finalize archives the ticket once the backing channel is gone, then evicts
// it so the registry cannot grow without bound.
func (c *Controller) finalize(ctx context.Context, channelID string) {
	ticket, ok := c.registry.Get(channelID)
	if ok {
		ticket.Close()
		if c.archive != nil {
			if err := c.archive.ArchiveTicket(ctx, ticket); err != nil {
				c.logger.Warn("archive ticket", zap.String("channel_id", channelID), zap.Error(err))
			}
		}
	}
	c.registry.Remove(channelID)
}

// authorize verifies guild administrator privilege or membership in the
// configured admin role, returning the guild settings on success.
func (c *Controller) authorize(ctx context.Context, action ActionContext) (*domain.GuildSettings, error) {
	record, err := c.settings.Get(ctx, action.GuildID)
	if err != nil {
		return nil, util.NewInternalError(err)
	}
	if action.Actor.IsAdministrator {
		return record, nil
	}
	adminRoleID, err := c.channels.RoleIDByName(ctx, action.GuildID, record.AdminRoleName)
	if err != nil {
		c.logger.Warn("resolve admin role", zap.String("guild_id", action.GuildID), zap.Error(err))
	}
	if adminRoleID != "" {
		for _, roleID := range action.Actor.RoleIDs {
			if roleID == adminRoleID {
				return record, nil
			}
		}
	}
	return nil, util.NewForbidden("you do not have permission to manage tickets")
}

func (c *Controller) emit(ctx context.Context, event events.Event) {
	if c.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = c.dispatcher.Publish(ctx, event)
}

// ticketChannelName derives a deterministic channel name from the requester's
// display name, truncated to stay inside platform limits.
func (c *Controller) ticketChannelName(displayName string) string {
	name := strings.ToLower(strings.TrimSpace(displayName))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r == ' ', r == '_':
			return '-'
		default:
			return -1
		}
	}, name)
	limit := c.cfg.ChannelNameLimit
	if limit <= 0 {
		limit = 15
	}
	if runes := []rune(name); len(runes) > limit {
		name = string(runes[:limit])
	}
	name = strings.Trim(name, "-")
	if name == "" {
		name = "user"
	}
	return "ticket-" + name
}

// parseColor converts a "#rrggbb" settings value to an embed color int.
func parseColor(value string) int {
	value = strings.TrimPrefix(strings.TrimSpace(value), "#")
	parsed, err := strconv.ParseInt(value, 16, 32)
	if err != nil {
		return 0x3498db
	}
	return int(parsed)
}

func boolPtr(v bool) *bool {
	return &v
}
