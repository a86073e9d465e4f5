// Package bot is the presentation layer: it translates Discord gestures
// (slash commands, buttons, modals, messages) into calls against the ticket
// registry and lifecycle controller.
package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/registry"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/internal/settings"
)

// Bot wires the gateway session to the lifecycle controller.
type Bot struct {
	session    *discordgo.Session
	controller *service.Controller
	registry   *registry.Registry
	settings   settings.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger

	commandIDs []string
}

// Dependencies bundles collaborators for the bot.
type Dependencies struct {
	Session    *discordgo.Session
	Controller *service.Controller
	Registry   *registry.Registry
	Settings   settings.Store
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// New constructs the bot and registers gateway handlers.
func New(deps Dependencies) *Bot {
	b := &Bot{
		session:    deps.Session,
		controller: deps.Controller,
		registry:   deps.Registry,
		settings:   deps.Settings,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onInteractionCreate)
	b.session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent
	return b
}

// Start opens the gateway connection and registers application commands.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	if err := b.registerCommands(); err != nil {
		_ = b.session.Close()
		return err
	}
	return nil
}

// Stop unregisters commands and closes the session.
func (b *Bot) Stop() {
	appID := b.applicationID()
	for _, id := range b.commandIDs {
		if err := b.session.ApplicationCommandDelete(appID, "", id); err != nil {
			b.logger.Warn("delete application command", zap.String("command_id", id), zap.Error(err))
		}
	}
	if err := b.session.Close(); err != nil {
		b.logger.Warn("close gateway session", zap.Error(err))
	}
}

func (b *Bot) applicationID() string {
	if b.session.State != nil && b.session.State.User != nil {
		return b.session.State.User.ID
	}
	return ""
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("gateway ready",
		zap.String("user", r.User.Username),
		zap.Int("guilds", len(r.Guilds)))
	if err := s.UpdateWatchStatus(0, "tickets | /setup"); err != nil {
		b.logger.Warn("update presence", zap.Error(err))
	}
}

// onGuildCreate lazily creates settings for a newly joined guild and greets
// its system channel when one exists.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	ctx := context.Background()
	if _, err := b.settings.Get(ctx, g.ID); err != nil {
		b.logger.Warn("init guild settings", zap.String("guild_id", g.ID), zap.Error(err))
		return
	}
	if g.SystemChannelID != "" {
		embed := &discordgo.MessageEmbed{
			Title: "🎫 Ticket Bot",
			Description: "Thanks for adding the bot!\n\n" +
				"Use `/setup` to configure the ticket system\n" +
				"Use `/ticket-panel` to post the ticket panel\n\n" +
				"**Remember to configure:**\n" +
				"1. The ticket category\n" +
				"2. The log channel\n" +
				"3. The publish channel\n" +
				"4. The admin role",
			Color: 0x2ecc71,
		}
		if _, err := s.ChannelMessageSendEmbed(g.SystemChannelID, embed); err != nil {
			b.logger.Debug("send guild greeting", zap.String("guild_id", g.ID), zap.Error(err))
		}
	}
	b.emit(ctx, events.Event{
		Type:    events.EventGuildJoined,
		GuildID: g.ID,
		Details: fmt.Sprintf("Bot added to guild %s", g.Name),
		Target:  g.Name,
	})
}

// onMessageCreate is the message observation hook: every non-bot message in
// a tracked ticket channel lands in the ticket's transcript mirror.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	ticket, ok := b.registry.Get(m.ChannelID)
	if !ok {
		return
	}
	ticket.AddMessage(m.Author.ID, m.Content, m.Timestamp)
}

func (b *Bot) emit(ctx context.Context, event events.Event) {
	if b.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	_ = b.dispatcher.Publish(ctx, event)
}
