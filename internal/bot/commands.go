package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/service"
)

// Component custom IDs owned by the presentation layer.
const (
	componentSetupMain      = "setup_main_settings"
	componentSetupInterface = "setup_interface_settings"
	componentSetupShow      = "setup_show_settings"
	componentSetupPanel     = "setup_create_panel"

	modalMainSettings      = "modal_main_settings"
	modalInterfaceSettings = "modal_interface_settings"
)

var adminOnly = int64(discordgo.PermissionAdministrator)

var applicationCommands = []*discordgo.ApplicationCommand{
	{
		Name:                     "setup",
		Description:              "Configure the ticket system",
		DefaultMemberPermissions: &adminOnly,
	},
	{
		Name:                     "ticket-panel",
		Description:              "Post the ticket creation panel",
		DefaultMemberPermissions: &adminOnly,
	},
}

func (b *Bot) registerCommands() error {
	appID := b.applicationID()
	for _, command := range applicationCommands {
		created, err := b.session.ApplicationCommandCreate(appID, "", command)
		if err != nil {
			return fmt.Errorf("register command %s: %w", command.Name, err)
		}
		b.commandIDs = append(b.commandIDs, created.ID)
	}
	b.logger.Info("application commands registered", zap.Int("count", len(applicationCommands)))
	return nil
}

// handleSetup replies with the settings menu: two modal launchers, a settings
// dump, and a panel shortcut.
func (b *Bot) handleSetup(s *discordgo.Session, i *discordgo.InteractionCreate) {
	embed := &discordgo.MessageEmbed{
		Title: "⚙️ Ticket system setup",
		Description: "Use the buttons below to configure the system.\n\n" +
			"**Required settings:**\n" +
			"1. Main settings (categories, channels, role)\n" +
			"2. Interface settings (texts, colors)\n" +
			"3. The ticket panel\n\n" +
			"**How to get an ID:**\n" +
			"1. Enable developer mode (Settings → Advanced)\n" +
			"2. Right-click an element → Copy ID",
		Color: 0x3498db,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Configure the main settings first, then the interface",
		},
	}
	buttons := []discordgo.MessageComponent{
		discordgo.Button{CustomID: componentSetupMain, Label: "Main settings", Emoji: &discordgo.ComponentEmoji{Name: "⚙️"}, Style: discordgo.PrimaryButton},
		discordgo.Button{CustomID: componentSetupInterface, Label: "Interface", Emoji: &discordgo.ComponentEmoji{Name: "🎨"}, Style: discordgo.SecondaryButton},
		discordgo.Button{CustomID: componentSetupShow, Label: "Show settings", Emoji: &discordgo.ComponentEmoji{Name: "📊"}, Style: discordgo.SuccessButton},
		discordgo.Button{CustomID: componentSetupPanel, Label: "Create panel", Emoji: &discordgo.ComponentEmoji{Name: "📝"}, Style: discordgo.PrimaryButton},
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}},
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn("respond to /setup", zap.Error(err))
	}
}

// handleTicketPanel posts the public panel with the create-ticket button.
func (b *Bot) handleTicketPanel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	record, err := b.settings.Get(context.Background(), i.GuildID)
	if err != nil {
		b.respondError(s, i, "could not load the guild settings")
		return
	}
	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{panelEmbed(record)},
			Components: []discordgo.MessageComponent{panelComponents(record)},
		},
	})
	if err != nil {
		b.logger.Warn("respond to /ticket-panel", zap.Error(err))
	}
}

func panelEmbed(record *domain.GuildSettings) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       record.TicketTitle,
		Description: record.TicketSubtitle,
		Color:       embedColor(record),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Press the button below to create a ticket",
		},
	}
}

func panelComponents(record *domain.GuildSettings) discordgo.MessageComponent {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{
			CustomID: service.ComponentCreateTicket,
			Label:    record.ButtonLabel,
			Emoji:    &discordgo.ComponentEmoji{Name: "📝"},
			Style:    discordgo.PrimaryButton,
		},
	}}
}
