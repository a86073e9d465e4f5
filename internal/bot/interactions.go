package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/pkg/util"
)

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		switch i.ApplicationCommandData().Name {
		case "setup":
			b.handleSetup(s, i)
		case "ticket-panel":
			b.handleTicketPanel(s, i)
		}
	case discordgo.InteractionMessageComponent:
		switch i.MessageComponentData().CustomID {
		case service.ComponentCreateTicket:
			b.handleCreateTicket(s, i)
		case service.ComponentPublishTicket:
			b.handlePublishTicket(s, i)
		case service.ComponentCloseTicket:
			b.handleCloseTicket(s, i)
		case componentSetupMain:
			b.showMainSettingsModal(s, i)
		case componentSetupInterface:
			b.showInterfaceSettingsModal(s, i)
		case componentSetupShow:
			b.handleShowSettings(s, i)
		case componentSetupPanel:
			b.handleTicketPanel(s, i)
		}
	case discordgo.InteractionModalSubmit:
		switch i.ModalSubmitData().CustomID {
		case modalMainSettings:
			b.handleMainSettingsSubmit(s, i)
		case modalInterfaceSettings:
			b.handleInterfaceSettingsSubmit(s, i)
		}
	}
}

func actorFromInteraction(i *discordgo.InteractionCreate) service.Actor {
	actor := service.Actor{}
	member := i.Member
	if member == nil || member.User == nil {
		return actor
	}
	actor.ID = member.User.ID
	actor.Mention = member.User.Mention()
	actor.DisplayName = member.Nick
	if actor.DisplayName == "" {
		actor.DisplayName = member.User.Username
	}
	actor.IsAdministrator = member.Permissions&discordgo.PermissionAdministrator != 0
	actor.RoleIDs = member.Roles
	return actor
}

func (b *Bot) handleCreateTicket(s *discordgo.Session, i *discordgo.InteractionCreate) {
	actor := actorFromInteraction(i)
	result, err := b.controller.OpenTicket(context.Background(), i.GuildID, actor)
	if err != nil {
		b.respondError(s, i, util.UserMessage(err))
		return
	}
	b.respondEphemeral(s, i, fmt.Sprintf("✅ Ticket created: <#%s>", result.ChannelID))
}

func (b *Bot) handlePublishTicket(s *discordgo.Session, i *discordgo.InteractionCreate) {
	action := service.ActionContext{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Actor:     actorFromInteraction(i),
	}
	if err := b.controller.PublishTicket(context.Background(), action); err != nil {
		b.respondError(s, i, util.UserMessage(err))
		return
	}
	b.respondEphemeral(s, i, "✅ Review published")
}

func (b *Bot) handleCloseTicket(s *discordgo.Session, i *discordgo.InteractionCreate) {
	action := service.ActionContext{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Actor:     actorFromInteraction(i),
	}
	if err := b.controller.CloseTicket(context.Background(), action); err != nil {
		b.respondError(s, i, util.UserMessage(err))
		return
	}
	b.respondEphemeral(s, i, "🔒 Closing the ticket")
}

func (b *Bot) showMainSettingsModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	record, err := b.settings.Get(context.Background(), i.GuildID)
	if err != nil {
		b.respondError(s, i, "could not load the guild settings")
		return
	}
	rows := []discordgo.MessageComponent{
		textInputRow("ticket_category_id", "Ticket category ID", record.TicketCategoryID, false),
		textInputRow("closed_category_id", "Closed ticket category ID", record.ClosedCategoryID, false),
		textInputRow("log_channel_id", "Log channel ID", record.LogChannelID, false),
		textInputRow("publish_channel_id", "Publish channel ID", record.PublishChannelID, false),
		textInputRow("admin_role_name", "Admin role name", record.AdminRoleName, false),
	}
	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   modalMainSettings,
			Title:      "Main settings",
			Components: rows,
		},
	})
	if err != nil {
		b.logger.Warn("show main settings modal", zap.Error(err))
	}
}

func (b *Bot) showInterfaceSettingsModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	record, err := b.settings.Get(context.Background(), i.GuildID)
	if err != nil {
		b.respondError(s, i, "could not load the guild settings")
		return
	}
	rows := []discordgo.MessageComponent{
		textInputRow("ticket_title", "Panel title", record.TicketTitle, false),
		textInputRow("ticket_subtitle", "Panel subtitle", record.TicketSubtitle, false),
		textInputRow("button_label", "Button label", record.ButtonLabel, false),
		textInputRow("embed_color", "Embed color (#rrggbb)", record.EmbedColor, false),
		textInputRow("welcome_message", "Welcome message", record.WelcomeMessage, false),
	}
	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   modalInterfaceSettings,
			Title:      "Interface settings",
			Components: rows,
		},
	})
	if err != nil {
		b.logger.Warn("show interface settings modal", zap.Error(err))
	}
}

func (b *Bot) handleMainSettingsSubmit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	values := modalValues(i.ModalSubmitData())
	patch := domain.GuildSettingsPatch{
		TicketCategoryID: values.ptr("ticket_category_id"),
		ClosedCategoryID: values.ptr("closed_category_id"),
		LogChannelID:     values.ptr("log_channel_id"),
		PublishChannelID: values.ptr("publish_channel_id"),
		AdminRoleName:    values.ptr("admin_role_name"),
	}
	b.applySettingsPatch(s, i, patch, "Main settings updated")
}

func (b *Bot) handleInterfaceSettingsSubmit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	values := modalValues(i.ModalSubmitData())
	patch := domain.GuildSettingsPatch{
		TicketTitle:    values.ptr("ticket_title"),
		TicketSubtitle: values.ptr("ticket_subtitle"),
		ButtonLabel:    values.ptr("button_label"),
		EmbedColor:     values.ptr("embed_color"),
		WelcomeMessage: values.ptr("welcome_message"),
	}
	b.applySettingsPatch(s, i, patch, "Interface settings updated")
}

func (b *Bot) applySettingsPatch(s *discordgo.Session, i *discordgo.InteractionCreate, patch domain.GuildSettingsPatch, details string) {
	ctx := context.Background()
	if _, err := b.settings.Update(ctx, i.GuildID, patch); err != nil {
		b.respondError(s, i, "could not save the settings")
		return
	}
	actor := actorFromInteraction(i)
	b.emit(ctx, eventSettingsUpdated(i.GuildID, actor.ID, details))
	b.respondEphemeral(s, i, "✅ "+details)
}

func (b *Bot) handleShowSettings(s *discordgo.Session, i *discordgo.InteractionCreate) {
	record, err := b.settings.Get(context.Background(), i.GuildID)
	if err != nil {
		b.respondError(s, i, "could not load the guild settings")
		return
	}
	embed := &discordgo.MessageEmbed{
		Title: "⚙️ Current settings",
		Color: embedColor(record),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "🔧 Main",
				Value: fmt.Sprintf("**Ticket category:** %s\n**Closed category:** %s\n**Log channel:** %s\n**Publish channel:** %s\n**Admin role:** %s",
					formatChannel(record.TicketCategoryID),
					formatChannel(record.ClosedCategoryID),
					formatChannel(record.LogChannelID),
					formatChannel(record.PublishChannelID),
					record.AdminRoleName),
			},
			{
				Name: "🎨 Interface",
				Value: fmt.Sprintf("**Title:** %s\n**Subtitle:** %s\n**Button label:** %s\n**Color:** %s",
					record.TicketTitle,
					record.TicketSubtitle,
					record.ButtonLabel,
					record.EmbedColor),
			},
		},
	}
	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn("show settings", zap.Error(err))
	}
}

func (b *Bot) respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn("respond to interaction", zap.Error(err))
	}
}

func (b *Bot) respondError(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	b.respondEphemeral(s, i, "❌ "+message)
}

type modalForm map[string]string

func modalValues(data discordgo.ModalSubmitInteractionData) modalForm {
	values := modalForm{}
	for _, component := range data.Components {
		row, ok := component.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if input, ok := inner.(*discordgo.TextInput); ok {
				values[input.CustomID] = strings.TrimSpace(input.Value)
			}
		}
	}
	return values
}

// ptr returns the submitted value as a patch field; empty submissions still
// apply, clearing the setting.
func (f modalForm) ptr(key string) *string {
	value, ok := f[key]
	if !ok {
		return nil
	}
	return &value
}

func textInputRow(customID, label, value string, required bool) discordgo.MessageComponent {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.TextInput{
			CustomID:  customID,
			Label:     label,
			Value:     value,
			Style:     discordgo.TextInputShort,
			Required:  required,
			MaxLength: 200,
		},
	}}
}

func eventSettingsUpdated(guildID, userID, details string) events.Event {
	return events.Event{
		Type:    events.EventSettingsUpdated,
		GuildID: guildID,
		UserID:  userID,
		Details: details,
	}
}

func formatChannel(channelID string) string {
	if channelID == "" {
		return "not configured"
	}
	return "<#" + channelID + ">"
}

func embedColor(record *domain.GuildSettings) int {
	value := strings.TrimPrefix(strings.TrimSpace(record.EmbedColor), "#")
	parsed, err := strconv.ParseInt(value, 16, 32)
	if err != nil {
		return 0x3498db
	}
	return int(parsed)
}
