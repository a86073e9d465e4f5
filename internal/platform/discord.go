package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordChannelManager implements ChannelManager over a discordgo session.
type DiscordChannelManager struct {
	session *discordgo.Session
}

// NewDiscordChannelManager wraps an opened session.
func NewDiscordChannelManager(session *discordgo.Session) *DiscordChannelManager {
	return &DiscordChannelManager{session: session}
}

// CreateChannel creates a guild text channel with the given overwrites.
func (m *DiscordChannelManager) CreateChannel(ctx context.Context, input CreateChannelInput) (*Channel, error) {
	data := discordgo.GuildChannelCreateData{
		Name:                 input.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                input.Topic,
		ParentID:             input.ParentID,
		PermissionOverwrites: toDiscordOverwrites(input.Overwrites),
	}
	created, err := m.session.GuildChannelCreateComplex(input.GuildID, data, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	return fromDiscordChannel(created), nil
}

// EditChannel applies a partial edit (rename, recategorize).
func (m *DiscordChannelManager) EditChannel(ctx context.Context, channelID string, edit ChannelEdit) error {
	payload := &discordgo.ChannelEdit{}
	if edit.Name != "" {
		payload.Name = edit.Name
	}
	if edit.ParentID != "" {
		payload.ParentID = edit.ParentID
	}
	_, err := m.session.ChannelEditComplex(channelID, payload, discordgo.WithContext(ctx))
	return err
}

// SetPermission applies a single permission overwrite on a channel.
func (m *DiscordChannelManager) SetPermission(ctx context.Context, channelID string, overwrite PermissionOverwrite) error {
	target := discordgo.PermissionOverwriteTypeMember
	if overwrite.TargetType == OverwriteRole {
		target = discordgo.PermissionOverwriteTypeRole
	}
	allow, deny := overwriteBits(overwrite)
	return m.session.ChannelPermissionSet(channelID, overwrite.TargetID, target, allow, deny, discordgo.WithContext(ctx))
}

// DeleteChannel deletes the channel.
func (m *DiscordChannelManager) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := m.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return err
}

// Channel fetches channel metadata including its permission overwrites.
func (m *DiscordChannelManager) Channel(ctx context.Context, channelID string) (*Channel, error) {
	ch, err := m.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return fromDiscordChannel(ch), nil
}

// FetchHistory pages through channel messages. The platform serves newest
// first in pages of at most 100; pagination and reordering happen here so
// callers can ask for the most recent `limit` messages oldest first.
func (m *DiscordChannelManager) FetchHistory(ctx context.Context, channelID string, limit int, oldestFirst bool) ([]Message, error) {
	var collected []Message
	beforeID := ""
	for len(collected) < limit {
		page := limit - len(collected)
		if page > 100 {
			page = 100
		}
		batch, err := m.session.ChannelMessages(channelID, page, beforeID, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("fetch history: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, msg := range batch {
			collected = append(collected, fromDiscordMessage(msg))
		}
		beforeID = batch[len(batch)-1].ID
	}
	if oldestFirst {
		for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
			collected[i], collected[j] = collected[j], collected[i]
		}
	}
	return collected, nil
}

// SendMessage posts content, an optional embed, and optional buttons.
func (m *DiscordChannelManager) SendMessage(ctx context.Context, channelID string, out Outgoing) error {
	send := &discordgo.MessageSend{Content: out.Content}
	if out.Embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{toDiscordEmbed(out.Embed)}
	}
	if len(out.Components) > 0 {
		row := discordgo.ActionsRow{}
		for _, btn := range out.Components {
			component := discordgo.Button{
				CustomID: btn.CustomID,
				Label:    btn.Label,
				Style:    discordgo.ButtonStyle(btn.Style),
			}
			if btn.Emoji != "" {
				component.Emoji = &discordgo.ComponentEmoji{Name: btn.Emoji}
			}
			row.Components = append(row.Components, component)
		}
		send.Components = []discordgo.MessageComponent{row}
	}
	_, err := m.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	return err
}

// RoleIDByName resolves a guild role by name, empty when absent.
func (m *DiscordChannelManager) RoleIDByName(ctx context.Context, guildID, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	roles, err := m.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	for _, role := range roles {
		if role.Name == name {
			return role.ID, nil
		}
	}
	return "", nil
}

// MemberDisplayName resolves a member's nick, falling back to the username.
func (m *DiscordChannelManager) MemberDisplayName(ctx context.Context, guildID, userID string) (string, error) {
	member, err := m.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	if member.Nick != "" {
		return member.Nick, nil
	}
	if member.User != nil {
		return member.User.Username, nil
	}
	return "", nil
}

// BotUserID returns the session's own user ID.
func (m *DiscordChannelManager) BotUserID() string {
	if m.session.State != nil && m.session.State.User != nil {
		return m.session.State.User.ID
	}
	return ""
}

// IsChannelGone reports whether err is the platform's unknown-channel error.
func (m *DiscordChannelManager) IsChannelGone(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code == discordgo.ErrCodeUnknownChannel
	}
	return false
}

func fromDiscordChannel(ch *discordgo.Channel) *Channel {
	out := &Channel{
		ID:       ch.ID,
		GuildID:  ch.GuildID,
		Name:     ch.Name,
		ParentID: ch.ParentID,
	}
	for _, ow := range ch.PermissionOverwrites {
		out.Overwrites = append(out.Overwrites, fromDiscordOverwrite(ow))
	}
	return out
}

func fromDiscordMessage(msg *discordgo.Message) Message {
	out := Message{
		ID:        msg.ID,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
	if msg.Author != nil {
		out.AuthorID = msg.Author.ID
		out.AuthorBot = msg.Author.Bot
	}
	return out
}

func fromDiscordOverwrite(ow *discordgo.PermissionOverwrite) PermissionOverwrite {
	target := OverwriteMember
	if ow.Type == discordgo.PermissionOverwriteTypeRole {
		target = OverwriteRole
	}
	out := PermissionOverwrite{TargetID: ow.ID, TargetType: target}
	out.ViewChannel = bitState(ow.Allow, ow.Deny, discordgo.PermissionViewChannel)
	out.SendMessages = bitState(ow.Allow, ow.Deny, discordgo.PermissionSendMessages)
	out.AttachFiles = bitState(ow.Allow, ow.Deny, discordgo.PermissionAttachFiles)
	out.ManageAccess = bitState(ow.Allow, ow.Deny, discordgo.PermissionManageMessages|discordgo.PermissionManageChannels)
	return out
}

func toDiscordOverwrites(overwrites []PermissionOverwrite) []*discordgo.PermissionOverwrite {
	out := make([]*discordgo.PermissionOverwrite, 0, len(overwrites))
	for _, ow := range overwrites {
		target := discordgo.PermissionOverwriteTypeMember
		if ow.TargetType == OverwriteRole {
			target = discordgo.PermissionOverwriteTypeRole
		}
		allow, deny := overwriteBits(ow)
		out = append(out, &discordgo.PermissionOverwrite{
			ID:    ow.TargetID,
			Type:  target,
			Allow: allow,
			Deny:  deny,
		})
	}
	return out
}

func overwriteBits(ow PermissionOverwrite) (allow, deny int64) {
	apply := func(state *bool, bits int64) {
		if state == nil {
			return
		}
		if *state {
			allow |= bits
		} else {
			deny |= bits
		}
	}
	apply(ow.ViewChannel, discordgo.PermissionViewChannel|discordgo.PermissionReadMessageHistory)
	apply(ow.SendMessages, discordgo.PermissionSendMessages)
	apply(ow.AttachFiles, discordgo.PermissionAttachFiles)
	apply(ow.ManageAccess, discordgo.PermissionManageMessages|discordgo.PermissionManageChannels)
	return allow, deny
}

func bitState(allow, deny, bits int64) *bool {
	switch {
	case allow&bits == bits:
		v := true
		return &v
	case deny&bits == bits:
		v := false
		return &v
	default:
		return nil
	}
}

func toDiscordEmbed(embed *Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       embed.Title,
		Description: embed.Description,
		Color:       embed.Color,
	}
	for _, field := range embed.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   field.Name,
			Value:  field.Value,
			Inline: field.Inline,
		})
	}
	if embed.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: embed.Footer}
	}
	if embed.AuthorName != "" {
		out.Author = &discordgo.MessageEmbedAuthor{Name: embed.AuthorName, IconURL: embed.AuthorIcon}
	}
	if !embed.Timestamp.IsZero() {
		out.Timestamp = embed.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}
