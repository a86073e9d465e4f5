// Package platform abstracts the chat-platform channel management surface.
// The lifecycle controller and audit sink depend only on the ChannelManager
// interface; the discordgo session sits behind it.
package platform

import (
	"context"
	"time"
)

// Channel describes a platform channel as far as the controller cares.
type Channel struct {
	ID         string
	GuildID    string
	Name       string
	ParentID   string
	Overwrites []PermissionOverwrite
}

// OverwriteTarget distinguishes member and role permission overwrites.
type OverwriteTarget string

const (
	OverwriteMember OverwriteTarget = "member"
	OverwriteRole   OverwriteTarget = "role"
)

// PermissionOverwrite is a per-target channel permission entry. Nil fields
// leave the permission inherited.
type PermissionOverwrite struct {
	TargetID     string
	TargetType   OverwriteTarget
	ViewChannel  *bool
	SendMessages *bool
	AttachFiles  *bool
	ManageAccess *bool
}

// Message is one fetched channel message.
type Message struct {
	ID        string
	AuthorID  string
	AuthorBot bool
	Content   string
	Timestamp time.Time
}

// Embed is a platform-neutral rich message body.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	AuthorName  string
	AuthorIcon  string
	Timestamp   time.Time
}

// EmbedField is one labeled embed entry.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Outgoing bundles the payload for SendMessage. Components carry the
// lifecycle control affordances (publish/close buttons) on ticket welcome
// messages and the create button on panels.
type Outgoing struct {
	Content    string
	Embed      *Embed
	Components []Button
}

// ButtonStyle mirrors the platform's button color palette.
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

// Button is one interactive component attached to a message.
type Button struct {
	CustomID string
	Label    string
	Emoji    string
	Style    ButtonStyle
}

// CreateChannelInput describes a ticket channel to create.
type CreateChannelInput struct {
	GuildID    string
	Name       string
	Topic      string
	ParentID   string
	Overwrites []PermissionOverwrite
}

// ChannelEdit is a partial channel update; empty fields are left untouched.
type ChannelEdit struct {
	Name     string
	ParentID string
}

// ChannelManager is the externally-owned channel management collaborator.
// Every call is an I/O round trip against the platform.
type ChannelManager interface {
	CreateChannel(ctx context.Context, input CreateChannelInput) (*Channel, error)
	EditChannel(ctx context.Context, channelID string, edit ChannelEdit) error
	SetPermission(ctx context.Context, channelID string, overwrite PermissionOverwrite) error
	DeleteChannel(ctx context.Context, channelID string) error
	Channel(ctx context.Context, channelID string) (*Channel, error)
	FetchHistory(ctx context.Context, channelID string, limit int, oldestFirst bool) ([]Message, error)
	SendMessage(ctx context.Context, channelID string, out Outgoing) error
	// RoleIDByName resolves a guild role by its configured name; empty when
	// the role does not exist (feature not configured, not an error).
	RoleIDByName(ctx context.Context, guildID, name string) (string, error)
	// MemberDisplayName resolves a guild member's display name for
	// presentation, empty when the member cannot be fetched.
	MemberDisplayName(ctx context.Context, guildID, userID string) (string, error)
	// BotUserID identifies the bot itself, exempt from permission strips.
	BotUserID() string
	// IsChannelGone reports whether err means the target channel no longer
	// exists, an expected non-fatal outcome during closing.
	IsChannelGone(err error) bool
}
