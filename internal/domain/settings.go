package domain

// GuildSettings is the per-guild configuration record. Identifier fields hold
// platform snowflakes as strings; empty means not configured.
type GuildSettings struct {
	TicketCategoryID string `json:"ticket_category_id"`
	ClosedCategoryID string `json:"closed_category_id"`
	LogChannelID     string `json:"log_channel_id"`
	PublishChannelID string `json:"publish_channel_id"`
	AdminRoleName    string `json:"admin_role_name"`

	EmbedColor     string `json:"embed_color"`
	TicketTitle    string `json:"ticket_title"`
	TicketSubtitle string `json:"ticket_subtitle"`
	ButtonLabel    string `json:"button_label"`
	TicketMessage  string `json:"ticket_message"`
	WelcomeMessage string `json:"welcome_message"`
}

// GuildSettingsPatch is a partial update; nil fields are left untouched.
type GuildSettingsPatch struct {
	TicketCategoryID *string
	ClosedCategoryID *string
	LogChannelID     *string
	PublishChannelID *string
	AdminRoleName    *string

	EmbedColor     *string
	TicketTitle    *string
	TicketSubtitle *string
	ButtonLabel    *string
	TicketMessage  *string
	WelcomeMessage *string
}

// DefaultGuildSettings returns the global template applied on first access.
func DefaultGuildSettings() GuildSettings {
	return GuildSettings{
		AdminRoleName:  "Admin",
		EmbedColor:     "#3498db",
		TicketTitle:    "Leave your feedback",
		TicketSubtitle: "You help us get better",
		ButtonLabel:    "Leave feedback",
		TicketMessage:  "Please write your feedback in this channel.\n\nThe team will review it shortly.",
		WelcomeMessage: "welcome to your feedback ticket! Describe your issue or leave a review.",
	}
}

// Apply merges non-nil patch fields into the settings record.
func (s *GuildSettings) Apply(patch GuildSettingsPatch) {
	if patch.TicketCategoryID != nil {
		s.TicketCategoryID = *patch.TicketCategoryID
	}
	if patch.ClosedCategoryID != nil {
		s.ClosedCategoryID = *patch.ClosedCategoryID
	}
	if patch.LogChannelID != nil {
		s.LogChannelID = *patch.LogChannelID
	}
	if patch.PublishChannelID != nil {
		s.PublishChannelID = *patch.PublishChannelID
	}
	if patch.AdminRoleName != nil {
		s.AdminRoleName = *patch.AdminRoleName
	}
	if patch.EmbedColor != nil {
		s.EmbedColor = *patch.EmbedColor
	}
	if patch.TicketTitle != nil {
		s.TicketTitle = *patch.TicketTitle
	}
	if patch.TicketSubtitle != nil {
		s.TicketSubtitle = *patch.TicketSubtitle
	}
	if patch.ButtonLabel != nil {
		s.ButtonLabel = *patch.ButtonLabel
	}
	if patch.TicketMessage != nil {
		s.TicketMessage = *patch.TicketMessage
	}
	if patch.WelcomeMessage != nil {
		s.WelcomeMessage = *patch.WelcomeMessage
	}
}
