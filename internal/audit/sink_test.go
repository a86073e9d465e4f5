package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/platform"
	"github.com/spec-kit/ticket-bot/internal/settings"
)

func newSinkFixture(t *testing.T) (*platform.FakeChannelManager, *settings.MemoryStore, events.Dispatcher) {
	t.Helper()
	channels := platform.NewFakeChannelManager()
	store := settings.NewMemoryStore()
	dispatcher := events.NewInMemoryDispatcher()
	NewSink(channels, store, zap.NewNop()).RegisterHandlers(dispatcher)
	return channels, store, dispatcher
}

func TestSinkPostsEmbedToConfiguredLogChannel(t *testing.T) {
	channels, store, dispatcher := newSinkFixture(t)
	logID := "chan-log"
	if _, err := store.Update(context.Background(), "guild-1", domain.GuildSettingsPatch{LogChannelID: &logID}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:      events.EventTicketCreated,
		GuildID:   "guild-1",
		Details:   "Ticket created by Alice",
		UserID:    "user-1",
		ChannelID: "chan-9",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	sent := channels.SentTo(logID)
	if len(sent) != 1 {
		t.Fatalf("expected one audit message, got %d", len(sent))
	}
	embed := sent[0].Embed
	if embed == nil || !strings.Contains(embed.Title, "Ticket created") {
		t.Fatalf("unexpected audit embed: %+v", sent[0])
	}
	var details string
	for _, field := range embed.Fields {
		if strings.Contains(field.Name, "Details") {
			details = field.Value
		}
	}
	if details != "Ticket created by Alice" {
		t.Fatalf("expected details field, got %q", details)
	}
}

func TestSinkIsSilentWithoutLogChannel(t *testing.T) {
	channels, _, dispatcher := newSinkFixture(t)

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventTicketClosed,
		GuildID: "guild-1",
		Details: "Ticket closed without publication",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	for channelID := range channels.Sent {
		t.Fatalf("expected no delivery, got message in %s", channelID)
	}
}

func TestSinkSwallowsSendFailures(t *testing.T) {
	channels, store, dispatcher := newSinkFixture(t)
	logID := "chan-log"
	if _, err := store.Update(context.Background(), "guild-1", domain.GuildSettingsPatch{LogChannelID: &logID}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	channels.SendErr[logID] = errors.New("boom")

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventSettingsUpdated,
		GuildID: "guild-1",
		Details: "Settings updated",
	})
	if err != nil {
		t.Fatalf("audit failures must not propagate, got %v", err)
	}
}
