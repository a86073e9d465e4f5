package settings

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

func TestMemoryStoreReturnsDefaultsOnFirstAccess(t *testing.T) {
	store := NewMemoryStore()
	record, err := store.Get(context.Background(), "guild-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defaults := domain.DefaultGuildSettings()
	if record.AdminRoleName != defaults.AdminRoleName || record.EmbedColor != defaults.EmbedColor {
		t.Fatalf("expected default template, got %+v", record)
	}
}

func TestMemoryStoreUpdateMergesPatch(t *testing.T) {
	store := NewMemoryStore()
	logID := "chan-log"
	record, err := store.Update(context.Background(), "guild-1", domain.GuildSettingsPatch{LogChannelID: &logID})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if record.LogChannelID != logID {
		t.Fatalf("expected patched log channel, got %q", record.LogChannelID)
	}
	// Unpatched fields keep their defaults.
	if record.AdminRoleName != domain.DefaultGuildSettings().AdminRoleName {
		t.Fatalf("untouched field must keep its default")
	}

	again, err := store.Get(context.Background(), "guild-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.LogChannelID != logID {
		t.Fatalf("expected update to persist")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	record, _ := store.Get(context.Background(), "guild-1")
	record.AdminRoleName = "mutated"
	again, _ := store.Get(context.Background(), "guild-1")
	if again.AdminRoleName == "mutated" {
		t.Fatalf("callers must not share the stored record")
	}
}

func newRedisStore(t *testing.T) (*RedisStore, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client, "tickets", zap.NewNop()), client
}

func TestRedisStorePersistsDefaultsOnFirstAccess(t *testing.T) {
	store, client := newRedisStore(t)

	record, err := store.Get(context.Background(), "guild-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.AdminRoleName != domain.DefaultGuildSettings().AdminRoleName {
		t.Fatalf("expected default template, got %+v", record)
	}

	// The template is written back so a second reader sees the same document.
	exists, err := client.Exists(context.Background(), "tickets:guild:guild-1:settings").Result()
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists != 1 {
		t.Fatalf("expected lazily persisted default document")
	}
}

func TestRedisStoreUpdateSurvivesNewStoreInstance(t *testing.T) {
	store, client := newRedisStore(t)

	publishID := "chan-reviews"
	if _, err := store.Update(context.Background(), "guild-1", domain.GuildSettingsPatch{PublishChannelID: &publishID}); err != nil {
		t.Fatalf("update: %v", err)
	}

	reopened := NewRedisStoreWithClient(client, "tickets", zap.NewNop())
	record, err := reopened.Get(context.Background(), "guild-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.PublishChannelID != publishID {
		t.Fatalf("expected patched value across instances, got %q", record.PublishChannelID)
	}
}

func TestRedisStoreScopesGuilds(t *testing.T) {
	store, _ := newRedisStore(t)

	color := "#ff0000"
	if _, err := store.Update(context.Background(), "guild-1", domain.GuildSettingsPatch{EmbedColor: &color}); err != nil {
		t.Fatalf("update: %v", err)
	}
	other, err := store.Get(context.Background(), "guild-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if other.EmbedColor != domain.DefaultGuildSettings().EmbedColor {
		t.Fatalf("guild-2 must not see guild-1 settings")
	}
}
