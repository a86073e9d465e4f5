// Package settings provides the per-guild configuration store: lazily
// defaulted on first access, persisted on every update.
package settings

import (
	"context"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// Store is the guild settings contract. Get lazily creates and persists a
// record from the default template; Update merges a partial patch and
// persists the result.
type Store interface {
	Get(ctx context.Context, guildID string) (*domain.GuildSettings, error)
	Update(ctx context.Context, guildID string, patch domain.GuildSettingsPatch) (*domain.GuildSettings, error)
}
