package settings

import (
	"context"
	"sync"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// MemoryStore keeps guild settings in process memory. Same contract as the
// Redis store; used in tests and as a degraded fallback.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*domain.GuildSettings
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*domain.GuildSettings)}
}

// Get returns the guild record, creating it from the default template on
// first access.
func (s *MemoryStore) Get(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[guildID]
	if !ok {
		defaults := domain.DefaultGuildSettings()
		record = &defaults
		s.records[guildID] = record
	}
	copied := *record
	return &copied, nil
}

// Update merges the patch into the stored record.
func (s *MemoryStore) Update(ctx context.Context, guildID string, patch domain.GuildSettingsPatch) (*domain.GuildSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[guildID]
	if !ok {
		defaults := domain.DefaultGuildSettings()
		record = &defaults
		s.records[guildID] = record
	}
	record.Apply(patch)
	copied := *record
	return &copied, nil
}
