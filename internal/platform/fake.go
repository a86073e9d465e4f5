package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrChannelGone is the fake's unknown-channel error.
var ErrChannelGone = errors.New("channel gone")

// FakeChannelManager is an in-memory ChannelManager used in tests.
type FakeChannelManager struct {
	mu sync.Mutex

	BotID   string
	Roles   map[string]map[string]string // guildID -> role name -> role ID
	Members map[string]map[string]string // guildID -> user ID -> display name

	History map[string][]Message  // channelID -> messages, oldest first
	Sent    map[string][]Outgoing // channelID -> delivered messages
	Deleted []string

	CreateErr error
	SendErr   map[string]error // channelID -> forced send failure

	channels map[string]*Channel
	nextID   int
}

// NewFakeChannelManager constructs an empty fake.
func NewFakeChannelManager() *FakeChannelManager {
	return &FakeChannelManager{
		BotID:    "bot-user",
		Roles:    map[string]map[string]string{},
		Members:  map[string]map[string]string{},
		History:  map[string][]Message{},
		Sent:     map[string][]Outgoing{},
		SendErr:  map[string]error{},
		channels: map[string]*Channel{},
	}
}

// AddChannel seeds an existing channel, returning its ID.
func (f *FakeChannelManager) AddChannel(ch Channel) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch.ID == "" {
		f.nextID++
		ch.ID = fmt.Sprintf("chan-%d", f.nextID)
	}
	copied := ch
	f.channels[ch.ID] = &copied
	return ch.ID
}

// GetChannel returns the stored channel state, nil when deleted.
func (f *FakeChannelManager) GetChannel(channelID string) *Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return nil
	}
	copied := *ch
	return &copied
}

// SentTo returns the messages delivered to a channel.
func (f *FakeChannelManager) SentTo(channelID string) []Outgoing {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Outgoing, len(f.Sent[channelID]))
	copy(out, f.Sent[channelID])
	return out
}

// DeletedChannels returns the IDs deleted so far.
func (f *FakeChannelManager) DeletedChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Deleted))
	copy(out, f.Deleted)
	return out
}

func (f *FakeChannelManager) CreateChannel(ctx context.Context, input CreateChannelInput) (*Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextID++
	ch := &Channel{
		ID:         fmt.Sprintf("chan-%d", f.nextID),
		GuildID:    input.GuildID,
		Name:       input.Name,
		ParentID:   input.ParentID,
		Overwrites: append([]PermissionOverwrite{}, input.Overwrites...),
	}
	f.channels[ch.ID] = ch
	copied := *ch
	return &copied, nil
}

func (f *FakeChannelManager) EditChannel(ctx context.Context, channelID string, edit ChannelEdit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return ErrChannelGone
	}
	if edit.Name != "" {
		ch.Name = edit.Name
	}
	if edit.ParentID != "" {
		ch.ParentID = edit.ParentID
	}
	return nil
}

func (f *FakeChannelManager) SetPermission(ctx context.Context, channelID string, overwrite PermissionOverwrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return ErrChannelGone
	}
	for i := range ch.Overwrites {
		if ch.Overwrites[i].TargetID == overwrite.TargetID && ch.Overwrites[i].TargetType == overwrite.TargetType {
			ch.Overwrites[i] = overwrite
			return nil
		}
	}
	ch.Overwrites = append(ch.Overwrites, overwrite)
	return nil
}

func (f *FakeChannelManager) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		return ErrChannelGone
	}
	delete(f.channels, channelID)
	f.Deleted = append(f.Deleted, channelID)
	return nil
}

func (f *FakeChannelManager) Channel(ctx context.Context, channelID string) (*Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, ErrChannelGone
	}
	copied := *ch
	copied.Overwrites = append([]PermissionOverwrite{}, ch.Overwrites...)
	return &copied, nil
}

func (f *FakeChannelManager) FetchHistory(ctx context.Context, channelID string, limit int, oldestFirst bool) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.History[channelID]
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]Message, len(history))
	copy(out, history)
	if !oldestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (f *FakeChannelManager) SendMessage(ctx context.Context, channelID string, out Outgoing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SendErr[channelID]; err != nil {
		return err
	}
	f.Sent[channelID] = append(f.Sent[channelID], out)
	return nil
}

func (f *FakeChannelManager) RoleIDByName(ctx context.Context, guildID, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Roles[guildID][name], nil
}

func (f *FakeChannelManager) MemberDisplayName(ctx context.Context, guildID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Members[guildID][userID], nil
}

func (f *FakeChannelManager) BotUserID() string {
	return f.BotID
}

func (f *FakeChannelManager) IsChannelGone(err error) bool {
	return errors.Is(err, ErrChannelGone)
}
