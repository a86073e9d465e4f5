package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/platform"
	"github.com/spec-kit/ticket-bot/internal/registry"
	"github.com/spec-kit/ticket-bot/internal/settings"
	"github.com/spec-kit/ticket-bot/pkg/util"
)

const testGuild = "guild-1"

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(ctx context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) count(eventType events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, event := range r.events {
		if event.Type == eventType {
			n++
		}
	}
	return n
}

type fakeArchive struct {
	mu       sync.Mutex
	archived []*domain.Ticket
}

func (a *fakeArchive) ArchiveTicket(ctx context.Context, ticket *domain.Ticket) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, ticket)
	return nil
}

type testEnv struct {
	controller *Controller
	registry   *registry.Registry
	channels   *platform.FakeChannelManager
	settings   *settings.MemoryStore
	recorder   *eventRecorder
	archive    *fakeArchive
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		registry: registry.New(),
		channels: platform.NewFakeChannelManager(),
		settings: settings.NewMemoryStore(),
		recorder: &eventRecorder{},
		archive:  &fakeArchive{},
	}
	dispatcher := events.NewInMemoryDispatcher()
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketClosed,
		events.EventReviewPublished,
		events.EventError,
	} {
		dispatcher.Subscribe(eventType, env.recorder.record)
	}
	cfg := config.LifecycleConfig{
		PublishCloseDelay: 5 * time.Millisecond,
		CloseDelay:        5 * time.Millisecond,
		DeleteGraceDelay:  50 * time.Millisecond,
		HistoryScanLimit:  200,
		ChannelNameLimit:  15,
	}
	env.controller = NewController(cfg, ControllerDependencies{
		Registry:   env.registry,
		Settings:   env.settings,
		Channels:   env.channels,
		Dispatcher: dispatcher,
		Archive:    env.archive,
		Logger:     zap.NewNop(),
	})
	t.Cleanup(env.controller.Scheduler().Stop)
	return env
}

func creatorActor() Actor {
	return Actor{ID: "user-1", DisplayName: "Alice", Mention: "<@user-1>"}
}

func adminActor() Actor {
	return Actor{ID: "admin-1", DisplayName: "Mod", Mention: "<@admin-1>", IsAdministrator: true}
}

func (env *testEnv) openTicket(t *testing.T) string {
	t.Helper()
	result, err := env.controller.OpenTicket(context.Background(), testGuild, creatorActor())
	if err != nil {
		t.Fatalf("open ticket: %v", err)
	}
	return result.ChannelID
}

func TestOpenTicketRegistersAndWelcomes(t *testing.T) {
	env := newTestEnv(t)
	channelID := env.openTicket(t)

	ticket, ok := env.registry.Get(channelID)
	if !ok {
		t.Fatalf("expected ticket registered under the new channel")
	}
	if ticket.Status() != domain.TicketStatusOpen {
		t.Fatalf("expected open status, got %s", ticket.Status())
	}
	if ticket.CreatorID != "user-1" || ticket.GuildID != testGuild {
		t.Fatalf("unexpected ticket identity: %+v", ticket)
	}

	channel := env.channels.GetChannel(channelID)
	if channel == nil {
		t.Fatalf("expected channel to exist")
	}
	if channel.Name != "ticket-alice" {
		t.Fatalf("expected deterministic channel name, got %q", channel.Name)
	}

	sent := env.channels.SentTo(channelID)
	if len(sent) != 1 {
		t.Fatalf("expected one welcome message, got %d", len(sent))
	}
	if len(sent[0].Components) != 2 {
		t.Fatalf("expected publish and close controls, got %d components", len(sent[0].Components))
	}
	if env.recorder.count(events.EventTicketCreated) != 1 {
		t.Fatalf("expected one ticket-created event")
	}
}

func TestOpenTicketRejectsSecondActiveTicket(t *testing.T) {
	env := newTestEnv(t)
	env.openTicket(t)

	_, err := env.controller.OpenTicket(context.Background(), testGuild, creatorActor())
	if !util.HasCode(err, registry.CodeActiveTicket) {
		t.Fatalf("expected active-ticket rejection, got %v", err)
	}
	if stats := env.registry.Stats(); stats.Tracked != 1 {
		t.Fatalf("expected exactly one tracked ticket, got %+v", stats)
	}
	if env.recorder.count(events.EventTicketCreated) != 1 {
		t.Fatalf("rejected creation must not emit an event")
	}
}

func TestOpenTicketChannelFailureLeavesNoRecord(t *testing.T) {
	env := newTestEnv(t)
	env.channels.CreateErr = platform.ErrChannelGone

	_, err := env.controller.OpenTicket(context.Background(), testGuild, creatorActor())
	if err == nil {
		t.Fatalf("expected channel-creation failure to surface")
	}
	if stats := env.registry.Stats(); stats.Tracked != 0 {
		t.Fatalf("no orphaned ticket record expected, got %+v", stats)
	}

	// The reservation must be released so the user can retry.
	env.channels.CreateErr = nil
	env.openTicket(t)
}

func TestOpenTicketAppliesAdminRoleOverwrite(t *testing.T) {
	env := newTestEnv(t)
	env.channels.Roles[testGuild] = map[string]string{"Admin": "role-9"}

	channelID := env.openTicket(t)
	channel := env.channels.GetChannel(channelID)
	found := false
	for _, overwrite := range channel.Overwrites {
		if overwrite.TargetID == "role-9" && overwrite.TargetType == platform.OverwriteRole {
			found = true
			if overwrite.ManageAccess == nil || !*overwrite.ManageAccess {
				t.Fatalf("expected manage access for the admin role")
			}
		}
	}
	if !found {
		t.Fatalf("expected admin role overwrite, got %+v", channel.Overwrites)
	}
}

func TestPublishRequiresAuthorization(t *testing.T) {
	env := newTestEnv(t)
	channelID := env.openTicket(t)

	action := ActionContext{GuildID: testGuild, ChannelID: channelID, Actor: Actor{ID: "rando"}}
	if err := env.controller.PublishTicket(context.Background(), action); !util.HasCode(err, "FORBIDDEN") {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if env.recorder.count(events.EventReviewPublished) != 0 {
		t.Fatalf("unauthorized publish must not emit events")
	}
}

func TestAdminRoleMemberIsAuthorized(t *testing.T) {
	env := newTestEnv(t)
	env.channels.Roles[testGuild] = map[string]string{"Admin": "role-9"}
	channelID := env.openTicket(t)

	actor := Actor{ID: "mod-1", RoleIDs: []string{"role-9"}}
	action := ActionContext{GuildID: testGuild, ChannelID: channelID, Actor: actor}
	err := env.controller.CloseTicket(context.Background(), action)
	if err != nil {
		t.Fatalf("expected admin-role member to be authorized: %v", err)
	}
}

func TestPublishAbortsOnEmptyTranscript(t *testing.T) {
	env := newTestEnv(t)
	channelID := env.openTicket(t)
	// Only bot and third-party noise in the history.
	env.channels.History[channelID] = []platform.Message{
		{AuthorID: "bot-user", AuthorBot: true, Content: "welcome"},
		{AuthorID: "someone-else", Content: "hello"},
		{AuthorID: "user-1", Content: ""},
	}

	action := ActionContext{GuildID: testGuild, ChannelID: channelID, Actor: adminActor()}
	err := env.controller.PublishTicket(context.Background(), action)
	if !util.HasCode(err, "TICKET_TRANSCRIPT_EMPTY") {
		t.Fatalf("expected empty-transcript rejection, got %v", err)
	}

	ticket, _ := env.registry.Get(channelID)
	if ticket.Status() != domain.TicketStatusOpen {
		t.Fatalf("aborted publish must not change status, got %s", ticket.Status())
	}
}

func TestPublishAbortsWhenDestinationUnset(t *testing.T) {
	env := newTestEnv(t)
	channelID := env.openTicket(t)
	env.channels.History[channelID] = []platform.Message{
		{AuthorID: "user-1", Content: "great service"},
	}

	action := ActionContext{GuildID: testGuild, ChannelID: channelID, Actor: adminActor()}
	err := env.controller.PublishTicket(context.Background(), action)
	if !util.HasCode(err, "TICKET_PUBLISH_UNCONFIGURED") {
		t.Fatalf("expected unconfigured-destination rejection, got %v", err)
	}

	ticket, _ := env.registry.Get(channelID)
	if ticket.Status() != domain.TicketStatusOpen {
		t.Fatalf("aborted publish must not change status")
	}
}

func TestPublishAbortsWhenDestinationUnresolvable(t *testing.T) {
	env := newTestEnv(t)
	channelID := env.openTicket(t)
	env.channels.History[channelID] = []platform.Message{
		{AuthorID: "user-1", Content: "great service"},
	}
	missing := "chan-missing"
	if _, err := env.settings.Update(context.Background(), testGuild, domain.GuildSettingsPatch{PublishChannelID: &missing}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	action := ActionContext{GuildID: testGuild, ChannelID: channelID, Actor: adminActor()}
	err := env.controller.PublishTicket(context.Background(), action)
	if !util.HasCode(err, "TICKET_PUBLISH_UNRESOLVED") {
		t.Fatalf("expected unresolvable-destination rejection, got %v", err)
	}
	if len(env.channels.SentTo(missing)) != 0 {
		t.Fatalf("nothing may be sent to a missing destination")
	}
}

func TestPublishFlowDeliversAndCloses(t *testing.T) {
	env := newTestEnv(t)
	channelID := env.openTicket(t)
	env.channels.History[channelID] = []platform.Message{
		{AuthorID: "user-1", Content: "great service"},
	}
	publishID := env.channels.AddChannel(platform.Channel{GuildID: testGuild, Name: "reviews"})
	if _, err := env.settings.Update(context.Background(), testGuild, domain.GuildSettingsPatch{PublishChannelID: &publishID}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	action := ActionContext{GuildID: testGuild, ChannelID: channelID, Actor: adminActor()}
	if err := env.controller.PublishTicket(context.Background(), action); err != nil {
		t.Fatalf("publish: %v", err)
	}

	published := env.channels.SentTo(publishID)
	if len(published) != 1 {
		t.Fatalf("expected exactly one composed message, got %d", len(published))
	}
	if published[0].Embed == nil || published[0].Embed.Description != "great service" {
		t.Fatalf("unexpected publish payload: %+v", published[0])
	}

	ticket, _ := env.registry.Get(channelID)
	if ticket.Status() != domain.TicketStatusPublished {
		t.Fatalf("expected published status after send, got %s", ticket.Status())
	}
	if env.recorder.count(events.EventReviewPublished) != 1 {
		t.Fatalf("expected one review-published event")
	}

	// The delayed shared closing procedure deletes the channel and evicts
	// the ticket (no closed category configured).
	waitUntil(t, time.Second, func() bool {
		_, tracked := env.registry.Get(channelID)
		return !tracked
	})
	if env.channels.GetChannel(channelID) != nil {
		t.Fatalf("expected ticket channel to be deleted")
	}
	if !ticket.WasPublished() || ticket.Status() != domain.TicketStatusClosed {
		t.Fatalf("published ticket must close while keeping publish evidence")
	}
	if env.recorder.count(events.EventReviewPublished) != 1 {
		t.Fatalf("publish event must be emitted exactly once")
	}
}

func TestSecondPublishIsRejected(t *testing.T) {
	env := newTestEnv(t)
	channelID := env.openTicket(t)
	env.channels.History[channelID] = []platform.Message{
		{AuthorID: "user-1", Content: "great service"},
	}
	publishID := env.channels.AddChannel(platform.Channel{GuildID: testGuild, Name: "reviews"})
	if _, err := env.settings.Update(context.Background(), testGuild, domain.GuildSettingsPatch{PublishChannelID: &publishID}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	action := ActionContext{GuildID: testGuild, ChannelID: channelID, Actor: adminActor()}
	if err := env.controller.PublishTicket(context.Background(), action); err != nil {
		t.Fatalf("publish: %v", err)
	}
	err := env.controller.PublishTicket(context.Background(), action)
	if !util.HasCode(err, "TICKET_NOT_OPEN") {
		t.Fatalf("expected second publish to be rejected, got %v", err)
	}
	if len(env.channels.SentTo(publishID)) != 1 {
		t.Fatalf("destination must receive the transcript once")
	}
}

func TestCloseWithoutClosedCategoryDeletesImmediately(t *testing.T) {
	env := newTestEnv(t)
	channelID := env.openTicket(t)

	action := ActionContext{GuildID: testGuild, ChannelID: channelID, Actor: adminActor()}
	if err := env.controller.CloseTicket(context.Background(), action); err != nil {
		t.Fatalf("close: %v", err)
	}
	if env.recorder.count(events.EventTicketClosed) != 1 {
		t.Fatalf("expected one ticket-closed event")
	}

	waitUntil(t, time.Second, func() bool {
		_, tracked := env.registry.Get(channelID)
		return !tracked
	})
	if env.channels.GetChannel(channelID) != nil {
		t.Fatalf("expected immediate deletion with no closed category")
	}
}

func TestCloseWithClosedCategoryMovesStripsThenDeletes(t *testing.T) {
	env := newTestEnv(t)
	closedCategory := "cat-closed"
	if _, err := env.settings.Update(context.Background(), testGuild, domain.GuildSettingsPatch{ClosedCategoryID: &closedCategory}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	channelID := env.openTicket(t)

	action := ActionContext{GuildID: testGuild, ChannelID: channelID, Actor: adminActor()}
	if err := env.controller.CloseTicket(context.Background(), action); err != nil {
		t.Fatalf("close: %v", err)
	}

	// First phase: moved, renamed, member send permission stripped.
	waitUntil(t, time.Second, func() bool {
		channel := env.channels.GetChannel(channelID)
		return channel != nil && channel.ParentID == closedCategory
	})
	channel := env.channels.GetChannel(channelID)
	if channel.Name != "closed-ticket-alice" {
		t.Fatalf("expected closed marker prefix, got %q", channel.Name)
	}
	for _, overwrite := range channel.Overwrites {
		if overwrite.TargetType != platform.OverwriteMember || overwrite.TargetID == env.channels.BotID {
			continue
		}
		if overwrite.SendMessages == nil || *overwrite.SendMessages {
			t.Fatalf("expected send permission stripped for %s", overwrite.TargetID)
		}
	}

	// Second phase: deleted after the grace delay, then evicted.
	waitUntil(t, time.Second, func() bool {
		return env.channels.GetChannel(channelID) == nil
	})
	waitUntil(t, time.Second, func() bool {
		_, tracked := env.registry.Get(channelID)
		return !tracked
	})
}

func TestDuplicateCloseConverges(t *testing.T) {
	env := newTestEnv(t)
	channelID := env.openTicket(t)

	action := ActionContext{GuildID: testGuild, ChannelID: channelID, Actor: adminActor()}
	if err := env.controller.CloseTicket(context.Background(), action); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := env.controller.CloseTicket(context.Background(), action); err != nil {
		t.Fatalf("second close: %v", err)
	}

	waitUntil(t, time.Second, func() bool {
		_, tracked := env.registry.Get(channelID)
		return !tracked
	})
	deleted := env.channels.DeletedChannels()
	if len(deleted) != 1 || deleted[0] != channelID {
		t.Fatalf("expected a single converged deletion, got %v", deleted)
	}
}

func TestClosingToleratesAlreadyDeletedChannel(t *testing.T) {
	env := newTestEnv(t)
	closedCategory := "cat-closed"
	if _, err := env.settings.Update(context.Background(), testGuild, domain.GuildSettingsPatch{ClosedCategoryID: &closedCategory}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	channelID := env.openTicket(t)

	// Another path deletes the channel before the close fires.
	if err := env.channels.DeleteChannel(context.Background(), channelID); err != nil {
		t.Fatalf("delete channel: %v", err)
	}

	action := ActionContext{GuildID: testGuild, ChannelID: channelID, Actor: adminActor()}
	if err := env.controller.CloseTicket(context.Background(), action); err != nil {
		t.Fatalf("close: %v", err)
	}

	waitUntil(t, time.Second, func() bool {
		_, tracked := env.registry.Get(channelID)
		return !tracked
	})
}

func TestFinalizeArchivesClosedTicket(t *testing.T) {
	env := newTestEnv(t)
	channelID := env.openTicket(t)
	ticket, _ := env.registry.Get(channelID)
	ticket.AddMessage("user-1", "great service", time.Now())

	action := ActionContext{GuildID: testGuild, ChannelID: channelID, Actor: adminActor()}
	if err := env.controller.CloseTicket(context.Background(), action); err != nil {
		t.Fatalf("close: %v", err)
	}

	waitUntil(t, time.Second, func() bool {
		env.archive.mu.Lock()
		defer env.archive.mu.Unlock()
		return len(env.archive.archived) == 1
	})
	env.archive.mu.Lock()
	archived := env.archive.archived[0]
	env.archive.mu.Unlock()
	if archived.ChannelID != channelID || archived.Status() != domain.TicketStatusClosed {
		t.Fatalf("unexpected archived ticket: %+v", archived)
	}
	if len(archived.Transcript()) != 1 {
		t.Fatalf("expected transcript to be archived")
	}
}

func TestCancelPendingClose(t *testing.T) {
	env := newTestEnv(t)
	channelID := env.openTicket(t)

	env.controller.Scheduler().Schedule(channelID, time.Hour, func() {})
	if !env.controller.CancelPendingClose(channelID) {
		t.Fatalf("expected a pending close to cancel")
	}
	if env.controller.CancelPendingClose(channelID) {
		t.Fatalf("expected nothing left to cancel")
	}
}
