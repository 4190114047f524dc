package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lastwayz/ticketd/internal/domain"
	"github.com/lastwayz/ticketd/internal/events"
	"github.com/lastwayz/ticketd/internal/platform"
	"github.com/lastwayz/ticketd/internal/schedule"
	"github.com/lastwayz/ticketd/internal/scheduler"
	"github.com/lastwayz/ticketd/internal/store"
	"github.com/lastwayz/ticketd/internal/transcript"
	apperrors "github.com/lastwayz/ticketd/pkg/util"
)

type overwriteCall struct {
	channelID string
	subjectID string
	allow     []string
}

type fileSend struct {
	userID   string
	content  string
	filename string
}

// fakeClient is an in-memory platform double. Channels created through it
// exist until deleted; error fields force specific failures.
type fakeClient struct {
	mu sync.Mutex

	createErr      error
	createBlock    chan struct{}
	createEntered  chan struct{}
	fetchErr       error
	historyErr     error
	sendChannelErr error
	sendDirectErr  error
	sendFileErr    error
	overwriteErr   error
	rolesErr       error

	rolesByUser map[string][]string
	history     []platform.Message

	nextID       int
	channels     map[string]platform.ChannelRef
	channelSends map[string][]string
	directs      map[string][]string
	files        []fileSend
	overwrites   []overwriteCall
	deleted      []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		rolesByUser:  make(map[string][]string),
		channels:     make(map[string]platform.ChannelRef),
		channelSends: make(map[string][]string),
		directs:      make(map[string][]string),
	}
}

func (c *fakeClient) CreateChannel(_ context.Context, name, _ string, _ []domain.PermissionOverwrite) (platform.ChannelRef, error) {
	if c.createEntered != nil {
		c.createEntered <- struct{}{}
	}
	if c.createBlock != nil {
		<-c.createBlock
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return platform.ChannelRef{}, c.createErr
	}
	c.nextID++
	ref := platform.ChannelRef{ID: fmt.Sprintf("chan-%d", c.nextID), Name: name}
	c.channels[ref.ID] = ref
	return ref, nil
}

func (c *fakeClient) DeleteChannel(_ context.Context, channelID, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[channelID]; !ok {
		return platform.ErrUnknownChannel
	}
	delete(c.channels, channelID)
	c.deleted = append(c.deleted, channelID)
	return nil
}

func (c *fakeClient) FetchChannel(_ context.Context, channelID string) (platform.ChannelRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchErr != nil {
		return platform.ChannelRef{}, c.fetchErr
	}
	ref, ok := c.channels[channelID]
	if !ok {
		return platform.ChannelRef{}, platform.ErrUnknownChannel
	}
	return ref, nil
}

func (c *fakeClient) FetchRecentMessages(_ context.Context, _ string, _ int) ([]platform.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history, c.historyErr
}

func (c *fakeClient) FetchMemberRoles(_ context.Context, userID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rolesErr != nil {
		return nil, c.rolesErr
	}
	return c.rolesByUser[userID], nil
}

func (c *fakeClient) SendToChannel(_ context.Context, channelID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendChannelErr != nil {
		return c.sendChannelErr
	}
	c.channelSends[channelID] = append(c.channelSends[channelID], content)
	return nil
}

func (c *fakeClient) SendDirect(_ context.Context, userID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendDirectErr != nil {
		return c.sendDirectErr
	}
	c.directs[userID] = append(c.directs[userID], content)
	return nil
}

func (c *fakeClient) SendDirectFile(_ context.Context, userID, content, filename string, _ []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendFileErr != nil {
		return c.sendFileErr
	}
	c.files = append(c.files, fileSend{userID: userID, content: content, filename: filename})
	return nil
}

func (c *fakeClient) SetPermissionOverwrite(_ context.Context, channelID, subjectID string, allow []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overwriteErr != nil {
		return c.overwriteErr
	}
	c.overwrites = append(c.overwrites, overwriteCall{channelID: channelID, subjectID: subjectID, allow: allow})
	return nil
}

type capturingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *capturingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *capturingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *capturingDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, e := range d.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type memoryJournal struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func (j *memoryJournal) Record(_ context.Context, channelID string, due time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[channelID] = due
	return nil
}

func (j *memoryJournal) Remove(_ context.Context, channelID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, channelID)
	return nil
}

func (j *memoryJournal) Pending(context.Context) (map[string]time.Time, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]time.Time, len(j.entries))
	for k, v := range j.entries {
		out[k] = v
	}
	return out, nil
}

func (j *memoryJournal) has(channelID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.entries[channelID]
	return ok
}

type fixture struct {
	engine     *Engine
	client     *fakeClient
	store      *store.RecordStore
	dispatcher *capturingDispatcher
	journal    *memoryJournal
	deleter    *scheduler.DeletionScheduler

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	dir := t.TempDir()

	backend, err := store.NewFileBackend(dir)
	require.NoError(t, err)
	records := store.NewRecordStore(backend, logger)
	require.NoError(t, records.LoadAll(context.Background(), []string{"general", "donations"}))

	policies, err := schedule.NewPolicyStore(filepath.Join(dir, "schedule.json"),
		schedule.Policy{Enabled: true, StartHour: 9, EndHour: 22})
	require.NoError(t, err)

	client := newFakeClient()
	dispatcher := &capturingDispatcher{}
	journal := &memoryJournal{entries: make(map[string]time.Time)}
	deleter := scheduler.New(client, dispatcher, logger, journal, time.Hour)
	t.Cleanup(deleter.Shutdown)

	f := &fixture{
		client:     client,
		store:      records,
		dispatcher: dispatcher,
		journal:    journal,
		deleter:    deleter,
		now:        time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine = New(Dependencies{
		Store:    records,
		Client:   client,
		Registry: domain.NewCategoryRegistry(
			domain.CategorySpec{
				Category:       domain.CategoryGeneral,
				Partition:      "general",
				ChannelPrefix:  "ticket",
				ParentID:       "parent-general",
				AudienceRoleID: "role-support",
			},
			domain.CategorySpec{
				Category:       domain.CategoryDonation,
				Partition:      "donations",
				ChannelPrefix:  "donation",
				ParentID:       "parent-donations",
				AudienceRoleID: "role-donation-team",
				RequiredRoleID: "role-donator",
			},
		),
		Policies:   policies,
		Archiver:   transcript.NewArchiver(client, logger, 100).WithClock(f.clock),
		Deleter:    deleter,
		Dispatcher: dispatcher,
		Logger:     logger,
		EveryoneID: "guild-1",
	}).WithClock(f.clock)
	return f
}

func TestCreateTicket(t *testing.T) {
	f := newFixture(t)

	result, err := f.engine.Create(context.Background(), "user-1", domain.CategoryGeneral)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "ticket-user-1", result.Channel.Name)
	assert.Equal(t, domain.TicketStatusOpen, result.Record.Status)
	assert.Equal(t, "general-1709294400000", result.Record.ID)

	stored, found := f.store.FindOpenByRequester("general", "user-1")
	require.True(t, found)
	assert.Equal(t, result.Channel.ID, stored.ChannelID)

	sends := f.client.channelSends[result.Channel.ID]
	require.Len(t, sends, 1)
	assert.Contains(t, sends[0], "<@user-1>")
	assert.Contains(t, sends[0], "<@&role-support>")

	created := f.dispatcher.byType(events.EventTicketCreated)
	require.Len(t, created, 1)
	assert.Equal(t, result.Record.ID, created[0].TicketID)
	assert.NotEmpty(t, created[0].ID)
}

func TestCreateOutsideHours(t *testing.T) {
	f := newFixture(t)
	f.mu.Lock()
	f.now = time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	f.mu.Unlock()

	_, err := f.engine.Create(context.Background(), "user-1", domain.CategoryGeneral)
	require.Error(t, err)
	assert.Equal(t, "OUTSIDE_HOURS", apperrors.ToDomainError(err).Code)
	assert.Empty(t, f.client.channels)
}

func TestCreateRejectsSecondOpenTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.NoError(t, err)

	_, err = f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "ALREADY_OPEN", domainErr.Code)
	assert.Equal(t, first.Channel.ID, domainErr.Details["channel_id"])
	assert.Len(t, f.client.channels, 1)
}

func TestCreateAllowedPerCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.NoError(t, err)

	// A donation ticket is tracked in its own partition and does not collide.
	result, err := f.engine.Create(ctx, "user-1", domain.CategoryDonation)
	require.NoError(t, err)
	assert.Equal(t, "donation-user-1", result.Channel.Name)
}

func TestCreateAgainAfterClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.NoError(t, err)
	_, err = f.engine.Close(ctx, first.Channel.ID, "staff-1")
	require.NoError(t, err)

	_, err = f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.NoError(t, err)
}

func TestCreateChannelFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.client.createErr = errors.New("missing permissions")

	_, err := f.engine.Create(context.Background(), "user-1", domain.CategoryGeneral)
	require.Error(t, err)
	assert.Equal(t, "CHANNEL_CREATE_FAILED", apperrors.ToDomainError(err).Code)

	_, found := f.store.FindOpenByRequester("general", "user-1")
	assert.False(t, found)
}

func TestCreateWelcomeFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.client.sendChannelErr = errors.New("rate limited")

	result, err := f.engine.Create(context.Background(), "user-1", domain.CategoryGeneral)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "welcome message")

	_, found := f.store.FindOpenByRequester("general", "user-1")
	assert.True(t, found)
}

func TestCreateConcurrentDuplicateRejected(t *testing.T) {
	f := newFixture(t)
	f.client.createBlock = make(chan struct{})
	f.client.createEntered = make(chan struct{}, 1)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
		errCh <- err
	}()

	// Wait until the first create is inside the platform call, then race it.
	// The duplicate is rejected by the in-flight guard before any platform call.
	<-f.client.createEntered

	_, err := f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "ALREADY_OPEN", domainErr.Code)
	assert.Equal(t, true, domainErr.Details["in_progress"])

	close(f.client.createBlock)
	require.NoError(t, <-errCh)
}

func TestCloseTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.NoError(t, err)
	f.client.history = []platform.Message{
		{ID: "1", AuthorTag: "alice#1", Content: "hello", CreatedAt: f.clock()},
	}
	f.advance(90 * time.Minute)

	result, err := f.engine.Close(ctx, created.Channel.ID, "staff-1")
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	require.NotNil(t, result.Artifact)
	assert.Contains(t, result.Artifact.Content, "hello")

	assert.Equal(t, domain.TicketStatusClosed, result.Record.Status)
	require.NotNil(t, result.Record.ClosedBy)
	assert.Equal(t, "staff-1", *result.Record.ClosedBy)

	require.Len(t, f.client.files, 1)
	assert.Equal(t, "user-1", f.client.files[0].userID)
	assert.Equal(t, "transcript-ticket-user-1.txt", f.client.files[0].filename)
	assert.Contains(t, f.client.files[0].content, "1h 30m")

	assert.True(t, f.journal.has(created.Channel.ID))

	closed := f.dispatcher.byType(events.EventTicketClosed)
	require.Len(t, closed, 1)
	payload := closed[0].Payload.(events.TicketClosedPayload)
	assert.False(t, payload.ChannelAbsent)
	assert.True(t, payload.Transcript)
}

func TestCloseAlreadyClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.NoError(t, err)
	_, err = f.engine.Close(ctx, created.Channel.ID, "staff-1")
	require.NoError(t, err)

	_, err = f.engine.Close(ctx, created.Channel.ID, "staff-2")
	require.Error(t, err)
	assert.Equal(t, "ALREADY_CLOSED", apperrors.ToDomainError(err).Code)
	assert.Len(t, f.client.files, 1)
}

func TestCloseWhenChannelAlreadyGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.NoError(t, err)

	// Channel deleted out of band; the record still gets closed.
	delete(f.client.channels, created.Channel.ID)

	result, err := f.engine.Close(ctx, created.Channel.ID, "staff-1")
	require.NoError(t, err)
	assert.Nil(t, result.Artifact)
	assert.Empty(t, f.client.files)
	assert.False(t, f.journal.has(created.Channel.ID))
	assert.Equal(t, domain.TicketStatusClosed, result.Record.Status)

	payload := f.dispatcher.byType(events.EventTicketClosed)[0].Payload.(events.TicketClosedPayload)
	assert.True(t, payload.ChannelAbsent)
	assert.False(t, payload.Transcript)
}

func TestCloseNotATicketChannel(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Close(context.Background(), "chan-unknown", "staff-1")
	require.Error(t, err)
	assert.Equal(t, "NOT_A_TICKET_CHANNEL", apperrors.ToDomainError(err).Code)
}

func TestCloseTranscriptDeliveryFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.NoError(t, err)
	f.client.sendFileErr = errors.New("dms closed")

	result, err := f.engine.Close(ctx, created.Channel.ID, "staff-1")
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "transcript")

	// The close completes and the channel deletion is still scheduled.
	assert.Equal(t, domain.TicketStatusClosed, result.Record.Status)
	assert.True(t, f.journal.has(created.Channel.ID))
}

func TestAddParticipantGeneral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.NoError(t, err)

	// General tickets never consult member roles.
	f.client.rolesErr = errors.New("should not be called")

	warnings, err := f.engine.AddParticipant(ctx, created.Channel.ID, "staff-1", "user-2")
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.Len(t, f.client.overwrites, 1)
	assert.Equal(t, "user-2", f.client.overwrites[0].subjectID)
	assert.Equal(t, domain.ParticipantAllowSet(), f.client.overwrites[0].allow)

	sends := f.client.channelSends[created.Channel.ID]
	require.Len(t, sends, 2)
	assert.Contains(t, sends[1], "<@user-2>")
}

func TestAddParticipantPrivilegedRequiresRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, "user-1", domain.CategoryDonation)
	require.NoError(t, err)

	_, err = f.engine.AddParticipant(ctx, created.Channel.ID, "staff-1", "user-2")
	require.Error(t, err)
	assert.Equal(t, "INSUFFICIENT_CAPABILITY", apperrors.ToDomainError(err).Code)
	assert.Empty(t, f.client.overwrites)

	f.client.rolesByUser["user-2"] = []string{"role-donator"}
	warnings, err := f.engine.AddParticipant(ctx, created.Channel.ID, "staff-1", "user-2")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, f.client.overwrites, 1)
}

func TestNotify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.NoError(t, err)

	require.NoError(t, f.engine.Notify(ctx, created.Channel.ID, "staff-1"))
	directs := f.client.directs["user-1"]
	require.Len(t, directs, 1)
	assert.Contains(t, directs[0], "<@staff-1>")
	assert.Contains(t, directs[0], "<#"+created.Channel.ID+">")
}

func TestNotifyDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.NoError(t, err)

	f.client.sendDirectErr = errors.New("dms closed")
	err = f.engine.Notify(ctx, created.Channel.ID, "staff-1")
	require.Error(t, err)
	assert.Equal(t, "DELIVERY_FAILED", apperrors.ToDomainError(err).Code)
}

func TestNotifyUnknownChannel(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Notify(context.Background(), "chan-unknown", "staff-1")
	require.Error(t, err)
	assert.Equal(t, "NOT_A_TICKET_CHANNEL", apperrors.ToDomainError(err).Code)
}

func TestToggleSchedule(t *testing.T) {
	f := newFixture(t)

	previous, current, err := f.engine.ToggleSchedule(context.Background(), false, "admin-1")
	require.NoError(t, err)
	assert.True(t, previous.Enabled)
	assert.False(t, current.Enabled)

	toggled := f.dispatcher.byType(events.EventScheduleToggled)
	require.Len(t, toggled, 1)
	payload := toggled[0].Payload.(events.ScheduleToggledPayload)
	assert.True(t, payload.Previous)
	assert.False(t, payload.Current)

	// With the gate disabled, off-hours creation succeeds.
	f.mu.Lock()
	f.now = time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	f.mu.Unlock()
	_, err = f.engine.Create(context.Background(), "user-1", domain.CategoryGeneral)
	require.NoError(t, err)
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Create(ctx, "user-1", domain.CategoryGeneral)
	require.NoError(t, err)
	_, err = f.engine.Create(ctx, "user-2", domain.CategoryGeneral)
	require.NoError(t, err)
	_, err = f.engine.Close(ctx, first.Channel.ID, "staff-1")
	require.NoError(t, err)

	stats := f.engine.Statistics()
	general := stats.Categories[domain.CategoryGeneral]
	assert.Equal(t, 2, general.Total)
	assert.Equal(t, 1, general.Open)
	assert.Equal(t, 1, general.Closed)
	assert.Equal(t, 2, general.CreatedToday)
	assert.Equal(t, 0, stats.Categories[domain.CategoryDonation].Total)
	assert.True(t, stats.OpenNow)
}

func TestAnnounceEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.client.channels["chan-entry"] = platform.ChannelRef{ID: "chan-entry", Name: "open-a-ticket"}

	require.NoError(t, f.engine.AnnounceEntry(ctx, "chan-entry"))
	sends := f.client.channelSends["chan-entry"]
	require.Len(t, sends, 1)
	assert.Contains(t, sends[0], "09:00-22:00")

	_, _, err := f.engine.ToggleSchedule(ctx, false, "admin-1")
	require.NoError(t, err)
	require.NoError(t, f.engine.AnnounceEntry(ctx, "chan-entry"))
	assert.Contains(t, f.client.channelSends["chan-entry"][1], "24/7")
}
