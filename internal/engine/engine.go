package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
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

// Engine is the ticket lifecycle state machine: it owns creation, closure,
// participant grants and notifications, reading and writing the record store
// and emitting side effects through the platform client.
type Engine struct {
	store      *store.RecordStore
	client     platform.Client
	registry   *domain.CategoryRegistry
	policies   *schedule.PolicyStore
	archiver   *transcript.Archiver
	deleter    *scheduler.DeletionScheduler
	dispatcher events.Dispatcher
	logger     *zap.Logger
	everyoneID string
	now        func() time.Time

	// inflight serializes create attempts per (requester, category) so two
	// near-simultaneous requests cannot both pass the single-open check.
	mu       sync.Mutex
	inflight map[string]struct{}
}

// Dependencies bundles collaborators for the engine.
type Dependencies struct {
	Store      *store.RecordStore
	Client     platform.Client
	Registry   *domain.CategoryRegistry
	Policies   *schedule.PolicyStore
	Archiver   *transcript.Archiver
	Deleter    *scheduler.DeletionScheduler
	Dispatcher events.Dispatcher
	Logger     *zap.Logger

	// EveryoneID is the role denied channel visibility by default (the guild id).
	EveryoneID string
}

// New constructs the engine.
func New(deps Dependencies) *Engine {
	return &Engine{
		store:      deps.Store,
		client:     deps.Client,
		registry:   deps.Registry,
		policies:   deps.Policies,
		archiver:   deps.Archiver,
		deleter:    deps.Deleter,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		everyoneID: deps.EveryoneID,
		now:        time.Now,
		inflight:   make(map[string]struct{}),
	}
}

// WithClock overrides the engine clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateResult reports a successful creation. Warnings carry soft failures
// (persistence, welcome-message delivery) that did not abort the operation.
type CreateResult struct {
	Record   domain.TicketRecord
	Channel  platform.ChannelRef
	Warnings []string
}

// Create opens a new ticket for the requester in the given category.
// Precondition order: schedule gate first, then the single-open check. The
// channel is created before the record is inserted; a persistence failure
// after channel creation is reported as a warning, never a rollback.
func (e *Engine) Create(ctx context.Context, requesterID string, category domain.Category) (*CreateResult, error) {
	spec, ok := e.registry.Resolve(category)
	if !ok {
		return nil, apperrors.NewValidationError("unknown ticket category", map[string]any{"category": category})
	}

	key := requesterID + "|" + string(category)
	e.mu.Lock()
	if _, busy := e.inflight[key]; busy {
		e.mu.Unlock()
		return nil, apperrors.NewCreateInProgress()
	}
	e.inflight[key] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inflight, key)
		e.mu.Unlock()
	}()

	policy := e.policies.Current()
	if !policy.AllowedAt(e.now()) {
		return nil, apperrors.NewOutsideHours(policy.StartHour, policy.EndHour)
	}

	if existing, found := e.store.FindOpenByRequester(spec.Partition, requesterID); found {
		return nil, apperrors.NewAlreadyOpen(existing.ChannelID)
	}

	name := spec.ChannelName(requesterID)
	channel, err := e.client.CreateChannel(ctx, name, spec.ParentID, spec.Overwrites(e.everyoneID, requesterID))
	if err != nil {
		return nil, apperrors.NewChannelCreateFailed(err)
	}

	createdAt := e.now()
	record := domain.TicketRecord{
		ID:          domain.NewTicketID(category, createdAt),
		Category:    category,
		RequesterID: requesterID,
		ChannelID:   channel.ID,
		Status:      domain.TicketStatusOpen,
		CreatedAt:   createdAt,
	}

	result := &CreateResult{Record: record, Channel: channel}
	if err := e.store.Insert(ctx, spec.Partition, &record); err != nil {
		// The channel exists on the platform; surface the durability gap but
		// keep the operation successful.
		e.logger.Error("ticket record persistence failed after channel creation",
			zap.String("ticket_id", record.ID), zap.Error(err))
		result.Warnings = append(result.Warnings, "ticket record could not be persisted")
	}

	welcome := fmt.Sprintf("<@%s> <@&%s> your ticket %s is open. Describe your issue and staff will respond.",
		requesterID, spec.AudienceRoleID, record.ID)
	if err := e.client.SendToChannel(ctx, channel.ID, welcome); err != nil {
		e.logger.Warn("welcome message delivery failed",
			zap.String("channel_id", channel.ID), zap.Error(err))
		result.Warnings = append(result.Warnings, "welcome message could not be posted")
	}

	e.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: record.ID,
		ActorID:  requesterID,
		Payload: events.TicketCreatedPayload{
			Category:    category,
			RequesterID: requesterID,
			ChannelID:   channel.ID,
			ChannelName: channel.Name,
		},
	})
	return result, nil
}

// CloseResult reports a completed closure. Artifact is nil when the external
// channel was already gone at close time.
type CloseResult struct {
	Record   domain.TicketRecord
	Artifact *transcript.Artifact
	Warnings []string
}

// Close transitions the ticket bound to channelID from Open to Closed. The
// channel's actual existence is reconciled first: a channel deleted out of
// band still gets its record closed, just without transcript or delivery.
// Closing an already-closed ticket yields AlreadyClosed and no side effects.
func (e *Engine) Close(ctx context.Context, channelID, closedBy string) (*CloseResult, error) {
	record, partition, found := e.store.FindByChannel(channelID)
	if !found {
		return nil, apperrors.NewNotATicketChannel(channelID)
	}
	if !record.IsOpen() {
		return nil, apperrors.NewAlreadyClosed(record.ID)
	}

	channel, err := e.client.FetchChannel(ctx, channelID)
	exists := true
	if err != nil {
		if !errors.Is(err, platform.ErrUnknownChannel) {
			return nil, apperrors.NewExternalError("fetch channel", err)
		}
		exists = false
	}

	result := &CloseResult{}
	if exists {
		artifact := e.archiver.Build(ctx, channel)
		result.Artifact = &artifact

		summary := fmt.Sprintf("Your ticket %s was closed by <@%s> after %s. The transcript is attached.",
			record.ID, closedBy, domain.FormatDuration(record.Duration(e.now())))
		if err := e.client.SendDirectFile(ctx, record.RequesterID, summary, artifact.FileName(), []byte(artifact.Content)); err != nil {
			e.logger.Warn("transcript delivery failed",
				zap.String("ticket_id", record.ID),
				zap.String("requester_id", record.RequesterID),
				zap.Error(err))
			result.Warnings = append(result.Warnings, "transcript could not be delivered to the requester")
		}
	}

	closed, err := e.store.CloseRecord(ctx, partition, record.ID, closedBy, e.now())
	if err != nil {
		if apperrors.ToDomainError(err).Code == "ALREADY_CLOSED" {
			return nil, err
		}
		// Persistence failed; the in-memory transition happened and the close
		// proceeds (documented inconsistency window).
		result.Warnings = append(result.Warnings, "closed record could not be persisted")
	}
	result.Record = closed

	if exists {
		e.deleter.Schedule(channelID, "ticket closed")
	}

	e.publish(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: closed.ID,
		ActorID:  closedBy,
		Payload: events.TicketClosedPayload{
			Category:      closed.Category,
			RequesterID:   closed.RequesterID,
			ChannelID:     channelID,
			ClosedBy:      closedBy,
			Duration:      domain.FormatDuration(closed.Duration(e.now())),
			ChannelAbsent: !exists,
			Transcript:    result.Artifact != nil && len(result.Warnings) == 0,
		},
	})
	return result, nil
}

// AddParticipant grants the target the participant permission set on the
// ticket channel. For privileged categories the target must already hold the
// category's required role. No local state changes.
func (e *Engine) AddParticipant(ctx context.Context, channelID, actorID, targetID string) ([]string, error) {
	record, _, found := e.store.FindByChannel(channelID)
	if !found {
		return nil, apperrors.NewNotATicketChannel(channelID)
	}
	spec, ok := e.registry.Resolve(record.Category)
	if !ok {
		return nil, apperrors.NewValidationError("unknown ticket category", map[string]any{"category": record.Category})
	}

	if spec.Privileged() {
		roles, err := e.client.FetchMemberRoles(ctx, targetID)
		if err != nil {
			return nil, apperrors.NewExternalError("fetch member roles", err)
		}
		if !containsRole(roles, spec.RequiredRoleID) {
			return nil, apperrors.NewInsufficientCapability(targetID)
		}
	}

	if err := e.client.SetPermissionOverwrite(ctx, channelID, targetID, domain.ParticipantAllowSet()); err != nil {
		return nil, apperrors.NewExternalError("set permission overwrite", err)
	}

	var warnings []string
	announcement := fmt.Sprintf("<@%s> was added to the ticket by <@%s>", targetID, actorID)
	if err := e.client.SendToChannel(ctx, channelID, announcement); err != nil {
		e.logger.Warn("participant announcement failed",
			zap.String("channel_id", channelID), zap.Error(err))
		warnings = append(warnings, "participant announcement could not be posted")
	}

	e.publish(ctx, events.Event{
		Type:     events.EventParticipantAdded,
		TicketID: record.ID,
		ActorID:  actorID,
		Payload: events.ParticipantAddedPayload{
			ChannelID: channelID,
			TargetID:  targetID,
		},
	})
	return warnings, nil
}

// Notify sends the ticket's requester a direct reminder to respond. Delivery
// failure is reported as DeliveryFailed, distinct from NotATicketChannel.
func (e *Engine) Notify(ctx context.Context, channelID, requestedBy string) error {
	record, _, found := e.store.FindByChannel(channelID)
	if !found {
		return apperrors.NewNotATicketChannel(channelID)
	}
	reminder := fmt.Sprintf("Staff member <@%s> asked you to respond in your support ticket <#%s>.",
		requestedBy, channelID)
	if err := e.client.SendDirect(ctx, record.RequesterID, reminder); err != nil {
		return apperrors.NewDeliveryFailed(record.RequesterID, err)
	}
	return nil
}

// ToggleSchedule flips schedule enforcement, persisting the policy and
// confirming previous and new state.
func (e *Engine) ToggleSchedule(ctx context.Context, enabled bool, actorID string) (previous, current schedule.Policy, err error) {
	previous, current, err = e.policies.SetEnabled(enabled)
	if err != nil {
		return previous, current, apperrors.NewPersistenceError(err)
	}
	e.publish(ctx, events.Event{
		Type:    events.EventScheduleToggled,
		ActorID: actorID,
		Payload: events.ScheduleToggledPayload{
			Previous:  previous.Enabled,
			Current:   current.Enabled,
			StartHour: current.StartHour,
			EndHour:   current.EndHour,
		},
	})
	return previous, current, nil
}

// CategoryStats aggregates counts for one category.
type CategoryStats struct {
	Total        int `json:"total"`
	Open         int `json:"open"`
	Closed       int `json:"closed"`
	CreatedToday int `json:"created_today"`
}

// Stats is the statistics snapshot exposed to staff.
type Stats struct {
	Categories map[domain.Category]CategoryStats `json:"categories"`
	Schedule   schedule.Policy                   `json:"schedule"`
	OpenNow    bool                              `json:"open_now"`
}

// Statistics aggregates per-category counts and the schedule state.
func (e *Engine) Statistics() Stats {
	now := e.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	stats := Stats{Categories: make(map[domain.Category]CategoryStats)}
	for _, spec := range e.registry.All() {
		var cs CategoryStats
		for _, record := range e.store.Snapshot(spec.Partition) {
			cs.Total++
			if record.IsOpen() {
				cs.Open++
			} else {
				cs.Closed++
			}
			if !record.CreatedAt.Before(today) {
				cs.CreatedToday++
			}
		}
		stats.Categories[spec.Category] = cs
	}
	policy := e.policies.Current()
	stats.Schedule = policy
	stats.OpenNow = policy.AllowedAt(now)
	return stats
}

// AnnounceEntry posts the ticket-entry prompt to the configured entry channel.
func (e *Engine) AnnounceEntry(ctx context.Context, entryChannelID string) error {
	policy := e.policies.Current()
	hours := "24/7"
	if policy.Enabled {
		hours = fmt.Sprintf("%02d:00-%02d:00", policy.StartHour, policy.EndHour)
	}
	prompt := fmt.Sprintf("Need help? Open a support ticket and staff will assist you. Support hours: %s.", hours)
	if err := e.client.SendToChannel(ctx, entryChannelID, prompt); err != nil {
		return apperrors.NewExternalError("send entry prompt", err)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	_ = e.dispatcher.Publish(ctx, event)
}

func containsRole(roles []string, required string) bool {
	for _, role := range roles {
		if role == required {
			return true
		}
	}
	return false
}
