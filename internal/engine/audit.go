package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lastwayz/ticketd/internal/events"
	"github.com/lastwayz/ticketd/internal/platform"
)

// AuditService mirrors lifecycle events into the configured log channel so
// staff get an audit trail of creations, closures and schedule changes.
// Delivery is best effort; a missing or unreachable log channel never affects
// the operation that produced the event.
type AuditService struct {
	dispatcher   events.Dispatcher
	client       platform.Client
	logger       *zap.Logger
	logChannelID string
}

// NewAuditService creates the service. An empty logChannelID disables channel
// delivery, leaving only structured logs.
func NewAuditService(dispatcher events.Dispatcher, client platform.Client, logger *zap.Logger, logChannelID string) *AuditService {
	return &AuditService{
		dispatcher:   dispatcher,
		client:       client,
		logger:       logger,
		logChannelID: logChannelID,
	}
}

// RegisterHandlers subscribes to lifecycle events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketCreated, a.handleTicketCreated)
	a.dispatcher.Subscribe(events.EventTicketClosed, a.handleTicketClosed)
	a.dispatcher.Subscribe(events.EventParticipantAdded, a.handleParticipantAdded)
	a.dispatcher.Subscribe(events.EventScheduleToggled, a.handleScheduleToggled)
	a.dispatcher.Subscribe(events.EventChannelDeleted, a.handleChannelDeleted)
}

func (a *AuditService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	a.logger.Info("ticket created",
		zap.String("ticket_id", event.TicketID),
		zap.String("category", string(payload.Category)),
		zap.String("requester_id", payload.RequesterID),
		zap.String("channel_id", payload.ChannelID))
	a.announce(ctx, fmt.Sprintf("New %s ticket %s opened by <@%s> in <#%s>",
		payload.Category, event.TicketID, payload.RequesterID, payload.ChannelID))
	return nil
}

func (a *AuditService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return nil
	}
	a.logger.Info("ticket closed",
		zap.String("ticket_id", event.TicketID),
		zap.String("closed_by", payload.ClosedBy),
		zap.String("duration", payload.Duration),
		zap.Bool("channel_absent", payload.ChannelAbsent))
	transcriptNote := "transcript sent by DM"
	if !payload.Transcript {
		transcriptNote = "no transcript"
	}
	a.announce(ctx, fmt.Sprintf("Ticket %s closed by <@%s> after %s (%s)",
		event.TicketID, payload.ClosedBy, payload.Duration, transcriptNote))
	return nil
}

func (a *AuditService) handleParticipantAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ParticipantAddedPayload)
	if !ok {
		return nil
	}
	a.logger.Info("participant added",
		zap.String("ticket_id", event.TicketID),
		zap.String("target_id", payload.TargetID),
		zap.String("actor_id", event.ActorID))
	return nil
}

func (a *AuditService) handleScheduleToggled(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ScheduleToggledPayload)
	if !ok {
		return nil
	}
	a.logger.Info("schedule toggled",
		zap.String("actor_id", event.ActorID),
		zap.Bool("previous", payload.Previous),
		zap.Bool("current", payload.Current))
	state := "disabled (24/7)"
	if payload.Current {
		state = fmt.Sprintf("enabled (%02d:00-%02d:00)", payload.StartHour, payload.EndHour)
	}
	a.announce(ctx, fmt.Sprintf("<@%s> set ticket schedule to %s", event.ActorID, state))
	return nil
}

func (a *AuditService) handleChannelDeleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ChannelDeletedPayload)
	if !ok {
		return nil
	}
	a.logger.Info("ticket channel deleted",
		zap.String("channel_id", payload.ChannelID),
		zap.Bool("already_gone", payload.AlreadyGone))
	return nil
}

func (a *AuditService) announce(ctx context.Context, content string) {
	if a.logChannelID == "" {
		return
	}
	if err := a.client.SendToChannel(ctx, a.logChannelID, content); err != nil {
		a.logger.Warn("audit log delivery failed", zap.Error(err))
	}
}
