package events

import (
	"time"

	"github.com/lastwayz/ticketd/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketClosed     EventType = "ticket_closed"
	EventParticipantAdded EventType = "participant_added"
	EventScheduleToggled  EventType = "schedule_toggled"
	EventChannelDeleted   EventType = "channel_deleted"
)

// Event represents a lifecycle event emitted by the engine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Category    domain.Category `json:"category"`
	RequesterID string          `json:"requester_id"`
	ChannelID   string          `json:"channel_id"`
	ChannelName string          `json:"channel_name"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Category      domain.Category `json:"category"`
	RequesterID   string          `json:"requester_id"`
	ChannelID     string          `json:"channel_id"`
	ClosedBy      string          `json:"closed_by"`
	Duration      string          `json:"duration"`
	ChannelAbsent bool            `json:"channel_absent"`
	Transcript    bool            `json:"transcript"`
}

// ParticipantAddedPayload payload.
type ParticipantAddedPayload struct {
	ChannelID string `json:"channel_id"`
	TargetID  string `json:"target_id"`
}

// ScheduleToggledPayload payload.
type ScheduleToggledPayload struct {
	Previous  bool `json:"previous"`
	Current   bool `json:"current"`
	StartHour int  `json:"start_hour"`
	EndHour   int  `json:"end_hour"`
}

// ChannelDeletedPayload payload.
type ChannelDeletedPayload struct {
	ChannelID   string `json:"channel_id"`
	AlreadyGone bool   `json:"already_gone"`
}
