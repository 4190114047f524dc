package dto

import (
	"time"

	"github.com/lastwayz/ticketd/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	RequesterID string          `json:"requester_id"`
	Category    domain.Category `json:"category"`
}

// CloseTicketRequest payload.
type CloseTicketRequest struct {
	ChannelID string `json:"channel_id"`
}

// AddParticipantRequest payload.
type AddParticipantRequest struct {
	ChannelID string `json:"channel_id"`
	TargetID  string `json:"target_id"`
}

// NotifyRequest payload.
type NotifyRequest struct {
	ChannelID string `json:"channel_id"`
}

// ToggleScheduleRequest payload.
type ToggleScheduleRequest struct {
	Enabled *bool `json:"enabled"`
}

// AnnounceEntryRequest payload.
type AnnounceEntryRequest struct {
	ChannelID string `json:"channel_id"`
}

// TicketResponse mirrors a ticket record.
type TicketResponse struct {
	ID          string              `json:"id"`
	Category    domain.Category     `json:"category"`
	RequesterID string              `json:"requester_id"`
	ChannelID   string              `json:"channel_id"`
	Status      domain.TicketStatus `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	ClosedAt    *time.Time          `json:"closed_at,omitempty"`
	ClosedBy    *string             `json:"closed_by,omitempty"`
}

// CreateTicketResponse response.
type CreateTicketResponse struct {
	Ticket      TicketResponse `json:"ticket"`
	ChannelID   string         `json:"channel_id"`
	ChannelName string         `json:"channel_name"`
	Warnings    []string       `json:"warnings,omitempty"`
}

// CloseTicketResponse response.
type CloseTicketResponse struct {
	Ticket     TicketResponse `json:"ticket"`
	Transcript string         `json:"transcript,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// FromRecord maps a domain record into its response shape.
func FromRecord(record domain.TicketRecord) TicketResponse {
	return TicketResponse{
		ID:          record.ID,
		Category:    record.Category,
		RequesterID: record.RequesterID,
		ChannelID:   record.ChannelID,
		Status:      record.Status,
		CreatedAt:   record.CreatedAt,
		ClosedAt:    record.ClosedAt,
		ClosedBy:    record.ClosedBy,
	}
}
