package domain

import (
	"fmt"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for ticket records.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "OPEN"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// TicketRecord is the durable record bound to one support channel. Records are
// never deleted; closed tickets remain for statistics and audit.
type TicketRecord struct {
	ID          string       `json:"id"`
	Category    Category     `json:"category"`
	RequesterID string       `json:"requester_id"`
	ChannelID   string       `json:"channel_id"`
	Status      TicketStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ClosedAt    *time.Time   `json:"closed_at,omitempty"`
	ClosedBy    *string      `json:"closed_by,omitempty"`
}

// IsOpen reports whether the record is in its open state.
func (t *TicketRecord) IsOpen() bool {
	return t.Status == TicketStatusOpen
}

// NewTicketID generates a record id from the category prefix and creation time.
func NewTicketID(category Category, createdAt time.Time) string {
	return fmt.Sprintf("%s-%d", strings.ToLower(string(category)), createdAt.UnixMilli())
}

// Duration returns how long the ticket has been (or was) open.
func (t *TicketRecord) Duration(now time.Time) time.Duration {
	if t.ClosedAt != nil {
		return t.ClosedAt.Sub(t.CreatedAt)
	}
	return now.Sub(t.CreatedAt)
}

// FormatDuration renders a duration the way close notifications show it, e.g. "1d 4h 12m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
