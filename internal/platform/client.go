package platform

import (
	"context"
	"errors"
	"time"

	"github.com/lastwayz/ticketd/internal/domain"
)

// ErrUnknownChannel is returned by channel operations when the channel no
// longer exists on the platform. Callers treat it as "already gone", never as
// an authoritative signal about record status.
var ErrUnknownChannel = errors.New("unknown channel")

// ChannelRef identifies an externally managed channel.
type ChannelRef struct {
	ID   string
	Name string
}

// Attachment is a file attached to a channel message.
type Attachment struct {
	Name string
	URL  string
}

// Message is one entry of a channel's history. History fetches make no
// ordering guarantee; consumers sort by CreatedAt.
type Message struct {
	ID          string
	AuthorTag   string
	Content     string
	CreatedAt   time.Time
	EmbedTitles []string
	Attachments []Attachment
}

// Client is the platform collaborator the lifecycle core drives. Every call is
// subject to the implementation's own timeout policy; the core treats failures
// as immediate error results.
type Client interface {
	CreateChannel(ctx context.Context, name, parentID string, overwrites []domain.PermissionOverwrite) (ChannelRef, error)
	DeleteChannel(ctx context.Context, channelID, reason string) error
	FetchChannel(ctx context.Context, channelID string) (ChannelRef, error)
	FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
	FetchMemberRoles(ctx context.Context, userID string) ([]string, error)
	SendToChannel(ctx context.Context, channelID, content string) error
	SendDirect(ctx context.Context, userID, content string) error
	SendDirectFile(ctx context.Context, userID, content, filename string, data []byte) error
	SetPermissionOverwrite(ctx context.Context, channelID, subjectID string, allow []string) error
}

// ChannelExists probes channel existence via FetchChannel, mapping
// ErrUnknownChannel to a clean false.
func ChannelExists(ctx context.Context, client Client, channelID string) (bool, error) {
	if _, err := client.FetchChannel(ctx, channelID); err != nil {
		if errors.Is(err, ErrUnknownChannel) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
