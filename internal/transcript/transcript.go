package transcript

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lastwayz/ticketd/internal/platform"
)

// DefaultMessageLimit bounds how much history is pulled into a transcript.
const DefaultMessageLimit = 100

const timestampLayout = "2006-01-02 15:04:05"

// Artifact is the deterministic plain-text rendering of a channel's history.
type Artifact struct {
	ChannelName string
	GeneratedAt time.Time
	Content     string

	// Placeholder marks an artifact produced after a failed history fetch.
	Placeholder bool
}

// FileName returns the attachment name used when delivering the artifact.
func (a Artifact) FileName() string {
	return fmt.Sprintf("transcript-%s.txt", a.ChannelName)
}

// Archiver renders channel histories into artifacts.
type Archiver struct {
	client platform.Client
	logger *zap.Logger
	limit  int
	now    func() time.Time
}

// NewArchiver builds an archiver over the platform client.
func NewArchiver(client platform.Client, logger *zap.Logger, limit int) *Archiver {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	return &Archiver{client: client, logger: logger, limit: limit, now: time.Now}
}

// WithClock overrides the archiver's clock, for tests.
func (a *Archiver) WithClock(now func() time.Time) *Archiver {
	a.now = now
	return a
}

// Build fetches up to the configured window of recent messages, sorts them by
// creation time ascending (history fetches guarantee no order), and renders
// the document. A failed fetch degrades to a placeholder artifact; Build
// never fails.
func (a *Archiver) Build(ctx context.Context, channel platform.ChannelRef) Artifact {
	generatedAt := a.now()
	messages, err := a.client.FetchRecentMessages(ctx, channel.ID, a.limit)
	if err != nil {
		a.logger.Warn("transcript history fetch failed",
			zap.String("channel_id", channel.ID), zap.Error(err))
		return Artifact{
			ChannelName: channel.Name,
			GeneratedAt: generatedAt,
			Content:     fmt.Sprintf("TICKET TRANSCRIPT: %s\nTranscript unavailable: %v\n", channel.Name, err),
			Placeholder: true,
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "TICKET TRANSCRIPT: %s\n", channel.Name)
	fmt.Fprintf(&b, "Generated: %s\n", generatedAt.Format(timestampLayout))
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n\n")

	for _, msg := range messages {
		fmt.Fprintf(&b, "[%s] %s: %s\n", msg.CreatedAt.Format(timestampLayout), msg.AuthorTag, msg.Content)
		for _, title := range msg.EmbedTitles {
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(&b, "  embed: %s\n", title)
		}
		for _, att := range msg.Attachments {
			fmt.Fprintf(&b, "  file: %s (%s)\n", att.Name, att.URL)
		}
	}

	return Artifact{
		ChannelName: channel.Name,
		GeneratedAt: generatedAt,
		Content:     b.String(),
	}
}
