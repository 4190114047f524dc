package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lastwayz/ticketd/internal/events"
	"github.com/lastwayz/ticketd/internal/platform"
)

// Journal optionally persists pending deletions so they survive a restart.
type Journal interface {
	Record(ctx context.Context, channelID string, due time.Time) error
	Remove(ctx context.Context, channelID string) error
	Pending(ctx context.Context) (map[string]time.Time, error)
}

// DeletionScheduler runs the deferred destruction of closed ticket channels.
// Timers hold no locks while executing; because arbitrary time passes between
// scheduling and firing, execution re-probes channel existence and treats
// "already gone" as success.
type DeletionScheduler struct {
	client     platform.Client
	dispatcher events.Dispatcher
	logger     *zap.Logger
	journal    Journal
	delay      time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	done    bool
}

// New builds a scheduler. journal may be nil, in which case pending deletions
// are lost on restart and the orphaned channel outlives its timer.
func New(client platform.Client, dispatcher events.Dispatcher, logger *zap.Logger, journal Journal, delay time.Duration) *DeletionScheduler {
	return &DeletionScheduler{
		client:     client,
		dispatcher: dispatcher,
		logger:     logger,
		journal:    journal,
		delay:      delay,
		pending:    make(map[string]*time.Timer),
	}
}

// Schedule queues a channel for deletion after the configured delay.
// Re-scheduling an already pending channel is a no-op.
func (s *DeletionScheduler) Schedule(channelID, reason string) {
	s.scheduleAfter(channelID, reason, s.delay)
}

func (s *DeletionScheduler) scheduleAfter(channelID, reason string, delay time.Duration) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	if _, exists := s.pending[channelID]; exists {
		s.mu.Unlock()
		return
	}
	due := time.Now().Add(delay)
	timer := time.AfterFunc(delay, func() {
		s.execute(channelID, reason)
	})
	s.pending[channelID] = timer
	s.mu.Unlock()

	if s.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.journal.Record(ctx, channelID, due); err != nil {
			s.logger.Warn("deletion journal record failed",
				zap.String("channel_id", channelID), zap.Error(err))
		}
	}

	s.logger.Info("channel deletion scheduled",
		zap.String("channel_id", channelID), zap.Time("due", due))
}

// Cancel drops a pending deletion if one exists.
func (s *DeletionScheduler) Cancel(channelID string) {
	s.mu.Lock()
	timer, ok := s.pending[channelID]
	if ok {
		timer.Stop()
		delete(s.pending, channelID)
	}
	s.mu.Unlock()
	if ok {
		s.removeJournaled(channelID)
	}
}

func (s *DeletionScheduler) execute(channelID, reason string) {
	s.mu.Lock()
	delete(s.pending, channelID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	alreadyGone := false
	exists, err := platform.ChannelExists(ctx, s.client, channelID)
	switch {
	case err != nil:
		s.logger.Error("deletion existence probe failed",
			zap.String("channel_id", channelID), zap.Error(err))
		s.removeJournaled(channelID)
		return
	case !exists:
		alreadyGone = true
	default:
		if err := s.client.DeleteChannel(ctx, channelID, reason); err != nil {
			if errors.Is(err, platform.ErrUnknownChannel) {
				alreadyGone = true
			} else {
				s.logger.Error("channel deletion failed",
					zap.String("channel_id", channelID), zap.Error(err))
				s.removeJournaled(channelID)
				return
			}
		}
	}

	s.removeJournaled(channelID)
	s.logger.Info("channel deletion finished",
		zap.String("channel_id", channelID), zap.Bool("already_gone", alreadyGone))

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			Type:      events.EventChannelDeleted,
			Timestamp: time.Now(),
			Payload: events.ChannelDeletedPayload{
				ChannelID:   channelID,
				AlreadyGone: alreadyGone,
			},
		})
	}
}

// Recover reschedules journaled deletions after a restart. Entries already
// past due run after a short grace period.
func (s *DeletionScheduler) Recover(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}
	pending, err := s.journal.Pending(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for channelID, due := range pending {
		delay := due.Sub(now)
		if delay < 5*time.Second {
			delay = 5 * time.Second
		}
		s.scheduleAfter(channelID, "ticket closed (recovered deletion)", delay)
	}
	if len(pending) > 0 {
		s.logger.Info("recovered pending channel deletions", zap.Int("count", len(pending)))
	}
	return nil
}

// Shutdown stops all pending timers. Journaled entries remain for the next
// start; unjournaled ones lapse.
func (s *DeletionScheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	for channelID, timer := range s.pending {
		timer.Stop()
		delete(s.pending, channelID)
	}
}

func (s *DeletionScheduler) removeJournaled(channelID string) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.Remove(ctx, channelID); err != nil {
		s.logger.Warn("deletion journal remove failed",
			zap.String("channel_id", channelID), zap.Error(err))
	}
}
