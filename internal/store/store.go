package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lastwayz/ticketd/internal/domain"
	apperrors "github.com/lastwayz/ticketd/pkg/util"
)

// Backend persists one partition's full record collection. Saves are
// whole-partition rewrites; there is no incremental update.
type Backend interface {
	Load(ctx context.Context, partition string) (map[string]*domain.TicketRecord, error)
	Save(ctx context.Context, partition string, records map[string]*domain.TicketRecord) error
}

// RecordStore owns the in-memory ticket collections, one partition per
// category. It is the sole in-process source of truth; the external channel's
// existence is reconciled by the engine, never trusted for status.
type RecordStore struct {
	mu      sync.RWMutex
	backend Backend
	logger  *zap.Logger
	records map[string]map[string]*domain.TicketRecord
}

// NewRecordStore builds a store over the given backend.
func NewRecordStore(backend Backend, logger *zap.Logger) *RecordStore {
	return &RecordStore{
		backend: backend,
		logger:  logger,
		records: make(map[string]map[string]*domain.TicketRecord),
	}
}

// LoadAll hydrates the named partitions from the backend. A partition the
// backend has never seen loads empty.
func (s *RecordStore) LoadAll(ctx context.Context, partitions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, partition := range partitions {
		records, err := s.backend.Load(ctx, partition)
		if err != nil {
			return err
		}
		if records == nil {
			records = make(map[string]*domain.TicketRecord)
		}
		s.records[partition] = records
	}
	return nil
}

// Insert adds a new record and persists its partition. The record is retained
// in memory even when the save fails, so a persistence error is reported but
// does not undo the insertion.
func (s *RecordStore) Insert(ctx context.Context, partition string, record *domain.TicketRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records[partition] == nil {
		s.records[partition] = make(map[string]*domain.TicketRecord)
	}
	clone := *record
	s.records[partition][record.ID] = &clone
	return s.saveLocked(ctx, partition)
}

// CloseRecord performs the one-way Open→Closed transition and persists the
// partition. A record already closed yields an AlreadyClosed error without any
// further mutation.
func (s *RecordStore) CloseRecord(ctx context.Context, partition, id, closedBy string, closedAt time.Time) (domain.TicketRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[partition][id]
	if !ok {
		return domain.TicketRecord{}, apperrors.NewNotATicketChannel(id)
	}
	if !record.IsOpen() {
		return *record, apperrors.NewAlreadyClosed(record.ID)
	}
	record.Status = domain.TicketStatusClosed
	record.ClosedAt = &closedAt
	record.ClosedBy = &closedBy
	saved := *record
	return saved, s.saveLocked(ctx, partition)
}

// FindOpenByRequester returns a copy of the requester's open record in the
// partition, if any.
func (s *RecordStore) FindOpenByRequester(partition, requesterID string) (domain.TicketRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.records[partition] {
		if record.RequesterID == requesterID && record.IsOpen() {
			return *record, true
		}
	}
	return domain.TicketRecord{}, false
}

// FindByChannel locates the record bound to a channel across all partitions.
func (s *RecordStore) FindByChannel(channelID string) (domain.TicketRecord, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for partition, records := range s.records {
		for _, record := range records {
			if record.ChannelID == channelID {
				return *record, partition, true
			}
		}
	}
	return domain.TicketRecord{}, "", false
}

// Snapshot returns copies of every record in a partition.
func (s *RecordStore) Snapshot(partition string) []domain.TicketRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TicketRecord, 0, len(s.records[partition]))
	for _, record := range s.records[partition] {
		out = append(out, *record)
	}
	return out
}

// FlushAll rewrites every partition, used on shutdown.
func (s *RecordStore) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for partition := range s.records {
		if err := s.saveLocked(ctx, partition); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *RecordStore) saveLocked(ctx context.Context, partition string) error {
	if err := s.backend.Save(ctx, partition, s.records[partition]); err != nil {
		s.logger.Error("record store save failed", zap.String("partition", partition), zap.Error(err))
		return apperrors.NewPersistenceError(err)
	}
	return nil
}
