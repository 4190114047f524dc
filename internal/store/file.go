package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lastwayz/ticketd/internal/domain"
)

// FileBackend persists each partition as a directly readable JSON file under
// one data directory, e.g. <dir>/tickets.json, <dir>/donations.json.
type FileBackend struct {
	dir string
}

// NewFileBackend ensures the data directory exists.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(partition string) string {
	return filepath.Join(b.dir, partition+".json")
}

// Load reads a partition file; a missing file is an empty partition.
func (b *FileBackend) Load(_ context.Context, partition string) (map[string]*domain.TicketRecord, error) {
	data, err := os.ReadFile(b.path(partition))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]*domain.TicketRecord), nil
		}
		return nil, fmt.Errorf("read partition %s: %w", partition, err)
	}
	records := make(map[string]*domain.TicketRecord)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode partition %s: %w", partition, err)
	}
	return records, nil
}

// Save rewrites a partition file through a temp file and rename so readers
// never observe a half-written collection.
func (b *FileBackend) Save(_ context.Context, partition string, records map[string]*domain.TicketRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode partition %s: %w", partition, err)
	}
	tmp, err := os.CreateTemp(b.dir, partition+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, b.path(partition)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
