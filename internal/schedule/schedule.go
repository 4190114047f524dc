package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Policy is the time-window rule for ticket creation. When disabled the gate
// is always open (24/7 mode); otherwise the current local hour must fall in
// the half-open interval [StartHour, EndHour).
type Policy struct {
	Enabled   bool `json:"enabled"`
	StartHour int  `json:"start_hour"`
	EndHour   int  `json:"end_hour"`
}

// AllowedAt reports whether ticket creation is permitted at t.
func (p Policy) AllowedAt(t time.Time) bool {
	if !p.Enabled {
		return true
	}
	hour := t.Hour()
	return hour >= p.StartHour && hour < p.EndHour
}

// PolicyStore holds the current policy and rewrites its file whenever the
// schedule is toggled.
type PolicyStore struct {
	mu     sync.Mutex
	path   string
	policy Policy
}

// NewPolicyStore loads the policy file, falling back to the given defaults
// when no file exists yet.
func NewPolicyStore(path string, fallback Policy) (*PolicyStore, error) {
	s := &PolicyStore{path: path, policy: fallback}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read schedule policy: %w", err)
	}
	if err := json.Unmarshal(data, &s.policy); err != nil {
		return nil, fmt.Errorf("decode schedule policy: %w", err)
	}
	return s, nil
}

// Current returns the active policy.
func (s *PolicyStore) Current() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// SetEnabled toggles schedule enforcement, persists the policy, and returns
// the previous and new state so the caller can confirm both to the actor.
func (s *PolicyStore) SetEnabled(enabled bool) (previous, current Policy, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous = s.policy
	s.policy.Enabled = enabled
	if err = s.writeLocked(); err != nil {
		s.policy = previous
		return previous, previous, err
	}
	return previous, s.policy, nil
}

func (s *PolicyStore) writeLocked() error {
	data, err := json.MarshalIndent(s.policy, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "schedule-*.tmp")
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
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
