// Package prefs holds the per-user booking preferences the engine acts on.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/example/seat-scheduler/internal/config"
)

var ErrNotFound = errors.New("prefs: preference not found")

// Preference is one user's standing booking request.
type Preference struct {
	ID                     int64
	UserID                 string
	AccountID              string
	AccountSecret          string
	RoomID                 int
	StartHour              int
	DurationHours          int
	StartToleranceHours    int
	DurationToleranceHours int
	PreferredSeat          int // 0 means any seat
	NotifyTo               string
	TriggerCron            string // empty uses the process default
	Enabled                bool
}

// Validate checks p against the platform catalog.
func (p Preference) Validate(c *config.Catalog) error {
	var errs []string
	if strings.TrimSpace(p.UserID) == "" {
		errs = append(errs, "user id is required")
	}
	if strings.TrimSpace(p.AccountID) == "" || p.AccountSecret == "" {
		errs = append(errs, "account id and secret are required")
	}
	if _, ok := c.Room(p.RoomID); !ok {
		errs = append(errs, fmt.Sprintf("room %d is not offered", p.RoomID))
	}
	h := c.Hours
	if p.StartHour < h.Open || p.StartHour > h.LatestStart {
		errs = append(errs, fmt.Sprintf("start hour must be between %d and %d", h.Open, h.LatestStart))
	}
	if p.DurationHours < 1 || p.StartHour+p.DurationHours > h.Close {
		errs = append(errs, fmt.Sprintf("booking must end by %d:00", h.Close))
	}
	if p.StartToleranceHours < 0 || p.StartToleranceHours > c.Limits.MaxStartTolerance {
		errs = append(errs, fmt.Sprintf("start tolerance must be between 0 and %d", c.Limits.MaxStartTolerance))
	}
	if p.DurationToleranceHours < 0 || p.DurationToleranceHours > c.Limits.MaxDurationTolerance {
		errs = append(errs, fmt.Sprintf("duration tolerance must be between 0 and %d", c.Limits.MaxDurationTolerance))
	}
	if p.PreferredSeat < 0 {
		errs = append(errs, "preferred seat must not be negative")
	}
	if p.TriggerCron != "" {
		if _, err := cron.ParseStandard(p.TriggerCron); err != nil {
			errs = append(errs, fmt.Sprintf("trigger cron: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("prefs: invalid preference: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Store is read access to preferences.
type Store interface {
	Get(ctx context.Context, id int64) (Preference, error)
	List(ctx context.Context) ([]Preference, error)
}

// MemStore keeps preferences in memory.
type MemStore struct {
	mu    sync.RWMutex
	next  int64
	items map[int64]Preference
}

func NewMemStore(ps ...Preference) *MemStore {
	m := &MemStore{items: map[int64]Preference{}}
	for _, p := range ps {
		m.Put(p)
	}
	return m
}

// Put stores p, assigning an id when p.ID is zero.
func (m *MemStore) Put(p Preference) Preference {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.next++
		p.ID = m.next
	} else if p.ID > m.next {
		m.next = p.ID
	}
	m.items[p.ID] = p
	return p
}

func (m *MemStore) Get(_ context.Context, id int64) (Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.items[id]
	if !ok {
		return Preference{}, ErrNotFound
	}
	return p, nil
}

func (m *MemStore) List(_ context.Context) ([]Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Preference, 0, len(m.items))
	for _, p := range m.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
