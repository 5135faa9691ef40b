package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore keeps tasks in process memory.
type MemStore struct {
	mu    sync.Mutex
	tasks map[string]Task
}

func NewMemStore() *MemStore { return &MemStore{tasks: map[string]Task{}} }

func (m *MemStore) Insert(_ context.Context, t Task) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return false, nil
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	m.tasks[t.ID] = t
	return true, nil
}

func (m *MemStore) Get(_ context.Context, id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (m *MemStore) Update(_ context.Context, t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tasks[t.ID]
	if !ok {
		return ErrNotFound
	}
	t.CreatedAt = old.CreatedAt
	t.UpdatedAt = time.Now()
	m.tasks[t.ID] = t
	return nil
}

func (m *MemStore) Reschedule(_ context.Context, id string, from, to time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || !t.RunAt.Equal(from) {
		return false, nil
	}
	t.RunAt = to
	t.UpdatedAt = time.Now()
	m.tasks[id] = t
	return true, nil
}

func (m *MemStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *MemStore) Due(_ context.Context, now time.Time, limit int) ([]Task, error) {
	var out []Task
	for _, t := range m.sorted() {
		if t.Paused || t.RunAt.After(now) {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) List(context.Context) ([]Task, error) {
	return m.sorted(), nil
}

func (m *MemStore) sorted() []Task {
	m.mu.Lock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RunAt.Equal(out[j].RunAt) {
			return out[i].RunAt.Before(out[j].RunAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
