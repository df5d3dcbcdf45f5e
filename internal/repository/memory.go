package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepo keeps run history in process. Used when no database is configured.
type MemoryRepo struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{runs: map[string]*Run{}}
}

func (m *MemoryRepo) Create(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, run.ID)
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryRepo) ListAll(_ context.Context, limit int) ([]*Run, error) {
	m.mu.RLock()
	out := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		cp := *run
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryRepo) UpdateStatus(_ context.Context, id, status, errMsg string) error {
	return m.update(id, func(r *Run) {
		r.Status = status
		r.Error = errMsg
	})
}

func (m *MemoryRepo) Complete(_ context.Context, id string, stats json.RawMessage, archiveURL string) error {
	return m.update(id, func(r *Run) {
		r.Status = StatusCompleted
		r.Stats = stats
		r.ArchiveURL = archiveURL
	})
}

func (m *MemoryRepo) update(id string, fn func(*Run)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(run)
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) Ping(context.Context) error { return nil }
func (m *MemoryRepo) Close() error               { return nil }
