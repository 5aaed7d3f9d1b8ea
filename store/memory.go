package store

import (
	"context"
	"sort"
	"sync"

	"shortgen/types"
)

// Memory is the default Store: a mutex-guarded map that lives for the
// process lifetime. Snapshots are deep copies, so a reader holding one is
// never affected by later stage updates.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*types.Job
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*types.Job)}
}

func (m *Memory) Create(_ context.Context, job *types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return ErrDuplicate
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (m *Memory) Update(_ context.Context, id string, fn func(*types.Job) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	return fn(job)
}

func (m *Memory) List(_ context.Context) ([]*types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
