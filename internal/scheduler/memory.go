package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory é a implementação em memória do Scheduler, usada em testes e em
// execução single-node sem Redis.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]time.Time)}
}

func (m *Memory) Schedule(_ context.Context, betDetailID string, commence time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[betDetailID] = commence
	return nil
}

func (m *Memory) PopDue(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type entry struct {
		id string
		at time.Time
	}
	var due []entry
	for id, at := range m.entries {
		if !at.After(now) {
			due = append(due, entry{id, at})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })

	out := make([]string, 0, len(due))
	for _, e := range due {
		delete(m.entries, e.id)
		out = append(out, e.id)
	}
	return out, nil
}

func (m *Memory) Remove(_ context.Context, betDetailID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, betDetailID)
	return nil
}
