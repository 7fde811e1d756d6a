package settlequeue

import (
	"bytes"
	"context"
	"sync"
)

// Memory é a fila em memória, usada em testes
type Memory struct {
	mu    sync.Mutex
	items [][]byte
}

func NewMemory() *Memory { return &Memory{} }

func (q *Memory) Push(_ context.Context, item []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := make([]byte, len(item))
	copy(cp, item)
	q.items = append(q.items, cp)
	return nil
}

func (q *Memory) Items(_ context.Context) ([][]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, len(q.items))
	copy(out, q.items)
	return out, nil
}

func (q *Memory) Remove(_ context.Context, item []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	for _, it := range q.items {
		if !bytes.Equal(it, item) {
			kept = append(kept, it)
		}
	}
	q.items = kept
	return nil
}

func (q *Memory) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}
