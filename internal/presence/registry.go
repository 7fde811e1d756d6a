package presence

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Registry responde se um jogador está conectado ao canal em tempo real.
// A camada de push (fora deste módulo) registra/desregistra conexões aqui;
// o bet-service só consulta IsOnline antes de aceitar uma aposta.
type Registry interface {
	Register(ctx context.Context, playerID string) error
	Unregister(ctx context.Context, playerID string) error
	IsOnline(ctx context.Context, playerID string) (bool, error)
}

const onlineKey = "players:online"

// Redis implementa o Registry num set compartilhado entre processos
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

func (r *Redis) Register(ctx context.Context, playerID string) error {
	return r.rdb.SAdd(ctx, onlineKey, playerID).Err()
}

func (r *Redis) Unregister(ctx context.Context, playerID string) error {
	return r.rdb.SRem(ctx, onlineKey, playerID).Err()
}

func (r *Redis) IsOnline(ctx context.Context, playerID string) (bool, error) {
	return r.rdb.SIsMember(ctx, onlineKey, playerID).Result()
}

// Memory implementa o Registry num mapa protegido por mutex (testes/single-node)
type Memory struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

func NewMemory() *Memory { return &Memory{online: make(map[string]struct{})} }

func (m *Memory) Register(_ context.Context, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[playerID] = struct{}{}
	return nil
}

func (m *Memory) Unregister(_ context.Context, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.online, playerID)
	return nil
}

func (m *Memory) IsOnline(_ context.Context, playerID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.online[playerID]
	return ok, nil
}
