package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scheduler é o conjunto de espera: cada leg pendente fica associado ao
// commence time do seu evento até ser promovido para a fila de liquidação.
// PopDue precisa ser atômico frente a Schedule/Remove concorrentes: um leg
// nunca pode ser promovido e retirado ao mesmo tempo.
type Scheduler interface {
	Schedule(ctx context.Context, betDetailID string, commence time.Time) error
	PopDue(ctx context.Context, now time.Time) ([]string, error)
	Remove(ctx context.Context, betDetailID string) error
}

const waitingKey = "bets:waiting"

// popDueScript remove e retorna, numa única operação, todos os membros com
// score <= now. Rodar no servidor garante promoção exatamente uma vez mesmo
// com iterações de worker sobrepostas.
var popDueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for i = 1, #due do
	redis.call('ZREM', KEYS[1], due[i])
end
return due
`)

// Redis implementa o Scheduler sobre um sorted set, durável entre restarts
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

func (s *Redis) Schedule(ctx context.Context, betDetailID string, commence time.Time) error {
	return s.rdb.ZAdd(ctx, waitingKey, redis.Z{
		Score:  float64(commence.Unix()),
		Member: betDetailID,
	}).Err()
}

func (s *Redis) PopDue(ctx context.Context, now time.Time) ([]string, error) {
	res, err := popDueScript.Run(ctx, s.rdb, []string{waitingKey}, now.Unix()).Result()
	if err != nil {
		return nil, err
	}
	items, ok := res.([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Remove é idempotente: retirar um leg ausente é no-op
func (s *Redis) Remove(ctx context.Context, betDetailID string) error {
	return s.rdb.ZRem(ctx, waitingKey, betDetailID).Err()
}
