package settlequeue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry é o snapshot do leg empilhado na fila de liquidação. Serve para
// agrupar por esporte e localizar o evento; a escrita nunca usa o snapshot,
// o worker sempre reidrata o leg do banco antes de liquidar.
type Entry struct {
	BetDetailID  string    `json:"betDetailId"`
	BetID        string    `json:"betId"`
	EventID      string    `json:"eventId"`
	SportKey     string    `json:"sportKey"`
	Category     string    `json:"category"`
	Status       string    `json:"status"`
	CommenceTime time.Time `json:"commenceTime"`
}

func (e Entry) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

func Unmarshal(raw []byte) (Entry, error) {
	var e Entry
	err := json.Unmarshal(raw, &e)
	return e, err
}

// Queue é a fila FIFO de legs aguardando avaliação de resultado.
// Remove usa igualdade byte a byte do item, como LREM.
type Queue interface {
	Push(ctx context.Context, item []byte) error
	Items(ctx context.Context) ([][]byte, error)
	Remove(ctx context.Context, item []byte) error
	Len(ctx context.Context) (int64, error)
}

const queueKey = "bets:settling"

// Redis implementa a Queue sobre uma lista, durável entre restarts
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

func (q *Redis) Push(ctx context.Context, item []byte) error {
	return q.rdb.LPush(ctx, queueKey, item).Err()
}

func (q *Redis) Items(ctx context.Context) ([][]byte, error) {
	vals, err := q.rdb.LRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (q *Redis) Remove(ctx context.Context, item []byte) error {
	return q.rdb.LRem(ctx, queueKey, 0, item).Err()
}

func (q *Redis) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, queueKey).Result()
}
