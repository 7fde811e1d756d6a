package producer

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/radieske/bet-settlement-platform/internal/shared/kafka"
	"github.com/radieske/bet-settlement-platform/pkg/contracts/events"
)

type KafkaPublisher struct {
	writer *kafkago.Writer
}

func NewKafkaPublisher(w *kafkago.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// PublishBetPlaced emite o evento de colocação, chaveado pelo id da aposta
func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.writer, e.BetID, b)
}
