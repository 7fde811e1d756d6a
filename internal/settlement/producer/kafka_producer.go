package producer

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/radieske/bet-settlement-platform/internal/shared/kafka"
	"github.com/radieske/bet-settlement-platform/pkg/contracts/events"
)

// KafkaPublisher publica os eventos do motor de liquidação
type KafkaPublisher struct {
	settled *kafkago.Writer
	dlq     *kafkago.Writer
}

func NewKafkaPublisher(settled, dlq *kafkago.Writer) *KafkaPublisher {
	return &KafkaPublisher{settled: settled, dlq: dlq}
}

func (p *KafkaPublisher) PublishBetSettled(ctx context.Context, e events.BetSettled) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.settled, e.BetID, b)
}

// PublishSettlementFailed manda o leg esgotado para a DLQ de intervenção manual
func (p *KafkaPublisher) PublishSettlementFailed(ctx context.Context, e events.SettlementFailed) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.dlq, e.BetDetailID, b)
}
