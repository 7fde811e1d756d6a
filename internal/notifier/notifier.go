package notifier

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Tipos de alerta publicados no canal de notificações.
const (
	KindBetPlaced       = "BET_PLACED"
	KindBetWon          = "BET_WON"
	KindBetLost         = "BET_LOST"
	KindBetDrawn        = "BET_DRAWN"
	KindBetFailed       = "BET_FAILED"
	KindBetRedeemed     = "BET_REDEEMED"
	KindBetRedeemFailed = "BET_REDEEMED_FAILED"
	KindCredits         = "CREDITS"
	KindArrears         = "CREDIT_ARREARS"
)

// Alert é o payload entregue à camada de push para jogador e agente.
type Alert struct {
	Type          string       `json:"type"`
	Player        AlertPlayer  `json:"player"`
	Agent         string       `json:"agent"`
	BetID         string       `json:"betId,omitempty"`
	CreditsCents  *int64       `json:"credits_cents,omitempty"`
	PlayerMessage string       `json:"playerMessage"`
	AgentMessage  string       `json:"agentMessage"`
}

type AlertPlayer struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// Notifier publica alertas no pub/sub Redis, best-effort: falha é logada e
// nunca bloqueia colocação ou liquidação.
type Notifier struct {
	log     *zap.Logger
	rdb     *redis.Client
	channel string
	live    string
}

func New(log *zap.Logger, rdb *redis.Client, notifChannel, liveChannel string) *Notifier {
	return &Notifier{log: log, rdb: rdb, channel: notifChannel, live: liveChannel}
}

// Notify envia o alerta para jogador e agente (fire-and-forget)
func (n *Notifier) Notify(ctx context.Context, a Alert) {
	payload, err := json.Marshal(a)
	if err != nil {
		n.log.Error("marshal alert", zap.Error(err))
		return
	}
	if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.log.Warn("publish alert failed",
			zap.String("type", a.Type),
			zap.String("betId", a.BetID),
			zap.Error(err))
	}
}

// NotifyCredits empurra o saldo atualizado para o jogador
func (n *Notifier) NotifyCredits(ctx context.Context, playerID, username, agentID string, creditsCents int64) {
	n.Notify(ctx, Alert{
		Type:         KindCredits,
		Player:       AlertPlayer{ID: playerID, Username: username},
		Agent:        agentID,
		CreditsCents: &creditsCents,
	})
}

// LiveTick sinaliza a camada de odds para atualizar as salas ativas
func (n *Notifier) LiveTick(ctx context.Context) {
	if err := n.rdb.Publish(ctx, n.live, "true").Err(); err != nil {
		n.log.Warn("publish live tick failed", zap.Error(err))
	}
}
