package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-platform/internal/ledger"
	"github.com/radieske/bet-settlement-platform/internal/notifier"
	"github.com/radieske/bet-settlement-platform/pkg/contracts/events"
)

// Ledger é a fatia da persistência usada pelo motor de liquidação
type Ledger interface {
	GetBet(ctx context.Context, id string) (*ledger.Bet, error)
	GetBetDetail(ctx context.Context, id string) (*ledger.BetDetail, error)
	DetailsForBet(ctx context.Context, betID string) ([]*ledger.BetDetail, error)
	GetPlayer(ctx context.Context, id string) (*ledger.Player, error)
	UpdateDetailStatus(ctx context.Context, id, status string, resolved bool) error
	UpdateBetStatus(ctx context.Context, id, status string, resolved bool) error
	IncrementBetRetry(ctx context.Context, id string) error
	PayoutWin(ctx context.Context, betID, status string) (paid bool, newBalance int64, err error)
	FlipToLost(ctx context.Context, betID string) (reversed bool, arrears bool, newBalance int64, err error)
	UpsertScore(ctx context.Context, s *ledger.Score) error
}

// Alerts é o contrato mínimo do push para jogador/agente
type Alerts interface {
	Notify(ctx context.Context, a notifier.Alert)
	NotifyCredits(ctx context.Context, playerID, username, agentID string, creditsCents int64)
}

// SettledPublisher publica o evento bet_settled para consumidores externos
type SettledPublisher interface {
	PublishBetSettled(ctx context.Context, e events.BetSettled) error
}

// Reconciler deriva o status da aposta pai a partir dos legs e aplica as
// mutações de crédito resultantes. Invocado após qualquer leg terminal,
// venha ele da liquidação automática, do resgate ou do override de admin.
type Reconciler struct {
	Log    *zap.Logger
	Ledger Ledger
	Alerts Alerts
	Events SettledPublisher // opcional

	OnPayout func(status string) // métricas
}

// Reconcile aplica a ordem de resolução: anyLost > anyFailed >
// (anyDrawn e seleção não-Draw) > allWon > (allDrawn e seleção Draw) > pendente.
func (r *Reconciler) Reconcile(ctx context.Context, betID string) error {
	bet, err := r.Ledger.GetBet(ctx, betID)
	if err != nil {
		return fmt.Errorf("load parent bet: %w", err)
	}
	details, err := r.Ledger.DetailsForBet(ctx, betID)
	if err != nil {
		return fmt.Errorf("load bet details: %w", err)
	}
	if len(details) == 0 {
		return fmt.Errorf("bet %s has no details", betID)
	}
	player, err := r.Ledger.GetPlayer(ctx, bet.PlayerID)
	if err != nil {
		return fmt.Errorf("load player: %w", err)
	}

	var anyLost, anyFailed, anyDrawn bool
	allWon, allDrawn, betOnDraw := true, true, true
	for _, d := range details {
		switch d.Status {
		case ledger.StatusLost:
			anyLost = true
		case ledger.StatusFailed:
			anyFailed = true
		case ledger.StatusDraw:
			anyDrawn = true
		}
		if d.Status != ledger.StatusWon {
			allWon = false
		}
		if d.Status != ledger.StatusDraw {
			allDrawn = false
		}
		if !strings.EqualFold(d.Selection, "draw") {
			betOnDraw = false
		}
	}

	switch {
	case anyLost:
		return r.settleLost(ctx, bet, player)

	case anyFailed:
		if err := r.Ledger.UpdateBetStatus(ctx, bet.ID, ledger.StatusFailed, false); err != nil {
			return err
		}
		r.Alerts.Notify(ctx, notifier.Alert{
			Type:          notifier.KindBetFailed,
			Player:        notifier.AlertPlayer{ID: player.ID, Username: player.Username},
			Agent:         player.AgentID,
			BetID:         bet.ID,
			PlayerMessage: "Bet failed! We have raised a ticket to your agent. You can contact your agent for further assistance.",
			AgentMessage:  fmt.Sprintf("Player %s's bet has failed. Please resolve the bet as soon as possible.", player.Username),
		})
		r.publishSettled(ctx, bet, ledger.StatusFailed, 0)
		return nil

	case anyDrawn && !betOnDraw:
		// Push num leg de seleção não-Draw invalida o combo inteiro
		return r.settleLost(ctx, bet, player)

	case allWon:
		return r.settleCredit(ctx, bet, player, ledger.StatusWon)

	case allDrawn && betOnDraw:
		return r.settleCredit(ctx, bet, player, ledger.StatusDraw)

	default:
		// Legs ainda pendentes: aposta pai continua em aberto
		if err := r.Ledger.UpdateBetStatus(ctx, bet.ID, bet.Status, false); err != nil {
			return err
		}
		r.Log.Debug("parent bet not yet resolvable", zap.String("betId", bet.ID))
		return nil
	}
}

// settleLost vira a aposta para lost, estornando o payout se já havia sido
// creditado. Saldo insuficiente vira registro de arrears + alerta operacional,
// nunca um saldo negativo.
func (r *Reconciler) settleLost(ctx context.Context, bet *ledger.Bet, player *ledger.Player) error {
	if bet.Status == ledger.StatusLost && bet.Resolved {
		// já liquidada como perdida; legs irmãos liquidando depois não renotificam
		return nil
	}

	reversed, arrears, newBal, err := r.Ledger.FlipToLost(ctx, bet.ID)
	if err != nil {
		return err
	}

	r.Alerts.Notify(ctx, notifier.Alert{
		Type:          notifier.KindBetLost,
		Player:        notifier.AlertPlayer{ID: player.ID, Username: player.Username},
		Agent:         player.AgentID,
		BetID:         bet.ID,
		PlayerMessage: fmt.Sprintf("Unfortunately, you lost your bet (ID: %s). Better luck next time!", bet.ID),
		AgentMessage:  fmt.Sprintf("A player's bet (ID: %s) has lost. Please review the details.", bet.ID),
	})
	if reversed {
		r.Alerts.NotifyCredits(ctx, player.ID, player.Username, player.AgentID, newBal)
	}
	if arrears {
		r.Alerts.Notify(ctx, notifier.Alert{
			Type:          notifier.KindArrears,
			Player:        notifier.AlertPlayer{ID: player.ID, Username: player.Username},
			Agent:         player.AgentID,
			BetID:         bet.ID,
			PlayerMessage: "",
			AgentMessage: fmt.Sprintf(
				"Reversal of %d cents on bet %s could not be applied: insufficient credits. An arrears record was created.",
				bet.PayoutCents, bet.ID),
		})
		r.Log.Warn("reversal skipped, arrears recorded",
			zap.String("betId", bet.ID),
			zap.Int64("payout_cents", bet.PayoutCents))
	}

	if r.OnPayout != nil {
		r.OnPayout(ledger.StatusLost)
	}
	r.publishSettled(ctx, bet, ledger.StatusLost, 0)
	return nil
}

// settleCredit paga o payout exatamente uma vez (guardado pela flag resolved)
func (r *Reconciler) settleCredit(ctx context.Context, bet *ledger.Bet, player *ledger.Player, status string) error {
	paid, newBal, err := r.Ledger.PayoutWin(ctx, bet.ID, status)
	if err != nil {
		return err
	}
	if !paid {
		// Já resolvida antes: nada a creditar, nada a notificar
		return nil
	}

	kind := notifier.KindBetWon
	verb := "won"
	if status == ledger.StatusDraw {
		kind = notifier.KindBetDrawn
		verb = "drawn"
	}
	r.Alerts.Notify(ctx, notifier.Alert{
		Type:   kind,
		Player: notifier.AlertPlayer{ID: player.ID, Username: player.Username},
		Agent:  player.AgentID,
		BetID:  bet.ID,
		PlayerMessage: fmt.Sprintf("Congratulations! Bet with ID %s has %s. You have been awarded $%.2f.",
			bet.ID, verb, float64(bet.PayoutCents)/100),
		AgentMessage: fmt.Sprintf("Player %s has won the bet with ID %s, and the winnings of $%.2f have been awarded.",
			player.Username, bet.ID, float64(bet.PayoutCents)/100),
	})
	r.Alerts.NotifyCredits(ctx, player.ID, player.Username, player.AgentID, newBal)

	if r.OnPayout != nil {
		r.OnPayout(status)
	}
	r.publishSettled(ctx, bet, status, bet.PayoutCents)
	return nil
}

func (r *Reconciler) publishSettled(ctx context.Context, bet *ledger.Bet, status string, payoutCents int64) {
	if r.Events == nil {
		return
	}
	err := r.Events.PublishBetSettled(ctx, events.BetSettled{
		BetID:       bet.ID,
		PlayerID:    bet.PlayerID,
		Status:      status,
		PayoutCents: payoutCents,
		Ts:          time.Now(),
	})
	if err != nil {
		r.Log.Warn("publish bet_settled failed", zap.String("betId", bet.ID), zap.Error(err))
	}
}
