package settlement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-platform/internal/ledger"
	"github.com/radieske/bet-settlement-platform/internal/notifier"
	"github.com/radieske/bet-settlement-platform/internal/results"
	"github.com/radieske/bet-settlement-platform/internal/settlequeue"
	"github.com/radieske/bet-settlement-platform/pkg/contracts/events"
)

// ResultSource é o contrato do provedor de placares finais
type ResultSource interface {
	CompletedEvents(ctx context.Context, sportKey string, windowDays int) ([]results.Event, error)
}

// DLQPublisher recebe os legs que esgotaram os retries
type DLQPublisher interface {
	PublishSettlementFailed(ctx context.Context, e events.SettlementFailed) error
}

// Processor drena a fila de liquidação, busca placares por esporte e aplica
// o algoritmo da categoria a cada leg com evento encerrado.
// Um leg com falha é isolado: nunca trava o restante do batch.
type Processor struct {
	Log     *zap.Logger
	Ledger  Ledger
	Queue   settlequeue.Queue
	Results ResultSource
	Rec     *Reconciler
	Alerts  Alerts
	DLQ     DLQPublisher // opcional

	WindowDays int
	MaxRetries int           // default 3
	Backoff    time.Duration // base do backoff exponencial, default 300ms

	OnSweep   func()             // métricas
	OnSettled func(result string)
	OnError   func(stage string)
}

func (p *Processor) maxRetries() int {
	if p.MaxRetries > 0 {
		return p.MaxRetries
	}
	return 3
}

func (p *Processor) backoff(attempt int) time.Duration {
	base := p.Backoff
	if base <= 0 {
		base = 300 * time.Millisecond
	}
	return base << attempt
}

// Run executa sweeps na cadência dada até o contexto ser cancelado.
// O sweep em andamento sempre termina antes do shutdown: um leg nunca fica
// fora da fila sem estado terminal.
func (p *Processor) Run(ctx context.Context, interval time.Duration) {
	p.Log.Info("settlement processor started", zap.Duration("interval", interval))
	for {
		if err := p.Sweep(ctx); err != nil {
			p.Log.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			p.Log.Info("settlement processor stopped")
			return
		case <-time.After(interval):
		}
	}
}

type queued struct {
	raw   []byte
	entry settlequeue.Entry
}

// Sweep drena a fila agrupando por esporte e avalia cada leg cujo evento
// aparece no lote de encerrados. Legs sem resultado permanecem na fila.
func (p *Processor) Sweep(ctx context.Context) error {
	if p.OnSweep != nil {
		p.OnSweep()
	}

	items, err := p.Queue.Items(ctx)
	if err != nil {
		if p.OnError != nil {
			p.OnError("queue_read")
		}
		return fmt.Errorf("read settlement queue: %w", err)
	}
	if len(items) == 0 {
		p.Log.Debug("settlement queue empty")
		return nil
	}

	bySport := make(map[string][]queued)
	for _, raw := range items {
		e, err := settlequeue.Unmarshal(raw)
		if err != nil {
			p.Log.Warn("invalid queue entry, dropping", zap.Error(err))
			_ = p.Queue.Remove(ctx, raw)
			continue
		}
		if e.Status != ledger.StatusPending {
			// resgatado/resolvido por outro caminho enquanto esperava
			_ = p.Queue.Remove(ctx, raw)
			continue
		}
		bySport[e.SportKey] = append(bySport[e.SportKey], queued{raw: raw, entry: e})
	}

	for sport, legs := range bySport {
		completed, err := p.Results.CompletedEvents(ctx, sport, p.WindowDays)
		if err != nil {
			// Provedor indisponível: legs ficam na fila para o próximo sweep
			p.Log.Warn("fetch scores failed", zap.String("sport", sport), zap.Error(err))
			if p.OnError != nil {
				p.OnError("scores")
			}
			continue
		}
		byEvent := make(map[string]*results.Event, len(completed))
		for i := range completed {
			byEvent[completed[i].ID] = &completed[i]
		}

		for _, q := range legs {
			ev, ok := byEvent[q.entry.EventID]
			if !ok {
				continue // evento ainda não encerrou
			}
			p.processCompletedLeg(ctx, q, ev)
		}
	}
	return nil
}

// processCompletedLeg avalia um leg com retry local (backoff exponencial,
// maxRetries tentativas). Exaustão marca leg e aposta pai como failed, tira o
// item da fila e alerta jogador e agente numa única passada.
func (p *Processor) processCompletedLeg(ctx context.Context, q queued, ev *results.Event) {
	var lastErr error

	for attempt := 0; attempt < p.maxRetries(); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.backoff(attempt - 1)):
			}
		}

		requeue, err := p.evaluateOnce(ctx, q.entry.BetDetailID, ev)
		if err == nil {
			if !requeue {
				if rerr := p.Queue.Remove(ctx, q.raw); rerr != nil {
					p.Log.Warn("queue remove failed", zap.String("betDetailId", q.entry.BetDetailID), zap.Error(rerr))
				}
			}
			return
		}

		lastErr = err
		p.Log.Error("leg evaluation failed, retrying",
			zap.String("betDetailId", q.entry.BetDetailID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if p.OnError != nil {
			p.OnError("evaluate")
		}

		// Entre tentativas o leg fica failed/não-resolvido
		if uerr := p.Ledger.UpdateDetailStatus(ctx, q.entry.BetDetailID, ledger.StatusFailed, false); uerr != nil {
			p.Log.Warn("mark leg failed", zap.Error(uerr))
		}
		if uerr := p.Ledger.IncrementBetRetry(ctx, q.entry.BetID); uerr != nil {
			p.Log.Warn("bump retry count", zap.Error(uerr))
		}
	}

	p.exhaust(ctx, q, lastErr)
}

// evaluateOnce executa uma tentativa: reidrata o leg do banco (nunca confia
// no snapshot da fila como alvo de escrita), persiste o placar, aplica a
// regra da categoria e aciona a reconciliação quando o desfecho é terminal.
// requeue=true indica desfecho pending/failed por dados: o leg continua na
// fila e será reavaliado no próximo sweep, sem contar retry.
func (p *Processor) evaluateOnce(ctx context.Context, betDetailID string, ev *results.Event) (requeue bool, err error) {
	d, err := p.Ledger.GetBetDetail(ctx, betDetailID)
	if err == ledger.ErrNotFound {
		p.Log.Warn("bet detail vanished, dropping from queue", zap.String("betDetailId", betDetailID))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if d.Status != ledger.StatusPending && !(d.Status == ledger.StatusFailed && !d.Resolved) {
		// já terminal por outro caminho
		return false, nil
	}

	entrants := make([]ledger.TeamScore, 0, len(ev.Scores))
	for _, s := range ev.Scores {
		entrants = append(entrants, ledger.TeamScore{Name: s.Name, Score: s.Score.Value})
	}
	if err := p.Ledger.UpsertScore(ctx, &ledger.Score{
		EventID:   ev.ID,
		HomeTeam:  ev.HomeTeam,
		AwayTeam:  ev.AwayTeam,
		Entrants:  entrants,
		Completed: ev.Completed,
	}); err != nil {
		return false, fmt.Errorf("persist score: %w", err)
	}

	rule, err := ForLeg(d)
	if err != nil {
		return false, err
	}
	res := rule.Settle(ev)

	switch res {
	case ResultPending, ResultFailed:
		// Evento incompleto ou placar inválido no lote: reavalia no próximo sweep
		p.Log.Info("leg not settleable yet",
			zap.String("betDetailId", d.ID),
			zap.String("result", string(res)))
		return true, nil
	}

	if err := p.Ledger.UpdateDetailStatus(ctx, d.ID, string(res), true); err != nil {
		return false, fmt.Errorf("write leg status: %w", err)
	}
	if p.OnSettled != nil {
		p.OnSettled(string(res))
	}
	p.Log.Info("leg settled",
		zap.String("betDetailId", d.ID),
		zap.String("betId", d.BetID),
		zap.String("result", string(res)))

	if err := p.Rec.Reconcile(ctx, d.BetID); err != nil {
		return false, fmt.Errorf("reconcile parent: %w", err)
	}
	return false, nil
}

// exhaust aplica o destino de retry esgotado: leg e pai failed, item fora da
// fila (exatamente uma vez), DLQ e alerta de intervenção manual.
func (p *Processor) exhaust(ctx context.Context, q queued, cause error) {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}

	if err := p.Ledger.UpdateDetailStatus(ctx, q.entry.BetDetailID, ledger.StatusFailed, false); err != nil {
		p.Log.Error("mark leg failed after retries", zap.Error(err))
	}
	if err := p.Ledger.UpdateBetStatus(ctx, q.entry.BetID, ledger.StatusFailed, false); err != nil {
		p.Log.Error("mark parent failed after retries", zap.Error(err))
	}
	if err := p.Queue.Remove(ctx, q.raw); err != nil {
		p.Log.Error("remove exhausted leg from queue", zap.Error(err))
	}

	if p.DLQ != nil {
		err := p.DLQ.PublishSettlementFailed(ctx, events.SettlementFailed{
			BetDetailID: q.entry.BetDetailID,
			BetID:       q.entry.BetID,
			EventID:     q.entry.EventID,
			SportKey:    q.entry.SportKey,
			Reason:      reason,
			Ts:          time.Now(),
		})
		if err != nil {
			p.Log.Error("publish settlement dlq", zap.Error(err))
		}
	}

	bet, err := p.Ledger.GetBet(ctx, q.entry.BetID)
	if err != nil {
		p.Log.Error("load parent after exhaustion", zap.Error(err))
		return
	}
	player, err := p.Ledger.GetPlayer(ctx, bet.PlayerID)
	if err != nil {
		p.Log.Error("load player after exhaustion", zap.Error(err))
		return
	}
	p.Alerts.Notify(ctx, notifier.Alert{
		Type:          notifier.KindBetFailed,
		Player:        notifier.AlertPlayer{ID: player.ID, Username: player.Username},
		Agent:         player.AgentID,
		BetID:         bet.ID,
		PlayerMessage: "Bet failed! We have raised a ticket to your agent. You can contact your agent for further assistance.",
		AgentMessage:  fmt.Sprintf("Player %s's bet has failed. Please resolve the bet as soon as possible.", player.Username),
	})

	p.Log.Warn("leg exhausted retries",
		zap.String("betDetailId", q.entry.BetDetailID),
		zap.String("betId", q.entry.BetID),
		zap.String("reason", reason))
}
