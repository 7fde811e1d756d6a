package promotion

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-platform/internal/ledger"
	"github.com/radieske/bet-settlement-platform/internal/scheduler"
	"github.com/radieske/bet-settlement-platform/internal/settlequeue"
)

// DetailReader reidrata legs promovidos antes de enfileirar o snapshot
type DetailReader interface {
	GetBetDetail(ctx context.Context, id string) (*ledger.BetDetail, error)
}

// LiveTicker sinaliza a camada de odds a cada varredura
type LiveTicker interface {
	LiveTick(ctx context.Context)
}

// Worker promove legs vencidos do conjunto de espera para a fila de
// liquidação. PopDue é atômico, então duas iterações sobrepostas (ou um
// resgate concorrente) nunca veem a mesma entrada.
type Worker struct {
	Log    *zap.Logger
	Sched  scheduler.Scheduler
	Queue  settlequeue.Queue
	Ledger DetailReader
	Live   LiveTicker // opcional

	OnPromoted func() // métricas
	OnError    func() // métricas
}

// Run executa varreduras na cadência dada até o contexto ser cancelado
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	w.Log.Info("promotion worker started", zap.Duration("interval", interval))
	for {
		if w.Live != nil {
			w.Live.LiveTick(ctx)
		}
		if _, err := w.PromoteDue(ctx, time.Now()); err != nil {
			w.Log.Error("promote due legs", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			w.Log.Info("promotion worker stopped")
			return
		case <-time.After(interval):
		}
	}
}

// PromoteDue retira do scheduler todo leg com commence time vencido e empilha
// o snapshot na fila de liquidação. Retorna quantos legs foram promovidos.
func (w *Worker) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := w.Sched.PopDue(ctx, now)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, id := range due {
		d, err := w.Ledger.GetBetDetail(ctx, id)
		if err == ledger.ErrNotFound {
			// leg removido por resgate/admin depois do pop: descarta
			w.Log.Info("due leg no longer exists", zap.String("betDetailId", id))
			continue
		}
		if err != nil {
			// erro transiente: devolve pro scheduler para tentar no próximo sweep
			w.Log.Warn("rehydrate due leg failed, rescheduling",
				zap.String("betDetailId", id), zap.Error(err))
			if w.OnError != nil {
				w.OnError()
			}
			_ = w.Sched.Schedule(ctx, id, now)
			continue
		}
		if d.Status != ledger.StatusPending {
			continue
		}

		entry := settlequeue.Entry{
			BetDetailID:  d.ID,
			BetID:        d.BetID,
			EventID:      d.EventID,
			SportKey:     d.SportKey,
			Category:     d.Category,
			Status:       d.Status,
			CommenceTime: d.CommenceTime,
		}
		if err := w.Queue.Push(ctx, entry.Marshal()); err != nil {
			w.Log.Warn("enqueue promoted leg failed, rescheduling",
				zap.String("betDetailId", id), zap.Error(err))
			if w.OnError != nil {
				w.OnError()
			}
			_ = w.Sched.Schedule(ctx, id, now)
			continue
		}

		promoted++
		if w.OnPromoted != nil {
			w.OnPromoted()
		}
		w.Log.Info("leg promoted to settlement queue",
			zap.String("betDetailId", d.ID),
			zap.String("eventId", d.EventID))
	}
	return promoted, nil
}
