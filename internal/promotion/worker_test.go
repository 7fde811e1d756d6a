package promotion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-platform/internal/ledger"
	"github.com/radieske/bet-settlement-platform/internal/scheduler"
	"github.com/radieske/bet-settlement-platform/internal/settlequeue"
)

type fakeDetails struct {
	details map[string]*ledger.BetDetail
	err     error
}

func (f *fakeDetails) GetBetDetail(_ context.Context, id string) (*ledger.BetDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.details[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return d, nil
}

func newWorker(fd *fakeDetails) (*Worker, *scheduler.Memory, *settlequeue.Memory) {
	sched := scheduler.NewMemory()
	queue := settlequeue.NewMemory()
	w := &Worker{
		Log:    zap.NewNop(),
		Sched:  sched,
		Queue:  queue,
		Ledger: fd,
	}
	return w, sched, queue
}

func TestPromoteDueMovesLegToQueue(t *testing.T) {
	now := time.Now()
	fd := &fakeDetails{details: map[string]*ledger.BetDetail{
		"leg-1": {
			ID: "leg-1", BetID: "bet-1", EventID: "ev-1", SportKey: "basketball_nba",
			Category: ledger.CategoryH2H, Status: ledger.StatusPending,
			CommenceTime: now.Add(-time.Minute),
		},
	}}
	w, sched, queue := newWorker(fd)
	ctx := context.Background()

	require.NoError(t, sched.Schedule(ctx, "leg-1", now.Add(-time.Minute)))

	n, err := w.PromoteDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, _ := queue.Items(ctx)
	require.Len(t, items, 1)
	e, err := settlequeue.Unmarshal(items[0])
	require.NoError(t, err)
	assert.Equal(t, "leg-1", e.BetDetailID)
	assert.Equal(t, "basketball_nba", e.SportKey)

	// Sem reentrega no próximo sweep
	n, err = w.PromoteDue(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPromoteDueSkipsVanishedAndNonPending(t *testing.T) {
	now := time.Now()
	fd := &fakeDetails{details: map[string]*ledger.BetDetail{
		"leg-redeemed": {ID: "leg-redeemed", Status: ledger.StatusRedeem, CommenceTime: now},
	}}
	w, sched, queue := newWorker(fd)
	ctx := context.Background()

	require.NoError(t, sched.Schedule(ctx, "leg-gone", now.Add(-time.Minute)))
	require.NoError(t, sched.Schedule(ctx, "leg-redeemed", now.Add(-time.Minute)))

	n, err := w.PromoteDue(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	qlen, _ := queue.Len(ctx)
	assert.Zero(t, qlen)
}

func TestPromoteDueReschedulesOnTransientError(t *testing.T) {
	now := time.Now()
	fd := &fakeDetails{err: errors.New("pg down")}
	w, sched, queue := newWorker(fd)
	ctx := context.Background()

	require.NoError(t, sched.Schedule(ctx, "leg-1", now.Add(-time.Minute)))

	n, err := w.PromoteDue(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
	qlen, _ := queue.Len(ctx)
	assert.Zero(t, qlen)

	// Banco volta: o leg reagendado é promovido no sweep seguinte
	fd.err = nil
	fd.details = map[string]*ledger.BetDetail{
		"leg-1": {ID: "leg-1", BetID: "bet-1", EventID: "ev-1", SportKey: "soccer_epl",
			Category: ledger.CategoryH2H, Status: ledger.StatusPending, CommenceTime: now},
	}
	n, err = w.PromoteDue(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
