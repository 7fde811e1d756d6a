package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-platform/internal/ledger"
	"github.com/radieske/bet-settlement-platform/internal/notifier"
	"github.com/radieske/bet-settlement-platform/internal/results"
	"github.com/radieske/bet-settlement-platform/internal/settlequeue"
)

func newProcessor(fl *fakeLedger, q settlequeue.Queue, fr *fakeResults, fa *fakeAlerts, fp *fakePublisher) *Processor {
	return &Processor{
		Log:     zap.NewNop(),
		Ledger:  fl,
		Queue:   q,
		Results: fr,
		Rec:     newReconciler(fl, fa, fp),
		Alerts:  fa,
		DLQ:     fp,

		WindowDays: 3,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	}
}

func queuedLeg(t *testing.T, q settlequeue.Queue, d *ledger.BetDetail) {
	t.Helper()
	e := settlequeue.Entry{
		BetDetailID:  d.ID,
		BetID:        d.BetID,
		EventID:      d.EventID,
		SportKey:     d.SportKey,
		Category:     d.Category,
		Status:       ledger.StatusPending,
		CommenceTime: d.CommenceTime,
	}
	require.NoError(t, q.Push(context.Background(), e.Marshal()))
}

func TestSweepSettlesCompletedLeg(t *testing.T) {
	fl := newFakeLedger()
	fa := &fakeAlerts{}
	fp := &fakePublisher{}
	q := settlequeue.NewMemory()

	fl.addPlayer(&ledger.Player{ID: "p1", Username: "marco", AgentID: "a1", CreditsCents: 1_000})
	bet := &ledger.Bet{ID: "bet-1", PlayerID: "p1", StakeCents: 500, PayoutCents: 1_000,
		Status: ledger.StatusPending, BetType: ledger.BetTypeSingle}
	leg := &ledger.BetDetail{ID: "leg-1", EventID: "ev-1", SportKey: "basketball_nba",
		Category: ledger.CategoryH2H, Selection: "Lakers", Status: ledger.StatusPending}
	fl.addBet(bet, leg)
	queuedLeg(t, q, leg)

	fr := &fakeResults{events: map[string][]results.Event{
		"basketball_nba": {*matchEvent("Lakers", 110, "Celtics", 100)},
	}}
	fr.events["basketball_nba"][0].ID = "ev-1"

	p := newProcessor(fl, q, fr, fa, fp)
	require.NoError(t, p.Sweep(context.Background()))

	d, _ := fl.GetBetDetail(context.Background(), "leg-1")
	assert.Equal(t, ledger.StatusWon, d.Status)
	assert.True(t, d.Resolved)

	b, _ := fl.GetBet(context.Background(), "bet-1")
	assert.Equal(t, ledger.StatusWon, b.Status)

	n, _ := q.Len(context.Background())
	assert.Zero(t, n, "leg liquidado sai da fila")

	// Placar persistido para auditoria
	assert.Contains(t, fl.scores, "ev-1")
}

func TestSweepLeavesLegWithoutResult(t *testing.T) {
	fl := newFakeLedger()
	q := settlequeue.NewMemory()

	fl.addPlayer(&ledger.Player{ID: "p1", Username: "marco", AgentID: "a1"})
	bet := &ledger.Bet{ID: "bet-1", PlayerID: "p1", Status: ledger.StatusPending}
	leg := &ledger.BetDetail{ID: "leg-1", EventID: "ev-absent", SportKey: "soccer_epl",
		Category: ledger.CategoryH2H, Selection: "Arsenal", Status: ledger.StatusPending}
	fl.addBet(bet, leg)
	queuedLeg(t, q, leg)

	fr := &fakeResults{events: map[string][]results.Event{"soccer_epl": {}}}
	p := newProcessor(fl, q, fr, &fakeAlerts{}, &fakePublisher{})
	require.NoError(t, p.Sweep(context.Background()))

	d, _ := fl.GetBetDetail(context.Background(), "leg-1")
	assert.Equal(t, ledger.StatusPending, d.Status)
	n, _ := q.Len(context.Background())
	assert.EqualValues(t, 1, n, "leg sem resultado permanece enfileirado")
}

func TestSweepProviderDownKeepsQueue(t *testing.T) {
	fl := newFakeLedger()
	q := settlequeue.NewMemory()

	fl.addPlayer(&ledger.Player{ID: "p1", Username: "marco", AgentID: "a1"})
	bet := &ledger.Bet{ID: "bet-1", PlayerID: "p1", Status: ledger.StatusPending}
	leg := &ledger.BetDetail{ID: "leg-1", EventID: "ev-1", SportKey: "basketball_nba",
		Category: ledger.CategoryH2H, Selection: "Lakers", Status: ledger.StatusPending}
	fl.addBet(bet, leg)
	queuedLeg(t, q, leg)

	fr := &fakeResults{err: errTransient}
	p := newProcessor(fl, q, fr, &fakeAlerts{}, &fakePublisher{})
	require.NoError(t, p.Sweep(context.Background()))

	n, _ := q.Len(context.Background())
	assert.EqualValues(t, 1, n)
	b, _ := fl.GetBet(context.Background(), "bet-1")
	assert.Zero(t, b.RetryCount, "falha do provedor não conta retry")
}

func TestSweepDropsNonPendingEntry(t *testing.T) {
	fl := newFakeLedger()
	q := settlequeue.NewMemory()

	e := settlequeue.Entry{BetDetailID: "leg-1", BetID: "bet-1", EventID: "ev-1",
		SportKey: "basketball_nba", Category: ledger.CategoryH2H, Status: ledger.StatusRedeem}
	require.NoError(t, q.Push(context.Background(), e.Marshal()))

	p := newProcessor(fl, q, &fakeResults{}, &fakeAlerts{}, &fakePublisher{})
	require.NoError(t, p.Sweep(context.Background()))

	n, _ := q.Len(context.Background())
	assert.Zero(t, n)
}

func TestRetryExhaustionFailsLegAndParent(t *testing.T) {
	fl := newFakeLedger()
	fa := &fakeAlerts{}
	fp := &fakePublisher{}
	q := settlequeue.NewMemory()

	fl.addPlayer(&ledger.Player{ID: "p1", Username: "marco", AgentID: "a1"})
	bet := &ledger.Bet{ID: "bet-1", PlayerID: "p1", Status: ledger.StatusPending}
	leg := &ledger.BetDetail{ID: "leg-1", EventID: "ev-1", SportKey: "basketball_nba",
		Category: ledger.CategoryH2H, Selection: "Lakers", Status: ledger.StatusPending}
	fl.addBet(bet, leg)
	queuedLeg(t, q, leg)

	fl.failGetDetail = errTransient // toda tentativa de reidratar falha

	fr := &fakeResults{events: map[string][]results.Event{
		"basketball_nba": {*matchEvent("Lakers", 110, "Celtics", 100)},
	}}
	fr.events["basketball_nba"][0].ID = "ev-1"

	p := newProcessor(fl, q, fr, fa, fp)
	require.NoError(t, p.Sweep(context.Background()))

	fl.failGetDetail = nil
	d, _ := fl.GetBetDetail(context.Background(), "leg-1")
	assert.Equal(t, ledger.StatusFailed, d.Status)
	assert.False(t, d.Resolved)

	b, _ := fl.GetBet(context.Background(), "bet-1")
	assert.Equal(t, ledger.StatusFailed, b.Status)
	assert.Equal(t, p.MaxRetries, b.RetryCount)

	n, _ := q.Len(context.Background())
	assert.Zero(t, n, "leg esgotado sai da fila")

	require.Len(t, fp.failed, 1)
	assert.Equal(t, "leg-1", fp.failed[0].BetDetailID)
	assert.Contains(t, fa.kinds(), notifier.KindBetFailed)
}

func TestSweepSkipsAlreadyResolvedLeg(t *testing.T) {
	fl := newFakeLedger()
	q := settlequeue.NewMemory()

	fl.addPlayer(&ledger.Player{ID: "p1", Username: "marco", AgentID: "a1"})
	bet := &ledger.Bet{ID: "bet-1", PlayerID: "p1", Status: ledger.StatusWon, Resolved: true}
	leg := &ledger.BetDetail{ID: "leg-1", EventID: "ev-1", SportKey: "basketball_nba",
		Category: ledger.CategoryH2H, Selection: "Lakers", Status: ledger.StatusWon, Resolved: true}
	fl.addBet(bet, leg)
	queuedLeg(t, q, leg) // snapshot antigo ainda com status pending

	fr := &fakeResults{events: map[string][]results.Event{
		"basketball_nba": {*matchEvent("Lakers", 100, "Celtics", 110)},
	}}
	fr.events["basketball_nba"][0].ID = "ev-1"

	p := newProcessor(fl, q, fr, &fakeAlerts{}, &fakePublisher{})
	require.NoError(t, p.Sweep(context.Background()))

	// O banco é a verdade: o leg já resolvido não é reescrito pelo snapshot
	d, _ := fl.GetBetDetail(context.Background(), "leg-1")
	assert.Equal(t, ledger.StatusWon, d.Status)
	n, _ := q.Len(context.Background())
	assert.Zero(t, n)
}
