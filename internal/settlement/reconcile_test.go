package settlement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-platform/internal/ledger"
	"github.com/radieske/bet-settlement-platform/internal/notifier"
)

func newReconciler(fl *fakeLedger, fa *fakeAlerts, fp *fakePublisher) *Reconciler {
	return &Reconciler{
		Log:    zap.NewNop(),
		Ledger: fl,
		Alerts: fa,
		Events: fp,
	}
}

func seedCombo(fl *fakeLedger, statuses ...string) *ledger.Bet {
	fl.addPlayer(&ledger.Player{ID: "p1", Username: "marco", AgentID: "a1", CreditsCents: 10_000})
	bet := &ledger.Bet{
		ID:          "bet-1",
		PlayerID:    "p1",
		StakeCents:  2_000,
		PayoutCents: 9_000,
		Status:      ledger.StatusPending,
		BetType:     ledger.BetTypeCombo,
	}
	details := make([]*ledger.BetDetail, len(statuses))
	for i, st := range statuses {
		details[i] = &ledger.BetDetail{
			ID:        "leg-" + string(rune('a'+i)),
			EventID:   "ev-" + string(rune('a'+i)),
			SportKey:  "basketball_nba",
			Category:  ledger.CategoryH2H,
			Selection: "Lakers",
			Status:    st,
		}
	}
	fl.addBet(bet, details...)
	return bet
}

func TestReconcileAllWonCreditsOnce(t *testing.T) {
	fl := newFakeLedger()
	fa := &fakeAlerts{}
	fp := &fakePublisher{}
	seedCombo(fl, ledger.StatusWon, ledger.StatusWon)

	r := newReconciler(fl, fa, fp)
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))

	b, _ := fl.GetBet(context.Background(), "bet-1")
	assert.Equal(t, ledger.StatusWon, b.Status)
	assert.True(t, b.Resolved)

	p, _ := fl.GetPlayer(context.Background(), "p1")
	assert.Equal(t, int64(19_000), p.CreditsCents)
	assert.Contains(t, fa.kinds(), notifier.KindBetWon)
	require.Len(t, fp.settled, 1)
	assert.Equal(t, int64(9_000), fp.settled[0].PayoutCents)

	// Segunda reconciliação não paga de novo
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))
	p, _ = fl.GetPlayer(context.Background(), "p1")
	assert.Equal(t, int64(19_000), p.CreditsCents)
	assert.Equal(t, 1, fl.payoutCalls)
}

func TestReconcileAnyLostWins(t *testing.T) {
	// Ordem de resolução: um leg perdido derruba o combo mesmo com legs won
	fl := newFakeLedger()
	fa := &fakeAlerts{}
	fp := &fakePublisher{}
	seedCombo(fl, ledger.StatusWon, ledger.StatusLost, ledger.StatusPending)

	r := newReconciler(fl, fa, fp)
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))

	b, _ := fl.GetBet(context.Background(), "bet-1")
	assert.Equal(t, ledger.StatusLost, b.Status)
	assert.True(t, b.Resolved)

	// Nunca houve crédito, então nada a estornar
	p, _ := fl.GetPlayer(context.Background(), "p1")
	assert.Equal(t, int64(10_000), p.CreditsCents)
	assert.Contains(t, fa.kinds(), notifier.KindBetLost)
}

func TestReconcileLostReversesEarlierPayout(t *testing.T) {
	fl := newFakeLedger()
	fa := &fakeAlerts{}
	seedCombo(fl, ledger.StatusWon, ledger.StatusWon)

	r := newReconciler(fl, fa, &fakePublisher{})
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))
	p, _ := fl.GetPlayer(context.Background(), "p1")
	require.Equal(t, int64(19_000), p.CreditsCents)

	// Correção tardia do resultado: um leg vira lost
	require.NoError(t, fl.UpdateDetailStatus(context.Background(), "leg-b", ledger.StatusLost, true))
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))

	b, _ := fl.GetBet(context.Background(), "bet-1")
	assert.Equal(t, ledger.StatusLost, b.Status)
	p, _ = fl.GetPlayer(context.Background(), "p1")
	assert.Equal(t, int64(10_000), p.CreditsCents, "payout estornado")
	assert.Empty(t, fl.arrears)
}

func TestReconcileLostWithInsufficientCreditsRecordsArrears(t *testing.T) {
	fl := newFakeLedger()
	fa := &fakeAlerts{}
	seedCombo(fl, ledger.StatusWon, ledger.StatusWon)

	r := newReconciler(fl, fa, &fakePublisher{})
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))

	// Jogador gastou o payout antes da correção
	fl.players["p1"].CreditsCents = 500

	require.NoError(t, fl.UpdateDetailStatus(context.Background(), "leg-a", ledger.StatusLost, true))
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))

	b, _ := fl.GetBet(context.Background(), "bet-1")
	assert.Equal(t, ledger.StatusLost, b.Status, "status vira lost mesmo sem estorno")
	assert.Equal(t, []string{"bet-1"}, fl.arrears)

	p, _ := fl.GetPlayer(context.Background(), "p1")
	assert.Equal(t, int64(500), p.CreditsCents, "saldo nunca fica negativo")
	assert.Contains(t, fa.kinds(), notifier.KindArrears)
}

func TestReconcileOverrideFlipsLostBetToWon(t *testing.T) {
	// Override de admin: leg de aposta já perdida forçado para won deve
	// creditar o payout e atualizar o pai, pois lost nunca recebeu crédito
	fl := newFakeLedger()
	fa := &fakeAlerts{}
	fp := &fakePublisher{}
	fl.addPlayer(&ledger.Player{ID: "p1", Username: "marco", AgentID: "a1", CreditsCents: 1_000})
	bet := &ledger.Bet{
		ID: "bet-1", PlayerID: "p1", StakeCents: 1_000, PayoutCents: 2_000,
		Status: ledger.StatusLost, Resolved: true, BetType: ledger.BetTypeSingle,
	}
	fl.addBet(bet, &ledger.BetDetail{
		ID: "leg-a", EventID: "ev-a", Category: ledger.CategoryH2H,
		Selection: "Lakers", Status: ledger.StatusWon, Resolved: true,
	})

	r := newReconciler(fl, fa, fp)
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))

	b, _ := fl.GetBet(context.Background(), "bet-1")
	assert.Equal(t, ledger.StatusWon, b.Status, "leg e pai com o mesmo status")
	assert.True(t, b.Resolved)

	p, _ := fl.GetPlayer(context.Background(), "p1")
	assert.Equal(t, int64(3_000), p.CreditsCents, "payout creditado no flip lost->won")
	assert.Contains(t, fa.kinds(), notifier.KindBetWon)

	// Reexecutar não paga de novo
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))
	p, _ = fl.GetPlayer(context.Background(), "p1")
	assert.Equal(t, int64(3_000), p.CreditsCents)
	assert.Equal(t, 1, fl.payoutCalls)
}

func TestReconcileAlreadyLostDoesNotRenotify(t *testing.T) {
	fl := newFakeLedger()
	fa := &fakeAlerts{}
	seedCombo(fl, ledger.StatusLost, ledger.StatusPending)

	r := newReconciler(fl, fa, &fakePublisher{})
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))

	// Leg irmão liquida depois: reexecução não reenvia BET_LOST
	require.NoError(t, fl.UpdateDetailStatus(context.Background(), "leg-b", ledger.StatusLost, true))
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))

	lostAlerts := 0
	for _, kind := range fa.kinds() {
		if kind == notifier.KindBetLost {
			lostAlerts++
		}
	}
	assert.Equal(t, 1, lostAlerts)
}

func TestReconcileDrawOnNonDrawSelectionLoses(t *testing.T) {
	fl := newFakeLedger()
	seedCombo(fl, ledger.StatusWon, ledger.StatusDraw)

	r := newReconciler(fl, &fakeAlerts{}, &fakePublisher{})
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))

	b, _ := fl.GetBet(context.Background(), "bet-1")
	assert.Equal(t, ledger.StatusLost, b.Status)
}

func TestReconcileAllDrawnOnDrawSelectionPays(t *testing.T) {
	fl := newFakeLedger()
	fa := &fakeAlerts{}
	bet := seedCombo(fl, ledger.StatusDraw)
	fl.details["leg-a"].Selection = "Draw"

	r := newReconciler(fl, fa, &fakePublisher{})
	require.NoError(t, r.Reconcile(context.Background(), bet.ID))

	b, _ := fl.GetBet(context.Background(), bet.ID)
	assert.Equal(t, ledger.StatusDraw, b.Status)
	p, _ := fl.GetPlayer(context.Background(), "p1")
	assert.Equal(t, int64(19_000), p.CreditsCents)
	assert.Contains(t, fa.kinds(), notifier.KindBetDrawn)
}

func TestReconcileAnyFailedMarksFailedUnresolved(t *testing.T) {
	fl := newFakeLedger()
	fa := &fakeAlerts{}
	fp := &fakePublisher{}
	seedCombo(fl, ledger.StatusWon, ledger.StatusFailed)

	r := newReconciler(fl, fa, fp)
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))

	b, _ := fl.GetBet(context.Background(), "bet-1")
	assert.Equal(t, ledger.StatusFailed, b.Status)
	assert.False(t, b.Resolved, "failed não é terminal financeiro")

	p, _ := fl.GetPlayer(context.Background(), "p1")
	assert.Equal(t, int64(10_000), p.CreditsCents)
	assert.Contains(t, fa.kinds(), notifier.KindBetFailed)
	require.Len(t, fp.settled, 1)
	assert.Equal(t, ledger.StatusFailed, fp.settled[0].Status)
}

func TestReconcilePendingLegsKeepBetOpen(t *testing.T) {
	fl := newFakeLedger()
	seedCombo(fl, ledger.StatusWon, ledger.StatusPending)

	r := newReconciler(fl, &fakeAlerts{}, &fakePublisher{})
	require.NoError(t, r.Reconcile(context.Background(), "bet-1"))

	b, _ := fl.GetBet(context.Background(), "bet-1")
	assert.Equal(t, ledger.StatusPending, b.Status)
	assert.False(t, b.Resolved)
}
