package settlement

import (
	"context"
	"errors"
	"sync"

	"github.com/radieske/bet-settlement-platform/internal/ledger"
	"github.com/radieske/bet-settlement-platform/internal/notifier"
	"github.com/radieske/bet-settlement-platform/internal/results"
	"github.com/radieske/bet-settlement-platform/pkg/contracts/events"
)

// fakeLedger guarda tudo em memória e replica a semântica das mutações de
// crédito do Postgres (flag resolved, estorno guardado por saldo).
type fakeLedger struct {
	mu      sync.Mutex
	players map[string]*ledger.Player
	bets    map[string]*ledger.Bet
	details map[string]*ledger.BetDetail
	scores  map[string]*ledger.Score

	arrears     []string // bet ids com estorno pendente
	payoutCalls int

	failGetDetail error // injeta falha transitória
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		players: map[string]*ledger.Player{},
		bets:    map[string]*ledger.Bet{},
		details: map[string]*ledger.BetDetail{},
		scores:  map[string]*ledger.Score{},
	}
}

func (f *fakeLedger) addPlayer(p *ledger.Player) { f.players[p.ID] = p }

func (f *fakeLedger) addBet(b *ledger.Bet, details ...*ledger.BetDetail) {
	f.bets[b.ID] = b
	for _, d := range details {
		d.BetID = b.ID
		f.details[d.ID] = d
	}
}

func (f *fakeLedger) GetBet(_ context.Context, id string) (*ledger.Bet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bets[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeLedger) GetBetDetail(_ context.Context, id string) (*ledger.BetDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGetDetail != nil {
		return nil, f.failGetDetail
	}
	d, ok := f.details[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeLedger) DetailsForBet(_ context.Context, betID string) ([]*ledger.BetDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ledger.BetDetail
	for _, d := range f.details {
		if d.BetID == betID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLedger) GetPlayer(_ context.Context, id string) (*ledger.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeLedger) UpdateDetailStatus(_ context.Context, id, status string, resolved bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[id]
	if !ok {
		return ledger.ErrNotFound
	}
	d.Status = status
	d.Resolved = resolved
	return nil
}

func (f *fakeLedger) UpdateBetStatus(_ context.Context, id, status string, resolved bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bets[id]
	if !ok {
		return ledger.ErrNotFound
	}
	b.Status = status
	b.Resolved = resolved
	return nil
}

func (f *fakeLedger) IncrementBetRetry(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bets[id]; ok {
		b.RetryCount++
	}
	return nil
}

func (f *fakeLedger) PayoutWin(_ context.Context, betID, status string) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bets[betID]
	if !ok {
		return false, 0, ledger.ErrNotFound
	}
	creditedBefore := b.Resolved &&
		(b.Status == ledger.StatusWon || b.Status == ledger.StatusDraw || b.Status == ledger.StatusRedeem)
	if creditedBefore {
		return false, 0, nil
	}
	p := f.players[b.PlayerID]
	p.CreditsCents += b.PayoutCents
	b.Status = status
	b.Resolved = true
	f.payoutCalls++
	return true, p.CreditsCents, nil
}

func (f *fakeLedger) FlipToLost(_ context.Context, betID string) (bool, bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bets[betID]
	if !ok {
		return false, false, 0, ledger.ErrNotFound
	}
	creditedBefore := b.Resolved &&
		(b.Status == ledger.StatusWon || b.Status == ledger.StatusDraw || b.Status == ledger.StatusRedeem)

	var reversed, arrears bool
	p := f.players[b.PlayerID]
	if creditedBefore {
		if p.CreditsCents >= b.PayoutCents {
			p.CreditsCents -= b.PayoutCents
			reversed = true
		} else {
			f.arrears = append(f.arrears, betID)
			arrears = true
		}
	}
	b.Status = ledger.StatusLost
	b.Resolved = true
	return reversed, arrears, p.CreditsCents, nil
}

func (f *fakeLedger) UpsertScore(_ context.Context, s *ledger.Score) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[s.EventID] = s
	return nil
}

type fakeAlerts struct {
	mu      sync.Mutex
	alerts  []notifier.Alert
	credits []int64
}

func (f *fakeAlerts) Notify(_ context.Context, a notifier.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
}

func (f *fakeAlerts) NotifyCredits(_ context.Context, _, _, _ string, creditsCents int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits = append(f.credits, creditsCents)
}

func (f *fakeAlerts) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.alerts))
	for i, a := range f.alerts {
		out[i] = a.Type
	}
	return out
}

type fakePublisher struct {
	settled []events.BetSettled
	failed  []events.SettlementFailed
}

func (f *fakePublisher) PublishBetSettled(_ context.Context, e events.BetSettled) error {
	f.settled = append(f.settled, e)
	return nil
}

func (f *fakePublisher) PublishSettlementFailed(_ context.Context, e events.SettlementFailed) error {
	f.failed = append(f.failed, e)
	return nil
}

type fakeResults struct {
	events map[string][]results.Event // por sport key
	err    error
}

func (f *fakeResults) CompletedEvents(_ context.Context, sportKey string, _ int) ([]results.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events[sportKey], nil
}

var errTransient = errors.New("connection reset")
