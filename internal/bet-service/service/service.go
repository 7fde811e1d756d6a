package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-platform/internal/bet-service/dto"
	"github.com/radieske/bet-settlement-platform/internal/ledger"
	"github.com/radieske/bet-settlement-platform/internal/notifier"
	"github.com/radieske/bet-settlement-platform/internal/presence"
	"github.com/radieske/bet-settlement-platform/internal/results"
	"github.com/radieske/bet-settlement-platform/internal/scheduler"
	"github.com/radieske/bet-settlement-platform/internal/settlequeue"
	"github.com/radieske/bet-settlement-platform/pkg/contracts/events"
)

var (
	ErrPlayerOffline = errors.New("player must be connected to place a bet")
	ErrValidation    = errors.New("invalid bet")
)

// Repo é a fatia da persistência usada pelo bet-service
type Repo interface {
	GetPlayer(ctx context.Context, id string) (*ledger.Player, error)
	PlaceBet(ctx context.Context, b *ledger.Bet, details []*ledger.BetDetail) (int64, error)
	GetBet(ctx context.Context, id string) (*ledger.Bet, error)
	GetBetDetail(ctx context.Context, id string) (*ledger.BetDetail, error)
	DetailsForBet(ctx context.Context, betID string) ([]*ledger.BetDetail, error)
	RedeemBet(ctx context.Context, betID string, payoutCents int64) (int64, error)
	FailBetWithRefund(ctx context.Context, betID string, refundCents int64) (int64, error)
	UpdateDetailStatus(ctx context.Context, id, status string, resolved bool) error
	ListBets(ctx context.Context, q ledger.BetQuery) ([]*ledger.Bet, int, error)
}

// OddsSource cota as odds ao vivo usadas no resgate antecipado
type OddsSource interface {
	EventOdds(ctx context.Context, sportKey, eventID, market string) (*results.EventOdds, error)
}

// PlacedPublisher emite o evento bet_placed para consumidores externos
type PlacedPublisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
}

// Reconciler reexecuta a agregação da aposta pai (usado pelo override de admin)
type Reconciler interface {
	Reconcile(ctx context.Context, betID string) error
}

// Alerts é o push best-effort para jogador e agente
type Alerts interface {
	Notify(ctx context.Context, a notifier.Alert)
	NotifyCredits(ctx context.Context, playerID, username, agentID string, creditsCents int64)
}

// Service implementa colocação, consulta, resgate antecipado e override de
// apostas. Toda mutação de saldo acontece dentro do Repo, em transação.
type Service struct {
	Log      *zap.Logger
	Repo     Repo
	Sched    scheduler.Scheduler
	Queue    settlequeue.Queue
	Presence presence.Registry
	Odds     OddsSource
	Alerts   Alerts
	Events   PlacedPublisher // opcional
	Rec      Reconciler

	CommissionPct float64
}

var validCategories = map[string]bool{
	ledger.CategoryH2H:       true,
	ledger.CategorySpreads:   true,
	ledger.CategoryTotals:    true,
	ledger.CategoryOutrights: true,
}

// PlaceBet valida e coloca a aposta como unidade atômica, agenda cada leg no
// scheduler e notifica jogador/agente. Qualquer violação de precondição
// aborta sem débito ou persistência parcial.
func (s *Service) PlaceBet(ctx context.Context, req dto.PlaceBetRequest) (*ledger.Bet, int64, error) {
	if req.PlayerID == "" {
		return nil, 0, fmt.Errorf("%w: player_id required", ErrValidation)
	}
	if req.StakeCents <= 0 {
		return nil, 0, fmt.Errorf("%w: betting amount can't be zero", ErrValidation)
	}
	switch req.BetType {
	case ledger.BetTypeSingle:
		if len(req.Legs) != 1 {
			return nil, 0, fmt.Errorf("%w: single bet must have exactly one leg", ErrValidation)
		}
	case ledger.BetTypeCombo:
		if len(req.Legs) < 1 {
			return nil, 0, fmt.Errorf("%w: combo bet needs at least one leg", ErrValidation)
		}
	default:
		return nil, 0, fmt.Errorf("%w: unknown bet type %q", ErrValidation, req.BetType)
	}
	for _, leg := range req.Legs {
		if leg.EventID == "" || leg.SportKey == "" || leg.BetOn.Name == "" {
			return nil, 0, fmt.Errorf("%w: leg missing event, sport or selection", ErrValidation)
		}
		if leg.BetOn.Price <= 0 {
			return nil, 0, fmt.Errorf("%w: leg price must be positive", ErrValidation)
		}
		if !validCategories[leg.Category] {
			return nil, 0, fmt.Errorf("%w: unknown market category %q", ErrValidation, leg.Category)
		}
	}

	// Aposta só pode vir de identidade conectada ao canal em tempo real
	online, err := s.Presence.IsOnline(ctx, req.PlayerID)
	if err != nil {
		return nil, 0, fmt.Errorf("presence check: %w", err)
	}
	if !online {
		return nil, 0, ErrPlayerOffline
	}

	player, err := s.Repo.GetPlayer(ctx, req.PlayerID)
	if err != nil {
		return nil, 0, err
	}

	// Payout potencial = stake x produto das odds, fixado aqui e nunca
	// recalculado depois
	cumulativeOdds := 1.0
	for _, leg := range req.Legs {
		cumulativeOdds *= leg.BetOn.Price
	}
	payoutCents := int64(math.Round(float64(req.StakeCents) * cumulativeOdds))

	bet := &ledger.Bet{
		PlayerID:    player.ID,
		StakeCents:  req.StakeCents,
		PayoutCents: payoutCents,
		Status:      ledger.StatusPending,
		BetType:     req.BetType,
	}
	details := make([]*ledger.BetDetail, 0, len(req.Legs))
	for _, leg := range req.Legs {
		details = append(details, &ledger.BetDetail{
			EventID:      leg.EventID,
			SportKey:     leg.SportKey,
			SportTitle:   leg.SportTitle,
			Category:     leg.Category,
			Selection:    leg.BetOn.Name,
			Price:        leg.BetOn.Price,
			Point:        leg.BetOn.Point,
			Bookmaker:    leg.Bookmaker,
			CommenceTime: leg.CommenceTime,
			Status:       ledger.StatusPending,
		})
	}

	newBalance, err := s.Repo.PlaceBet(ctx, bet, details)
	if err != nil {
		return nil, 0, err
	}

	// Registro no scheduler é best-effort pós-commit: falha é logada e o leg
	// pode ser reagendado por tooling; o débito nunca é desfeito aqui
	for _, d := range details {
		if err := s.Sched.Schedule(ctx, d.ID, d.CommenceTime); err != nil {
			s.Log.Error("schedule leg failed",
				zap.String("betDetailId", d.ID),
				zap.Time("commence", d.CommenceTime),
				zap.Error(err))
		}
	}

	playerMsg, agentMsg := placementMessages(req, player.Username)
	s.Alerts.Notify(ctx, notifier.Alert{
		Type:          notifier.KindBetPlaced,
		Player:        notifier.AlertPlayer{ID: player.ID, Username: player.Username},
		Agent:         player.AgentID,
		BetID:         bet.ID,
		PlayerMessage: playerMsg,
		AgentMessage:  agentMsg,
	})
	s.Alerts.NotifyCredits(ctx, player.ID, player.Username, player.AgentID, newBalance)

	if s.Events != nil {
		eventIDs := make([]string, len(details))
		for i, d := range details {
			eventIDs[i] = d.EventID
		}
		err := s.Events.PublishBetPlaced(ctx, events.BetPlaced{
			BetID:       bet.ID,
			PlayerID:    player.ID,
			AgentID:     player.AgentID,
			BetType:     bet.BetType,
			StakeCents:  bet.StakeCents,
			PayoutCents: bet.PayoutCents,
			EventIDs:    eventIDs,
		})
		if err != nil {
			s.Log.Warn("publish bet_placed failed", zap.String("betId", bet.ID), zap.Error(err))
		}
	}

	s.Log.Info("bet placed",
		zap.String("betId", bet.ID),
		zap.String("playerId", player.ID),
		zap.Int64("stake_cents", bet.StakeCents),
		zap.Int64("payout_cents", bet.PayoutCents),
		zap.Int("legs", len(details)))
	return bet, newBalance, nil
}

func placementMessages(req dto.PlaceBetRequest, username string) (string, string) {
	stake := float64(req.StakeCents) / 100
	if req.BetType == ledger.BetTypeSingle {
		sel := req.Legs[0].BetOn
		return fmt.Sprintf("Placed a bet on %s with odds of %.2f. Bet amount: $%.2f.", sel.Name, sel.Price, stake),
			fmt.Sprintf("Player %s placed a bet of $%.2f on %s with odds of %.2f.", username, stake, sel.Name, sel.Price)
	}
	return fmt.Sprintf("Combo bet placed successfully! Bet amount: $%.2f", stake),
		fmt.Sprintf("Player %s placed a combo bet of $%.2f.", username, stake)
}

// GetBet retorna a aposta com os legs
func (s *Service) GetBet(ctx context.Context, betID string) (*ledger.Bet, []*ledger.BetDetail, error) {
	bet, err := s.Repo.GetBet(ctx, betID)
	if err != nil {
		return nil, nil, err
	}
	details, err := s.Repo.DetailsForBet(ctx, betID)
	if err != nil {
		return nil, nil, err
	}
	return bet, details, nil
}

// ListBets lista apostas com filtros/paginação
func (s *Service) ListBets(ctx context.Context, q ledger.BetQuery) ([]*ledger.Bet, int, error) {
	return s.Repo.ListBets(ctx, q)
}

// ResolveLeg é o override de admin: força o status de um leg, retira o leg
// das filas e reexecuta a agregação do pai (incluindo estorno guardado por
// saldo quando um won anterior vira lost).
func (s *Service) ResolveLeg(ctx context.Context, betDetailID, status string) (*ledger.Bet, error) {
	switch status {
	case ledger.StatusWon, ledger.StatusLost, ledger.StatusDraw, ledger.StatusFailed:
	default:
		return nil, fmt.Errorf("%w: cannot force status %q", ErrValidation, status)
	}

	d, err := s.Repo.GetBetDetail(ctx, betDetailID)
	if err != nil {
		return nil, err
	}

	// Retira o leg das duas estruturas; ambas as remoções são idempotentes
	if err := s.Sched.Remove(ctx, d.ID); err != nil {
		s.Log.Warn("scheduler remove failed", zap.String("betDetailId", d.ID), zap.Error(err))
	}
	s.retractFromQueue(ctx, d.ID)

	if err := s.Repo.UpdateDetailStatus(ctx, d.ID, status, true); err != nil {
		return nil, err
	}
	if err := s.Rec.Reconcile(ctx, d.BetID); err != nil {
		return nil, err
	}

	s.Log.Info("leg resolved by operator",
		zap.String("betDetailId", d.ID),
		zap.String("betId", d.BetID),
		zap.String("status", status))
	return s.Repo.GetBet(ctx, d.BetID)
}

// retractFromQueue remove da fila de liquidação qualquer snapshot do leg,
// localizado pelo id (a remoção por bytes exige o item exato, então a fila é
// varrida em vez de reconstruir o snapshot)
func (s *Service) retractFromQueue(ctx context.Context, betDetailID string) {
	items, err := s.Queue.Items(ctx)
	if err != nil {
		s.Log.Warn("queue read failed", zap.String("betDetailId", betDetailID), zap.Error(err))
		return
	}
	for _, raw := range items {
		e, err := settlequeue.Unmarshal(raw)
		if err != nil || e.BetDetailID != betDetailID {
			continue
		}
		if err := s.Queue.Remove(ctx, raw); err != nil {
			s.Log.Warn("queue remove failed", zap.String("betDetailId", betDetailID), zap.Error(err))
		}
	}
}

// quoteRedemption cota o resgate sobre as odds ao vivo:
// payout = stake x PI(preço atual)/PI(preço travado), menos a comissão.
// failed=true quando algum bookmaker/mercado não está mais cotado.
func (s *Service) quoteRedemption(ctx context.Context, bet *ledger.Bet, details []*ledger.BetDetail) (payoutCents int64, failed bool, err error) {
	totalOld, totalNew := 1.0, 1.0
	for _, d := range details {
		odds, err := s.Odds.EventOdds(ctx, d.SportKey, d.EventID, d.Category)
		if err != nil {
			return 0, false, fmt.Errorf("quote leg %s: %w", d.ID, err)
		}
		price, ok := odds.PriceFor(d.Bookmaker, d.Category, d.Selection)
		if !ok {
			// bookmaker/mercado sumiu: resgate inteiro falha, stake devolvido
			return 0, true, nil
		}
		totalOld *= d.Price
		totalNew *= price
	}

	amount := totalNew / totalOld * float64(bet.StakeCents)
	final := amount - s.CommissionPct/100*amount
	return int64(math.Round(final)), false, nil
}

// RedeemQuote é a prévia do resgate, sem mutação de estado
func (s *Service) RedeemQuote(ctx context.Context, playerID, betID string) (*dto.RedeemQuoteResponse, error) {
	bet, details, err := s.ownedPendingBet(ctx, playerID, betID)
	if err != nil {
		return nil, err
	}

	payout, failed, err := s.quoteRedemption(ctx, bet, details)
	if err != nil {
		return nil, err
	}
	if failed {
		return &dto.RedeemQuoteResponse{
			Message:     "There was some error in processing this bet so, you will be refunded with the complete amount",
			AmountCents: bet.StakeCents,
			Failed:      true,
		}, nil
	}
	return &dto.RedeemQuoteResponse{
		Message:     "Your final payout will be",
		AmountCents: payout,
	}, nil
}

// Redeem liquida a aposta antecipadamente pelas odds ao vivo. Não passa pelos
// algoritmos por categoria: remove os legs do scheduler e credita a cotação
// (ou devolve o stake integral quando algum leg não é mais cotável).
func (s *Service) Redeem(ctx context.Context, playerID, betID string) (*dto.RedeemQuoteResponse, error) {
	bet, details, err := s.ownedPendingBet(ctx, playerID, betID)
	if err != nil {
		return nil, err
	}
	player, err := s.Repo.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	// Cota antes de retirar os legs do scheduler: provedor indisponível
	// aborta com a aposta ainda pendente e agendada
	payout, failed, err := s.quoteRedemption(ctx, bet, details)
	if err != nil {
		return nil, err
	}

	// Retração idempotente: o leg pode já ter sido promovido
	for _, d := range details {
		if err := s.Sched.Remove(ctx, d.ID); err != nil {
			s.Log.Warn("scheduler remove failed", zap.String("betDetailId", d.ID), zap.Error(err))
		}
	}

	if failed {
		newBal, err := s.Repo.FailBetWithRefund(ctx, bet.ID, bet.StakeCents)
		if err != nil {
			return nil, err
		}
		s.Alerts.Notify(ctx, notifier.Alert{
			Type:          notifier.KindBetRedeemFailed,
			Player:        notifier.AlertPlayer{ID: player.ID, Username: player.Username},
			Agent:         player.AgentID,
			BetID:         bet.ID,
			PlayerMessage: fmt.Sprintf("Bet (ID: %s) redeem failed!", bet.ID),
			AgentMessage:  fmt.Sprintf("A Player %s failed to redeem a bet (ID: %s)", player.Username, bet.ID),
		})
		s.Alerts.NotifyCredits(ctx, player.ID, player.Username, player.AgentID, newBal)
		return &dto.RedeemQuoteResponse{
			Message:      "There was some error in processing this bet so, you will be refunded with the complete amount",
			AmountCents:  bet.StakeCents,
			Failed:       true,
			BalanceCents: newBal,
		}, nil
	}

	newBal, err := s.Repo.RedeemBet(ctx, bet.ID, payout)
	if err != nil {
		return nil, err
	}
	s.Alerts.Notify(ctx, notifier.Alert{
		Type:   notifier.KindBetRedeemed,
		Player: notifier.AlertPlayer{ID: player.ID, Username: player.Username},
		Agent:  player.AgentID,
		BetID:  bet.ID,
		PlayerMessage: fmt.Sprintf("A Bet (ID: %s) redeemed successfully with a payout of %.2f!",
			bet.ID, float64(payout)/100),
		AgentMessage: fmt.Sprintf("A Player %s redeemed a bet (ID: %s) with a payout of %.2f",
			player.Username, bet.ID, float64(payout)/100),
	})
	s.Alerts.NotifyCredits(ctx, player.ID, player.Username, player.AgentID, newBal)

	s.Log.Info("bet redeemed",
		zap.String("betId", bet.ID),
		zap.Int64("payout_cents", payout))
	return &dto.RedeemQuoteResponse{
		Message:      "Bet Redeemed Successfully",
		AmountCents:  payout,
		BalanceCents: newBal,
	}, nil
}

func (s *Service) ownedPendingBet(ctx context.Context, playerID, betID string) (*ledger.Bet, []*ledger.BetDetail, error) {
	bet, err := s.Repo.GetBet(ctx, betID)
	if err != nil {
		return nil, nil, err
	}
	if bet.PlayerID != playerID {
		return nil, nil, ledger.ErrNotFound
	}
	if bet.Status != ledger.StatusPending {
		return nil, nil, ledger.ErrNotPending
	}
	details, err := s.Repo.DetailsForBet(ctx, betID)
	if err != nil {
		return nil, nil, err
	}
	return bet, details, nil
}

// helper usado pelos handlers para montar a janela de filtro por dia
func ParseDay(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", ErrValidation, v)
	}
	return &t, nil
}
