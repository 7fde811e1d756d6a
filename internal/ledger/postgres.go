package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Postgres implementa a persistência de apostas, legs, placares e créditos
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var (
	ErrInsufficientFunds = errors.New("insufficient credits")
	ErrNotFound          = errors.New("not found")
	ErrConflictingBet    = errors.New("conflicting pending bet on same event and market")
	ErrNotPending        = errors.New("bet is not pending")
)

// GetPlayer retorna o jogador pelo id
func (p *Postgres) GetPlayer(ctx context.Context, id string) (*Player, error) {
	var pl Player
	err := p.db.QueryRowContext(ctx, `
		SELECT id, username, agent_id, credits_cents, created_at, updated_at
		FROM players WHERE id=$1`, id).
		Scan(&pl.ID, &pl.Username, &pl.AgentID, &pl.CreditsCents, &pl.CreatedAt, &pl.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pl, nil
}

// PlaceBet executa a colocação como unidade atômica:
// lock na linha do jogador, checagem de saldo, guarda de mercado duplicado,
// débito do stake e insert de bets + bet_details. Tudo ou nada.
// Retorna o saldo atualizado do jogador.
func (p *Postgres) PlaceBet(ctx context.Context, b *Bet, details []*BetDetail) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT credits_cents FROM players WHERE id=$1 FOR UPDATE`, b.PlayerID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	if balance < b.StakeCents {
		return 0, ErrInsufficientFunds
	}

	// Guarda de mercado duplicado: rejeita leg quando o jogador já tem outro leg
	// pendente no mesmo evento+categoria com seleção divergente
	for _, d := range details {
		var conflicts int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(1)
			FROM bet_details d
			JOIN bets b ON b.id = d.bet_id
			WHERE b.player_id=$1 AND d.event_id=$2 AND d.category=$3
			  AND d.status='pending' AND d.selection <> $4`,
			b.PlayerID, d.EventID, d.Category, d.Selection).Scan(&conflicts)
		if err != nil {
			return 0, err
		}
		if conflicts > 0 {
			return 0, ErrConflictingBet
		}
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE players SET credits_cents = credits_cents - $1, updated_at = NOW() WHERE id=$2`,
		b.StakeCents, b.PlayerID); err != nil {
		return 0, err
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO bets (id, player_id, stake_cents, payout_cents, status, bet_type, resolved, retry_count)
		VALUES ($1,$2,$3,$4,'pending',$5,false,0)`,
		b.ID, b.PlayerID, b.StakeCents, b.PayoutCents, b.BetType); err != nil {
		return 0, err
	}

	for _, d := range details {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.BetID = b.ID
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO bet_details
				(id, bet_id, event_id, sport_key, sport_title, category, selection, price, point,
				 bookmaker, commence_time, status, resolved)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'pending',false)`,
			d.ID, d.BetID, d.EventID, d.SportKey, d.SportTitle, d.Category, d.Selection,
			d.Price, d.Point, d.Bookmaker, d.CommenceTime); err != nil {
			return 0, err
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO bet_transactions (bet_id, old_status, new_status, reason)
		VALUES ($1,'','pending','place:debit stake')`, b.ID); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return balance - b.StakeCents, nil
}

// GetBet retorna a aposta pai pelo id
func (p *Postgres) GetBet(ctx context.Context, id string) (*Bet, error) {
	var b Bet
	err := p.db.QueryRowContext(ctx, `
		SELECT id, player_id, stake_cents, payout_cents, status, bet_type, resolved, retry_count, created_at, updated_at
		FROM bets WHERE id=$1`, id).
		Scan(&b.ID, &b.PlayerID, &b.StakeCents, &b.PayoutCents, &b.Status, &b.BetType,
			&b.Resolved, &b.RetryCount, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBetDetail retorna um leg pelo id
func (p *Postgres) GetBetDetail(ctx context.Context, id string) (*BetDetail, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, bet_id, event_id, sport_key, sport_title, category, selection, price, point,
		       bookmaker, commence_time, status, resolved, created_at, updated_at
		FROM bet_details WHERE id=$1`, id)
	return scanDetail(row)
}

// DetailsForBet retorna todos os legs de uma aposta pai
func (p *Postgres) DetailsForBet(ctx context.Context, betID string) ([]*BetDetail, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, bet_id, event_id, sport_key, sport_title, category, selection, price, point,
		       bookmaker, commence_time, status, resolved, created_at, updated_at
		FROM bet_details WHERE bet_id=$1 ORDER BY created_at`, betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BetDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanDetail(s scanner) (*BetDetail, error) {
	var d BetDetail
	err := s.Scan(&d.ID, &d.BetID, &d.EventID, &d.SportKey, &d.SportTitle, &d.Category,
		&d.Selection, &d.Price, &d.Point, &d.Bookmaker, &d.CommenceTime,
		&d.Status, &d.Resolved, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDetailStatus grava status/resolved de um leg
func (p *Postgres) UpdateDetailStatus(ctx context.Context, id, status string, resolved bool) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE bet_details SET status=$1, resolved=$2, updated_at=NOW() WHERE id=$3`,
		status, resolved, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateBetStatus grava status/resolved da aposta pai e registra a transição
func (p *Postgres) UpdateBetStatus(ctx context.Context, id, status string, resolved bool) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var old string
	if err = tx.QueryRowContext(ctx, `SELECT status FROM bets WHERE id=$1 FOR UPDATE`, id).Scan(&old); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE bets SET status=$1, resolved=$2, updated_at=NOW() WHERE id=$3`, status, resolved, id); err != nil {
		return err
	}
	if old != status {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO bet_transactions (bet_id, old_status, new_status, reason)
			VALUES ($1,$2,$3,'status update')`, id, old, status); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// IncrementBetRetry soma uma tentativa falha no contador da aposta pai
func (p *Postgres) IncrementBetRetry(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE bets SET retry_count = retry_count + 1, updated_at=NOW() WHERE id=$1`, id)
	return err
}

// PayoutWin credita o payout da aposta exatamente uma vez. A guarda contra
// pagamento duplicado é o estado creditado anterior (won/draw/redeem já
// resolvido), simétrica ao creditedBefore do FlipToLost: uma aposta resolvida
// como lost nunca recebeu crédito, então um override que a vira won paga e
// atualiza o status normalmente.
func (p *Postgres) PayoutWin(ctx context.Context, betID, status string) (paid bool, newBalance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback()

	var playerID, old string
	var payout int64
	var resolved bool
	err = tx.QueryRowContext(ctx, `
		SELECT player_id, payout_cents, status, resolved FROM bets WHERE id=$1 FOR UPDATE`, betID).
		Scan(&playerID, &payout, &old, &resolved)
	if err == sql.ErrNoRows {
		return false, 0, ErrNotFound
	}
	if err != nil {
		return false, 0, err
	}

	creditedBefore := resolved && (old == StatusWon || old == StatusDraw || old == StatusRedeem)
	if creditedBefore {
		return false, 0, tx.Commit()
	}

	if err = tx.QueryRowContext(ctx,
		`SELECT credits_cents FROM players WHERE id=$1 FOR UPDATE`, playerID).Scan(&newBalance); err != nil {
		return false, 0, err
	}
	newBalance += payout

	if _, err = tx.ExecContext(ctx,
		`UPDATE players SET credits_cents=$1, updated_at=NOW() WHERE id=$2`, newBalance, playerID); err != nil {
		return false, 0, err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE bets SET status=$1, resolved=true, updated_at=NOW() WHERE id=$2`, status, betID); err != nil {
		return false, 0, err
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO bet_transactions (bet_id, old_status, new_status, reason)
		VALUES ($1,$2,$3,$4)`, betID, old, status,
		fmt.Sprintf("payout:credit %d", payout)); err != nil {
		return false, 0, err
	}

	if err = tx.Commit(); err != nil {
		return false, 0, err
	}
	return true, newBalance, nil
}

// FlipToLost marca a aposta como perdida. Se o payout já havia sido creditado
// (status won/redeem com resolved=true), tenta estornar; saldo insuficiente
// gera linha em credit_arrears em vez de corromper o saldo — a aposta ainda
// vira lost para que status e verdade financeira não divirjam.
func (p *Postgres) FlipToLost(ctx context.Context, betID string) (reversed bool, arrears bool, newBalance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, false, 0, err
	}
	defer tx.Rollback()

	var playerID, old string
	var payout int64
	var resolved bool
	err = tx.QueryRowContext(ctx, `
		SELECT player_id, payout_cents, status, resolved FROM bets WHERE id=$1 FOR UPDATE`, betID).
		Scan(&playerID, &payout, &old, &resolved)
	if err == sql.ErrNoRows {
		return false, false, 0, ErrNotFound
	}
	if err != nil {
		return false, false, 0, err
	}

	creditedBefore := resolved && (old == StatusWon || old == StatusDraw || old == StatusRedeem)

	if creditedBefore {
		if err = tx.QueryRowContext(ctx,
			`SELECT credits_cents FROM players WHERE id=$1 FOR UPDATE`, playerID).Scan(&newBalance); err != nil {
			return false, false, 0, err
		}
		if newBalance >= payout {
			newBalance -= payout
			if _, err = tx.ExecContext(ctx,
				`UPDATE players SET credits_cents=$1, updated_at=NOW() WHERE id=$2`, newBalance, playerID); err != nil {
				return false, false, 0, err
			}
			reversed = true
		} else {
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO credit_arrears (id, player_id, bet_id, amount_cents, reason)
				VALUES ($1,$2,$3,$4,'reversal on flip to lost: insufficient credits')`,
				uuid.NewString(), playerID, betID, payout); err != nil {
				return false, false, 0, err
			}
			arrears = true
		}
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE bets SET status='lost', resolved=true, updated_at=NOW() WHERE id=$1`, betID); err != nil {
		return false, false, 0, err
	}
	if old != StatusLost {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO bet_transactions (bet_id, old_status, new_status, reason)
			VALUES ($1,$2,'lost',$3)`, betID, old,
			fmt.Sprintf("flip to lost (reversed=%t arrears=%t)", reversed, arrears)); err != nil {
			return false, false, 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return false, false, 0, err
	}
	return reversed, arrears, newBalance, nil
}

// RedeemBet fecha a aposta como resgatada e credita o payout calculado
// sobre as odds ao vivo. Exige status pending.
func (p *Postgres) RedeemBet(ctx context.Context, betID string, payoutCents int64) (newBalance int64, err error) {
	return p.closeAndCredit(ctx, betID, StatusRedeem, true, payoutCents, "redeem:credit payout")
}

// FailBetWithRefund fecha a aposta como failed devolvendo o stake integral
// (caminho de resgate com bookmaker indisponível).
func (p *Postgres) FailBetWithRefund(ctx context.Context, betID string, refundCents int64) (newBalance int64, err error) {
	return p.closeAndCredit(ctx, betID, StatusFailed, false, refundCents, "redeem failed:refund stake")
}

func (p *Postgres) closeAndCredit(ctx context.Context, betID, status string, resolved bool, amount int64, reason string) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var playerID, old string
	err = tx.QueryRowContext(ctx,
		`SELECT player_id, status FROM bets WHERE id=$1 FOR UPDATE`, betID).Scan(&playerID, &old)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if old != StatusPending {
		return 0, ErrNotPending
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE bet_details SET status=$1, resolved=$2, updated_at=NOW() WHERE bet_id=$3`,
		status, resolved, betID); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE bets SET status=$1, resolved=$2, updated_at=NOW() WHERE id=$3`,
		status, resolved, betID); err != nil {
		return 0, err
	}

	var balance int64
	if err = tx.QueryRowContext(ctx,
		`SELECT credits_cents FROM players WHERE id=$1 FOR UPDATE`, playerID).Scan(&balance); err != nil {
		return 0, err
	}
	balance += amount
	if _, err = tx.ExecContext(ctx,
		`UPDATE players SET credits_cents=$1, updated_at=NOW() WHERE id=$2`, balance, playerID); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO bet_transactions (bet_id, old_status, new_status, reason)
		VALUES ($1,$2,$3,$4)`, betID, old, status, reason); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return balance, nil
}

// UpsertScore persiste o placar final de um evento (idempotente por event_id)
func (p *Postgres) UpsertScore(ctx context.Context, s *Score) error {
	entrants, err := json.Marshal(s.Entrants)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO scores (event_id, home_team, away_team, entrants, completed, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (event_id) DO UPDATE
		SET home_team=$2, away_team=$3, entrants=$4, completed=$5, updated_at=NOW()`,
		s.EventID, s.HomeTeam, s.AwayTeam, entrants, s.Completed)
	return err
}

// ListBets lista apostas com filtros de player/agente/status/dia e paginação
func (p *Postgres) ListBets(ctx context.Context, q BetQuery) ([]*Bet, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.PlayerID != "" {
		where += " AND b.player_id=" + arg(q.PlayerID)
	}
	if q.AgentID != "" {
		where += " AND b.player_id IN (SELECT id FROM players WHERE agent_id=" + arg(q.AgentID) + ")"
	}
	switch q.Status {
	case "", "all":
	case "combo":
		where += " AND b.bet_type='combo'"
	default:
		where += " AND b.status=" + arg(q.Status)
	}
	if q.Day != nil {
		start := time.Date(q.Day.Year(), q.Day.Month(), q.Day.Day(), 0, 0, 0, 0, q.Day.Location())
		where += " AND b.created_at >= " + arg(start) + " AND b.created_at < " + arg(start.AddDate(0, 0, 1))
	}

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM bets b "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	query := `
		SELECT b.id, b.player_id, b.stake_cents, b.payout_cents, b.status, b.bet_type,
		       b.resolved, b.retry_count, b.created_at, b.updated_at
		FROM bets b ` + where + `
		ORDER BY b.created_at DESC
		LIMIT ` + arg(q.Limit) + ` OFFSET ` + arg((q.Page-1)*q.Limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Bet
	for rows.Next() {
		var b Bet
		if err := rows.Scan(&b.ID, &b.PlayerID, &b.StakeCents, &b.PayoutCents, &b.Status,
			&b.BetType, &b.Resolved, &b.RetryCount, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &b)
	}
	return out, total, rows.Err()
}
