package settlement

import (
	"fmt"
	"math"
	"strings"

	"github.com/radieske/bet-settlement-platform/internal/ledger"
	"github.com/radieske/bet-settlement-platform/internal/results"
)

// Result é o desfecho da avaliação de um leg contra o placar final.
type Result string

const (
	ResultWon     Result = ledger.StatusWon
	ResultLost    Result = ledger.StatusLost
	ResultDraw    Result = ledger.StatusDraw
	ResultPending Result = ledger.StatusPending
	ResultFailed  Result = ledger.StatusFailed
)

// Rule é a variante fechada por categoria de mercado: cada regra carrega os
// campos travados na criação do leg que o seu algoritmo precisa. O leg nunca
// é reprecificado aqui, só comparado contra o resultado.
type Rule interface {
	Settle(ev *results.Event) Result
}

// ForLeg resolve a regra de liquidação da categoria do leg.
// Categoria desconhecida ou linha ausente é erro, não um Result.
func ForLeg(d *ledger.BetDetail) (Rule, error) {
	switch d.Category {
	case ledger.CategoryH2H:
		return HeadToHead{Selection: d.Selection}, nil
	case ledger.CategorySpreads:
		if d.Point == nil {
			return nil, fmt.Errorf("spread leg %s has no line", d.ID)
		}
		return Spread{Selection: d.Selection, Line: *d.Point}, nil
	case ledger.CategoryTotals:
		if d.Point == nil {
			return nil, fmt.Errorf("totals leg %s has no line", d.ID)
		}
		return Totals{Side: d.Selection, Line: *d.Point}, nil
	case ledger.CategoryOutrights:
		return Outright{Selection: d.Selection}, nil
	default:
		return nil, fmt.Errorf("unknown market category %q", d.Category)
	}
}

// HeadToHead compara o placar dos dois times nomeados.
type HeadToHead struct {
	Selection string
}

func (r HeadToHead) Settle(ev *results.Event) Result {
	if !ev.Completed {
		return ResultPending
	}
	home := ev.ScoreFor(ev.HomeTeam)
	away := ev.ScoreFor(ev.AwayTeam)
	if home == nil || away == nil || *home < 0 || *away < 0 {
		return ResultFailed
	}

	if *home == *away {
		if strings.EqualFold(r.Selection, "draw") {
			return ResultWon
		}
		return ResultDraw
	}

	winner := ev.HomeTeam
	if *away > *home {
		winner = ev.AwayTeam
	}
	if r.Selection == winner {
		return ResultWon
	}
	return ResultLost
}

// Spread avalia o handicap: linha negativa indica que a seleção é o favorito.
type Spread struct {
	Selection string
	Line      float64
}

func (r Spread) Settle(ev *results.Event) Result {
	if !ev.Completed {
		return ResultPending
	}
	home := ev.ScoreFor(ev.HomeTeam)
	away := ev.ScoreFor(ev.AwayTeam)
	if home == nil || away == nil || *home < 0 || *away < 0 {
		return ResultFailed
	}

	diff := *home - *away

	// Empate contra a linha: push
	if math.Abs(diff) == math.Abs(r.Line) {
		return ResultDraw
	}

	if r.Line < 0 {
		// Lado do favorito
		if r.Selection == ev.HomeTeam && diff > math.Abs(r.Line) {
			return ResultWon
		}
		if r.Selection == ev.AwayTeam && diff < -math.Abs(r.Line) {
			return ResultWon
		}
		return ResultLost
	}

	// Lado do azarão
	if r.Selection == ev.HomeTeam && diff >= r.Line {
		return ResultWon
	}
	if r.Selection == ev.AwayTeam && diff <= r.Line {
		return ResultWon
	}
	return ResultLost
}

// Totals avalia Over/Under contra a soma dos placares.
type Totals struct {
	Side string // "Over" | "Under"
	Line float64
}

func (r Totals) Settle(ev *results.Event) Result {
	if !ev.Completed {
		return ResultPending
	}
	home := ev.ScoreFor(ev.HomeTeam)
	away := ev.ScoreFor(ev.AwayTeam)
	if home == nil || away == nil || *home < 0 || *away < 0 {
		return ResultFailed
	}

	total := *home + *away
	if total == r.Line {
		return ResultDraw
	}

	switch r.Side {
	case "Over":
		if total > r.Line {
			return ResultWon
		}
		return ResultLost
	case "Under":
		if total < r.Line {
			return ResultWon
		}
		return ResultLost
	default:
		return ResultFailed
	}
}

// Outright avalia o vencedor entre todos os participantes do evento.
type Outright struct {
	Selection string
}

func (r Outright) Settle(ev *results.Event) Result {
	if !ev.Completed {
		return ResultPending
	}

	selected := ev.ScoreFor(r.Selection)
	if selected == nil || *selected < 0 {
		return ResultFailed
	}

	max := math.Inf(-1)
	for _, s := range ev.Scores {
		if s.Score.Value != nil && *s.Score.Value > max {
			max = *s.Score.Value
		}
	}

	var atMax []string
	for _, s := range ev.Scores {
		if s.Score.Value != nil && *s.Score.Value == max {
			atMax = append(atMax, s.Name)
		}
	}

	if len(atMax) > 1 {
		for _, name := range atMax {
			if name == r.Selection {
				return ResultDraw
			}
		}
		return ResultLost
	}
	if len(atMax) == 1 && atMax[0] == r.Selection {
		return ResultWon
	}
	return ResultLost
}
