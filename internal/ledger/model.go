package ledger

import "time"

// Status possíveis de Bet e BetDetail.
const (
	StatusPending = "pending"
	StatusWon     = "won"
	StatusLost    = "lost"
	StatusDraw    = "draw"
	StatusRedeem  = "redeem"
	StatusFailed  = "failed"
)

// Categorias de mercado suportadas pelo motor de liquidação.
const (
	CategoryH2H       = "h2h"
	CategorySpreads   = "spreads"
	CategoryTotals    = "totals"
	CategoryOutrights = "outrights"
)

const (
	BetTypeSingle = "single"
	BetTypeCombo  = "combo"
)

// Player é o dono do saldo de créditos. Cadastro/permissões ficam fora deste módulo.
type Player struct {
	ID           string
	Username     string
	AgentID      string
	CreditsCents int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Bet é a aposta pai. PayoutCents = stake x produto das odds dos legs,
// calculado na criação e nunca recalculado depois.
type Bet struct {
	ID          string
	PlayerID    string
	StakeCents  int64
	PayoutCents int64
	Status      string
	BetType     string // "single" | "combo"
	Resolved    bool
	RetryCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BetDetail é um leg da aposta. Seleção, preço e linha são imutáveis após o insert;
// a liquidação só compara a seleção travada contra o resultado.
type BetDetail struct {
	ID           string
	BetID        string
	EventID      string
	SportKey     string
	SportTitle   string
	Category     string
	Selection    string
	Price        float64
	Point        *float64 // linha de spread/total, quando o mercado tem
	Bookmaker    string
	CommenceTime time.Time
	Status       string
	Resolved     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TeamScore é a pontuação final de um participante.
// Score nil indica placar ausente no provedor.
type TeamScore struct {
	Name  string   `json:"name"`
	Score *float64 `json:"score"`
}

// Score é o placar final persistido por evento (upsert idempotente).
type Score struct {
	EventID   string
	HomeTeam  string
	AwayTeam  string
	Entrants  []TeamScore
	Completed bool
	UpdatedAt time.Time
}

// BetQuery filtra listagens de apostas (player, agente ou admin).
type BetQuery struct {
	PlayerID string
	AgentID  string
	Status   string // "", "all" ou um status; "combo" filtra por bet_type
	Day      *time.Time
	Page     int
	Limit    int
}
