package dto

import "time"

// SelectionRequest é a seleção travada no momento da aposta
type SelectionRequest struct {
	Name  string   `json:"name"`
	Price float64  `json:"price"`
	Point *float64 `json:"point,omitempty"` // linha de spread/total
}

// LegRequest é um leg do bilhete
type LegRequest struct {
	EventID      string           `json:"event_id"`
	SportKey     string           `json:"sport_key"`
	SportTitle   string           `json:"sport_title"`
	CommenceTime time.Time        `json:"commence_time"`
	Category     string           `json:"category"` // h2h | spreads | totals | outrights
	Bookmaker    string           `json:"bookmaker"`
	BetOn        SelectionRequest `json:"bet_on"`
}

type PlaceBetRequest struct {
	PlayerID   string       `json:"player_id"`
	BetType    string       `json:"bet_type"` // "single" | "combo"
	StakeCents int64        `json:"stake_cents"`
	Legs       []LegRequest `json:"legs"`
}

// ResolveLegRequest força o status de um leg (override de admin)
type ResolveLegRequest struct {
	Status string `json:"status"` // won | lost | draw | failed
}
