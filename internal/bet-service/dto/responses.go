package dto

import "time"

type PlaceBetResponse struct {
	BetID        string `json:"betId"`
	Status       string `json:"status"`
	PayoutCents  int64  `json:"payout_cents"`
	BalanceCents int64  `json:"balance_cents"`
}

type BetDetailResponse struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	SportKey     string    `json:"sport_key"`
	SportTitle   string    `json:"sport_title"`
	Category     string    `json:"category"`
	Selection    string    `json:"selection"`
	Price        float64   `json:"price"`
	Point        *float64  `json:"point,omitempty"`
	Bookmaker    string    `json:"bookmaker"`
	CommenceTime time.Time `json:"commence_time"`
	Status       string    `json:"status"`
	Resolved     bool      `json:"resolved"`
}

type BetResponse struct {
	ID          string              `json:"id"`
	PlayerID    string              `json:"player_id"`
	BetType     string              `json:"bet_type"`
	StakeCents  int64               `json:"stake_cents"`
	PayoutCents int64               `json:"payout_cents"`
	Status      string              `json:"status"`
	Resolved    bool                `json:"resolved"`
	CreatedAt   time.Time           `json:"created_at"`
	Details     []BetDetailResponse `json:"details,omitempty"`
}

type ListBetsResponse struct {
	TotalBets  int           `json:"totalBets"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"totalPages"`
	Data       []BetResponse `json:"data"`
}

// RedeemQuoteResponse é a prévia (ou o resultado) do resgate antecipado
type RedeemQuoteResponse struct {
	Message      string `json:"message"`
	AmountCents  int64  `json:"amount_cents"`
	Failed       bool   `json:"failed,omitempty"`
	BalanceCents int64  `json:"balance_cents,omitempty"`
}
