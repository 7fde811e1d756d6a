package events

import "time"

// Evento emitido pelo settlement-worker quando uma aposta pai atinge estado terminal.
type BetSettled struct {
	BetID       string    `json:"betId"`
	PlayerID    string    `json:"playerId"`
	Status      string    `json:"status"` // "won" | "lost" | "draw" | "failed" | "redeem"
	PayoutCents int64     `json:"payout_cents,omitempty"`
	Ts          time.Time `json:"ts"`
}

// Leg enviado para a DLQ após esgotar os retries de liquidação.
type SettlementFailed struct {
	BetDetailID string    `json:"betDetailId"`
	BetID       string    `json:"betId"`
	EventID     string    `json:"eventId"`
	SportKey    string    `json:"sportKey"`
	Reason      string    `json:"reason"`
	Ts          time.Time `json:"ts"`
}
