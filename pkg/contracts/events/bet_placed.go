package events

// Evento publicado pelo bet-service após o commit da aposta.
type BetPlaced struct {
	BetID       string   `json:"bet_id"`
	PlayerID    string   `json:"player_id"`
	AgentID     string   `json:"agent_id"`
	BetType     string   `json:"bet_type"` // "single" | "combo"
	StakeCents  int64    `json:"stake_cents"`
	PayoutCents int64    `json:"payout_cents"` // stake x produto das odds, fixado na criação
	EventIDs    []string `json:"event_ids"`
	TsUnixMs    int64    `json:"ts_unix_ms"`
}
