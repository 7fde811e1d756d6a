package topics

const (
	// Apostas
	BetPlaced  = "bet_placed"
	BetSettled = "bet_settled"

	// DLQ de liquidação (legs que esgotaram os retries)
	SettlementDLQ = "bet_settlement_dlq"
)

// Canais Redis pub/sub consumidos pela camada de push em tempo real
const (
	BetNotifications = "bet-notifications"
	LiveUpdate       = "live-update"
)
