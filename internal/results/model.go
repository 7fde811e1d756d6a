package results

import (
	"encoding/json"
	"strconv"
	"time"
)

// ScoreValue aceita placar como número ou string (o provedor devolve os dois).
// Nil indica placar ausente.
type ScoreValue struct {
	Value *float64
}

func (s *ScoreValue) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		s.Value = nil
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		s.Value = &f
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		s.Value = nil
		return nil
	}
	s.Value = &f
	return nil
}

func (s ScoreValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Value)
}

// EntrantScore é a pontuação de um participante no payload de scores
type EntrantScore struct {
	Name  string     `json:"name"`
	Score ScoreValue `json:"score"`
}

// Event é um evento do endpoint de scores do provedor
type Event struct {
	ID           string         `json:"id"`
	SportKey     string         `json:"sport_key"`
	CommenceTime time.Time      `json:"commence_time"`
	Completed    bool           `json:"completed"`
	HomeTeam     string         `json:"home_team"`
	AwayTeam     string         `json:"away_team"`
	Scores       []EntrantScore `json:"scores"`
}

// ScoreFor retorna a pontuação do participante pelo nome (nil se ausente)
func (e *Event) ScoreFor(name string) *float64 {
	for _, s := range e.Scores {
		if s.Name == name {
			return s.Score.Value
		}
	}
	return nil
}

// Outcome é uma seleção cotada num mercado
type Outcome struct {
	Name  string   `json:"name"`
	Price float64  `json:"price"`
	Point *float64 `json:"point,omitempty"`
}

// Market é um mercado de um bookmaker ("h2h", "spreads", "totals", "outrights")
type Market struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

// Bookmaker agrupa os mercados cotados por uma casa
type Bookmaker struct {
	Key     string   `json:"key"`
	Markets []Market `json:"markets"`
}

// EventOdds é a resposta do endpoint de odds de um evento
type EventOdds struct {
	ID         string      `json:"id"`
	SportKey   string      `json:"sport_key"`
	HomeTeam   string      `json:"home_team"`
	AwayTeam   string      `json:"away_team"`
	Bookmakers []Bookmaker `json:"bookmakers"`
}

// PriceFor localiza o preço atual de uma seleção num bookmaker/mercado.
// ok=false quando bookmaker, mercado ou seleção não estão mais cotados.
func (e *EventOdds) PriceFor(bookmaker, market, selection string) (float64, bool) {
	for _, b := range e.Bookmakers {
		if b.Key != bookmaker {
			continue
		}
		for _, m := range b.Markets {
			if m.Key != market {
				continue
			}
			for _, o := range m.Outcomes {
				if o.Name == selection {
					return o.Price, true
				}
			}
		}
	}
	return 0, false
}
