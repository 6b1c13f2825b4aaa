package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subject é o alvo estatístico de um lado do contest (ex.: pontos de um jogador numa partida)
type Subject struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	ProjectedValue decimal.Decimal `json:"projectedValue"`
	StartsAt       time.Time       `json:"startsAt"`
	Final          bool            `json:"final"`
}

// Available indica se o subject ainda aceita apostas
func (s Subject) Available(now time.Time) bool {
	return !s.Final && now.Before(s.StartsAt)
}
