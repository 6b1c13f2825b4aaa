package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatisticFinal é publicado no tópico "statistic_final" quando a estatística
// de um subject (jogador/partida) fica definitiva. Pode chegar duplicado.
type StatisticFinal struct {
	SubjectID string          `json:"subject_id"`
	Value     decimal.Decimal `json:"value"`
	Source    string          `json:"source"`
	Ts        time.Time       `json:"ts"`
}
