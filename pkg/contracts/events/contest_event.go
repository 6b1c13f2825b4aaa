package events

import "time"

// Tipos de evento publicados no tópico "contest_events"
const (
	ContestCreated = "contest_created"
	ContestMatched = "contest_matched"
	ContestClosed  = "contest_closed"
	ContestSettled = "contest_settled"
)

// ContestEvent é emitido pelo contest-service após o commit de cada transição.
type ContestEvent struct {
	Type           string    `json:"type"`
	ContestID      string    `json:"contest_id"`
	CreatorID      string    `json:"creator_id"`
	ClaimerID      string    `json:"claimer_id,omitempty"`
	Status         string    `json:"status"`
	Outcome        string    `json:"outcome,omitempty"`
	WinnerID       string    `json:"winner_id,omitempty"`
	StakeCents     int64     `json:"stake_cents"`
	PlatformMargin int64     `json:"platform_margin_cents,omitempty"` // apenas relatório
	Ts             time.Time `json:"ts"`
}
