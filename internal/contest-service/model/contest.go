package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	Over  Direction = "OVER"
	Under Direction = "UNDER"
)

func (d Direction) Valid() bool { return d == Over || d == Under }

// Opposite retorna a direção do lado contrário
func (d Direction) Opposite() Direction {
	if d == Over {
		return Under
	}
	return Over
}

type ContestStatus string

const (
	StatusOpen    ContestStatus = "OPEN"
	StatusMatched ContestStatus = "MATCHED"
	StatusClosed  ContestStatus = "CLOSED"
)

// Rótulos de resultado gravados na liquidação
const (
	OutcomeUnmatched = "UNMATCHED"
	OutcomeTie       = "TIE"
	OutcomeCreator   = "CREATOR"
	OutcomeClaimer   = "CLAIMER"
)

// Side descreve um dos lados do contest: subject, direção, linha e valores calculados
type Side struct {
	SubjectID  string          `json:"subjectId"`
	Direction  Direction       `json:"direction"`
	Line       decimal.Decimal `json:"line"`
	Likelihood int             `json:"likelihood"`
	Cover      int64           `json:"cover_cents"`
	WinBonus   int64           `json:"win_bonus_cents"`
	ToWin      int64           `json:"to_win_cents"`
}

// Claim registra quem aceitou o contest
type Claim struct {
	UserID    string    `json:"userId"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// Outcome é o resultado final de um contest fechado
type Outcome struct {
	Label        string `json:"label"`
	WinnerID     string `json:"winnerId,omitempty"`
	WinnerAmount int64  `json:"winner_amount_cents"`
}

// Contest é o modelo persistido de uma aposta cabeça-a-cabeça.
// Claimer e Outcome só devem ser lidos junto com o Status (ver Validate).
type Contest struct {
	ID          string
	CreatorID   string
	Claimer     Opt[Claim]
	StakeCents  int64
	CreatorSide Side
	ClaimerSide Side
	Status      ContestStatus
	Ended       bool
	Outcome     Opt[Outcome]
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ClaimerID retorna o claimer apenas quando o status permite que ele exista
func (c *Contest) ClaimerID() (string, bool) {
	if c.Status == StatusOpen {
		return "", false
	}
	cl, ok := c.Claimer.Get()
	return cl.UserID, ok
}

// SameSubject indica contest de um único subject com direções opostas
func (c *Contest) SameSubject() bool {
	return c.CreatorSide.SubjectID == c.ClaimerSide.SubjectID
}

// SubjectIDs retorna os subjects distintos envolvidos
func (c *Contest) SubjectIDs() []string {
	if c.SameSubject() {
		return []string{c.CreatorSide.SubjectID}
	}
	return []string{c.CreatorSide.SubjectID, c.ClaimerSide.SubjectID}
}

// Validate confere a consistência entre status, claimer, ended e outcome
func (c *Contest) Validate() error {
	claimed := c.Claimer.IsSet()
	switch c.Status {
	case StatusOpen:
		if claimed || c.Ended || c.Outcome.IsSet() {
			return fmt.Errorf("contest %s: open contest with claimer/outcome", c.ID)
		}
	case StatusMatched:
		if !claimed || c.Ended || c.Outcome.IsSet() {
			return fmt.Errorf("contest %s: matched contest without claimer", c.ID)
		}
	case StatusClosed:
		if !c.Ended || !c.Outcome.IsSet() {
			return fmt.Errorf("contest %s: closed contest without outcome", c.ID)
		}
		if out, _ := c.Outcome.Get(); out.Label == OutcomeUnmatched && claimed {
			return fmt.Errorf("contest %s: unmatched contest with claimer", c.ID)
		}
	default:
		return fmt.Errorf("contest %s: unknown status %q", c.ID, c.Status)
	}
	return nil
}

// PlatformMargin é um valor derivado apenas para relatório: stake do perdedor
// menos o prêmio pago ao vencedor. Nunca entra no ledger.
func (c *Contest) PlatformMargin() int64 {
	out, ok := c.Outcome.Get()
	if !ok || c.Status != StatusClosed {
		return 0
	}
	switch out.Label {
	case OutcomeCreator:
		return c.StakeCents - c.CreatorSide.ToWin
	case OutcomeClaimer:
		return c.StakeCents - c.ClaimerSide.ToWin
	}
	return 0
}

// Contender é a participação de um usuário em um lado do contest
type Contender struct {
	ID         string
	ContestID  string
	UserID     string
	SubjectID  string
	Direction  Direction
	StakeCents int64
	ToWinCents int64
	Winner     bool
	Tied       bool
	CreatedAt  time.Time
}
