package odds

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/radieske/prop-contests/internal/contest-service/model"
)

// Quote é o resultado do cálculo de um lado. Valor zero significa sem cotação.
type Quote struct {
	Spread     decimal.Decimal `json:"spread"`
	Likelihood int             `json:"likelihood"`
	Cover      int64           `json:"cover_cents"`
	WinBonus   int64           `json:"win_bonus_cents"`
	ToWin      int64           `json:"to_win_cents"`
}

func (q Quote) IsZero() bool { return q.Likelihood == 0 }

// Calculator transforma projeções em valores de cobertura e prêmio.
// Todo dinheiro é calculado em centavos inteiros.
type Calculator struct {
	table   *Table
	curve   Curve
	bonuses bool
}

func NewCalculator(t *Table, c Curve, bonuses bool) *Calculator {
	if c == nil {
		c = DefaultCurve
	}
	return &Calculator{table: t, curve: c, bonuses: bonuses}
}

// EffectiveLikelihood aplica o espelhamento da direção UNDER
func (c *Calculator) EffectiveLikelihood(projected decimal.Decimal, dir model.Direction) int {
	p := c.curve.Likelihood(projected)
	if p == 0 {
		return 0
	}
	if dir == model.Under {
		p = 100 - p
	}
	if p < MinLikelihood || p > MaxLikelihood {
		return 0
	}
	return p
}

// ComputeSide calcula spread, cover e bônus de um lado. Nunca falha: entradas
// sem cotação retornam Quote zerada.
func (c *Calculator) ComputeSide(projected decimal.Decimal, dir model.Direction, stakeCents int64, matching bool) Quote {
	if !dir.Valid() || stakeCents <= 0 {
		return Quote{}
	}
	q := c.QuoteLikelihood(c.EffectiveLikelihood(projected, dir), stakeCents, matching)
	if q.IsZero() {
		return Quote{}
	}
	q.Spread = projected
	return q
}

// QuoteLikelihood calcula os valores diretamente a partir da probabilidade
func (c *Calculator) QuoteLikelihood(likelihood int, stakeCents int64, matching bool) Quote {
	row, ok := c.table.Row(likelihood)
	if !ok || stakeCents <= 0 {
		return Quote{}
	}
	mult := row.BetPayout
	if matching {
		mult = row.MatchBetPayout
	}
	cover, ok := cents(stakeCents, mult)
	if !ok {
		return Quote{}
	}
	q := Quote{Likelihood: likelihood, Cover: cover}
	if c.bonuses {
		bonus, ok := cents(stakeCents, row.BonusPayout)
		if !ok || bonus > math.MaxInt64-cover {
			return Quote{}
		}
		q.WinBonus = bonus
	}
	q.ToWin = q.Cover + q.WinBonus
	return q
}

var maxCents = decimal.NewFromInt(math.MaxInt64)

// cents multiplica exatamente e arredonda meio para longe do zero.
// Retorna false quando o resultado não cabe em int64.
func cents(stake int64, mult decimal.Decimal) (int64, bool) {
	v := decimal.NewFromInt(stake).Mul(mult).Round(0)
	if v.GreaterThan(maxCents) {
		return 0, false
	}
	return v.IntPart(), true
}
