package odds

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/prop-contests/internal/contest-service/model"
)

func newCalc(t *testing.T, curve Curve, bonuses bool) *Calculator {
	t.Helper()
	tbl, err := Default()
	require.NoError(t, err)
	return NewCalculator(tbl, curve, bonuses)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeSideScenario(t *testing.T) {
	c := newCalc(t, nil, false)

	// projeção 20 -> probabilidade 40 na curva padrão
	q := c.ComputeSide(dec("20"), model.Over, 1000, false)
	assert.Equal(t, 40, q.Likelihood)
	assert.Equal(t, int64(1450), q.Cover)
	assert.Equal(t, int64(0), q.WinBonus)
	assert.Equal(t, int64(1450), q.ToWin)
	assert.True(t, q.Spread.Equal(dec("20")))

	m := c.ComputeSide(dec("20"), model.Over, 1000, true)
	assert.Equal(t, int64(1500), m.Cover)
}

func TestComputeSideWithBonus(t *testing.T) {
	c := newCalc(t, nil, true)

	q := c.ComputeSide(dec("20"), model.Over, 1000, false)
	assert.Equal(t, int64(1450), q.Cover)
	assert.Equal(t, int64(50), q.WinBonus)
	assert.Equal(t, int64(1500), q.ToWin)
}

func TestUnderMirrorsLikelihood(t *testing.T) {
	c := newCalc(t, nil, false)

	q := c.ComputeSide(dec("20"), model.Under, 1000, false)
	assert.Equal(t, 60, q.Likelihood)
	// linha 60: bet_payout 0.64
	assert.Equal(t, int64(640), q.Cover)
}

func TestOddsSymmetry(t *testing.T) {
	// curva identidade: projeção x -> probabilidade x
	identity := Curve{}
	for x := 2; x <= 98; x += 2 {
		identity[x] = x
	}
	c := newCalc(t, identity, true)

	for p := 2; p <= 98; p += 2 {
		for _, matching := range []bool{false, true} {
			over := c.ComputeSide(decimal.NewFromInt(int64(p)), model.Over, 2500, matching)
			under := c.ComputeSide(decimal.NewFromInt(int64(100-p)), model.Under, 2500, matching)
			require.False(t, over.IsZero(), "p=%d", p)
			assert.Equal(t, over.Likelihood, under.Likelihood, "p=%d", p)
			assert.Equal(t, over.Cover, under.Cover, "p=%d", p)
			assert.Equal(t, over.WinBonus, under.WinBonus, "p=%d", p)
			assert.Equal(t, over.ToWin, under.ToWin, "p=%d", p)
		}
	}
}

func TestInterpolationDeterminism(t *testing.T) {
	c := newCalc(t, nil, false)

	for x := 1; x < 60; x += 2 {
		lo, hi := DefaultCurve[x-1], DefaultCurve[x+1]
		want := roundHalfAway(lo+hi, 2)
		for i := 0; i < 5; i++ {
			got := c.EffectiveLikelihood(decimal.NewFromInt(int64(x)), model.Over)
			require.Equal(t, want, got, "x=%d", x)
		}
	}

	// 21 fica entre 40 e 45: 42.5 arredonda para 43
	assert.Equal(t, 43, c.EffectiveLikelihood(dec("21"), model.Over))
	// 20.5 arredonda para 21 antes de consultar a curva
	assert.Equal(t, 43, c.EffectiveLikelihood(dec("20.5"), model.Over))
	assert.Equal(t, 40, c.EffectiveLikelihood(dec("20.49"), model.Over))
}

func TestComputeSideFailsSoft(t *testing.T) {
	c := newCalc(t, nil, false)

	assert.True(t, c.ComputeSide(dec("-3"), model.Over, 1000, false).IsZero())
	assert.True(t, c.ComputeSide(dec("61"), model.Over, 1000, false).IsZero())
	assert.True(t, c.ComputeSide(dec("200"), model.Under, 1000, false).IsZero())
	assert.True(t, c.ComputeSide(dec("20"), model.Direction("SIDEWAYS"), 1000, false).IsZero())
	assert.True(t, c.ComputeSide(dec("20"), model.Over, 0, false).IsZero())

	empty := NewCalculator(&Table{}, nil, false)
	assert.Equal(t, Quote{}, empty.ComputeSide(dec("20"), model.Over, 1000, false))

	var nilTable *Table
	assert.True(t, NewCalculator(nilTable, nil, false).ComputeSide(dec("20"), model.Over, 1000, true).IsZero())
}

func TestRoundHalfAway(t *testing.T) {
	assert.Equal(t, 3, roundHalfAway(5, 2))
	assert.Equal(t, 2, roundHalfAway(4, 2))
	assert.Equal(t, -3, roundHalfAway(-5, 2))
	assert.Equal(t, 1, roundHalfAway(-1, -2))
}

func TestComputeSideRejectsOverflowingStake(t *testing.T) {
	plain := newCalc(t, nil, false)
	assert.True(t, plain.ComputeSide(dec("20"), model.Over, math.MaxInt64, false).IsZero())
	assert.True(t, plain.ComputeSide(dec("20"), model.Over, 7_000_000_000_000_000_000, true).IsZero())

	// cover cabe em int64, mas cover + bônus não
	bonus := newCalc(t, nil, true)
	var stake int64 = 6_300_000_000_000_000_000
	assert.False(t, plain.ComputeSide(dec("20"), model.Over, stake, false).IsZero())
	assert.True(t, bonus.ComputeSide(dec("20"), model.Over, stake, false).IsZero())

	q := bonus.ComputeSide(dec("20"), model.Over, 6_000_000_000_000_000_000, false)
	assert.Equal(t, int64(8_700_000_000_000_000_000), q.Cover)
	assert.Equal(t, q.Cover+q.WinBonus, q.ToWin)
}
