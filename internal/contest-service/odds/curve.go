package odds

import "github.com/shopspring/decimal"

// Curve mapeia a projeção (arredondada para inteiro) em probabilidade percentual
// de o lado OVER bater a linha. Só pontos pares são definidos; ímpares interpolam.
type Curve map[int]int

// DefaultCurve cobre projeções de 0 a 60 pontos de fantasy
var DefaultCurve = Curve{
	0: 6, 2: 8, 4: 10, 6: 12, 8: 14,
	10: 17, 12: 21, 14: 25, 16: 30, 18: 35,
	20: 40, 22: 45, 24: 50, 26: 55, 28: 60,
	30: 65, 32: 70, 34: 75, 36: 79, 38: 83,
	40: 86, 42: 88, 44: 90, 46: 92, 48: 94,
	50: 95, 52: 96, 54: 97, 56: 97, 58: 98,
	60: 98,
}

// Likelihood resolve a probabilidade OVER de uma projeção. Retorna 0 quando
// a projeção cai fora da curva.
func (c Curve) Likelihood(projected decimal.Decimal) int {
	// decimal.Round arredonda meio para longe do zero
	x := projected.Round(0).IntPart()
	if x%2 == 0 {
		return c[int(x)]
	}
	lo, okLo := c[int(x-1)]
	hi, okHi := c[int(x+1)]
	if !okLo || !okHi {
		return 0
	}
	return roundHalfAway(lo+hi, 2)
}

// roundHalfAway divide inteiros arredondando empates para longe do zero
func roundHalfAway(num, den int) int {
	if den < 0 {
		num, den = -num, -den
	}
	if num >= 0 {
		return (2*num + den) / (2 * den)
	}
	return -((-2*num + den) / (2 * den))
}
