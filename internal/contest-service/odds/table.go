package odds

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
)

const (
	MinLikelihood = 1
	MaxLikelihood = 99
)

//go:embed odds_table.csv
var tableCSV []byte

// Row é uma linha da tabela de odds, chaveada pela probabilidade percentual (1-99)
type Row struct {
	Likelihood     int
	BetPayout      decimal.Decimal // multiplicador da aposta avulsa
	MatchBetPayout decimal.Decimal // multiplicador de quem aceita o contest
	BonusPayout    decimal.Decimal // fração de bônus sobre o stake
}

// Table é imutável depois de carregada; leituras concorrentes dispensam lock
type Table struct {
	rows [MaxLikelihood + 1]Row
	set  [MaxLikelihood + 1]bool
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
	defaultErr   error
)

// Default retorna a tabela embutida, carregada uma única vez por processo
func Default() (*Table, error) {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = Load(bytes.NewReader(tableCSV))
	})
	return defaultTable, defaultErr
}

// Load lê a tabela no formato percent,bet_payout,match_bet_payout,bonus_payout
func Load(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4

	recs, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read odds table: %w", err)
	}
	if len(recs) < 2 {
		return nil, fmt.Errorf("odds table is empty")
	}

	t := &Table{}
	for i, rec := range recs[1:] {
		line := i + 2
		p, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: percent: %w", line, err)
		}
		if p < MinLikelihood || p > MaxLikelihood {
			return nil, fmt.Errorf("line %d: percent %d out of range", line, p)
		}
		if t.set[p] {
			return nil, fmt.Errorf("line %d: duplicate percent %d", line, p)
		}
		row := Row{Likelihood: p}
		vals := []*decimal.Decimal{&row.BetPayout, &row.MatchBetPayout, &row.BonusPayout}
		for j, dst := range vals {
			d, err := decimal.NewFromString(rec[j+1])
			if err != nil {
				return nil, fmt.Errorf("line %d: column %d: %w", line, j+2, err)
			}
			if d.IsNegative() {
				return nil, fmt.Errorf("line %d: column %d is negative", line, j+2)
			}
			*dst = d
		}
		t.rows[p] = row
		t.set[p] = true
	}
	return t, nil
}

// Row retorna a linha de uma probabilidade; ok=false quando ausente ou fora da faixa
func (t *Table) Row(likelihood int) (Row, bool) {
	if t == nil || likelihood < MinLikelihood || likelihood > MaxLikelihood || !t.set[likelihood] {
		return Row{}, false
	}
	return t.rows[likelihood], true
}

// Len retorna quantas linhas foram carregadas
func (t *Table) Len() int {
	n := 0
	for _, ok := range t.set {
		if ok {
			n++
		}
	}
	return n
}
