// Package fundstest fornece um gateway de fundos em memória para testes.
package fundstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/radieske/prop-contests/internal/contest-service/funds"
)

type Transfer struct {
	AccountRef  string
	Kind        funds.TransferKind
	AmountCents int64
	SourceRef   string
}

// Gateway guarda saldos fixos e registra transferências; TransferErr, quando
// definido, é devolvido nas próximas chamadas de Transfer.
type Gateway struct {
	mu          sync.Mutex
	balances    map[string]int64
	BalanceErr  error
	TransferErr error
	Transfers   []Transfer
	calls       int
}

func New() *Gateway { return &Gateway{balances: map[string]int64{}} }

func (g *Gateway) SetBalance(userID string, cents int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[userID] = cents
}

func (g *Gateway) SetTransferErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.TransferErr = err
}

func (g *Gateway) GetBalance(_ context.Context, userID string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.BalanceErr != nil {
		return 0, g.BalanceErr
	}
	return g.balances[userID], nil
}

func (g *Gateway) Transfer(_ context.Context, accountRef string, kind funds.TransferKind, amountCents int64, sourceRef string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.TransferErr != nil {
		return "", g.TransferErr
	}
	g.Transfers = append(g.Transfers, Transfer{accountRef, kind, amountCents, sourceRef})
	return fmt.Sprintf("TR-%d", len(g.Transfers)), nil
}

// Calls conta tentativas de transferência, inclusive as que falharam
func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *Gateway) TransferCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Transfers)
}
