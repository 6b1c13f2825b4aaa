package model

import "time"

type LedgerKind string

const (
	KindDeposit LedgerKind = "DEPOSIT"
	KindWager   LedgerKind = "WAGER"
	KindGain    LedgerKind = "GAIN"
)

// LedgerRecord é um lançamento imutável; apenas Consumed muda, uma única vez,
// quando um saque varre os registros do usuário.
// AmountCents é assinado: depósitos e ganhos positivos, apostas negativas.
type LedgerRecord struct {
	ID           string
	UserID       string
	Kind         LedgerKind
	AmountCents  int64
	ContestID    string
	WithdrawalID string
	Reference    string
	Consumed     bool
	CreatedAt    time.Time
}

// SignedAmount normaliza o sinal conforme o tipo do lançamento
func SignedAmount(kind LedgerKind, cents int64) int64 {
	if cents < 0 {
		cents = -cents
	}
	if kind == KindWager {
		return -cents
	}
	return cents
}
