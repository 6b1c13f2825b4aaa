package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/prop-contests/internal/contest-service/model"
)

// Store executa uma unidade atômica de trabalho. Se fn retornar erro nada é aplicado.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx são as operações disponíveis dentro de uma transação. As operações
// "condicionais" retornam false quando o estado esperado não bate (CAS).
type Tx interface {
	// LockUser serializa operações de saldo do mesmo usuário até o fim da transação
	LockUser(ctx context.Context, userID string) error
	Balance(ctx context.Context, userID string) (int64, error)
	// AppendLedger retorna false se já existe lançamento com a mesma (user, reference)
	AppendLedger(ctx context.Context, rec *model.LedgerRecord) (bool, error)
	// SweepLedger marca todos os lançamentos não consumidos do usuário e retorna a soma varrida
	SweepLedger(ctx context.Context, userID, withdrawalID string) (int64, error)
	ListLedger(ctx context.Context, userID string) ([]model.LedgerRecord, error)

	InsertContest(ctx context.Context, c *model.Contest) error
	GetContest(ctx context.Context, id string, forUpdate bool) (*model.Contest, error)
	// ClaimContest só aplica se status=OPEN e sem claimer
	ClaimContest(ctx context.Context, id string, claim model.Claim, side model.Side) (bool, error)
	// CloseContest só aplica se o status atual for from (e sem claimer quando OPEN)
	CloseContest(ctx context.Context, id string, from model.ContestStatus, out model.Outcome, at time.Time) (bool, error)
	ContestsBySubject(ctx context.Context, subjectID string, status model.ContestStatus) ([]model.Contest, error)

	// InsertContender retorna ErrConflict para (contest, direção) ou (contest, usuário) repetidos
	InsertContender(ctx context.Context, c *model.Contender) error
	ListContenders(ctx context.Context, contestID string) ([]model.Contender, error)
	MarkContender(ctx context.Context, id string, winner, tied bool) error

	// RecordSubjectResult grava o primeiro valor informado e retorna o valor vigente
	RecordSubjectResult(ctx context.Context, subjectID string, value decimal.Decimal) (stored decimal.Decimal, inserted bool, err error)
	SubjectResult(ctx context.Context, subjectID string) (decimal.Decimal, bool, error)

	// InsertPendingWithdrawal retorna false se o usuário já tem um pedido PENDING
	InsertPendingWithdrawal(ctx context.Context, w *model.WithdrawalRequest) (bool, error)
	GetWithdrawal(ctx context.Context, id string, forUpdate bool) (*model.WithdrawalRequest, error)
	// UpdateWithdrawal só aplica se o status atual estiver em from
	UpdateWithdrawal(ctx context.Context, w *model.WithdrawalRequest, from ...model.WithdrawalStatus) (bool, error)
	ListWithdrawals(ctx context.Context, status model.WithdrawalStatus, limit int) ([]model.WithdrawalRequest, error)
}
