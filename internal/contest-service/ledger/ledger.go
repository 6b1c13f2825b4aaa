package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/internal/contest-service/model"
	"github.com/radieske/prop-contests/internal/contest-service/repo"
)

// Entry descreve um lançamento a ser gravado dentro da transação do chamador
type Entry struct {
	UserID       string
	Kind         model.LedgerKind
	AmountCents  int64
	ContestID    string
	WithdrawalID string
	Reference    string
}

// Append grava o lançamento com o sinal normalizado. Retorna false quando a
// referência já existe para o usuário (reprocessamento idempotente).
func Append(ctx context.Context, tx repo.Tx, e Entry, now time.Time) (bool, error) {
	if e.UserID == "" || e.Reference == "" {
		return false, fmt.Errorf("%w: ledger entry needs user and reference", model.ErrValidation)
	}
	if e.AmountCents < 0 {
		return false, fmt.Errorf("%w: ledger amount must be given as a magnitude", model.ErrValidation)
	}
	rec := &model.LedgerRecord{
		ID:           uuid.NewString(),
		UserID:       e.UserID,
		Kind:         e.Kind,
		AmountCents:  model.SignedAmount(e.Kind, e.AmountCents),
		ContestID:    e.ContestID,
		WithdrawalID: e.WithdrawalID,
		Reference:    e.Reference,
		CreatedAt:    now,
	}
	return tx.AppendLedger(ctx, rec)
}

// Debit trava o usuário, confere o saldo no mesmo snapshot e grava a aposta.
// Saldo insuficiente aborta antes de qualquer escrita.
func Debit(ctx context.Context, tx repo.Tx, e Entry, now time.Time) error {
	if err := tx.LockUser(ctx, e.UserID); err != nil {
		return err
	}
	bal, err := tx.Balance(ctx, e.UserID)
	if err != nil {
		return err
	}
	if bal < e.AmountCents {
		return fmt.Errorf("%w: balance %d, required %d", model.ErrInsufficientFunds, bal, e.AmountCents)
	}
	e.Kind = model.KindWager
	ok, err := Append(ctx, tx, e, now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: wager %s already recorded", model.ErrConflict, e.Reference)
	}
	return nil
}

// Credit grava um ganho; valores zerados são ignorados
func Credit(ctx context.Context, tx repo.Tx, e Entry, now time.Time) (bool, error) {
	if e.AmountCents == 0 {
		return false, nil
	}
	e.Kind = model.KindGain
	return Append(ctx, tx, e, now)
}

// Service expõe as operações de ledger que não pertencem a uma transição de contest
type Service struct {
	store repo.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store repo.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// BalanceOf soma os lançamentos não consumidos do usuário
func (s *Service) BalanceOf(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		bal, err = tx.Balance(ctx, userID)
		return err
	})
	return bal, err
}

// History retorna todos os lançamentos do usuário, inclusive consumidos
func (s *Service) History(ctx context.Context, userID string) ([]model.LedgerRecord, error) {
	var out []model.LedgerRecord
	err := s.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		out, err = tx.ListLedger(ctx, userID)
		return err
	})
	return out, err
}

// Deposit registra um depósito confirmado pelo gateway. Idempotente por externalRef.
func (s *Service) Deposit(ctx context.Context, userID string, amountCents int64, externalRef string) (created bool, balance int64, err error) {
	if userID == "" || amountCents <= 0 || externalRef == "" {
		return false, 0, fmt.Errorf("%w: deposit needs user, positive amount and external reference", model.ErrValidation)
	}
	err = s.store.InTx(ctx, func(tx repo.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		created, err = Append(ctx, tx, Entry{
			UserID:      userID,
			Kind:        model.KindDeposit,
			AmountCents: amountCents,
			Reference:   "deposit:" + externalRef,
		}, s.now())
		if err != nil {
			return err
		}
		balance, err = tx.Balance(ctx, userID)
		return err
	})
	if err != nil {
		return false, 0, err
	}
	if created {
		s.log.Info("deposit recorded", zap.String("user_id", userID), zap.Int64("amount_cents", amountCents),
			zap.String("external_ref", externalRef))
	}
	return created, balance, nil
}
