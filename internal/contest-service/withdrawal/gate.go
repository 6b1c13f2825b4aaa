package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/internal/contest-service/funds"
	"github.com/radieske/prop-contests/internal/contest-service/ledger"
	"github.com/radieske/prop-contests/internal/contest-service/model"
	"github.com/radieske/prop-contests/internal/contest-service/repo"
	"github.com/radieske/prop-contests/internal/shared/logger"
)

type Config struct {
	MinCents       int64
	GatewayTimeout time.Duration
	// MaxAttempts limita as retentativas automáticas de um pedido PROCESSING
	MaxAttempts int
	// StaleAfter evita que o job pegue um pedido que acabou de ser aprovado
	StaleAfter time.Duration
}

// Gate controla o ciclo de vida dos saques:
// PENDING -> PROCESSING -> COMPLETED, ou PENDING -> DENIED.
type Gate struct {
	store   repo.Store
	funds   funds.Gateway
	cfg     Config
	metrics *Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewGate(store repo.Store, gw funds.Gateway, cfg Config, m *Metrics, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Gate{
		store:   store,
		funds:   gw,
		cfg:     cfg,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func carryRef(id string) string  { return "withdrawal:" + id + ":carry" }
func deniedRef(id string) string { return "withdrawal:" + id + ":denied" }
func sourceRef(id string) string { return "withdrawal:" + id }

// Request abre um pedido PENDING. Na mesma transação todos os lançamentos
// não consumidos do usuário são varridos; o que passar do valor pedido volta
// como um depósito novo.
func (g *Gate) Request(ctx context.Context, userID string, amountCents int64, destination string) (*model.WithdrawalRequest, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", model.ErrValidation)
	}
	if amountCents < g.cfg.MinCents || amountCents <= 0 {
		return nil, fmt.Errorf("%w: minimum withdrawal is %d cents", model.ErrValidation, g.cfg.MinCents)
	}
	if destination == "" {
		destination = userID
	}

	now := g.now()
	w := &model.WithdrawalRequest{
		ID:             uuid.NewString(),
		UserID:         userID,
		RequestedCents: amountCents,
		Status:         model.WithdrawalPending,
		Destination:    destination,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	var carry int64
	err := g.store.InTx(ctx, func(tx repo.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		ok, err := tx.InsertPendingWithdrawal(ctx, w)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: user %s already has a pending withdrawal", model.ErrConflict, userID)
		}
		swept, err := tx.SweepLedger(ctx, userID, w.ID)
		if err != nil {
			return err
		}
		if swept < amountCents {
			return fmt.Errorf("%w: balance %d, requested %d", model.ErrInsufficientFunds, swept, amountCents)
		}
		carry = swept - amountCents
		if carry == 0 {
			return nil
		}
		_, err = ledger.Append(ctx, tx, ledger.Entry{
			UserID:       userID,
			Kind:         model.KindDeposit,
			AmountCents:  carry,
			WithdrawalID: w.ID,
			Reference:    carryRef(w.ID),
		}, now)
		return err
	})
	if err != nil {
		g.metrics.inc("request_rejected")
		return nil, err
	}

	g.metrics.inc("requested")
	g.log.Info("withdrawal requested",
		zap.String("withdrawal_id", w.ID),
		zap.String("user_id", userID),
		zap.Int64("amount_cents", amountCents),
		zap.Int64("carry_cents", carry))
	return w, nil
}

// Approve move PENDING -> PROCESSING (com commit) e só então chama o gateway,
// fora de qualquer transação. Falha no gateway deixa o pedido em PROCESSING
// com o erro registrado; não é erro da aprovação.
func (g *Gate) Approve(ctx context.Context, id string) (*model.WithdrawalRequest, error) {
	var w *model.WithdrawalRequest
	err := g.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		w, err = tx.GetWithdrawal(ctx, id, true)
		if err != nil {
			return err
		}
		if w.Status != model.WithdrawalPending {
			return fmt.Errorf("%w: withdrawal %s is %s", model.ErrConflict, id, w.Status)
		}
		w.Status = model.WithdrawalProcessing
		w.ApprovedCents = w.RequestedCents
		w.UpdatedAt = g.now()
		ok, err := tx.UpdateWithdrawal(ctx, w, model.WithdrawalPending)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: withdrawal %s changed concurrently", model.ErrConflict, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.log.Info("withdrawal approved", zap.String("withdrawal_id", w.ID), zap.Int64("amount_cents", w.ApprovedCents))
	return g.transfer(ctx, w)
}

// Deny recusa um pedido PENDING e devolve o valor ao saldo com um depósito compensatório
func (g *Gate) Deny(ctx context.Context, id, reason string) (*model.WithdrawalRequest, error) {
	var w *model.WithdrawalRequest
	err := g.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		w, err = tx.GetWithdrawal(ctx, id, true)
		if err != nil {
			return err
		}
		if w.Status != model.WithdrawalPending {
			return fmt.Errorf("%w: withdrawal %s is %s", model.ErrConflict, id, w.Status)
		}
		now := g.now()
		w.Status = model.WithdrawalDenied
		w.LastError = reason
		w.UpdatedAt = now
		ok, err := tx.UpdateWithdrawal(ctx, w, model.WithdrawalPending)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: withdrawal %s changed concurrently", model.ErrConflict, id)
		}
		_, err = ledger.Append(ctx, tx, ledger.Entry{
			UserID:       w.UserID,
			Kind:         model.KindDeposit,
			AmountCents:  w.RequestedCents,
			WithdrawalID: w.ID,
			Reference:    deniedRef(w.ID),
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.metrics.inc("denied")
	g.log.Info("withdrawal denied", zap.String("withdrawal_id", w.ID), zap.String("reason", reason))
	return w, nil
}

// RetryProcessing retenta as transferências PROCESSING paradas. Chamado pelo
// job periódico do withdrawal-worker.
func (g *Gate) RetryProcessing(ctx context.Context, limit int) (completed int, err error) {
	list, err := g.List(ctx, model.WithdrawalProcessing, limit)
	if err != nil {
		return 0, err
	}
	cutoff := g.now().Add(-g.cfg.StaleAfter)
	for i := range list {
		w := &list[i]
		if w.UpdatedAt.After(cutoff) {
			continue
		}
		if w.Attempts >= g.cfg.MaxAttempts || terminalFailure(w) {
			g.log.Error("withdrawal needs manual intervention",
				logger.Alert(),
				zap.String("withdrawal_id", w.ID),
				zap.Int("attempts", w.Attempts),
				zap.Bool("terminal", terminalFailure(w)),
				zap.String("last_error", w.LastError))
			continue
		}
		res, terr := g.transfer(ctx, w)
		if terr != nil {
			// um pedido com problema não trava o resto do lote
			g.log.Error("withdrawal retry failed",
				zap.String("withdrawal_id", w.ID),
				zap.Error(terr))
			err = errors.Join(err, terr)
			continue
		}
		if res.Status == model.WithdrawalCompleted {
			completed++
		}
	}
	return completed, err
}

// terminalMark prefixa LastError quando o gateway recusou de forma definitiva
const terminalMark = "terminal: "

func terminalFailure(w *model.WithdrawalRequest) bool {
	return strings.HasPrefix(w.LastError, terminalMark)
}

func (g *Gate) transfer(ctx context.Context, w *model.WithdrawalRequest) (*model.WithdrawalRequest, error) {
	tctx, cancel := context.WithTimeout(ctx, g.cfg.GatewayTimeout)
	ref, terr := g.funds.Transfer(tctx, w.Destination, funds.KindWithdrawal, w.ApprovedCents, sourceRef(w.ID))
	cancel()

	w.Attempts++
	w.UpdatedAt = g.now()
	if terr != nil {
		w.LastError = terr.Error()
		if !funds.IsRetryable(terr) {
			w.LastError = terminalMark + w.LastError
		}
	} else {
		w.Status = model.WithdrawalCompleted
		w.TransferRef = ref
		w.LastError = ""
	}

	err := g.store.InTx(ctx, func(tx repo.Tx) error {
		ok, err := tx.UpdateWithdrawal(ctx, w, model.WithdrawalProcessing)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: withdrawal %s left PROCESSING concurrently", model.ErrConflict, w.ID)
		}
		return nil
	})
	if err != nil {
		if terr == nil {
			// dinheiro já saiu: o registro precisa ser corrigido manualmente
			g.log.Error("withdrawal transferred but not recorded",
				logger.Alert(),
				zap.String("withdrawal_id", w.ID),
				zap.String("transfer_ref", ref),
				zap.Error(err))
		}
		return nil, err
	}

	if terr != nil {
		g.metrics.inc("transfer_failed")
		g.log.Error("withdrawal transfer failed",
			logger.Alert(),
			zap.String("withdrawal_id", w.ID),
			zap.Int("attempts", w.Attempts),
			zap.Bool("retryable", funds.IsRetryable(terr)),
			zap.Error(terr))
		return w, nil
	}
	g.metrics.inc("completed")
	g.log.Info("withdrawal completed",
		zap.String("withdrawal_id", w.ID),
		zap.String("transfer_ref", ref),
		zap.Int64("amount_cents", w.ApprovedCents))
	return w, nil
}

func (g *Gate) Get(ctx context.Context, id string) (*model.WithdrawalRequest, error) {
	var w *model.WithdrawalRequest
	err := g.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		w, err = tx.GetWithdrawal(ctx, id, false)
		return err
	})
	return w, err
}

func (g *Gate) List(ctx context.Context, st model.WithdrawalStatus, limit int) ([]model.WithdrawalRequest, error) {
	var out []model.WithdrawalRequest
	err := g.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		out, err = tx.ListWithdrawals(ctx, st, limit)
		return err
	})
	return out, err
}
