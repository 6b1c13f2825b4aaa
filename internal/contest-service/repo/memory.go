package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/prop-contests/internal/contest-service/model"
)

// Memory é um Store em memória com o mesmo contrato do Postgres. Transações são
// serializadas por um mutex e aplicadas sobre uma cópia, que só substitui o
// estado no commit. Usado em testes e em execuções locais sem banco.
type Memory struct {
	mu sync.Mutex
	st *memState
}

type memState struct {
	contests    map[string]model.Contest
	contenders  map[string]model.Contender
	ledger      []model.LedgerRecord
	results     map[string]decimal.Decimal
	withdrawals map[string]model.WithdrawalRequest
}

func NewMemory() *Memory {
	return &Memory{st: &memState{
		contests:    map[string]model.Contest{},
		contenders:  map[string]model.Contender{},
		results:     map[string]decimal.Decimal{},
		withdrawals: map[string]model.WithdrawalRequest{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		contests:    make(map[string]model.Contest, len(s.contests)),
		contenders:  make(map[string]model.Contender, len(s.contenders)),
		ledger:      append([]model.LedgerRecord(nil), s.ledger...),
		results:     make(map[string]decimal.Decimal, len(s.results)),
		withdrawals: make(map[string]model.WithdrawalRequest, len(s.withdrawals)),
	}
	for k, v := range s.contests {
		c.contests[k] = v
	}
	for k, v := range s.contenders {
		c.contenders[k] = v
	}
	for k, v := range s.results {
		c.results[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	return c
}

func (m *Memory) InTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

type memTx struct{ st *memState }

// LockUser é implícito: a transação inteira já é exclusiva
func (t *memTx) LockUser(context.Context, string) error { return nil }

func (t *memTx) Balance(_ context.Context, userID string) (int64, error) {
	var bal int64
	for _, r := range t.st.ledger {
		if r.UserID == userID && !r.Consumed {
			bal += r.AmountCents
		}
	}
	return bal, nil
}

func (t *memTx) AppendLedger(_ context.Context, rec *model.LedgerRecord) (bool, error) {
	for _, r := range t.st.ledger {
		if r.UserID == rec.UserID && r.Reference == rec.Reference {
			return false, nil
		}
	}
	t.st.ledger = append(t.st.ledger, *rec)
	return true, nil
}

func (t *memTx) SweepLedger(_ context.Context, userID, withdrawalID string) (int64, error) {
	var swept int64
	for i, r := range t.st.ledger {
		if r.UserID == userID && !r.Consumed {
			r.Consumed = true
			r.WithdrawalID = withdrawalID
			t.st.ledger[i] = r
			swept += r.AmountCents
		}
	}
	return swept, nil
}

func (t *memTx) ListLedger(_ context.Context, userID string) ([]model.LedgerRecord, error) {
	var out []model.LedgerRecord
	for _, r := range t.st.ledger {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) InsertContest(_ context.Context, c *model.Contest) error {
	if _, ok := t.st.contests[c.ID]; ok {
		return fmt.Errorf("%w: contest %s already exists", model.ErrConflict, c.ID)
	}
	t.st.contests[c.ID] = *c
	return nil
}

func (t *memTx) GetContest(_ context.Context, id string, _ bool) (*model.Contest, error) {
	c, ok := t.st.contests[id]
	if !ok {
		return nil, fmt.Errorf("%w: contest %s", model.ErrNotFound, id)
	}
	return &c, nil
}

func (t *memTx) ClaimContest(_ context.Context, id string, claim model.Claim, side model.Side) (bool, error) {
	c, ok := t.st.contests[id]
	if !ok || c.Status != model.StatusOpen || c.Claimer.IsSet() {
		return false, nil
	}
	c.Claimer = model.Some(claim)
	c.Status = model.StatusMatched
	c.ClaimerSide.Likelihood = side.Likelihood
	c.ClaimerSide.Cover = side.Cover
	c.ClaimerSide.WinBonus = side.WinBonus
	c.ClaimerSide.ToWin = side.ToWin
	c.UpdatedAt = claim.ClaimedAt
	t.st.contests[id] = c
	return true, nil
}

func (t *memTx) CloseContest(_ context.Context, id string, from model.ContestStatus, out model.Outcome, at time.Time) (bool, error) {
	c, ok := t.st.contests[id]
	if !ok || c.Status != from {
		return false, nil
	}
	if from == model.StatusOpen && c.Claimer.IsSet() {
		return false, nil
	}
	c.Status = model.StatusClosed
	c.Ended = true
	c.Outcome = model.Some(out)
	c.UpdatedAt = at
	t.st.contests[id] = c
	return true, nil
}

func (t *memTx) ContestsBySubject(_ context.Context, subjectID string, status model.ContestStatus) ([]model.Contest, error) {
	var out []model.Contest
	for _, c := range t.st.contests {
		if c.Status != status {
			continue
		}
		if c.CreatorSide.SubjectID == subjectID || c.ClaimerSide.SubjectID == subjectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memTx) InsertContender(_ context.Context, c *model.Contender) error {
	for _, o := range t.st.contenders {
		if o.ContestID != c.ContestID {
			continue
		}
		if (o.SubjectID == c.SubjectID && o.Direction == c.Direction) || o.UserID == c.UserID {
			return fmt.Errorf("%w: duplicate contender on contest %s", model.ErrConflict, c.ContestID)
		}
	}
	t.st.contenders[c.ID] = *c
	return nil
}

func (t *memTx) ListContenders(_ context.Context, contestID string) ([]model.Contender, error) {
	var out []model.Contender
	for _, c := range t.st.contenders {
		if c.ContestID == contestID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memTx) MarkContender(_ context.Context, id string, winner, tied bool) error {
	c, ok := t.st.contenders[id]
	if !ok {
		return fmt.Errorf("%w: contender %s", model.ErrNotFound, id)
	}
	c.Winner, c.Tied = winner, tied
	t.st.contenders[id] = c
	return nil
}

func (t *memTx) RecordSubjectResult(_ context.Context, subjectID string, value decimal.Decimal) (decimal.Decimal, bool, error) {
	if v, ok := t.st.results[subjectID]; ok {
		return v, false, nil
	}
	t.st.results[subjectID] = value
	return value, true, nil
}

func (t *memTx) SubjectResult(_ context.Context, subjectID string) (decimal.Decimal, bool, error) {
	v, ok := t.st.results[subjectID]
	return v, ok, nil
}

func (t *memTx) InsertPendingWithdrawal(_ context.Context, w *model.WithdrawalRequest) (bool, error) {
	for _, o := range t.st.withdrawals {
		if o.UserID == w.UserID && o.Status == model.WithdrawalPending {
			return false, nil
		}
	}
	cp := *w
	cp.Status = model.WithdrawalPending
	cp.UpdatedAt = cp.CreatedAt
	t.st.withdrawals[w.ID] = cp
	return true, nil
}

func (t *memTx) GetWithdrawal(_ context.Context, id string, _ bool) (*model.WithdrawalRequest, error) {
	w, ok := t.st.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("%w: withdrawal %s", model.ErrNotFound, id)
	}
	return &w, nil
}

func (t *memTx) UpdateWithdrawal(_ context.Context, w *model.WithdrawalRequest, from ...model.WithdrawalStatus) (bool, error) {
	cur, ok := t.st.withdrawals[w.ID]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range from {
		if cur.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	cur.ApprovedCents = w.ApprovedCents
	cur.Status = w.Status
	cur.TransferRef = w.TransferRef
	cur.LastError = w.LastError
	cur.Attempts = w.Attempts
	cur.UpdatedAt = w.UpdatedAt
	t.st.withdrawals[w.ID] = cur
	return true, nil
}

func (t *memTx) ListWithdrawals(_ context.Context, status model.WithdrawalStatus, limit int) ([]model.WithdrawalRequest, error) {
	var out []model.WithdrawalRequest
	for _, w := range t.st.withdrawals {
		if w.Status == status {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
