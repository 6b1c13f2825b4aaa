package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/prop-contests/internal/contest-service/model"
)

// Postgres implementa o Store sobre database/sql + lib/pq
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de contests
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// InTx abre uma transação, executa fn e faz commit; qualquer erro faz rollback
func (p *Postgres) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type pgTx struct{ tx *sql.Tx }

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// LockUser usa advisory lock transacional: liberado no commit/rollback
func (t *pgTx) LockUser(ctx context.Context, userID string) error {
	_, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID)
	return err
}

func (t *pgTx) Balance(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM ledger_records
		WHERE user_id=$1 AND consumed=FALSE`, userID).Scan(&bal)
	return bal, err
}

func (t *pgTx) AppendLedger(ctx context.Context, r *model.LedgerRecord) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_records (id, user_id, kind, amount_cents, contest_id, withdrawal_id, reference, consumed, created_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,'')::uuid,NULLIF($6,'')::uuid,$7,$8,$9)
		ON CONFLICT (user_id, reference) DO NOTHING`,
		r.ID, r.UserID, string(r.Kind), r.AmountCents, r.ContestID, r.WithdrawalID, r.Reference, r.Consumed, r.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *pgTx) SweepLedger(ctx context.Context, userID, withdrawalID string) (int64, error) {
	var swept int64
	err := t.tx.QueryRowContext(ctx, `
		WITH swept AS (
			UPDATE ledger_records SET consumed=TRUE, withdrawal_id=$2
			WHERE user_id=$1 AND consumed=FALSE
			RETURNING amount_cents
		)
		SELECT COALESCE(SUM(amount_cents), 0) FROM swept`, userID, withdrawalID).Scan(&swept)
	return swept, err
}

func (t *pgTx) ListLedger(ctx context.Context, userID string) ([]model.LedgerRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, user_id, kind, amount_cents, COALESCE(contest_id::text,''), COALESCE(withdrawal_id::text,''),
		       reference, consumed, created_at
		FROM ledger_records
		WHERE user_id=$1
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LedgerRecord
	for rows.Next() {
		var r model.LedgerRecord
		var kind string
		if err := rows.Scan(&r.ID, &r.UserID, &kind, &r.AmountCents, &r.ContestID, &r.WithdrawalID,
			&r.Reference, &r.Consumed, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Kind = model.LedgerKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

const contestColumns = `
	id, creator_id, claimer_id, claimed_at, stake_cents, status, ended,
	creator_subject_id, creator_direction, creator_line, creator_likelihood,
	creator_cover_cents, creator_win_bonus_cents, creator_to_win_cents,
	claimer_subject_id, claimer_direction, claimer_line, claimer_likelihood,
	claimer_cover_cents, claimer_win_bonus_cents, claimer_to_win_cents,
	outcome, winner_id, winner_amount_cents, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContest(s rowScanner) (*model.Contest, error) {
	var (
		c                      model.Contest
		claimerID, outcome     sql.NullString
		winnerID               sql.NullString
		claimedAt              sql.NullTime
		winnerAmount           sql.NullInt64
		status, credDir, clDir string
	)
	err := s.Scan(
		&c.ID, &c.CreatorID, &claimerID, &claimedAt, &c.StakeCents, &status, &c.Ended,
		&c.CreatorSide.SubjectID, &credDir, &c.CreatorSide.Line, &c.CreatorSide.Likelihood,
		&c.CreatorSide.Cover, &c.CreatorSide.WinBonus, &c.CreatorSide.ToWin,
		&c.ClaimerSide.SubjectID, &clDir, &c.ClaimerSide.Line, &c.ClaimerSide.Likelihood,
		&c.ClaimerSide.Cover, &c.ClaimerSide.WinBonus, &c.ClaimerSide.ToWin,
		&outcome, &winnerID, &winnerAmount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.ContestStatus(status)
	c.CreatorSide.Direction = model.Direction(credDir)
	c.ClaimerSide.Direction = model.Direction(clDir)
	if claimerID.Valid {
		c.Claimer = model.Some(model.Claim{UserID: claimerID.String, ClaimedAt: claimedAt.Time})
	}
	if outcome.Valid {
		c.Outcome = model.Some(model.Outcome{
			Label:        outcome.String,
			WinnerID:     winnerID.String,
			WinnerAmount: winnerAmount.Int64,
		})
	}
	return &c, nil
}

func (t *pgTx) InsertContest(ctx context.Context, c *model.Contest) error {
	cr, cl := c.CreatorSide, c.ClaimerSide
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO contests (
			id, creator_id, stake_cents, status, ended,
			creator_subject_id, creator_direction, creator_line, creator_likelihood,
			creator_cover_cents, creator_win_bonus_cents, creator_to_win_cents,
			claimer_subject_id, claimer_direction, claimer_line, claimer_likelihood,
			claimer_cover_cents, claimer_win_bonus_cents, claimer_to_win_cents,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$20)`,
		c.ID, c.CreatorID, c.StakeCents, string(c.Status), c.Ended,
		cr.SubjectID, string(cr.Direction), cr.Line, cr.Likelihood, cr.Cover, cr.WinBonus, cr.ToWin,
		cl.SubjectID, string(cl.Direction), cl.Line, cl.Likelihood, cl.Cover, cl.WinBonus, cl.ToWin,
		c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: contest %s already exists", model.ErrConflict, c.ID)
	}
	return err
}

func (t *pgTx) GetContest(ctx context.Context, id string, forUpdate bool) (*model.Contest, error) {
	q := `SELECT ` + contestColumns + ` FROM contests WHERE id=$1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	c, err := scanContest(t.tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: contest %s", model.ErrNotFound, id)
	}
	return c, err
}

// ClaimContest é o compare-and-swap do match: o WHERE é reavaliado pelo Postgres
// após o lock da linha, então só um UPDATE concorrente afeta a linha.
func (t *pgTx) ClaimContest(ctx context.Context, id string, claim model.Claim, side model.Side) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE contests SET
			claimer_id=$2, claimed_at=$3, status='MATCHED',
			claimer_likelihood=$4, claimer_cover_cents=$5, claimer_win_bonus_cents=$6, claimer_to_win_cents=$7,
			updated_at=$3
		WHERE id=$1 AND status='OPEN' AND claimer_id IS NULL`,
		id, claim.UserID, claim.ClaimedAt, side.Likelihood, side.Cover, side.WinBonus, side.ToWin,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *pgTx) CloseContest(ctx context.Context, id string, from model.ContestStatus, out model.Outcome, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE contests SET
			status='CLOSED', ended=TRUE, outcome=$3, winner_id=NULLIF($4,''), winner_amount_cents=$5, updated_at=$6
		WHERE id=$1 AND status=$2 AND (status <> 'OPEN' OR claimer_id IS NULL)`,
		id, string(from), out.Label, out.WinnerID, out.WinnerAmount, at,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *pgTx) ContestsBySubject(ctx context.Context, subjectID string, status model.ContestStatus) ([]model.Contest, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+contestColumns+`
		FROM contests
		WHERE status=$2 AND (creator_subject_id=$1 OR claimer_subject_id=$1)
		ORDER BY created_at, id`, subjectID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertContender(ctx context.Context, c *model.Contender) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO contenders (id, contest_id, user_id, subject_id, direction, stake_cents, to_win_cents, winner, tied, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE,FALSE,$8)`,
		c.ID, c.ContestID, c.UserID, c.SubjectID, string(c.Direction), c.StakeCents, c.ToWinCents, c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: duplicate contender on contest %s", model.ErrConflict, c.ContestID)
	}
	return err
}

func (t *pgTx) ListContenders(ctx context.Context, contestID string) ([]model.Contender, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, contest_id, user_id, subject_id, direction, stake_cents, to_win_cents, winner, tied, created_at
		FROM contenders
		WHERE contest_id=$1
		ORDER BY created_at, id`, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Contender
	for rows.Next() {
		var c model.Contender
		var dir string
		if err := rows.Scan(&c.ID, &c.ContestID, &c.UserID, &c.SubjectID, &dir, &c.StakeCents,
			&c.ToWinCents, &c.Winner, &c.Tied, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Direction = model.Direction(dir)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *pgTx) MarkContender(ctx context.Context, id string, winner, tied bool) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE contenders SET winner=$2, tied=$3 WHERE id=$1`, id, winner, tied)
	return err
}

func (t *pgTx) RecordSubjectResult(ctx context.Context, subjectID string, value decimal.Decimal) (decimal.Decimal, bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO subject_results (subject_id, realized_value, reported_at)
		VALUES ($1,$2,NOW())
		ON CONFLICT (subject_id) DO NOTHING`, subjectID, value)
	if err != nil {
		return decimal.Zero, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return decimal.Zero, false, err
	}
	if n == 1 {
		return value, true, nil
	}
	stored, _, err := t.SubjectResult(ctx, subjectID)
	return stored, false, err
}

func (t *pgTx) SubjectResult(ctx context.Context, subjectID string) (decimal.Decimal, bool, error) {
	var v decimal.Decimal
	err := t.tx.QueryRowContext(ctx, `SELECT realized_value FROM subject_results WHERE subject_id=$1`, subjectID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return v, true, nil
}

// InsertPendingWithdrawal depende do índice único parcial (user_id) WHERE status='PENDING':
// checagem e inserção acontecem num único comando.
func (t *pgTx) InsertPendingWithdrawal(ctx context.Context, w *model.WithdrawalRequest) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO withdrawals (id, user_id, requested_cents, approved_cents, status, destination, attempts, created_at, updated_at)
		VALUES ($1,$2,$3,0,'PENDING',$4,0,$5,$5)
		ON CONFLICT (user_id) WHERE status = 'PENDING' DO NOTHING`,
		w.ID, w.UserID, w.RequestedCents, w.Destination, w.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const withdrawalColumns = `id, user_id, requested_cents, approved_cents, status, destination,
	COALESCE(transfer_ref,''), COALESCE(last_error,''), attempts, created_at, updated_at`

func scanWithdrawal(s rowScanner) (*model.WithdrawalRequest, error) {
	var w model.WithdrawalRequest
	var status string
	if err := s.Scan(&w.ID, &w.UserID, &w.RequestedCents, &w.ApprovedCents, &status, &w.Destination,
		&w.TransferRef, &w.LastError, &w.Attempts, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Status = model.WithdrawalStatus(status)
	return &w, nil
}

func (t *pgTx) GetWithdrawal(ctx context.Context, id string, forUpdate bool) (*model.WithdrawalRequest, error) {
	q := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id=$1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	w, err := scanWithdrawal(t.tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: withdrawal %s", model.ErrNotFound, id)
	}
	return w, err
}

func (t *pgTx) UpdateWithdrawal(ctx context.Context, w *model.WithdrawalRequest, from ...model.WithdrawalStatus) (bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE withdrawals SET
			approved_cents=$2, status=$3, transfer_ref=NULLIF($4,''), last_error=NULLIF($5,''), attempts=$6, updated_at=$7
		WHERE id=$1 AND status = ANY($8)`,
		w.ID, w.ApprovedCents, string(w.Status), w.TransferRef, w.LastError, w.Attempts, w.UpdatedAt, pq.Array(statuses),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *pgTx) ListWithdrawals(ctx context.Context, status model.WithdrawalStatus, limit int) ([]model.WithdrawalRequest, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawals
		WHERE status=$1
		ORDER BY updated_at, id
		LIMIT $2`, string(status), sql.NullInt64{Int64: int64(limit), Valid: limit > 0})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}
