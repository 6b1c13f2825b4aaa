package contest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/internal/contest-service/funds"
	"github.com/radieske/prop-contests/internal/contest-service/ledger"
	"github.com/radieske/prop-contests/internal/contest-service/model"
	"github.com/radieske/prop-contests/internal/contest-service/odds"
	"github.com/radieske/prop-contests/internal/contest-service/repo"
	"github.com/radieske/prop-contests/pkg/contracts/events"
)

// Subjects é o catálogo consultado na criação e no claim
type Subjects interface {
	Get(ctx context.Context, id string) (model.Subject, error)
	Invalidate(ctx context.Context, id string)
}

// Publisher recebe os eventos após o commit. Falhas só geram log.
type Publisher interface {
	PublishContestEvent(ctx context.Context, e events.ContestEvent) error
}

// errNotFinal indica que algum subject do contest ainda não tem estatística final
var errNotFinal = fmt.Errorf("%w: statistic not final", model.ErrConflict)

type Deps struct {
	Store          repo.Store
	Calc           *odds.Calculator
	Subjects       Subjects
	Funds          funds.Gateway
	Publisher      Publisher
	Metrics        *Metrics
	Log            *zap.Logger
	GatewayTimeout time.Duration
}

// Engine é a máquina de estados dos contests: OPEN -> MATCHED -> CLOSED ou
// OPEN -> CLOSED (sem adversário). Toda transição e seus lançamentos de
// ledger acontecem na mesma transação.
type Engine struct {
	store    repo.Store
	calc     *odds.Calculator
	subjects Subjects
	funds    funds.Gateway
	publ     Publisher
	metrics  *Metrics
	log      *zap.Logger
	timeout  time.Duration
	now      func() time.Time
}

func NewEngine(d Deps) *Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.GatewayTimeout <= 0 {
		d.GatewayTimeout = 2 * time.Second
	}
	return &Engine{
		store:    d.Store,
		calc:     d.Calc,
		subjects: d.Subjects,
		funds:    d.Funds,
		publ:     d.Publisher,
		metrics:  d.Metrics,
		log:      d.Log,
		timeout:  d.GatewayTimeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateRequest struct {
	CreatorID  string
	SubjectA   string
	SubjectB   string // vazio = mesmo subject, direções opostas
	Direction  model.Direction
	StakeCents int64
}

func wagerRef(id string) string  { return "contest:" + id + ":wager" }
func refundRef(id string) string { return "contest:" + id + ":refund" }
func stakeRef(id string) string  { return "contest:" + id + ":stake" }
func winRef(id string) string    { return "contest:" + id + ":win" }
func tieRef(id string) string    { return "contest:" + id + ":tie" }

// CreateContest valida, precifica o lado do criador e debita o stake
func (e *Engine) CreateContest(ctx context.Context, in CreateRequest) (*model.Contest, error) {
	if in.CreatorID == "" || in.SubjectA == "" {
		return nil, fmt.Errorf("%w: creator and subject are required", model.ErrValidation)
	}
	if in.StakeCents <= 0 {
		return nil, fmt.Errorf("%w: stake must be positive", model.ErrValidation)
	}
	if in.Direction == "" {
		in.Direction = model.Over
	}
	if !in.Direction.Valid() {
		return nil, fmt.Errorf("%w: invalid direction %q", model.ErrValidation, in.Direction)
	}
	if in.SubjectB == "" {
		in.SubjectB = in.SubjectA
	}

	a, err := e.availableSubject(ctx, in.SubjectA)
	if err != nil {
		return nil, err
	}
	b := a
	if in.SubjectB != in.SubjectA {
		if b, err = e.availableSubject(ctx, in.SubjectB); err != nil {
			return nil, err
		}
	}

	quote := e.calc.ComputeSide(a.ProjectedValue, in.Direction, in.StakeCents, false)
	if quote.IsZero() {
		return nil, fmt.Errorf("%w: no odds for subject %s", model.ErrValidation, a.ID)
	}
	claimerSide := model.Side{SubjectID: b.ID, Direction: claimerDirection(a.ID == b.ID, in.Direction), Line: b.ProjectedValue}
	if e.calc.EffectiveLikelihood(b.ProjectedValue, claimerSide.Direction) == 0 {
		return nil, fmt.Errorf("%w: no odds for subject %s", model.ErrValidation, b.ID)
	}

	if err := e.checkExternalFunds(ctx, in.CreatorID, in.StakeCents); err != nil {
		return nil, err
	}

	now := e.now()
	c := &model.Contest{
		ID:          uuid.NewString(),
		CreatorID:   in.CreatorID,
		StakeCents:  in.StakeCents,
		CreatorSide: sideFromQuote(a.ID, in.Direction, quote),
		ClaimerSide: claimerSide,
		Status:      model.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = e.store.InTx(ctx, func(tx repo.Tx) error {
		if err := tx.InsertContest(ctx, c); err != nil {
			return err
		}
		if err := tx.InsertContender(ctx, &model.Contender{
			ID:         uuid.NewString(),
			ContestID:  c.ID,
			UserID:     c.CreatorID,
			SubjectID:  a.ID,
			Direction:  in.Direction,
			StakeCents: c.StakeCents,
			ToWinCents: quote.ToWin,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		return ledger.Debit(ctx, tx, ledger.Entry{
			UserID:      c.CreatorID,
			AmountCents: c.StakeCents,
			ContestID:   c.ID,
			Reference:   wagerRef(c.ID),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	e.metrics.created()
	e.log.Info("contest created",
		zap.String("contest_id", c.ID),
		zap.String("creator_id", c.CreatorID),
		zap.Int64("stake_cents", c.StakeCents),
		zap.Int("likelihood", quote.Likelihood))
	e.publish(ctx, events.ContestCreated, c)
	return c, nil
}

// ClaimContest casa o contest com um segundo usuário. No máximo um claim vence:
// a atualização condicional só aplica sobre OPEN sem claimer.
func (e *Engine) ClaimContest(ctx context.Context, contestID, claimerID string) (*model.Contest, error) {
	if contestID == "" || claimerID == "" {
		return nil, fmt.Errorf("%w: contest and claimer are required", model.ErrValidation)
	}
	c, err := e.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.StatusOpen {
		e.metrics.claim("conflict")
		return nil, conflictFor(c)
	}
	if c.CreatorID == claimerID {
		return nil, fmt.Errorf("%w: creator cannot claim own contest", model.ErrConflict)
	}
	for _, id := range c.SubjectIDs() {
		if _, err := e.availableSubject(ctx, id); err != nil {
			return nil, err
		}
	}

	quote := e.claimerQuote(c)
	if quote.IsZero() {
		return nil, fmt.Errorf("%w: no odds for subject %s", model.ErrValidation, c.ClaimerSide.SubjectID)
	}
	if err := e.checkExternalFunds(ctx, claimerID, c.StakeCents); err != nil {
		e.metrics.claim("insufficient_funds")
		return nil, err
	}

	now := e.now()
	claim := model.Claim{UserID: claimerID, ClaimedAt: now}
	side := c.ClaimerSide
	side.Likelihood, side.Cover, side.WinBonus, side.ToWin = quote.Likelihood, quote.Cover, quote.WinBonus, quote.ToWin

	err = e.store.InTx(ctx, func(tx repo.Tx) error {
		ok, err := tx.ClaimContest(ctx, c.ID, claim, side)
		if err != nil {
			return err
		}
		if !ok {
			cur, err := tx.GetContest(ctx, c.ID, false)
			if err != nil {
				return err
			}
			return conflictFor(cur)
		}
		if err := tx.InsertContender(ctx, &model.Contender{
			ID:         uuid.NewString(),
			ContestID:  c.ID,
			UserID:     claimerID,
			SubjectID:  side.SubjectID,
			Direction:  side.Direction,
			StakeCents: c.StakeCents,
			ToWinCents: side.ToWin,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		return ledger.Debit(ctx, tx, ledger.Entry{
			UserID:      claimerID,
			AmountCents: c.StakeCents,
			ContestID:   c.ID,
			Reference:   wagerRef(c.ID),
		}, now)
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrConflict):
			e.metrics.claim("conflict")
		case errors.Is(err, model.ErrInsufficientFunds):
			e.metrics.claim("insufficient_funds")
		default:
			e.metrics.claim("error")
		}
		return nil, err
	}

	c.Claimer = model.Some(claim)
	c.ClaimerSide = side
	c.Status = model.StatusMatched
	c.UpdatedAt = now

	e.metrics.claim("matched")
	e.log.Info("contest matched",
		zap.String("contest_id", c.ID),
		zap.String("claimer_id", claimerID),
		zap.Int64("to_win_cents", side.ToWin))
	e.publish(ctx, events.ContestMatched, c)
	return c, nil
}

// CloseContest cancela um contest OPEN a pedido do criador e devolve o stake
func (e *Engine) CloseContest(ctx context.Context, contestID, requesterID string) (*model.Contest, error) {
	var c *model.Contest
	err := e.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		c, err = tx.GetContest(ctx, contestID, true)
		if err != nil {
			return err
		}
		if c.CreatorID != requesterID {
			return fmt.Errorf("%w: only the creator can close contest %s", model.ErrValidation, contestID)
		}
		return e.closeUnmatched(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	e.metrics.closed("creator")
	e.log.Info("contest closed unmatched", zap.String("contest_id", c.ID), zap.String("reason", "creator"))
	e.publish(ctx, events.ContestClosed, c)
	return c, nil
}

func (e *Engine) closeUnmatched(ctx context.Context, tx repo.Tx, c *model.Contest) error {
	now := e.now()
	out := model.Outcome{Label: model.OutcomeUnmatched}
	ok, err := tx.CloseContest(ctx, c.ID, model.StatusOpen, out, now)
	if err != nil {
		return err
	}
	if !ok {
		cur, err := tx.GetContest(ctx, c.ID, false)
		if err != nil {
			return err
		}
		return conflictFor(cur)
	}
	if _, err := ledger.Credit(ctx, tx, ledger.Entry{
		UserID:      c.CreatorID,
		AmountCents: c.StakeCents,
		ContestID:   c.ID,
		Reference:   refundRef(c.ID),
	}, now); err != nil {
		return err
	}
	c.Status = model.StatusClosed
	c.Ended = true
	c.Outcome = model.Some(out)
	c.UpdatedAt = now
	return nil
}

// SettleContest liquida um contest MATCHED com as estatísticas finais gravadas.
// Contest já fechado é no-op (settled=false); OPEN é conflito.
func (e *Engine) SettleContest(ctx context.Context, contestID string) (c *model.Contest, settled bool, err error) {
	err = e.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		c, err = tx.GetContest(ctx, contestID, true)
		if err != nil {
			return err
		}
		switch c.Status {
		case model.StatusClosed:
			return nil
		case model.StatusOpen:
			return fmt.Errorf("%w: contest %s is not matched", model.ErrConflict, contestID)
		}
		settled = true
		return e.settle(ctx, tx, c)
	})
	if err != nil {
		return nil, false, err
	}
	if settled {
		out, _ := c.Outcome.Get()
		e.metrics.settled(out.Label)
		e.log.Info("contest settled",
			zap.String("contest_id", c.ID),
			zap.String("outcome", out.Label),
			zap.String("winner_id", out.WinnerID),
			zap.Int64("winner_amount_cents", out.WinnerAmount),
			zap.Int64("platform_margin_cents", c.PlatformMargin()))
		e.publish(ctx, events.ContestSettled, c)
	}
	return c, settled, nil
}

func (e *Engine) settle(ctx context.Context, tx repo.Tx, c *model.Contest) error {
	margin, err := e.margin(ctx, tx, c)
	if err != nil {
		return err
	}
	contenders, err := tx.ListContenders(ctx, c.ID)
	if err != nil {
		return err
	}
	if len(contenders) != 2 {
		return fmt.Errorf("contest %s: expected 2 contenders, got %d", c.ID, len(contenders))
	}

	now := e.now()
	var out model.Outcome
	if margin.IsZero() {
		out.Label = model.OutcomeTie
		for _, ct := range contenders {
			if err := tx.MarkContender(ctx, ct.ID, false, true); err != nil {
				return err
			}
			if _, err := ledger.Credit(ctx, tx, ledger.Entry{
				UserID:      ct.UserID,
				AmountCents: ct.StakeCents,
				ContestID:   c.ID,
				Reference:   tieRef(c.ID),
			}, now); err != nil {
				return err
			}
		}
	} else {
		claimerID, _ := c.ClaimerID()
		winnerID, label := c.CreatorID, model.OutcomeCreator
		if margin.IsNegative() {
			winnerID, label = claimerID, model.OutcomeClaimer
		}
		for _, ct := range contenders {
			won := ct.UserID == winnerID
			if err := tx.MarkContender(ctx, ct.ID, won, false); err != nil {
				return err
			}
			if !won {
				continue
			}
			out.Label = label
			out.WinnerID = ct.UserID
			out.WinnerAmount = ct.ToWinCents
			for _, en := range []ledger.Entry{
				{UserID: ct.UserID, AmountCents: ct.StakeCents, ContestID: c.ID, Reference: stakeRef(c.ID)},
				{UserID: ct.UserID, AmountCents: ct.ToWinCents, ContestID: c.ID, Reference: winRef(c.ID)},
			} {
				if _, err := ledger.Credit(ctx, tx, en, now); err != nil {
					return err
				}
			}
		}
		if out.WinnerID == "" {
			return fmt.Errorf("contest %s: winner %q is not a contender", c.ID, winnerID)
		}
	}

	ok, err := tx.CloseContest(ctx, c.ID, model.StatusMatched, out, now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: contest %s changed during settlement", model.ErrConflict, c.ID)
	}
	c.Status = model.StatusClosed
	c.Ended = true
	c.Outcome = model.Some(out)
	c.UpdatedAt = now
	return nil
}

// margin é positivo quando o criador vence e negativo quando o claimer vence.
// Cada lado pontua o quanto o seu subject passou da linha na direção que
// escolheu; no mesmo subject as pontuações são simétricas.
func (e *Engine) margin(ctx context.Context, tx repo.Tx, c *model.Contest) (decimal.Decimal, error) {
	results := make(map[string]decimal.Decimal, 2)
	for _, id := range c.SubjectIDs() {
		r, ok, err := tx.SubjectResult(ctx, id)
		if err != nil {
			return decimal.Zero, err
		}
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: subject %s", errNotFinal, id)
		}
		results[id] = r
	}
	creator := sideScore(c.CreatorSide, results[c.CreatorSide.SubjectID])
	claimer := sideScore(c.ClaimerSide, results[c.ClaimerSide.SubjectID])
	return creator.Sub(claimer), nil
}

// sideScore é a distância do resultado até a linha, positiva quando a
// direção do lado acertou
func sideScore(s model.Side, realized decimal.Decimal) decimal.Decimal {
	d := realized.Sub(s.Line)
	if s.Direction == model.Under {
		return d.Neg()
	}
	return d
}

// OnStatisticFinal registra o valor final de um subject (duplicatas são
// ignoradas), fecha os contests OPEN dele sem adversário e liquida os MATCHED.
func (e *Engine) OnStatisticFinal(ctx context.Context, subjectID string, value decimal.Decimal) error {
	if subjectID == "" {
		return fmt.Errorf("%w: subject is required", model.ErrValidation)
	}
	var (
		stored   decimal.Decimal
		inserted bool
		open     []model.Contest
	)
	err := e.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		stored, inserted, err = tx.RecordSubjectResult(ctx, subjectID, value)
		if err != nil {
			return err
		}
		open, err = tx.ContestsBySubject(ctx, subjectID, model.StatusOpen)
		return err
	})
	if err != nil {
		return err
	}
	if !inserted && !stored.Equal(value) {
		e.log.Warn("conflicting final statistic ignored",
			zap.String("subject_id", subjectID),
			zap.String("stored", stored.String()),
			zap.String("received", value.String()))
	}
	if e.subjects != nil {
		e.subjects.Invalidate(ctx, subjectID)
	}

	var errs []error
	for i := range open {
		c := &open[i]
		err := e.store.InTx(ctx, func(tx repo.Tx) error {
			cur, err := tx.GetContest(ctx, c.ID, true)
			if err != nil {
				return err
			}
			if cur.Status != model.StatusOpen {
				return nil
			}
			c = cur
			return e.closeUnmatched(ctx, tx, c)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if c.Status == model.StatusClosed {
			e.metrics.closed("statistic_final")
			e.log.Info("contest closed unmatched", zap.String("contest_id", c.ID), zap.String("reason", "statistic_final"))
			e.publish(ctx, events.ContestClosed, c)
		}
	}

	// a lista de MATCHED é lida depois de fechar os OPEN para pegar claims concorrentes
	var matched []model.Contest
	err = e.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		matched, err = tx.ContestsBySubject(ctx, subjectID, model.StatusMatched)
		return err
	})
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	for _, c := range matched {
		if _, _, err := e.SettleContest(ctx, c.ID); err != nil {
			if errors.Is(err, errNotFinal) {
				e.log.Debug("contest waiting for other subject", zap.String("contest_id", c.ID), zap.Error(err))
				continue
			}
			errs = append(errs, fmt.Errorf("settle %s: %w", c.ID, err))
		}
	}
	return errors.Join(errs...)
}

// PreviewPayout calcula a cotação de um lado sem efeitos colaterais.
// Subject desconhecido ou sem cotação retorna Quote zerada.
func (e *Engine) PreviewPayout(ctx context.Context, subjectID string, dir model.Direction, stakeCents int64) odds.Quote {
	s, err := e.subjects.Get(ctx, subjectID)
	if err != nil {
		e.log.Debug("preview without subject", zap.String("subject_id", subjectID), zap.Error(err))
		return odds.Quote{}
	}
	return e.calc.ComputeSide(s.ProjectedValue, dir, stakeCents, false)
}

// PreviewClaim retorna a cotação que o claimer receberia agora
func (e *Engine) PreviewClaim(ctx context.Context, contestID string) (odds.Quote, error) {
	c, err := e.GetContest(ctx, contestID)
	if err != nil {
		return odds.Quote{}, err
	}
	if c.Status != model.StatusOpen {
		return odds.Quote{}, conflictFor(c)
	}
	return e.claimerQuote(c), nil
}

func (e *Engine) GetContest(ctx context.Context, id string) (*model.Contest, error) {
	var c *model.Contest
	err := e.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		c, err = tx.GetContest(ctx, id, false)
		return err
	})
	return c, err
}

func (e *Engine) Contenders(ctx context.Context, contestID string) ([]model.Contender, error) {
	var out []model.Contender
	err := e.store.InTx(ctx, func(tx repo.Tx) error {
		if _, err := tx.GetContest(ctx, contestID, false); err != nil {
			return err
		}
		var err error
		out, err = tx.ListContenders(ctx, contestID)
		return err
	})
	return out, err
}

func (e *Engine) claimerQuote(c *model.Contest) odds.Quote {
	return e.calc.ComputeSide(c.ClaimerSide.Line, c.ClaimerSide.Direction, c.StakeCents, true)
}

// claimerDirection: no mesmo subject o claimer fica com a direção oposta; com
// subjects diferentes aposta na mesma direção, sobre o subject B.
func claimerDirection(sameSubject bool, creatorDir model.Direction) model.Direction {
	if sameSubject {
		return creatorDir.Opposite()
	}
	return creatorDir
}

func (e *Engine) availableSubject(ctx context.Context, id string) (model.Subject, error) {
	s, err := e.subjects.Get(ctx, id)
	if err != nil {
		return model.Subject{}, err
	}
	if !s.Available(e.now()) {
		return model.Subject{}, fmt.Errorf("%w: subject %s is not available", model.ErrValidation, id)
	}
	return s, nil
}

// checkExternalFunds consulta o gateway fora da transação; o ledger continua
// sendo a checagem definitiva dentro dela.
func (e *Engine) checkExternalFunds(ctx context.Context, userID string, stakeCents int64) error {
	if e.funds == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	bal, err := e.funds.GetBalance(ctx, userID)
	if err != nil {
		return fmt.Errorf("funds balance: %w", err)
	}
	if bal < stakeCents {
		return fmt.Errorf("%w: external balance %d, required %d", model.ErrInsufficientFunds, bal, stakeCents)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, typ string, c *model.Contest) {
	if e.publ == nil {
		return
	}
	ev := events.ContestEvent{
		Type:       typ,
		ContestID:  c.ID,
		CreatorID:  c.CreatorID,
		Status:     string(c.Status),
		StakeCents: c.StakeCents,
		Ts:         e.now(),
	}
	if id, ok := c.ClaimerID(); ok {
		ev.ClaimerID = id
	}
	if out, ok := c.Outcome.Get(); ok {
		ev.Outcome = out.Label
		ev.WinnerID = out.WinnerID
		ev.PlatformMargin = c.PlatformMargin()
	}
	if err := e.publ.PublishContestEvent(ctx, ev); err != nil {
		e.log.Warn("contest event publish failed", zap.String("contest_id", c.ID), zap.String("type", typ), zap.Error(err))
	}
}

func sideFromQuote(subjectID string, dir model.Direction, q odds.Quote) model.Side {
	return model.Side{
		SubjectID:  subjectID,
		Direction:  dir,
		Line:       q.Spread,
		Likelihood: q.Likelihood,
		Cover:      q.Cover,
		WinBonus:   q.WinBonus,
		ToWin:      q.ToWin,
	}
}

func conflictFor(c *model.Contest) error {
	switch c.Status {
	case model.StatusMatched:
		return fmt.Errorf("%w: contest %s already matched", model.ErrConflict, c.ID)
	case model.StatusClosed:
		return fmt.Errorf("%w: contest %s already closed", model.ErrConflict, c.ID)
	}
	return fmt.Errorf("%w: contest %s changed concurrently", model.ErrConflict, c.ID)
}
