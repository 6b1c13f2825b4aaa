package contest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/prop-contests/internal/contest-service/funds/fundstest"
	"github.com/radieske/prop-contests/internal/contest-service/ledger"
	"github.com/radieske/prop-contests/internal/contest-service/model"
	"github.com/radieske/prop-contests/internal/contest-service/odds"
	"github.com/radieske/prop-contests/internal/contest-service/repo"
	"github.com/radieske/prop-contests/pkg/contracts/events"
)

type fakeSubjects struct {
	mu          sync.Mutex
	m           map[string]model.Subject
	invalidated []string
}

func (f *fakeSubjects) Get(_ context.Context, id string) (model.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.m[id]
	if !ok {
		return model.Subject{}, fmt.Errorf("%w: subject %s", model.ErrNotFound, id)
	}
	return s, nil
}

func (f *fakeSubjects) Invalidate(_ context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, id)
}

type recorder struct {
	mu     sync.Mutex
	events []events.ContestEvent
}

func (r *recorder) PublishContestEvent(_ context.Context, e events.ContestEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type env struct {
	engine   *Engine
	store    *repo.Memory
	ledger   *ledger.Service
	gateway  *fundstest.Gateway
	subjects *fakeSubjects
	events   *recorder
	metrics  *Metrics
}

func newEnv(t *testing.T) *env {
	t.Helper()
	tbl, err := odds.Default()
	require.NoError(t, err)

	starts := time.Now().Add(2 * time.Hour)
	subj := &fakeSubjects{m: map[string]model.Subject{
		"s-a":    {ID: "s-a", Name: "Player A", ProjectedValue: decimal.NewFromInt(20), StartsAt: starts},
		"s-b":    {ID: "s-b", Name: "Player B", ProjectedValue: decimal.NewFromInt(20), StartsAt: starts},
		"s-off":  {ID: "s-off", Name: "Off the curve", ProjectedValue: decimal.NewFromInt(90), StartsAt: starts},
		"s-live": {ID: "s-live", Name: "Already started", ProjectedValue: decimal.NewFromInt(20), StartsAt: time.Now().Add(-time.Minute)},
	}}
	store := repo.NewMemory()
	gw := fundstest.New()
	rec := &recorder{}
	m := NewMetrics(prometheus.NewRegistry())

	e := &env{
		engine: NewEngine(Deps{
			Store:     store,
			Calc:      odds.NewCalculator(tbl, nil, false),
			Subjects:  subj,
			Funds:     gw,
			Publisher: rec,
			Metrics:   m,
		}),
		store:    store,
		ledger:   ledger.NewService(store, nil),
		gateway:  gw,
		subjects: subj,
		events:   rec,
		metrics:  m,
	}
	return e
}

// fund credita o ledger e o gateway externo com o mesmo valor
func (e *env) fund(t *testing.T, userID string, cents int64) {
	t.Helper()
	e.gateway.SetBalance(userID, cents)
	_, _, err := e.ledger.Deposit(context.Background(), userID, cents, "seed-"+userID)
	require.NoError(t, err)
}

func (e *env) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := e.ledger.BalanceOf(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (e *env) contestsOn(t *testing.T, subjectID string, st model.ContestStatus) []model.Contest {
	t.Helper()
	var out []model.Contest
	require.NoError(t, e.store.InTx(context.Background(), func(tx repo.Tx) error {
		var err error
		out, err = tx.ContestsBySubject(context.Background(), subjectID, st)
		return err
	}))
	return out
}

func TestCreateAndClaimPayouts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, "u-1", 5000)
	e.fund(t, "u-2", 5000)

	c, err := e.engine.CreateContest(ctx, CreateRequest{
		CreatorID: "u-1", SubjectA: "s-a", SubjectB: "s-b", Direction: model.Over, StakeCents: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, c.Status)
	assert.Equal(t, 40, c.CreatorSide.Likelihood)
	assert.Equal(t, int64(1450), c.CreatorSide.Cover)
	assert.Equal(t, int64(0), c.CreatorSide.WinBonus)
	assert.Equal(t, model.Over, c.ClaimerSide.Direction)
	assert.Equal(t, "s-b", c.ClaimerSide.SubjectID)
	assert.Equal(t, int64(4000), e.balance(t, "u-1"))
	require.NoError(t, c.Validate())

	c, err = e.engine.ClaimContest(ctx, c.ID, "u-2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusMatched, c.Status)
	assert.Equal(t, int64(1500), c.ClaimerSide.Cover)
	id, ok := c.ClaimerID()
	assert.True(t, ok)
	assert.Equal(t, "u-2", id)
	assert.Equal(t, int64(4000), e.balance(t, "u-2"))

	stored, err := e.engine.GetContest(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusMatched, stored.Status)
	require.NoError(t, stored.Validate())

	cts, err := e.engine.Contenders(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, cts, 2)
	assert.Equal(t, "u-1", cts[0].UserID)
	assert.Equal(t, int64(1450), cts[0].ToWinCents)
	assert.Equal(t, "u-2", cts[1].UserID)
	assert.Equal(t, int64(1500), cts[1].ToWinCents)

	assert.Equal(t, []string{events.ContestCreated, events.ContestMatched}, e.events.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Created))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Claims.WithLabelValues("matched")))
}

func TestSameSubjectClaimerPricedOnOppositeDirection(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, "u-1", 5000)
	e.fund(t, "u-2", 5000)

	c, err := e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-1", SubjectA: "s-a", StakeCents: 1000})
	require.NoError(t, err)
	assert.Equal(t, model.Over, c.CreatorSide.Direction)
	assert.True(t, c.SameSubject())

	q, err := e.engine.PreviewClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, q.Likelihood)

	c, err = e.engine.ClaimContest(ctx, c.ID, "u-2")
	require.NoError(t, err)
	assert.Equal(t, 60, c.ClaimerSide.Likelihood)
	assert.Equal(t, int64(670), c.ClaimerSide.Cover)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, "u-1", 5000)

	cases := map[string]CreateRequest{
		"zero stake":        {CreatorID: "u-1", SubjectA: "s-a"},
		"no creator":        {SubjectA: "s-a", StakeCents: 100},
		"bad direction":     {CreatorID: "u-1", SubjectA: "s-a", Direction: "SIDEWAYS", StakeCents: 100},
		"started subject":   {CreatorID: "u-1", SubjectA: "s-live", StakeCents: 100},
		"subject off curve": {CreatorID: "u-1", SubjectA: "s-off", StakeCents: 100},
		"claimer off curve": {CreatorID: "u-1", SubjectA: "s-a", SubjectB: "s-off", StakeCents: 100},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.engine.CreateContest(ctx, req)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}

	_, err := e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-1", SubjectA: "missing", StakeCents: 100})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, int64(5000), e.balance(t, "u-1"))
}

func TestCreateInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	// gateway sem saldo
	e.fund(t, "u-1", 5000)
	e.gateway.SetBalance("u-1", 500)
	_, err := e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-1", SubjectA: "s-a", StakeCents: 1000})
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)

	// gateway ok, ledger sem saldo: nada pode ficar gravado
	e.gateway.SetBalance("u-3", 5000)
	_, err = e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-3", SubjectA: "s-a", StakeCents: 1000})
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)

	assert.Empty(t, e.contestsOn(t, "s-a", model.StatusOpen))
	assert.Equal(t, int64(0), e.balance(t, "u-3"))
	assert.Equal(t, int64(5000), e.balance(t, "u-1"))
	assert.Empty(t, e.events.types())
}

func TestCreateFailsWhenGatewayDown(t *testing.T) {
	e := newEnv(t)
	e.fund(t, "u-1", 5000)
	e.gateway.BalanceErr = errors.New("connection refused")

	_, err := e.engine.CreateContest(context.Background(), CreateRequest{CreatorID: "u-1", SubjectA: "s-a", StakeCents: 1000})
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrInsufficientFunds)
	assert.Equal(t, int64(5000), e.balance(t, "u-1"))
}

func TestClaimRules(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, "u-1", 5000)
	e.fund(t, "u-2", 5000)
	e.gateway.SetBalance("u-poor", 5000)

	c, err := e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-1", SubjectA: "s-a", SubjectB: "s-b", StakeCents: 1000})
	require.NoError(t, err)

	_, err = e.engine.ClaimContest(ctx, c.ID, "u-1")
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = e.engine.ClaimContest(ctx, "nope", "u-2")
	assert.ErrorIs(t, err, model.ErrNotFound)

	// ledger sem saldo desfaz o claim inteiro
	_, err = e.engine.ClaimContest(ctx, c.ID, "u-poor")
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)
	cur, err := e.engine.GetContest(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, cur.Status)
	assert.False(t, cur.Claimer.IsSet())

	_, err = e.engine.ClaimContest(ctx, c.ID, "u-2")
	require.NoError(t, err)

	_, err = e.engine.ClaimContest(ctx, c.ID, "u-3")
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.Contains(t, err.Error(), "already matched")
}

func TestConcurrentClaimsMatchExactlyOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, "u-1", 5000)

	c, err := e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-1", SubjectA: "s-a", SubjectB: "s-b", StakeCents: 1000})
	require.NoError(t, err)

	const n = 12
	for i := 0; i < n; i++ {
		e.fund(t, fmt.Sprintf("claimer-%d", i), 2000)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := e.engine.ClaimContest(ctx, c.ID, user)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, user)
			case errors.Is(err, model.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(fmt.Sprintf("claimer-%d", i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, n-1, conflicts)

	cur, err := e.engine.GetContest(ctx, c.ID)
	require.NoError(t, err)
	id, _ := cur.ClaimerID()
	assert.Equal(t, winners[0], id)

	cts, err := e.engine.Contenders(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, cts, 2)

	// só o vencedor foi debitado
	for i := 0; i < n; i++ {
		user := fmt.Sprintf("claimer-%d", i)
		want := int64(2000)
		if user == winners[0] {
			want = 1000
		}
		assert.Equal(t, want, e.balance(t, user), user)
	}
}

func TestCloseContest(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, "u-1", 5000)
	e.fund(t, "u-2", 5000)

	c, err := e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-1", SubjectA: "s-a", StakeCents: 1000})
	require.NoError(t, err)

	_, err = e.engine.CloseContest(ctx, c.ID, "u-2")
	assert.ErrorIs(t, err, model.ErrValidation)

	c, err = e.engine.CloseContest(ctx, c.ID, "u-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, c.Status)
	assert.True(t, c.Ended)
	out, _ := c.Outcome.Get()
	assert.Equal(t, model.OutcomeUnmatched, out.Label)
	assert.Equal(t, int64(5000), e.balance(t, "u-1"))
	require.NoError(t, c.Validate())
	stored, err := e.engine.GetContest(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.UpdatedAt.Equal(c.UpdatedAt))

	_, err = e.engine.CloseContest(ctx, c.ID, "u-1")
	assert.ErrorIs(t, err, model.ErrConflict)
	_, err = e.engine.ClaimContest(ctx, c.ID, "u-2")
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.Equal(t, int64(5000), e.balance(t, "u-1"))

	// contest casado não pode ser cancelado
	m, err := e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-1", SubjectA: "s-a", StakeCents: 1000})
	require.NoError(t, err)
	_, err = e.engine.ClaimContest(ctx, m.ID, "u-2")
	require.NoError(t, err)
	_, err = e.engine.CloseContest(ctx, m.ID, "u-1")
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestSettleSameSubjectCreatorWins(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, "u-1", 5000)
	e.fund(t, "u-2", 5000)

	c, err := e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-1", SubjectA: "s-a", StakeCents: 1000})
	require.NoError(t, err)
	_, err = e.engine.ClaimContest(ctx, c.ID, "u-2")
	require.NoError(t, err)

	_, _, err = e.engine.SettleContest(ctx, c.ID)
	assert.ErrorIs(t, err, errNotFinal)

	require.NoError(t, e.engine.OnStatisticFinal(ctx, "s-a", decimal.NewFromInt(25)))

	cur, err := e.engine.GetContest(ctx, c.ID)
	require.NoError(t, err)
	require.NoError(t, cur.Validate())
	out, _ := cur.Outcome.Get()
	assert.Equal(t, model.OutcomeCreator, out.Label)
	assert.Equal(t, "u-1", out.WinnerID)
	assert.Equal(t, int64(1450), out.WinnerAmount)
	assert.Equal(t, int64(5000-1000+1000+1450), e.balance(t, "u-1"))
	assert.Equal(t, int64(4000), e.balance(t, "u-2"))
	assert.Equal(t, []string{"s-a"}, e.subjects.invalidated)

	cts, err := e.engine.Contenders(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, cts[0].Winner)
	assert.False(t, cts[1].Winner)

	// duplicatas do feed e nova liquidação não alteram nada
	require.NoError(t, e.engine.OnStatisticFinal(ctx, "s-a", decimal.NewFromInt(25)))
	require.NoError(t, e.engine.OnStatisticFinal(ctx, "s-a", decimal.NewFromInt(3)))
	_, settled, err := e.engine.SettleContest(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, settled)
	assert.Equal(t, int64(6450), e.balance(t, "u-1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Settled.WithLabelValues(model.OutcomeCreator)))
}

func TestSettleUnderWins(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, "u-1", 5000)
	e.fund(t, "u-2", 5000)

	c, err := e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-1", SubjectA: "s-a", StakeCents: 1000})
	require.NoError(t, err)
	c, err = e.engine.ClaimContest(ctx, c.ID, "u-2")
	require.NoError(t, err)

	require.NoError(t, e.engine.OnStatisticFinal(ctx, "s-a", decimal.RequireFromString("19.5")))

	cur, err := e.engine.GetContest(ctx, c.ID)
	require.NoError(t, err)
	out, _ := cur.Outcome.Get()
	assert.Equal(t, model.OutcomeClaimer, out.Label)
	assert.Equal(t, "u-2", out.WinnerID)
	assert.Equal(t, int64(4000+1000+670), e.balance(t, "u-2"))
	assert.Equal(t, int64(4000), e.balance(t, "u-1"))
	assert.Equal(t, int64(1000-670), cur.PlatformMargin())
}

func TestSettleTieRefundsBoth(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, "u-1", 5000)
	e.fund(t, "u-2", 5000)

	c, err := e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-1", SubjectA: "s-a", StakeCents: 1000})
	require.NoError(t, err)
	_, err = e.engine.ClaimContest(ctx, c.ID, "u-2")
	require.NoError(t, err)

	require.NoError(t, e.engine.OnStatisticFinal(ctx, "s-a", decimal.NewFromInt(20)))

	cur, err := e.engine.GetContest(ctx, c.ID)
	require.NoError(t, err)
	out, _ := cur.Outcome.Get()
	assert.Equal(t, model.OutcomeTie, out.Label)
	assert.Empty(t, out.WinnerID)
	assert.Equal(t, int64(5000), e.balance(t, "u-1"))
	assert.Equal(t, int64(5000), e.balance(t, "u-2"))
	assert.Equal(t, int64(0), cur.PlatformMargin())

	cts, err := e.engine.Contenders(ctx, c.ID)
	require.NoError(t, err)
	for _, ct := range cts {
		assert.True(t, ct.Tied)
		assert.False(t, ct.Winner)
	}
}

func TestTwoSubjectSettlementWaitsForBoth(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, "u-1", 5000)
	e.fund(t, "u-2", 5000)

	c, err := e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-1", SubjectA: "s-a", SubjectB: "s-b", StakeCents: 1000})
	require.NoError(t, err)
	_, err = e.engine.ClaimContest(ctx, c.ID, "u-2")
	require.NoError(t, err)

	// A ficou 5 abaixo da linha
	require.NoError(t, e.engine.OnStatisticFinal(ctx, "s-a", decimal.NewFromInt(15)))
	cur, err := e.engine.GetContest(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusMatched, cur.Status)

	// B ficou 5 acima: o claimer (OVER em B) vence
	require.NoError(t, e.engine.OnStatisticFinal(ctx, "s-b", decimal.NewFromInt(25)))
	cur, err = e.engine.GetContest(ctx, c.ID)
	require.NoError(t, err)
	out, _ := cur.Outcome.Get()
	assert.Equal(t, model.OutcomeClaimer, out.Label)
	assert.Equal(t, int64(1500), out.WinnerAmount)
	assert.Equal(t, int64(4000+1000+1500), e.balance(t, "u-2"))
}

func TestTwoSubjectSettlementFollowsEachSideDirection(t *testing.T) {
	cases := []struct {
		name          string
		dir           model.Direction
		ra, rb        int64
		creatorCover  int64
		claimerCover  int64
		outcome       string
		winner        string
		winnerAmount  int64
		winnerHitLine bool // o subject do vencedor foi para o lado que ele escolheu
	}{
		{"over, A beats line by more", model.Over, 25, 22, 1450, 1500, model.OutcomeCreator, "u-1", 1450, true},
		{"over, B beats line", model.Over, 15, 25, 1450, 1500, model.OutcomeClaimer, "u-2", 1500, true},
		{"under, A below line", model.Under, 18, 25, 640, 670, model.OutcomeCreator, "u-1", 640, true},
		{"under, A at line and B over", model.Under, 20, 25, 640, 670, model.OutcomeCreator, "u-1", 640, false},
		{"under, B below line", model.Under, 22, 15, 640, 670, model.OutcomeClaimer, "u-2", 670, true},
		{"over, same distance", model.Over, 23, 23, 1450, 1500, model.OutcomeTie, "", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t)
			e.fund(t, "u-1", 5000)
			e.fund(t, "u-2", 5000)

			c, err := e.engine.CreateContest(ctx, CreateRequest{
				CreatorID: "u-1", SubjectA: "s-a", SubjectB: "s-b", Direction: tc.dir, StakeCents: 1000,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.creatorCover, c.CreatorSide.Cover)
			c, err = e.engine.ClaimContest(ctx, c.ID, "u-2")
			require.NoError(t, err)
			assert.Equal(t, tc.dir, c.ClaimerSide.Direction)
			assert.Equal(t, tc.claimerCover, c.ClaimerSide.Cover)

			require.NoError(t, e.engine.OnStatisticFinal(ctx, "s-a", decimal.NewFromInt(tc.ra)))
			require.NoError(t, e.engine.OnStatisticFinal(ctx, "s-b", decimal.NewFromInt(tc.rb)))

			cur, err := e.engine.GetContest(ctx, c.ID)
			require.NoError(t, err)
			require.NoError(t, cur.Validate())
			out, _ := cur.Outcome.Get()
			assert.Equal(t, tc.outcome, out.Label)
			assert.Equal(t, tc.winner, out.WinnerID)
			assert.Equal(t, tc.winnerAmount, out.WinnerAmount)

			cts, err := e.engine.Contenders(ctx, c.ID)
			require.NoError(t, err)
			require.Len(t, cts, 2)
			realized := map[string]int64{"s-a": tc.ra, "s-b": tc.rb}
			for _, ct := range cts {
				assert.Equal(t, tc.dir, ct.Direction)
				if !ct.Winner {
					continue
				}
				assert.Equal(t, tc.winner, ct.UserID)
				r := realized[ct.SubjectID]
				hit := (ct.Direction == model.Over && r > 20) || (ct.Direction == model.Under && r < 20)
				assert.Equal(t, tc.winnerHitLine, hit)
			}
			if tc.winner == "" {
				assert.Equal(t, int64(5000), e.balance(t, "u-1"))
				assert.Equal(t, int64(5000), e.balance(t, "u-2"))
				return
			}
			assert.Equal(t, int64(4000+1000)+tc.winnerAmount, e.balance(t, tc.winner))
		})
	}
}

func TestStatisticFinalClosesOpenContests(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, "u-1", 5000)

	c, err := e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-1", SubjectA: "s-a", SubjectB: "s-b", StakeCents: 1000})
	require.NoError(t, err)

	_, _, err = e.engine.SettleContest(ctx, c.ID)
	assert.ErrorIs(t, err, model.ErrConflict)

	require.NoError(t, e.engine.OnStatisticFinal(ctx, "s-b", decimal.NewFromInt(7)))

	cur, err := e.engine.GetContest(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, cur.Status)
	out, _ := cur.Outcome.Get()
	assert.Equal(t, model.OutcomeUnmatched, out.Label)
	assert.Equal(t, int64(5000), e.balance(t, "u-1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Closed.WithLabelValues("statistic_final")))

	assert.ErrorIs(t, e.engine.OnStatisticFinal(ctx, "", decimal.Zero), model.ErrValidation)
}

func TestBalanceNeverNegativeAcrossContests(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, "u-1", 2500)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.engine.CreateContest(ctx, CreateRequest{CreatorID: "u-1", SubjectA: "s-a", StakeCents: 1000})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, model.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, created)
	assert.Equal(t, int64(500), e.balance(t, "u-1"))
}

func TestPreviewPayout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	q := e.engine.PreviewPayout(ctx, "s-a", model.Over, 1000)
	assert.Equal(t, int64(1450), q.Cover)
	assert.Equal(t, int64(1450), q.ToWin)
	assert.True(t, q.Spread.Equal(decimal.NewFromInt(20)))

	assert.True(t, e.engine.PreviewPayout(ctx, "missing", model.Over, 1000).IsZero())
	assert.True(t, e.engine.PreviewPayout(ctx, "s-off", model.Over, 1000).IsZero())
	assert.True(t, e.engine.PreviewPayout(ctx, "s-a", model.Over, 0).IsZero())
}
