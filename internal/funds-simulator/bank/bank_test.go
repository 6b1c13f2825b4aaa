package bank

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/prop-contests/internal/contest-service/funds"
)

func newServer(t *testing.T, failurePct int) (*Bank, *funds.Client) {
	t.Helper()
	b := New(failurePct, prometheus.NewRegistry(), nil)
	r := chi.NewRouter()
	b.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return b, funds.New(srv.URL, time.Second, 0)
}

func TestBalanceAndWithdrawal(t *testing.T) {
	b, c := newServer(t, 0)
	b.Seed("u-1", 7000)
	ctx := context.Background()

	bal, err := c.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7000), bal)

	ref, err := c.Transfer(ctx, "u-1", funds.KindWithdrawal, 2500, "withdrawal:w-1")
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	again, err := c.Transfer(ctx, "u-1", funds.KindWithdrawal, 2500, "withdrawal:w-1")
	require.NoError(t, err)
	assert.Equal(t, ref, again)

	bal, err = c.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9500), bal)
	assert.Equal(t, float64(1), testutil.ToFloat64(b.transfersC.WithLabelValues("replayed")))
}

func TestTransferFailures(t *testing.T) {
	_, c := newServer(t, 100)
	_, err := c.Transfer(context.Background(), "u-1", funds.KindWithdrawal, 100, "withdrawal:w-2")
	require.Error(t, err)
	assert.True(t, funds.IsRetryable(err))

	b, c := newServer(t, 0)
	b.Seed("u-2", 50)
	_, err = c.Transfer(context.Background(), "u-2", funds.KindDeposit, 100, "deposit:d-1")
	require.Error(t, err)
	assert.False(t, funds.IsRetryable(err))
}
