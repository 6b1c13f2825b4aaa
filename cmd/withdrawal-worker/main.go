package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/internal/contest-service/funds"
	"github.com/radieske/prop-contests/internal/contest-service/repo"
	"github.com/radieske/prop-contests/internal/contest-service/withdrawal"
	"github.com/radieske/prop-contests/internal/shared/config"
	"github.com/radieske/prop-contests/internal/shared/db"
	"github.com/radieske/prop-contests/internal/shared/logger"
	"github.com/radieske/prop-contests/internal/shared/metrics"
)

// lote máximo de pedidos PROCESSING por execução
const retryBatch = 50

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	gate := withdrawal.NewGate(
		repo.NewPostgres(pg),
		funds.New(cfg.FundsGatewayURL, cfg.FundsGatewayTimeout, cfg.FundsGatewayRPS),
		withdrawal.Config{
			MinCents:       cfg.MinWithdrawCents,
			GatewayTimeout: cfg.FundsGatewayTimeout,
			MaxAttempts:    cfg.WithdrawMaxAttempts,
			StaleAfter:     30 * time.Second,
		},
		withdrawal.NewMetrics(prometheus.DefaultRegisterer),
		log,
	)

	// SkipIfStillRunning: uma execução lenta do gateway não empilha outra
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = c.AddFunc(cfg.WithdrawRetrySchedule, func() {
		runCtx, stop := context.WithTimeout(ctx, time.Minute)
		defer stop()
		n, err := gate.RetryProcessing(runCtx, retryBatch)
		if err != nil {
			log.Error("withdrawal retry failed", zap.Error(err))
			return
		}
		if n > 0 {
			log.Info("withdrawal retry completed", zap.Int("completed", n))
		}
	})
	if err != nil {
		log.Fatal("invalid retry schedule", zap.String("schedule", cfg.WithdrawRetrySchedule), zap.Error(err))
	}

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "postgres", Fn: pg.PingContext},
	)
	defer msrv.Close()

	c.Start()
	log.Info("withdrawal-worker started", zap.String("schedule", cfg.WithdrawRetrySchedule))
	<-ctx.Done()
	<-c.Stop().Done()
	log.Info("withdrawal-worker stopped")
}
