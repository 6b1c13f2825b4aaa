package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/internal/contest-service/contest"
	"github.com/radieske/prop-contests/internal/contest-service/funds"
	"github.com/radieske/prop-contests/internal/contest-service/httpapi"
	"github.com/radieske/prop-contests/internal/contest-service/ledger"
	"github.com/radieske/prop-contests/internal/contest-service/odds"
	"github.com/radieske/prop-contests/internal/contest-service/producer"
	"github.com/radieske/prop-contests/internal/contest-service/repo"
	"github.com/radieske/prop-contests/internal/contest-service/subjects"
	"github.com/radieske/prop-contests/internal/contest-service/withdrawal"
	"github.com/radieske/prop-contests/internal/shared/cache"
	"github.com/radieske/prop-contests/internal/shared/config"
	"github.com/radieske/prop-contests/internal/shared/db"
	"github.com/radieske/prop-contests/internal/shared/kafka"
	"github.com/radieske/prop-contests/internal/shared/logger"
	"github.com/radieske/prop-contests/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if cfg.RunMigrations {
		if err := db.Migrate(pg); err != nil {
			log.Fatal("migrations", zap.Error(err))
		}
	}

	// Redis (cache do catálogo de subjects)
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writer (topic contest_events)
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicContestEvents)
	defer writer.Close()

	table, err := odds.Default()
	if err != nil {
		log.Fatal("odds table", zap.Error(err))
	}

	// deps
	store := repo.NewPostgres(pg)
	gateway := funds.New(cfg.FundsGatewayURL, cfg.FundsGatewayTimeout, cfg.FundsGatewayRPS)
	engine := contest.NewEngine(contest.Deps{
		Store:          store,
		Calc:           odds.NewCalculator(table, nil, cfg.WinBonusEnabled),
		Subjects:       subjects.NewDirectory(pg, subjects.NewRedisCache(rdb, cfg.SubjectCacheTTL), log),
		Funds:          gateway,
		Publisher:      producer.NewKafkaPublisher(writer),
		Metrics:        contest.NewMetrics(prometheus.DefaultRegisterer),
		Log:            log,
		GatewayTimeout: cfg.FundsGatewayTimeout,
	})
	gate := withdrawal.NewGate(store, gateway, withdrawal.Config{
		MinCents:       cfg.MinWithdrawCents,
		GatewayTimeout: cfg.FundsGatewayTimeout,
		MaxAttempts:    cfg.WithdrawMaxAttempts,
	}, withdrawal.NewMetrics(prometheus.DefaultRegisterer), log)

	api := &httpapi.API{
		Log:         log,
		Engine:      engine,
		Ledger:      ledger.NewService(store, log),
		Withdrawals: gate,
	}
	apiSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// metrics/health
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "postgres", Fn: pg.PingContext},
		metrics.Check{Name: "redis", Fn: cache.Ping(rdb)},
	)

	go func() {
		log.Info("contest-service listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
}
