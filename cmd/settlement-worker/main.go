package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/internal/contest-service/contest"
	"github.com/radieske/prop-contests/internal/contest-service/funds"
	"github.com/radieske/prop-contests/internal/contest-service/odds"
	"github.com/radieske/prop-contests/internal/contest-service/producer"
	"github.com/radieske/prop-contests/internal/contest-service/repo"
	"github.com/radieske/prop-contests/internal/contest-service/subjects"
	"github.com/radieske/prop-contests/internal/settlement-worker/consumer"
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

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	table, err := odds.Default()
	if err != nil {
		log.Fatal("odds table", zap.Error(err))
	}

	events := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicContestEvents)
	defer events.Close()
	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicStatisticFinalDLQ)
	defer dlq.Close()

	// Consumer group settlement-worker
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicStatisticFinal, "settlement-worker")
	defer reader.Close()

	engine := contest.NewEngine(contest.Deps{
		Store:          repo.NewPostgres(pg),
		Calc:           odds.NewCalculator(table, nil, cfg.WinBonusEnabled),
		Subjects:       subjects.NewDirectory(pg, subjects.NewRedisCache(rdb, cfg.SubjectCacheTTL), log),
		Funds:          funds.New(cfg.FundsGatewayURL, cfg.FundsGatewayTimeout, cfg.FundsGatewayRPS),
		Publisher:      producer.NewKafkaPublisher(events),
		Metrics:        contest.NewMetrics(prometheus.DefaultRegisterer),
		Log:            log,
		GatewayTimeout: cfg.FundsGatewayTimeout,
	})

	// Métricas Prometheus para monitoramento do processamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_messages_consumed_total", Help: "mensagens consumidas"})
	settled := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_subjects_settled_total", Help: "estatísticas aplicadas"})
	dlqC := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_dlq_total", Help: "mensagens enviadas para a DLQ"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, settled, dlqC, errorsBy)

	proc := &consumer.Processor{
		Log:        log,
		Reader:     reader,
		Settler:    engine,
		DLQ:        dlq,
		Retries:    3,
		Backoff:    500 * time.Millisecond,
		OnConsumed: func() { consumed.Inc() },
		OnSettled:  func() { settled.Inc() },
		OnDLQ:      func() { dlqC.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "postgres", Fn: pg.PingContext},
		metrics.Check{Name: "redis", Fn: cache.Ping(rdb)},
	)
	defer msrv.Close()

	log.Info("settlement-worker started")
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("settlement-worker stopped")
}
