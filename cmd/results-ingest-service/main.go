package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/internal/results-ingest/publisher"
	"github.com/radieske/prop-contests/internal/results-ingest/service"
	"github.com/radieske/prop-contests/internal/shared/config"
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

	log.Info("Kafka brokers", zap.String("brokers", cfg.KafkaBrokers))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Kafka Publisher
	pub, err := publisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.TopicStatisticFinal, cfg.Env, log)
	if err != nil {
		log.Fatal("kafka publisher", zap.Error(err))
	}
	defer pub.Close()

	received := prometheus.NewCounter(prometheus.CounterOpts{Name: "results_ingest_messages_received_total", Help: "mensagens recebidas do feed"})
	invalid := prometheus.NewCounter(prometheus.CounterOpts{Name: "results_ingest_messages_invalid_total", Help: "mensagens descartadas"})
	prometheus.MustRegister(received, invalid)

	// WS Client
	wsClient := &service.WSClient{
		URL:        cfg.StatsFeedWSURL,
		Source:     "stats-feed",
		Log:        log,
		Publisher:  pub,
		OnReceived: func() { received.Inc() },
		OnInvalid:  func() { invalid.Inc() },
	}
	done := make(chan struct{})
	go func() {
		wsClient.Start(ctx)
		close(done)
	}()

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log)
	defer msrv.Close()

	<-ctx.Done()
	log.Info("shutdown signal received")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}
