package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/internal/funds-simulator/bank"
	"github.com/radieske/prop-contests/internal/funds-simulator/feed"
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := bank.New(20, prometheus.DefaultRegisterer, log) // 20% de falha nas transferências
	h := feed.NewHub(prometheus.DefaultRegisterer, log)

	// A cada 5 segundos finaliza um subject do catálogo. De vez em quando
	// reenvia o mesmo resultado para exercitar a idempotência do consumidor.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			ev := feed.Finalize(feed.Catalog[i%len(feed.Catalog)], cfg.ServiceName)
			h.Broadcast(ev)
			if rand.Intn(100) < 25 {
				h.Broadcast(ev)
			}
			i++
		}
	}()

	// ==== HTTP público: /ws e endpoints do gateway
	r := chi.NewRouter()
	r.Handle("/ws", h)
	b.Routes(r)

	publicSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log)
	defer msrv.Close()

	go func() {
		log.Info("funds simulator (public) running",
			zap.String("addr", publicSrv.Addr),
			zap.String("paths", "/ws,/accounts/{id}/balance,/transfers"),
		)
		if err := publicSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("public server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = publicSrv.Shutdown(shutdownCtx)
}
