package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/pkg/contracts/events"
)

// Publisher recebe as estatísticas validadas (Kafka em produção)
type Publisher interface {
	Publish(ctx context.Context, e events.StatisticFinal) error
}

// WSClient consome o feed de estatísticas finais via WebSocket e publica cada
// resultado no tópico statistic_final. Duplicatas passam adiante: o consumidor
// é idempotente.
type WSClient struct {
	URL       string
	Source    string // gravado em events.StatisticFinal.Source quando o feed não informa
	Log       *zap.Logger
	Publisher Publisher
	Backoff   time.Duration

	OnReceived func() // métricas
	OnInvalid  func()
}

// Start inicia o loop de conexão e escuta do WebSocket.
// Em caso de desconexão, tenta reconectar com backoff.
func (c *WSClient) Start(ctx context.Context) {
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = 3 * time.Second
	}
	for {
		if err := c.connectAndListen(ctx); err != nil {
			c.Log.Warn("connection closed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			c.Log.Info("context canceled, stopping WS client")
			return
		case <-time.After(backoff):
		}
	}
}

// connectAndListen estabelece a conexão e processa as mensagens recebidas
func (c *WSClient) connectAndListen(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.Log.Info("connected to stats feed", zap.String("url", c.URL))

	// fecha o socket no cancelamento para destravar o ReadMessage
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if c.OnReceived != nil {
			c.OnReceived()
		}

		ev, ok := c.decode(message)
		if !ok {
			if c.OnInvalid != nil {
				c.OnInvalid()
			}
			continue
		}
		if err := c.Publisher.Publish(ctx, ev); err != nil {
			c.Log.Error("failed to publish to Kafka", zap.String("subject_id", ev.SubjectID), zap.Error(err))
		}
	}
}

func (c *WSClient) decode(message []byte) (events.StatisticFinal, bool) {
	var ev events.StatisticFinal
	if err := json.Unmarshal(message, &ev); err != nil {
		c.Log.Warn("invalid message", zap.Error(err))
		return ev, false
	}
	if ev.SubjectID == "" {
		c.Log.Warn("message without subject_id")
		return ev, false
	}
	if ev.Source == "" {
		ev.Source = c.Source
	}
	if ev.Ts.IsZero() {
		ev.Ts = time.Now().UTC()
	}
	return ev, true
}
