package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/internal/contest-service/model"
	"github.com/radieske/prop-contests/pkg/contracts/events"
)

// Reader é o subconjunto do *kafka.Reader usado (commit manual)
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Settler aplica a estatística final (contest.Engine em produção)
type Settler interface {
	OnStatisticFinal(ctx context.Context, subjectID string, value decimal.Decimal) error
}

// Processor consome statistic_final, liquida os contests do subject e só então
// faz commit do offset. Mensagens inválidas ou que esgotam as retentativas vão
// para a DLQ. Callbacks de métricas podem ser usadas para monitoramento.
type Processor struct {
	Log     *zap.Logger
	Reader  Reader
	Settler Settler
	DLQ     interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	}
	Retries int
	Backoff time.Duration

	OnConsumed func()       // métricas (counter++)
	OnSettled  func()       // métricas
	OnDLQ      func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo; retorna quando o contexto é cancelado
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.onError("fetch")
			if !sleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		if err := p.handle(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Error("statistic_final failed, sending to DLQ",
				zap.Int64("offset", m.Offset), zap.ByteString("key", m.Key), zap.Error(err))
			if derr := p.toDLQ(ctx, m, err); derr != nil {
				// sem DLQ não há commit: a mensagem será relida
				p.Log.Error("dlq write failed", zap.Error(derr))
				p.onError("dlq")
				continue
			}
		}

		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			p.Log.Warn("kafka commit failed", zap.Error(err))
			p.onError("commit")
		}
	}
}

// handle decodifica e aplica a mensagem com retentativa para erros transitórios
func (p *Processor) handle(ctx context.Context, m kafka.Message) error {
	var ev events.StatisticFinal
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.onError("decode")
		return fmt.Errorf("%w: decode statistic_final: %v", model.ErrValidation, err)
	}

	var err error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 && !sleep(ctx, time.Duration(attempt)*p.Backoff) {
			return ctx.Err()
		}
		err = p.Settler.OnStatisticFinal(ctx, ev.SubjectID, ev.Value)
		if err == nil {
			if p.OnSettled != nil {
				p.OnSettled()
			}
			p.Log.Info("statistic applied",
				zap.String("subject_id", ev.SubjectID),
				zap.String("value", ev.Value.String()),
				zap.String("source", ev.Source))
			return nil
		}
		if errors.Is(err, model.ErrValidation) {
			break
		}
		p.onError("settle")
		p.Log.Warn("settle attempt failed", zap.String("subject_id", ev.SubjectID), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return err
}

func (p *Processor) toDLQ(ctx context.Context, m kafka.Message, cause error) error {
	if p.DLQ == nil {
		return nil
	}
	dead := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Headers: append(m.Headers,
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "source_offset", Value: []byte(fmt.Sprint(m.Offset))},
		),
		Time: time.Now(),
	}
	if err := p.DLQ.WriteMessages(ctx, dead); err != nil {
		return err
	}
	if p.OnDLQ != nil {
		p.OnDLQ()
	}
	return nil
}

func (p *Processor) onError(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
