package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/pkg/contracts/events"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestPublishKeysBySubject(t *testing.T) {
	w := &captureWriter{}
	p := &KafkaPublisher{writer: w, log: zap.NewNop()}

	ev := events.StatisticFinal{SubjectID: "s-a", Value: decimal.RequireFromString("21.5"), Source: "feed", Ts: time.Now().UTC()}
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "s-a", string(w.msgs[0].Key))

	var got events.StatisticFinal
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.True(t, ev.Value.Equal(got.Value))
	assert.NoError(t, p.Close())
}

func TestPublishReturnsWriterError(t *testing.T) {
	p := &KafkaPublisher{writer: &captureWriter{err: errors.New("broker down")}, log: zap.NewNop()}
	assert.Error(t, p.Publish(context.Background(), events.StatisticFinal{SubjectID: "s-a"}))
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(" , ", "statistic_final", "prod", zap.NewNop())
	assert.Error(t, err)
}
