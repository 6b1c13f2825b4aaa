package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/internal/contest-service/model"
	"github.com/radieske/prop-contests/pkg/contracts/events"
)

// fakeReader entrega as mensagens em ordem e cancela o contexto ao esgotar
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

type fakeSettler struct {
	failures map[string]int // falhas restantes por subject
	err      error
	applied  []string
}

func (s *fakeSettler) OnStatisticFinal(_ context.Context, subjectID string, _ decimal.Decimal) error {
	if s.failures[subjectID] > 0 {
		s.failures[subjectID]--
		return s.err
	}
	if subjectID == "" {
		return model.ErrValidation
	}
	s.applied = append(s.applied, subjectID)
	return nil
}

type dlq struct{ msgs []kafka.Message }

func (d *dlq) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	d.msgs = append(d.msgs, msgs...)
	return nil
}

func msg(t *testing.T, offset int64, subjectID string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(events.StatisticFinal{SubjectID: subjectID, Value: decimal.NewFromInt(21), Source: "feed", Ts: time.Now()})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(subjectID), Value: b}
}

func TestProcessorRetriesAndDeadLetters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		msg(t, 1, "s-a"),
		{Offset: 2, Value: []byte("not json")},
		msg(t, 3, "s-b"),
		msg(t, 4, "s-c"),
		msg(t, 5, ""),
	}}
	settler := &fakeSettler{
		err:      errors.New("db down"),
		failures: map[string]int{"s-b": 1, "s-c": 10},
	}
	dead := &dlq{}
	var consumed, settled int
	stages := map[string]int{}

	p := &Processor{
		Log:        zap.NewNop(),
		Reader:     reader,
		Settler:    settler,
		DLQ:        dead,
		Retries:    2,
		Backoff:    time.Millisecond,
		OnConsumed: func() { consumed++ },
		OnSettled:  func() { settled++ },
		OnError:    func(s string) { stages[s]++ },
	}
	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 5, consumed)
	assert.Equal(t, 2, settled)
	assert.Equal(t, []string{"s-a", "s-b"}, settler.applied)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, reader.committed)

	require.Len(t, dead.msgs, 3)
	assert.Equal(t, []byte("not json"), dead.msgs[0].Value)
	assert.Equal(t, "s-c", string(dead.msgs[1].Key))
	assert.Equal(t, "error", dead.msgs[1].Headers[0].Key)
	assert.Equal(t, 1, stages["decode"])
	assert.Equal(t, 1+3, stages["settle"])
}
