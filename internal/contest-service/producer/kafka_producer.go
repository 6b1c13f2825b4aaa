package producer

import (
	"context"

	"github.com/radieske/prop-contests/internal/shared/kafka"
	"github.com/radieske/prop-contests/pkg/contracts/events"
)

// KafkaPublisher publica as transições de contest no tópico contest_events,
// com a key = contestId para manter a ordem por contest.
type KafkaPublisher struct {
	Writer kafka.MessageWriter
}

func NewKafkaPublisher(w kafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

func (p *KafkaPublisher) PublishContestEvent(ctx context.Context, e events.ContestEvent) error {
	return kafka.WriteJSON(ctx, p.Writer, e.ContestID, e)
}
