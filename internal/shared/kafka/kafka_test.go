package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, Brokers("a:9092, b:9092,"))
	assert.Nil(t, Brokers(""))
}

func TestNewWriterKeysByHash(t *testing.T) {
	w := NewWriter("a:9092,b:9092", "contest_events")
	assert.Equal(t, "contest_events", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}
