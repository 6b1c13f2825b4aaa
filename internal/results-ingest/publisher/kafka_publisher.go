package publisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	skafka "github.com/radieske/prop-contests/internal/shared/kafka"
	"github.com/radieske/prop-contests/pkg/contracts/events"
)

// KafkaPublisher encapsula o writer Kafka e o logger.
type KafkaPublisher struct {
	writer skafka.MessageWriter
	closer func() error
	log    *zap.Logger
}

// NewKafkaPublisher cria um publisher para o tópico de estatísticas finais.
// Em ambiente local/dev garante a existência do tópico antes de publicar.
func NewKafkaPublisher(brokers, topic, env string, log *zap.Logger) (*KafkaPublisher, error) {
	list := skafka.Brokers(brokers)
	if len(list) == 0 {
		return nil, fmt.Errorf("kafka brokers not provided")
	}

	if env == "local" || env == "dev" {
		ensureTopic(list[0], topic, log)
	}

	// RequireAll: a estatística final não pode se perder entre o feed e o worker
	writer := skafka.NewWriter(brokers, topic)
	writer.RequiredAcks = kafka.RequireAll
	writer.BatchTimeout = 10 * time.Millisecond
	writer.WriteTimeout = 10 * time.Second
	return &KafkaPublisher{writer: writer, closer: writer.Close, log: log}, nil
}

// ensureTopic usa o controller do cluster para emitir o CreateTopics
func ensureTopic(broker, topic string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		log.Warn("failed to connect to kafka", zap.Error(err))
		return
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		log.Warn("failed to get kafka controller", zap.Error(err))
		return
	}
	cconn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		log.Warn("failed to dial controller", zap.Error(err))
		return
	}
	defer cconn.Close()

	err = cconn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	switch {
	case err == nil:
		log.Info("kafka topic created", zap.String("topic", topic))
	case !strings.Contains(err.Error(), "already exists"):
		log.Warn("failed to create kafka topic", zap.String("topic", topic), zap.Error(err))
	}
}

// Publish envia a estatística com key = subjectId (ordem por subject)
func (p *KafkaPublisher) Publish(ctx context.Context, e events.StatisticFinal) error {
	if err := skafka.WriteJSON(ctx, p.writer, e.SubjectID, e); err != nil {
		p.log.Error("failed to publish statistic", zap.String("subject_id", e.SubjectID), zap.Error(err))
		return err
	}
	p.log.Debug("published statistic", zap.String("subject_id", e.SubjectID))
	return nil
}

// Close finaliza o writer e libera recursos associados.
func (p *KafkaPublisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
