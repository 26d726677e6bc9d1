package repository

import (
	"context"
	"fmt"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
	pkgkafka "SignalEngine/pkg/kafka"
)

// batchProducer is the slice of pkg/kafka.Producer the publisher needs.
type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaSignalPublisher keys every message by symbol so consumers see a
// symbol's signals and events in order.
type KafkaSignalPublisher struct {
	producer     batchProducer
	signalsTopic string
	eventsTopic  string
}

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, signalsTopic, eventsTopic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, signalsTopic: signalsTopic, eventsTopic: eventsTopic}
}

func (p *KafkaSignalPublisher) PublishSignal(ctx context.Context, s *models.Signal) error {
	return p.PublishSignals(ctx, []*models.Signal{s})
}

func (p *KafkaSignalPublisher) PublishSignals(ctx context.Context, signals []*models.Signal) error {
	msgs := make([]pkgkafka.Message, 0, len(signals))
	for _, s := range signals {
		if s == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(s.Symbol), Value: s})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.producer.PublishBatch(ctx, p.signalsTopic, msgs); err != nil {
		return fmt.Errorf("publish signals: %w", err)
	}
	return nil
}

func (p *KafkaSignalPublisher) PublishEvent(ctx context.Context, e models.PositionEvent) error {
	if err := p.producer.PublishBatch(ctx, p.eventsTopic, []pkgkafka.Message{{Key: []byte(e.Symbol), Value: e}}); err != nil {
		return fmt.Errorf("publish event %s: %w", e.Kind, err)
	}
	return nil
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.SignalPublisher = (*KafkaSignalPublisher)(nil)
