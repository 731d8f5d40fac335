package notify

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/nkiryanov/pointledger/internal/models"
)

const DefaultKafkaTopic = "pointledger.balances"

// KafkaSink writes events to kafka topic
// Messages are keyed by balance so events of a balance stay ordered within a partition
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Net.MaxOpenRequests = 1 // retries must not reorder messages of a balance
	cfg.Producer.Return.Successes = true
	return cfg
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("error while creating kafka producer. Err: %w", err)
	}

	return NewKafkaSinkWithProducer(producer, topic), nil
}

func NewKafkaSinkWithProducer(producer sarama.SyncProducer, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Send(_ context.Context, ev models.BalanceEvent) error {
	payload, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("error while encoding event. Err: %w", err)
	}

	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(ev.Balance.Key().String()),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("kafka send error: %w", err)
	}

	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
