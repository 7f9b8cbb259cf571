package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const producerBatchTimeout = 5 * time.Millisecond

type Config struct {
	Brokers []string
	Topic   string
	// GroupID enables consuming; a publish-only service leaves it empty.
	GroupID           string
	NumPartitions     int
	ReplicationFactor int
}

type Service struct {
	producer *kafka.Writer
	consumer *kafka.Reader
	logger   *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Service, error) {
	for _, broker := range cfg.Brokers {
		if err := createTopic(cfg.Topic, broker, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
			return nil, err
		}
	}

	s := &Service{
		producer: newProducer(cfg.Brokers),
		logger:   logger,
	}

	if cfg.GroupID != "" {
		s.consumer = kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
			GroupID: cfg.GroupID,
		})
	}

	return s, nil
}

// newProducer flushes every message right away: publishes are synchronous and
// callers wait for the broker acknowledgement.
func newProducer(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    1,
		BatchTimeout: producerBatchTimeout,
	}
}

func (s *Service) Publish(ctx context.Context, topic string, key, value []byte) error {
	err := s.producer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to kafka: %w", err)
	}
	return nil
}

func (s *Service) Fetch(ctx context.Context) (Message, error) {
	if s.consumer == nil {
		return Message{}, errors.New("kafka consumer is not configured")
	}

	msg, err := s.consumer.FetchMessage(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("failed to read message from kafka: %w", err)
	}

	return Message{
		Topic:     msg.Topic,
		Key:       msg.Key,
		Value:     msg.Value,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}, nil
}

func (s *Service) Commit(ctx context.Context, msg Message) error {
	if s.consumer == nil {
		return errors.New("kafka consumer is not configured")
	}

	err := s.consumer.CommitMessages(ctx, kafka.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	})
	if err != nil {
		return fmt.Errorf("failed to commit kafka offset %d: %w", msg.Offset, err)
	}
	return nil
}

func (s *Service) Close() error {
	if err := s.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			return fmt.Errorf("failed to close kafka consumer: %w", err)
		}
	}
	return nil
}

func createTopic(topic, broker string, numPartitions, replicationFactor int, logger *zap.Logger) error {
	conn, err := kafka.Dial("tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	})
	if err != nil {
		if errors.Is(err, kafka.TopicAlreadyExists) {
			logger.Debug("kafka topic already exists", zap.String("topic", topic))
			return nil
		}
		return fmt.Errorf("failed to create kafka topic '%s': %w", topic, err)
	}

	logger.Info("kafka topic created", zap.String("topic", topic))
	return nil
}
