package kafka

import "context"

type (
	Message struct {
		Topic     string
		Key       []byte
		Value     []byte
		Partition int
		Offset    int64
	}

	// Publisher hands messages to the broker. A nil error means the broker acknowledged the write.
	Publisher interface {
		Publish(ctx context.Context, topic string, key, value []byte) error
	}

	// Consumer reads messages with at-least-once semantics: a message is redelivered
	// until it has been committed.
	Consumer interface {
		Fetch(ctx context.Context) (Message, error)
		Commit(ctx context.Context, msg Message) error
	}

	MessageBroker interface {
		Publisher
		Consumer
		Close() error
	}
)
