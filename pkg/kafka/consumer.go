package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"frameworks/crowsnest/pkg/logging"
)

// Message represents a generic Kafka message
type Message struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Handler is a function that processes a Kafka message
type Handler func(ctx context.Context, msg Message) error

// Tailer follows a topic from its current end without a consumer group.
type Tailer struct {
	client *kgo.Client
	logger logging.Logger
}

func NewTailer(brokers []string, topic, clientID string, logger logging.Logger) (*Tailer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &Tailer{client: client, logger: logger}, nil
}

// Run polls until ctx is done. Handler errors are logged and do not stop the loop.
func (t *Tailer) Run(ctx context.Context, handler Handler) error {
	defer t.client.Close()
	for {
		fetches := t.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if fetches.IsClientClosed() {
			return errors.New("kafka client closed")
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			t.logger.WithError(err).WithFields(logging.Fields{
				"topic":     topic,
				"partition": partition,
			}).Warn("Kafka fetch error")
		})
		fetches.EachRecord(func(record *kgo.Record) {
			if err := handler(ctx, messageFromRecord(record)); err != nil {
				t.logger.WithError(err).WithField("offset", record.Offset).Warn("Kafka handler failed")
			}
		})
	}
}

func messageFromRecord(record *kgo.Record) Message {
	msg := Message{
		Key:       record.Key,
		Value:     record.Value,
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Timestamp: record.Timestamp,
	}
	if len(record.Headers) > 0 {
		msg.Headers = make(map[string]string, len(record.Headers))
		for _, h := range record.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}
