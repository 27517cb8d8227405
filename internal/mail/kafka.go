package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the mailer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMailer publishes each message as a JSON event for a separate mail
// delivery service to consume.
type KafkaMailer struct {
	writer messageWriter
}

// NewKafkaMailer creates a KafkaMailer writing to topic on brokers.
func NewKafkaMailer(brokers []string, topic string) *KafkaMailer {
	return &KafkaMailer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		},
	}
}

func (m *KafkaMailer) Send(ctx context.Context, msg Message) error {
	msg = msg.sanitized()
	if msg.To == "" {
		return ErrNoRecipient
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding mail event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.To),
		Value: value,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("publishing mail event: %w", err)
	}
	return nil
}

func (m *KafkaMailer) Close() error {
	return m.writer.Close()
}
