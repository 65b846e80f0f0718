package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes messages as JSON records to an outbox topic consumed
// by a separate mail relay. The record key is the recipient, so all mail for
// one address stays in order on one partition.
type KafkaSender struct {
	writer messageWriter
	now    func() time.Time
}

// outboxRecord is the JSON value written to the topic.
type outboxRecord struct {
	Message
	CreatedAt time.Time `json:"createdAt"`
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSender{writer: w, now: time.Now}
}

func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	value, err := json.Marshal(outboxRecord{Message: msg, CreatedAt: s.now().UTC()})
	if err != nil {
		return err
	}

	km := kafka.Message{Key: []byte(msg.To), Value: value, Time: s.now()}
	if err := s.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("kafka publish error: %w", err)
	}
	return nil
}

func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
