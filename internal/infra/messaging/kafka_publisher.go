package messaging

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher は outbox の行をそのまま Kafka に流す。
// topic はメッセージごとに指定する（Writer には持たせない）。
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// key は注文IDなので同じ注文のイベントは同じパーティションに入る
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key, eventType string, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
