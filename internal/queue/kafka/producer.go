package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"fortune-queue/internal/config"
	"fortune-queue/internal/models"
)

// Producer streams order lifecycle events. One writer, topic set per message.
type Producer struct {
	Writer *kafka.Writer
	Topics config.TopicConfig
}

func NewProducer(brokers []string, topics config.TopicConfig) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer, Topics: topics}
}

func (p *Producer) publish(topic string, order models.Order) error {
	msgBytes, err := json.Marshal(order)
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(order.OrderID),
			Value: msgBytes,
		},
	)
}

// PublishOrderQueued streams the payment-confirmed event.
func (p *Producer) PublishOrderQueued(order models.Order) error {
	return p.publish(p.Topics.OrderQueued, order)
}

// PublishOrderStarted streams the promotion event.
func (p *Producer) PublishOrderStarted(order models.Order) error {
	return p.publish(p.Topics.OrderStarted, order)
}

// PublishOrderCompleted streams the reading-completed event.
func (p *Producer) PublishOrderCompleted(order models.Order) error {
	return p.publish(p.Topics.OrderCompleted, order)
}

// PublishOrderCancelled streams the cancellation event.
func (p *Producer) PublishOrderCancelled(order models.Order) error {
	return p.publish(p.Topics.OrderCancelled, order)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
