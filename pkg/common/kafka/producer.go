package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clinicsync/admissions/pkg/common/logger"
	"github.com/clinicsync/admissions/pkg/common/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Producer publishes run events. Writes are bounded by the caller's context
// and the writer's own timeout so a stalled broker cannot hold a run.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 5 * time.Second,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer}
}

func (p *Producer) PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error {
	message, event, err := newMessage(eventType, source, data)
	if err != nil {
		return err
	}

	fields := logrus.Fields{
		"event_id":   event.ID,
		"event_type": eventType,
		"topic":      p.writer.Topic,
	}
	if err := p.writer.WriteMessages(ctx, message); err != nil {
		logger.WithFields(fields).WithError(err).Error("Failed to publish event")
		return err
	}

	logger.WithFields(fields).Info("Event published")
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// newMessage keys the message by run id when present so every event of one
// run lands on the same partition.
func newMessage(eventType string, source string, data map[string]interface{}) (kafka.Message, models.Event, error) {
	event := models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, event, fmt.Errorf("failed to marshal event: %w", err)
	}

	key := event.ID
	if runID, ok := data["run_id"].(string); ok && runID != "" {
		key = runID
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
			{Key: "source", Value: []byte(source)},
		},
	}, event, nil
}
