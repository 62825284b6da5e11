package event_publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
	"nftmarket/apps/market/internal/events"
	"nftmarket/apps/market/internal/metrics"
	"nftmarket/apps/market/internal/model"
)

const (
	batchSize = 100

	// claimTimeout is how long an event may sit in 'processing' before it is
	// handed out again
	claimTimeout = time.Minute

	// markTimeout bounds outbox writes made after the publish context is done
	markTimeout = 5 * time.Second
)

type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Close()
}

type outboxStore interface {
	GetUnsentEventsForProcessing(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkEventAsSent(ctx context.Context, id int64) error
	MarkEventAsFailed(ctx context.Context, id int64) error
	ReclaimStaleEvents(ctx context.Context, olderThan time.Duration) (int64, error)
}

type EventPublisher struct {
	logger        *zap.Logger
	kafkaProducer producer
	kafkaTopic    string
	outbox        outboxStore
	metrics       *metrics.Metrics
	interval      time.Duration
	mu            sync.Mutex // Protects concurrent access to publishing operations
}

func NewEventPublisher(kafkaBroker, kafkaTopic string, interval time.Duration, logger *zap.Logger, outbox outboxStore, m *metrics.Metrics) (*EventPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"acks":              "all",
		"retries":           3,
		"retry.backoff.ms":  100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return newEventPublisher(p, kafkaTopic, interval, logger, outbox, m), nil
}

func newEventPublisher(p producer, kafkaTopic string, interval time.Duration, logger *zap.Logger, outbox outboxStore, m *metrics.Metrics) *EventPublisher {
	return &EventPublisher{
		logger:        logger,
		kafkaProducer: p,
		kafkaTopic:    kafkaTopic,
		outbox:        outbox,
		metrics:       m,
		interval:      interval,
	}
}

// StartPublishing drains the outbox every interval until ctx is cancelled
func (ep *EventPublisher) StartPublishing(ctx context.Context) {
	ticker := time.NewTicker(ep.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ep.publishUnsentEvents(ctx); err != nil {
				ep.logger.Error("Error publishing events to Kafka", zap.Error(err))
			}
		}
	}
}

func (ep *EventPublisher) publishUnsentEvents(ctx context.Context) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if _, err := ep.outbox.ReclaimStaleEvents(ctx, claimTimeout); err != nil {
		ep.logger.Error("Failed to reclaim stale outbox events", zap.Error(err))
	}

	outboxEvents, err := ep.outbox.GetUnsentEventsForProcessing(ctx, batchSize)
	if err != nil {
		return err
	}

	// claimed rows must be settled even when ctx is cancelled mid-batch
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()

	successCount := 0
	for i, event := range outboxEvents {
		if ctx.Err() != nil {
			ep.releaseEvents(markCtx, outboxEvents[i:])
			break
		}

		if err := ep.publishEventToKafka(event); err != nil {
			ep.logger.Error("Failed to publish event to Kafka", zap.String("order_id", event.OrderID), zap.String("event_type", event.EventType), zap.Error(err))
			ep.releaseEvents(markCtx, []model.OutboxEvent{event})
			continue
		}

		if err := ep.outbox.MarkEventAsSent(markCtx, event.ID); err != nil {
			// the message is already on the topic; consumers must tolerate a duplicate
			ep.logger.Error("Failed to mark event as sent", zap.Int64("event_id", event.ID), zap.Error(err))
		} else {
			successCount++
			ep.metrics.EventsPublished.Inc()
		}
	}

	if successCount > 0 {
		ep.logger.Info("Published events to Kafka", zap.Int("success_count", successCount), zap.Int("attempted", len(outboxEvents)))
	}

	return nil
}

// releaseEvents returns claimed events to 'unsent' for the next run
func (ep *EventPublisher) releaseEvents(ctx context.Context, outboxEvents []model.OutboxEvent) {
	for _, event := range outboxEvents {
		if err := ep.outbox.MarkEventAsFailed(ctx, event.ID); err != nil {
			ep.logger.Error("Failed to mark event as failed", zap.Int64("event_id", event.ID), zap.Error(err))
		}
	}
}

func (ep *EventPublisher) publishEventToKafka(event model.OutboxEvent) error {
	var orderEvent events.OrderEvent
	if err := json.Unmarshal(event.EventBlob, &orderEvent); err != nil {
		return fmt.Errorf("failed to decode outbox event %d: %w", event.ID, err)
	}

	deliveryChan := make(chan kafka.Event, 1)

	err := ep.kafkaProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &ep.kafkaTopic, Partition: kafka.PartitionAny},
		Key:            []byte(orderEvent.PartitionKey()),
		Value:          event.EventBlob,
		Headers:        []kafka.Header{{Key: "event_type", Value: []byte(event.EventType)}},
	}, deliveryChan)
	if err != nil {
		return err
	}

	e := <-deliveryChan
	switch ev := e.(type) {
	case *kafka.Message:
		if ev.TopicPartition.Error != nil {
			return ev.TopicPartition.Error
		}
		return nil
	default:
		return fmt.Errorf("unexpected kafka event type: %T", e)
	}
}

func (ep *EventPublisher) Close() error {
	if ep.kafkaProducer != nil {
		ep.kafkaProducer.Close()
	}
	return nil
}
