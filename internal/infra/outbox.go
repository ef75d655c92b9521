package infra

//go:generate go tool mockgen -destination=./mocks/outbox_mock.go -package=mocks . Publisher,OutboxSource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/guard"
)

const kafkaCircuit = "kafka"

// Publisher delivers one message to the event bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboxSource reads and acknowledges pending outbox rows.
type OutboxSource interface {
	FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxRow, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

// OutboxMessage is the envelope written to the bus.
type OutboxMessage struct {
	EventID       string          `json:"event_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Headers       json.RawMessage `json:"headers,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Topic maps an event type (<namespace>.<aggregate>.<event>) onto the bus
// namespace, giving <prefix>.<aggregate>.<event>.
func Topic(prefix, eventType string) string {
	if _, rest, ok := strings.Cut(eventType, "."); ok {
		return prefix + "." + rest
	}
	return prefix + "." + eventType
}

// OutboxPoller polls the event_outbox table and publishes events to Kafka.
type OutboxPoller struct {
	source    OutboxSource
	publisher Publisher
	breaker   *guard.CircuitBreaker
	prefix    string
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxPoller creates a new outbox poller. breaker may be nil.
func NewOutboxPoller(source OutboxSource, publisher Publisher, breaker *guard.CircuitBreaker, prefix string, logger *slog.Logger) *OutboxPoller {
	return &OutboxPoller{
		source:    source,
		publisher: publisher,
		breaker:   breaker,
		prefix:    prefix,
		logger:    logger,
		interval:  500 * time.Millisecond,
		batchSize: 100,
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) error {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return nil
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil {
				p.logger.Error("outbox poll error", "error", err)
			}
		}
	}
}

// PollOnce publishes one batch in id order and returns how many rows were marked.
// Publishing stops at the first failure so later events never overtake it.
func (p *OutboxPoller) PollOnce(ctx context.Context) (int, error) {
	if p.breaker != nil {
		if res := p.breaker.Check(ctx, kafkaCircuit); !res.Allowed {
			p.logger.Debug("outbox publish skipped", "reason", res.Reason)
			return 0, nil
		}
	}

	rows, err := p.source.FetchUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch outbox: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(rows))
	var pubErr error
	for _, e := range rows {
		msg, err := json.Marshal(OutboxMessage{
			EventID:       e.EventID.String(),
			AggregateType: e.AggregateType,
			AggregateID:   e.AggregateID,
			EventType:     e.EventType,
			Headers:       e.Headers,
			Payload:       e.Payload,
			OccurredAt:    e.OccurredAt,
		})
		if err != nil {
			pubErr = fmt.Errorf("encode event %s: %w", e.EventID, err)
			break
		}
		key := e.PartitionKey
		if key == "" {
			key = e.AggregateID
		}
		if err := p.publisher.Publish(ctx, Topic(p.prefix, e.EventType), []byte(key), msg); err != nil {
			p.logger.Error("kafka publish failed", "event_id", e.EventID, "error", err)
			if p.breaker != nil {
				p.breaker.RecordFailure(kafkaCircuit)
			}
			pubErr = fmt.Errorf("publish event %s: %w", e.EventID, err)
			break
		}
		if p.breaker != nil {
			p.breaker.RecordSuccess(kafkaCircuit)
		}
		published = append(published, e.ID)
	}

	if len(published) > 0 {
		if err := p.source.MarkPublished(ctx, published); err != nil {
			return 0, fmt.Errorf("mark published: %w", err)
		}
	}
	p.logger.Debug("outbox poll complete", "published", len(published), "fetched", len(rows))
	return len(published), pubErr
}
