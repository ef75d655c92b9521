package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/attaboy/tower/internal/infra"
	"github.com/segmentio/kafka-go"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.KafkaEnabled {
		return fmt.Errorf("KAFKA_ENABLED is false; nothing to consume")
	}

	topics := infra.EventTopics(cfg.KafkaTopicPrefix)
	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, topics, cfg.KafkaGroupID, cfg.KafkaEnabled, logger)
	defer consumer.Close()

	logger.Info("outbox-consumer starting", "group_id", cfg.KafkaGroupID, "topics", len(topics))
	if err := consumer.Consume(ctx, func(_ context.Context, msg kafka.Message) error {
		return logEvent(logger, msg)
	}); err != nil {
		return err
	}
	logger.Info("outbox-consumer shutting down")
	return nil
}

// logEvent writes one envelope to the log. Undecodable messages are logged and
// skipped so a single bad payload never wedges the group.
func logEvent(logger *slog.Logger, msg kafka.Message) error {
	var ev infra.OutboxMessage
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		logger.Warn("skipping undecodable event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	logger.Info("outbox event",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"event_id", ev.EventID,
		"aggregate_type", ev.AggregateType,
		"event_type", ev.EventType,
		"aggregate_id", ev.AggregateID,
	)
	return nil
}
