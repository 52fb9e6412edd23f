package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jogardn/laser-orders/internal/config"
	"github.com/jogardn/laser-orders/internal/events"
)

func main() {
	replay := flag.Bool("replay", false, "republish dead-lettered events to the main topic")
	flag.Parse()

	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if !cfg.Kafka.Enabled() {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	processor, err := events.NewDLQProcessor(cfg.Kafka.Brokers, cfg.Kafka.Topic, *replay, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create DLQ processor")
	}
	defer processor.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("topic", events.DLQTopic(cfg.Kafka.Topic)).WithField("replay", *replay).Info("DLQ monitor started")
	if err := processor.Run(ctx); err != nil {
		logger.WithError(err).Error("DLQ monitor stopped with error")
	}
	logger.Info("Shutting down DLQ monitor...")
}
