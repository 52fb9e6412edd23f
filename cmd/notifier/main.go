package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jogardn/laser-orders/internal/circuitbreaker"
	"github.com/jogardn/laser-orders/internal/config"
	"github.com/jogardn/laser-orders/internal/events"
	"github.com/jogardn/laser-orders/internal/notify"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if !cfg.Kafka.Enabled() {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	breakers := circuitbreaker.NewManager(logger)
	dispatcher := notify.NewDispatcher(logger, 10*time.Second)

	if cfg.Telegram.BotToken != "" && cfg.Telegram.OperatorChatID != 0 {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Telegram client")
		}
		dispatcher.Add(notify.NewTelegramNotifier(bot, cfg.Telegram.OperatorChatID, breakers))
	}
	if cfg.SMTP.Host != "" {
		dispatcher.Add(notify.NewEmailNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     strconv.Itoa(cfg.SMTP.Port),
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}))
	}
	if len(dispatcher.Channels()) == 0 {
		logger.Fatal("No notification channel configured; set TELEGRAM_BOT_TOKEN or SMTP_HOST")
	}

	consumer, err := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic, events.NewNotificationHandler(dispatcher), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer")
	}
	defer consumer.Close()

	go reportMetrics(ctx, consumer, logger)

	logger.WithFields(logrus.Fields{
		"topic":    cfg.Kafka.Topic,
		"group":    cfg.Kafka.GroupID,
		"channels": dispatcher.Channels(),
	}).Info("Notifier started")

	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Error("Notifier stopped with error")
	}
	logger.Info("Notifier stopped")
}

func reportMetrics(ctx context.Context, consumer *events.Consumer, logger *logrus.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := consumer.Metrics()
			logger.WithFields(logrus.Fields{
				"success": m.SuccessCount,
				"failure": m.FailureCount,
				"retries": m.RetryCount,
				"dlq":     m.DLQCount,
			}).Info("Notifier metrics")
		}
	}
}
