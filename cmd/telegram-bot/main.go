package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jogardn/laser-orders/internal/bot"
	"github.com/jogardn/laser-orders/internal/config"
	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/internal/pricing"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if cfg.Telegram.BotToken == "" {
		logger.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	calculator, err := pricing.LoadCalculator(cfg.Pricing.RulesFile, cfg.Pricing.EngravingMode)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load pricing rules")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Telegram")
	}

	client := orders.NewClient(cfg.Bot.OrderServiceURL, cfg.Bot.RequestTimeout, logger)
	conversation := bot.NewConversation(client, calculator, bot.NewCacheStore(cfg.Bot.SessionTTL), cfg.Bot.WebsiteURL, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"bot":           api.Self.UserName,
		"order_service": cfg.Bot.OrderServiceURL,
	}).Info("Telegram bot started")

	if err := bot.NewTelegramRunner(api, conversation, logger).Run(ctx); err != nil {
		logger.WithError(err).Error("Telegram bot stopped with error")
	}
}
