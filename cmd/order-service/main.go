package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jogardn/laser-orders/internal/api"
	"github.com/jogardn/laser-orders/internal/auth"
	"github.com/jogardn/laser-orders/internal/circuitbreaker"
	"github.com/jogardn/laser-orders/internal/config"
	"github.com/jogardn/laser-orders/internal/events"
	"github.com/jogardn/laser-orders/internal/notify"
	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/internal/payment"
	"github.com/jogardn/laser-orders/internal/pricing"
	"github.com/jogardn/laser-orders/internal/shipping"
	"github.com/jogardn/laser-orders/internal/storage/memory"
	"github.com/jogardn/laser-orders/internal/storage/postgres"
	"github.com/jogardn/laser-orders/internal/websocket"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	calculator, err := pricing.LoadCalculator(cfg.Pricing.RulesFile, cfg.Pricing.EngravingMode)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load pricing rules")
	}

	var (
		repo     orders.Repository
		products orders.ProductRepository
		health   = func(context.Context) error { return nil }
	)
	switch cfg.Storage {
	case config.StorageMemory:
		repo = memory.NewOrderRepository()
		products = memory.NewProductRepository()
		logger.Warn("Using in-memory storage; orders are lost on restart")
	default:
		db, err := postgres.Open(ctx, cfg.Database.DSN(), cfg.Database.ConnAttempts, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.WithError(err).Fatal("Failed to create tables")
		}
		repo = postgres.NewOrderRepository(db)
		products = postgres.NewProductRepository(db)
		health = pingDB(db)
	}

	breakers := circuitbreaker.NewManager(logger)

	hub := websocket.NewHub(logger, cfg.HTTP.AllowedOrigins...)
	go hub.Run(ctx)

	dispatcher := notify.NewDispatcher(logger, 10*time.Second, notify.NewHubNotifier(hub))
	if cfg.Kafka.Enabled() {
		producer, err := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		dispatcher.Add(events.NewPublisher(producer))
		logger.WithField("topic", cfg.Kafka.Topic).Info("Operator and customer notifications go through Kafka")
	} else {
		addDirectChannels(dispatcher, cfg, breakers, logger)
	}

	service := orders.NewService(repo, calculator, logger)
	service.SetCatalog(products)
	service.SetNotifier(dispatcher)

	var provider shipping.Provider
	if cfg.NovaPoshta.APIKey != "" {
		provider = shipping.NewNovaPoshta(shipping.NovaPoshtaConfig{
			APIKey:           cfg.NovaPoshta.APIKey,
			BaseURL:          cfg.NovaPoshta.URL,
			SenderCityRef:    cfg.NovaPoshta.SenderCityRef,
			SenderRef:        cfg.NovaPoshta.SenderRef,
			SenderAddressRef: cfg.NovaPoshta.SenderAddressRef,
			ContactSenderRef: cfg.NovaPoshta.ContactSenderRef,
			SenderPhone:      cfg.NovaPoshta.SenderPhone,
			Timeout:          cfg.NovaPoshta.Timeout,
		}, breakers, logger)
		service.SetShippingProvider(provider)
	} else {
		logger.Warn("NOVA_POSHTA_API_KEY not set, shipping endpoints disabled")
	}

	var gateways []payment.Gateway
	if cfg.Payment.FondyMerchantID != "" {
		gateways = append(gateways, payment.NewFondy(cfg.Payment.FondyMerchantID, cfg.Payment.PublicURL))
	}
	if cfg.Payment.LiqPayPublicKey != "" {
		gateways = append(gateways, payment.NewLiqPay(cfg.Payment.LiqPayPublicKey, cfg.Payment.LiqPayPrivateKey, cfg.Payment.PublicURL))
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = "memory-mode-development-secret"
		logger.Warn("JWT_SECRET not set, using a development secret")
	}
	tokens := auth.NewTokenService(secret, cfg.Auth.TokenTTL)

	handler := api.NewRouter(api.Deps{
		Orders:         service,
		Calculator:     calculator,
		Products:       products,
		Gateways:       payment.NewRegistry(gateways...),
		Shipping:       provider,
		Breakers:       breakers,
		Auth:           tokens,
		LiveFeed:       http.HandlerFunc(hub.HandleWebSocket),
		HealthCheck:    health,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":           cfg.HTTP.Port,
			"storage":        cfg.Storage,
			"engraving_mode": calculator.EngravingMode(),
			"channels":       dispatcher.Channels(),
		}).Info("Starting order service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server gracefully stopped")
}

// addDirectChannels wires the operator chat and customer email straight into
// the dispatcher when no Kafka notifier is running.
func addDirectChannels(dispatcher *notify.Dispatcher, cfg config.Config, breakers *circuitbreaker.Manager, logger *logrus.Logger) {
	if cfg.Telegram.BotToken != "" && cfg.Telegram.OperatorChatID != 0 {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.WithError(err).Warn("Telegram notifications disabled")
		} else {
			dispatcher.Add(notify.NewTelegramNotifier(bot, cfg.Telegram.OperatorChatID, breakers))
		}
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
}

func pingDB(db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}
}
