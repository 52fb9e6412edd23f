// Package config reads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type HTTPConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	URL          string
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	ConnAttempts int
}

// DSN prefers DATABASE_URL and otherwise assembles a key/value DSN.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type TelegramConfig struct {
	BotToken       string
	OperatorChatID int64
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type NovaPoshtaConfig struct {
	APIKey           string
	URL              string
	SenderCityRef    string
	SenderRef        string
	SenderAddressRef string
	ContactSenderRef string
	SenderPhone      string
	Timeout          time.Duration
}

type PaymentConfig struct {
	PublicURL        string
	FondyMerchantID  string
	LiqPayPublicKey  string
	LiqPayPrivateKey string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type PricingConfig struct {
	RulesFile     string
	EngravingMode string
}

type BotConfig struct {
	OrderServiceURL string
	SessionTTL      time.Duration
	RequestTimeout  time.Duration
	WebsiteURL      string
}

type Config struct {
	HTTP       HTTPConfig
	Storage    string
	Database   DatabaseConfig
	Kafka      KafkaConfig
	Telegram   TelegramConfig
	SMTP       SMTPConfig
	NovaPoshta NovaPoshtaConfig
	Payment    PaymentConfig
	Auth       AuthConfig
	Pricing    PricingConfig
	Bot        BotConfig
	LogLevel   string
}

// Load reads every setting; malformed numbers and durations fall back to
// their defaults.
func Load() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Storage: strings.ToLower(getEnv("STORAGE", StoragePostgres)),
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", ""),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "laser"),
			Password:     getEnv("DB_PASSWORD", "laser"),
			Name:         getEnv("DB_NAME", "laser_orders"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			ConnAttempts: getEnvInt("DB_CONNECT_ATTEMPTS", 30),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:   getEnv("ORDER_EVENTS_TOPIC", "order-events"),
			GroupID: getEnv("KAFKA_GROUP_ID", "order-notifier-group"),
		},
		Telegram: TelegramConfig{
			BotToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
			OperatorChatID: getEnvInt64("TELEGRAM_OPERATOR_CHAT_ID", 0),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		NovaPoshta: NovaPoshtaConfig{
			APIKey:           getEnv("NOVA_POSHTA_API_KEY", ""),
			URL:              getEnv("NOVA_POSHTA_URL", ""),
			SenderCityRef:    getEnv("NOVA_POSHTA_SENDER_CITY", ""),
			SenderRef:        getEnv("NOVA_POSHTA_SENDER_REF", ""),
			SenderAddressRef: getEnv("NOVA_POSHTA_SENDER_ADDRESS", ""),
			ContactSenderRef: getEnv("NOVA_POSHTA_CONTACT_REF", ""),
			SenderPhone:      getEnv("NOVA_POSHTA_SENDER_PHONE", ""),
			Timeout:          getEnvDuration("NOVA_POSHTA_TIMEOUT", 10*time.Second),
		},
		Payment: PaymentConfig{
			PublicURL:        getEnv("PUBLIC_URL", "http://localhost:8080"),
			FondyMerchantID:  getEnv("FONDY_MERCHANT_ID", ""),
			LiqPayPublicKey:  getEnv("LIQPAY_PUBLIC_KEY", ""),
			LiqPayPrivateKey: getEnv("LIQPAY_PRIVATE_KEY", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvDuration("ADMIN_TOKEN_TTL", 12*time.Hour),
		},
		Pricing: PricingConfig{
			RulesFile:     getEnv("PRICING_RULES_FILE", ""),
			EngravingMode: getEnv("PRICING_ENGRAVING_MODE", ""),
		},
		Bot: BotConfig{
			OrderServiceURL: getEnv("ORDER_SERVICE_URL", "http://localhost:8080"),
			SessionTTL:      getEnvDuration("BOT_SESSION_TTL", 30*time.Minute),
			RequestTimeout:  getEnvDuration("BOT_REQUEST_TIMEOUT", 10*time.Second),
			WebsiteURL:      getEnv("WEBSITE_URL", "https://laser.example.com"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func (c Config) Validate() error {
	var errs []error
	switch c.Storage {
	case StorageMemory, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE %q", c.Storage))
	}
	if c.HTTP.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.Storage != StorageMemory && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("ADMIN_TOKEN_TTL must be positive"))
	}
	if c.Bot.SessionTTL <= 0 {
		errs = append(errs, errors.New("BOT_SESSION_TTL must be positive"))
	}
	if c.Database.ConnAttempts < 1 {
		errs = append(errs, errors.New("DB_CONNECT_ATTEMPTS must be at least 1"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	return errors.Join(errs...)
}

// NewLogger builds the JSON logger shared by every component of a binary.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
