package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/jogardn/laser-orders/internal/auth"
	"github.com/jogardn/laser-orders/internal/config"
)

func main() {
	subject := flag.String("sub", "operator", "token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to ADMIN_TOKEN_TTL)")
	flag.Parse()

	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}
	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, expires, err := auth.NewTokenService(cfg.Auth.JWTSecret, lifetime).IssueAdminToken(*subject)
	if err != nil {
		logger.WithError(err).Fatal("Failed to issue token")
	}
	logger.WithField("subject", *subject).WithField("expires_at", expires.Format(time.RFC3339)).Info("Admin token issued")
	fmt.Println(token)
}
