package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jogardn/laser-orders/internal/config"
	"github.com/jogardn/laser-orders/internal/importer"
	"github.com/jogardn/laser-orders/internal/storage/postgres"
)

func main() {
	file := flag.String("file", "-", "legacy export (JSON array or JSON lines); - reads stdin")
	dryRun := flag.Bool("dry-run", false, "map and check orders without writing")
	batchSize := flag.Int("batch-size", 50, "orders per batch")
	concurrency := flag.Int("concurrency", 5, "batches processed in parallel")
	flag.Parse()

	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var in io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open export")
		}
		defer f.Close()
		in = f
	}

	db, err := postgres.Open(ctx, cfg.Database.DSN(), cfg.Database.ConnAttempts, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		logger.WithError(err).Fatal("Failed to create tables")
	}

	im := importer.NewImporter(postgres.NewOrderRepository(db), logger)
	im.SetConfig(importer.Config{BatchSize: *batchSize, Concurrency: *concurrency, DryRun: *dryRun})

	result, err := im.Import(ctx, in)
	if err != nil {
		logger.WithError(err).Error("Import aborted")
	}
	if result != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			logger.WithError(err).Error("Failed to write import report")
		}
		if result.Failed > 0 {
			os.Exit(1)
		}
	}
	if err != nil {
		os.Exit(1)
	}
}
