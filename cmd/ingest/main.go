// Command ingest runs the historical data load once and exits. It reads the
// same configuration as the server, so file paths and the database URL come
// from config.yml or the environment.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"credit-engine/internal/batch"
	"credit-engine/internal/config"
	"credit-engine/internal/infrastructure/database/postgres"
	"credit-engine/internal/infrastructure/logging"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Hour)
	defer cancel()

	dbPool, err := postgres.NewConnectionPool(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	loanRepo := postgres.NewLoanRepository(dbPool, logger)
	customerRepo := postgres.NewCustomerRepository(dbPool, logger)

	job := batch.NewIngestJob(loanRepo, customerRepo, cfg.Ingest, logger)

	report, err := job.Run(ctx)
	if err != nil {
		logger.Error("Data ingestion failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Data ingestion complete.",
		slog.Int("customers_upserted", report.CustomersUpserted),
		slog.Int("loans_upserted", report.LoansUpserted),
		slog.Int("rows_skipped", len(report.Skipped)))
	for _, s := range report.Skipped {
		logger.Warn("Skipped row", slog.String("file", s.File), slog.Int("line", s.Line), slog.Any("error", s.Err))
	}
}
