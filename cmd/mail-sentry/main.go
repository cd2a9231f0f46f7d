package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/adapters/ingest"
	"github.com/mailsentry/mail-sentry/internal/config"
	"github.com/mailsentry/mail-sentry/internal/core"
	"github.com/mailsentry/mail-sentry/internal/di"
	"github.com/mailsentry/mail-sentry/internal/metrics"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	pipeline *core.Pipeline,
	reader *ingest.Reader,
	resultStore core.ResultStore,
	m *metrics.Metrics,
) error {
	defer logger.Sync()

	// Cancel the batch on SIGINT/SIGTERM; in-flight records finish cleanly
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := cfg.GetString("metrics.listen_address"); addr != "" {
		go func() {
			logger.Info("Serving metrics", zap.String("address", addr))
			if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
				logger.Error("Metrics listener failed", zap.Error(err))
			}
		}()
	}

	var src io.Reader
	if path := cfg.GetString("ingest.file"); path != "" {
		file, err := os.Open(path)
		if err != nil {
			logger.Error("Failed to open batch file", zap.Error(err), zap.String("file", path))
			return err
		}
		defer file.Close()
		src = file
		logger.Info("Reading batch from file", zap.String("file", path))
	} else {
		src = os.Stdin
		logger.Info("Reading batch from stdin")
	}

	records, err := reader.ReadBatch(src)
	if err != nil {
		logger.Error("Failed to read batch", zap.Error(err))
		return err
	}

	started := time.Now()
	summary, err := pipeline.ProcessBatch(ctx, records)
	if err != nil {
		logger.Error("Batch failed", zap.Error(err))
		return err
	}
	m.ObserveBatch(summary, time.Since(started).Seconds())

	fmt.Printf("\n=== Batch Summary ===\n")
	fmt.Printf("Total records: %d\n", summary.Total)
	fmt.Printf("Scored:        %d\n", summary.Scored)
	fmt.Printf("Excluded:      %d\n", summary.Excluded)
	fmt.Printf("Whitelisted:   %d\n", summary.Whitelisted)
	fmt.Printf("Flagged:       %d\n", summary.Flagged)
	fmt.Printf("Cases:         %d\n", summary.Cased)
	fmt.Printf("Errored:       %d\n", summary.Errored)
	for id, reason := range summary.Errors {
		fmt.Printf("  %s: %s\n", id, reason)
	}

	// Stop the store if needed
	if stopper, ok := resultStore.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	logger.Info("Done")
	return nil
}
