package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/adapters/rulestore"
	"github.com/mailsentry/mail-sentry/internal/adapters/store"
	"github.com/mailsentry/mail-sentry/internal/config"
	"github.com/mailsentry/mail-sentry/internal/core"
	"github.com/mailsentry/mail-sentry/internal/factory"
	"github.com/mailsentry/mail-sentry/internal/logging"
)

var (
	// Record flags
	sender      = flag.String("sender", "", "Sender address")
	recipients  = flag.String("recipients", "", "Comma-separated recipient addresses")
	subject     = flag.String("subject", "", "Subject line")
	body        = flag.String("body", "", "Body text")
	attachments = flag.String("attachments", "", "Comma-separated attachment names")
	timestamp   = flag.String("timestamp", "", "Send time (RFC 3339, defaults to now)")

	// Configuration flags
	rulesPath      = flag.String("rules", "./configs/rules.yaml", "Path to the detection configuration snapshot")
	anomalyModel   = flag.String("anomaly-model", "", "Path to the anomaly model snapshot")
	classifierModl = flag.String("classifier-model", "", "Path to the threat model snapshot")

	verbose = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog = flag.Bool("json-log", false, "Output logs in JSON format")
)

func main() {
	flag.Parse()

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := createConfigFromFlags()

	// Load the detection configuration snapshot
	loader := rulestore.NewFileStore(*rulesPath, logger)
	snapshot, err := loader.Load(context.Background())
	if err != nil {
		logger.Fatal("Failed to load configuration snapshot", zap.Error(err))
	}

	// Assemble the pipeline against an in-memory store
	scorers := factory.NewScorerFactory(cfg, logger).CreateScorers()
	pipeline, err := factory.NewPipelineFactory(cfg, logger).CreatePipeline(
		snapshot, scorers, store.NewMemoryStore(logger))
	if err != nil {
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}

	record := recordFromFlags(logger)

	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", record.Sender)
	fmt.Printf("To: %s\n", strings.Join(record.Recipients, ", "))
	fmt.Printf("Subject: %s\n", record.Subject)
	fmt.Printf("Attachments: %d\n", len(record.Attachments))

	startTime := time.Now()
	result := pipeline.ScoreRecord(context.Background(), record)

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Final score: %.2f / 10\n", result.FinalScore)
	fmt.Printf("Decision: %s\n", result.Decision)
	fmt.Printf("Status: %s\n", result.Status)
	if len(result.AuditFlags) > 0 {
		fmt.Printf("Audit flags: %s\n", strings.Join(result.AuditFlags, ", "))
	}
	if len(result.Signals) > 0 {
		fmt.Printf("Contributing signals:\n")
		for _, s := range result.Signals {
			if s.Detail != "" {
				fmt.Printf("  [%s] %s (%.2f) - %s\n", s.Source, s.Name, s.Score, s.Detail)
			} else {
				fmt.Printf("  [%s] %s (%.2f)\n", s.Source, s.Name, s.Score)
			}
		}
	}
	fmt.Printf("Processing time: %v\n", time.Since(startTime))
}

// createConfigFromFlags builds a configuration from the command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()
	v.Set("rules.path", *rulesPath)
	v.Set("models.anomaly_path", *anomalyModel)
	v.Set("models.classifier_path", *classifierModl)
	return config.NewFromViper(v)
}

func recordFromFlags(logger *zap.Logger) *core.EmailRecord {
	ts := time.Now().UTC()
	if *timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, *timestamp)
		if err != nil {
			logger.Fatal("Invalid timestamp", zap.Error(err))
		}
		ts = parsed
	}

	record := &core.EmailRecord{
		ID:        "cli",
		Timestamp: ts,
		Sender:    *sender,
		Subject:   *subject,
		Body:      *body,
		Status:    core.StatusUnscored,
	}
	for _, r := range strings.Split(*recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			record.Recipients = append(record.Recipients, r)
		}
	}
	for _, a := range strings.Split(*attachments, ",") {
		if a = strings.TrimSpace(a); a != "" {
			record.Attachments = append(record.Attachments, core.Attachment{Name: a})
		}
	}
	return record
}
