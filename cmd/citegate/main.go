// Package main is the entry point for the citegate binary.
// It provides a CLI for starting the answer gateway server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/citegate/citegate/internal/governance"
	"github.com/citegate/citegate/pkg/audit"
	"github.com/citegate/citegate/pkg/config"
	"github.com/citegate/citegate/pkg/enrich"
	"github.com/citegate/citegate/pkg/gateway"
	"github.com/citegate/citegate/pkg/logging"
	"github.com/citegate/citegate/pkg/storage"
	"github.com/citegate/citegate/pkg/telemetry"
	"github.com/citegate/citegate/pkg/upstream"
)

const serviceName = "citegate"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for citegate
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "citegate",
		Short: "Answer gateway with citation enrichment",
		Long: `A gateway in front of a managed conversational answer engine.

It checks client API keys, maintains upstream conversation sessions, enriches
answer citations with object storage metadata, and writes asynchronous audit
records of every answered query.

Example:
  citegate serve --config citegate.yaml`,
	}

	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

// newServeCmd creates the serve subcommand
func newServeCmd() *cobra.Command {
	var configPath string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (YAML)")
	return serveCmd
}

// runServe is the main entry point for the serve command
func runServe(configPath string) error {
	// Optional .env for local development; ignore when absent
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{Level: cfg.Logging.Level})
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing, continuing without it", "error", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	server, auditLogger := buildServer(cfg, logger)

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
	}()

	logger.Info("Starting citegate",
		"listen_addr", cfg.Server.ListenAddr,
		"upstream_project", cfg.Upstream.Project,
		"audit_enabled", !cfg.Audit.Disabled,
	)

	err = server.Start(ctx)

	// Flush pending audit records before the process exits
	if auditLogger != nil {
		if closeErr := auditLogger.Close(cfg.Audit.FlushTimeout.Std()); closeErr != nil {
			logger.Warn("Audit flush incomplete", "error", closeErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if telErr := shutdownTelemetry(shutdownCtx); telErr != nil {
		logger.Warn("Telemetry shutdown failed", "error", telErr)
	}

	return err
}

// buildServer wires the gateway from configuration
func buildServer(cfg *config.Config, logger *slog.Logger) (*gateway.Server, *audit.Logger) {
	metrics := gateway.NewMetrics()
	tokens := upstream.StaticTokenSource(cfg.Upstream.Token)

	answerClient := upstream.NewClient(upstream.Config{
		Endpoint:   cfg.Upstream.Endpoint,
		Project:    cfg.Upstream.Project,
		Location:   cfg.Upstream.Location,
		Collection: cfg.Upstream.Collection,
		Tokens:     tokens,
		Retry: governance.RetryConfig{
			MaxAttempts:       cfg.Upstream.MaxAttempts,
			InitialBackoff:    cfg.Upstream.InitialBackoff.Std(),
			MaxBackoff:        cfg.Upstream.MaxBackoff.Std(),
			BackoffMultiplier: cfg.Upstream.BackoffMultiplier,
			Jitter:            true,
			Budget:            cfg.Upstream.TotalBudget.Std(),
		},
		AttemptTimeout: cfg.Upstream.AttemptTimeout.Std(),
		Logger:         logger,
	})

	gcs := storage.NewGCSClient(storage.GCSConfig{
		Endpoint:       cfg.Storage.Endpoint,
		UploadEndpoint: cfg.Storage.UploadEndpoint,
		Tokens:         tokens,
	})

	enricher := enrich.New(enrich.Config{
		Resolver:      gcs,
		Semaphore:     governance.NewSemaphore(cfg.Enrichment.Concurrency),
		LookupTimeout: cfg.Enrichment.LookupTimeout.Std(),
		MaxRetries:    cfg.Enrichment.MaxRetries,
		Logger:        logger,
	})

	var auditLogger *audit.Logger
	var recorder gateway.AuditRecorder
	if !cfg.Audit.Disabled {
		auditLogger = audit.New(audit.Config{
			Sink:       gcs,
			Bucket:     cfg.Audit.Bucket,
			Prefix:     cfg.Audit.Prefix,
			QueueSize:  cfg.Audit.QueueSize,
			MaxRetries: cfg.Audit.MaxRetries,
			Observer:   metrics,
			Logger:     logger,
		})
		recorder = auditLogger
	}

	pipeline := gateway.NewPipeline(gateway.PipelineConfig{
		Sessions:        upstream.NewSessionManager(answerClient, logger),
		Answers:         answerClient,
		Enricher:        enricher,
		Audit:           recorder,
		Metrics:         metrics,
		Logger:          logger,
		DefaultLanguage: cfg.Upstream.DefaultLanguage,
	})

	server := gateway.NewServer(gateway.ServerConfig{
		ListenAddr:     cfg.Server.ListenAddr,
		APIKey:         cfg.Auth.APIKey,
		ReadTimeout:    cfg.Server.ReadTimeout.Std(),
		WriteTimeout:   cfg.Server.WriteTimeout.Std(),
		RequestTimeout: cfg.Server.RequestTimeout.Std(),
		Pipeline:       pipeline,
		Metrics:        metrics,
		Logger:         logger,
	})

	return server, auditLogger
}
