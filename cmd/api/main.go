// Package main is the entry point for the PawTrail API.
//
// It loads configuration, connects optional persistence and AWS clients,
// builds the prediction engine and mounts the prediction routes on the core
// chassis.
//
// With APP_ENV=local (or outside Lambda) it listens on the configured port.
// Inside Lambda the chi router is bridged to API Gateway events through the
// httpadapter from aws-lambda-go-api-proxy.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/jackc/pgx/v5/pgxpool"

	"pawtrail/internal/api/handlers"
	"pawtrail/internal/app"
	"pawtrail/internal/config"
	"pawtrail/internal/core"
	"pawtrail/internal/db"
	"pawtrail/internal/metrics"
	"pawtrail/internal/queue"
	"pawtrail/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(app.SecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel, os.Stdout)
	logger.Info("pawtrail API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()
	deps := dependencies{}

	if url := cfg.Database.URL.Unmask(); url != "" {
		pool, err := db.Connect(ctx, url, cfg.Database.MaxConns)
		if err != nil {
			return fmt.Errorf("connecting database: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				pool.Close()
				return fmt.Errorf("migrating database: %w", err)
			}
		}
		deps.pool = pool
	}

	needsAWS := cfg.Observability.EnableMetrics || cfg.AWS.RefreshQueueURL != ""
	if needsAWS {
		awsCfg, err := app.LoadAWS(ctx, cfg.AWS)
		if err != nil {
			return err
		}
		deps.aws = &awsCfg
	}

	srv, err := buildServer(cfg, logger, deps)
	if err != nil {
		return err
	}

	if isLambdaEnvironment() {
		logger.Info("running in Lambda mode")
		lambda.Start(httpadapter.New(srv.Handler()).ProxyWithContext)
		return nil
	}
	return runHTTPServer(srv, cfg, logger)
}

// dependencies are the process-level resources buildServer wires. Nil
// fields disable the features that need them.
type dependencies struct {
	pool *pgxpool.Pool
	aws  *aws.Config
}

// buildServer assembles the chassis: engine, handlers, metrics, rate limit
// and health probes.
func buildServer(cfg *config.Config, logger *slog.Logger, deps dependencies) (*core.Server, error) {
	var dbtx db.DBTX
	if deps.pool != nil {
		dbtx = deps.pool
	}
	engine, err := app.NewEngine(cfg, logger, dbtx)
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	var recorder metrics.Recorder = metrics.Noop{}
	if cfg.Observability.EnableMetrics && deps.aws != nil {
		recorder = metrics.NewCloudWatchMetrics(cloudwatch.NewFromConfig(*deps.aws),
			cfg.Observability.MetricNamespace, types.NewSlogLogger(logger))
		srv.Metrics = recorder
	}
	if cfg.Server.RateLimitPerMinute > 0 {
		srv.RateLimitStore = core.NewMemoryRateLimitStore()
	}

	opts := []handlers.PredictionHandlerOption{
		handlers.WithMetrics(recorder),
		handlers.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	}
	if deps.pool != nil {
		pool := deps.pool
		opts = append(opts, handlers.WithStore(db.NewPredictionRepository(pool)))
		srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{ProbeName: "database", Fn: pool.Ping})
		srv.Closers = append(srv.Closers, pool.Close)

		if url := cfg.AWS.RefreshQueueURL; url != "" && deps.aws != nil {
			sqsClient := sqs.NewFromConfig(*deps.aws)
			opts = append(opts, handlers.WithRefreshRequester(
				queue.NewRefreshPublisher(sqsClient, cfg.AWS, types.RealClock{}, logger)))
			srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{ProbeName: "queue", Fn: func(ctx context.Context) error {
				_, err := sqsClient.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
					QueueUrl:       aws.String(url),
					AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameApproximateNumberOfMessages},
				})
				return err
			}})
		}
	}

	h := handlers.NewPredictionHandler(engine, srv.Validator, logger, opts...)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, h.RegisterRoutes)
	srv.MountRoutes()
	return srv, nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer serves until SIGINT/SIGTERM, then drains for up to 10s.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
