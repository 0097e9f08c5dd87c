// Package main is the entrypoint for the Refresh Worker Lambda function.
//
// The worker consumes RefreshMessages from the refresh SQS queue and
// recomputes the stored prediction with live weather.
//
// Cold Start (main):
//  1. Load configuration and initialize the structured logger.
//  2. Connect to Postgres (required; the worker reads and writes results).
//  3. Load AWS SDK configuration; build S3 and CloudWatch clients.
//  4. Build the prediction engine with all enabled upstreams.
//  5. Register handler and call lambda.Start.
//
// Handler flow, for each SQS message in the batch:
//  1. Parse the RefreshMessage. Malformed bodies are acknowledged.
//  2. Load the stored result. Unknown IDs are acknowledged.
//  3. Re-run the engine on the stored profile with the cached weather
//     cleared, keeping the original ID, seed, anchor, preset and time
//     frames.
//  4. Save the new result, archive its GeoJSON to S3, emit metrics.
//
// Transient failures (database, engine internals) are reported as batch
// item failures so SQS redelivers only those messages.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"pawtrail/internal/app"
	"pawtrail/internal/archive"
	"pawtrail/internal/config"
	"pawtrail/internal/db"
	"pawtrail/internal/metrics"
	"pawtrail/internal/prediction"
	"pawtrail/internal/queue"
	"pawtrail/internal/types"
)

// Predictor is the engine contract the worker needs.
type Predictor interface {
	Predict(ctx context.Context, profile types.PetProfile, frames []types.PredictionTimeFrame, opts ...prediction.PredictOption) (*types.PredictionResult, error)
}

// ResultStore loads and saves prediction results.
type ResultStore interface {
	Get(ctx context.Context, id string) (*types.PredictionResult, error)
	Save(ctx context.Context, res *types.PredictionResult) error
}

// Archiver writes a result snapshot to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, res *types.PredictionResult) (string, error)
}

// Handler holds the dependencies for the refresh worker Lambda handler.
type Handler struct {
	engine   Predictor
	store    ResultStore
	archiver Archiver // nil disables archiving
	metrics  metrics.Recorder
	clock    types.Clock
	logger   types.Logger
}

// Handle processes an SQS batch, reporting partial failures.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process refresh message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}
	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	msg, err := queue.ParseRefreshMessage(record.Body)
	if err != nil {
		// Permanent: redelivery cannot fix the body.
		h.logger.Error("dropping malformed refresh message",
			"message_id", record.MessageId, "error", err.Error())
		return nil
	}

	logger := h.logger.With(
		"prediction_id", msg.PredictionID,
		"reason", msg.Reason,
		"retry_count", msg.RetryCount,
		"trace_id", msg.TraceID,
	)

	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if ts, err := parseMillisTimestamp(sent); err == nil {
			h.metrics.RecordQueueLag(ctx, h.clock.Now().Sub(ts))
		}
	}

	stored, err := h.store.Get(ctx, msg.PredictionID)
	if err != nil {
		if types.IsCode(err, types.ErrCodeNotFoundPrediction) {
			logger.Warn("prediction no longer exists; dropping refresh")
			return nil
		}
		return fmt.Errorf("loading prediction: %w", err)
	}

	frames := framesOf(stored)
	if len(frames) == 0 {
		logger.Warn("stored prediction has no time frames; dropping refresh")
		return nil
	}

	profile := stored.PetProfile
	profile.WeatherCondition = nil

	start := time.Now()
	opts := []prediction.PredictOption{
		prediction.WithPredictionID(stored.ID),
		prediction.WithSeed(stored.Seed),
		prediction.WithAnchor(stored.Anchor),
	}
	if stored.PriorityPreset != "" {
		opts = append(opts, prediction.WithPriorityPreset(stored.PriorityPreset))
	}
	res, err := h.engine.Predict(ctx, profile, frames, opts...)
	if err != nil {
		if isPermanent(err) {
			logger.Error("stored profile rejected by engine; dropping refresh", "error", err.Error())
			return nil
		}
		return fmt.Errorf("recomputing prediction: %w", err)
	}

	if err := h.store.Save(ctx, res); err != nil {
		return fmt.Errorf("saving prediction: %w", err)
	}

	if h.archiver != nil {
		key, err := h.archiver.Archive(ctx, res)
		if err != nil {
			// The fresh result is already saved; a missing snapshot is not
			// worth a recompute.
			logger.Warn("archive failed", "error", err.Error())
		} else {
			logger.Info("prediction archived", "key", key)
		}
	}

	h.metrics.RecordPrediction(ctx, res.PetProfile.Species, "refresh", res.Degraded,
		time.Since(start), len(res.HeatmapData))
	logger.Info("prediction refreshed",
		"degraded", res.Degraded,
		"confidence", res.ConfidenceScore,
	)
	return nil
}

// framesOf recovers the requested horizons from the stored zones.
func framesOf(res *types.PredictionResult) []types.PredictionTimeFrame {
	frames := make([]types.PredictionTimeFrame, 0, len(res.SearchZones))
	for _, z := range res.SearchZones {
		frames = append(frames, z.TimeFrame)
	}
	return frames
}

// isPermanent reports validation failures, which redelivery cannot fix.
func isPermanent(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.HTTPStatus() == 400
}

// parseMillisTimestamp parses the SQS SentTimestamp attribute.
func parseMillisTimestamp(ms string) (time.Time, error) {
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

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
	logger.Info("refresh worker initializing (cold start)", "version", cfg.Build.Version)

	ctx := context.Background()
	url := cfg.Database.URL.Unmask()
	if url == "" {
		return errors.New("DATABASE_URL is required for the refresh worker")
	}
	pool, err := db.Connect(ctx, url, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	awsCfg, err := app.LoadAWS(ctx, cfg.AWS)
	if err != nil {
		return err
	}

	engine, err := app.NewEngine(cfg, logger, pool)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	typedLogger := types.NewSlogLogger(logger)
	handler := &Handler{
		engine:  engine,
		store:   db.NewPredictionRepository(pool),
		metrics: metrics.Noop{},
		clock:   types.RealClock{},
		logger:  typedLogger,
	}
	if cfg.AWS.ArchiveBucket != "" {
		handler.archiver = archive.NewS3Archiver(s3.NewFromConfig(awsCfg), cfg.AWS.ArchiveBucket, cfg.AWS.ArchivePrefix)
	}
	if cfg.Observability.EnableMetrics {
		handler.metrics = metrics.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace, typedLogger)
	}

	logger.Info("refresh worker initialized",
		"archive_bucket", cfg.AWS.ArchiveBucket,
		"metrics", cfg.Observability.EnableMetrics,
	)
	lambda.Start(handler.Handle)
	return nil
}
