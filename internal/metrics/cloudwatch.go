// Package metrics publishes prediction and API telemetry to CloudWatch.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"pawtrail/internal/types"
)

// CloudWatchClient is the subset of *cloudwatch.Client used here.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Recorder is what the API and the refresh worker report to.
type Recorder interface {
	RecordPrediction(ctx context.Context, species types.Species, source string, degraded bool, duration time.Duration, heatmapPoints int)
	RecordQueueLag(ctx context.Context, lag time.Duration)
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

var (
	_ Recorder = (*CloudWatchMetrics)(nil)
	_ Recorder = Noop{}
)

// CloudWatchMetrics emits:
//   - PredictionCount, PredictionLatency, HeatmapPoints: Dims {Species, Source}
//   - PredictionDegraded: Dims {Species, Source}, only when degraded
//   - RefreshQueueLag: no dims
//   - APIRequestCount, APILatency: Dims {Method, Endpoint, Status}
//
// Publishing failures are logged and never returned.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics publishes under namespace, or types.MetricNamespace
// when empty.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

func dims(kv ...string) []cwtypes.Dimension {
	out := make([]cwtypes.Dimension, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, cwtypes.Dimension{Name: aws.String(kv[i]), Value: aws.String(kv[i+1])})
	}
	return out
}

func datum(name string, value float64, unit cwtypes.StandardUnit, d []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Dimensions: d,
	}
}

func (m *CloudWatchMetrics) put(ctx context.Context, what string, data ...cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.Error("failed to record metric", "metric", what, "error", err.Error())
	}
}

// RecordPrediction reports one completed engine run in a single call.
func (m *CloudWatchMetrics) RecordPrediction(ctx context.Context, species types.Species, source string, degraded bool, duration time.Duration, heatmapPoints int) {
	d := dims(types.DimSpecies, string(species), types.DimSource, source)
	data := []cwtypes.MetricDatum{
		datum(types.MetricPredictionCount, 1, cwtypes.StandardUnitCount, d),
		datum(types.MetricPredictionLatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, d),
		datum(types.MetricHeatmapPoints, float64(heatmapPoints), cwtypes.StandardUnitCount, d),
	}
	if degraded {
		data = append(data, datum(types.MetricPredictionDegraded, 1, cwtypes.StandardUnitCount, d))
	}
	m.put(ctx, types.MetricPredictionCount, data...)
}

// RecordQueueLag reports the delay between a refresh request and its
// processing.
func (m *CloudWatchMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, types.MetricRefreshQueueLag,
		datum(types.MetricRefreshQueueLag, float64(lag.Milliseconds()), cwtypes.StandardUnitMilliseconds, nil))
}

// RecordRequest satisfies the API server's metrics collector. The request
// context has ended by the time it runs, so it publishes on a short
// background context.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	d := dims(types.DimMethod, method, types.DimEndpoint, endpoint, types.DimStatus, status)
	m.put(ctx, types.MetricAPIRequestCount,
		datum(types.MetricAPIRequestCount, 1, cwtypes.StandardUnitCount, d),
		datum(types.MetricAPILatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, d),
	)
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordPrediction(context.Context, types.Species, string, bool, time.Duration, int) {}
func (Noop) RecordQueueLag(context.Context, time.Duration)                                   {}
func (Noop) RecordRequest(string, string, string, time.Duration)                             {}

// StatusClass buckets an HTTP status as "2xx", "4xx" and so on to keep
// dimension cardinality low.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}
