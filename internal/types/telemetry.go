package types

// Telemetry metric names for CloudWatch.
const (
	// Metric Names
	MetricPredictionLatency  = "PredictionLatency"
	MetricPredictionCount    = "PredictionCount"
	MetricPredictionDegraded = "PredictionDegraded"
	MetricHeatmapPoints      = "HeatmapPoints"
	MetricAPILatency         = "APILatency"
	MetricAPIRequestCount    = "APIRequestCount"
	MetricRefreshQueueLag    = "RefreshQueueLag"

	// Dimension Keys
	DimSpecies  = "Species"
	DimEndpoint = "Endpoint"
	DimMethod   = "Method"
	DimStatus   = "Status"
	DimSource   = "Source"

	// Metric Namespace
	MetricNamespace = "PawTrail"
)
