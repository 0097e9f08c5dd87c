package types

import "time"

// RefreshMessage is the SQS payload asking the refresh worker to recompute a
// stored prediction with current weather.
type RefreshMessage struct {
	PredictionID string    `json:"prediction_id"`
	Reason       string    `json:"reason"`
	RequestedAt  time.Time `json:"requested_at"`
	RetryCount   int       `json:"retry_count"`
	TraceID      string    `json:"trace_id"`
}
