package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawtrail/internal/config"
	"pawtrail/internal/types"
)

type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/pawtrail-refresh"

var testNow = time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)

func newTestPublisher(m *mockSQSSender, url string) *RefreshPublisher {
	return NewRefreshPublisher(m, config.AWSConfig{RefreshQueueURL: url},
		types.FixedClock{T: testNow}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRequestRefresh_SendsMessage(t *testing.T) {
	m := &mockSQSSender{}
	p := newTestPublisher(m, testQueueURL)

	traceID, err := p.RequestRefresh(context.Background(), "pred-1", "weather_changed")
	require.NoError(t, err)
	assert.NotEmpty(t, traceID)
	require.Len(t, m.calls, 1)

	call := m.calls[0]
	assert.Equal(t, testQueueURL, *call.QueueUrl)
	assert.Equal(t, "weather_changed", *call.MessageAttributes["reason"].StringValue)
	assert.Zero(t, call.DelaySeconds)

	var msg types.RefreshMessage
	require.NoError(t, json.Unmarshal([]byte(*call.MessageBody), &msg))
	assert.Equal(t, "pred-1", msg.PredictionID)
	assert.Equal(t, traceID, msg.TraceID)
	assert.True(t, testNow.Equal(msg.RequestedAt))
}

func TestSend_RetryDelay(t *testing.T) {
	m := &mockSQSSender{}
	p := newTestPublisher(m, testQueueURL)

	require.NoError(t, p.Send(context.Background(), types.RefreshMessage{PredictionID: "a", RetryCount: 2}))
	require.NoError(t, p.Send(context.Background(), types.RefreshMessage{PredictionID: "a", RetryCount: 100}))
	assert.Equal(t, int32(60), m.calls[0].DelaySeconds)
	assert.Equal(t, int32(900), m.calls[1].DelaySeconds)
}

func TestSend_Failures(t *testing.T) {
	m := &mockSQSSender{err: errors.New("throttled")}
	_, err := newTestPublisher(m, testQueueURL).RequestRefresh(context.Background(), "p", "manual")
	assert.True(t, types.IsCode(err, types.ErrCodeInternalQueue))

	_, err = newTestPublisher(&mockSQSSender{}, "").RequestRefresh(context.Background(), "p", "manual")
	assert.True(t, types.IsCode(err, types.ErrCodeInternalQueue))
}

func TestParseRefreshMessage(t *testing.T) {
	msg, err := ParseRefreshMessage(`{"prediction_id":"abc","retry_count":1}`)
	require.NoError(t, err)
	assert.Equal(t, "abc", msg.PredictionID)
	assert.Equal(t, 1, msg.RetryCount)

	_, err = ParseRefreshMessage(`{}`)
	assert.Error(t, err)
	_, err = ParseRefreshMessage(`not json`)
	assert.Error(t, err)
}
