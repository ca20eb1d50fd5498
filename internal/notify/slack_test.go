package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
	"github.com/cyderes/lakehouse-pipeline/internal/models"
)

func testExecution() *models.Execution {
	return &models.Execution{
		ExecutionID: "e1",
		Results: []models.TableResult{
			{TableName: "posts", Success: true},
			{TableName: "users", Success: false, Error: "boom"},
		},
	}
}

func TestSweepMessage(t *testing.T) {
	msg := SweepMessage(testExecution())
	assert.Equal(t, "Iceberg Conversion Results: 1 succeeded, 1 failed", msg.Text)
	require.Len(t, msg.Blocks, 1)
	assert.Equal(t, "section", msg.Blocks[0].Type)
	assert.Equal(t, "mrkdwn", msg.Blocks[0].Text.Type)
	assert.Contains(t, msg.Blocks[0].Text.Text, "Success: 1")
	assert.Contains(t, msg.Blocks[0].Text.Text, "Failed: 1")
}

func TestSlack_Notify(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	s := NewSlack(config.NotifyConfig{SlackWebhookURL: server.URL, Timeout: time.Second}, nil)
	require.NoError(t, s.Notify(context.Background(), testExecution()))
	assert.Equal(t, "Iceberg Conversion Results: 1 succeeded, 1 failed", got.Text)
}

func TestSlack_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	s := NewSlack(config.NotifyConfig{SlackWebhookURL: server.URL, Timeout: time.Second}, nil)
	s.client.RetryWaitMin = time.Millisecond
	s.client.RetryWaitMax = time.Millisecond

	require.NoError(t, s.Notify(context.Background(), testExecution()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSlack_ClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	s := NewSlack(config.NotifyConfig{SlackWebhookURL: server.URL, Timeout: time.Second}, nil)
	err := s.Notify(context.Background(), testExecution())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
