// Package notify posts sweep summaries to a chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
	"github.com/cyderes/lakehouse-pipeline/internal/logging"
	"github.com/cyderes/lakehouse-pipeline/internal/models"
)

// Message is a Slack incoming-webhook payload
type Message struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks"`
}

type Block struct {
	Type string    `json:"type"`
	Text TextBlock `json:"text"`
}

type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Slack posts messages to an incoming webhook
type Slack struct {
	webhookURL string
	client     *retryablehttp.Client
}

// NewSlack creates a notifier for the configured webhook
func NewSlack(cfg config.NotifyConfig, logger *zap.Logger) *Slack {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := retryablehttp.NewClient()
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.RetryMax = 3
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = logging.Leveled{L: logger.Sugar()}

	return &Slack{webhookURL: cfg.SlackWebhookURL, client: client}
}

// SweepMessage summarizes the table results of a sweep.
func SweepMessage(exec *models.Execution) Message {
	succeeded := exec.Succeeded()
	failed := len(exec.Results) - succeeded
	return Message{
		Text: fmt.Sprintf("Iceberg Conversion Results: %d succeeded, %d failed", succeeded, failed),
		Blocks: []Block{{
			Type: "section",
			Text: TextBlock{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Iceberg Conversion Results*\n✅ Success: %d\n❌ Failed: %d", succeeded, failed),
			},
		}},
	}
}

// Notify posts the summary of exec.
func (s *Slack) Notify(ctx context.Context, exec *models.Execution) error {
	return s.Post(ctx, SweepMessage(exec))
}

// Post sends msg to the webhook.
func (s *Slack) Post(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encoding slack message")
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "Error constructing POST request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "POST error")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
