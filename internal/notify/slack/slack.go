// Package slack delivers alert notifications to the staff feed via Slack
// incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Kidomigon/nursing-home-ai/internal/notify"
	"github.com/Kidomigon/nursing-home-ai/internal/triage"
)

const httpTimeout = 10 * time.Second

// Channel posts alert notifications to a Slack webhook.
type Channel struct {
	webhookURL string
	client     *http.Client
}

// New creates a Slack channel for the given incoming-webhook URL.
func New(webhookURL string) *Channel {
	return &Channel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Name implements notify.Channel.
func (c *Channel) Name() string { return "slack" }

// Send posts the notification to the configured webhook.
func (c *Channel) Send(ctx context.Context, n *notify.Notification) error {
	msg := buildMessage(n)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(n *notify.Notification) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(n),
			{"type": "divider"},
			fieldsBlock(n),
			contextBlock(n),
		},
	}
}

func headerBlock(n *notify.Notification) map[string]any {
	title := "New Alert"
	if n.Transition == triage.TransitionEscalated {
		title = "Alert Escalated"
	}
	text := fmt.Sprintf("%s %s: room %s", severityEmoji(n.Severity), title, n.RoomID)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(n *notify.Notification) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Severity:* %s", n.Severity),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Kind:* %s", n.Kind),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Occurrences:* %d", n.OccurrenceCount),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Age:* %s", time.Since(n.CreatedAt).Truncate(time.Second)),
		},
	}
	if n.Explanation != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Detail:* %s", n.Explanation),
		})
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func contextBlock(n *notify.Notification) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("room-companion • alert %s • %s", n.AlertID, n.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func severityEmoji(sev triage.Severity) string {
	switch sev {
	case triage.SeverityEmergency:
		return "\U0001f534" // red circle
	case triage.SeverityUrgent:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}
