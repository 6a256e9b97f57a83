// Package slack sends urgent triage notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/vettriage/internal/triage"
)

const (
	maxSummaryLen = 3000
	httpTimeout   = 10 * time.Second
)

// Notifier posts run records to a Slack webhook. It implements triage.Notifier.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Notify posts a run record to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Notify(ctx context.Context, rec *triage.RunRecord) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(rec))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification sent", "run_id", rec.ID, "urgency", rec.Urgency)
	return nil
}

func buildMessage(r *triage.RunRecord) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(r),
			{"type": "divider"},
			fieldsBlock(r),
			{"type": "divider"},
			summaryBlock(r),
			{"type": "divider"},
			contextBlock(r),
		},
	}
}

func headerBlock(r *triage.RunRecord) map[string]any {
	title := "Triage Complete"
	switch {
	case r.Error != "":
		title = "Triage Failed"
	case r.Truncated:
		title = "Triage Partial"
	}
	text := fmt.Sprintf("%s %s: %s", urgencyEmoji(r.Urgency), title, r.Urgency)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(r *triage.RunRecord) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Urgency:* %s", r.Urgency),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Confidence:* %.2f", r.Confidence),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Duration:* %.1fs", r.ProcessingTime),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Model:* %s", shortModel(r.ModelUsed)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Mode:* %s", r.ExecutionMode),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Findings:* %d critical, %d priority", r.CriticalCount, r.PriorityCount),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func summaryBlock(r *triage.RunRecord) map[string]any {
	text := truncate(r.Summary, maxSummaryLen)
	if text == "" {
		text = "_No summary available._"
	}
	if r.Error != "" {
		text += "\n\n*Error:* " + truncate(r.Error, maxSummaryLen)
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Summary*\n\n%s", text),
		},
	}
}

func contextBlock(r *triage.RunRecord) map[string]any {
	ts := r.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("vettriage • run %s • image %s • %s", r.ID, r.ImageFingerprint, ts.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func urgencyEmoji(u triage.Urgency) string {
	switch u {
	case triage.UrgencyCritical:
		return "\U0001f534" // red circle
	case triage.UrgencyHigh:
		return "\U0001f7e0" // orange circle
	case triage.UrgencyMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

// dateModelRe matches model names ending with a YYYYMMDD date suffix.
var dateModelRe = regexp.MustCompile(`-\d{8}$`)

func shortModel(model string) string {
	return dateModelRe.ReplaceAllString(model, "")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
