// Package notify posts run reports to an operator webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pearlgen/internal/orchestrator"
	"pearlgen/internal/shared/logger"
)

// Webhook posts JSON payloads to a configured URL. A missing URL disables
// it silently.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook builds a notifier for the given URL.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type runReportPayload struct {
	Event                string         `json:"event"`
	Succeeded            int            `json:"succeeded"`
	PermanentlyFailed    int            `json:"permanently_failed"`
	InProgressAtShutdown int            `json:"in_progress_at_shutdown"`
	FailureReasons       map[string]int `json:"failure_reasons,omitempty"`
	FinishedAt           time.Time      `json:"finished_at"`
}

// RunReport posts the end-of-run summary. Failures are logged, never fatal;
// the run itself already finished.
func (w *Webhook) RunReport(ctx context.Context, report orchestrator.Report) {
	if w.url == "" {
		return
	}
	l := logger.WithComponent("Notify")

	reasons := make(map[string]int, len(report.FailureReasons))
	for reason, count := range report.FailureReasons {
		reasons[string(reason)] = count
	}
	payload := runReportPayload{
		Event:                "provisioning-run-finished",
		Succeeded:            report.Succeeded,
		PermanentlyFailed:    report.PermanentlyFailed,
		InProgressAtShutdown: report.InProgressAtShutdown,
		FailureReasons:       reasons,
		FinishedAt:           time.Now().UTC(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		l.Warn().Err(err).Msg("Failed to marshal run report.")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		l.Warn().Err(err).Msg("Failed to build webhook request.")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		l.Warn().Err(err).Msg("Webhook delivery failed.")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		l.Warn().Err(fmt.Errorf("status %d", resp.StatusCode)).Msg("Webhook rejected run report.")
		return
	}
	l.Debug().Msg("Run report delivered.")
}
