package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-dedupe/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertDroppedRate    AlertType = "account_dropped_rate"
)

// minFinishedRuns is the sample size below which failure rates are ignored.
const minFinishedRuns = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsComplete + snap.RunsFailed
	if finished >= minFinishedRuns && snap.RunFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.RunFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RunFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	// Many unnamed account rows usually means a broken export or header mapping.
	if a.cfg.DroppedRateThreshold > 0 && snap.DroppedRate > a.cfg.DroppedRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDroppedRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.1f%% of account rows had no name and were dropped (threshold %.1f%%, last %dh)",
				snap.DroppedRate*100, a.cfg.DroppedRateThreshold*100, snap.LookbackHours,
			),
			Details: map[string]any{
				"dropped":   snap.AccountsDropped,
				"kept":      snap.AccountRecords,
				"threshold": a.cfg.DroppedRateThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// alertSource tags every webhook payload.
const alertSource = "crm-dedupe"

// webhookPayload is the body posted for one check's alerts.
type webhookPayload struct {
	Source string    `json:"source"`
	SentAt time.Time `json:"sent_at"`
	Alerts []Alert   `json:"alerts"`
}

// SendAlerts posts all alerts from one check to the webhook in a single
// request and returns how many were delivered.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	types := make([]string, len(alerts))
	for i, alert := range alerts {
		types[i] = string(alert.Type)
	}

	if err := a.postWebhook(ctx, webhookPayload{
		Source: alertSource,
		SentAt: time.Now().UTC(),
		Alerts: alerts,
	}); err != nil {
		zap.L().Error("monitoring: deliver alerts",
			zap.Strings("types", types),
			zap.Error(err),
		)
		return 0
	}

	zap.L().Info("monitoring: alerts delivered", zap.Strings("types", types))
	return len(alerts)
}

func (a *Alerter) postWebhook(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alerts")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", alertSource)

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return eris.Errorf("monitoring: webhook status %d", resp.StatusCode)
	}
	return nil
}
