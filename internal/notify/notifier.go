// Package notify delivers operator alerts over one or more channels
// (Telegram, Discord). The engine alerts on the events that need a human:
// naked exposure after a failed hedge leg and kill-switch engagement.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
)

// Severity levels in increasing order of urgency.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel (e.g. "telegram").
	Name() string
}

// Notifier fans alerts out to all registered senders, dropping those below
// the configured minimum severity. It satisfies the coordinator's Alerter
// interface and is safe for concurrent use: senders hold no mutable state.
type Notifier struct {
	senders     []Sender
	minSeverity int
	logger      *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Alerts
// below minSeverity are dropped; an empty or unknown minSeverity lets
// everything through.
func NewNotifier(senders []Sender, minSeverity string, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders:     senders,
		minSeverity: severityRank(minSeverity),
		logger:      logger.With(slog.String("component", "notifier")),
	}
}

// Alert formats and dispatches one alert. Delivery failures are logged per
// sender and never propagate: an alert is best-effort by contract and the
// trading path must not block on a webhook.
func (n *Notifier) Alert(ctx context.Context, severity, message string, fields map[string]string) {
	if severityRank(severity) < n.minSeverity {
		n.logger.DebugContext(ctx, "alert below severity floor",
			slog.String("severity", severity),
		)
		return
	}

	title := fmt.Sprintf("[%s] %s", strings.ToUpper(severity), message)
	body := formatFields(fields)

	for _, s := range n.senders {
		if err := s.Send(ctx, title, body); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("severity", severity),
		)
	}
}

func severityRank(s string) int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	default:
		return 0
	}
}

// formatFields renders alert fields one per line in key order, so two alerts
// with the same payload read identically.
func formatFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", k, fields[k])
	}
	return b.String()
}

// postJSON is the shared webhook call used by the channel senders.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
