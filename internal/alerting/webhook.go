package alerting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// WebhookTarget is one notification destination.
type WebhookTarget struct {
	// Type is one of: teams | slack | http.
	Type string
	// URL is the resolved delivery endpoint.
	URL string
}

// Notifier delivers alerts to configured webhook targets. Delivery is
// fire-and-forget: failures are logged and never surfaced to the pipeline.
// Only high and critical alerts are forwarded — medium alerts stay in the
// store and on the websocket feed.
//
// SetTargets may be called concurrently with Notify (config hot reload).
type Notifier struct {
	client *http.Client

	mu      sync.RWMutex
	targets []WebhookTarget
}

// NewNotifier creates a Notifier for the given targets.
func NewNotifier(targets []WebhookTarget) *Notifier {
	return &Notifier{
		client:  &http.Client{Timeout: 10 * time.Second},
		targets: targets,
	}
}

// SetTargets replaces the delivery target set.
func (n *Notifier) SetTargets(targets []WebhookTarget) {
	n.mu.Lock()
	n.targets = targets
	n.mu.Unlock()
}

func (n *Notifier) currentTargets() []WebhookTarget {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.targets
}

// Notify delivers a to every configured target if its severity warrants it.
// Runs synchronously; callers dispatch it on a goroutine.
func (n *Notifier) Notify(a *Alert) {
	if a.Severity != SeverityHigh && a.Severity != SeverityCritical {
		return
	}

	for _, wh := range n.currentTargets() {
		if wh.URL == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(wh.URL, a)
		case "teams":
			err = n.sendTeams(wh.URL, a)
		case "http":
			err = n.sendHTTP(wh.URL, a)
		default:
			slog.Warn("alerting: unknown webhook type — skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("alerting: webhook delivery failed",
				"type", wh.Type,
				"subject", a.Subject,
				"err", err,
			)
		} else {
			slog.Debug("alerting: webhook delivered",
				"type", wh.Type,
				"subject", a.Subject,
				"severity", a.Severity,
			)
		}
	}
}

func (n *Notifier) sendSlack(url string, a *Alert) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s (subject %s)", severityLabel(a.Severity), a.Message, a.Subject),
	})
	return n.post(url, body)
}

func (n *Notifier) sendTeams(url string, a *Alert) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity),
		"summary":    a.Kind,
		"title":      fmt.Sprintf("VitalGuard Alert: %s", a.Subject),
		"text":       a.Message,
	}
	body, _ := json.Marshal(payload)
	return n.post(url, body)
}

func (n *Notifier) sendHTTP(url string, a *Alert) error {
	body, _ := json.Marshal(map[string]interface{}{"alert": a})
	return n.post(url, body)
}

func (n *Notifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case SeverityCritical:
		return "[CRITICAL]"
	case SeverityHigh:
		return "[HIGH]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case SeverityCritical:
		return "FF4F6A"
	case SeverityHigh:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
