package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReloadableDiff(t *testing.T) {
	base := func() *Config {
		cfg := defaults()
		cfg.Alerts.Webhooks = []WebhookConfig{{Type: "slack", URLEnv: "SLACK_URL"}}
		cfg.Monitor.Sources = []Source{{Subject: "u1", Endpoint: "http://dev:9100/metrics"}}
		return cfg
	}

	a, b := base(), base()
	if got := reloadableDiff(a, b); len(got) != 0 {
		t.Errorf("identical configs diff = %v, want none", got)
	}

	b.Alerts.Webhooks[0].Type = "teams"
	if got := reloadableDiff(a, b); len(got) != 1 || got[0] != "alerts.webhooks" {
		t.Errorf("webhook change diff = %v, want [alerts.webhooks]", got)
	}

	b = base()
	b.Monitor.Sources = append(b.Monitor.Sources, Source{Subject: "u2", Endpoint: "http://dev2:9100/metrics"})
	if got := reloadableDiff(a, b); len(got) != 1 || got[0] != "monitor.sources" {
		t.Errorf("source change diff = %v, want [monitor.sources]", got)
	}

	// Structural-only changes are not reloadable.
	b = base()
	b.Server.HTTPPort = 9999
	b.Monitor.PollInterval = time.Minute
	if got := reloadableDiff(a, b); len(got) != 0 {
		t.Errorf("structural change diff = %v, want none", got)
	}
	if !structuralChanged(a, b) {
		t.Error("structuralChanged = false, want true")
	}
}

func TestWatch_AppliesWebhookChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}

	write(`
alerts:
  webhooks:
    - type: slack
      url_env: SLACK_WEBHOOK_URL
`)
	cur, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan *Config, 1)
	go func() {
		_ = Watch(ctx, path, cur, func(c *Config) { applied <- c })
	}()
	time.Sleep(200 * time.Millisecond) // let the watcher register

	write(`
alerts:
  webhooks:
    - type: teams
      url_env: TEAMS_WEBHOOK_URL
`)

	select {
	case c := <-applied:
		if len(c.Alerts.Webhooks) != 1 || c.Alerts.Webhooks[0].Type != "teams" {
			t.Errorf("applied webhooks = %+v, want the teams target", c.Alerts.Webhooks)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("apply was not called after a webhook change")
	}
}
