package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vitalguard/vitalguard/internal/alerting"
	"github.com/vitalguard/vitalguard/internal/api"
	"github.com/vitalguard/vitalguard/internal/auth"
	"github.com/vitalguard/vitalguard/internal/config"
	"github.com/vitalguard/vitalguard/internal/fanout"
	"github.com/vitalguard/vitalguard/internal/monitor"
	"github.com/vitalguard/vitalguard/internal/pipeline"
	"github.com/vitalguard/vitalguard/internal/scoring"
	"github.com/vitalguard/vitalguard/internal/store"
	"github.com/vitalguard/vitalguard/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("vitalguard starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Auth.Mode,
		"database", cfg.Database.Path,
		"model", cfg.Model.Path,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.Database.Path, "err", err)
		os.Exit(1)
	}

	// Scoring model — loaded from disk, or trained on the synthetic
	// distribution and saved when no artifact exists yet.
	art, trained, err := scoring.LoadOrTrain(cfg.Model.Path)
	if err != nil {
		slog.Error("failed to prepare scoring model", "path", cfg.Model.Path, "err", err)
		os.Exit(1)
	}
	if trained {
		slog.Info("trained new scoring model", "path", cfg.Model.Path)
	}
	scorer, err := scoring.NewScorer(art)
	if err != nil {
		slog.Error("scoring model rejected", "err", err)
		os.Exit(1)
	}

	authSvc := auth.NewService(cfg.Auth.Mode, cfg.Auth.Secret(), cfg.Auth.TokenTTL)

	notifier := alerting.NewNotifier(webhookTargets(cfg))

	reg := fanout.NewRegistry()
	pipe := pipeline.New(scorer, st, alerting.NewPolicy(), notifier, fanout.NewDispatcher(reg))

	// Device poller — feeds polled wearables through the same pipeline.
	poller := monitor.New(cfg.Monitor, pipe)
	go poller.Run(ctx)

	// Hot reload of webhook targets and device sources on config changes.
	go func() {
		if err := config.Watch(ctx, *configPath, cfg, func(next *config.Config) {
			notifier.SetTargets(webhookTargets(next))
			poller.SetSources(next.Monitor.Sources)
		}); err != nil {
			slog.Error("config watch stopped", "err", err)
		}
	}()

	// Combined HTTP server: REST API + WebSocket hub on HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(pipe, scorer, st, authSvc))
	httpMux.Handle("/ws/", ws.New(reg))

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("vitalguard shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}

// webhookTargets resolves configured webhook URLs from the environment,
// skipping entries whose variable is unset.
func webhookTargets(cfg *config.Config) []alerting.WebhookTarget {
	targets := make([]alerting.WebhookTarget, 0, len(cfg.Alerts.Webhooks))
	for _, wh := range cfg.Alerts.Webhooks {
		url := wh.URL()
		if url == "" {
			slog.Warn("webhook target skipped, URL env not set", "type", wh.Type, "url_env", wh.URLEnv)
			continue
		}
		targets = append(targets, alerting.WebhookTarget{Type: wh.Type, URL: url})
	}
	return targets
}
