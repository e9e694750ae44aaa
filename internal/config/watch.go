package config

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path for changes and calls apply with the newly loaded
// Config each time a hot-reloadable section — the alert webhook list or the
// monitored device sources — actually changes. It runs until ctx is
// cancelled.
//
// Structural settings (listen port, auth, database, model path, poll
// interval) take effect on restart only; a change touching just those is
// logged and not applied. If a reload fails (e.g., invalid YAML), the error
// is logged and the previous config remains active.
func Watch(ctx context.Context, path string, current *Config, apply func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	prev := current
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Only reload on write or create events. Editors often write via
			// rename (atomic save), so also catch fsnotify.Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			next, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed — keeping previous config",
					"path", path, "err", err)
				continue
			}

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

			if structuralChanged(prev, next) {
				slog.Warn("config: structural settings changed — restart to apply them", "path", path)
			}

			changed := reloadableDiff(prev, next)
			prev = next
			if len(changed) == 0 {
				continue
			}

			slog.Info("config: reloaded", "path", path, "sections", changed)
			apply(next)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// reloadableDiff names the hot-reloadable sections that differ between two
// configs.
func reloadableDiff(a, b *Config) []string {
	var out []string
	if !reflect.DeepEqual(a.Alerts.Webhooks, b.Alerts.Webhooks) {
		out = append(out, "alerts.webhooks")
	}
	if !reflect.DeepEqual(a.Monitor.Sources, b.Monitor.Sources) {
		out = append(out, "monitor.sources")
	}
	return out
}

// structuralChanged reports whether any restart-only setting differs.
func structuralChanged(a, b *Config) bool {
	return a.Server != b.Server ||
		a.Auth != b.Auth ||
		a.Database != b.Database ||
		a.Model != b.Model ||
		a.Monitor.PollInterval != b.Monitor.PollInterval
}
