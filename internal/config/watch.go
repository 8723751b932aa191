package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 250 * time.Millisecond

// Watcher reloads the config file of a Holder when it changes on disk.
type Watcher struct {
	holder   *Holder
	env      EnvOverrides
	cli      CLIOverrides
	logger   *slog.Logger
	onChange func(old, updated *Config)
	debounce time.Duration
}

// NewWatcher returns a Watcher that re-applies env and cli on every reload.
// onChange, if set, runs after each successful swap.
func NewWatcher(
	holder *Holder, env EnvOverrides, cli CLIOverrides, logger *slog.Logger,
	onChange func(old, updated *Config),
) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		holder:   holder,
		env:      env,
		cli:      cli,
		logger:   logger,
		onChange: onChange,
		debounce: reloadDebounce,
	}
}

// Run watches until ctx is canceled. The directory is watched rather than
// the file because editors save by renaming a new file over the old one.
// A reload that fails to parse or validate is logged and the previous
// config stays in effect.
func (w *Watcher) Run(ctx context.Context) error {
	path := w.holder.Path()
	if path == "" {
		return fmt.Errorf("config: no config file to watch")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(path)

	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watching %s: %w", filepath.Dir(target), err)
	}

	w.logger.Info("watching config file", slog.String("path", target))

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			timer.Reset(w.debounce)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("config watcher error", slog.String("error", watchErr.Error()))

		case <-timer.C:
			w.reload(target)
		}
	}
}

func (w *Watcher) reload(path string) {
	updated, err := resolveFile(path, w.env, w.cli)
	if err != nil {
		w.logger.Warn("config reload rejected, keeping previous config",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return
	}

	old := w.holder.Update(updated)

	w.logger.Info("config reloaded", slog.String("path", path))

	if old != nil && old.Auth != updated.Auth {
		w.logger.Warn("auth settings changed, restart to apply them")
	}

	if w.onChange != nil {
		w.onChange(old, updated)
	}
}
