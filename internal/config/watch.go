package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultSchedulesPath = "configs/schedules.yaml"
	defaultWatchInterval = 30 * time.Second
)

// WatchSchedules applies schedules.yaml once, then polls it every interval and applies
// it again whenever its modification time or size changes.
//
// The initial load must succeed. Later, a file that fails to parse or validate is
// rejected and the last applied config stays in force until the file changes again.
// A file that disappears is reported once and picked up again when it returns.
func WatchSchedules(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, apply func(*SchedulesConfig)) error {
	if path == "" {
		path = defaultSchedulesPath
	}
	if interval <= 0 {
		interval = defaultWatchInterval
	}

	w := &schedulesWatcher{path: path, logger: logger, apply: apply}
	if err := w.load(); err != nil {
		return err
	}
	go w.run(ctx, interval)
	return nil
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}

func (s fileStamp) equal(o fileStamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

type schedulesWatcher struct {
	path    string
	logger  *zerolog.Logger
	apply   func(*SchedulesConfig)
	stamp   fileStamp
	missing bool
}

// load stats before parsing so a write that lands mid-parse is seen by the next poll.
func (w *schedulesWatcher) load() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	cfg, err := LoadSchedulesConfig(w.path)
	if err != nil {
		return err
	}
	w.stamp = stampOf(info)
	if w.apply != nil {
		w.apply(cfg)
	}
	return nil
}

func (w *schedulesWatcher) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *schedulesWatcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		if !w.missing {
			w.logger.Warn().Err(err).Str("path", w.path).Msg("Schedules file unavailable, keeping last applied config")
			w.missing = true
		}
		return
	}
	w.missing = false

	stamp := stampOf(info)
	if stamp.equal(w.stamp) {
		return
	}
	w.stamp = stamp

	cfg, err := LoadSchedulesConfig(w.path)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("Schedules reload rejected, keeping last applied config")
		return
	}
	w.logger.Info().Str("path", w.path).Str("summary", cfg.String()).Msg("Schedules reloaded")
	if w.apply != nil {
		w.apply(cfg)
	}
}
