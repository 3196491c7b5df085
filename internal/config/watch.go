package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"time"
)

// WatchSchedule loads the schedule file, hands it to onUpdate and keeps polling it
// in the background until ctx is done. onUpdate runs again only when the file
// content changes. A broken edit is reported to onError and the last good config
// stays in effect.
func WatchSchedule(ctx context.Context, path string, interval time.Duration, onUpdate func(*ScheduleConfig), onError func(error)) error {
	if path == "" {
		path = "configs/schedule.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	w := &scheduleWatcher{path: path, onUpdate: onUpdate, onError: onError}
	if _, err := w.poll(); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.poll(); err != nil && w.onError != nil {
					w.onError(err)
				}
			}
		}
	}()
	return nil
}

type scheduleWatcher struct {
	path     string
	digest   []byte
	onUpdate func(*ScheduleConfig)
	onError  func(error)
}

// poll reloads the file when its digest moved and reports whether it did.
func (w *scheduleWatcher) poll() (bool, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return false, fmt.Errorf("read schedule config: %w", err)
	}
	sum := sha256.Sum256(data)
	if bytes.Equal(sum[:], w.digest) {
		return false, nil
	}

	cfg, err := parseScheduleConfig(data)
	if err != nil {
		// Remember the bad revision so it is reported once.
		w.digest = sum[:]
		return false, err
	}
	w.digest = sum[:]
	if w.onUpdate != nil {
		w.onUpdate(cfg)
	}
	return true, nil
}
