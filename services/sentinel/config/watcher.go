// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Watcher hot-reloads the risk thresholds when the config file changes.
//
// # Description
//
// Watches the config file for writes and re-reads only the thresholds
// section, pushing validated values into the Holder. All other settings
// keep their startup values; changing them requires a restart. A file
// that becomes unreadable or fails validation is logged and ignored, so
// a half-written save can never poison the running thresholds.
//
// # Thread Safety
//
// Safe for concurrent use. Start should only be called once.
type Watcher struct {
	path    string
	holder  *Holder
	watcher *fsnotify.Watcher
	log     *slog.Logger
}

// NewWatcher creates a threshold watcher for the given config file.
//
// Inputs:
//   - path: Config file to watch. Must be the same file passed to Load.
//   - holder: Destination for reloaded thresholds.
//   - log: Logger; nil uses slog.Default.
//
// Outputs:
//   - *Watcher: Ready-to-start watcher.
//   - error: Non-nil if the underlying fsnotify watcher cannot be created.
func NewWatcher(path string, holder *Holder, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		path:    path,
		holder:  holder,
		watcher: fsw,
		log:     log,
	}, nil
}

// Start begins watching for config writes. Blocks until the context is
// cancelled; run it in a goroutine.
func (w *Watcher) Start(ctx context.Context) {
	if err := w.watcher.Add(w.path); err != nil {
		w.log.Warn("failed to watch config file, threshold hot-reload disabled",
			"path", w.path,
			"error", err)
		return
	}

	w.log.Debug("watching config file for threshold changes",
		"path", w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error",
				"error", err)

		case <-ctx.Done():
			w.log.Debug("config watcher stopping")
			return
		}
	}
}

// handleEvent processes a single fsnotify event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Editors rename-then-create; treat those like writes.
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		w.log.Warn("config changed but is unreadable, keeping current thresholds",
			"path", w.path,
			"error", err)
		return
	}

	var partial struct {
		Thresholds Thresholds `yaml:"thresholds"`
	}
	if err := yaml.Unmarshal(data, &partial); err != nil {
		w.log.Warn("config changed but does not parse, keeping current thresholds",
			"path", w.path,
			"error", err)
		return
	}

	if err := w.holder.Set(partial.Thresholds); err != nil {
		w.log.Warn("config changed but thresholds are invalid, keeping current",
			"error", err)
		return
	}

	// Re-add in case the editor replaced the inode.
	_ = w.watcher.Add(w.path)

	t := partial.Thresholds
	w.log.Info("risk thresholds reloaded",
		"buffer", t.Buffer,
		"redistribute", t.Redistribute,
		"alert", t.Alert)
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
