// Package spool implements the reference spool-directory collector: it
// watches for event files dropped by producers, waits for them to become
// stable, and hands file paths to the decoder. Processed files are
// archived or deleted.
package spool

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/WuerthPhoenix/tornado-match/internal/logutil"
)

// WatcherOptions tunes a Watcher beyond the required spool directory and
// stability wait.
type WatcherOptions struct {
	// ArchiveDir receives processed files; empty means delete them.
	ArchiveDir string
	// CheckInterval is how often pending files are re-checked for stability.
	CheckInterval time.Duration
	// MaxPendingFiles bounds the pending map; oldest entries are dropped.
	MaxPendingFiles int
	// ChannelBuffer sizes the Events channel.
	ChannelBuffer int
}

// Watcher delivers spool file paths once they have been unchanged for the
// stability wait. Files land in <spoolDir>/new.
type Watcher struct {
	spoolDir        string
	newDir          string
	stabilityWait   time.Duration
	archiveDir      string
	checkInterval   time.Duration
	maxPendingFiles int

	watcher *fsnotify.Watcher
	events  chan string
	// pending maps file path to the last time a change was observed.
	pending map[string]time.Time
}

// NewWatcher creates a Watcher with default options.
func NewWatcher(spoolDir string, stabilityWait time.Duration) (*Watcher, error) {
	return NewWatcherWithOptions(spoolDir, stabilityWait, WatcherOptions{})
}

// NewWatcherWithOptions creates a Watcher, creating the spool "new"
// directory and the archive directory as needed.
func NewWatcherWithOptions(spoolDir string, stabilityWait time.Duration, opts WatcherOptions) (*Watcher, error) {
	if opts.CheckInterval == 0 {
		opts.CheckInterval = 500 * time.Millisecond
	}
	if opts.MaxPendingFiles == 0 {
		opts.MaxPendingFiles = 1000
	}
	if opts.ChannelBuffer == 0 {
		opts.ChannelBuffer = 100
	}

	newDir := filepath.Join(spoolDir, "new")
	if err := os.MkdirAll(newDir, 0755); err != nil {
		return nil, err
	}
	if opts.ArchiveDir != "" {
		if err := os.MkdirAll(opts.ArchiveDir, 0755); err != nil {
			return nil, err
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(newDir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return &Watcher{
		spoolDir:        spoolDir,
		newDir:          newDir,
		stabilityWait:   stabilityWait,
		archiveDir:      opts.ArchiveDir,
		checkInterval:   opts.CheckInterval,
		maxPendingFiles: opts.MaxPendingFiles,
		watcher:         fsw,
		events:          make(chan string, opts.ChannelBuffer),
		pending:         make(map[string]time.Time),
	}, nil
}

// Events returns the channel of stable spool file paths. The channel is
// closed when Start returns.
func (w *Watcher) Events() <-chan string { return w.events }

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error { return w.watcher.Close() }

// Start runs the watch loop until the context is cancelled. Files already
// present at startup are picked up as well; their modification time seeds
// the stability clock so a freshly written file still waits out the full
// stability period.
func (w *Watcher) Start(ctx context.Context) error {
	defer close(w.events)

	w.rescan()
	if err := w.flushStable(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				w.mark(ev.Name, time.Now())
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// The kernel queue overflowed; resync from disk so
				// nothing is lost.
				w.rescan()
				continue
			}
			logutil.Warn("spool watcher error: %v", err)
		case <-ticker.C:
			if err := w.flushStable(ctx); err != nil {
				return err
			}
		}
	}
}

// mark records a change observation, dropping the oldest pending entry
// when the map is full.
func (w *Watcher) mark(path string, seen time.Time) {
	if _, known := w.pending[path]; !known && len(w.pending) >= w.maxPendingFiles {
		oldestPath := ""
		var oldest time.Time
		for p, t := range w.pending {
			if oldestPath == "" || t.Before(oldest) {
				oldestPath, oldest = p, t
			}
		}
		delete(w.pending, oldestPath)
		logutil.Warn("spool pending limit reached, dropping %s", oldestPath)
	}
	w.pending[path] = seen
}

// rescan walks the spool directory and adds every file not already
// pending, seeded with its modification time.
func (w *Watcher) rescan() {
	entries, err := os.ReadDir(w.newDir)
	if err != nil {
		logutil.Warn("spool rescan failed: %v", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.newDir, e.Name())
		if _, known := w.pending[path]; known {
			continue
		}
		seen := time.Now()
		if info, err := e.Info(); err == nil && info.ModTime().Before(seen) {
			seen = info.ModTime()
		}
		w.mark(path, seen)
	}
}

// flushStable delivers every pending file that has been quiet for the
// stability wait. Delivery blocks if the consumer is behind, bounded by
// context cancellation.
func (w *Watcher) flushStable(ctx context.Context) error {
	for path, seen := range w.pending {
		if time.Since(seen) < w.stabilityWait {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			delete(w.pending, path)
			continue
		}
		select {
		case w.events <- path:
			delete(w.pending, path)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ArchiveFile moves a processed file into the archive directory, or
// deletes it when no archive is configured. Missing files are not an
// error: a competing cleanup may have removed them already.
func (w *Watcher) ArchiveFile(path string) error {
	if w.archiveDir == "" {
		err := os.Remove(path)
		if err != nil && os.IsNotExist(err) {
			return nil
		}
		return err
	}

	dest := filepath.Join(w.archiveDir, filepath.Base(path))
	err := os.Rename(path, dest)
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return nil
	}
	// Rename can fail across filesystems; fall back to copy+remove.
	return copyAndRemove(path, dest)
}

func copyAndRemove(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
