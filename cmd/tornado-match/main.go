// Command tornado-match runs the matching engine as a small daemon: it
// compiles the configured processing tree, watches an event spool, and
// prints one outcome line per matched or partially matched rule (every
// rule outcome with -test-event). SIGHUP recompiles and
// atomically swaps the tree without dropping in-flight events.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/WuerthPhoenix/tornado-match/internal/config"
	"github.com/WuerthPhoenix/tornado-match/internal/cursor"
	"github.com/WuerthPhoenix/tornado-match/internal/logutil"
	"github.com/WuerthPhoenix/tornado-match/internal/matcher"
	"github.com/WuerthPhoenix/tornado-match/internal/reload"
	"github.com/WuerthPhoenix/tornado-match/internal/spool"
	"github.com/WuerthPhoenix/tornado-match/internal/tree"
)

func main() {
	configPath := flag.String("config", "/etc/tornado-match/config.yaml", "path to the configuration file")
	rulesPath := flag.String("rules", "", "override the processing tree path from the config")
	testEvent := flag.String("test-event", "", "match the events in this file once and exit")
	verbose := flag.Bool("verbose", false, "show per-rule diagnostics and context")
	timestamps := flag.Bool("timestamps", false, "prefix output lines with timestamps")
	flag.Parse()

	if *verbose {
		logutil.SetVerbosity(logutil.VerboseLevel)
	}
	logutil.SetTimestamps(*timestamps)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logutil.Error("%v", err)
		os.Exit(1)
	}

	treePath := cfg.Processing.Path
	if *rulesPath != "" {
		treePath = *rulesPath
	}

	compiled, err := compileTree(treePath)
	if err != nil {
		logutil.Error("%v", err)
		os.Exit(1)
	}
	handle := reload.New(compiled)
	logutil.Success("processing tree loaded from %s", treePath)

	decoder := spool.NewDecoder()

	if *testEvent != "" {
		if err := runTestEvent(handle, decoder, *testEvent); err != nil {
			logutil.Error("%v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, handle, decoder, treePath); err != nil && err != context.Canceled {
		logutil.Error("%v", err)
		os.Exit(1)
	}
}

func compileTree(path string) (*tree.Compiled, error) {
	node, err := config.LoadTree(path)
	if err != nil {
		return nil, err
	}
	return tree.Compile(node)
}

// runTestEvent matches one file of events and prints every rule outcome,
// mirroring what the daemon would do for a spooled file.
func runTestEvent(handle *reload.Handle, decoder *spool.Decoder, path string) error {
	events, err := decoder.DecodeEvents(path)
	if err != nil {
		return err
	}
	for _, ev := range events {
		report(handle.Driver().Match(ev), true)
	}
	return nil
}

func run(cfg *config.Config, handle *reload.Handle, decoder *spool.Decoder, treePath string) error {
	cur, err := cursor.Open(cfg.State.CursorPath)
	if err != nil {
		return err
	}
	defer func() { _ = cur.Close() }()

	watcher, err := spool.NewWatcherWithOptions(cfg.Spool.Dir, cfg.Spool.StabilityWait, spool.WatcherOptions{
		ArchiveDir: cfg.Spool.ArchiveDir,
	})
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGHUP swaps in a freshly compiled tree; in-flight events finish on
	// the tree they started with.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			compiled, err := compileTree(treePath)
			if err != nil {
				logutil.Error("reload failed, keeping previous tree: %v", err)
				continue
			}
			handle.Swap(compiled)
			logutil.Success("processing tree reloaded from %s", treePath)
		}
	}()

	watchErr := make(chan error, 1)
	go func() { watchErr <- watcher.Start(ctx) }()
	logutil.Info("watching spool %s", cfg.Spool.Dir)

	for {
		select {
		case err := <-watchErr:
			return err
		case path, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			handleFile(handle, decoder, cur, watcher, path)
		}
	}
}

func handleFile(handle *reload.Handle, decoder *spool.Decoder, cur *cursor.DB, watcher *spool.Watcher, path string) {
	name := filepath.Base(path)
	if done, err := cur.IsProcessed(name); err != nil {
		logutil.Warn("cursor lookup for %s failed: %v", name, err)
	} else if done {
		logutil.Verbose("skipping already-processed file %s", name)
		if err := watcher.ArchiveFile(path); err != nil {
			logutil.Warn("failed to archive %s: %v", name, err)
		}
		return
	}

	events, err := decoder.DecodeEvents(path)
	if err != nil {
		logutil.Warn("failed to decode %s: %v", name, err)
		return
	}
	for _, ev := range events {
		report(handle.Driver().Match(ev), false)
	}

	if err := cur.MarkProcessed(name); err != nil {
		logutil.Warn("failed to record cursor for %s: %v", name, err)
	}
	if err := watcher.ArchiveFile(path); err != nil {
		logutil.Warn("failed to archive %s: %v", name, err)
	}
}

// report prints one line per rule outcome. The daemon path only surfaces
// rules that matched or partially matched; the test-event path shows
// everything so a rule author can see why something did not fire.
func report(pe matcher.ProcessedEvent, all bool) {
	pe.Result.Walk(func(n *matcher.NodeResult) {
		for _, rr := range n.Rules {
			if !all && rr.Status != matcher.StatusMatched && rr.Status != matcher.StatusPartiallyMatched {
				continue
			}
			title := fmt.Sprintf("event %q", pe.Event.Type)
			if rr.Status == matcher.StatusMatched && len(rr.Actions) > 0 {
				title = fmt.Sprintf("event %q, %d action(s)", pe.Event.Type, len(rr.Actions))
			}
			logutil.RuleOutcome(n.Path+"."+rr.RuleName, rr.Status.String(), title, rr.Message)
		}
	})
}
