package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// watchDebounce lets editors finish writing a request file before it is
// picked up.
const watchDebounce = 500 * time.Millisecond

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and run each new request file",
		Long: `Watch runs every .txt file dropped into the directory as a research
request and writes the report next to it as <name>.report.md. Files
already present at startup are ignored; only new or rewritten files
trigger runs. Stops on interrupt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			dir := args[0]
			info, err := os.Stat(dir)
			if err != nil {
				return fmt.Errorf("stat watch directory: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("not a directory: %s", dir)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			return watchRequests(ctx, a, dir, !noProgress)
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output")

	return cmd
}

// watchRequests processes request files arriving in dir until the
// context is canceled. Events are debounced per file because editors
// produce several events per save.
func watchRequests(ctx context.Context, a *app, dir string, showProgress bool) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	a.logger.Info("watching for request files", "dir", dir)

	var mu sync.Mutex
	pending := make(map[string]struct{})

	ticker := time.NewTicker(watchDebounce)
	defer ticker.Stop()

	obs := a.observer(showProgress)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !isRequestFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				mu.Lock()
				pending[event.Name] = struct{}{}
				mu.Unlock()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			a.logger.Error("watch error", "error", err)

		case <-ticker.C:
			mu.Lock()
			ready := make([]string, 0, len(pending))
			for path := range pending {
				ready = append(ready, path)
			}
			clear(pending)
			mu.Unlock()

			for _, path := range ready {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.Info("request file picked up", "path", path)
				row := processRequestFile(ctx, a, path, obs)
				a.logger.Info("request file processed", "path", path, "outcome", row[len(row)-1])
			}
		}
	}
}

// isRequestFile reports whether a path looks like a request file. Our
// own .report.md outputs never match.
func isRequestFile(path string) bool {
	return filepath.Ext(path) == ".txt"
}
