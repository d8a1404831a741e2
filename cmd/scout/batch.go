package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/c360studio/scout/report"
	"github.com/c360studio/scout/research"
)

func newBatchCmd(opts *globalOptions) *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "batch \"glob\"",
		Short: "Run every request file matching a glob",
		Long: `Batch treats each matching file as one research request, runs them
sequentially, and writes each report next to its request file as
<name>.report.md. Doublestar patterns are supported, e.g.
"requests/**/*.txt". A summary table is printed at the end.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			paths, err := doublestar.FilepathGlob(args[0])
			if err != nil {
				return fmt.Errorf("bad glob pattern: %w", err)
			}
			if len(paths) == 0 {
				return fmt.Errorf("no files match %q", args[0])
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			obs := a.observer(!noProgress)

			var rows [][]string
			for _, path := range paths {
				if ctx.Err() != nil {
					break
				}

				row := processRequestFile(ctx, a, path, obs)
				rows = append(rows, row)
			}

			fmt.Println()
			fmt.Print(report.RenderTable([]string{"Request", "Run", "Path", "Duration", "Report"}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output")

	return cmd
}

// processRequestFile runs one request file and returns its summary row.
func processRequestFile(ctx context.Context, a *app, path string, obs research.Observer) []string {
	name := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return []string{name, "-", "-", "-", "read failed: " + err.Error()}
	}

	request := strings.TrimSpace(string(data))
	if request == "" {
		return []string{name, "-", "-", "-", "empty request"}
	}

	state, runErr := a.engine.Run(ctx, request, obs)

	reportPath := reportPathFor(path)
	if err := os.WriteFile(reportPath, []byte(state.Artifact), 0644); err != nil {
		a.logger.Error("failed to write report", "request", path, "error", err)
		reportPath = "write failed"
	}

	duration := state.CompletedAt.Sub(state.StartedAt).Round(time.Millisecond)
	if runErr != nil {
		return []string{name, state.RunID, "aborted", duration.String(), reportPath}
	}
	return []string{name, state.RunID, string(state.Path), duration.String(), reportPath}
}

// reportPathFor derives the report filename from the request filename.
func reportPathFor(requestPath string) string {
	base := strings.TrimSuffix(requestPath, filepath.Ext(requestPath))
	return base + ".report.md"
}
