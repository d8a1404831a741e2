package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/scout/report"
	"github.com/c360studio/scout/research"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	var (
		outPath     string
		dotPath     string
		noProgress  bool
		natsURL     string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run \"request\"",
		Short: "Run one research request",
		Long: `Run plans the request into concurrent research sub-tasks, executes
them, and writes the synthesized report to stdout or --out. Failed
sub-tasks appear in the report as explicit gaps.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if natsURL != "" {
				cfg.NATS.URL = natsURL
			}
			if metricsAddr != "" {
				cfg.Metrics.Addr = metricsAddr
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			state, runErr := a.engine.Run(ctx, args[0], a.observer(!noProgress))
			if runErr != nil {
				// The state still carries a best-effort artifact; write it
				// before reporting the failure.
				logger.Error("run aborted", "error", runErr)
			}

			if err := writeArtifact(outPath, state.Artifact); err != nil {
				return err
			}

			if dotPath != "" {
				if err := writeDecisionTree(dotPath, state); err != nil {
					return err
				}
			}

			return runErr
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringVar(&dotPath, "dot", "", "Write a Graphviz view of the run to a file")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server URL override")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus /metrics listen address")

	return cmd
}

// writeArtifact delivers the report to a file or stdout.
func writeArtifact(path, artifact string) error {
	if path == "" {
		fmt.Println(artifact)
		return nil
	}

	if err := os.WriteFile(path, []byte(artifact), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "report written to %s\n", path)
	return nil
}

// writeDecisionTree renders the run as DOT and writes it out. Aborted
// runs may have no plan; there is nothing to draw then.
func writeDecisionTree(path string, state *research.RunState) error {
	if state.Plan == nil {
		return fmt.Errorf("run produced no plan, nothing to draw")
	}

	sections := research.Sections(state.Plan, state.Results)
	dot := report.DecisionTree(state.Request, state.Plan.Fallback, sections, string(state.Path))

	if err := os.WriteFile(path, []byte(dot), 0644); err != nil {
		return fmt.Errorf("write decision tree: %w", err)
	}
	fmt.Fprintf(os.Stderr, "decision tree written to %s\n", path)
	return nil
}
