package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/signalenv/internal/replay"
)

type replayOptions struct {
	runID   string
	fixture string
	verbose bool
}

func newReplayCmd(a *app) *cobra.Command {
	opts := replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Regenerate a stored run or fixture and compare it bit for bit",
		Example: `  signalenv replay --run 3f0c...
  signalenv replay --fixture testdata/baseline.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplay(cmd, a, opts)
		},
	}
	cmd.Flags().StringVar(&opts.runID, "run", "", "run id in the database")
	cmd.Flags().StringVar(&opts.fixture, "fixture", "", "path to a JSON fixture")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "print every diverged step")
	cmd.MarkFlagsMutuallyExclusive("run", "fixture")
	cmd.MarkFlagsOneRequired("run", "fixture")
	return cmd
}

func runReplay(cmd *cobra.Command, a *app, opts replayOptions) error {
	var results []replay.StepResult
	var source string

	if opts.fixture != "" {
		f, err := replay.LoadFixture(opts.fixture)
		if err != nil {
			return err
		}
		if results, err = f.Replay(); err != nil {
			return err
		}
		source = opts.fixture
	} else {
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		run, err := store.GetRun(opts.runID)
		if err != nil {
			return err
		}
		samples, err := store.Samples(run.RunID)
		if err != nil {
			return err
		}
		if results, err = replay.Replay(run, samples); err != nil {
			return err
		}
		source = run.RunID
	}

	summary := replay.Summarize(results)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "replay %s: %d steps, %d match, %d diverged\n", source, summary.Total, summary.Matches, summary.Diverged)
	if opts.verbose {
		for _, r := range results {
			if !r.Match {
				fmt.Fprintf(out, "  step %d: %s\n", r.Step, r.Reason)
			}
		}
	}
	if !summary.OK() {
		return fmt.Errorf("replay diverged at step %d", summary.FirstDivergence)
	}
	return nil
}
