package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/signalenv/internal/eval"
	"github.com/danielpatrickdp/signalenv/internal/state"
)

type inspectOptions struct {
	last    int
	runID   string
	jsonOut bool
}

// runDetail is the --run view.
type runDetail struct {
	Run        state.Run         `json:"run"`
	Eval       eval.Result       `json:"eval"`
	Posteriors int               `json:"posterior_rows"`
	Latest     map[string]string `json:"latest_posteriors,omitempty"`
}

func newInspectCmd(a *app) *cobra.Command {
	opts := inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List recorded runs or show one run in detail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if opts.runID != "" {
				return inspectRun(cmd.OutOrStdout(), store, opts)
			}
			return inspectList(cmd.OutOrStdout(), store, opts)
		},
	}
	cmd.Flags().IntVar(&opts.last, "last", 20, "show N most recent runs")
	cmd.Flags().StringVar(&opts.runID, "run", "", "show a single run")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "output as JSON instead of a table")
	return cmd
}

// #region list-mode
func inspectList(w io.Writer, store *state.Store, opts inspectOptions) error {
	runs, err := store.ListRuns(opts.last)
	if err != nil {
		return err
	}
	if opts.jsonOut {
		if runs == nil {
			runs = []state.Run{}
		}
		return writeJSON(w, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tLABEL\tSEED\tINITIAL\tPRECISION\tSAMPLES\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%g\t%g\t%d\t%s\n",
			r.RunID, r.Label, r.Seed, r.InitialState, r.Precision, r.SampleCount,
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

// #endregion list-mode

// #region detail-mode
func inspectRun(w io.Writer, store *state.Store, opts inspectOptions) error {
	run, err := store.GetRun(opts.runID)
	if err != nil {
		return err
	}
	samples, err := store.Samples(run.RunID)
	if err != nil {
		return err
	}
	rows, err := store.Posteriors(run.RunID)
	if err != nil {
		return err
	}

	history := make([]float64, len(samples))
	observations := make([]float64, len(samples))
	for i, s := range samples {
		history[i] = s.Latent
		observations[i] = s.Observation
	}

	d := runDetail{
		Run:        run,
		Eval:       eval.NewHarness(eval.DefaultConfig()).Run(history, observations, run.Precision, nil),
		Posteriors: len(rows),
	}
	if len(rows) > 0 {
		d.Latest = make(map[string]string)
		for _, r := range rows {
			d.Latest[r.Variable] = fmt.Sprintf("step %d %s %s", r.Step, r.Family, r.ParamsJSON)
		}
	}

	if opts.jsonOut {
		return writeJSON(w, d)
	}

	fmt.Fprintf(w, "run        %s\n", run.RunID)
	if run.Label != "" {
		fmt.Fprintf(w, "label      %s\n", run.Label)
	}
	fmt.Fprintf(w, "seed       %d\n", run.Seed)
	fmt.Fprintf(w, "initial    %g\n", run.InitialState)
	fmt.Fprintf(w, "precision  %g\n", run.Precision)
	fmt.Fprintf(w, "samples    %d\n", run.SampleCount)
	fmt.Fprintf(w, "posteriors %d\n", d.Posteriors)
	fmt.Fprintf(w, "eval       %s\n", d.Eval.Reason)
	for _, m := range d.Eval.Metrics {
		mark := "ok"
		if !m.Pass {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "  %-20s %10.4f  %s\n", m.Name, m.Value, mark)
	}
	for name, latest := range d.Latest {
		fmt.Fprintf(w, "  %s: %s\n", name, latest)
	}
	return nil
}

// #endregion detail-mode
