package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/signalenv/internal/replay"
)

func newExportFixtureCmd(a *app) *cobra.Command {
	var runID, out, description string
	cmd := &cobra.Command{
		Use:   "export-fixture",
		Short: "Write a stored run as a replay fixture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(runID)
			if err != nil {
				return err
			}
			samples, err := store.Samples(run.RunID)
			if err != nil {
				return err
			}
			desc := description
			if desc == "" {
				desc = fmt.Sprintf("run %s (%s)", run.RunID, run.Label)
			}
			if err := replay.WriteFixture(out, replay.FixtureFromRun(run, samples, desc)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d samples to %s\n", len(samples), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id to export")
	cmd.Flags().StringVar(&out, "out", "", "fixture path")
	cmd.Flags().StringVar(&description, "description", "", "fixture description")
	cmd.MarkFlagRequired("run")
	cmd.MarkFlagRequired("out")
	return cmd
}
