package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/signalenv/internal/codec"
	"github.com/danielpatrickdp/signalenv/internal/engine"
	"github.com/danielpatrickdp/signalenv/internal/eval"
	"github.com/danielpatrickdp/signalenv/internal/feed"
	"github.com/danielpatrickdp/signalenv/internal/gate"
	"github.com/danielpatrickdp/signalenv/internal/logging"
	"github.com/danielpatrickdp/signalenv/internal/state"
	"github.com/danielpatrickdp/signalenv/internal/telemetry"
)

type inferOptions struct {
	engineAddr string
	model      string
	steps      int
	iterations int
	freeEnergy bool
	meanField  bool
	record     bool
	label      string
	wait       time.Duration
}

type inferOutput struct {
	RunID      string                        `json:"run_id,omitempty"`
	Model      string                        `json:"model"`
	Steps      int                           `json:"steps"`
	Posteriors map[string][]engine.Posterior `json:"posteriors"`
	FreeEnergy []float64                     `json:"free_energy,omitempty"`
	Eval       *eval.Result                  `json:"eval,omitempty"`
}

func newInferCmd(a *app) *cobra.Command {
	opts := inferOptions{}
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Generate a dataset and run batch inference on it",
		Example: `  signalenv infer --engine localhost:50051 --steps 300
  signalenv infer --engine localhost:50051 --free-energy --iterations 20`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInfer(cmd, a, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.engineAddr, "engine", a.cfg.EngineAddr, "inference engine gRPC address")
	f.StringVar(&opts.model, "model", a.cfg.Model, "model from the catalog")
	f.IntVar(&opts.steps, "steps", 100, "number of observations")
	f.IntVar(&opts.iterations, "iterations", 0, "engine iterations, 0 for the engine default")
	f.BoolVar(&opts.freeEnergy, "free-energy", false, "request free energy per iteration")
	f.BoolVar(&opts.meanField, "mean-field", false, "factorize every latent variable on its own instead of the model's constraints")
	f.BoolVar(&opts.record, "record", false, "store samples and posteriors in the database")
	f.StringVar(&opts.label, "label", "", "label for a recorded run")
	f.DurationVar(&opts.wait, "wait", 10*time.Second, "how long to wait for the engine to become ready")
	return cmd
}

func runInfer(cmd *cobra.Command, a *app, opts inferOptions) error {
	if opts.engineAddr == "" {
		return fmt.Errorf("--engine is required")
	}
	if opts.steps <= 0 {
		return fmt.Errorf("steps must be > 0, got %d", opts.steps)
	}
	spec, err := engine.LoadSpec(opts.model)
	if err != nil {
		return err
	}
	env, err := a.environment()
	if err != nil {
		return err
	}

	samples := feed.Collect(env, opts.steps)
	records := feed.Records(spec.Model, samples)
	if d := gate.NewGate(a.cfg.GateConfig()).EvaluateBatch(spec.Model, records); !d.Accepted() {
		for _, v := range d.VetoSignals {
			telemetry.GateRejected(string(v.Type))
		}
		return fmt.Errorf("gate: %s", d.Reason)
	}

	client, err := codec.NewEngineClient(opts.engineAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := cmd.Context()
	waitCtx, cancel := context.WithTimeout(ctx, opts.wait)
	err = client.WaitReady(waitCtx)
	cancel()
	if err != nil {
		return err
	}

	req := spec.Request(records, opts.freeEnergy)
	req.Iterations = opts.iterations
	if opts.meanField {
		req.Constraints = engine.MeanField(spec.Model)
	}
	res, err := client.Infer(ctx, req)
	if err != nil {
		return err
	}

	out := inferOutput{
		Model:      spec.Model.Name,
		Steps:      len(samples),
		Posteriors: res.Posteriors,
		FreeEnergy: res.FreeEnergy,
	}
	if means, ok := posteriorMeans(res.Posteriors[spec.Returns[0]], len(samples)); ok {
		history, observations := env.Snapshot()
		r := eval.NewHarness(eval.DefaultConfig()).Run(history, observations, env.Precision(), means)
		out.Eval = &r
	}

	if opts.record {
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		run, err := store.CreateRun(state.RunConfigFrom(opts.label, env.Config()))
		if err != nil {
			return err
		}
		if err := store.AppendSamples(run.RunID, samples); err != nil {
			return err
		}
		if err := logPosteriors(store, run.RunID, res); err != nil {
			return err
		}
		out.RunID = run.RunID
		a.logger.Info("run recorded", "run", run.RunID)
	}

	return writeJSON(cmd.OutOrStdout(), out)
}

// posteriorMeans extracts one mean per step when the engine returned a
// posterior for every record.
func posteriorMeans(ps []engine.Posterior, n int) ([]float64, bool) {
	if len(ps) != n {
		return nil, false
	}
	out := make([]float64, n)
	for i, p := range ps {
		m, err := p.Mean()
		if err != nil {
			return nil, false
		}
		out[i] = m
	}
	return out, true
}

func logPosteriors(store *state.Store, runID string, res engine.Result) error {
	for name, ps := range res.Posteriors {
		for i, p := range ps {
			if p.Variable == "" {
				p.Variable = name
			}
			entry := logging.PosteriorEntry{RunID: runID, Step: i + 1, Posterior: p}
			if err := logging.LogPosterior(store.DB(), entry); err != nil {
				return err
			}
		}
	}
	return nil
}
