package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/signalenv/internal/config"
	"github.com/danielpatrickdp/signalenv/internal/logging"
	"github.com/danielpatrickdp/signalenv/internal/signals"
	"github.com/danielpatrickdp/signalenv/internal/state"
	"github.com/danielpatrickdp/signalenv/internal/telemetry"
)

// #region app
// app carries what every command shares once flags are parsed.
type app struct {
	cfg     config.Config
	loadErr error

	logger        *slog.Logger
	closeLog      func() error
	shutdownTrace func(context.Context) error
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.loadErr != nil {
		return a.loadErr
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	logger, closeLog, err := logging.NewLogger(cmd.ErrOrStderr(), a.cfg.LoggingOptions())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.logger, a.closeLog = logger, closeLog
	slog.SetDefault(logger)

	shutdown, err := telemetry.SetupTracing(cmd.Context(), "signalenv", a.cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	a.shutdownTrace = shutdown
	return nil
}

func (a *app) close() {
	if a.shutdownTrace != nil {
		if err := a.shutdownTrace(context.Background()); err != nil && a.logger != nil {
			a.logger.Warn("trace shutdown", "error", err)
		}
	}
	if a.closeLog != nil {
		a.closeLog()
	}
}

func (a *app) environment() (*signals.Environment, error) {
	env, err := signals.NewEnvironment(a.cfg.SignalConfig())
	if err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	return env, nil
}

func (a *app) openStore() (*state.Store, error) {
	store, err := state.NewStore(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", a.cfg.DBPath, err)
	}
	return store, nil
}

// #endregion app

// #region root
func newRootCmd() (*cobra.Command, *app) {
	a := &app{}
	a.cfg, a.loadErr = config.Load()

	root := &cobra.Command{
		Use:   "signalenv",
		Short: "Deterministic noisy sine-wave signal source for streaming inference",
		Long: `signalenv produces a hidden sinusoidal signal observed through Gaussian
noise of fixed precision. Output is reproducible from the seed.

Settings come from SIGNALENV_* environment variables; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfg.DBPath, "db", a.cfg.DBPath, "path to the run database")
	pf.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "debug, info, warn or error")
	pf.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "text or json")
	pf.StringVar(&a.cfg.LogFile, "log-file", a.cfg.LogFile, "also append JSON logs to this file")
	pf.Uint64Var(&a.cfg.Seed, "seed", a.cfg.Seed, "noise seed")
	pf.Float64Var(&a.cfg.InitialState, "initial-state", a.cfg.InitialState, "initial position on the sine wave")
	pf.Float64Var(&a.cfg.Precision, "precision", a.cfg.Precision, "observation noise precision (1/variance)")

	root.AddCommand(
		newGenerateCmd(a),
		newStreamCmd(a),
		newInferCmd(a),
		newReplayCmd(a),
		newInspectCmd(a),
		newExportFixtureCmd(a),
	)
	return root, a
}

// #endregion root

// openOutput returns stdout for "" or "-", otherwise a created file.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, f.Close, nil
}
