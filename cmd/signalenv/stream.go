package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/signalenv/internal/codec"
	"github.com/danielpatrickdp/signalenv/internal/engine"
	"github.com/danielpatrickdp/signalenv/internal/feed"
	"github.com/danielpatrickdp/signalenv/internal/gate"
	"github.com/danielpatrickdp/signalenv/internal/logging"
	"github.com/danielpatrickdp/signalenv/internal/mqttpub"
	"github.com/danielpatrickdp/signalenv/internal/server"
	"github.com/danielpatrickdp/signalenv/internal/state"
)

type streamOptions struct {
	steps      int
	interval   time.Duration
	httpAddr   string
	mqttBroker string
	mqttTopic  string
	mqttQoS    uint8
	engineAddr string
	model      string
	freeEnergy bool
	record     bool
	label      string
}

func newStreamCmd(a *app) *cobra.Command {
	opts := streamOptions{}
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Advance the environment in real time and publish each sample",
		Example: `  signalenv stream --steps 500 --http :8080
  signalenv stream --engine localhost:50051 --model random_walk --record
  signalenv stream --mqtt tcp://localhost:1883 --topic lab/signal`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStream(cmd, a, opts)
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.steps, "steps", 0, "stop after N samples, 0 runs until interrupted")
	f.DurationVar(&opts.interval, "interval", a.cfg.Interval, "time between advances, 0 for unpaced")
	f.StringVar(&opts.httpAddr, "http", a.cfg.HTTPAddr, "serve /history, /ws and /metrics on this address")
	f.StringVar(&opts.mqttBroker, "mqtt", a.cfg.MQTTBroker, "publish samples to this MQTT broker")
	f.StringVar(&opts.mqttTopic, "topic", a.cfg.MQTTTopic, "MQTT topic")
	f.Uint8Var(&opts.mqttQoS, "qos", a.cfg.MQTTQoS, "MQTT QoS (0 or 1)")
	f.StringVar(&opts.engineAddr, "engine", a.cfg.EngineAddr, "inference engine gRPC address")
	f.StringVar(&opts.model, "model", a.cfg.Model, "model to run on the engine")
	f.BoolVar(&opts.freeEnergy, "free-energy", false, "request free energy with each update")
	f.BoolVar(&opts.record, "record", false, "store samples and posteriors in the database")
	f.StringVar(&opts.label, "label", "", "label for a recorded run")
	return cmd
}

// streamLine is one line of stream output: an engine update plus the
// priors the autoupdate rules derive from it for the next record.
type streamLine struct {
	engine.Update
	NextPriors map[string]float64 `json:"next_priors,omitempty"`
}

func runStream(cmd *cobra.Command, a *app, opts streamOptions) error {
	if opts.steps < 0 {
		return fmt.Errorf("steps must be >= 0, got %d", opts.steps)
	}
	env, err := a.environment()
	if err != nil {
		return err
	}
	logger := a.logger

	var spec engine.Spec
	if opts.engineAddr != "" || opts.mqttBroker != "" {
		if spec, err = engine.LoadSpec(opts.model); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(cmd.Context())
	// Outputs that only serve the feed stop when it does.
	feedCtx, feedDone := context.WithCancel(gctx)
	defer feedDone()
	var sinks []feed.Sink

	var store *state.Store
	var run state.Run
	if opts.record {
		if store, err = a.openStore(); err != nil {
			return err
		}
		defer store.Close()
		if run, err = store.CreateRun(state.RunConfigFrom(opts.label, env.Config())); err != nil {
			return err
		}
		sinks = append(sinks, state.NewRecorder(store, run.RunID))
		logger.Info("recording run", "run", run.RunID)
	}

	if opts.httpAddr != "" {
		hub := server.NewHub(64, logger)
		sinks = append(sinks, hub)
		srv := server.New(env, hub, store, logger)
		g.Go(func() error { return srv.Run(feedCtx, opts.httpAddr) })
	}

	if opts.mqttBroker != "" {
		mcfg := mqttpub.DefaultConfig()
		mcfg.Broker, mcfg.Topic, mcfg.QoS = opts.mqttBroker, opts.mqttTopic, opts.mqttQoS
		mcfg.Name = spec.Model.Primary()
		pub, err := mqttpub.Connect(mcfg, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	var records chan engine.Record
	if opts.engineAddr != "" {
		client, err := codec.NewEngineClient(opts.engineAddr)
		if err != nil {
			return err
		}
		defer client.Close()

		waitCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
		err = client.WaitReady(waitCtx)
		cancel()
		if err != nil {
			return err
		}

		records = make(chan engine.Record, 16)
		sub, err := client.Subscribe(gctx, spec.StreamRequest(opts.freeEnergy), records)
		if err != nil {
			return err
		}
		defer sub.Stop()
		sinks = append(sinks, feed.ChannelSink{
			Model: spec.Model,
			Gate:  gate.NewGate(a.cfg.GateConfig()),
			Out:   records,
			Done:  sub.Done(),
		})

		out := json.NewEncoder(cmd.OutOrStdout())
		g.Go(func() error {
			for u := range sub.Updates() {
				line := streamLine{Update: u}
				if len(spec.Autoupdate) > 0 {
					next, err := spec.Autoupdate.Apply(u.Posteriors)
					if err != nil {
						logger.Warn("autoupdate", "index", u.Index, "error", err)
					}
					line.NextPriors = next
				}
				if err := out.Encode(line); err != nil {
					return fmt.Errorf("write update: %w", err)
				}
				if store != nil {
					if err := logging.LogUpdate(store.DB(), run.RunID, u.Index+1, u); err != nil {
						return err
					}
				}
			}
			if err := sub.Err(); err != nil && !errors.Is(err, engine.ErrStopped) && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("engine stream: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer feedDone()
		live := feed.Live{Interval: opts.interval, Limit: opts.steps, Sinks: sinks, Logger: logger}
		n, err := live.Run(gctx, env)
		if records != nil {
			close(records)
		}
		logger.Info("feed finished", "samples", n)
		return err
	})

	return g.Wait()
}
