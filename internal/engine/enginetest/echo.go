// Package enginetest provides an in-process engine.Engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/danielpatrickdp/signalenv/internal/engine"
	"github.com/danielpatrickdp/signalenv/internal/update"
)

// Echo reports each observed value back as the mean of a normal posterior
// over every requested return variable. Variance shrinks as 1/n. Returns
// declared with a Gamma relation get a gamma posterior whose shape and rate
// grow as n/2. Streaming sessions run the request's autoupdate rules on
// each update's posteriors and report the resulting priors on the next one.
type Echo struct {
	// InferErr, when set, is returned by Infer.
	InferErr error
	// CloseAfter, when positive, ends every stream session cleanly after
	// that many updates.
	CloseAfter int

	mu       sync.Mutex
	requests []engine.Request
	streams  []engine.StreamRequest
}

var _ engine.Engine = (*Echo)(nil)

func posteriorsFor(m engine.Model, returns []string, value float64, n int) map[string]engine.Posterior {
	out := make(map[string]engine.Posterior, len(returns))
	for _, name := range returns {
		if m.Distribution(name) == "Gamma" {
			half := 1 + float64(n)/2
			out[name] = engine.Posterior{
				Variable: name,
				Family:   update.FamilyGamma,
				Params:   map[string]float64{"shape": half, "rate": half},
			}
			continue
		}
		out[name] = engine.Posterior{
			Variable: name,
			Family:   update.FamilyNormal,
			Params:   map[string]float64{"mean": value, "var": 1 / float64(n)},
		}
	}
	return out
}

// Infer returns one posterior per record for every return variable.
func (e *Echo) Infer(ctx context.Context, req engine.Request) (engine.Result, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	if e.InferErr != nil {
		return engine.Result{}, e.InferErr
	}
	if err := ctx.Err(); err != nil {
		return engine.Result{}, err
	}
	res := engine.Result{Posteriors: make(map[string][]engine.Posterior)}
	for i, rec := range req.Records {
		for name, p := range posteriorsFor(req.Model, req.Returns, rec.Value, i+1) {
			res.Posteriors[name] = append(res.Posteriors[name], p)
		}
		if req.FreeEnergy {
			res.FreeEnergy = append(res.FreeEnergy, float64(len(req.Records)-i))
		}
	}
	return res, nil
}

// Subscribe emits one update per record until records closes, ctx ends or
// CloseAfter updates have been sent.
func (e *Echo) Subscribe(ctx context.Context, req engine.StreamRequest, records <-chan engine.Record) (*engine.Subscription, error) {
	e.mu.Lock()
	e.streams = append(e.streams, req)
	e.mu.Unlock()

	sub, sctx := engine.NewSubscription(ctx, 16)
	go func() {
		priors := maps.Clone(req.Initial)
		index := 0
		for {
			if e.CloseAfter > 0 && index >= e.CloseAfter {
				sub.Close(nil)
				return
			}
			select {
			case <-sctx.Done():
				sub.Close(sctx.Err())
				return
			case rec, ok := <-records:
				if !ok {
					sub.Close(nil)
					return
				}
				u := engine.Update{
					Index:      index,
					Posteriors: posteriorsFor(req.Model, req.Returns, rec.Value, index+1),
					Priors:     priors,
				}
				if req.FreeEnergy {
					fe := -float64(index)
					u.FreeEnergy = &fe
				}
				next, err := advancePriors(priors, req.Autoupdate, u.Posteriors)
				if err != nil {
					sub.Close(err)
					return
				}
				if !sub.Send(u) {
					sub.Close(sctx.Err())
					return
				}
				priors = next
				index++
			}
		}
	}()
	return sub, nil
}

// advancePriors overlays the autoupdate results on the current priors.
func advancePriors(priors map[string]float64, rules update.Rules, posteriors map[string]engine.Posterior) (map[string]float64, error) {
	if len(rules) == 0 {
		return priors, nil
	}
	updated, err := rules.Apply(posteriors)
	if err != nil {
		return nil, fmt.Errorf("autoupdate: %w", err)
	}
	next := maps.Clone(priors)
	if next == nil {
		next = make(map[string]float64, len(updated))
	}
	maps.Copy(next, updated)
	return next, nil
}

// Requests returns the batch requests received so far.
func (e *Echo) Requests() []engine.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Request(nil), e.requests...)
}

// Streams returns the stream requests received so far.
func (e *Echo) Streams() []engine.StreamRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.StreamRequest(nil), e.streams...)
}
