package gate

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/signalenv/internal/engine"
)

// #region gate
// Gate decides whether observation records are well-formed for a model.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate collects every veto for rec; any veto rejects it.
func (g *Gate) Evaluate(model engine.Model, rec engine.Record) GateDecision {
	var vetoes []VetoSignal

	if math.IsNaN(rec.Value) || math.IsInf(rec.Value, 0) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoNonFinite,
			Reason: fmt.Sprintf("value %v is not finite", rec.Value),
		})
	}

	if !model.IsObserved(rec.Name) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoNameMismatch,
			Reason: fmt.Sprintf("%q is not an observed variable of %s", rec.Name, model.Name),
		})
	}

	if g.config.MaxAbsValue > 0 && math.Abs(rec.Value) > g.config.MaxAbsValue {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoOutOfRange,
			Reason: fmt.Sprintf("|%.4f| exceeds cap %.4f", rec.Value, g.config.MaxAbsValue),
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
			Index:       -1,
		}
	}
	return GateDecision{Action: "accept", Reason: "record admitted", Index: -1}
}

// EvaluateBatch returns the decision for the first rejected record, or an
// accept decision when every record passes.
func (g *Gate) EvaluateBatch(model engine.Model, recs []engine.Record) GateDecision {
	for i, rec := range recs {
		d := g.Evaluate(model, rec)
		if !d.Accepted() {
			d.Index = i
			d.Reason = fmt.Sprintf("record %d: %s", i, d.Reason)
			return d
		}
	}
	return GateDecision{
		Action: "accept",
		Reason: fmt.Sprintf("%d records admitted", len(recs)),
		Index:  -1,
	}
}

// #endregion gate
