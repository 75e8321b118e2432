package codec

import (
	"github.com/danielpatrickdp/signalenv/internal/engine"
	"github.com/danielpatrickdp/signalenv/internal/update"
)

// #region service
const (
	serviceName  = "signalenv.inference.v1.InferenceEngine"
	methodInfer  = "/" + serviceName + "/Infer"
	methodStream = "/" + serviceName + "/Stream"
)

// #endregion service

// #region wire-types

// wireRequest mirrors engine.Request with JSON tags.
type wireRequest struct {
	Model       engine.Model       `json:"model"`
	Constraints engine.Constraints `json:"constraints"`
	Records     []engine.Record    `json:"records"`
	Initial     map[string]float64 `json:"initial,omitempty"`
	Returns     []string           `json:"returns"`
	Iterations  int                `json:"iterations,omitempty"`
	FreeEnergy  bool               `json:"free_energy,omitempty"`
}

// wireResult mirrors engine.Result with JSON tags.
type wireResult struct {
	Posteriors map[string][]update.Posterior `json:"posteriors"`
	FreeEnergy []float64                     `json:"free_energy,omitempty"`
}

// wireStreamRequest mirrors engine.StreamRequest with JSON tags.
type wireStreamRequest struct {
	Model       engine.Model       `json:"model"`
	Constraints engine.Constraints `json:"constraints"`
	Autoupdate  update.Rules       `json:"autoupdate,omitempty"`
	Initial     map[string]float64 `json:"initial,omitempty"`
	Returns     []string           `json:"returns"`
	FreeEnergy  bool               `json:"free_energy,omitempty"`
}

// streamFrame is one message on the bidirectional Stream call.
// Client frames carry Open (first) or Record; server frames carry Update.
type streamFrame struct {
	Kind   string             `json:"kind"` // "open" | "record" | "update"
	Open   *wireStreamRequest `json:"open,omitempty"`
	Record *engine.Record     `json:"record,omitempty"`
	Update *engine.Update     `json:"update,omitempty"`
}

// #endregion wire-types

// #region conversions

func toWireRequest(r engine.Request) wireRequest {
	return wireRequest{
		Model:       r.Model,
		Constraints: r.Constraints,
		Records:     r.Records,
		Initial:     r.Initial,
		Returns:     r.Returns,
		Iterations:  r.Iterations,
		FreeEnergy:  r.FreeEnergy,
	}
}

func (w wireRequest) toRequest() engine.Request {
	return engine.Request{
		Model:       w.Model,
		Constraints: w.Constraints,
		Records:     w.Records,
		Initial:     w.Initial,
		Returns:     w.Returns,
		Iterations:  w.Iterations,
		FreeEnergy:  w.FreeEnergy,
	}
}

func toWireStreamRequest(r engine.StreamRequest) *wireStreamRequest {
	return &wireStreamRequest{
		Model:       r.Model,
		Constraints: r.Constraints,
		Autoupdate:  r.Autoupdate,
		Initial:     r.Initial,
		Returns:     r.Returns,
		FreeEnergy:  r.FreeEnergy,
	}
}

func (w wireStreamRequest) toStreamRequest() engine.StreamRequest {
	return engine.StreamRequest{
		Model:       w.Model,
		Constraints: w.Constraints,
		Autoupdate:  w.Autoupdate,
		Initial:     w.Initial,
		Returns:     w.Returns,
		FreeEnergy:  w.FreeEnergy,
	}
}

// #endregion conversions
