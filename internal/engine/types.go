package engine

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/signalenv/internal/update"
)

// #region errors

// ErrStopped is reported by a subscription that was stopped by its consumer.
var ErrStopped = errors.New("subscription stopped")

// #endregion errors

// #region model

// Role classifies a model variable.
type Role string

const (
	RoleLatent   Role = "latent"
	RoleObserved Role = "observed"
	RolePrior    Role = "prior"    // hyperparameter supplied per run or by autoupdate
	RoleConstant Role = "constant" // fixed value carried in the model
)

// Variable is a named random variable or parameter.
type Variable struct {
	Name  string   `json:"name" yaml:"name" validate:"required"`
	Role  Role     `json:"role" yaml:"role" validate:"required,oneof=latent observed prior constant"`
	Value *float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

// Relation declares Target ~ Distribution(Args...).
type Relation struct {
	Target       string   `json:"target" yaml:"target" validate:"required"`
	Distribution string   `json:"distribution" yaml:"distribution" validate:"required"`
	Args         []string `json:"args" yaml:"args" validate:"required,min=1"`
}

// Model is a declarative description handed wholesale to the engine.
type Model struct {
	Name      string     `json:"name" yaml:"name" validate:"required"`
	Observed  []string   `json:"observed" yaml:"observed" validate:"required,min=1"`
	Variables []Variable `json:"variables" yaml:"variables" validate:"required,min=1,dive"`
	Relations []Relation `json:"relations" yaml:"relations" validate:"required,min=1,dive"`
}

// Constraints is a factorization over approximate posteriors. Each group
// keeps a joint posterior; variables in different groups are independent.
// An empty factorization leaves the posterior unconstrained.
type Constraints struct {
	Factorization [][]string `json:"factorization" yaml:"factorization"`
}

// #endregion model

// #region spec

// Spec bundles everything the catalog knows about a model.
type Spec struct {
	Model       Model              `yaml:"model"`
	Constraints Constraints        `yaml:"constraints"`
	Autoupdate  update.Rules       `yaml:"autoupdate" validate:"omitempty,dive"`
	Initial     map[string]float64 `yaml:"initial"`
	Returns     []string           `yaml:"returns" validate:"required,min=1"`
}

// #endregion spec

// #region records

// Record is one observation keyed by an observed variable name.
type Record struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Posterior is an alias so callers need only this package for engine output.
type Posterior = update.Posterior

// #endregion records

// #region requests

// Request is a batch inference call over a finite dataset.
type Request struct {
	Model       Model
	Constraints Constraints
	Records     []Record
	Initial     map[string]float64
	Returns     []string
	Iterations  int  // 0 lets the engine choose
	FreeEnergy  bool // request the per-iteration free-energy trace
}

// Result carries per-record marginals for every requested variable.
type Result struct {
	Posteriors map[string][]Posterior
	FreeEnergy []float64
}

// StreamRequest configures a push-based inference session.
type StreamRequest struct {
	Model       Model
	Constraints Constraints
	Autoupdate  update.Rules
	Initial     map[string]float64
	Returns     []string
	FreeEnergy  bool
}

// Update is the engine's output after processing one streamed record.
// Priors holds the prior parameters the engine used for this record: the
// initial values first, then whatever the autoupdate rules produced.
type Update struct {
	Index      int                  `json:"index"`
	Posteriors map[string]Posterior `json:"posteriors"`
	Priors     map[string]float64   `json:"priors,omitempty"`
	FreeEnergy *float64             `json:"free_energy,omitempty"`
}

// #endregion requests

// #region engine

// Engine is the black-box inference capability. Implementations live out of
// process; see the codec package for the gRPC transport.
type Engine interface {
	// Infer runs inference over a finite batch of records.
	Infer(ctx context.Context, req Request) (Result, error)
	// Subscribe starts a live session fed from records. The session ends when
	// records is closed, ctx is cancelled, or the subscription is stopped.
	Subscribe(ctx context.Context, req StreamRequest, records <-chan Record) (*Subscription, error)
}

// #endregion engine
