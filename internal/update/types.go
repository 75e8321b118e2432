package update

import "fmt"

// #region family

// Family names a posterior distribution family.
type Family string

const (
	FamilyNormal    Family = "normal"    // params: mean, var
	FamilyGamma     Family = "gamma"     // params: shape, rate
	FamilyBeta      Family = "beta"      // params: alpha, beta
	FamilyBernoulli Family = "bernoulli" // params: p
)

// #endregion family

// #region posterior

// Posterior is an engine-reported marginal over one variable.
type Posterior struct {
	Variable string             `json:"variable"`
	Family   Family             `json:"family"`
	Params   map[string]float64 `json:"params"`
}

func (p Posterior) param(name string) (float64, error) {
	v, ok := p.Params[name]
	if !ok {
		return 0, fmt.Errorf("posterior %s (%s) has no %q parameter", p.Variable, p.Family, name)
	}
	return v, nil
}

// Mean returns the distribution mean for any supported family.
func (p Posterior) Mean() (float64, error) {
	switch p.Family {
	case FamilyNormal:
		return p.param("mean")
	case FamilyGamma:
		shape, err := p.param("shape")
		if err != nil {
			return 0, err
		}
		rate, err := p.param("rate")
		if err != nil {
			return 0, err
		}
		return shape / rate, nil
	case FamilyBeta:
		a, err := p.param("alpha")
		if err != nil {
			return 0, err
		}
		b, err := p.param("beta")
		if err != nil {
			return 0, err
		}
		return a / (a + b), nil
	case FamilyBernoulli:
		return p.param("p")
	}
	return 0, fmt.Errorf("unsupported family %q", p.Family)
}

// Var returns the distribution variance for any supported family.
func (p Posterior) Var() (float64, error) {
	switch p.Family {
	case FamilyNormal:
		return p.param("var")
	case FamilyGamma:
		shape, err := p.param("shape")
		if err != nil {
			return 0, err
		}
		rate, err := p.param("rate")
		if err != nil {
			return 0, err
		}
		return shape / (rate * rate), nil
	case FamilyBeta:
		a, err := p.param("alpha")
		if err != nil {
			return 0, err
		}
		b, err := p.param("beta")
		if err != nil {
			return 0, err
		}
		s := a + b
		return a * b / (s * s * (s + 1)), nil
	case FamilyBernoulli:
		q, err := p.param("p")
		if err != nil {
			return 0, err
		}
		return q * (1 - q), nil
	}
	return 0, fmt.Errorf("unsupported family %q", p.Family)
}

// Shape returns the shape parameter of a gamma posterior.
func (p Posterior) Shape() (float64, error) {
	if p.Family != FamilyGamma {
		return 0, fmt.Errorf("shape requested from %s posterior %s", p.Family, p.Variable)
	}
	return p.param("shape")
}

// Rate returns the rate parameter of a gamma posterior.
func (p Posterior) Rate() (float64, error) {
	if p.Family != FamilyGamma {
		return 0, fmt.Errorf("rate requested from %s posterior %s", p.Family, p.Variable)
	}
	return p.param("rate")
}

// #endregion posterior

// #region rule

// Statistic selects what a Rule extracts from a posterior.
type Statistic string

const (
	StatMean      Statistic = "mean"
	StatVar       Statistic = "var"
	StatPrecision Statistic = "precision"
	StatShape     Statistic = "shape"
	StatRate      Statistic = "rate"
)

// Rule maps one prior parameter to a statistic of the previous posterior.
type Rule struct {
	Param     string    `json:"param" yaml:"param" validate:"required"`
	Variable  string    `json:"variable" yaml:"variable" validate:"required"`
	Statistic Statistic `json:"statistic" yaml:"statistic" validate:"required,oneof=mean var precision shape rate"`
}

// Rules is an autoupdate specification, applied once per new observation.
type Rules []Rule

// #endregion rule
