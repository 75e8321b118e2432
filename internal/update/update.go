package update

import (
	"fmt"
	"math"
)

// #region apply

// Apply evaluates every rule against the previous step's posteriors and
// returns the prior parameters for the next step. It is pure: the input map
// is not modified.
func (rs Rules) Apply(posteriors map[string]Posterior) (map[string]float64, error) {
	next := make(map[string]float64, len(rs))
	for _, r := range rs {
		post, ok := posteriors[r.Variable]
		if !ok {
			return nil, fmt.Errorf("autoupdate %s: no posterior for %s", r.Param, r.Variable)
		}
		v, err := Extract(post, r.Statistic)
		if err != nil {
			return nil, fmt.Errorf("autoupdate %s: %w", r.Param, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("autoupdate %s: %s of %s is not finite", r.Param, r.Statistic, r.Variable)
		}
		next[r.Param] = v
	}
	return next, nil
}

// Extract computes a single statistic from a posterior.
func Extract(p Posterior, stat Statistic) (float64, error) {
	switch stat {
	case StatMean:
		return p.Mean()
	case StatVar:
		return p.Var()
	case StatPrecision:
		v, err := p.Var()
		if err != nil {
			return 0, err
		}
		if v == 0 {
			return 0, fmt.Errorf("precision of %s: zero variance", p.Variable)
		}
		return 1 / v, nil
	case StatShape:
		return p.Shape()
	case StatRate:
		return p.Rate()
	}
	return 0, fmt.Errorf("unknown statistic %q", stat)
}

// Params lists the prior parameters the rules produce, in rule order.
func (rs Rules) Params() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Param
	}
	return out
}

// #endregion apply

// #region presets

// RandomWalkRules is the autoupdate set for the streaming random-walk model:
// the latent prior and the noise-precision prior track the last posterior.
func RandomWalkRules() Rules {
	return Rules{
		{Param: "x_prev_mean", Variable: "x", Statistic: StatMean},
		{Param: "x_prev_var", Variable: "x", Statistic: StatVar},
		{Param: "tau_shape", Variable: "tau", Statistic: StatShape},
		{Param: "tau_rate", Variable: "tau", Statistic: StatRate},
	}
}

// #endregion presets
