package update

import (
	"math"
	"strings"
	"testing"
)

func normal(name string, mean, variance float64) Posterior {
	return Posterior{Variable: name, Family: FamilyNormal, Params: map[string]float64{"mean": mean, "var": variance}}
}

func gamma(name string, shape, rate float64) Posterior {
	return Posterior{Variable: name, Family: FamilyGamma, Params: map[string]float64{"shape": shape, "rate": rate}}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

// #region apply-tests

func TestApply_RandomWalk(t *testing.T) {
	posts := map[string]Posterior{
		"x":   normal("x", 1.5, 0.25),
		"tau": gamma("tau", 3, 6),
	}
	next, err := RandomWalkRules().Apply(posts)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := map[string]float64{"x_prev_mean": 1.5, "x_prev_var": 0.25, "tau_shape": 3, "tau_rate": 6}
	for k, v := range want {
		if !approx(next[k], v) {
			t.Errorf("%s: expected %f, got %f", k, v, next[k])
		}
	}
	if len(next) != len(want) {
		t.Errorf("expected %d params, got %d", len(want), len(next))
	}
}

func TestApply_MissingVariable(t *testing.T) {
	_, err := RandomWalkRules().Apply(map[string]Posterior{"x": normal("x", 0, 1)})
	if err == nil {
		t.Fatal("expected error for missing tau posterior")
	}
	if !strings.Contains(err.Error(), "tau") {
		t.Errorf("expected error to name tau, got %v", err)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	posts := map[string]Posterior{"x": normal("x", 2, 4)}
	rules := Rules{{Param: "m", Variable: "x", Statistic: StatMean}}
	if _, err := rules.Apply(posts); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if posts["x"].Params["mean"] != 2 || len(posts) != 1 {
		t.Error("input posteriors were modified")
	}
}

func TestApply_NonFinite(t *testing.T) {
	rules := Rules{{Param: "m", Variable: "x", Statistic: StatMean}}
	_, err := rules.Apply(map[string]Posterior{"x": normal("x", math.NaN(), 1)})
	if err == nil {
		t.Fatal("expected error for NaN statistic")
	}
}

func TestParams(t *testing.T) {
	got := RandomWalkRules().Params()
	if strings.Join(got, ",") != "x_prev_mean,x_prev_var,tau_shape,tau_rate" {
		t.Errorf("unexpected params: %v", got)
	}
}

// #endregion apply-tests

// #region extract-tests

func TestExtract_Precision(t *testing.T) {
	v, err := Extract(normal("x", 0, 0.5), StatPrecision)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !approx(v, 2) {
		t.Errorf("expected 2, got %f", v)
	}
	if _, err := Extract(normal("x", 0, 0), StatPrecision); err == nil {
		t.Error("expected error for zero variance")
	}
}

func TestExtract_UnknownStatistic(t *testing.T) {
	if _, err := Extract(normal("x", 0, 1), Statistic("median")); err == nil {
		t.Fatal("expected error for unknown statistic")
	}
}

func TestExtract_ShapeFromNormal(t *testing.T) {
	if _, err := Extract(normal("x", 0, 1), StatShape); err == nil {
		t.Fatal("expected error requesting shape from a normal posterior")
	}
}

// #endregion extract-tests

// #region family-tests

func TestPosterior_Moments(t *testing.T) {
	tests := []struct {
		name     string
		post     Posterior
		mean, vr float64
	}{
		{"normal", normal("x", 3, 2), 3, 2},
		{"gamma", gamma("tau", 2, 4), 0.5, 0.125},
		{"beta", Posterior{Variable: "s", Family: FamilyBeta, Params: map[string]float64{"alpha": 2, "beta": 2}}, 0.5, 0.05},
		{"bernoulli", Posterior{Variable: "b", Family: FamilyBernoulli, Params: map[string]float64{"p": 0.2}}, 0.2, 0.16},
	}
	for _, tt := range tests {
		m, err := tt.post.Mean()
		if err != nil {
			t.Fatalf("%s: Mean: %v", tt.name, err)
		}
		v, err := tt.post.Var()
		if err != nil {
			t.Fatalf("%s: Var: %v", tt.name, err)
		}
		if !approx(m, tt.mean) || !approx(v, tt.vr) {
			t.Errorf("%s: expected (%f, %f), got (%f, %f)", tt.name, tt.mean, tt.vr, m, v)
		}
	}
}

func TestPosterior_MissingParam(t *testing.T) {
	p := Posterior{Variable: "x", Family: FamilyNormal, Params: map[string]float64{"mean": 1}}
	if _, err := p.Var(); err == nil {
		t.Fatal("expected error for missing var")
	}
}

func TestPosterior_UnsupportedFamily(t *testing.T) {
	p := Posterior{Variable: "x", Family: "dirichlet"}
	if _, err := p.Mean(); err == nil {
		t.Fatal("expected error for unsupported family")
	}
}

// #endregion family-tests
