package engine

import (
	"embed"
	"fmt"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// #region catalog

//go:embed models/*.yaml
var modelFiles embed.FS

var validate = validator.New()

// ModelNames lists the models bundled with the binary.
func ModelNames() []string {
	entries, err := modelFiles.ReadDir("models")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// LoadSpec loads and validates a bundled model by name.
func LoadSpec(name string) (Spec, error) {
	data, err := modelFiles.ReadFile(path.Join("models", name+".yaml"))
	if err != nil {
		return Spec{}, fmt.Errorf("unknown model %q (available: %s)", name, strings.Join(ModelNames(), ", "))
	}
	return ParseSpec(data)
}

// ParseSpec decodes a YAML model description and validates it.
func ParseSpec(data []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Spec{}, fmt.Errorf("parse model: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// #endregion catalog

// #region validate

// Validate checks struct constraints and cross references between
// variables, relations, constraints, autoupdate rules and initial values.
func (s Spec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("validate model: %w", err)
	}
	if err := s.Model.Validate(); err != nil {
		return err
	}
	m := s.Model
	for _, group := range s.Constraints.Factorization {
		for _, name := range group {
			if m.Role(name) != RoleLatent {
				return fmt.Errorf("model %s: factorization names %q, which is not a latent variable", m.Name, name)
			}
		}
	}
	for _, r := range s.Returns {
		if m.Role(r) != RoleLatent {
			return fmt.Errorf("model %s: return %q is not a latent variable", m.Name, r)
		}
	}
	seen := make(map[string]bool, len(s.Autoupdate))
	for _, param := range s.Autoupdate.Params() {
		if seen[param] {
			return fmt.Errorf("model %s: autoupdate sets %q twice", m.Name, param)
		}
		seen[param] = true
	}
	for _, rule := range s.Autoupdate {
		if m.Role(rule.Param) != RolePrior {
			return fmt.Errorf("model %s: autoupdate param %q is not a prior", m.Name, rule.Param)
		}
		if m.Role(rule.Variable) != RoleLatent {
			return fmt.Errorf("model %s: autoupdate variable %q is not latent", m.Name, rule.Variable)
		}
	}
	for name, v := range s.Initial {
		if m.Role(name) != RolePrior {
			return fmt.Errorf("model %s: initial value for %q, which is not a prior", m.Name, name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("model %s: initial value for %q is not finite", m.Name, name)
		}
	}
	for _, v := range m.Variables {
		if v.Role != RolePrior {
			continue
		}
		if _, ok := s.Initial[v.Name]; !ok {
			return fmt.Errorf("model %s: prior %q has no initial value", m.Name, v.Name)
		}
	}
	return nil
}

// Validate checks the model in isolation.
func (m Model) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("validate model: %w", err)
	}
	seen := make(map[string]bool, len(m.Variables))
	for _, v := range m.Variables {
		if seen[v.Name] {
			return fmt.Errorf("model %s: duplicate variable %q", m.Name, v.Name)
		}
		seen[v.Name] = true
		if v.Role == RoleConstant && v.Value == nil {
			return fmt.Errorf("model %s: constant %q has no value", m.Name, v.Name)
		}
	}
	for _, name := range m.Observed {
		if m.Role(name) != RoleObserved {
			return fmt.Errorf("model %s: %q is listed as observed but declared %q", m.Name, name, m.Role(name))
		}
	}
	for _, r := range m.Relations {
		if !seen[r.Target] {
			return fmt.Errorf("model %s: relation target %q is not declared", m.Name, r.Target)
		}
		for _, a := range r.Args {
			if !seen[a] {
				return fmt.Errorf("model %s: %s ~ %s references undeclared %q", m.Name, r.Target, r.Distribution, a)
			}
		}
	}
	return nil
}

// Role returns the declared role of name, or "" if it is not declared.
func (m Model) Role(name string) Role {
	for _, v := range m.Variables {
		if v.Name == name {
			return v.Role
		}
	}
	return ""
}

// Distribution returns the distribution name of the relation targeting
// name, or "" if name is not a relation target.
func (m Model) Distribution(name string) string {
	for _, r := range m.Relations {
		if r.Target == name {
			return r.Distribution
		}
	}
	return ""
}

// Primary returns the first observed variable, the one streamed records use.
func (m Model) Primary() string {
	if len(m.Observed) == 0 {
		return ""
	}
	return m.Observed[0]
}

// IsObserved reports whether name is an observed variable of m.
func (m Model) IsObserved(name string) bool {
	for _, o := range m.Observed {
		if o == name {
			return true
		}
	}
	return false
}

// #endregion validate

// #region helpers

// MeanField returns a factorization placing every latent variable in its
// own group.
func MeanField(m Model) Constraints {
	var c Constraints
	for _, v := range m.Variables {
		if v.Role == RoleLatent {
			c.Factorization = append(c.Factorization, []string{v.Name})
		}
	}
	return c
}

// RecordsFor shapes a series of values into records for m's primary
// observed variable.
func RecordsFor(m Model, values []float64) []Record {
	name := m.Primary()
	out := make([]Record, len(values))
	for i, v := range values {
		out[i] = Record{Name: name, Value: v}
	}
	return out
}

// Request builds a batch request from the spec.
func (s Spec) Request(records []Record, freeEnergy bool) Request {
	return Request{
		Model:       s.Model,
		Constraints: s.Constraints,
		Records:     records,
		Initial:     s.Initial,
		Returns:     s.Returns,
		FreeEnergy:  freeEnergy,
	}
}

// StreamRequest builds a streaming request from the spec.
func (s Spec) StreamRequest(freeEnergy bool) StreamRequest {
	return StreamRequest{
		Model:       s.Model,
		Constraints: s.Constraints,
		Autoupdate:  s.Autoupdate,
		Initial:     s.Initial,
		Returns:     s.Returns,
		FreeEnergy:  freeEnergy,
	}
}

// #endregion helpers
