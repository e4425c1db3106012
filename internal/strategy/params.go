package strategy

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/yourusername/quantopia/internal/models"
)

// ParamKind is the value type of a strategy parameter
type ParamKind string

const (
	KindInt    ParamKind = "int"
	KindFloat  ParamKind = "float"
	KindBool   ParamKind = "bool"
	KindString ParamKind = "string"
)

// ParamSpec describes one tunable parameter. Min and Max apply to numeric kinds
// when Bounded is set.
type ParamSpec struct {
	Name        string    `json:"name"`
	Kind        ParamKind `json:"kind"`
	Default     any       `json:"default"`
	Bounded     bool      `json:"bounded"`
	Min         float64   `json:"min,omitempty"`
	Max         float64   `json:"max,omitempty"`
	Choices     []string  `json:"choices,omitempty"`
	Description string    `json:"description,omitempty"`
}

// IntParam declares a bounded integer parameter
func IntParam(name string, def int, min, max int, description string) ParamSpec {
	return ParamSpec{Name: name, Kind: KindInt, Default: def, Bounded: true, Min: float64(min), Max: float64(max), Description: description}
}

// FloatParam declares a bounded float parameter
func FloatParam(name string, def, min, max float64, description string) ParamSpec {
	return ParamSpec{Name: name, Kind: KindFloat, Default: def, Bounded: true, Min: min, Max: max, Description: description}
}

// coerce converts raw into the spec's kind, accepting the loose forms that arrive
// from JSON bodies, query strings and YAML.
func (p ParamSpec) coerce(raw any) (any, error) {
	switch p.Kind {
	case KindInt:
		f, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("expected an integer, got %v", raw)
		}
		if err := p.checkBounds(f); err != nil {
			return nil, err
		}
		return int(f), nil
	case KindFloat:
		f, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		if err := p.checkBounds(f); err != nil {
			return nil, err
		}
		return f, nil
	case KindBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected a boolean, got %q", v)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("expected a boolean, got %T", raw)
		}
	case KindString:
		s := fmt.Sprint(raw)
		if len(p.Choices) > 0 {
			for _, c := range p.Choices {
				if c == s {
					return s, nil
				}
			}
			return nil, fmt.Errorf("must be one of %v, got %q", p.Choices, s)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported parameter kind %q", p.Kind)
	}
}

func (p ParamSpec) checkBounds(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("must be finite, got %v", f)
	}
	if p.Bounded && (f < p.Min || f > p.Max) {
		return fmt.Errorf("must be within [%v, %v], got %v", p.Min, p.Max, f)
	}
	return nil
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", raw)
	}
}

// Params holds resolved parameter values. After resolution every declared
// parameter is present with its declared Go type (int, float64, bool, string).
type Params map[string]any

// Int returns an int parameter, or zero when absent
func (p Params) Int(name string) int {
	v, _ := p[name].(int)
	return v
}

// Float returns a float parameter, accepting ints for convenience
func (p Params) Float(name string) float64 {
	switch v := p[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// Bool returns a bool parameter
func (p Params) Bool(name string) bool {
	v, _ := p[name].(bool)
	return v
}

// String returns a string parameter
func (p Params) String(name string) string {
	v, _ := p[name].(string)
	return v
}

// Keys returns parameter names in sorted order
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// resolve applies defaults, coerces raw values and rejects unknown names. It runs
// once per Build call, never per evaluation.
func resolve(strategyName string, specs []ParamSpec, index map[string]int, raw map[string]any) (Params, error) {
	for name := range raw {
		if _, ok := index[name]; !ok {
			return nil, models.NewConfigurationError("params."+name, "unknown parameter for strategy %s", strategyName)
		}
	}

	out := make(Params, len(specs))
	for _, spec := range specs {
		value, ok := raw[spec.Name]
		if !ok || value == nil {
			out[spec.Name] = spec.Default
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			out[spec.Name] = spec.Default
			continue
		}
		coerced, err := spec.coerce(value)
		if err != nil {
			return nil, models.NewConfigurationError("params."+spec.Name, "%v", err)
		}
		out[spec.Name] = coerced
	}
	return out, nil
}
