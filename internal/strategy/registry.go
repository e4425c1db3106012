package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yourusername/quantopia/internal/models"
)

// Factory builds a strategy from fully resolved parameters
type Factory func(params Params) (Strategy, error)

// Definition is a registry entry: a named strategy and its parameter schema
type Definition struct {
	Name        string
	Description string
	Params      []ParamSpec
	// Validate performs cross-parameter checks after resolution. Optional.
	Validate func(params Params) error
	New      Factory
}

type entry struct {
	def   Definition
	index map[string]int
}

// Registry is a catalogue of strategies keyed by name. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds def to the registry. The schema is checked here so that Build never
// has to re-inspect it.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("strategy name is required")
	}
	if def.New == nil {
		return fmt.Errorf("strategy %s: factory is required", def.Name)
	}

	index := make(map[string]int, len(def.Params))
	for i, spec := range def.Params {
		if spec.Name == "" {
			return fmt.Errorf("strategy %s: parameter %d has no name", def.Name, i)
		}
		if _, dup := index[spec.Name]; dup {
			return fmt.Errorf("strategy %s: duplicate parameter %s", def.Name, spec.Name)
		}
		if _, err := spec.coerce(spec.Default); err != nil {
			return fmt.Errorf("strategy %s: default for %s: %w", def.Name, spec.Name, err)
		}
		index[spec.Name] = i
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("strategy %s already registered", def.Name)
	}
	r.entries[def.Name] = &entry{def: def, index: index}
	return nil
}

// MustRegister is Register for package-level wiring where a failure is a programming error
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns the definition registered under name
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Definition{}, false
	}
	return e.def, true
}

// List returns metadata for all registered strategies sorted by name
func (r *Registry) List() []StrategyMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]StrategyMetadata, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, StrategyMetadata{
			Name:        e.def.Name,
			Description: e.def.Description,
			Params:      append([]ParamSpec(nil), e.def.Params...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve validates raw against the named strategy's schema and returns the
// resolved parameters
func (r *Registry) Resolve(name string, raw map[string]any) (Params, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &models.ConfigurationError{
			Field:  "strategy",
			Reason: fmt.Sprintf("unknown strategy %q", name),
			Err:    models.ErrStrategyNotFound,
		}
	}

	params, err := resolve(name, e.def.Params, e.index, raw)
	if err != nil {
		return nil, err
	}
	if e.def.Validate != nil {
		if err := e.def.Validate(params); err != nil {
			return nil, err
		}
	}
	return params, nil
}

// Build resolves raw and constructs the strategy
func (r *Registry) Build(name string, raw map[string]any) (Strategy, error) {
	params, err := r.Resolve(name, raw)
	if err != nil {
		return nil, err
	}
	def, _ := r.Get(name)
	s, err := def.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build strategy %s: %w", name, err)
	}
	return s, nil
}
