package strategy

// Builtins returns the definitions shipped with the engine
func Builtins() []Definition {
	return []Definition{
		MACrossoverDefinition(),
		RSIReversionDefinition(),
		MultiFactorDefinition(),
		RandomDefinition(),
	}
}

// DefaultRegistry returns a registry preloaded with the built-in strategies
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, def := range Builtins() {
		r.MustRegister(def)
	}
	return r
}
