package bus

// Builder is fluent sugar over Register:
//
//	bus.On("user.*").When(filter).Do(handler)
type Builder struct {
	bus      *Bus
	name     string
	patterns []string
	filters  []Filter
}

// On starts a registration for the given patterns.
func (b *Bus) On(patterns ...string) *Builder {
	return &Builder{bus: b, patterns: patterns}
}

// Named labels the registration; the label shows up in logs and recorded
// errors.
func (r *Builder) Named(name string) *Builder {
	r.name = name
	return r
}

// When appends filters; all must pass for the handler to run.
func (r *Builder) When(filters ...Filter) *Builder {
	r.filters = append(r.filters, filters...)
	return r
}

// Do completes the registration with the handler body.
func (r *Builder) Do(h HandlerFunc) (*Registration, error) {
	return r.bus.register(r.name, r.patterns, h, r.filters)
}
