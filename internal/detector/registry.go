package detector

// Registry maps strategy names to detector implementations. The native
// strategy is deliberately absent: its verdict arrives through carrier status
// callbacks, never through this interface.
type Registry struct {
	detectors map[string]Detector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{detectors: make(map[string]Detector)}
}

// Register adds a detector under its own name.
func (r *Registry) Register(d Detector) {
	r.detectors[d.Name()] = d
}

// ForStrategy returns the detector for a strategy, if one is registered.
func (r *Registry) ForStrategy(strategy string) (Detector, bool) {
	d, ok := r.detectors[strategy]
	return d, ok
}
