package report

import (
	"fmt"
	"sort"
)

// Registry manages reporters by name.
type Registry struct {
	reporters map[string]Reporter
}

// NewRegistry creates an empty reporter registry.
func NewRegistry() *Registry {
	return &Registry{reporters: make(map[string]Reporter)}
}

// Register adds a reporter to the registry.
func (r *Registry) Register(rep Reporter) {
	r.reporters[rep.Name()] = rep
}

// Get retrieves a reporter by name.
func (r *Registry) Get(name string) (Reporter, error) {
	rep, ok := r.reporters[name]
	if !ok {
		return nil, fmt.Errorf("report %q not found", name)
	}
	return rep, nil
}

// All returns all registered reporters sorted by name.
func (r *Registry) All() []Reporter {
	result := make([]Reporter, 0, len(r.reporters))
	for _, rep := range r.reporters {
		result = append(result, rep)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}
