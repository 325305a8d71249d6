package mapping

import (
	"fmt"

	"graph-loader/pkg/types"
)

// Registry holds the schemas for one run, keyed by name.
type Registry struct {
	schemas map[string]*EntitySchema
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*EntitySchema)}
}

// Register adds a schema. Duplicate names are an error.
func (r *Registry) Register(s *EntitySchema) error {
	if _, ok := r.schemas[s.Name]; ok {
		return fmt.Errorf("schema %q already registered", s.Name)
	}
	r.schemas[s.Name] = s
	return nil
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*EntitySchema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("no schema registered for %q", name)
	}
	return s, nil
}

// FromConfig builds a registry covering every enabled file spec in cfg.
func FromConfig(cfg *types.Config) (*Registry, error) {
	r := NewRegistry()
	for _, spec := range append(append([]types.FileSpec(nil), cfg.Entities...), cfg.Relationships...) {
		if !spec.Enabled {
			continue
		}
		s, err := FromSpec(spec)
		if err != nil {
			return nil, err
		}
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}
