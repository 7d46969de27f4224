package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors for the pipeline package.
var (
	// ErrStageAlreadyRegistered is returned when registering a duplicate stage.
	ErrStageAlreadyRegistered = errors.New("stage already registered")

	// ErrStageNotFound is returned for an unknown stage or dependency.
	ErrStageNotFound = errors.New("stage not found")

	// ErrDependencyCycle is returned when stage dependencies form a cycle.
	ErrDependencyCycle = errors.New("dependency cycle detected")
)

// Registry holds the stages of a pipeline in registration order.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]Stage
	order  []string
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Stage)}
}

// Register adds a stage. Names must be unique.
func (r *Registry) Register(s Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.stages[name]; exists {
		return fmt.Errorf("%w: %s", ErrStageAlreadyRegistered, name)
	}
	r.stages[name] = s
	r.order = append(r.order, name)
	return nil
}

// Get returns a stage by name.
func (r *Registry) Get(name string) (Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stages[name]
	return s, ok
}

// List returns all stages in registration order.
func (r *Registry) List() []Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Stage, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.stages[name])
	}
	return out
}

// Levels groups stages by dependency depth: level 0 has no dependencies and
// every later stage depends only on stages in earlier levels, so the stages
// of one level can run concurrently. Registration order is kept within a
// level.
func (r *Registry) Levels() ([][]Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		for _, dep := range r.stages[name].Dependencies() {
			if _, ok := r.stages[dep]; !ok {
				return nil, fmt.Errorf("%w: stage %q depends on %q", ErrStageNotFound, name, dep)
			}
		}
	}

	depth := make(map[string]int, len(r.order))
	var levels [][]Stage
	for placed := 0; placed < len(r.order); {
		var level []Stage
		for _, name := range r.order {
			if _, done := depth[name]; done {
				continue
			}
			ready := true
			for _, dep := range r.stages[name].Dependencies() {
				if _, done := depth[dep]; !done {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, r.stages[name])
			}
		}
		if len(level) == 0 {
			return nil, ErrDependencyCycle
		}
		for _, s := range level {
			depth[s.Name()] = len(levels)
		}
		placed += len(level)
		levels = append(levels, level)
	}
	return levels, nil
}

// Ordered returns the stages in an order that satisfies every dependency.
func (r *Registry) Ordered() ([]Stage, error) {
	levels, err := r.Levels()
	if err != nil {
		return nil, err
	}
	var out []Stage
	for _, level := range levels {
		out = append(out, level...)
	}
	return out, nil
}

// Validate checks that every dependency exists and that there is no cycle.
func (r *Registry) Validate() error {
	_, err := r.Levels()
	return err
}

// Closure returns the names of the given stage and everything it depends
// on, transitively.
func (r *Registry) Closure(name string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]bool)
	var visit func(string) error
	visit = func(n string) error {
		if out[n] {
			return nil
		}
		s, ok := r.stages[n]
		if !ok {
			return fmt.Errorf("%w: %s", ErrStageNotFound, n)
		}
		out[n] = true
		for _, dep := range s.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(name); err != nil {
		return nil, err
	}
	return out, nil
}
