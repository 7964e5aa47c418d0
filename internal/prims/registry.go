// Package prims is the primitive vocabulary every traced graph is built from.
//
// Each Symbol has a direct implementation on the CPU backend, a metadata rule used
// while tracing, and optionally a lowering into a fusion definition. A primitive
// without a lowering can be traced and run directly but not fused.
package prims

import (
	"fmt"
	"sort"
	"sync"

	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/fusion"
	"github.com/born-ml/prims/internal/tensor"
)

// DirectFunc evaluates a primitive on concrete arguments.
type DirectFunc func(b *cpu.CPUBackend, args []any, kwargs map[string]any) (any, error)

// MetaFunc computes the output shape and dtype from argument metadata.
// Tensor arguments implement tensor.Described; scalars are Go numbers.
type MetaFunc func(args []any, kwargs map[string]any) (tensor.Meta, error)

// LoweringFunc records a primitive into a fusion definition. Tensor arguments arrive
// as *fusion.Tensor and scalars as *fusion.Scalar.
type LoweringFunc func(def *fusion.Definition, args []any, kwargs map[string]any) (fusion.Handle, error)

// Symbol is one registered primitive.
type Symbol struct {
	Name  string
	Impl  DirectFunc
	Meta  MetaFunc
	Lower LoweringFunc // nil when the primitive cannot be fused
}

// String returns the qualified name, e.g. "prims.add".
func (s *Symbol) String() string {
	return "prims." + s.Name
}

// Registry maps primitive names to symbols.
type Registry struct {
	mu      sync.RWMutex
	symbols map[string]*Symbol
}

// NewRegistry creates a registry with all built-in primitives.
func NewRegistry() *Registry {
	r := &Registry{
		symbols: make(map[string]*Symbol),
	}

	r.registerElementwise()
	r.registerShapeOps()

	return r
}

var defaultRegistry = sync.OnceValue(NewRegistry)

// Default returns the shared registry of built-in primitives.
func Default() *Registry {
	return defaultRegistry()
}

// Register adds a symbol. Names must be unique and Impl and Meta are required.
func (r *Registry) Register(s *Symbol) error {
	if s == nil || s.Name == "" || s.Impl == nil || s.Meta == nil {
		return fmt.Errorf("prims: symbol needs a name, a direct implementation and a meta rule")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.symbols[s.Name]; exists {
		return fmt.Errorf("prims: %q already registered", s.Name)
	}
	r.symbols[s.Name] = s
	return nil
}

func (r *Registry) mustRegister(s *Symbol) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Lookup returns the symbol registered under name.
func (r *Registry) Lookup(name string) (*Symbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.symbols[name]
	return s, ok
}

// Names returns all registered primitive names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.symbols))
	for name := range r.symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
