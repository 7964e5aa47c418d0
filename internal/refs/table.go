// Package refs holds the reference decompositions that rewrite high-level operations
// into primitives while tracing.
//
// A decomposition handles what primitives do not: type promotion, broadcasting,
// defaults and optional arguments. Calls are first canonicalized against the
// operation's signature, so decompositions always see one value per declared
// parameter, in declaration order.
package refs

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/born-ml/prims/internal/signature"
)

// PrimPrefix marks an operation name that bypasses decomposition and emits the
// named primitive as is, e.g. "prims.broadcast_in_dim".
const PrimPrefix = "prims."

// Emitter records a primitive and returns its result. During tracing the result is
// a proxy describing the output tensor.
type Emitter interface {
	Emit(prim string, args []any, kwargs map[string]any) (any, error)
}

// DecomposeFunc rewrites one call into primitives. args has one entry per declared
// parameter of the operation's signature.
type DecomposeFunc func(e Emitter, args []any) (any, error)

// Ref is one reference decomposition.
type Ref struct {
	Name      string
	Signature signature.Signature
	Decompose DecomposeFunc
}

// Table maps operation names to reference decompositions.
type Table struct {
	refs map[string]*Ref
}

// NewTable creates a table with all built-in decompositions.
func NewTable() *Table {
	t := &Table{refs: make(map[string]*Ref)}

	t.registerElementwise()
	t.registerActivations()
	t.registerReductions()
	t.registerShapeOps()

	return t
}

var defaultTable = sync.OnceValue(NewTable)

// Default returns the shared table of built-in decompositions.
func Default() *Table {
	return defaultTable()
}

// Register adds or replaces a decomposition.
func (t *Table) Register(r *Ref) {
	t.refs[r.Name] = r
}

func (t *Table) add(name string, sig signature.Signature, fn DecomposeFunc) {
	t.Register(&Ref{Name: name, Signature: sig, Decompose: fn})
}

// Lookup returns the decomposition registered under name.
func (t *Table) Lookup(name string) (*Ref, bool) {
	r, ok := t.refs[name]
	return r, ok
}

// Names returns all operation names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.refs))
	for name := range t.refs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call decomposes op applied to args and kwargs, emitting primitives through e.
// Unknown operations fail with *UnsupportedOperationError; argument errors from
// canonicalization are returned as is.
func (t *Table) Call(e Emitter, op string, args []any, kwargs map[string]any) (any, error) {
	if prim, ok := strings.CutPrefix(op, PrimPrefix); ok {
		return e.Emit(prim, args, kwargs)
	}
	r, ok := t.refs[op]
	if !ok {
		return nil, &UnsupportedOperationError{Op: op}
	}
	bound, err := r.Signature.Canonicalize(args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("%s%s: %w", op, r.Signature, err)
	}
	return r.Decompose(e, bound.Args)
}
