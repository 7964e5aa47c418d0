// Package trace records a function's primitive operations into an operation graph.
//
// The graph is an arena: nodes live in one slice in recorded order and refer to
// graph inputs and earlier nodes by index. Recorded order is a valid topological
// order, so executors replay nodes front to back.
package trace

import (
	"fmt"
	"strings"

	"github.com/born-ml/prims/internal/prims"
	"github.com/born-ml/prims/internal/pytree"
	"github.com/born-ml/prims/internal/tensor"
	"github.com/google/uuid"
)

// RefKind tells what a Ref points at.
type RefKind int

// Ref kinds.
const (
	InputRef RefKind = iota
	NodeRef
)

// Ref points at a graph input or a node output by index.
type Ref struct {
	Kind  RefKind
	Index int
}

// String renders the ref as it appears in a printed graph.
func (r Ref) String() string {
	if r.Kind == InputRef {
		return fmt.Sprintf("%%in%d", r.Index)
	}
	return fmt.Sprintf("%%%d", r.Index)
}

// InputKind classifies a graph input.
type InputKind int

// Input kinds.
const (
	TensorInput InputKind = iota
	ScalarInput
	NoneInput
)

// Placeholder is one flattened graph input.
type Placeholder struct {
	Kind InputKind
	// Meta describes tensor inputs.
	Meta tensor.Meta
	// Value is the concrete scalar seen while tracing. The function body
	// specializes on it, so it is baked into nodes as a literal.
	Value any
}

// Node is one recorded primitive call with a single output.
type Node struct {
	Target *prims.Symbol
	// Args and Kwargs hold Refs, scalar literals and structural literals such as []int.
	Args   []any
	Kwargs map[string]any
	Meta   tensor.Meta
}

// Graph is a traced function.
type Graph struct {
	ID   uuid.UUID
	Name string

	Inputs []Placeholder
	// InputSpec is the structure the flat inputs were flattened from.
	InputSpec *pytree.Spec

	Nodes []Node

	// Output is the result tree with Refs and literals as leaves.
	Output any
}

// NumTensorInputs counts the tensor placeholders.
func (g *Graph) NumTensorInputs() int {
	n := 0
	for _, in := range g.Inputs {
		if in.Kind == TensorInput {
			n++
		}
	}
	return n
}

// Validate checks the arena invariant: every Ref names an input or an earlier node.
func (g *Graph) Validate() error {
	for i, n := range g.Nodes {
		if n.Target == nil {
			return fmt.Errorf("graph %s: node %d has no target", g.Name, i)
		}
		check := func(v any) error { return g.checkRefs(v, i) }
		if err := check(n.Args); err != nil {
			return fmt.Errorf("graph %s: node %d (%s): %w", g.Name, i, n.Target.Name, err)
		}
		if err := check(n.Kwargs); err != nil {
			return fmt.Errorf("graph %s: node %d (%s): %w", g.Name, i, n.Target.Name, err)
		}
	}
	if err := g.checkRefs(g.Output, len(g.Nodes)); err != nil {
		return fmt.Errorf("graph %s: output: %w", g.Name, err)
	}
	return nil
}

// checkRefs verifies every Ref leaf of v points before node limit.
func (g *Graph) checkRefs(v any, limit int) error {
	leaves, _ := pytree.Flatten(v)
	for _, leaf := range leaves {
		r, ok := leaf.(Ref)
		if !ok {
			continue
		}
		switch {
		case r.Kind == InputRef && (r.Index < 0 || r.Index >= len(g.Inputs)):
			return fmt.Errorf("ref %s: no such input", r)
		case r.Kind == NodeRef && (r.Index < 0 || r.Index >= limit):
			return fmt.Errorf("ref %s: forward or dangling reference", r)
		}
	}
	return nil
}

// String prints the graph one node per line.
func (g *Graph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "graph %s (%s)\n", g.Name, g.ID)
	for i, in := range g.Inputs {
		switch in.Kind {
		case TensorInput:
			fmt.Fprintf(&sb, "  %%in%d : %s = input\n", i, in.Meta)
		case ScalarInput:
			fmt.Fprintf(&sb, "  %%in%d = input %v\n", i, in.Value)
		default:
			fmt.Fprintf(&sb, "  %%in%d = input none\n", i)
		}
	}
	for i, n := range g.Nodes {
		args := make([]string, 0, len(n.Args)+len(n.Kwargs))
		for _, a := range n.Args {
			args = append(args, fmt.Sprint(a))
		}
		leaves, _ := pytree.Flatten(n.Kwargs)
		if len(leaves) > 0 {
			args = append(args, fmt.Sprint(n.Kwargs))
		}
		fmt.Fprintf(&sb, "  %%%d : %s = %s(%s)\n", i, n.Meta, n.Target, strings.Join(args, ", "))
	}
	fmt.Fprintf(&sb, "  return %v\n", g.Output)
	return sb.String()
}
