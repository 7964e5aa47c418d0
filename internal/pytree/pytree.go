// Package pytree flattens nested argument and result structures into leaves and back.
//
// Containers are []any (positional sequences) and map[string]any (keyed mappings).
// Everything else, including nil and typed slices such as []int, is a leaf.
// Mapping children are visited in sorted key order so flattening is deterministic.
package pytree

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the container type of a Spec node.
type Kind int

// Spec node kinds.
const (
	Leaf Kind = iota
	List
	Dict
)

// Spec is the structure of a flattened tree. It is produced only by Flatten.
type Spec struct {
	kind      Kind
	keys      []string // Dict only, sorted
	children  []*Spec
	numLeaves int
}

// Kind returns the container kind of the root node.
func (s *Spec) Kind() Kind {
	return s.kind
}

// NumLeaves returns how many leaves the structure holds.
func (s *Spec) NumLeaves() int {
	return s.numLeaves
}

// Flatten linearizes tree into its leaves and returns the structure needed to rebuild it.
func Flatten(tree any) ([]any, *Spec) {
	leaves := make([]any, 0, 8)
	spec := flatten(tree, &leaves)
	return leaves, spec
}

func flatten(tree any, leaves *[]any) *Spec {
	switch node := tree.(type) {
	case []any:
		spec := &Spec{kind: List, children: make([]*Spec, len(node))}
		for i, child := range node {
			spec.children[i] = flatten(child, leaves)
			spec.numLeaves += spec.children[i].numLeaves
		}
		return spec
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		spec := &Spec{kind: Dict, keys: keys, children: make([]*Spec, len(keys))}
		for i, k := range keys {
			spec.children[i] = flatten(node[k], leaves)
			spec.numLeaves += spec.children[i].numLeaves
		}
		return spec
	default:
		*leaves = append(*leaves, tree)
		return &Spec{kind: Leaf, numLeaves: 1}
	}
}

// Unflatten rebuilds the nested structure described by spec from leaves.
func Unflatten(leaves []any, spec *Spec) (any, error) {
	if spec == nil {
		return nil, fmt.Errorf("pytree: nil spec")
	}
	if len(leaves) != spec.numLeaves {
		return nil, fmt.Errorf("pytree: spec expects %d leaves, got %d", spec.numLeaves, len(leaves))
	}
	tree, _ := unflatten(leaves, spec)
	return tree, nil
}

func unflatten(leaves []any, spec *Spec) (any, []any) {
	switch spec.kind {
	case List:
		out := make([]any, len(spec.children))
		for i, child := range spec.children {
			out[i], leaves = unflatten(leaves, child)
		}
		return out, leaves
	case Dict:
		out := make(map[string]any, len(spec.keys))
		for i, child := range spec.children {
			out[spec.keys[i]], leaves = unflatten(leaves, child)
		}
		return out, leaves
	default:
		return leaves[0], leaves[1:]
	}
}

// Map applies fn to every leaf of tree and returns a tree of the same structure.
func Map(tree any, fn func(leaf any) (any, error)) (any, error) {
	leaves, spec := Flatten(tree)
	for i, leaf := range leaves {
		v, err := fn(leaf)
		if err != nil {
			return nil, err
		}
		leaves[i] = v
	}
	return Unflatten(leaves, spec)
}

// String renders the structure with * for each leaf, e.g. "[*, {a: *, b: [*]}]".
func (s *Spec) String() string {
	var sb strings.Builder
	s.write(&sb)
	return sb.String()
}

func (s *Spec) write(sb *strings.Builder) {
	switch s.kind {
	case List:
		sb.WriteByte('[')
		for i, c := range s.children {
			if i > 0 {
				sb.WriteString(", ")
			}
			c.write(sb)
		}
		sb.WriteByte(']')
	case Dict:
		sb.WriteByte('{')
		for i, c := range s.children {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(s.keys[i])
			sb.WriteString(": ")
			c.write(sb)
		}
		sb.WriteByte('}')
	default:
		sb.WriteByte('*')
	}
}
