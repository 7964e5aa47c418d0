// Package signature canonicalizes calls against a declared parameter list.
//
// A call made with positional and keyword arguments is merged with the declared
// defaults into one flat argument list. The Bound result can split any list of the
// same arity back into the positional prefix and keyword mapping the callee expects,
// which is how a function with an arbitrary signature is traced as a function of
// purely positional inputs.
package signature

import (
	"fmt"
	"strings"
)

// Kind tells how a parameter may be supplied.
type Kind int

// Parameter kinds.
const (
	PositionalOrKeyword Kind = iota
	PositionalOnly
	KeywordOnly
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case PositionalOnly:
		return "positional-only"
	case KeywordOnly:
		return "keyword-only"
	default:
		return "positional-or-keyword"
	}
}

// Param is one declared parameter.
type Param struct {
	Name       string
	Kind       Kind
	Default    any
	HasDefault bool
}

// Required declares a positional-or-keyword parameter without a default.
func Required(name string) Param {
	return Param{Name: name}
}

// Optional declares a positional-or-keyword parameter with a default.
func Optional(name string, def any) Param {
	return Param{Name: name, Default: def, HasDefault: true}
}

// Signature is an ordered parameter list.
// Positional-only parameters come first and keyword-only parameters last.
type Signature struct {
	Params []Param
}

// New builds a Signature and validates parameter ordering.
func New(params ...Param) (Signature, error) {
	s := Signature{Params: params}
	if err := s.Validate(); err != nil {
		return Signature{}, err
	}
	return s, nil
}

// MustNew is New that panics on an invalid declaration. Intended for package-level tables.
func MustNew(params ...Param) Signature {
	s, err := New(params...)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks names are unique and kinds and defaults appear in a callable order.
func (s Signature) Validate() error {
	seen := make(map[string]bool, len(s.Params))
	lastKind := PositionalOnly
	sawDefault := false
	for i, p := range s.Params {
		if p.Name == "" {
			return fmt.Errorf("signature: parameter %d has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("signature: duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true

		if rank(p.Kind) < rank(lastKind) {
			return fmt.Errorf("signature: %s parameter %q follows a %s parameter", p.Kind, p.Name, lastKind)
		}
		lastKind = p.Kind

		if p.Kind == KeywordOnly {
			continue
		}
		if p.HasDefault {
			sawDefault = true
		} else if sawDefault {
			return fmt.Errorf("signature: required parameter %q follows a parameter with a default", p.Name)
		}
	}
	return nil
}

func rank(k Kind) int {
	switch k {
	case PositionalOnly:
		return 0
	case PositionalOrKeyword:
		return 1
	default:
		return 2
	}
}

// String renders the signature, e.g. "(a, /, b, c=2, *, d=true)".
func (s Signature) String() string {
	parts := make([]string, 0, len(s.Params)+2)
	starred := false
	for i, p := range s.Params {
		if p.Kind == KeywordOnly && !starred {
			parts = append(parts, "*")
			starred = true
		}
		part := p.Name
		if p.HasDefault {
			part = fmt.Sprintf("%s=%v", p.Name, p.Default)
		}
		parts = append(parts, part)
		if p.Kind == PositionalOnly && (i+1 == len(s.Params) || s.Params[i+1].Kind != PositionalOnly) {
			parts = append(parts, "/")
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Bound is a call merged with its defaults into one flat positional list.
type Bound struct {
	// Args holds the positional prefix followed by one value per keyword.
	Args []any
	// NumPositional is the length of the positional prefix.
	NumPositional int
	// Keywords names Args[NumPositional:] in declaration order.
	Keywords []string
}

// Canonicalize merges args and kwargs with the declared defaults.
//
// Parameters satisfied positionally keep their position. Every later parameter takes
// the caller's keyword value when present, else its default. A parameter that is
// neither supplied nor defaulted fails with *MissingParameterError.
func (s Signature) Canonicalize(args []any, kwargs map[string]any) (*Bound, error) {
	nargs := len(args)
	if nargs > len(s.Params) || (nargs > 0 && s.Params[nargs-1].Kind == KeywordOnly) {
		return nil, &ArgumentError{Reason: fmt.Sprintf("takes %d positional arguments but %d were given", s.numPositional(), nargs)}
	}

	index := make(map[string]int, len(s.Params))
	for i, p := range s.Params {
		index[p.Name] = i
	}
	for name := range kwargs {
		i, ok := index[name]
		switch {
		case !ok:
			return nil, &ArgumentError{Param: name, Reason: "unexpected keyword argument"}
		case s.Params[i].Kind == PositionalOnly:
			return nil, &ArgumentError{Param: name, Reason: "positional-only argument passed as keyword"}
		case i < nargs:
			return nil, &ArgumentError{Param: name, Reason: "got multiple values for argument"}
		}
	}

	b := &Bound{
		Args:          make([]any, 0, len(s.Params)),
		NumPositional: nargs,
	}
	b.Args = append(b.Args, args...)
	for i := nargs; i < len(s.Params); i++ {
		p := s.Params[i]
		v, ok := kwargs[p.Name]
		if !ok {
			if !p.HasDefault {
				return nil, &MissingParameterError{Param: p.Name, Kind: p.Kind}
			}
			v = p.Default
		}
		b.Args = append(b.Args, v)
		// Positional-only parameters cannot travel as keywords, so they extend the prefix.
		if p.Kind == PositionalOnly {
			b.NumPositional = i + 1
		} else {
			b.Keywords = append(b.Keywords, p.Name)
		}
	}
	return b, nil
}

func (s Signature) numPositional() int {
	n := 0
	for _, p := range s.Params {
		if p.Kind != KeywordOnly {
			n++
		}
	}
	return n
}

// Split re-splits a flat list of the bound arity into the original call shape.
func (b *Bound) Split(flat []any) ([]any, map[string]any, error) {
	if len(flat) != len(b.Args) {
		return nil, nil, &ArgumentError{Reason: fmt.Sprintf("adapter expects %d arguments, got %d", len(b.Args), len(flat))}
	}
	args := append([]any(nil), flat[:b.NumPositional]...)
	kwargs := make(map[string]any, len(b.Keywords))
	for i, name := range b.Keywords {
		kwargs[name] = flat[b.NumPositional+i]
	}
	return args, kwargs, nil
}

// Adapt wraps fn so it can be called with a flat list matching b.
func (b *Bound) Adapt(fn func(args []any, kwargs map[string]any) (any, error)) func(flat []any) (any, error) {
	return func(flat []any) (any, error) {
		args, kwargs, err := b.Split(flat)
		if err != nil {
			return nil, err
		}
		return fn(args, kwargs)
	}
}
