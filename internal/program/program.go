// Package program loads traced-function programs from HCL files.
//
// A program declares named input tensors, functions whose result expressions call
// reference operations, and a run block selecting what to call:
//
//	input "x" {
//	  dtype = "float32"
//	  shape = [2, 3]
//	  data  = [1, 2, 3, 4, 5, 6]
//	}
//
//	function "scale_add" {
//	  param "a" {}
//	  param "b" {}
//	  param "c" { default = 2.5 }
//	  result = add(mul(a, c), b)
//	}
//
//	run {
//	  function = "scale_add"
//	  args     = [x, x]
//	  kwargs   = { c = 0.5 }
//	  executor = "fusion"
//	}
package program

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/born-ml/prims/internal/ctxlog"
	"github.com/born-ml/prims/internal/executor"
	"github.com/born-ml/prims/internal/signature"
	"github.com/born-ml/prims/internal/tensor"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// fileRoot decodes every top-level block of a program file.
type fileRoot struct {
	Inputs    []*inputBlock    `hcl:"input,block"`
	Functions []*functionBlock `hcl:"function,block"`
	Runs      []*runBlock      `hcl:"run,block"`
}

type inputBlock struct {
	Name  string    `hcl:"name,label"`
	DType string    `hcl:"dtype,optional"`
	Shape []int     `hcl:"shape"`
	Data  []float64 `hcl:"data"`
	// Permute exposes the tensor as a strided view with reordered dimensions.
	Permute []int `hcl:"permute,optional"`
}

type functionBlock struct {
	Name   string         `hcl:"name,label"`
	Params []*paramBlock  `hcl:"param,block"`
	Result hcl.Expression `hcl:"result"`
}

type paramBlock struct {
	Name        string     `hcl:"name,label"`
	Default     *cty.Value `hcl:"default,optional"`
	KeywordOnly bool       `hcl:"keyword_only,optional"`
}

type runBlock struct {
	Function string         `hcl:"function"`
	Args     hcl.Expression `hcl:"args,optional"`
	Kwargs   hcl.Expression `hcl:"kwargs,optional"`
	Executor string         `hcl:"executor,optional"`
}

// Program is a loaded program file.
type Program struct {
	Inputs    map[string]*tensor.RawTensor
	Functions map[string]*executor.Traced
	Run       *Run
}

// Run is the call selected by the run block, with arguments evaluated.
type Run struct {
	Function string
	Args     []any
	Kwargs   map[string]any
	// Executor is empty when the file does not choose one.
	Executor string
}

// Load reads and parses the program file at path.
func Load(ctx context.Context, path string) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program %s: %w", path, err)
	}
	return Parse(ctx, src, path)
}

// Parse parses program source. filename is used in diagnostics only.
func Parse(ctx context.Context, src []byte, filename string) (*Program, error) {
	logger := ctxlog.FromContext(ctx)

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse program %s: %w", filename, diags)
	}
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode program %s: %w", filename, diags)
	}

	p := &Program{
		Inputs:    make(map[string]*tensor.RawTensor, len(root.Inputs)),
		Functions: make(map[string]*executor.Traced, len(root.Functions)),
	}
	for _, in := range root.Inputs {
		if _, dup := p.Inputs[in.Name]; dup {
			return nil, fmt.Errorf("%s: input %q declared twice", filename, in.Name)
		}
		t, err := in.build()
		if err != nil {
			return nil, fmt.Errorf("%s: input %q: %w", filename, in.Name, err)
		}
		p.Inputs[in.Name] = t
	}
	for _, fb := range root.Functions {
		if _, dup := p.Functions[fb.Name]; dup {
			return nil, fmt.Errorf("%s: function %q declared twice", filename, fb.Name)
		}
		fn, err := fb.build()
		if err != nil {
			return nil, fmt.Errorf("%s: function %q: %w", filename, fb.Name, err)
		}
		p.Functions[fb.Name] = executor.MakeTraced(fn)
	}

	switch len(root.Runs) {
	case 0:
	case 1:
		run, err := root.Runs[0].build(p)
		if err != nil {
			return nil, fmt.Errorf("%s: run: %w", filename, err)
		}
		p.Run = run
	default:
		return nil, fmt.Errorf("%s: at most one run block is allowed, got %d", filename, len(root.Runs))
	}

	logger.Debug("Program loaded.", "file", filename, "inputs", len(p.Inputs), "functions", len(p.Functions),
		"run", p.Run != nil)
	return p, nil
}

// FunctionNames returns the declared function names in sorted order.
func (p *Program) FunctionNames() []string {
	names := make([]string, 0, len(p.Functions))
	for name := range p.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (in *inputBlock) build() (*tensor.RawTensor, error) {
	dtype := tensor.Float32
	if in.DType != "" {
		dt, err := tensor.ParseDataType(in.DType)
		if err != nil {
			return nil, err
		}
		dtype = dt
	}
	t, err := tensor.FromValues(in.Data, in.Shape, dtype)
	if err != nil {
		return nil, err
	}
	if len(in.Permute) > 0 {
		return t.Permute(in.Permute...)
	}
	return t, nil
}

func (fb *functionBlock) build() (executor.Function, error) {
	params := make([]signature.Param, len(fb.Params))
	names := make([]string, len(fb.Params))
	for i, pb := range fb.Params {
		p := signature.Param{Name: pb.Name}
		if pb.KeywordOnly {
			p.Kind = signature.KeywordOnly
		}
		if pb.Default != nil {
			def, err := toGo(*pb.Default)
			if err != nil {
				return executor.Function{}, fmt.Errorf("param %q: default: %w", pb.Name, err)
			}
			p.Default, p.HasDefault = def, true
		}
		params[i] = p
		names[i] = pb.Name
	}
	sig, err := signature.New(params...)
	if err != nil {
		return executor.Function{}, err
	}
	return executor.Function{
		Name:      fb.Name,
		Signature: sig,
		Body:      resultBody(names, fb.Result),
	}, nil
}

func (rb *runBlock) build(p *Program) (*Run, error) {
	if _, ok := p.Functions[rb.Function]; !ok {
		return nil, fmt.Errorf("unknown function %q", rb.Function)
	}
	vars := make(map[string]cty.Value, len(p.Inputs))
	for name, t := range p.Inputs {
		vars[name] = capsule(t)
	}
	evalCtx := &hcl.EvalContext{Variables: vars}

	run := &Run{Function: rb.Function, Executor: rb.Executor}
	if rb.Args != nil {
		v, diags := rb.Args.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("args: %w", diags)
		}
		if !v.IsNull() {
			args, err := toGo(v)
			if err != nil {
				return nil, fmt.Errorf("args: %w", err)
			}
			list, ok := args.([]any)
			if !ok {
				return nil, fmt.Errorf("args must be a list, got %s", v.Type().FriendlyName())
			}
			run.Args = list
		}
	}
	if rb.Kwargs != nil {
		v, diags := rb.Kwargs.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("kwargs: %w", diags)
		}
		if !v.IsNull() {
			kwargs, err := toGo(v)
			if err != nil {
				return nil, fmt.Errorf("kwargs: %w", err)
			}
			m, ok := kwargs.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("kwargs must be an object, got %s", v.Type().FriendlyName())
			}
			run.Kwargs = m
		}
	}
	return run, nil
}
