// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package traced turns Go functions over tensors into traced functions that run
// on the direct or the fusion executor.
//
// # Basic Usage
//
//	scale := traced.MakeTraced(traced.Function{
//	    Name:      "scale",
//	    Signature: traced.MustSignature(traced.Required("a"), traced.Optional("c", 2.0)),
//	    Body: func(c *traced.Context, args []any, kwargs map[string]any) (any, error) {
//	        return c.Call("mul", args[0], kwargs["c"]), nil
//	    },
//	})
//
//	out, err := scale.Call(ctx, []any{x}, nil)                                  // direct
//	out, err = scale.Call(ctx, []any{x}, nil, traced.WithExecutor("fusion"))  // one fused kernel
//
// Every call is canonicalized against the signature, traced into a graph of
// primitives and executed. Scalars seen during tracing are specialized into the
// graph; on the fusion path they become constants, never kernel inputs.
package traced

import (
	"context"
	"log/slog"

	"github.com/born-ml/prims/internal/backend/cpu"
	"github.com/born-ml/prims/internal/executor"
	"github.com/born-ml/prims/internal/fusion"
	"github.com/born-ml/prims/internal/prims"
	"github.com/born-ml/prims/internal/refs"
	"github.com/born-ml/prims/internal/signature"
	"github.com/born-ml/prims/internal/trace"
)

// Function is a function that can be traced.
type Function = executor.Function

// Body is the user function body.
type Body = executor.Body

// Traced is a traced function.
type Traced = executor.Traced

// Option configures a call.
type Option = executor.Option

// Context records operations while a body is traced.
type Context = trace.Context

// Graph is a traced function as an arena of primitive nodes.
type Graph = trace.Graph

// Signature declares a function's parameters.
type Signature = signature.Signature

// Param is one declared parameter.
type Param = signature.Param

// Bound is a canonicalized call.
type Bound = signature.Bound

// Engine runs fused programs.
type Engine = fusion.Engine

// Executor names.
const (
	Direct = executor.Direct
	Fusion = executor.Fusion
)

// Parameter kinds.
const (
	PositionalOrKeyword = signature.PositionalOrKeyword
	PositionalOnly      = signature.PositionalOnly
	KeywordOnly         = signature.KeywordOnly
)

// Errors reported by traced calls. Match them with errors.Is, or errors.As the
// typed forms below to read their fields.
var (
	ErrMissingParameter     = signature.ErrMissingParameter
	ErrInvalidArguments     = signature.ErrInvalidArguments
	ErrUnsupportedOperation = refs.ErrUnsupportedOperation
	ErrInvalidArgumentType  = trace.ErrInvalidArgumentType
	ErrInvalidExecutor      = executor.ErrInvalidExecutor
	ErrBackendUnavailable   = executor.ErrBackendUnavailable
	ErrLowering             = executor.ErrLowering
)

// Typed errors.
type (
	MissingParameterError     = signature.MissingParameterError
	UnsupportedOperationError = refs.UnsupportedOperationError
	ArgumentTypeError         = trace.ArgumentTypeError
	InvalidExecutorError      = executor.InvalidExecutorError
	BackendUnavailableError   = executor.BackendUnavailableError
	LoweringError             = executor.LoweringError
)

// MakeTraced wraps fn.
func MakeTraced(fn Function) *Traced {
	return executor.MakeTraced(fn)
}

// Required declares a parameter without a default.
func Required(name string) Param {
	return signature.Required(name)
}

// Optional declares a parameter with a default.
func Optional(name string, def any) Param {
	return signature.Optional(name, def)
}

// NewSignature validates params and builds a signature.
func NewSignature(params ...Param) (Signature, error) {
	return signature.New(params...)
}

// MustSignature is NewSignature that panics on invalid params.
func MustSignature(params ...Param) Signature {
	return signature.MustNew(params...)
}

// WithExecutor selects the executor: "direct" (default) or "fusion".
func WithExecutor(name string) Option {
	return executor.WithExecutor(name)
}

// WithEngine selects the fusion engine. The default is the WebGPU engine.
func WithEngine(engine Engine) Option {
	return executor.WithEngine(engine)
}

// WithBackend selects the CPU backend of the direct executor.
func WithBackend(backend *cpu.CPUBackend) Option {
	return executor.WithBackend(backend)
}

// WithLogger attaches a logger to the call.
func WithLogger(logger *slog.Logger) Option {
	return executor.WithLogger(logger)
}

// WithRegistry traces against a custom primitive registry.
func WithRegistry(registry *prims.Registry) Option {
	return executor.WithRegistry(registry)
}

// HostEngine returns a fusion engine that runs fused programs in host memory.
func HostEngine() Engine {
	return fusion.NewHostEngine()
}

// Execute runs an already traced graph on the named executor.
func Execute(ctx context.Context, g *Graph, args []any, kwargs map[string]any, name string, engine Engine) (any, error) {
	return executor.Execute(ctx, g, args, kwargs, name, executor.Options{Engine: engine})
}
