package program

import (
	"fmt"

	"github.com/born-ml/prims/internal/executor"
	"github.com/born-ml/prims/internal/refs"
	"github.com/born-ml/prims/internal/trace"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// opFunctions exposes every reference operation as an HCL function recording into c.
//
// Arguments are positional. A trailing object argument is taken as the keyword
// arguments, so sum(a, { dim = [0], keepdim = true }) passes dim and keepdim by name.
func opFunctions(c *trace.Context, table *refs.Table) map[string]function.Function {
	funcs := make(map[string]function.Function)
	for _, name := range table.Names() {
		funcs[name] = function.New(&function.Spec{
			VarParam: &function.Parameter{
				Name:             "args",
				Type:             cty.DynamicPseudoType,
				AllowNull:        true,
				AllowDynamicType: true,
			},
			Type: function.StaticReturnType(cty.DynamicPseudoType),
			Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
				return callOp(c, name, args)
			},
		})
	}
	return funcs
}

func callOp(c *trace.Context, name string, args []cty.Value) (cty.Value, error) {
	var kwargs map[string]any
	if n := len(args); n > 0 && !args[n-1].IsNull() && args[n-1].Type().IsObjectType() {
		kw, err := toGo(args[n-1])
		if err != nil {
			return cty.NilVal, err
		}
		kwargs = kw.(map[string]any)
		args = args[:n-1]
	}
	goArgs := make([]any, len(args))
	for i, a := range args {
		v, err := toGo(a)
		if err != nil {
			return cty.NilVal, function.NewArgError(i, err)
		}
		goArgs[i] = v
	}

	out := c.CallKw(name, goArgs, kwargs)
	if err := c.Err(); err != nil {
		return cty.NilVal, err
	}
	return fromGo(out)
}

// resultBody evaluates a function's result expression with its parameters bound.
func resultBody(names []string, result hcl.Expression) executor.Body {
	return func(c *trace.Context, args []any, kwargs map[string]any) (any, error) {
		vars := make(map[string]cty.Value, len(names))
		for i, name := range names {
			var v any
			if i < len(args) {
				v = args[i]
			} else {
				v = kwargs[name]
			}
			cv, err := fromGo(v)
			if err != nil {
				return nil, fmt.Errorf("param %q: %w", name, err)
			}
			vars[name] = cv
		}

		evalCtx := &hcl.EvalContext{
			Variables: vars,
			Functions: opFunctions(c, refs.Default()),
		}
		val, diags := result.Value(evalCtx)
		// The first trace failure is more precise than the diagnostic wrapping it.
		if err := c.Err(); err != nil {
			return nil, err
		}
		if diags.HasErrors() {
			return nil, diags
		}
		return toGo(val)
	}
}
