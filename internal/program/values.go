package program

import (
	"fmt"
	"math/big"
	"reflect"
	"sort"

	"github.com/born-ml/prims/internal/tensor"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// boxed holds a tensor or a traced proxy inside a cty capsule.
type boxed struct {
	v any
}

// tensorType is the cty type of tensors and traced tensors in expressions.
var tensorType = cty.Capsule("tensor", reflect.TypeOf(boxed{}))

func capsule(v any) cty.Value {
	return cty.CapsuleVal(tensorType, &boxed{v: v})
}

// toGo converts a cty value to the Go values traced functions take.
// Whole numbers become int64 and other numbers float64; tuples and lists become
// []any and objects and maps become map[string]any.
func toGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	ty := v.Type()
	switch {
	case ty.Equals(tensorType):
		return v.EncapsulatedValue().(*boxed).v, nil
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			var n int64
			if err := gocty.FromCtyValue(v, &n); err == nil {
				return n, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty == cty.String:
		return v.AsString(), nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			e, err := toGo(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			e, err := toGo(ev)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = e
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %s", ty.FriendlyName())
	}
}

// fromGo converts a traced value back to cty so expressions can keep using it.
func fromGo(v any) (cty.Value, error) {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case bool:
		return cty.BoolVal(x), nil
	case string:
		return cty.StringVal(x), nil
	case []any:
		if len(x) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(x))
		for i, e := range x {
			ev, err := fromGo(e)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	case []int:
		elems := make([]cty.Value, len(x))
		for i, n := range x {
			elems[i] = cty.NumberIntVal(int64(n))
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(x) == 0 {
			return cty.EmptyObjectVal, nil
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := make(map[string]cty.Value, len(x))
		for _, k := range keys {
			ev, err := fromGo(x[k])
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = ev
		}
		return cty.ObjectVal(attrs), nil
	}
	if _, ok := tensor.MetaOf(v); ok {
		return capsule(v), nil
	}
	if f, dt, ok := tensor.Number(v); ok {
		if dt == tensor.Bool {
			return cty.BoolVal(f != 0), nil
		}
		return cty.NumberVal(big.NewFloat(f)), nil
	}
	return cty.NilVal, fmt.Errorf("unsupported value of type %T", v)
}
