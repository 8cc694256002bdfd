// Package nodes registers the built-in node types. The kernels are small
// and strictly deterministic; the port and parameter schemas they declare
// carry most of the behavior.
package nodes

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/barrulus/Hesiod/internal/registry"
)

// RegisterBuiltins registers every built-in node type. The registry must
// not be sealed yet.
func RegisterBuiltins(reg *registry.Registry) error {
	for typeID, def := range builtins() {
		if err := reg.Register(typeID, def); err != nil {
			return fmt.Errorf("registering %s: %w", typeID, err)
		}
	}
	return nil
}

func builtins() map[string]registry.Definition {
	return map[string]registry.Definition{
		"primitives.constant": constantDef(),
		"primitives.gradient": gradientDef(),
		"noise.value":         valueNoiseDef(),
		"math.add":            addDef(),
		"math.multiply":       multiplyDef(),
		"blend.mix":           mixDef(),
		"filter.clamp":        clampDef(),
		"mesh.from_heightmap": meshDef(),
	}
}

// numberParam reads a numeric parameter. Parameter maps are schema-complete
// by the time a handler runs, so a missing name is a programming error.
func numberParam(inv *registry.Invocation, name string) float64 {
	f, _ := inv.Params[name].AsBigFloat().Float64()
	return f
}

func intParam(inv *registry.Invocation, name string) int {
	return int(numberParam(inv, name))
}

// positive is a ParamSpec check requiring a value greater than zero.
func positive(v cty.Value) error {
	f, _ := v.AsBigFloat().Float64()
	if f <= 0 {
		return fmt.Errorf("must be positive, got %v", f)
	}
	return nil
}

// unitInterval is a ParamSpec check requiring a value in [0, 1].
func unitInterval(v cty.Value) error {
	f, _ := v.AsBigFloat().Float64()
	if f < 0 || f > 1 {
		return fmt.Errorf("must be within [0, 1], got %v", f)
	}
	return nil
}

func number(f float64) cty.Value {
	return cty.NumberFloatVal(f)
}
