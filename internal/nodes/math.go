package nodes

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/barrulus/Hesiod/internal/payload"
	"github.com/barrulus/Hesiod/internal/registry"
)

// scalarInput reads a scalar input port, defaulting to zero when the port is
// unconnected.
func scalarInput(inv *registry.Invocation, name string) float64 {
	if p, ok := inv.Inputs[name]; ok {
		return p.(payload.Scalar).Value()
	}
	return 0
}

func addDef() registry.Definition {
	return registry.Definition{
		Metadata: registry.Metadata{
			Label:    "Add",
			Category: "math",
			Inputs:   []registry.PortSpec{{Name: "value", Type: payload.TypeScalar}},
			Outputs:  []registry.PortSpec{{Name: "value", Type: payload.TypeScalar}},
			Params: []registry.ParamSpec{
				{Name: "operand", Type: cty.Number, Default: number(0), Description: "Added to the input."},
			},
		},
		Handler: func(ctx context.Context, inv *registry.Invocation) (payload.Set, error) {
			sum := scalarInput(inv, "value") + numberParam(inv, "operand")
			return payload.Set{"value": payload.Scalar(sum)}, nil
		},
	}
}

func multiplyDef() registry.Definition {
	return registry.Definition{
		Metadata: registry.Metadata{
			Label:    "Multiply",
			Category: "math",
			Inputs:   []registry.PortSpec{{Name: "value", Type: payload.TypeScalar}},
			Outputs:  []registry.PortSpec{{Name: "value", Type: payload.TypeScalar}},
			Params: []registry.ParamSpec{
				{Name: "factor", Type: cty.Number, Default: number(1), Description: "Multiplied with the input."},
			},
		},
		Handler: func(ctx context.Context, inv *registry.Invocation) (payload.Set, error) {
			product := scalarInput(inv, "value") * numberParam(inv, "factor")
			return payload.Set{"value": payload.Scalar(product)}, nil
		},
	}
}
