package nodes

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/barrulus/Hesiod/internal/payload"
	"github.com/barrulus/Hesiod/internal/registry"
)

func constantDef() registry.Definition {
	return registry.Definition{
		Metadata: registry.Metadata{
			Label:    "Constant",
			Category: "primitives",
			Outputs:  []registry.PortSpec{{Name: "value", Type: payload.TypeScalar}},
			Params: []registry.ParamSpec{
				{Name: "value", Type: cty.Number, Default: number(0), Description: "The constant to emit."},
			},
		},
		Handler: func(ctx context.Context, inv *registry.Invocation) (payload.Set, error) {
			return payload.Set{"value": payload.Scalar(numberParam(inv, "value"))}, nil
		},
	}
}

func gradientDef() registry.Definition {
	return registry.Definition{
		Metadata: registry.Metadata{
			Label:    "Gradient",
			Category: "primitives",
			Outputs:  []registry.PortSpec{{Name: "height", Type: payload.TypeHeightMap}},
			Params: []registry.ParamSpec{
				{Name: "rows", Type: cty.Number, Default: number(64), Check: positive},
				{Name: "cols", Type: cty.Number, Default: number(64), Check: positive},
			},
		},
		Handler: func(ctx context.Context, inv *registry.Invocation) (payload.Set, error) {
			rows, cols := intParam(inv, "rows"), intParam(inv, "cols")
			data := make([]float32, rows*cols)
			for r := 0; r < rows; r++ {
				for c := 0; c < cols; c++ {
					// Left-to-right ramp over [0, 1].
					data[r*cols+c] = float32(c) / float32(maxInt(cols-1, 1))
				}
			}
			h, err := payload.NewHeightMap(rows, cols, payload.Bounds{0, 0, 1, 1}, data)
			if err != nil {
				return nil, err
			}
			return payload.Set{"height": h}, nil
		},
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
