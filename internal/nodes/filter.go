package nodes

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/barrulus/Hesiod/internal/payload"
	"github.com/barrulus/Hesiod/internal/registry"
)

func clampDef() registry.Definition {
	return registry.Definition{
		Metadata: registry.Metadata{
			Label:    "Clamp",
			Category: "filter",
			Inputs:   []registry.PortSpec{{Name: "height", Type: payload.TypeHeightMap}},
			Outputs:  []registry.PortSpec{{Name: "height", Type: payload.TypeHeightMap}},
			Params: []registry.ParamSpec{
				{Name: "min", Type: cty.Number, Default: number(0)},
				{Name: "max", Type: cty.Number, Default: number(1)},
			},
		},
		Handler: func(ctx context.Context, inv *registry.Invocation) (payload.Set, error) {
			in, err := heightInput(inv, "height")
			if err != nil {
				return nil, err
			}
			lo := float32(numberParam(inv, "min"))
			hi := float32(numberParam(inv, "max"))
			if lo > hi {
				return nil, fmt.Errorf("clamp bounds inverted: min %v > max %v", lo, hi)
			}

			src := in.Samples()
			data := make([]float32, len(src))
			for i, s := range src {
				switch {
				case s < lo:
					data[i] = lo
				case s > hi:
					data[i] = hi
				default:
					data[i] = s
				}
			}
			h, err := payload.NewHeightMap(in.Rows(), in.Cols(), in.Bounds(), data)
			if err != nil {
				return nil, err
			}
			return payload.Set{"height": h}, nil
		},
	}
}
