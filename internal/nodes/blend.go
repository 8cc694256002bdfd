package nodes

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/barrulus/Hesiod/internal/payload"
	"github.com/barrulus/Hesiod/internal/registry"
)

func mixDef() registry.Definition {
	return registry.Definition{
		Metadata: registry.Metadata{
			Label:    "Mix",
			Category: "blend",
			Inputs: []registry.PortSpec{
				{Name: "a", Type: payload.TypeHeightMap},
				{Name: "b", Type: payload.TypeHeightMap},
			},
			Outputs: []registry.PortSpec{{Name: "height", Type: payload.TypeHeightMap}},
			Params: []registry.ParamSpec{
				{Name: "factor", Type: cty.Number, Default: number(0.5), Check: unitInterval,
					Description: "Blend weight toward input b."},
			},
		},
		Handler: func(ctx context.Context, inv *registry.Invocation) (payload.Set, error) {
			a, err := heightInput(inv, "a")
			if err != nil {
				return nil, err
			}
			b, err := heightInput(inv, "b")
			if err != nil {
				return nil, err
			}
			if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
				return nil, fmt.Errorf("mix inputs disagree on shape: %dx%d vs %dx%d",
					a.Rows(), a.Cols(), b.Rows(), b.Cols())
			}

			t := float32(numberParam(inv, "factor"))
			as, bs := a.Samples(), b.Samples()
			data := make([]float32, len(as))
			for i := range data {
				data[i] = as[i]*(1-t) + bs[i]*t
			}
			h, err := payload.NewHeightMap(a.Rows(), a.Cols(), a.Bounds(), data)
			if err != nil {
				return nil, err
			}
			return payload.Set{"height": h}, nil
		},
	}
}

// heightInput reads a required heightmap input port.
func heightInput(inv *registry.Invocation, name string) (*payload.HeightMap, error) {
	p, ok := inv.Inputs[name]
	if !ok {
		return nil, fmt.Errorf("input %q is not connected", name)
	}
	return p.(*payload.HeightMap), nil
}
