package nodes

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/barrulus/Hesiod/internal/payload"
	"github.com/barrulus/Hesiod/internal/registry"
)

func valueNoiseDef() registry.Definition {
	return registry.Definition{
		Metadata: registry.Metadata{
			Label:    "Value Noise",
			Category: "noise",
			Outputs:  []registry.PortSpec{{Name: "height", Type: payload.TypeHeightMap}},
			Params: []registry.ParamSpec{
				{Name: "rows", Type: cty.Number, Default: number(64), Check: positive},
				{Name: "cols", Type: cty.Number, Default: number(64), Check: positive},
				{Name: "seed", Type: cty.Number, Default: number(0)},
				{Name: "frequency", Type: cty.Number, Default: number(8), Check: positive},
			},
		},
		Handler: func(ctx context.Context, inv *registry.Invocation) (payload.Set, error) {
			rows, cols := intParam(inv, "rows"), intParam(inv, "cols")
			seed := uint64(intParam(inv, "seed"))
			freq := numberParam(inv, "frequency")

			data := make([]float32, rows*cols)
			for r := 0; r < rows; r++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				for c := 0; c < cols; c++ {
					x := uint64(float64(c) / float64(cols) * freq)
					y := uint64(float64(r) / float64(rows) * freq)
					data[r*cols+c] = latticeValue(x, y, seed)
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

// latticeValue hashes a lattice coordinate into [0, 1). The mix is a
// splitmix64 round, which is deterministic across platforms.
func latticeValue(x, y, seed uint64) float32 {
	z := seed ^ (x * 0x9e3779b97f4a7c15) ^ (y * 0xbf58476d1ce4e5b9)
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return float32(z>>40) / float32(1<<24)
}
