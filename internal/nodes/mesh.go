package nodes

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/barrulus/Hesiod/internal/payload"
	"github.com/barrulus/Hesiod/internal/registry"
)

func meshDef() registry.Definition {
	return registry.Definition{
		Metadata: registry.Metadata{
			Label:    "Heightmap Mesh",
			Category: "mesh",
			Inputs:   []registry.PortSpec{{Name: "height", Type: payload.TypeHeightMap}},
			Outputs:  []registry.PortSpec{{Name: "mesh", Type: payload.TypeMesh}},
			Params: []registry.ParamSpec{
				{Name: "scale", Type: cty.Number, Default: number(1), Check: positive,
					Description: "Vertical exaggeration applied to sample values."},
			},
		},
		Handler: func(ctx context.Context, inv *registry.Invocation) (payload.Set, error) {
			in, err := heightInput(inv, "height")
			if err != nil {
				return nil, err
			}
			m, err := triangulate(ctx, in, numberParam(inv, "scale"))
			if err != nil {
				return nil, err
			}
			return payload.Set{"mesh": m}, nil
		},
	}
}

// triangulate builds a regular grid mesh from a heightmap. Each grid cell
// yields two triangles with counter-clockwise winding.
func triangulate(ctx context.Context, h *payload.HeightMap, scale float64) (*payload.Mesh, error) {
	rows, cols := h.Rows(), h.Cols()
	b := h.Bounds()

	vertices := make([]payload.Vec3, 0, rows*cols)
	for r := 0; r < rows; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for c := 0; c < cols; c++ {
			u := float64(c) / float64(maxInt(cols-1, 1))
			v := float64(r) / float64(maxInt(rows-1, 1))
			vertices = append(vertices, payload.Vec3{
				X: float32(b[0] + u*(b[2]-b[0])),
				Y: float32(b[1] + v*(b[3]-b[1])),
				Z: h.At(r, c) * float32(scale),
			})
		}
	}

	faces := make([][3]int32, 0, 2*(rows-1)*(cols-1))
	for r := 0; r < rows-1; r++ {
		for c := 0; c < cols-1; c++ {
			i := int32(r*cols + c)
			w := int32(cols)
			faces = append(faces,
				[3]int32{i, i + 1, i + w},
				[3]int32{i + 1, i + w + 1, i + w},
			)
		}
	}
	return payload.NewMesh(vertices, faces)
}
