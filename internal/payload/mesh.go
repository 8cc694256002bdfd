package payload

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Vec3 is a single mesh vertex position.
type Vec3 struct {
	X, Y, Z float32
}

// Mesh is an immutable triangle mesh.
type Mesh struct {
	vertices []Vec3
	faces    [][3]int32
}

// NewMesh builds a mesh from vertex positions and triangle index triples.
// Both slices are copied. Every face index must reference an existing vertex.
func NewMesh(vertices []Vec3, faces [][3]int32) (*Mesh, error) {
	n := int32(len(vertices))
	for i, f := range faces {
		for _, idx := range f {
			if idx < 0 || idx >= n {
				return nil, fmt.Errorf("mesh face %d references vertex %d, have %d vertices", i, idx, n)
			}
		}
	}
	m := &Mesh{
		vertices: make([]Vec3, len(vertices)),
		faces:    make([][3]int32, len(faces)),
	}
	copy(m.vertices, vertices)
	copy(m.faces, faces)
	return m, nil
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.vertices) }

// FaceCount returns the number of triangles.
func (m *Mesh) FaceCount() int { return len(m.faces) }

// Vertices returns the shared vertex slice; callers must treat it as read-only.
func (m *Mesh) Vertices() []Vec3 { return m.vertices }

// Faces returns the shared face slice; callers must treat it as read-only.
func (m *Mesh) Faces() [][3]int32 { return m.faces }

// PayloadType implements Payload.
func (m *Mesh) PayloadType() Type { return TypeMesh }

// EncodedSize implements Payload.
func (m *Mesh) EncodedSize() int {
	return len(TypeMesh) + 8 + 8 + 12*len(m.vertices) + 8 + 12*len(m.faces)
}

// AppendCanonical implements Payload.
func (m *Mesh) AppendCanonical(dst []byte) []byte {
	dst = appendString(dst, string(TypeMesh))

	verts := make([]byte, 12*len(m.vertices))
	for i, v := range m.vertices {
		binary.BigEndian.PutUint32(verts[i*12:], math.Float32bits(v.X))
		binary.BigEndian.PutUint32(verts[i*12+4:], math.Float32bits(v.Y))
		binary.BigEndian.PutUint32(verts[i*12+8:], math.Float32bits(v.Z))
	}
	dst = appendField(dst, verts)

	faces := make([]byte, 12*len(m.faces))
	for i, f := range m.faces {
		binary.BigEndian.PutUint32(faces[i*12:], uint32(f[0]))
		binary.BigEndian.PutUint32(faces[i*12+4:], uint32(f[1]))
		binary.BigEndian.PutUint32(faces[i*12+8:], uint32(f[2]))
	}
	return appendField(dst, faces)
}
