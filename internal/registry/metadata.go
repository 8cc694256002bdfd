package registry

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/barrulus/Hesiod/internal/payload"
)

// PortSpec describes one input or output port of a node type.
type PortSpec struct {
	Name        string
	Type        payload.Type
	Description string
}

// ParamSpec describes one parameter of a node type: its cty type, an
// optional default, and an optional validity check run on every assignment.
type ParamSpec struct {
	Name        string
	Type        cty.Type
	Default     cty.Value
	Description string
	Check       func(cty.Value) error
}

// Metadata is the self-describing part of a node-type definition. The graph
// model uses it to validate AddNode, Connect, and SetParameter calls.
type Metadata struct {
	Label       string
	Category    string
	Description string
	Inputs      []PortSpec
	Outputs     []PortSpec
	Params      []ParamSpec
}

// InputSpec returns the input port spec with the given name.
func (m *Metadata) InputSpec(name string) (PortSpec, bool) {
	return findPort(m.Inputs, name)
}

// OutputSpec returns the output port spec with the given name.
func (m *Metadata) OutputSpec(name string) (PortSpec, bool) {
	return findPort(m.Outputs, name)
}

// Param returns the parameter spec with the given name.
func (m *Metadata) Param(name string) (ParamSpec, bool) {
	for _, p := range m.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// CoerceParam converts a value to the parameter's declared type and runs its
// validity check. It returns the converted value.
func (m *Metadata) CoerceParam(name string, v cty.Value) (cty.Value, error) {
	spec, ok := m.Param(name)
	if !ok {
		return cty.NilVal, fmt.Errorf("unknown parameter %q", name)
	}
	converted, err := convert.Convert(v, spec.Type)
	if err != nil {
		return cty.NilVal, fmt.Errorf("parameter %q: cannot convert %s to %s: %w",
			name, v.Type().FriendlyName(), spec.Type.FriendlyName(), err)
	}
	if spec.Check != nil {
		if err := spec.Check(converted); err != nil {
			return cty.NilVal, fmt.Errorf("parameter %q: %w", name, err)
		}
	}
	return converted, nil
}

// ApplyDefaults returns a parameter map with every declared parameter
// present: provided values are coerced against the schema, missing ones take
// their declared default. Unknown names are rejected.
func (m *Metadata) ApplyDefaults(params map[string]cty.Value) (map[string]cty.Value, error) {
	out := make(map[string]cty.Value, len(m.Params))
	for name, v := range params {
		coerced, err := m.CoerceParam(name, v)
		if err != nil {
			return nil, err
		}
		out[name] = coerced
	}
	for _, spec := range m.Params {
		if _, ok := out[spec.Name]; ok {
			continue
		}
		if spec.Default == cty.NilVal {
			return nil, fmt.Errorf("parameter %q is required and has no default", spec.Name)
		}
		out[spec.Name] = spec.Default
	}
	return out, nil
}

func (m *Metadata) validate(typeID string) error {
	if err := validatePorts(typeID, "input", m.Inputs); err != nil {
		return err
	}
	if err := validatePorts(typeID, "output", m.Outputs); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(m.Params))
	for _, p := range m.Params {
		if p.Name == "" {
			return fmt.Errorf("node type %q declares a parameter with no name", typeID)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("node type %q declares parameter %q twice", typeID, p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Default != cty.NilVal {
			if _, err := convert.Convert(p.Default, p.Type); err != nil {
				return fmt.Errorf("node type %q parameter %q: default does not fit declared type: %w", typeID, p.Name, err)
			}
		}
	}
	return nil
}

func validatePorts(typeID, kind string, ports []PortSpec) error {
	seen := make(map[string]struct{}, len(ports))
	for _, p := range ports {
		if p.Name == "" {
			return fmt.Errorf("node type %q declares an %s port with no name", typeID, kind)
		}
		if !p.Type.Valid() {
			return fmt.Errorf("node type %q %s port %q has unknown payload type %q", typeID, kind, p.Name, p.Type)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("node type %q declares %s port %q twice", typeID, kind, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

func findPort(ports []PortSpec, name string) (PortSpec, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return PortSpec{}, false
}
