package gvoxaux

import (
	"fmt"
	"io"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gvox"
	"gopkg.in/yaml.v3"
)

// ToolCatalog is a YAML machine tool definition file: a list of named
// tool shapes usable as grid rasterization inputs.
//
//	tools:
//	  - name: rough-electrode
//	    kind: cylinder
//	    p: [0, 0, 0]
//	    n: [0, 0, 1]
//	    r: 1.5
//	    h: 40
type ToolCatalog struct {
	Tools []ToolDef `yaml:"tools"`
}

// ToolDef is one catalog entry. Fields are interpreted per kind:
// cylinder uses P,N,R,H; longhole uses P,Q,N,R,H; box uses C,H0,H1,H2.
type ToolDef struct {
	Name string     `yaml:"name"`
	Kind string     `yaml:"kind"`
	P    [3]float32 `yaml:"p"`
	Q    [3]float32 `yaml:"q"`
	N    [3]float32 `yaml:"n"`
	C    [3]float32 `yaml:"c"`
	H0   [3]float32 `yaml:"h0"`
	H1   [3]float32 `yaml:"h1"`
	H2   [3]float32 `yaml:"h2"`
	R    float32    `yaml:"r"`
	H    float32    `yaml:"h"`
}

func vec(a [3]float32) ms3.Vec {
	return ms3.Vec{X: a[0], Y: a[1], Z: a[2]}
}

// Shape constructs the tool's shape through bld.
func (td *ToolDef) Shape(bld *gvox.Builder) (gvox.Shape, error) {
	switch td.Kind {
	case "cylinder":
		return bld.NewCylinder(vec(td.P), vec(td.N), td.R, td.H), nil
	case "longhole":
		return bld.NewLonghole(vec(td.P), vec(td.Q), vec(td.N), td.R, td.H), nil
	case "box":
		return bld.NewOrientedBox(vec(td.C), vec(td.H0), vec(td.H1), vec(td.H2)), nil
	}
	return nil, fmt.Errorf("gvoxaux: unknown tool kind %q", td.Kind)
}

// LoadToolCatalog parses a YAML tool catalog. Shape validation is
// deferred to [ToolDef.Shape] so a catalog can be loaded and browsed
// before all tools are well formed.
func LoadToolCatalog(r io.Reader) (*ToolCatalog, error) {
	var cat ToolCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("gvoxaux: parsing tool catalog: %w", err)
	}
	for i := range cat.Tools {
		if cat.Tools[i].Name == "" {
			return nil, fmt.Errorf("gvoxaux: tool %d missing name", i)
		}
	}
	return &cat, nil
}
