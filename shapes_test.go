package gvox_test

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gvox"
)

const distTol = 1e-5

func TestCylinderSDF(t *testing.T) {
	var bld gvox.Builder
	cyl := bld.NewCylinder(ms3.Vec{}, ms3.Vec{Z: 1}, 1, 2)
	cases := []struct {
		p    ms3.Vec
		want float32
	}{
		{ms3.Vec{X: 0, Y: 0, Z: 1}, -1},
		{ms3.Vec{X: 1, Y: 0, Z: 1}, 0},
		{ms3.Vec{X: 2, Y: 0, Z: 1}, 1},
		{ms3.Vec{X: 0, Y: 0, Z: -0.5}, 0.5},
		{ms3.Vec{X: 0, Y: 0, Z: 3}, 1},
	}
	for _, tc := range cases {
		got := cyl.Distance(tc.p)
		if math32.Abs(got-tc.want) > distTol {
			t.Errorf("cylinder SDF at %+v: got %f, want %f", tc.p, got, tc.want)
		}
	}
}

func TestOrientedBoxSDF(t *testing.T) {
	var bld gvox.Builder
	box := bld.NewOrientedBox(ms3.Vec{}, ms3.Vec{X: 1}, ms3.Vec{Y: 2}, ms3.Vec{Z: 3})
	sqrt3 := math32.Sqrt(3)
	cases := []struct {
		p    ms3.Vec
		want float32
	}{
		{ms3.Vec{}, -1},
		{ms3.Vec{X: 1}, 0},
		{ms3.Vec{X: 2}, 1},
		{ms3.Vec{X: 2, Y: 3, Z: 4}, sqrt3},
	}
	for _, tc := range cases {
		got := box.Distance(tc.p)
		if math32.Abs(got-tc.want) > distTol {
			t.Errorf("box SDF at %+v: got %f, want %f", tc.p, got, tc.want)
		}
	}
	// A rotated frame must yield identical distances in its own coordinates.
	s2 := math32.Sqrt2 / 2
	rot := bld.NewOrientedBox(ms3.Vec{},
		ms3.Vec{X: s2, Y: s2}, ms3.Vec{X: -2 * s2, Y: 2 * s2}, ms3.Vec{Z: 3})
	got := rot.Distance(ms3.Vec{X: s2, Y: s2})
	if math32.Abs(got) > distTol {
		t.Errorf("rotated box face point: got %f, want 0", got)
	}
}

func TestLongholeSDF(t *testing.T) {
	var bld gvox.Builder
	// Stadium from (0,0,0) to (2,0,0) radius 0.5, extruded 1 along z.
	elh := bld.NewLonghole(ms3.Vec{}, ms3.Vec{X: 2}, ms3.Vec{Z: 1}, 0.5, 1)
	cases := []struct {
		p    ms3.Vec
		want float32
	}{
		{ms3.Vec{X: 1, Y: 0, Z: 0.5}, -0.5},  // Deep inside mid-segment.
		{ms3.Vec{X: 2.5, Y: 0, Z: 0.5}, 0},   // On the cap arc.
		{ms3.Vec{X: 1, Y: 1.5, Z: 0.5}, 1},   // Radially outside.
		{ms3.Vec{X: 1, Y: 0, Z: 2}, 1},       // Above the extrusion.
		{ms3.Vec{X: -1.5, Y: 0, Z: 0.5}, 1},  // Beyond the p cap.
		{ms3.Vec{X: 1, Y: 0.5, Z: 0.5}, 0},    // On the side wall.
		{ms3.Vec{X: 1, Y: 0, Z: -0.25}, 0.25}, // Below the extrusion.
	}
	for _, tc := range cases {
		got := elh.Distance(tc.p)
		if math32.Abs(got-tc.want) > distTol {
			t.Errorf("longhole SDF at %+v: got %f, want %f", tc.p, got, tc.want)
		}
	}
}

// randUnit returns a random unit vector.
func randUnit(rng *rand.Rand) ms3.Vec {
	for {
		v := ms3.Vec{
			X: float32(rng.Float64()*2 - 1),
			Y: float32(rng.Float64()*2 - 1),
			Z: float32(rng.Float64()*2 - 1),
		}
		n := ms3.Norm(v)
		if n > 0.1 && n < 1 {
			return ms3.Scale(1/n, v)
		}
	}
}

func randPoint(rng *rand.Rand, spread float32) ms3.Vec {
	return ms3.Vec{
		X: spread * float32(rng.Float64()*2-1),
		Y: spread * float32(rng.Float64()*2-1),
		Z: spread * float32(rng.Float64()*2-1),
	}
}

func testShapes(rng *rand.Rand) []gvox.Shape {
	var bld gvox.Builder
	n := randUnit(rng)
	p := randPoint(rng, 2)
	// Build a long-hole axis perpendicular to n.
	aux := randUnit(rng)
	pq := ms3.Sub(aux, ms3.Scale(ms3.Dot(aux, n), n))
	if ms3.Norm(pq) < 0.1 {
		pq = ms3.Vec{X: n.Y, Y: -n.X, Z: 0}
	}
	u0 := randUnit(rng)
	aux2 := randUnit(rng)
	u1 := ms3.Sub(aux2, ms3.Scale(ms3.Dot(aux2, u0), u0))
	for ms3.Norm(u1) < 0.1 {
		aux2 = randUnit(rng)
		u1 = ms3.Sub(aux2, ms3.Scale(ms3.Dot(aux2, u0), u0))
	}
	u1 = ms3.Scale(1/ms3.Norm(u1), u1)
	u2 := ms3.Vec{
		X: u0.Y*u1.Z - u0.Z*u1.Y,
		Y: u0.Z*u1.X - u0.X*u1.Z,
		Z: u0.X*u1.Y - u0.Y*u1.X,
	}
	return []gvox.Shape{
		bld.NewCylinder(p, n, 0.5+float32(rng.Float64()), 0.5+2*float32(rng.Float64())),
		bld.NewLonghole(p, ms3.Add(p, pq), n, 0.25+float32(rng.Float64()), 0.5+float32(rng.Float64())),
		bld.NewOrientedBox(p, ms3.Scale(0.5+float32(rng.Float64()), u0),
			ms3.Scale(0.5+float32(rng.Float64()), u1), ms3.Scale(0.5+float32(rng.Float64()), u2)),
	}
}

// SDFs must be 1-Lipschitz: distances between evaluations never exceed
// point separation. Conservative block culling depends on it.
func TestShapesLipschitz(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 8; iter++ {
		for _, s := range testShapes(rng) {
			for i := 0; i < 512; i++ {
				a := randPoint(rng, 4)
				b := randPoint(rng, 4)
				da, db := s.Distance(a), s.Distance(b)
				sep := ms3.Norm(ms3.Sub(a, b))
				if math32.Abs(da-db) > sep+1e-3 {
					t.Fatalf("Lipschitz violation: |%f-%f| > %f for %+v %+v", da, db, sep, a, b)
				}
			}
		}
	}
}

// Negative SDF points must lie within the reported bounds.
func TestShapeBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for iter := 0; iter < 8; iter++ {
		for _, s := range testShapes(rng) {
			bb := s.Bounds()
			for i := 0; i < 512; i++ {
				p := randPoint(rng, 4)
				if s.Distance(p) < -1e-4 && !boxContains(bb, p) {
					t.Fatalf("interior point %+v outside bounds %+v", p, bb)
				}
			}
		}
	}
}

func boxContains(b ms3.Box, p ms3.Vec) bool {
	return p.X >= b.Min.X && p.Y >= b.Min.Y && p.Z >= b.Min.Z &&
		p.X <= b.Max.X && p.Y <= b.Max.Y && p.Z <= b.Max.Z
}

// Batch evaluation must agree with scalar evaluation.
func TestEvaluateMatchesDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pos := make([]ms3.Vec, 256)
	dist := make([]float32, 256)
	for _, s := range testShapes(rng) {
		for i := range pos {
			pos[i] = randPoint(rng, 4)
		}
		err := s.Evaluate(pos, dist, nil)
		if err != nil {
			t.Fatal(err)
		}
		for i := range pos {
			if got := s.Distance(pos[i]); got != dist[i] {
				t.Fatalf("batch/scalar mismatch at %+v: %f != %f", pos[i], dist[i], got)
			}
		}
		err = s.Evaluate(pos, dist[:1], nil)
		if err == nil {
			t.Error("expected buffer length mismatch error")
		}
	}
}

func TestBuilderErrors(t *testing.T) {
	var bld gvox.Builder
	bld.SetFlags(gvox.FlagNoDimensionPanic)
	s := bld.NewCylinder(ms3.Vec{}, ms3.Vec{Z: 2}, 1, 1) // Non-unit direction.
	if s == nil {
		t.Error("expecting non-nil shape")
	}
	if bld.Err() == nil {
		t.Error("expecting builder error for non-unit direction")
	}
	bld.ClearErrors()
	if bld.Err() != nil {
		t.Error("expected builder errors to be cleared")
	}
	bld.NewCylinder(ms3.Vec{}, ms3.Vec{Z: 1}, -1, 1)
	if bld.Err() == nil {
		t.Error("expecting builder error for negative radius")
	}
	bld.ClearErrors()
	bld.NewLonghole(ms3.Vec{}, ms3.Vec{Z: 1}, ms3.Vec{Z: 1}, 0.5, 1) // Axis parallel to extrude dir.
	if bld.Err() == nil {
		t.Error("expecting builder error for non-perpendicular long-hole axis")
	}
	bld.ClearErrors()
	bld.NewOrientedBox(ms3.Vec{}, ms3.Vec{X: 1}, ms3.Vec{X: 1, Y: 1}, ms3.Vec{Z: 1})
	if bld.Err() == nil {
		t.Error("expecting builder error for non-perpendicular box half-axes")
	}
}

func TestBuilderPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic without FlagNoDimensionPanic")
		}
	}()
	var bld gvox.Builder
	bld.NewCylinder(ms3.Vec{}, ms3.Vec{Z: 2}, 1, 1)
}

func TestShaderGeneration(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	seen := map[string]bool{}
	for _, s := range testShapes(rng) {
		name := string(s.AppendShaderName(nil))
		if name == "" {
			t.Fatal("empty shader name")
		}
		if seen[name] {
			t.Fatalf("duplicate shader name %q", name)
		}
		seen[name] = true
		body := string(s.AppendShaderBody(nil))
		if len(body) == 0 {
			t.Fatalf("empty shader body for %q", name)
		}
	}
	// Identical shapes share a name so pipeline caches can hit.
	var bld gvox.Builder
	a := bld.NewCylinder(ms3.Vec{}, ms3.Vec{Z: 1}, 1, 2)
	b := bld.NewCylinder(ms3.Vec{}, ms3.Vec{Z: 1}, 1, 2)
	if string(a.AppendShaderName(nil)) != string(b.AppendShaderName(nil)) {
		t.Error("equal shapes produced different shader names")
	}
}
