package voxel_test

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gvox/voxel"
)

func TestTriangleSoupValidation(t *testing.T) {
	_, err := voxel.NewTriangleSoup(nil)
	if err == nil {
		t.Error("expected error for empty soup")
	}
	_, err = voxel.NewTriangleSoup(make([]float32, 10))
	if err == nil {
		t.Error("expected error for truncated soup")
	}
	ts, err := voxel.NewTriangleSoup(make([]float32, 18))
	if err != nil {
		t.Fatal(err)
	}
	if ts.Len() != 2 {
		t.Errorf("soup triangle count: got %d, want 2", ts.Len())
	}
}

func TestTriangleDistance(t *testing.T) {
	// Unit right triangle in the z=0 plane.
	ts, err := voxel.NewTriangleSoup([]float32{
		0, 0, 0,
		1, 0, 0,
		0, 1, 0,
	})
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		p    ms3.Vec
		want float32
	}{
		{ms3.Vec{X: 0.25, Y: 0.25, Z: 0}, 0},          // On the face.
		{ms3.Vec{X: 0.25, Y: 0.25, Z: 2}, 2},          // Above the face.
		{ms3.Vec{X: -1, Y: 0, Z: 0}, 1},               // Past vertex a.
		{ms3.Vec{X: 0.5, Y: -2, Z: 0}, 2},             // Past edge ab.
		{ms3.Vec{X: 1, Y: 1, Z: 0}, math32.Sqrt2 / 2}, // Past the hypotenuse.
	}
	for _, tc := range cases {
		got := ts.Distance(tc.p)
		if math32.Abs(got-tc.want) > 1e-5 {
			t.Errorf("soup distance at %+v: got %f, want %f", tc.p, got, tc.want)
		}
	}
	bb := ts.Bounds()
	if bb.Min != (ms3.Vec{}) || bb.Max != (ms3.Vec{X: 1, Y: 1}) {
		t.Errorf("soup bounds: %+v", bb)
	}
}

func TestFillTrianglesDicesSurface(t *testing.T) {
	// A square surface patch made of two triangles at z=2.05, spanning
	// the grid's x-y extent.
	coords := []float32{
		0, 0, 2.05,
		4, 0, 2.05,
		4, 4, 2.05,

		0, 0, 2.05,
		4, 4, 2.05,
		0, 4, 2.05,
	}
	g, err := voxel.NewGrid[uint32](0.5, 8, 8, 8, ms3.Vec{})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.FillTriangles(coords, 1, voxel.RoundOutside); err != nil {
		t.Fatal(err)
	}
	// Cell layers straddling the patch: centers at z=1.75 and 2.25 are
	// 0.3 and 0.2 from the surface, under the half diagonal 0.433.
	want := 8 * 8 * 2
	if got := g.Count(); got != want {
		t.Errorf("diced cell count: got %d, want %d", got, want)
	}
	// An open surface contains no cell fully, so inside selects nothing.
	h := g.Clone()
	h.Fill(0)
	if err := h.FillTriangles(coords, 1, voxel.RoundInside); err != nil {
		t.Fatal(err)
	}
	if h.Count() != 0 {
		t.Error("inside dicing of an open surface selected cells")
	}
}
