package voxel_test

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gvox/voxel"
)

func TestHdrValidation(t *testing.T) {
	_, err := voxel.MakeHdr(0, 4, 4, 4, ms3.Vec{})
	if err == nil {
		t.Error("expected error for zero resolution")
	}
	_, err = voxel.MakeHdr(1, 4, 0, 4, ms3.Vec{})
	if err == nil {
		t.Error("expected error for zero dimension")
	}
	_, err = voxel.NewGrid[uint32](-1, 4, 4, 4, ms3.Vec{})
	if err == nil {
		t.Error("expected error for negative resolution")
	}
}

func TestHdrIndexing(t *testing.T) {
	hdr, err := voxel.MakeHdr(0.25, 7, 5, 3, ms3.Vec{X: -1, Y: 2, Z: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Len() != 7*5*3 {
		t.Fatalf("bad length %d", hdr.Len())
	}
	for i := 0; i < hdr.Len(); i++ {
		ix, iy, iz := hdr.CellIdx(i)
		if got := hdr.LinearIdx(ix, iy, iz); got != i {
			t.Fatalf("index roundtrip %d -> (%d,%d,%d) -> %d", i, ix, iy, iz, got)
		}
		c := hdr.CellCenter(ix, iy, iz)
		want := ms3.Add(hdr.Org, ms3.Scale(hdr.Res, ms3.Vec{
			X: float32(ix) + 0.5, Y: float32(iy) + 0.5, Z: float32(iz) + 0.5,
		}))
		if c != want {
			t.Fatalf("center of (%d,%d,%d): got %+v, want %+v", ix, iy, iz, c, want)
		}
	}
	hd := hdr.HalfDiagonal()
	want := 0.25 * math32.Sqrt(3) / 2
	if math32.Abs(hd-want) > 1e-6 {
		t.Errorf("half diagonal: got %f, want %f", hd, want)
	}
}

func TestGridAccessors(t *testing.T) {
	g, err := voxel.NewGrid[float32](1, 4, 3, 2, ms3.Vec{})
	if err != nil {
		t.Fatal(err)
	}
	if g.Count() != 0 {
		t.Error("new grid not zero initialized")
	}
	g.Set(1, 2, 1, 2.5)
	if g.Get(1, 2, 1) != 2.5 {
		t.Error("set/get mismatch")
	}
	if g.Count() != 1 || g.CountEq(2.5) != 1 {
		t.Error("count after single set")
	}
	g.Fill(3)
	if g.CountEq(3) != g.Len() {
		t.Error("fill did not assign every cell")
	}
	if g.Max() != 3 {
		t.Error("max after fill")
	}
	if g.CountLessThan(3) != 0 || g.CountLessThan(4) != g.Len() {
		t.Error("count less than")
	}
	if v := g.Volume(); v != float32(g.Len()) {
		t.Errorf("volume: got %f", v)
	}
	if len(g.Bytes()) != 4*g.Len() {
		t.Error("byte view length")
	}
}

func TestCloneIndependence(t *testing.T) {
	g, _ := voxel.NewGrid[uint32](0.5, 5, 5, 5, ms3.Vec{X: 1})
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < g.Len(); i++ {
		g.SetAt(i, rng.Uint32()%7)
	}
	c := g.Clone()
	if !c.Hdr().Equal(g.Hdr()) {
		t.Fatal("clone metadata differs")
	}
	for i := 0; i < g.Len(); i++ {
		if c.At(i) != g.At(i) {
			t.Fatal("clone contents differ")
		}
	}
	c.SetAt(0, 99)
	if g.At(0) == 99 {
		t.Fatal("clone aliases source buffer")
	}
}

func TestCopyHostHost(t *testing.T) {
	a, _ := voxel.NewGrid[float32](1, 3, 3, 3, ms3.Vec{})
	b, _ := voxel.NewGrid[float32](1, 3, 3, 3, ms3.Vec{})
	a.Fill(1.5)
	if err := voxel.Copy(b, a); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < a.Len(); i++ {
		if a.At(i) != b.At(i) {
			t.Fatal("copy contents differ")
		}
	}
	c, _ := voxel.NewGrid[float32](1, 3, 3, 4, ms3.Vec{})
	if err := voxel.Copy(c, a); err == nil {
		t.Error("expected metadata mismatch error")
	}
	d, _ := voxel.NewGrid[float32](1, 3, 3, 3, ms3.Vec{X: 1})
	if err := voxel.Copy(d, a); err == nil {
		t.Error("expected offset mismatch error")
	}
}
