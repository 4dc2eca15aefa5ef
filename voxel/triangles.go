package voxel

import (
	"errors"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// TriangleSoup is an unsigned distance field over a flat triangle
// sequence: 3 vertices of 3 floats per triangle, world units. It
// implements [SDF] (the distance is never negative) so surface dicing
// reuses block-culled traversal; with [RoundOutside] every cell whose
// volume may touch the surface is selected.
type TriangleSoup struct {
	tri []ms3.Triangle
}

// NewTriangleSoup validates and wraps a flat coordinate sequence of
// 9*N floats as N triangles.
func NewTriangleSoup(coords []float32) (*TriangleSoup, error) {
	if len(coords) == 0 || len(coords)%9 != 0 {
		return nil, errors.New("voxel: triangle soup length not a multiple of 9")
	}
	tri := make([]ms3.Triangle, len(coords)/9)
	for i := range tri {
		c := coords[i*9:]
		tri[i] = ms3.Triangle{
			{X: c[0], Y: c[1], Z: c[2]},
			{X: c[3], Y: c[4], Z: c[5]},
			{X: c[6], Y: c[7], Z: c[8]},
		}
	}
	return &TriangleSoup{tri: tri}, nil
}

// Len returns the triangle count.
func (ts *TriangleSoup) Len() int { return len(ts.tri) }

// Distance returns the unsigned distance from p to the nearest triangle.
func (ts *TriangleSoup) Distance(p ms3.Vec) float32 {
	d2 := float32(math32.MaxFloat32)
	for i := range ts.tri {
		d2 = math32.Min(d2, triDist2(p, ts.tri[i]))
	}
	return math32.Sqrt(d2)
}

// Bounds returns the box containing all triangles.
func (ts *TriangleSoup) Bounds() ms3.Box {
	bb := ms3.Box{
		Min: ms3.Vec{X: math32.Inf(1), Y: math32.Inf(1), Z: math32.Inf(1)},
		Max: ms3.Vec{X: math32.Inf(-1), Y: math32.Inf(-1), Z: math32.Inf(-1)},
	}
	for i := range ts.tri {
		for _, v := range ts.tri[i] {
			bb.Min = ms3.MinElem(bb.Min, v)
			bb.Max = ms3.MaxElem(bb.Max, v)
		}
	}
	return bb
}

// FillTriangles dices a triangle soup into the grid: cells within the
// round-mode offset of the surface are assigned v. RoundInside selects
// nothing on a surface since the unsigned distance is never below the
// negative offset.
func (g *Grid[T]) FillTriangles(coords []float32, v T, mode RoundMode) error {
	ts, err := NewTriangleSoup(coords)
	if err != nil {
		return err
	}
	return g.FillShape(ts, v, mode)
}

// triDist2 returns the squared distance from p to triangle t.
// Region classification per Ericson, Real-Time Collision Detection §5.1.5.
func triDist2(p ms3.Vec, t ms3.Triangle) float32 {
	a, b, c := t[0], t[1], t[2]
	ab := ms3.Sub(b, a)
	ac := ms3.Sub(c, a)
	ap := ms3.Sub(p, a)
	d1 := ms3.Dot(ab, ap)
	d2 := ms3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return ms3.Dot(ap, ap) // Vertex region a.
	}
	bp := ms3.Sub(p, b)
	d3 := ms3.Dot(ab, bp)
	d4 := ms3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return ms3.Dot(bp, bp) // Vertex region b.
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3) // Edge region ab.
		e := ms3.Sub(ap, ms3.Scale(v, ab))
		return ms3.Dot(e, e)
	}
	cp := ms3.Sub(p, c)
	d5 := ms3.Dot(ab, cp)
	d6 := ms3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return ms3.Dot(cp, cp) // Vertex region c.
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6) // Edge region ac.
		e := ms3.Sub(ap, ms3.Scale(w, ac))
		return ms3.Dot(e, e)
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6)) // Edge region bc.
		e := ms3.Sub(bp, ms3.Scale(w, ms3.Sub(c, b)))
		return ms3.Dot(e, e)
	}
	denom := 1 / (va + vb + vc) // Face region.
	v := vb * denom
	w := vc * denom
	q := ms3.Add(a, ms3.Add(ms3.Scale(v, ab), ms3.Scale(w, ac)))
	e := ms3.Sub(p, q)
	return ms3.Dot(e, e)
}
