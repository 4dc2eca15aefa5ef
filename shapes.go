package gvox

import (
	"github.com/soypat/geometry/ms3"
)

// Shape is a solid tool-shaped region expressed as a signed distance
// field. The distance is negative inside the shape, zero on the
// boundary and positive outside, and its magnitude lower-bounds the
// true Euclidean distance to the boundary (1-Lipschitz). Block culling
// in the voxel package and device rasterization in vgpu rely on this.
type Shape interface {
	// Distance returns the signed distance from p to the shape boundary.
	Distance(p ms3.Vec) float32
	// Evaluate computes the signed distance at every position in pos
	// and stores results to dist. Both buffers must be equal in length.
	Evaluate(pos []ms3.Vec, dist []float32, userData any) error
	// Bounds returns a box containing the region where the SDF is negative.
	Bounds() ms3.Box
	// AppendShaderName appends a name unique to the shape and its
	// dimensions to b. Used as a compiled-pipeline cache key.
	AppendShaderName(b []byte) []byte
	// AppendShaderBody appends the GLSL body of a float(vec3 p)
	// distance function evaluating the shape's SDF.
	AppendShaderBody(b []byte) []byte
}

type cylinder struct {
	p ms3.Vec // Base cap center.
	n ms3.Vec // Unit axis direction.
	r float32
	h float32
}

// NewCylinder creates a capped cylinder spanning from p to p+h*n with
// radius r. n must be unit length.
func (bld *Builder) NewCylinder(p, n ms3.Vec, r, h float32) Shape {
	if absf(ms3.Norm(n)-1) > unittol {
		bld.shapeErrorf("non-unit cylinder direction")
	}
	if r < 0 || h < 0 {
		bld.shapeErrorf("negative cylinder dimension")
	}
	return &cylinder{p: p, n: n, r: r, h: h}
}

func (c *cylinder) Distance(x ms3.Vec) float32 {
	q := ms3.Sub(x, c.p)
	ax := ms3.Dot(q, c.n)
	rv := ms3.Sub(q, ms3.Scale(ax, c.n))
	dax := absf(ax-0.5*c.h) - 0.5*c.h
	drad := ms3.Norm(rv) - c.r
	return minf(maxf(dax, drad), 0) + hypotf(maxf(dax, 0), maxf(drad, 0))
}

func (c *cylinder) Bounds() ms3.Box {
	// Per-axis radial extent of a capped cylinder AABB.
	e := ms3.Vec{
		X: c.r * sqrtclamp(1-c.n.X*c.n.X),
		Y: c.r * sqrtclamp(1-c.n.Y*c.n.Y),
		Z: c.r * sqrtclamp(1-c.n.Z*c.n.Z),
	}
	top := ms3.Add(c.p, ms3.Scale(c.h, c.n))
	return ms3.Box{
		Min: ms3.Sub(ms3.MinElem(c.p, top), e),
		Max: ms3.Add(ms3.MaxElem(c.p, top), e),
	}
}

func (c *cylinder) AppendShaderName(b []byte) []byte {
	b = append(b, "cyl"...)
	pa := c.p.Array()
	na := c.n.Array()
	b = appendFloats(b, 0, 'n', 'p', pa[:]...)
	b = appendFloats(b, 0, 'n', 'p', na[:]...)
	b = appendFloats(b, 0, 'n', 'p', c.r, c.h)
	return b
}

func (c *cylinder) AppendShaderBody(b []byte) []byte {
	b = appendVec3Decl(b, "a", c.p)
	b = appendVec3Decl(b, "n", c.n)
	b = appendFloatDecl(b, "r", c.r)
	b = appendFloatDecl(b, "h", c.h)
	b = append(b, `vec3 q = p-a;
float ax = dot(q,n);
vec3 rv = q-ax*n;
vec2 d = vec2(abs(ax-0.5*h)-0.5*h, length(rv)-r);
return min(max(d.x,d.y),0.0) + length(max(d,0.0));`...)
	return b
}

type longhole struct {
	p ms3.Vec // Long-hole axis start.
	q ms3.Vec // Long-hole axis end. q-p is perpendicular to n.
	n ms3.Vec // Unit extrusion direction.
	r float32
	h float32
}

// NewLonghole creates an extruded long-hole: a stadium section of
// radius r along segment pq, extruded by h along unit direction n.
// q-p must be perpendicular to n.
func (bld *Builder) NewLonghole(p, q, n ms3.Vec, r, h float32) Shape {
	if absf(ms3.Norm(n)-1) > unittol {
		bld.shapeErrorf("non-unit long-hole extrude direction")
	}
	pq := ms3.Sub(q, p)
	if l := ms3.Norm(pq); l > epstol && absf(ms3.Dot(pq, n)) > unittol*l {
		bld.shapeErrorf("long-hole axis not perpendicular to extrude direction")
	}
	if r < 0 || h < 0 {
		bld.shapeErrorf("negative long-hole dimension")
	}
	return &longhole{p: p, q: q, n: n, r: r, h: h}
}

func (e *longhole) axisT(w ms3.Vec) float32 {
	pq := ms3.Sub(e.q, e.p)
	len2 := ms3.Dot(pq, pq)
	if len2 < epstol {
		return 0 // Degenerate stadium is a circle.
	}
	return clampf(ms3.Dot(w, pq)/len2, 0, 1)
}

func (e *longhole) Distance(x ms3.Vec) float32 {
	q := ms3.Sub(x, e.p)
	ax := ms3.Dot(q, e.n)
	w := ms3.Sub(q, ms3.Scale(ax, e.n))
	pq := ms3.Sub(e.q, e.p)
	t := e.axisT(w)
	drad := ms3.Norm(ms3.Sub(w, ms3.Scale(t, pq))) - e.r
	dax := absf(ax-0.5*e.h) - 0.5*e.h
	return minf(maxf(dax, drad), 0) + hypotf(maxf(dax, 0), maxf(drad, 0))
}

func (e *longhole) Bounds() ms3.Box {
	lo := ms3.MinElem(e.p, e.q)
	hi := ms3.MaxElem(e.p, e.q)
	ext := ms3.Scale(e.h, e.n)
	lo = ms3.MinElem(lo, ms3.Add(lo, ext))
	hi = ms3.MaxElem(hi, ms3.Add(hi, ext))
	return ms3.Box{
		Min: ms3.AddScalar(-e.r, lo),
		Max: ms3.AddScalar(e.r, hi),
	}
}

func (e *longhole) AppendShaderName(b []byte) []byte {
	b = append(b, "elh"...)
	pa := e.p.Array()
	qa := e.q.Array()
	na := e.n.Array()
	b = appendFloats(b, 0, 'n', 'p', pa[:]...)
	b = appendFloats(b, 0, 'n', 'p', qa[:]...)
	b = appendFloats(b, 0, 'n', 'p', na[:]...)
	b = appendFloats(b, 0, 'n', 'p', e.r, e.h)
	return b
}

func (e *longhole) AppendShaderBody(b []byte) []byte {
	b = appendVec3Decl(b, "a", e.p)
	b = appendVec3Decl(b, "n", e.n)
	b = appendVec3Decl(b, "pq", ms3.Sub(e.q, e.p))
	b = appendFloatDecl(b, "r", e.r)
	b = appendFloatDecl(b, "h", e.h)
	b = append(b, "vec3 q = p-a;\nfloat ax = dot(q,n);\nvec3 w = q-ax*n;\n"...)
	if ms3.Dot(ms3.Sub(e.q, e.p), ms3.Sub(e.q, e.p)) < epstol {
		b = append(b, "float t = 0.0;\n"...)
	} else {
		b = append(b, "float t = clamp(dot(w,pq)/dot(pq,pq), 0.0, 1.0);\n"...)
	}
	b = append(b, `vec2 d = vec2(abs(ax-0.5*h)-0.5*h, length(w-t*pq)-r);
return min(max(d.x,d.y),0.0) + length(max(d,0.0));`...)
	return b
}

type orientedBox struct {
	c          ms3.Vec
	u0, u1, u2 ms3.Vec // Unit axes of the box frame.
	l0, l1, l2 float32 // Half extents along each axis.
}

// NewOrientedBox creates a box centered at c with three mutually
// perpendicular half-axis vectors. The half-axis magnitudes set the
// box half extents.
func (bld *Builder) NewOrientedBox(c, h0, h1, h2 ms3.Vec) Shape {
	l0, l1, l2 := ms3.Norm(h0), ms3.Norm(h1), ms3.Norm(h2)
	if l0 < epstol || l1 < epstol || l2 < epstol {
		bld.shapeErrorf("zero oriented box half-axis")
		return &orientedBox{c: c, u0: ms3.Vec{X: 1}, u1: ms3.Vec{Y: 1}, u2: ms3.Vec{Z: 1}}
	}
	u0 := ms3.Scale(1/l0, h0)
	u1 := ms3.Scale(1/l1, h1)
	u2 := ms3.Scale(1/l2, h2)
	if absf(ms3.Dot(u0, u1)) > unittol || absf(ms3.Dot(u1, u2)) > unittol || absf(ms3.Dot(u0, u2)) > unittol {
		bld.shapeErrorf("oriented box half-axes not perpendicular")
	}
	return &orientedBox{c: c, u0: u0, u1: u1, u2: u2, l0: l0, l1: l1, l2: l2}
}

func (s *orientedBox) Distance(x ms3.Vec) float32 {
	d := ms3.Sub(x, s.c)
	q := ms3.Vec{
		X: absf(ms3.Dot(d, s.u0)) - s.l0,
		Y: absf(ms3.Dot(d, s.u1)) - s.l1,
		Z: absf(ms3.Dot(d, s.u2)) - s.l2,
	}
	return minf(maxf(q.X, maxf(q.Y, q.Z)), 0) + ms3.Norm(ms3.MaxElem(q, ms3.Vec{}))
}

func (s *orientedBox) Bounds() ms3.Box {
	e := ms3.Vec{
		X: s.l0*absf(s.u0.X) + s.l1*absf(s.u1.X) + s.l2*absf(s.u2.X),
		Y: s.l0*absf(s.u0.Y) + s.l1*absf(s.u1.Y) + s.l2*absf(s.u2.Y),
		Z: s.l0*absf(s.u0.Z) + s.l1*absf(s.u1.Z) + s.l2*absf(s.u2.Z),
	}
	return ms3.Box{Min: ms3.Sub(s.c, e), Max: ms3.Add(s.c, e)}
}

func (s *orientedBox) AppendShaderName(b []byte) []byte {
	b = append(b, "obox"...)
	ca := s.c.Array()
	b = appendFloats(b, 0, 'n', 'p', ca[:]...)
	for _, u := range []ms3.Vec{s.u0, s.u1, s.u2} {
		ua := u.Array()
		b = appendFloats(b, 0, 'n', 'p', ua[:]...)
	}
	b = appendFloats(b, 0, 'n', 'p', s.l0, s.l1, s.l2)
	return b
}

func (s *orientedBox) AppendShaderBody(b []byte) []byte {
	b = appendVec3Decl(b, "c", s.c)
	b = appendVec3Decl(b, "u0", s.u0)
	b = appendVec3Decl(b, "u1", s.u1)
	b = appendVec3Decl(b, "u2", s.u2)
	b = appendVec3Decl(b, "l", ms3.Vec{X: s.l0, Y: s.l1, Z: s.l2})
	b = append(b, `vec3 d = p-c;
vec3 q = vec3(abs(dot(d,u0)), abs(dot(d,u1)), abs(dot(d,u2))) - l;
return min(max(q.x,max(q.y,q.z)),0.0) + length(max(q,0.0));`...)
	return b
}

func sqrtclamp(v float32) float32 {
	if v <= 0 {
		return 0
	}
	return sqrtf(v)
}
