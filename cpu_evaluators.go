package gvox

import (
	"errors"

	"github.com/soypat/geometry/ms3"
)

func checkBuffers(pos []ms3.Vec, dist []float32) error {
	if len(pos) != len(dist) {
		return errors.New("position and distance buffer length mismatch")
	}
	return nil
}

func (c *cylinder) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if err := checkBuffers(pos, dist); err != nil {
		return err
	}
	for i, x := range pos {
		q := ms3.Sub(x, c.p)
		ax := ms3.Dot(q, c.n)
		rv := ms3.Sub(q, ms3.Scale(ax, c.n))
		dax := absf(ax-0.5*c.h) - 0.5*c.h
		drad := ms3.Norm(rv) - c.r
		dist[i] = minf(maxf(dax, drad), 0) + hypotf(maxf(dax, 0), maxf(drad, 0))
	}
	return nil
}

func (e *longhole) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if err := checkBuffers(pos, dist); err != nil {
		return err
	}
	pq := ms3.Sub(e.q, e.p)
	for i, x := range pos {
		q := ms3.Sub(x, e.p)
		ax := ms3.Dot(q, e.n)
		w := ms3.Sub(q, ms3.Scale(ax, e.n))
		t := e.axisT(w)
		drad := ms3.Norm(ms3.Sub(w, ms3.Scale(t, pq))) - e.r
		dax := absf(ax-0.5*e.h) - 0.5*e.h
		dist[i] = minf(maxf(dax, drad), 0) + hypotf(maxf(dax, 0), maxf(drad, 0))
	}
	return nil
}

func (s *orientedBox) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if err := checkBuffers(pos, dist); err != nil {
		return err
	}
	for i, x := range pos {
		d := ms3.Sub(x, s.c)
		q := ms3.Vec{
			X: absf(ms3.Dot(d, s.u0)) - s.l0,
			Y: absf(ms3.Dot(d, s.u1)) - s.l1,
			Z: absf(ms3.Dot(d, s.u2)) - s.l2,
		}
		dist[i] = minf(maxf(q.X, maxf(q.Y, q.Z)), 0) + ms3.Norm(ms3.MaxElem(q, ms3.Vec{}))
	}
	return nil
}
