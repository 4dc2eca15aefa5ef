package voxel

import (
	"errors"

	"github.com/soypat/geometry/ms3"
)

// SDF is the scalar signed distance contract consumed by traversal and
// rasterization. Implementations must be true SDFs: the magnitude of
// the returned distance must lower-bound Euclidean distance to the
// shape boundary, or block culling will wrongly discard cells.
type SDF interface {
	Distance(p ms3.Vec) float32
}

// RoundMode selects how a continuous shape maps to discrete cells.
type RoundMode uint8

const (
	// RoundInside selects only cells fully contained in the shape.
	RoundInside RoundMode = iota
	// RoundOutside conservatively selects every cell whose volume may
	// touch the shape.
	RoundOutside
	// RoundNearest selects cells whose center is inside the shape.
	RoundNearest
)

func (m RoundMode) String() string {
	switch m {
	case RoundInside:
		return "inside"
	case RoundOutside:
		return "outside"
	case RoundNearest:
		return "nearest"
	}
	return "unknown"
}

// Offset returns the SDF threshold offset implementing the round mode
// on a grid with half-diagonal halfDiag: a cell is selected when
// SDF(center) <= Offset.
func (m RoundMode) Offset(halfDiag float32) (float32, error) {
	switch m {
	case RoundInside:
		return -halfDiag, nil
	case RoundOutside:
		return halfDiag, nil
	case RoundNearest:
		return 0, nil
	}
	return 0, errors.New("voxel: unknown round mode")
}

// blockSide is the cell count per side of traversal culling blocks.
// Chosen to balance per-block SDF evaluation cost against false
// positive block admission.
const blockSide = 8

// ForEachSelected visits every cell with sdf(center) <= offset.
// Whole blocks of blockSide³ cells are culled with a single SDF
// evaluation at the block center. Within a block cells are visited in
// z-major then y then x order; the order across blocks is
// deterministic for a given grid. The visitor returning true
// terminates traversal early.
func (g *Grid[T]) ForEachSelected(sdf SDF, offset float32, visit func(ix, iy, iz int) bool) {
	h := g.hdr
	blockCull := offset + h.Res*blockSide*sqrt3/2
	for bz := 0; bz < h.Nz; bz += blockSide {
		for by := 0; by < h.Ny; by += blockSide {
			for bx := 0; bx < h.Nx; bx += blockSide {
				bc := ms3.Add(h.Org, ms3.Scale(h.Res, ms3.Vec{
					X: float32(bx) + blockSide/2,
					Y: float32(by) + blockSide/2,
					Z: float32(bz) + blockSide/2,
				}))
				if sdf.Distance(bc) > blockCull {
					continue
				}
				zlim := min(bz+blockSide, h.Nz)
				ylim := min(by+blockSide, h.Ny)
				xlim := min(bx+blockSide, h.Nx)
				for iz := bz; iz < zlim; iz++ {
					for iy := by; iy < ylim; iy++ {
						for ix := bx; ix < xlim; ix++ {
							if sdf.Distance(h.CellCenter(ix, iy, iz)) > offset {
								continue
							}
							if visit(ix, iy, iz) {
								return
							}
						}
					}
				}
			}
		}
	}
}

// FillShape rasterizes the shape into the grid, assigning v to every
// selected cell per the round mode. Other cells are left untouched.
func (g *Grid[T]) FillShape(sdf SDF, v T, mode RoundMode) error {
	offset, err := mode.Offset(g.hdr.HalfDiagonal())
	if err != nil {
		return err
	}
	g.ForEachSelected(sdf, offset, func(ix, iy, iz int) bool {
		g.Set(ix, iy, iz, v)
		return false
	})
	return nil
}

// EveryPointInsideIs reports whether pred holds for every cell fully
// contained in the shape. Short-circuits on the first counterexample.
func (g *Grid[T]) EveryPointInsideIs(sdf SDF, pred func(ix, iy, iz int, v T) bool) bool {
	every := true
	g.ForEachSelected(sdf, -g.hdr.HalfDiagonal(), func(ix, iy, iz int) bool {
		if !pred(ix, iy, iz, g.Get(ix, iy, iz)) {
			every = false
			return true
		}
		return false
	})
	return every
}

// AnyPointInsideIs reports whether pred holds for some cell fully
// contained in the shape. Short-circuits on the first witness.
func (g *Grid[T]) AnyPointInsideIs(sdf SDF, pred func(ix, iy, iz int, v T) bool) bool {
	any := false
	g.ForEachSelected(sdf, -g.hdr.HalfDiagonal(), func(ix, iy, iz int) bool {
		if pred(ix, iy, iz, g.Get(ix, iy, iz)) {
			any = true
			return true
		}
		return false
	})
	return any
}
