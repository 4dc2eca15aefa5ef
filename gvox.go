// Package gvox implements the shape primitives of a voxel-and-SDF
// computation engine for subtractive machining planners. Shapes model
// tool-swept regions (cylinders, extruded long-holes, oriented boxes)
// as signed distance fields which are rasterized into voxel grids by
// the voxel and vgpu packages.
package gvox

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

const (
	sqrt3 = 1.7320508075688772935274463415058723669428052538103806280558069794
	// epstol is used to check for badly conditioned denominators
	// such as segment lengths used for normalization.
	epstol = 6e-7
	// unittol is the permissible deviation from unit length for
	// user supplied directions and from zero for perpendicularity checks.
	unittol  = 1e-4
	largenum = 1e20
)

// Flags is a bitmask of Builder behavior flags.
type Flags uint64

const (
	// FlagNoDimensionPanic makes the Builder accumulate shape dimension
	// errors instead of panicking. Errors are retrieved with [Builder.Err].
	FlagNoDimensionPanic Flags = 1 << iota
)

// Builder wraps shape primitive construction and validation logic.
// Provides error handling strategies with panics or error accumulation
// during shape generation.
type Builder struct {
	flags     Flags
	accumErrs []error
}

// Flags returns the current builder flags.
func (bld *Builder) Flags() Flags { return bld.flags }

// SetFlags sets the builder flags.
func (bld *Builder) SetFlags(flags Flags) { bld.flags = flags }

// Err returns the accumulated shape construction errors, nil if none.
func (bld *Builder) Err() error {
	if len(bld.accumErrs) == 0 {
		return nil
	}
	return errors.Join(bld.accumErrs...)
}

// ClearErrors discards accumulated errors.
func (bld *Builder) ClearErrors() { bld.accumErrs = nil }

func (bld *Builder) shapeErrorf(msg string, args ...any) {
	if bld.flags&FlagNoDimensionPanic == 0 {
		panic(fmt.Sprintf(msg, args...))
	}
	bld.accumErrs = append(bld.accumErrs, fmt.Errorf(msg, args...))
}

func minf(a, b float32) float32 {
	return math32.Min(a, b)
}

func maxf(a, b float32) float32 {
	return math32.Max(a, b)
}

func absf(a float32) float32 {
	return math32.Abs(a)
}

func hypotf(a, b float32) float32 {
	return math32.Hypot(a, b)
}

func sqrtf(a float32) float32 {
	return math32.Sqrt(a)
}

func clampf(v, Min, Max float32) float32 {
	if v < Min {
		return Min
	} else if v > Max {
		return Max
	}
	return v
}
