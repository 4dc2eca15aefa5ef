// Package voxel implements dense host-resident voxel grids with
// world-space metadata, shape rasterization with round-mode semantics
// and block-culled SDF traversal.
package voxel

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/soypat/geometry/ms3"
)

const sqrt3 = 1.7320508075688772935274463415058723669428052538103806280558069794

// Cell constrains the element types a host grid can hold.
// Device grids additionally support padded 3- and 4-vector cells, see vgpu.
type Cell interface {
	~uint32 | ~float32
}

// Hdr describes voxel grid geometry. It is shared by host grids and
// device grids so that both index world space identically: cell
// (ix,iy,iz) occupies [Org+(i)*Res, Org+(i+1)*Res) per axis and is
// addressed linearly as ix + iy*Nx + iz*Nx*Ny.
type Hdr struct {
	// Res is the edge length of a cubic cell in world units.
	Res float32
	// Org is the world position of the lower corner of cell (0,0,0).
	Org ms3.Vec
	// Cell counts along each axis.
	Nx, Ny, Nz int
}

// MakeHdr validates grid geometry and returns the header.
func MakeHdr(res float32, nx, ny, nz int, org ms3.Vec) (Hdr, error) {
	if res <= 0 {
		return Hdr{}, errors.New("voxel: non-positive grid resolution")
	}
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return Hdr{}, fmt.Errorf("voxel: non-positive grid dimension %dx%dx%d", nx, ny, nz)
	}
	return Hdr{Res: res, Org: org, Nx: nx, Ny: ny, Nz: nz}, nil
}

// Len returns the total cell count Nx*Ny*Nz.
func (h Hdr) Len() int { return h.Nx * h.Ny * h.Nz }

// LinearIdx converts cell coordinates to the linear buffer index.
func (h Hdr) LinearIdx(ix, iy, iz int) int {
	return ix + iy*h.Nx + iz*h.Nx*h.Ny
}

// CellIdx decomposes a linear buffer index into cell coordinates.
func (h Hdr) CellIdx(i int) (ix, iy, iz int) {
	ix = i % h.Nx
	iy = (i / h.Nx) % h.Ny
	iz = i / (h.Nx * h.Ny)
	return ix, iy, iz
}

// CellCenter returns the world position of the center of cell (ix,iy,iz).
func (h Hdr) CellCenter(ix, iy, iz int) ms3.Vec {
	return ms3.Add(h.Org, ms3.Scale(h.Res, ms3.Vec{
		X: float32(ix) + 0.5,
		Y: float32(iy) + 0.5,
		Z: float32(iz) + 0.5,
	}))
}

// HalfDiagonal returns the distance from a cell center to any of its
// corners, Res*sqrt(3)/2. It is the offset that separates the three
// round modes.
func (h Hdr) HalfDiagonal() float32 { return h.Res * sqrt3 / 2 }

// Equal reports whether two headers describe bit-identical grid geometry.
// Grids combined in a kernel must have equal headers.
func (h Hdr) Equal(other Hdr) bool { return h == other }

// Bounds returns the world-space box spanned by the grid.
func (h Hdr) Bounds() ms3.Box {
	sz := ms3.Scale(h.Res, ms3.Vec{X: float32(h.Nx), Y: float32(h.Ny), Z: float32(h.Nz)})
	return ms3.Box{Min: h.Org, Max: ms3.Add(h.Org, sz)}
}

// Grid is a dense 3D array of cells with world-space metadata.
// Accessors are unchecked beyond slice bounds; index validity is the
// caller's responsibility.
type Grid[T Cell] struct {
	hdr  Hdr
	data []T
}

// NewGrid allocates a zero-initialized host grid.
func NewGrid[T Cell](res float32, nx, ny, nz int, org ms3.Vec) (*Grid[T], error) {
	hdr, err := MakeHdr(res, nx, ny, nz, org)
	if err != nil {
		return nil, err
	}
	return &Grid[T]{hdr: hdr, data: make([]T, hdr.Len())}, nil
}

// NewGridFromHdr allocates a zero-initialized host grid with geometry hdr.
func NewGridFromHdr[T Cell](hdr Hdr) (*Grid[T], error) {
	hdr, err := MakeHdr(hdr.Res, hdr.Nx, hdr.Ny, hdr.Nz, hdr.Org)
	if err != nil {
		return nil, err
	}
	return &Grid[T]{hdr: hdr, data: make([]T, hdr.Len())}, nil
}

// Hdr returns the grid's geometry header.
func (g *Grid[T]) Hdr() Hdr { return g.hdr }

// Len returns the total cell count.
func (g *Grid[T]) Len() int { return len(g.data) }

// Get returns the value of cell (ix,iy,iz).
func (g *Grid[T]) Get(ix, iy, iz int) T {
	return g.data[g.hdr.LinearIdx(ix, iy, iz)]
}

// Set assigns the value of cell (ix,iy,iz).
func (g *Grid[T]) Set(ix, iy, iz int, v T) {
	g.data[g.hdr.LinearIdx(ix, iy, iz)] = v
}

// At returns the value at linear index i.
func (g *Grid[T]) At(i int) T { return g.data[i] }

// SetAt assigns the value at linear index i.
func (g *Grid[T]) SetAt(i int, v T) { g.data[i] = v }

// Fill assigns v to every cell.
func (g *Grid[T]) Fill(v T) {
	for i := range g.data {
		g.data[i] = v
	}
}

// Data returns the grid's backing buffer in linear index order.
func (g *Grid[T]) Data() []T { return g.data }

// Bytes returns the backing buffer as raw bytes for transfer to device
// grids of matching layout.
func (g *Grid[T]) Bytes() []byte {
	var z T
	return unsafe.Slice((*byte)(unsafe.Pointer(&g.data[0])), len(g.data)*int(unsafe.Sizeof(z)))
}

// CellCenter returns the world position of the center of cell (ix,iy,iz).
func (g *Grid[T]) CellCenter(ix, iy, iz int) ms3.Vec {
	return g.hdr.CellCenter(ix, iy, iz)
}

// Clone returns a deep copy with identical metadata and contents.
func (g *Grid[T]) Clone() *Grid[T] {
	data := make([]T, len(g.data))
	copy(data, g.data)
	return &Grid[T]{hdr: g.hdr, data: data}
}

// Count returns the number of cells with non-zero value.
func (g *Grid[T]) Count() int {
	n := 0
	for _, v := range g.data {
		if v != 0 {
			n++
		}
	}
	return n
}

// CountEq returns the number of cells with value v.
func (g *Grid[T]) CountEq(v T) int {
	n := 0
	for _, gv := range g.data {
		if gv == v {
			n++
		}
	}
	return n
}

// CountLessThan returns the number of cells with value less than v.
func (g *Grid[T]) CountLessThan(v T) int {
	n := 0
	for _, gv := range g.data {
		if gv < v {
			n++
		}
	}
	return n
}

// Max returns the maximum cell value.
func (g *Grid[T]) Max() T {
	m := g.data[0]
	for _, v := range g.data[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Volume returns the world-space volume of non-zero cells, Count()*Res³.
func (g *Grid[T]) Volume() float32 {
	return float32(g.Count()) * g.hdr.Res * g.hdr.Res * g.hdr.Res
}

// Copy copies cell contents from src to dst. Fails if metadata differs.
func Copy[T Cell](dst, src *Grid[T]) error {
	if !dst.hdr.Equal(src.hdr) {
		return errors.New("voxel: grid metadata mismatch in copy")
	}
	copy(dst.data, src.data)
	return nil
}
