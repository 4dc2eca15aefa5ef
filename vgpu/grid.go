package vgpu

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/gvox/voxel"
)

// CellType enumerates the element types a device grid can hold.
// Host grids support only U32 and F32.
type CellType uint8

const (
	// U32 is a 4 byte unsigned integer cell.
	U32 CellType = iota
	// F32 is a 4 byte float cell.
	F32
	// Vec3F is a 3-float vector cell padded to 16 bytes per std430.
	Vec3F
	// Vec4F is a 4-float vector cell, 16 bytes.
	Vec4F
)

func (t CellType) valid() bool { return t <= Vec4F }

// Size returns the byte size of one cell of type t on the device.
func (t CellType) Size() int {
	switch t {
	case U32, F32:
		return 4
	case Vec3F, Vec4F:
		return 16
	}
	return 0
}

func (t CellType) glsl() string {
	switch t {
	case U32:
		return "uint"
	case F32:
		return "float"
	case Vec3F:
		return "vec3"
	case Vec4F:
		return "vec4"
	}
	return "invalid"
}

func (t CellType) String() string {
	switch t {
	case U32:
		return "U32"
	case F32:
		return "F32"
	case Vec3F:
		return "Vec3F"
	case Vec4F:
		return "Vec4F"
	}
	return "unknown"
}

// DeviceGrid is a voxel grid backed by a single device storage buffer
// of Hdr.Len()*CellType.Size() bytes. It is allocated zeroed, mutated
// only through its owning dispatcher's kernels, and holds no per-cell
// read access: contents are observed by copying to a host grid.
type DeviceGrid struct {
	d         *Dispatcher
	hdr       voxel.Hdr
	typ       CellType
	ssbo      uint32
	destroyed bool
}

// NewGrid allocates a zero-initialized device grid owned by the
// dispatcher.
func (d *Dispatcher) NewGrid(hdr voxel.Hdr, typ CellType) (*DeviceGrid, error) {
	if d.terminated {
		return nil, errTerminated
	}
	if !typ.valid() {
		return nil, errors.New("vgpu: unknown cell type")
	}
	hdr, err := voxel.MakeHdr(hdr.Res, hdr.Nx, hdr.Ny, hdr.Nz, hdr.Org)
	if err != nil {
		return nil, err
	}
	ssbo, err := createSSBO(hdr.Len() * typ.Size())
	if err != nil {
		return nil, err
	}
	return &DeviceGrid{d: d, hdr: hdr, typ: typ, ssbo: ssbo}, nil
}

// Hdr returns the grid's geometry header.
func (g *DeviceGrid) Hdr() voxel.Hdr { return g.hdr }

// Type returns the grid's cell type.
func (g *DeviceGrid) Type() CellType { return g.typ }

// ByteLen returns the storage buffer byte length.
func (g *DeviceGrid) ByteLen() int { return g.hdr.Len() * g.typ.Size() }

// Destroy releases the storage buffer. Any kernel taking a destroyed
// grid fails. Destroy is idempotent.
func (g *DeviceGrid) Destroy() {
	if g.destroyed {
		return
	}
	g.destroyed = true
	ssbo := g.ssbo
	g.ssbo = 0
	gl.DeleteBuffers(1, &ssbo)
}

// createSSBO allocates a zero-filled shader storage buffer of the
// given byte size usable as kernel storage and as copy source and
// destination.
func createSSBO(size int) (uint32, error) {
	var ssbo uint32
	var p runtime.Pinner
	p.Pin(&ssbo)
	gl.GenBuffers(1, &ssbo)
	p.Unpin()
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
	zero := make([]byte, size)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, size, unsafe.Pointer(&zero[0]), gl.DYNAMIC_READ)
	if err := glgl.Err(); err != nil {
		return 0, fmt.Errorf("vgpu: allocating storage buffer: %w", err)
	}
	if ssbo == 0 {
		return 0, errors.New("vgpu: zero storage buffer id set by GL")
	}
	return ssbo, nil
}

func readSSBO(dst []byte, ssbo uint32) error {
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
	ptr := gl.MapBufferRange(gl.SHADER_STORAGE_BUFFER, 0, len(dst), gl.MAP_READ_BIT)
	if ptr == nil {
		err := glgl.Err()
		if err == nil {
			err = errors.New("vgpu: failed to map storage buffer for read")
		}
		return err
	}
	defer gl.UnmapBuffer(gl.SHADER_STORAGE_BUFFER)
	copy(dst, unsafe.Slice((*byte)(ptr), len(dst)))
	return nil
}

// Upload writes src into the device grid's storage buffer through the
// device queue. src must match the grid byte length exactly.
func (d *Dispatcher) Upload(dst *DeviceGrid, src []byte) error {
	if err := d.checkGrid(dst); err != nil {
		return err
	}
	if len(src) != dst.ByteLen() {
		return fmt.Errorf("vgpu: upload byte size mismatch: got %d, want %d", len(src), dst.ByteLen())
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, dst.ssbo)
	gl.BufferSubData(gl.SHADER_STORAGE_BUFFER, 0, len(src), unsafe.Pointer(&src[0]))
	return glgl.Err()
}

// Readback copies the device grid's storage buffer into dst, awaiting
// outstanding device work. dst must match the grid byte length
// exactly.
func (d *Dispatcher) Readback(dst []byte, src *DeviceGrid) error {
	if err := d.checkGrid(src); err != nil {
		return err
	}
	if len(dst) != src.ByteLen() {
		return fmt.Errorf("vgpu: readback byte size mismatch: got %d, want %d", len(dst), src.ByteLen())
	}
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)
	if err := readSSBO(dst, src.ssbo); err != nil {
		return err
	}
	return glgl.Err()
}

// CopyDevice copies src's contents to dst queue-side. Byte lengths
// must match exactly.
func (d *Dispatcher) CopyDevice(dst, src *DeviceGrid) error {
	if err := d.checkGrid(src); err != nil {
		return err
	}
	if err := d.checkGrid(dst); err != nil {
		return err
	}
	if dst.ByteLen() != src.ByteLen() {
		return fmt.Errorf("vgpu: device copy byte size mismatch: got %d, want %d", src.ByteLen(), dst.ByteLen())
	}
	gl.BindBuffer(gl.COPY_READ_BUFFER, src.ssbo)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, dst.ssbo)
	gl.CopyBufferSubData(gl.COPY_READ_BUFFER, gl.COPY_WRITE_BUFFER, 0, 0, src.ByteLen())
	return glgl.Err()
}

func hostCellType[T voxel.Cell]() (CellType, error) {
	var z T
	switch any(z).(type) {
	case uint32:
		return U32, nil
	case float32:
		return F32, nil
	}
	return 0, errors.New("vgpu: host cell type has no device equivalent")
}

// UploadGrid transfers a host grid to a device grid of identical
// geometry and matching cell type.
func UploadGrid[T voxel.Cell](d *Dispatcher, dst *DeviceGrid, src *voxel.Grid[T]) error {
	typ, err := hostCellType[T]()
	if err != nil {
		return err
	}
	if err := d.checkGrid(dst); err != nil {
		return err
	}
	if dst.typ != typ {
		return fmt.Errorf("vgpu: upload cell type mismatch: host %s, device %s", typ, dst.typ)
	}
	if !dst.hdr.Equal(src.Hdr()) {
		return errHdrMismatch
	}
	return d.Upload(dst, src.Bytes())
}

// ReadbackGrid transfers a device grid to a host grid of identical
// geometry and matching cell type.
func ReadbackGrid[T voxel.Cell](d *Dispatcher, dst *voxel.Grid[T], src *DeviceGrid) error {
	typ, err := hostCellType[T]()
	if err != nil {
		return err
	}
	if err := d.checkGrid(src); err != nil {
		return err
	}
	if src.typ != typ {
		return fmt.Errorf("vgpu: readback cell type mismatch: host %s, device %s", typ, src.typ)
	}
	if !src.hdr.Equal(dst.Hdr()) {
		return errHdrMismatch
	}
	return d.Readback(dst.Bytes(), src)
}
