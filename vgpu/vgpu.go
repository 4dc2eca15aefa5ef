// Package vgpu implements device-resident voxel grids and the
// programmable per-voxel kernel framework: named map, map-of-two and
// reduce compute pipelines compiled once from GLSL snippets and
// dispatched many times over grids of matching geometry, plus the
// jump-flood distance field and occupancy axis bounds built on top.
//
// The backend is OpenGL 4.3+ compute shaders with shader storage
// buffers. All calls require a current GL context on the calling
// goroutine, see [InitContext].
package vgpu

import (
	"errors"
	"fmt"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/gvox/voxel"
)

// DefaultInvocX is the workgroup size used when none is configured.
const DefaultInvocX = 128

// Package errors returned by dispatcher calls.
var (
	errTerminated    = errors.New("vgpu: dispatcher terminated")
	errGridDestroyed = errors.New("vgpu: device grid destroyed")
	errGridOwner     = errors.New("vgpu: device grid not owned by this dispatcher")
	errHdrMismatch   = errors.New("vgpu: grid metadata mismatch across kernel arguments")
)

// InitContext starts a hidden 1x1 GLFW window so compute loads can run
// on the GPU. It returns a termination function to be called when the
// caller is done dispatching.
func InitContext() (terminate func(), err error) {
	_, terminate, err = glgl.InitWithCurrentWindow33(glgl.WindowConfig{
		Title:   "compute",
		Version: [2]int{4, 6},
		Width:   1,
		Height:  1,
	})
	return terminate, err
}

// Dispatcher owns a GL device context's compiled compute pipelines and
// dispatches them over device grids. Pipelines are compiled once at
// registration and persist until [Dispatcher.Terminate]. The
// dispatcher is the only legal mutator of device grids.
type Dispatcher struct {
	invocX     int
	maps       map[string]*mapKernel
	map2s      map[string]*map2Kernel
	reduces    map[string]*reduceKernel
	fills      map[string]*fillKernel
	df         distFieldKernels
	bound      boundKernels
	scratch    []byte
	terminated bool
}

type pipeline struct {
	prog glgl.Program
	// Uniform locations for grid metadata. A location of -1 marks a
	// uniform eliminated by the shader compiler; setting it is a no-op.
	dims      int32
	originres int32
}

type mapKernel struct {
	pipeline
	in, out CellType
}

type map2Kernel struct {
	pipeline
	in1, in2, out CellType
}

type reduceKernel struct {
	pipeline
	val      CellType
	numelems int32
}

// NewDispatcher creates a dispatcher with workgroup size invocX, or
// [DefaultInvocX] if invocX is zero or negative. invocX must be a
// power of two for the workgroup-shared reduction tree. Requires a
// current GL context.
func NewDispatcher(invocX int) (*Dispatcher, error) {
	if invocX <= 0 {
		invocX = DefaultInvocX
	}
	if invocX&(invocX-1) != 0 {
		return nil, fmt.Errorf("vgpu: workgroup size %d not a power of two", invocX)
	}
	d := &Dispatcher{
		invocX:  invocX,
		maps:    make(map[string]*mapKernel),
		map2s:   make(map[string]*map2Kernel),
		reduces: make(map[string]*reduceKernel),
		fills:   make(map[string]*fillKernel),
		scratch: make([]byte, 0, 4096),
	}
	err := d.compileBuiltins()
	if err != nil {
		d.Terminate()
		return nil, err
	}
	return d, nil
}

// InvocX returns the dispatcher workgroup size.
func (d *Dispatcher) InvocX() int { return d.invocX }

// Terminate frees every compiled pipeline. Registrations and
// dispatches after Terminate fail.
func (d *Dispatcher) Terminate() {
	if d.terminated {
		return
	}
	d.terminated = true
	for _, k := range d.maps {
		k.prog.Delete()
	}
	for _, k := range d.map2s {
		k.prog.Delete()
	}
	for _, k := range d.reduces {
		k.prog.Delete()
	}
	for _, k := range d.fills {
		k.prog.Delete()
	}
	d.df.delete()
	d.bound.delete()
}

func newPipeline(src []byte) (pipeline, error) {
	src = append(src, 0) // GL wants NUL terminated sources.
	prog, err := glgl.CompileProgram(glgl.ShaderSource{Compute: string(src)})
	if err != nil {
		return pipeline{}, fmt.Errorf("vgpu: compiling kernel: %w", err)
	}
	id := prog.ID()
	return pipeline{
		prog:      prog,
		dims:      gl.GetUniformLocation(id, gl.Str("dims\x00")),
		originres: gl.GetUniformLocation(id, gl.Str("originres\x00")),
	}, nil
}

// bindMeta uploads the two grid metadata uniforms bound by every
// dispatch: cell counts with the kernel auxiliary word, and the grid
// origin corner with the cell edge length. The pipeline program must
// be bound.
func (pl *pipeline) bindMeta(hdr voxel.Hdr, aux uint32) {
	gl.Uniform4ui(pl.dims, uint32(hdr.Nx), uint32(hdr.Ny), uint32(hdr.Nz), aux)
	gl.Uniform4f(pl.originres, hdr.Org.X, hdr.Org.Y, hdr.Org.Z, hdr.Res)
}

func (d *Dispatcher) checkGrid(g *DeviceGrid) error {
	switch {
	case d.terminated:
		return errTerminated
	case g == nil:
		return errors.New("vgpu: nil device grid")
	case g.destroyed:
		return errGridDestroyed
	case g.d != d:
		return errGridOwner
	}
	return nil
}

func (d *Dispatcher) dispatchLinear(n int) {
	nWorkX := (n + d.invocX - 1) / d.invocX
	gl.DispatchCompute(uint32(nWorkX), 1, 1)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)
}

const mapShaderTmpl = `#version 430

layout(local_size_x = %d, local_size_y = 1, local_size_z = 1) in;

layout(std430, binding = 0) buffer InBuffer {
	%s vbo_in[];
};

layout(std430, binding = 1) buffer OutBuffer {
	%s vbo_out[];
};

// Grid cell counts. w carries the kernel auxiliary word.
uniform uvec4 dims;
// Grid origin corner, cell edge length in w.
uniform vec4 originres;

void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i >= dims.x*dims.y*dims.z) {
		return;
	}
	uvec3 c = uvec3(i%%dims.x, (i/dims.x)%%dims.y, i/(dims.x*dims.y));
	vec3 p = originres.xyz + (vec3(c)+0.5)*originres.w;
	%s vi = vbo_in[i];
	%s vo;
	{
		%s
	}
	vbo_out[i] = vo;
}
`

const map2ShaderTmpl = `#version 430

layout(local_size_x = %d, local_size_y = 1, local_size_z = 1) in;

layout(std430, binding = 0) buffer In1Buffer {
	%s vbo_in1[];
};

layout(std430, binding = 1) buffer In2Buffer {
	%s vbo_in2[];
};

layout(std430, binding = 2) buffer OutBuffer {
	%s vbo_out[];
};

// Grid cell counts. w carries the kernel auxiliary word.
uniform uvec4 dims;
// Grid origin corner, cell edge length in w.
uniform vec4 originres;

void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i >= dims.x*dims.y*dims.z) {
		return;
	}
	uvec3 c = uvec3(i%%dims.x, (i/dims.x)%%dims.y, i/(dims.x*dims.y));
	vec3 p = originres.xyz + (vec3(c)+0.5)*originres.w;
	%s v1 = vbo_in1[i];
	%s v2 = vbo_in2[i];
	%s vo;
	{
		%s
	}
	vbo_out[i] = vo;
}
`

// RegisterMapFn compiles a map pipeline under a unique name. For each
// cell i the kernel body sees p (the cell center), vi (the input cell
// value of type in) and assigns vo (the output cell value of type
// out). The input and output buffers are guaranteed distinct; aliasing
// is resolved by the dispatcher at dispatch time.
func (d *Dispatcher) RegisterMapFn(name string, in, out CellType, body string) error {
	if d.terminated {
		return errTerminated
	}
	if !in.valid() || !out.valid() {
		return errors.New("vgpu: unknown cell type")
	}
	if _, exists := d.maps[name]; exists {
		return fmt.Errorf("vgpu: map kernel %q already registered", name)
	}
	d.scratch = fmt.Appendf(d.scratch[:0], mapShaderTmpl, d.invocX, in.glsl(), out.glsl(), in.glsl(), out.glsl(), body)
	pl, err := newPipeline(d.scratch)
	if err != nil {
		return fmt.Errorf("map kernel %q: %w", name, err)
	}
	d.maps[name] = &mapKernel{pipeline: pl, in: in, out: out}
	return nil
}

// RegisterMap2Fn compiles a two-input map pipeline under a unique
// name. The body sees p, v1, v2 and assigns vo.
func (d *Dispatcher) RegisterMap2Fn(name string, in1, in2, out CellType, body string) error {
	if d.terminated {
		return errTerminated
	}
	if !in1.valid() || !in2.valid() || !out.valid() {
		return errors.New("vgpu: unknown cell type")
	}
	if _, exists := d.map2s[name]; exists {
		return fmt.Errorf("vgpu: map2 kernel %q already registered", name)
	}
	d.scratch = fmt.Appendf(d.scratch[:0], map2ShaderTmpl, d.invocX,
		in1.glsl(), in2.glsl(), out.glsl(), in1.glsl(), in2.glsl(), out.glsl(), body)
	pl, err := newPipeline(d.scratch)
	if err != nil {
		return fmt.Errorf("map2 kernel %q: %w", name, err)
	}
	d.map2s[name] = &map2Kernel{pipeline: pl, in1: in1, in2: in2, out: out}
	return nil
}

// Map dispatches a registered map kernel reading src and writing dst.
// Metadata and cell types are checked before any device side effect.
// dst may alias src: the dispatcher then runs the kernel out-of-place
// through a temporary grid and copies back.
func (d *Dispatcher) Map(name string, dst, src *DeviceGrid) error {
	k, ok := d.maps[name]
	if !ok {
		return fmt.Errorf("vgpu: map kernel %q not registered", name)
	}
	if err := d.checkGrid(src); err != nil {
		return err
	}
	if err := d.checkGrid(dst); err != nil {
		return err
	}
	if src.typ != k.in || dst.typ != k.out {
		return fmt.Errorf("vgpu: map kernel %q cell type mismatch: got %s->%s, want %s->%s",
			name, src.typ, dst.typ, k.in, k.out)
	}
	if !src.hdr.Equal(dst.hdr) {
		return errHdrMismatch
	}
	if dst.ssbo == src.ssbo {
		tmp, err := d.NewGrid(dst.hdr, k.out)
		if err != nil {
			return err
		}
		defer tmp.Destroy()
		d.runMap(k, tmp, src)
		if err := d.CopyDevice(dst, tmp); err != nil {
			return err
		}
		return glgl.Err()
	}
	d.runMap(k, dst, src)
	return glgl.Err()
}

func (d *Dispatcher) runMap(k *mapKernel, dst, src *DeviceGrid) {
	k.prog.Bind()
	defer k.prog.Unbind()
	k.bindMeta(src.hdr, 0)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, src.ssbo)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, dst.ssbo)
	d.dispatchLinear(src.hdr.Len())
}

// Map2 dispatches a registered two-input map kernel. dst may alias
// either input.
func (d *Dispatcher) Map2(name string, dst, a, b *DeviceGrid) error {
	k, ok := d.map2s[name]
	if !ok {
		return fmt.Errorf("vgpu: map2 kernel %q not registered", name)
	}
	for _, g := range []*DeviceGrid{a, b, dst} {
		if err := d.checkGrid(g); err != nil {
			return err
		}
	}
	if a.typ != k.in1 || b.typ != k.in2 || dst.typ != k.out {
		return fmt.Errorf("vgpu: map2 kernel %q cell type mismatch", name)
	}
	if !a.hdr.Equal(b.hdr) || !a.hdr.Equal(dst.hdr) {
		return errHdrMismatch
	}
	if dst.ssbo == a.ssbo || dst.ssbo == b.ssbo {
		tmp, err := d.NewGrid(dst.hdr, k.out)
		if err != nil {
			return err
		}
		defer tmp.Destroy()
		d.runMap2(k, tmp, a, b)
		if err := d.CopyDevice(dst, tmp); err != nil {
			return err
		}
		return glgl.Err()
	}
	d.runMap2(k, dst, a, b)
	return glgl.Err()
}

func (d *Dispatcher) runMap2(k *map2Kernel, dst, a, b *DeviceGrid) {
	k.prog.Bind()
	defer k.prog.Unbind()
	k.bindMeta(a.hdr, 0)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, a.ssbo)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, b.ssbo)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 2, dst.ssbo)
	d.dispatchLinear(a.hdr.Len())
}
