package vgpu

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/v4.6-core/glgl"
)

const reduceShaderTmpl = `#version 430

layout(local_size_x = %[1]d, local_size_y = 1, local_size_z = 1) in;

layout(std430, binding = 0) buffer InBuffer {
	%[2]s vbo_in[];
};

layout(std430, binding = 1) buffer OutBuffer {
	%[2]s vbo_out[];
};

// Grid cell counts. w carries the kernel auxiliary word.
uniform uvec4 dims;
// Grid origin corner, cell edge length in w.
uniform vec4 originres;
// Element count folded this round; shrinks across rounds.
uniform uint numelems;

shared %[2]s sdata[%[1]d];

%[2]s combine(%[2]s a, %[2]s b) {
	%[3]s
}

void main() {
	uint gid = gl_GlobalInvocationID.x;
	uint lid = gl_LocalInvocationID.x;
	%[2]s v = %[4]s;
	if (gid < numelems) {
		v = vbo_in[gid];
	}
	sdata[lid] = v;
	barrier();
	for (uint s = %[1]du/2u; s > 0u; s >>= 1u) {
		if (lid < s) {
			sdata[lid] = combine(sdata[lid], sdata[lid+s]);
		}
		barrier();
	}
	if (lid == 0u) {
		vbo_out[gl_WorkGroupID.x] = sdata[0];
	}
}
`

// RegisterReduceFn compiles a reduce pipeline under a unique name.
// The combine body implements a pure, commutative, associative fold of
// two values a and b of the value type; initExpr is its neutral
// element. The dispatcher folds tree-wise inside each workgroup, then
// iterates across workgroups until one element remains.
func (d *Dispatcher) RegisterReduceFn(name string, val CellType, initExpr, combineBody string) error {
	if d.terminated {
		return errTerminated
	}
	if !val.valid() {
		return errors.New("vgpu: unknown cell type")
	}
	if _, exists := d.reduces[name]; exists {
		return fmt.Errorf("vgpu: reduce kernel %q already registered", name)
	}
	k, err := d.compileReduce(val, initExpr, combineBody)
	if err != nil {
		return fmt.Errorf("reduce kernel %q: %w", name, err)
	}
	d.reduces[name] = k
	return nil
}

func (d *Dispatcher) compileReduce(val CellType, initExpr, combineBody string) (*reduceKernel, error) {
	d.scratch = fmt.Appendf(d.scratch[:0], reduceShaderTmpl, d.invocX, val.glsl(), combineBody, initExpr)
	pl, err := newPipeline(d.scratch)
	if err != nil {
		return nil, err
	}
	return &reduceKernel{
		pipeline: pl,
		val:      val,
		numelems: gl.GetUniformLocation(pl.prog.ID(), gl.Str("numelems\x00")),
	}, nil
}

// Value is the scalar or vector result of a reduction.
type Value struct {
	typ  CellType
	bits [4]uint32
}

// Type returns the value's cell type.
func (v Value) Type() CellType { return v.typ }

// Uint returns a U32 reduction result.
func (v Value) Uint() uint32 { return v.bits[0] }

// Float returns an F32 reduction result.
func (v Value) Float() float32 { return math.Float32frombits(v.bits[0]) }

// Vec3 returns a Vec3F reduction result.
func (v Value) Vec3() ms3.Vec {
	return ms3.Vec{
		X: math.Float32frombits(v.bits[0]),
		Y: math.Float32frombits(v.bits[1]),
		Z: math.Float32frombits(v.bits[2]),
	}
}

// Vec4 returns a Vec4F reduction result.
func (v Value) Vec4() [4]float32 {
	return [4]float32{
		math.Float32frombits(v.bits[0]),
		math.Float32frombits(v.bits[1]),
		math.Float32frombits(v.bits[2]),
		math.Float32frombits(v.bits[3]),
	}
}

// Reduce folds the registered reduce kernel over every cell of src
// and reads the result back through a mapped staging read. This is a
// host suspension point: it awaits all outstanding device work on the
// grid.
func (d *Dispatcher) Reduce(name string, src *DeviceGrid) (Value, error) {
	k, ok := d.reduces[name]
	if !ok {
		return Value{}, fmt.Errorf("vgpu: reduce kernel %q not registered", name)
	}
	if err := d.checkGrid(src); err != nil {
		return Value{}, err
	}
	if src.typ != k.val {
		return Value{}, fmt.Errorf("vgpu: reduce kernel %q cell type mismatch: got %s, want %s", name, src.typ, k.val)
	}
	return d.runReduce(k, src)
}

func (d *Dispatcher) runReduce(k *reduceKernel, src *DeviceGrid) (Value, error) {
	n := src.hdr.Len()
	elem := k.val.Size()
	w := d.invocX
	// Two scratch buffers ping-ponged across rounds.
	groupsA := (n + w - 1) / w
	groupsB := (groupsA + w - 1) / w
	outA, err := createSSBO(groupsA * elem)
	if err != nil {
		return Value{}, err
	}
	defer deleteSSBO(outA)
	outB, err := createSSBO(groupsB * elem)
	if err != nil {
		return Value{}, err
	}
	defer deleteSSBO(outB)

	k.prog.Bind()
	defer k.prog.Unbind()
	k.bindMeta(src.hdr, 0)
	cur := src.ssbo
	dst, other := outA, outB
	for count := n; count > 1; {
		groups := (count + w - 1) / w
		gl.Uniform1ui(k.numelems, uint32(count))
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, cur)
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, dst)
		gl.DispatchCompute(uint32(groups), 1, 1)
		gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)
		cur = dst
		dst, other = other, dst
		count = groups
	}
	var buf [16]byte
	if err := readSSBO(buf[:elem], cur); err != nil {
		return Value{}, err
	}
	if err := glgl.Err(); err != nil {
		return Value{}, err
	}
	v := Value{typ: k.val}
	for i := 0; i < elem/4; i++ {
		v.bits[i] = uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
	}
	return v, nil
}

func deleteSSBO(ssbo uint32) {
	gl.DeleteBuffers(1, &ssbo)
}
