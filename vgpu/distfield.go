package vgpu

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/gvox/voxel"
)

// Sentinel is the occupancy projection value for cells with zero
// value in axis-bound reductions. The reduce operators map it to a
// value that never wins the fold.
const Sentinel = 65536.0

// Distance field channel conventions: df cells are vec4 with xyz the
// adopted seed cell center and w the Euclidean distance from the cell
// center to that seed. w == 0 marks a seed, w == -1 marks "no seed
// known yet".

const seedInitShaderTmpl = `#version 430

layout(local_size_x = %d, local_size_y = 1, local_size_z = 1) in;

layout(std430, binding = 0) buffer SeedBuffer {
	uint vbo_seeds[];
};

layout(std430, binding = 1) buffer FieldBuffer {
	vec4 vbo_df[];
};

uniform uvec4 dims;
uniform vec4 originres;

void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i >= dims.x*dims.y*dims.z) {
		return;
	}
	uvec3 c = uvec3(i%%dims.x, (i/dims.x)%%dims.y, i/(dims.x*dims.y));
	vec3 p = originres.xyz + (vec3(c)+0.5)*originres.w;
	vbo_df[i] = vbo_seeds[i] > 0u ? vec4(p, 0.0) : vec4(0.0, 0.0, 0.0, -1.0);
}
`

const jumpFloodShaderTmpl = `#version 430

layout(local_size_x = %d, local_size_y = 1, local_size_z = 1) in;

layout(std430, binding = 0) buffer FieldBuffer {
	vec4 vbo_df[];
};

// dims.w carries the pass step size.
uniform uvec4 dims;
uniform vec4 originres;

void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i >= dims.x*dims.y*dims.z) {
		return;
	}
	vec4 cur = vbo_df[i];
	if (cur.w == 0.0) {
		return; // Seed cells never adopt.
	}
	ivec3 c = ivec3(int(i%%dims.x), int((i/dims.x)%%dims.y), int(i/(dims.x*dims.y)));
	vec3 p = originres.xyz + (vec3(c)+0.5)*originres.w;
	int s = int(dims.w);
	for (int axis = 0; axis < 3; axis++) {
		for (int dir = -1; dir <= 1; dir += 2) {
			ivec3 nb = c;
			nb[axis] += dir*s;
			if (nb.x < 0 || nb.y < 0 || nb.z < 0 ||
				nb.x >= int(dims.x) || nb.y >= int(dims.y) || nb.z >= int(dims.z)) {
				continue;
			}
			uint j = uint(nb.x) + uint(nb.y)*dims.x + uint(nb.z)*dims.x*dims.y;
			vec4 cand = vbo_df[j];
			if (cand.w < 0.0) {
				continue; // Neighbor knows no seed.
			}
			float dist = distance(p, cand.xyz);
			if (cur.w < 0.0 || dist < cur.w) {
				cur = vec4(cand.xyz, dist);
			}
		}
	}
	vbo_df[i] = cur;
}
`

const boundProjectShaderTmpl = `#version 430

layout(local_size_x = %d, local_size_y = 1, local_size_z = 1) in;

layout(std430, binding = 0) buffer OccupancyBuffer {
	uint vbo_in[];
};

layout(std430, binding = 1) buffer ProjectionBuffer {
	float vbo_out[];
};

uniform uvec4 dims;
uniform vec4 originres;
// Projection direction for occupancy bounds.
uniform vec3 bounddir;

void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i >= dims.x*dims.y*dims.z) {
		return;
	}
	uvec3 c = uvec3(i%%dims.x, (i/dims.x)%%dims.y, i/(dims.x*dims.y));
	vec3 p = originres.xyz + (vec3(c)+0.5)*originres.w;
	vbo_out[i] = vbo_in[i] > 0u ? dot(p, bounddir) : %f;
}
`

type distFieldKernels struct {
	seedInit pipeline
	flood    pipeline
	extract  *mapKernel
}

func (k *distFieldKernels) delete() {
	k.seedInit.prog.Delete()
	k.flood.prog.Delete()
	if k.extract != nil {
		k.extract.prog.Delete()
	}
}

type boundKernels struct {
	project    pipeline
	projectDir int32
	minIgnore  *reduceKernel
	maxIgnore  *reduceKernel
}

func (k *boundKernels) delete() {
	k.project.prog.Delete()
	if k.minIgnore != nil {
		k.minIgnore.prog.Delete()
	}
	if k.maxIgnore != nil {
		k.maxIgnore.prog.Delete()
	}
}

// compileBuiltins compiles the pipelines backing DistField and
// BoundOfAxis. They live outside the user registry so user kernel
// names can never collide with them.
func (d *Dispatcher) compileBuiltins() (err error) {
	d.scratch = fmt.Appendf(d.scratch[:0], seedInitShaderTmpl, d.invocX)
	d.df.seedInit, err = newPipeline(d.scratch)
	if err != nil {
		return fmt.Errorf("seed init: %w", err)
	}
	d.scratch = fmt.Appendf(d.scratch[:0], jumpFloodShaderTmpl, d.invocX)
	d.df.flood, err = newPipeline(d.scratch)
	if err != nil {
		return fmt.Errorf("jump flood: %w", err)
	}
	d.scratch = fmt.Appendf(d.scratch[:0], mapShaderTmpl, d.invocX, Vec4F.glsl(), F32.glsl(), Vec4F.glsl(), F32.glsl(), "vo = vi.w;")
	pl, err := newPipeline(d.scratch)
	if err != nil {
		return fmt.Errorf("distance extract: %w", err)
	}
	d.df.extract = &mapKernel{pipeline: pl, in: Vec4F, out: F32}

	d.scratch = fmt.Appendf(d.scratch[:0], boundProjectShaderTmpl, d.invocX, float32(Sentinel))
	d.bound.project, err = newPipeline(d.scratch)
	if err != nil {
		return fmt.Errorf("bound project: %w", err)
	}
	d.bound.projectDir = gl.GetUniformLocation(d.bound.project.prog.ID(), gl.Str("bounddir\x00"))
	d.bound.minIgnore, err = d.compileReduce(F32, "1.0e20",
		`if (a >= 65536.0) { a = 1.0e20; }
	if (b >= 65536.0) { b = 1.0e20; }
	return min(a,b);`)
	if err != nil {
		return fmt.Errorf("bound min: %w", err)
	}
	d.bound.maxIgnore, err = d.compileReduce(F32, "-1.0e20",
		`if (a >= 65536.0) { a = -1.0e20; }
	if (b >= 65536.0) { b = -1.0e20; }
	return max(a,b);`)
	if err != nil {
		return fmt.Errorf("bound max: %w", err)
	}
	return nil
}

// DistField computes for every cell of dst the Euclidean distance
// from its center to the center of the nearest seed cell, where seeds
// are the cells of the seed grid with value > 0. seeds must be U32 and
// dst F32 on identical geometry. Cells that reach no seed, in
// particular every cell when the seed grid is empty, hold -1.
//
// The field is computed with jump flooding over a Vec4F intermediate:
// ceil(log2(maxdim)) passes of halving step, each pass inspecting the
// six axis neighbors at the pass step and separated from the next by
// an explicit device barrier.
func (d *Dispatcher) DistField(dst, seeds *DeviceGrid) error {
	if err := d.checkGrid(seeds); err != nil {
		return err
	}
	if err := d.checkGrid(dst); err != nil {
		return err
	}
	if seeds.typ != U32 || dst.typ != F32 {
		return fmt.Errorf("vgpu: distance field wants U32 seeds and F32 output, got %s and %s", seeds.typ, dst.typ)
	}
	if !seeds.hdr.Equal(dst.hdr) {
		return errHdrMismatch
	}
	hdr := seeds.hdr
	field, err := d.NewGrid(hdr, Vec4F)
	if err != nil {
		return err
	}
	defer field.Destroy()

	si := &d.df.seedInit
	si.prog.Bind()
	si.bindMeta(hdr, 0)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, seeds.ssbo)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, field.ssbo)
	d.dispatchLinear(hdr.Len())
	si.prog.Unbind()

	maxDim := max(hdr.Nx, hdr.Ny, hdr.Nz)
	passes := 0
	for 1<<passes < maxDim {
		passes++
	}
	fl := &d.df.flood
	fl.prog.Bind()
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, field.ssbo)
	for pass := 0; pass < passes; pass++ {
		step := uint32(1) << (passes - pass - 1)
		fl.bindMeta(hdr, step)
		// The in-place pass writes must be observed by the next pass.
		d.dispatchLinear(hdr.Len())
	}
	fl.prog.Unbind()

	d.runMap(d.df.extract, dst, field)
	return glgl.Err()
}

// Interval is a closed world-space interval along a direction.
type Interval struct {
	Min, Max float32
}

// Empty reports whether the interval contains no points.
func (iv Interval) Empty() bool { return iv.Min > iv.Max }

// BoundOfAxis reduces the minimum and maximum of dot(dir, cellCenter)
// over cells of the U32 occupancy grid with value > 0. dir must be
// unit length; arbitrary directions are supported. The raw bounds are
// expanded by the grid half-diagonal for boundary RoundOutside, shrunk
// by it for RoundInside and returned unchanged for RoundNearest. An
// occupancy too thin to survive shrinking, or an all-zero grid,
// yields an empty interval.
func (d *Dispatcher) BoundOfAxis(dir ms3.Vec, g *DeviceGrid, boundary voxel.RoundMode) (Interval, error) {
	if err := d.checkGrid(g); err != nil {
		return Interval{}, err
	}
	if g.typ != U32 {
		return Interval{}, fmt.Errorf("vgpu: axis bound wants U32 occupancy, got %s", g.typ)
	}
	if math32.Abs(ms3.Norm(dir)-1) > 1e-4 {
		return Interval{}, errors.New("vgpu: non-unit axis bound direction")
	}
	offset, err := boundary.Offset(g.hdr.HalfDiagonal())
	if err != nil {
		return Interval{}, err
	}
	proj, err := d.NewGrid(g.hdr, F32)
	if err != nil {
		return Interval{}, err
	}
	defer proj.Destroy()

	pl := &d.bound.project
	pl.prog.Bind()
	pl.bindMeta(g.hdr, 0)
	gl.Uniform3f(d.bound.projectDir, dir.X, dir.Y, dir.Z)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, g.ssbo)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, proj.ssbo)
	d.dispatchLinear(g.hdr.Len())
	pl.prog.Unbind()

	minv, err := d.runReduce(d.bound.minIgnore, proj)
	if err != nil {
		return Interval{}, err
	}
	maxv, err := d.runReduce(d.bound.maxIgnore, proj)
	if err != nil {
		return Interval{}, err
	}
	iv := Interval{Min: minv.Float(), Max: maxv.Float()}
	if iv.Min >= 1.0e20 || iv.Max <= -1.0e20 {
		return Interval{Min: math32.Inf(1), Max: math32.Inf(-1)}, nil
	}
	// RoundOutside has positive offset and grows the interval,
	// RoundInside shrinks it, RoundNearest leaves it unchanged.
	iv.Min -= offset
	iv.Max += offset
	return iv, nil
}
