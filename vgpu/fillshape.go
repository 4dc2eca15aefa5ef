package vgpu

import (
	"errors"
	"fmt"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/gvox"
	"github.com/soypat/gvox/voxel"
)

const fillShaderTmpl = `#version 430

layout(local_size_x = %d, local_size_y = 1, local_size_z = 1) in;

layout(std430, binding = 0) buffer GridBuffer {
	%s vbo_grid[];
};

uniform uvec4 dims;
uniform vec4 originres;
// Selection threshold implementing the round mode.
uniform float offset;
// Value stored to selected cells.
uniform %s fillvalue;

float sdf(vec3 p) {
%s
}

void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i >= dims.x*dims.y*dims.z) {
		return;
	}
	uvec3 c = uvec3(i%%dims.x, (i/dims.x)%%dims.y, i/(dims.x*dims.y));
	vec3 p = originres.xyz + (vec3(c)+0.5)*originres.w;
	if (sdf(p) <= offset) {
		vbo_grid[i] = fillvalue;
	}
}
`

type fillKernel struct {
	pipeline
	typ       CellType
	offset    int32
	fillvalue int32
}

// FillShape rasterizes a shape into a U32 or F32 device grid,
// assigning v to every cell selected by the round mode and leaving
// other cells untouched. The shape's generated distance function is
// compiled into a pipeline on first use and cached under the shape's
// signature, so repeated fills of the same tool shape dispatch
// without recompiling. For U32 grids v is truncated to an unsigned
// integer.
func (d *Dispatcher) FillShape(dst *DeviceGrid, s gvox.Shape, v float32, mode voxel.RoundMode) error {
	if err := d.checkGrid(dst); err != nil {
		return err
	}
	if dst.typ != U32 && dst.typ != F32 {
		return fmt.Errorf("vgpu: shape fill wants U32 or F32 grid, got %s", dst.typ)
	}
	offset, err := mode.Offset(dst.hdr.HalfDiagonal())
	if err != nil {
		return err
	}
	k, err := d.fillKernelFor(s, dst.typ)
	if err != nil {
		return err
	}
	k.prog.Bind()
	defer k.prog.Unbind()
	k.bindMeta(dst.hdr, 0)
	gl.Uniform1f(k.offset, offset)
	if dst.typ == U32 {
		gl.Uniform1ui(k.fillvalue, uint32(v))
	} else {
		gl.Uniform1f(k.fillvalue, v)
	}
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, dst.ssbo)
	d.dispatchLinear(dst.hdr.Len())
	return glgl.Err()
}

func (d *Dispatcher) fillKernelFor(s gvox.Shape, typ CellType) (*fillKernel, error) {
	if s == nil {
		return nil, errors.New("vgpu: nil shape")
	}
	d.scratch = s.AppendShaderName(d.scratch[:0])
	d.scratch = append(d.scratch, '|')
	d.scratch = append(d.scratch, typ.String()...)
	key := string(d.scratch)
	if k, ok := d.fills[key]; ok {
		return k, nil
	}
	body := s.AppendShaderBody(nil)
	d.scratch = fmt.Appendf(d.scratch[:0], fillShaderTmpl, d.invocX, typ.glsl(), typ.glsl(), body)
	pl, err := newPipeline(d.scratch)
	if err != nil {
		return nil, fmt.Errorf("vgpu: shape fill kernel: %w", err)
	}
	id := pl.prog.ID()
	k := &fillKernel{
		pipeline:  pl,
		typ:       typ,
		offset:    gl.GetUniformLocation(id, gl.Str("offset\x00")),
		fillvalue: gl.GetUniformLocation(id, gl.Str("fillvalue\x00")),
	}
	d.fills[key] = k
	return k, nil
}
