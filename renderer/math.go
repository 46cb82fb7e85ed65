package renderer

import (
	"encoding/binary"

	"github.com/chewxy/math32"
)

// Mat4 is a column-major 4x4 matrix, the layout GLSL expects for a mat4
// push constant.
type Mat4 [16]float32

func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns the element in row r, column c.
func (m Mat4) At(r, c int) float32 {
	return m[c*4+r]
}

// Mul returns m * n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+r] * n[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// RotateZ is a rotation by angle radians around the Z axis.
func RotateZ(angle float32) Mat4 {
	s, c := math32.Sincos(angle)
	m := Identity()
	m[0], m[1] = c, s
	m[4], m[5] = -s, c
	return m
}

func Scale(x, y, z float32) Mat4 {
	m := Identity()
	m[0], m[5], m[10] = x, y, z
	return m
}

func Translate(x, y, z float32) Mat4 {
	m := Identity()
	m[12], m[13], m[14] = x, y, z
	return m
}

// VulkanClip converts GL style clip space to Vulkan's: Y points down and
// depth runs over [0, 1] instead of [-1, 1].
func VulkanClip() Mat4 {
	return Translate(0, 0, 0.5).Mul(Scale(1, -1, 0.5))
}

// VulkanProjection applies the clip space fix-up to a GL style projection.
func VulkanProjection(proj Mat4) Mat4 {
	return VulkanClip().Mul(proj)
}

// AspectFit scales X so that a unit shape keeps its proportions in a
// width x height viewport.
func AspectFit(width, height uint32) Mat4 {
	if width == 0 || height == 0 {
		return Identity()
	}
	return Scale(float32(height)/float32(width), 1, 1)
}

// Bytes encodes the matrix for CmdPushConstants.
func (m Mat4) Bytes() []byte {
	out := make([]byte, 0, 64)
	for _, v := range m {
		out = binary.LittleEndian.AppendUint32(out, math32.Float32bits(v))
	}
	return out
}
