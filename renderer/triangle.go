// Package renderer holds ready-made vkframe renderers.
package renderer

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/andewx/vkframe"
)

// TransformSize is the size of the vertex push constant block: one mat4.
const TransformSize = 64

// Triangle draws three vertices generated in the vertex shader, spinning
// around Z. The vertex shader reads a mat4 push constant at offset 0.
type Triangle struct {
	shaders vkframe.ShaderSet
	state   vkframe.FixedFunctionState
	// RadiansPerSecond is the rotation speed; zero keeps the triangle still.
	RadiansPerSecond float32

	passKey uint64
	hash    vkframe.Hash
	ready   bool
}

// NewTriangle takes SPIR-V for the vertex and fragment stages.
func NewTriangle(vert, frag []byte) *Triangle {
	return &Triangle{
		shaders: vkframe.ShaderSet{
			Stages: []vkframe.ShaderModule{
				{Stage: vkframe.StageVertex, Code: vert},
				{Stage: vkframe.StageFragment, Code: frag},
			},
			PushConstants: []vkframe.PushConstantRange{
				{Stages: vkframe.StageVertex, Offset: 0, Size: TransformSize},
			},
		},
		state:            vkframe.DefaultState(),
		RadiansPerSecond: math32.Pi / 2,
	}
}

// Shaders returns the set the triangle requests from the cache.
func (t *Triangle) Shaders() vkframe.ShaderSet { return t.shaders }

// Transform is the matrix pushed for a frame.
func (t *Triangle) Transform(frame *vkframe.Frame) Mat4 {
	angle := t.RadiansPerSecond * float32(frame.Elapsed.Seconds())
	ext := frame.Target.Extent
	return VulkanClip().Mul(AspectFit(ext.Width, ext.Height)).Mul(RotateZ(angle))
}

// Record requests the pipeline the first time it sees a pass identity and
// then draws with it.
func (t *Triangle) Record(cmd *vkframe.Secondary, frame *vkframe.Frame, cache *vkframe.PipelineCache) error {
	pass := frame.Target.Pass
	if !t.ready || t.passKey != pass.Key {
		hashes, err := cache.Request(pass, t.state, []vkframe.ShaderSet{t.shaders})
		if err != nil {
			return errors.Wrap(err, "failed to build triangle pipeline")
		}
		t.hash, t.passKey, t.ready = hashes[0], pass.Key, true
	}
	entry := cache.Pipeline(t.hash)

	cmd.BindPipeline(entry.Pipeline)
	cmd.SetViewport(frame.Target.Extent)
	cmd.SetScissor(frame.Target.Extent)
	cmd.PushConstants(entry.Layout, vkframe.StageVertex, 0, t.Transform(frame).Bytes())
	cmd.Draw(3, 1, 0, 0)
	return nil
}

// Clear records nothing: the frame shows only the pass clear color.
type Clear struct{}

func (Clear) Record(*vkframe.Secondary, *vkframe.Frame, *vkframe.PipelineCache) error {
	return nil
}
