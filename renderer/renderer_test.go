package renderer_test

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/vkframe"
	"github.com/andewx/vkframe/internal/fakegpu"
	"github.com/andewx/vkframe/renderer"
)

const eps = 1e-5

func assertMat(t *testing.T, want, got renderer.Mat4) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], eps, "element %d", i)
	}
}

func TestMat4Mul(t *testing.T) {
	m := renderer.Translate(1, 2, 3)
	assertMat(t, m, renderer.Identity().Mul(m))
	assertMat(t, m, m.Mul(renderer.Identity()))

	sum := renderer.Translate(1, 2, 3).Mul(renderer.Translate(4, 5, 6))
	assertMat(t, renderer.Translate(5, 7, 9), sum)
	assert.InDelta(t, 7, sum.At(1, 3), eps)
}

func TestRotateZ(t *testing.T) {
	r := renderer.RotateZ(math.Pi / 2)
	// x axis maps to y
	assert.InDelta(t, 0, r.At(0, 0), eps)
	assert.InDelta(t, 1, r.At(1, 0), eps)
	assert.InDelta(t, -1, r.At(0, 1), eps)

	full := renderer.RotateZ(math.Pi).Mul(renderer.RotateZ(math.Pi))
	assertMat(t, renderer.Identity(), full)
}

func TestVulkanClip(t *testing.T) {
	c := renderer.VulkanClip()
	assert.InDelta(t, 1, c.At(0, 0), eps)
	assert.InDelta(t, -1, c.At(1, 1), eps)
	assert.InDelta(t, 0.5, c.At(2, 2), eps)
	assert.InDelta(t, 0.5, c.At(2, 3), eps)

	// GL depth -1 and 1 land on Vulkan 0 and 1
	depth := func(z float32) float32 { return c.At(2, 2)*z + c.At(2, 3) }
	assert.InDelta(t, 0, depth(-1), eps)
	assert.InDelta(t, 1, depth(1), eps)

	assertMat(t, c, renderer.VulkanProjection(renderer.Identity()))
}

func TestAspectFit(t *testing.T) {
	assert.InDelta(t, 0.75, renderer.AspectFit(800, 600).At(0, 0), eps)
	assertMat(t, renderer.Identity(), renderer.AspectFit(0, 600))
}

func TestMat4Bytes(t *testing.T) {
	b := renderer.Translate(1, 2, 3).Bytes()
	require.Len(t, b, renderer.TransformSize)
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(b[0:])))
	assert.Equal(t, float32(2), math.Float32frombits(binary.LittleEndian.Uint32(b[13*4:])))
}

type window struct{ w, h uint32 }

func (w *window) DrawableSize() (uint32, uint32) { return w.w, w.h }
func (w *window) Minimized() bool                { return false }

func newDriver(t *testing.T, dev *fakegpu.Device) *vkframe.Driver {
	t.Helper()
	d, err := vkframe.NewDriver(dev, &window{800, 600}, 0xface, dev.Queues(), vkframe.DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown() })
	return d
}

func TestTriangleRequestsPipelineOnce(t *testing.T) {
	dev := fakegpu.New()
	d := newDriver(t, dev)
	d.AddRenderer(renderer.NewTriangle([]byte("vert"), []byte("frag")))

	for i := 0; i < 3; i++ {
		presented, err := d.Tick()
		require.NoError(t, err)
		require.True(t, presented)
	}

	assert.Equal(t, 1, dev.Count("CreateGraphicsPipelines"))
	assert.Equal(t, 1, d.Cache().Len())
	assert.Equal(t, 3, dev.Count("CmdDraw"))
	assert.Equal(t, 3, dev.Count("CmdBindPipeline"))

	vp := dev.CallsOf("CmdSetViewport")
	require.Len(t, vp, 3)
	assert.Equal(t, []uint64{800, 600}, vp[0].Args[1:])

	push := dev.CallsOf("CmdPushConstants")
	require.Len(t, push, 3)
	assert.Equal(t, uint64(vkframe.StageVertex), push[0].Args[2])
	assert.Equal(t, uint64(renderer.TransformSize), push[0].Args[4])

	draw := dev.CallsOf("CmdDraw")[0]
	assert.Equal(t, []uint64{3, 1, 0, 0}, draw.Args[1:])
}

func TestTriangleKeepsPipelineAcrossResize(t *testing.T) {
	dev := fakegpu.New()
	d := newDriver(t, dev)
	d.AddRenderer(renderer.NewTriangle([]byte("vert"), []byte("frag")))

	_, err := d.Tick()
	require.NoError(t, err)

	dev.SetExtent(1024, 768)
	d.Resize(1024, 768)
	_, err = d.Tick()
	require.NoError(t, err)

	assert.Equal(t, 1, dev.Count("CreateGraphicsPipelines"))
	vp := dev.CallsOf("CmdSetViewport")
	require.Len(t, vp, 2)
	assert.Equal(t, []uint64{1024, 768}, vp[1].Args[1:])
}

func TestTriangleRebuildsOnFormatChange(t *testing.T) {
	dev := fakegpu.New()
	d := newDriver(t, dev)
	d.AddRenderer(renderer.NewTriangle([]byte("vert"), []byte("frag")))

	_, err := d.Tick()
	require.NoError(t, err)

	dev.Formats = []vkframe.SurfaceFormat{{Format: vkframe.FormatB8G8R8A8Unorm, ColorSpace: vkframe.ColorSpaceSrgbNonlinear}}
	d.Resize(800, 600)
	_, err = d.Tick()
	require.NoError(t, err)

	assert.Equal(t, 2, dev.Count("CreateGraphicsPipelines"))
	assert.Equal(t, 2, d.Cache().Len())
}

func TestTriangleCompileFailure(t *testing.T) {
	dev := fakegpu.New()
	dev.FailOn("CreateGraphicsPipelines", vkframe.ErrCompileFailed)
	d := newDriver(t, dev)
	d.AddRenderer(renderer.NewTriangle([]byte("vert"), []byte("frag")))

	_, err := d.Tick()
	assert.ErrorIs(t, err, vkframe.ErrCompileFailed)
}

func TestTriangleTransform(t *testing.T) {
	tri := renderer.NewTriangle(nil, nil)
	frame := &vkframe.Frame{Target: vkframe.FrameTarget{Extent: vkframe.Extent{Width: 600, Height: 600}}}

	assertMat(t, renderer.VulkanClip(), tri.Transform(frame))

	tri.RadiansPerSecond = math.Pi
	frame.Elapsed = time.Second
	want := renderer.VulkanClip().Mul(renderer.RotateZ(math.Pi))
	assertMat(t, want, tri.Transform(frame))
}

func TestClearRecordsNothing(t *testing.T) {
	dev := fakegpu.New()
	d := newDriver(t, dev)
	d.AddRenderer(renderer.Clear{})

	presented, err := d.Tick()
	require.NoError(t, err)
	assert.True(t, presented)
	assert.Zero(t, dev.Count("CmdDraw"))
	// the empty secondary is still executed inside the pass
	assert.Equal(t, 1, dev.Count("CmdExecuteCommands"))
}
