package vkframe_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andewx/vkframe"
	"github.com/andewx/vkframe/internal/fakegpu"
)

const testSurface vkframe.SurfaceHandle = 0xface

type testWindow struct {
	width, height uint32
	minimized     bool
}

func (w *testWindow) DrawableSize() (uint32, uint32) { return w.width, w.height }
func (w *testWindow) Minimized() bool                { return w.minimized }

func newTarget(t *testing.T, dev *fakegpu.Device) *vkframe.Target {
	t.Helper()
	target := vkframe.NewTarget(dev, testSurface, vkframe.DefaultTargetConfig(), nil)
	require.NoError(t, target.Initialize(vkframe.Extent{Width: 800, Height: 600}))
	return target
}

func newDriver(t *testing.T, dev *fakegpu.Device, win *testWindow, cfg vkframe.Config) *vkframe.Driver {
	t.Helper()
	d, err := vkframe.NewDriver(dev, win, testSurface, dev.Queues(), cfg, nil)
	require.NoError(t, err)
	return d
}

func shaderSet(name string) vkframe.ShaderSet {
	return vkframe.ShaderSet{
		Stages: []vkframe.ShaderModule{
			{Stage: vkframe.StageVertex, Code: []byte("vert:" + name)},
			{Stage: vkframe.StageFragment, Code: []byte("frag:" + name)},
		},
		PushConstants: []vkframe.PushConstantRange{
			{Stages: vkframe.StageVertex, Offset: 0, Size: 64},
		},
	}
}
