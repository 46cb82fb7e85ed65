package vkframe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/vkframe"
	"github.com/andewx/vkframe/internal/fakegpu"
)

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := vkframe.SurfaceFormat{Format: vkframe.FormatB8G8R8A8Srgb, ColorSpace: vkframe.ColorSpaceSrgbNonlinear}
	unorm := vkframe.SurfaceFormat{Format: vkframe.FormatB8G8R8A8Unorm, ColorSpace: vkframe.ColorSpaceSrgbNonlinear}
	undefined := vkframe.SurfaceFormat{Format: vkframe.FormatUndefined}

	tests := []struct {
		name      string
		available []vkframe.SurfaceFormat
		want      vkframe.SurfaceFormat
	}{
		{"exact match", []vkframe.SurfaceFormat{unorm, srgb}, srgb},
		{"fallback to first", []vkframe.SurfaceFormat{unorm}, unorm},
		{"surface has no preference", []vkframe.SurfaceFormat{undefined}, srgb},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vkframe.ChooseSurfaceFormat(tt.available, srgb)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := vkframe.ChooseSurfaceFormat(nil, srgb)
	assert.ErrorIs(t, err, vkframe.ErrNoSurfaceFormats)
}

func TestChoosePresentMode(t *testing.T) {
	both := []vkframe.PresentMode{vkframe.PresentModeFifo, vkframe.PresentModeMailbox}
	assert.Equal(t, vkframe.PresentModeMailbox, vkframe.ChoosePresentMode(both, true))
	assert.Equal(t, vkframe.PresentModeFifo, vkframe.ChoosePresentMode(both, false))
	assert.Equal(t, vkframe.PresentModeFifo, vkframe.ChoosePresentMode([]vkframe.PresentMode{vkframe.PresentModeFifo}, true))
}

func TestChooseExtent(t *testing.T) {
	caps := vkframe.SurfaceCapabilities{
		CurrentExtent: vkframe.Extent{Width: 640, Height: 480},
		MinExtent:     vkframe.Extent{Width: 16, Height: 16},
		MaxExtent:     vkframe.Extent{Width: 2048, Height: 2048},
	}
	assert.Equal(t, vkframe.Extent{Width: 640, Height: 480}, vkframe.ChooseExtent(caps, vkframe.Extent{Width: 1, Height: 1}))

	caps.CurrentExtent = vkframe.Extent{Width: vkframe.UndefinedExtent, Height: vkframe.UndefinedExtent}
	assert.Equal(t, vkframe.Extent{Width: 1024, Height: 16},
		vkframe.ChooseExtent(caps, vkframe.Extent{Width: 1024, Height: 2}))
	assert.Equal(t, vkframe.Extent{Width: 2048, Height: 2048},
		vkframe.ChooseExtent(caps, vkframe.Extent{Width: 9000, Height: 9000}))
}

func TestChooseImageCount(t *testing.T) {
	caps := vkframe.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 3}
	assert.Equal(t, uint32(3), vkframe.ChooseImageCount(caps, 0))
	assert.Equal(t, uint32(2), vkframe.ChooseImageCount(caps, 1))
	assert.Equal(t, uint32(3), vkframe.ChooseImageCount(caps, 8))

	caps.MaxImageCount = 0
	assert.Equal(t, uint32(8), vkframe.ChooseImageCount(caps, 8))
}

func TestTargetInitialize(t *testing.T) {
	dev := fakegpu.New()
	target := newTarget(t, dev)

	assert.Equal(t, 3, target.Len())
	assert.Equal(t, vkframe.Extent{Width: 800, Height: 600}, target.Extent())
	assert.Equal(t, vkframe.PresentModeMailbox, target.PresentMode())
	assert.Equal(t, vkframe.FormatB8G8R8A8Srgb, target.Format().Format)
	assert.Equal(t, uint64(1), target.Generation())
	assert.NotZero(t, target.Swapchain())
	assert.NotZero(t, target.Pass())
	assert.Equal(t, 3, dev.Live("view"))
	assert.Equal(t, 3, dev.Live("framebuffer"))

	frame := target.Frame(1)
	assert.Equal(t, uint32(1), frame.Index)
	assert.Equal(t, target.Image(1), frame.Image)
	assert.Equal(t, target.Extent(), frame.Extent)
	assert.Equal(t, target.PassInfo(), frame.Pass)
}

func TestTargetResizeInvalidatesHandles(t *testing.T) {
	dev := fakegpu.New()
	target := newTarget(t, dev)

	oldSwapchain := target.Swapchain()
	oldPass := target.PassInfo()
	var oldFramebuffers []vkframe.FramebufferHandle
	var oldImages []vkframe.ImageHandle
	for i := 0; i < target.Len(); i++ {
		oldFramebuffers = append(oldFramebuffers, target.Frame(uint32(i)).Framebuffer)
		oldImages = append(oldImages, target.Image(i))
	}

	dev.SetExtent(1024, 768)
	require.NoError(t, target.HandleResize(1024, 768))

	assert.Equal(t, vkframe.Extent{Width: 1024, Height: 768}, target.Extent())
	assert.Equal(t, uint64(2), target.Generation())
	for i := range oldFramebuffers {
		assert.False(t, dev.IsLive(uint64(oldFramebuffers[i])), "framebuffer %d survived", i)
		assert.False(t, dev.IsLive(uint64(oldImages[i])), "image %d survived", i)
	}
	assert.False(t, dev.IsLive(uint64(oldSwapchain)))

	cfg, ok := dev.SwapchainConfig(target.Swapchain())
	require.True(t, ok)
	assert.Equal(t, oldSwapchain, cfg.Old)
	assert.Equal(t, vkframe.Extent{Width: 1024, Height: 768}, cfg.Extent)

	// same format: the pass is kept
	assert.Equal(t, 1, dev.Count("CreateRenderPass"))
	assert.Equal(t, oldPass, target.PassInfo())
	assert.Equal(t, 3, dev.Live("framebuffer"))
}

func TestTargetFormatChangeRebuildsPass(t *testing.T) {
	dev := fakegpu.New()
	target := newTarget(t, dev)
	oldKey := target.PassInfo().Key

	dev.Formats = []vkframe.SurfaceFormat{{Format: vkframe.FormatB8G8R8A8Unorm, ColorSpace: vkframe.ColorSpaceSrgbNonlinear}}
	require.NoError(t, target.HandleResize(800, 600))

	assert.Equal(t, 2, dev.Count("CreateRenderPass"))
	assert.Equal(t, 1, dev.Live("pass"))
	assert.NotEqual(t, oldKey, target.PassInfo().Key)
	assert.Equal(t, vkframe.FormatB8G8R8A8Unorm, target.Format().Format)
}

func TestTargetResizeToZero(t *testing.T) {
	dev := fakegpu.New()
	target := newTarget(t, dev)

	assert.ErrorIs(t, target.HandleResize(0, 600), vkframe.ErrZeroExtent)
	assert.Equal(t, uint64(1), target.Generation())
}

func TestTargetFailedBuildReleasesEverything(t *testing.T) {
	dev := fakegpu.New()
	dev.FailOn("CreateFramebuffer", vkframe.ErrOutOfDeviceMemory)

	target := vkframe.NewTarget(dev, testSurface, vkframe.DefaultTargetConfig(), nil)
	err := target.Initialize(vkframe.Extent{Width: 800, Height: 600})
	require.Error(t, err)
	assert.ErrorIs(t, err, vkframe.ErrOutOfDeviceMemory)
	assert.True(t, vkframe.IsDeviceFailure(err))
	assert.Zero(t, dev.Live(""))

	require.NoError(t, target.Initialize(vkframe.Extent{Width: 800, Height: 600}))
	assert.Equal(t, 3, target.Len())
}

func TestTargetQueueFamilies(t *testing.T) {
	dev := fakegpu.New()
	target := vkframe.NewTarget(dev, testSurface, vkframe.DefaultTargetConfig(), nil)
	target.SetQueueFamilies(0, 2)
	require.NoError(t, target.Initialize(vkframe.Extent{Width: 800, Height: 600}))

	cfg, ok := dev.SwapchainConfig(target.Swapchain())
	require.True(t, ok)
	assert.Equal(t, []uint32{0, 2}, cfg.QueueFamilies)
}

func TestTargetDestroy(t *testing.T) {
	dev := fakegpu.New()
	target := newTarget(t, dev)

	require.NoError(t, target.Destroy())
	assert.Zero(t, dev.Live(""))
	assert.Zero(t, target.Len())
}
