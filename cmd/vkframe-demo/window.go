package main

import (
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe/vulkan"
)

// window is a glfw window without a client API; Vulkan draws into it
// through a surface.
type window struct {
	win   *glfw.Window
	title string
	debug bool
}

func newWindow(width, height uint32, title string) (*window, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize glfw")
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.Visible, glfw.True)

	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "failed to load vulkan")
	}

	win, err := glfw.CreateWindow(int(width), int(height), title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "failed to create window")
	}
	return &window{win: win, title: title}, nil
}

// DrawableSize is the framebuffer size in pixels, which differs from the
// window size on high density displays.
func (w *window) DrawableSize() (uint32, uint32) {
	width, height := w.win.GetFramebufferSize()
	if width < 0 || height < 0 {
		return 0, 0
	}
	return uint32(width), uint32(height)
}

func (w *window) Minimized() bool {
	return w.win.GetAttrib(glfw.Iconified) == glfw.True
}

// OnResize forwards framebuffer size changes.
func (w *window) OnResize(fn func(width, height uint32)) {
	w.win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		if width < 0 || height < 0 {
			return
		}
		fn(uint32(width), uint32(height))
	})
}

// Poll pumps window events and reports whether the window stays open.
func (w *window) Poll() bool {
	glfw.PollEvents()
	return !w.win.ShouldClose()
}

func (w *window) Destroy() {
	w.win.Destroy()
	glfw.Terminate()
}

func (w *window) VulkanAppName() string        { return w.title }
func (w *window) VulkanAPIVersion() vk.Version { return vulkan.DefaultVulkanAPIVersion }

func (w *window) VulkanInstanceExtensions() []string {
	exts := w.win.GetRequiredInstanceExtensions()
	if w.debug {
		exts = append(exts, "VK_EXT_debug_report")
	}
	return exts
}

func (w *window) VulkanDeviceExtensions() []string { return vulkan.DefaultDeviceExtensions }

func (w *window) VulkanSurface(instance vk.Instance) (vk.Surface, error) {
	ptr, err := w.win.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, err
	}
	return vk.SurfaceFromPointer(ptr), nil
}

func (w *window) VulkanDebug() bool { return w.debug }

func (w *window) VulkanLayers() []string {
	if !w.debug {
		return nil
	}
	return vulkan.DefaultValidationLayers
}
