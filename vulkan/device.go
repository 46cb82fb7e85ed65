package vulkan

import (
	"log/slog"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe"
)

type swapchain struct {
	handle vk.Swapchain
	images []uint64
}

type commandPool struct {
	handle vk.CommandPool
	mu     sync.Mutex
	// buffers are freed with the pool.
	buffers []uint64
}

// Device implements vkframe.Device on a Vulkan logical device. Handles
// given to the core are registry IDs, never raw Vulkan pointers.
type Device struct {
	device vk.Device
	gpu    vk.PhysicalDevice
	log    *slog.Logger

	ids          idSource
	surfaces     *table[vk.Surface]
	queues       *table[vk.Queue]
	swapchains   *table[*swapchain]
	images       *table[vk.Image]
	views        *table[vk.ImageView]
	passes       *table[vk.RenderPass]
	framebuffers *table[vk.Framebuffer]
	semaphores   *table[vk.Semaphore]
	fences       *table[vk.Fence]
	pools        *table[*commandPool]
	buffers      *table[vk.CommandBuffer]
	layouts      *table[vk.PipelineLayout]
	pipelines    *table[vk.Pipeline]
}

var _ vkframe.Device = (*Device)(nil)

func newDevice(device vk.Device, gpu vk.PhysicalDevice, log *slog.Logger) *Device {
	if log == nil {
		log = slog.Default()
	}
	d := &Device{device: device, gpu: gpu, log: log}
	d.surfaces = newTable[vk.Surface](&d.ids)
	d.queues = newTable[vk.Queue](&d.ids)
	d.swapchains = newTable[*swapchain](&d.ids)
	d.images = newTable[vk.Image](&d.ids)
	d.views = newTable[vk.ImageView](&d.ids)
	d.passes = newTable[vk.RenderPass](&d.ids)
	d.framebuffers = newTable[vk.Framebuffer](&d.ids)
	d.semaphores = newTable[vk.Semaphore](&d.ids)
	d.fences = newTable[vk.Fence](&d.ids)
	d.pools = newTable[*commandPool](&d.ids)
	d.buffers = newTable[vk.CommandBuffer](&d.ids)
	d.layouts = newTable[vk.PipelineLayout](&d.ids)
	d.pipelines = newTable[vk.Pipeline](&d.ids)
	return d
}

// Native returns the underlying logical device.
func (d *Device) Native() vk.Device {
	return d.device
}

func (d *Device) WaitIdle() error {
	return NewError(vk.DeviceWaitIdle(d.device))
}

// lookup resolves a handle or escalates: a handle the registry never issued
// means the caller is working with destroyed state.
func lookup[T any](t *table[T], op string, id uint64) T {
	v, ok := t.get(id)
	if !ok {
		vkframe.Fatal(&vkframe.ContractError{Op: op, Msg: "unknown handle"})
	}
	return v
}

func extent(e vk.Extent2D) vkframe.Extent {
	e.Deref()
	return vkframe.Extent{Width: e.Width, Height: e.Height}
}

func vkExtent(e vkframe.Extent) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

func rect(e vkframe.Extent) vk.Rect2D {
	return vk.Rect2D{Offset: vk.Offset2D{}, Extent: vkExtent(e)}
}
