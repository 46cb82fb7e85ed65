package vulkan

import vk "github.com/vulkan-go/vulkan"

// Application describes what the platform needs from its host: naming,
// the extensions the windowing system requires, and a surface once the
// instance exists.
type Application interface {
	VulkanAppName() string
	VulkanAPIVersion() vk.Version
	VulkanInstanceExtensions() []string
	VulkanDeviceExtensions() []string
	VulkanSurface(instance vk.Instance) (vk.Surface, error)
}

// ApplicationVulkanLayers is implemented by applications that want
// validation layers enabled.
type ApplicationVulkanLayers interface {
	VulkanLayers() []string
}

// ApplicationDebug enables the debug report callback.
type ApplicationDebug interface {
	VulkanDebug() bool
}

var DefaultVulkanAPIVersion = vk.Version(vk.MakeVersion(1, 0, 0))

// DefaultDeviceExtensions are the device extensions presentation needs.
var DefaultDeviceExtensions = []string{"VK_KHR_swapchain"}

// DefaultValidationLayers is the layer set enabled in debug builds.
var DefaultValidationLayers = []string{"VK_LAYER_KHRONOS_validation"}
