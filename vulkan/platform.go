package vulkan

import (
	"log/slog"
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe"
)

var (
	ErrNoGPU          = errors.New("vulkan: no usable GPU found")
	ErrNoQueueFamily  = errors.New("vulkan: no queue family supports graphics")
	ErrNoPresentQueue = errors.New("vulkan: no queue family can present to the surface")
)

// Platform owns the instance, the surface and the logical device. Its
// Device is what the frame driver consumes.
type Platform struct {
	log *slog.Logger

	instance      vk.Instance
	debugCallback vk.DebugReportCallback
	surface       vk.Surface
	gpu           vk.PhysicalDevice
	gpuName       string
	device        vk.Device

	dev           *Device
	surfaceHandle vkframe.SurfaceHandle
	queues        vkframe.Queues
}

// NewPlatform brings up Vulkan for app. Everything created before a
// failure is released again.
func NewPlatform(app Application, log *slog.Logger) (p *Platform, err error) {
	if log == nil {
		log = slog.Default()
	}
	p = &Platform{log: log}
	defer func() {
		if err != nil {
			p.Destroy()
			p = nil
		}
	}()

	instanceExtensions, err := p.wanted("instance extensions", InstanceExtensions, app.VulkanInstanceExtensions())
	if err != nil {
		return nil, err
	}
	var layers []string
	if iface, ok := app.(ApplicationVulkanLayers); ok {
		layers, err = p.wanted("validation layers", ValidationLayers, iface.VulkanLayers())
		if err != nil {
			return nil, err
		}
	}

	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:            vk.StructureTypeApplicationInfo,
			ApiVersion:       uint32(app.VulkanAPIVersion()),
			PApplicationName: safeString(app.VulkanAppName()),
			PEngineName:      safeString("vkframe"),
		},
		EnabledExtensionCount:   uint32(len(instanceExtensions)),
		PpEnabledExtensionNames: instanceExtensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &p.instance)
	if err := NewError(ret); err != nil {
		return nil, errors.Wrap(err, "failed to create instance")
	}
	if err := vk.InitInstance(p.instance); err != nil {
		return nil, errors.Wrap(err, "failed to load instance functions")
	}

	if iface, ok := app.(ApplicationDebug); ok && iface.VulkanDebug() {
		ret := vk.CreateDebugReportCallback(p.instance, &vk.DebugReportCallbackCreateInfo{
			SType: vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
				vk.DebugReportPerformanceWarningBit),
			PfnCallback: p.debugReport,
		}, nil, &p.debugCallback)
		if err := NewError(ret); err != nil {
			return nil, errors.Wrap(err, "failed to create debug report callback")
		}
		log.Info("vulkan: debug report callback enabled")
	}

	p.surface, err = app.VulkanSurface(p.instance)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create surface")
	}

	graphics, present, err := p.pickGPU()
	if err != nil {
		return nil, err
	}

	deviceExtensions, err := p.wanted("device extensions", func() ([]string, error) {
		return DeviceExtensions(p.gpu)
	}, app.VulkanDeviceExtensions())
	if err != nil {
		return nil, err
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: graphics,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	if present != graphics {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: present,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}
	ret = vk.CreateDevice(p.gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: deviceExtensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &p.device)
	if err := NewError(ret); err != nil {
		return nil, errors.Wrap(err, "failed to create device")
	}

	p.dev = newDevice(p.device, p.gpu, log)
	p.surfaceHandle = vkframe.SurfaceHandle(p.dev.surfaces.put(p.surface))

	var gq vk.Queue
	vk.GetDeviceQueue(p.device, graphics, 0, &gq)
	p.queues.Graphics = vkframe.Queue{Handle: vkframe.QueueHandle(p.dev.queues.put(gq)), Family: graphics}
	if present != graphics {
		var pq vk.Queue
		vk.GetDeviceQueue(p.device, present, 0, &pq)
		p.queues.Present = vkframe.Queue{Handle: vkframe.QueueHandle(p.dev.queues.put(pq)), Family: present}
	}

	log.Info("vulkan: platform ready",
		"gpu", p.gpuName,
		"graphics_family", graphics,
		"present_family", present,
		"instance_extensions", len(instanceExtensions),
		"device_extensions", len(deviceExtensions),
		"layers", len(layers))
	return p, nil
}

// wanted keeps the requested names the platform has and warns about the rest.
func (p *Platform) wanted(what string, available func() ([]string, error), requested []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, nil
	}
	actual, err := available()
	if err != nil {
		return nil, err
	}
	existing, missing := checkExisting(actual, requested)
	if len(missing) > 0 {
		p.log.Warn("vulkan: missing "+what, "missing", missing)
	}
	return existing, nil
}

// pickGPU takes the first physical device with a graphics queue and a
// queue that can present to the surface.
func (p *Platform) pickGPU() (graphics, present uint32, err error) {
	var count uint32
	ret := vk.EnumeratePhysicalDevices(p.instance, &count, nil)
	if err := NewError(ret); err != nil {
		return 0, 0, errors.Wrap(err, "failed to enumerate GPUs")
	}
	if count == 0 {
		return 0, 0, ErrNoGPU
	}
	gpus := make([]vk.PhysicalDevice, count)
	ret = vk.EnumeratePhysicalDevices(p.instance, &count, gpus)
	if err := NewError(ret); err != nil {
		return 0, 0, errors.Wrap(err, "failed to enumerate GPUs")
	}

	var lastErr error = ErrNoGPU
	for _, gpu := range gpus[:count] {
		families := p.queueFamilies(gpu)
		g, pr, err := pickQueueFamilies(families)
		if err != nil {
			lastErr = err
			continue
		}
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(gpu, &props)
		props.Deref()
		p.gpu = gpu
		p.gpuName = vk.ToString(props.DeviceName[:])
		return g, pr, nil
	}
	return 0, 0, lastErr
}

func (p *Platform) queueFamilies(gpu vk.PhysicalDevice) []queueFamily {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)

	families := make([]queueFamily, count)
	for i := range props[:count] {
		props[i].Deref()
		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(gpu, uint32(i), p.surface, &supported)
		families[i] = queueFamily{
			graphics: props[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0,
			present:  supported.B(),
		}
	}
	return families
}

type queueFamily struct {
	graphics bool
	present  bool
}

// pickQueueFamilies prefers a single family doing both graphics and
// presentation, and otherwise pairs the first graphics family with the
// first presenting one.
func pickQueueFamilies(families []queueFamily) (graphics, present uint32, err error) {
	graphicsFound, presentFound := false, false
	for i, f := range families {
		if f.graphics && f.present {
			return uint32(i), uint32(i), nil
		}
		if f.graphics && !graphicsFound {
			graphics, graphicsFound = uint32(i), true
		}
		if f.present && !presentFound {
			present, presentFound = uint32(i), true
		}
	}
	if !graphicsFound {
		return 0, 0, ErrNoQueueFamily
	}
	if !presentFound {
		return 0, 0, ErrNoPresentQueue
	}
	return graphics, present, nil
}

// Device returns the vkframe.Device backed by this platform.
func (p *Platform) Device() *Device { return p.dev }

func (p *Platform) Queues() vkframe.Queues { return p.queues }

// Surface is the registered handle of the window surface.
func (p *Platform) Surface() vkframe.SurfaceHandle { return p.surfaceHandle }

func (p *Platform) GPUName() string { return p.gpuName }

func (p *Platform) Instance() vk.Instance { return p.instance }

// Destroy tears down in reverse creation order. The frame driver must be
// shut down first.
func (p *Platform) Destroy() {
	if p.device != nil {
		vk.DeviceWaitIdle(p.device)
		vk.DestroyDevice(p.device, nil)
		p.device = nil
	}
	if p.surface != vk.NullSurface {
		vk.DestroySurface(p.instance, p.surface, nil)
		p.surface = vk.NullSurface
	}
	if p.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(p.instance, p.debugCallback, nil)
		p.debugCallback = vk.NullDebugReportCallback
	}
	if p.instance != nil {
		vk.DestroyInstance(p.instance, nil)
		p.instance = nil
	}
}

func (p *Platform) debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	attrs := []any{"layer", pLayerPrefix, "code", messageCode}
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		p.log.Error("vulkan: "+pMessage, attrs...)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		p.log.Warn("vulkan: "+pMessage, attrs...)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		p.log.Warn("vulkan: performance: "+pMessage, attrs...)
	default:
		p.log.Debug("vulkan: "+pMessage, attrs...)
	}
	return vk.Bool32(vk.False)
}
