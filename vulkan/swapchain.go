package vulkan

import (
	"time"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe"
)

func (d *Device) SurfaceCapabilities(h vkframe.SurfaceHandle) (vkframe.SurfaceCapabilities, error) {
	caps, err := d.surfaceCapabilities(h)
	if err != nil {
		return vkframe.SurfaceCapabilities{}, err
	}
	return vkframe.SurfaceCapabilities{
		MinImageCount: caps.MinImageCount,
		MaxImageCount: caps.MaxImageCount,
		CurrentExtent: extent(caps.CurrentExtent),
		MinExtent:     extent(caps.MinImageExtent),
		MaxExtent:     extent(caps.MaxImageExtent),
	}, nil
}

func (d *Device) surfaceCapabilities(h vkframe.SurfaceHandle) (vk.SurfaceCapabilities, error) {
	surface := lookup(d.surfaces, "SurfaceCapabilities", uint64(h))
	var caps vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu, surface, &caps)
	if err := NewError(ret); err != nil {
		return caps, errors.Wrap(err, "failed to query surface capabilities")
	}
	caps.Deref()
	return caps, nil
}

func (d *Device) SurfaceFormats(h vkframe.SurfaceHandle) ([]vkframe.SurfaceFormat, error) {
	surface := lookup(d.surfaces, "SurfaceFormats", uint64(h))
	var count uint32
	ret := vk.GetPhysicalDeviceSurfaceFormats(d.gpu, surface, &count, nil)
	if err := NewError(ret); err != nil {
		return nil, errors.Wrap(err, "failed to query surface formats")
	}
	list := make([]vk.SurfaceFormat, count)
	ret = vk.GetPhysicalDeviceSurfaceFormats(d.gpu, surface, &count, list)
	if err := NewError(ret); err != nil {
		return nil, errors.Wrap(err, "failed to query surface formats")
	}
	formats := make([]vkframe.SurfaceFormat, 0, count)
	for _, f := range list[:count] {
		f.Deref()
		formats = append(formats, vkframe.SurfaceFormat{
			Format:     vkframe.Format(f.Format),
			ColorSpace: vkframe.ColorSpace(f.ColorSpace),
		})
	}
	return formats, nil
}

func (d *Device) SurfacePresentModes(h vkframe.SurfaceHandle) ([]vkframe.PresentMode, error) {
	surface := lookup(d.surfaces, "SurfacePresentModes", uint64(h))
	var count uint32
	ret := vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, surface, &count, nil)
	if err := NewError(ret); err != nil {
		return nil, errors.Wrap(err, "failed to query present modes")
	}
	list := make([]vk.PresentMode, count)
	ret = vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, surface, &count, list)
	if err := NewError(ret); err != nil {
		return nil, errors.Wrap(err, "failed to query present modes")
	}
	modes := make([]vkframe.PresentMode, 0, count)
	for _, m := range list[:count] {
		modes = append(modes, vkframe.PresentMode(m))
	}
	return modes, nil
}

// compositeAlpha picks the first supported mode, opaque preferred.
func compositeAlpha(supported vk.CompositeAlphaFlags) vk.CompositeAlphaFlagBits {
	for _, bit := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if supported&vk.CompositeAlphaFlags(bit) != 0 {
			return bit
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

func preTransform(caps vk.SurfaceCapabilities) vk.SurfaceTransformFlagBits {
	if vk.SurfaceTransformFlagBits(caps.SupportedTransforms)&vk.SurfaceTransformIdentityBit != 0 {
		return vk.SurfaceTransformIdentityBit
	}
	return caps.CurrentTransform
}

func (d *Device) CreateSwapchain(cfg vkframe.SwapchainConfig) (vkframe.SwapchainHandle, error) {
	surface := lookup(d.surfaces, "CreateSwapchain", uint64(cfg.Surface))
	caps, err := d.surfaceCapabilities(cfg.Surface)
	if err != nil {
		return 0, err
	}

	old := vk.NullSwapchain
	if cfg.Old != 0 {
		old = lookup(d.swapchains, "CreateSwapchain", uint64(cfg.Old)).handle
	}

	sharing := vk.SharingModeExclusive
	var families []uint32
	if len(cfg.QueueFamilies) > 1 {
		sharing = vk.SharingModeConcurrent
		families = cfg.QueueFamilies
	}

	var sc vk.Swapchain
	ret := vk.CreateSwapchain(d.device, &vk.SwapchainCreateInfo{
		SType:                 vk.StructureTypeSwapchainCreateInfo,
		Surface:               surface,
		MinImageCount:         cfg.ImageCount,
		ImageFormat:           vk.Format(cfg.Format.Format),
		ImageColorSpace:       vk.ColorSpace(cfg.Format.ColorSpace),
		ImageExtent:           vkExtent(cfg.Extent),
		ImageUsage:            vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:          preTransform(caps),
		CompositeAlpha:        compositeAlpha(caps.SupportedCompositeAlpha),
		ImageArrayLayers:      1,
		ImageSharingMode:      sharing,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		PresentMode:           vk.PresentMode(cfg.PresentMode),
		OldSwapchain:          old,
		Clipped:               vk.True,
	}, nil, &sc)
	if err := NewError(ret); err != nil {
		return 0, errors.Wrap(err, "failed to create swapchain")
	}
	return vkframe.SwapchainHandle(d.swapchains.put(&swapchain{handle: sc})), nil
}

// SwapchainImages registers the images once; later calls return the same
// handles.
func (d *Device) SwapchainImages(h vkframe.SwapchainHandle) ([]vkframe.ImageHandle, error) {
	sc := lookup(d.swapchains, "SwapchainImages", uint64(h))
	if sc.images == nil {
		var count uint32
		ret := vk.GetSwapchainImages(d.device, sc.handle, &count, nil)
		if err := NewError(ret); err != nil {
			return nil, errors.Wrap(err, "failed to get swapchain images")
		}
		images := make([]vk.Image, count)
		ret = vk.GetSwapchainImages(d.device, sc.handle, &count, images)
		if err := NewError(ret); err != nil {
			return nil, errors.Wrap(err, "failed to get swapchain images")
		}
		for _, img := range images[:count] {
			sc.images = append(sc.images, d.images.put(img))
		}
	}
	out := make([]vkframe.ImageHandle, len(sc.images))
	for i, id := range sc.images {
		out[i] = vkframe.ImageHandle(id)
	}
	return out, nil
}

// DestroySwapchain also retires the image handles; the images belong to
// the swapchain.
func (d *Device) DestroySwapchain(h vkframe.SwapchainHandle) {
	sc, ok := d.swapchains.take(uint64(h))
	if !ok {
		return
	}
	for _, id := range sc.images {
		d.images.take(id)
	}
	vk.DestroySwapchain(d.device, sc.handle, nil)
}

func (d *Device) CreateImageView(h vkframe.ImageHandle, format vkframe.Format) (vkframe.ViewHandle, error) {
	image := lookup(d.images, "CreateImageView", uint64(h))
	var view vk.ImageView
	ret := vk.CreateImageView(d.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view)
	if err := NewError(ret); err != nil {
		return 0, errors.Wrap(err, "failed to create image view")
	}
	return vkframe.ViewHandle(d.views.put(view)), nil
}

func (d *Device) DestroyImageView(h vkframe.ViewHandle) {
	if view, ok := d.views.take(uint64(h)); ok {
		vk.DestroyImageView(d.device, view, nil)
	}
}

// CreateRenderPass builds a single-subpass pass with one color attachment
// that is cleared on load and left ready for presentation.
func (d *Device) CreateRenderPass(cfg vkframe.PassConfig) (vkframe.PassHandle, error) {
	samples := cfg.Samples
	if samples == 0 {
		samples = 1
	}
	attachments := []vk.AttachmentDescription{{
		Format:         vk.Format(cfg.Format),
		Samples:        vk.SampleCountFlagBits(samples),
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}}
	colorRefs := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpasses := []vk.SubpassDescription{{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}}
	// Wait for the acquired image before writing color.
	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.MaxUint32,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}}

	var pass vk.RenderPass
	ret := vk.CreateRenderPass(d.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}, nil, &pass)
	if err := NewError(ret); err != nil {
		return 0, errors.Wrap(err, "failed to create render pass")
	}
	return vkframe.PassHandle(d.passes.put(pass)), nil
}

func (d *Device) DestroyRenderPass(h vkframe.PassHandle) {
	if pass, ok := d.passes.take(uint64(h)); ok {
		vk.DestroyRenderPass(d.device, pass, nil)
	}
}

func (d *Device) CreateFramebuffer(p vkframe.PassHandle, v vkframe.ViewHandle, e vkframe.Extent) (vkframe.FramebufferHandle, error) {
	pass := lookup(d.passes, "CreateFramebuffer", uint64(p))
	view := lookup(d.views, "CreateFramebuffer", uint64(v))
	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(d.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: 1,
		PAttachments:    []vk.ImageView{view},
		Width:           e.Width,
		Height:          e.Height,
		Layers:          1,
	}, nil, &fb)
	if err := NewError(ret); err != nil {
		return 0, errors.Wrap(err, "failed to create framebuffer")
	}
	return vkframe.FramebufferHandle(d.framebuffers.put(fb)), nil
}

func (d *Device) DestroyFramebuffer(h vkframe.FramebufferHandle) {
	if fb, ok := d.framebuffers.take(uint64(h)); ok {
		vk.DestroyFramebuffer(d.device, fb, nil)
	}
}

func (d *Device) AcquireNextImage(h vkframe.SwapchainHandle, s vkframe.SemaphoreHandle, timeout time.Duration) (uint32, vkframe.Status, error) {
	sc := lookup(d.swapchains, "AcquireNextImage", uint64(h))
	sem := lookup(d.semaphores, "AcquireNextImage", uint64(s))
	var idx uint32
	ret := vk.AcquireNextImage(d.device, sc.handle, uint64(timeout.Nanoseconds()), sem, vk.NullFence, &idx)
	st, err := status(ret)
	if err != nil {
		return 0, st, errors.Wrap(err, "failed to acquire swapchain image")
	}
	return idx, st, nil
}
