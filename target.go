package vkframe

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// targetImage is one presentable image with the objects built on it. All
// three handles are owned by the Target.
type targetImage struct {
	image       ImageHandle
	view        ViewHandle
	framebuffer FramebufferHandle
}

// PassInfo identifies a render pass for pipeline compilation. Key is stable
// across runs for compatible passes; Handle is only valid until the target
// rebuilds its pass.
type PassInfo struct {
	Handle PassHandle
	Key    uint64
}

// FrameTarget is the image a frame renders into. Renderers receive it every
// frame and must not keep it across frames.
type FrameTarget struct {
	Index       uint32
	Image       ImageHandle
	Framebuffer FramebufferHandle
	Pass        PassInfo
	Extent      Extent
	Generation  uint64
}

// Target owns the swapchain, its image views and framebuffers, and the
// render pass used to draw into them.
type Target struct {
	dev     SurfaceDevice
	surface SurfaceHandle
	cfg     TargetConfig
	log     *slog.Logger

	// families sharing the images, set by the driver when presentation
	// uses its own queue family.
	families []uint32

	swapchain   SwapchainHandle
	images      []targetImage
	pass        PassHandle
	passFormat  Format
	format      SurfaceFormat
	presentMode PresentMode
	extent      Extent
	generation  uint64
}

func NewTarget(dev SurfaceDevice, surface SurfaceHandle, cfg TargetConfig, log *slog.Logger) *Target {
	return &Target{
		dev:     dev,
		surface: surface,
		cfg:     cfg,
		log:     orDefault(log),
	}
}

// SetQueueFamilies makes the images shared between the given families.
// It takes effect on the next build.
func (t *Target) SetQueueFamilies(families ...uint32) {
	t.families = append(t.families[:0], families...)
}

// Initialize builds the image chain. sizeHint is only used when the surface
// lets the swapchain pick its extent. On failure everything built so far is
// released and the call may be retried.
func (t *Target) Initialize(sizeHint Extent) error {
	if err := t.build(sizeHint); err != nil {
		t.release()
		return err
	}
	return nil
}

// HandleResize rebuilds the image chain for a new drawable size. Every
// previously returned image, view and framebuffer becomes invalid.
func (t *Target) HandleResize(width, height uint32) error {
	size := Extent{Width: width, Height: height}
	if size.Zero() {
		return ErrZeroExtent
	}
	if err := t.dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait idle before rebuild")
	}
	t.destroyImages()
	if err := t.build(size); err != nil {
		t.release()
		return err
	}
	return nil
}

func (t *Target) build(sizeHint Extent) error {
	caps, err := t.dev.SurfaceCapabilities(t.surface)
	if err != nil {
		return errors.Wrap(err, "query surface capabilities")
	}
	formats, err := t.dev.SurfaceFormats(t.surface)
	if err != nil {
		return errors.Wrap(err, "query surface formats")
	}
	modes, err := t.dev.SurfacePresentModes(t.surface)
	if err != nil {
		return errors.Wrap(err, "query present modes")
	}

	format, err := ChooseSurfaceFormat(formats, SurfaceFormat{Format: t.cfg.Format, ColorSpace: t.cfg.ColorSpace})
	if err != nil {
		return err
	}
	extent := ChooseExtent(caps, sizeHint)
	if extent.Zero() {
		return ErrZeroExtent
	}
	mode := ChoosePresentMode(modes, t.cfg.PreferMailbox)
	count := ChooseImageCount(caps, t.cfg.ImageCount)

	old := t.swapchain
	sc, err := t.dev.CreateSwapchain(SwapchainConfig{
		Surface:       t.surface,
		ImageCount:    count,
		Format:        format,
		Extent:        extent,
		PresentMode:   mode,
		QueueFamilies: t.families,
		Old:           old,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	if old != 0 {
		t.dev.DestroySwapchain(old)
	}
	t.swapchain = sc

	if t.pass == 0 || t.passFormat != format.Format {
		if t.pass != 0 {
			t.dev.DestroyRenderPass(t.pass)
			t.pass = 0
		}
		pass, err := t.dev.CreateRenderPass(PassConfig{Format: format.Format, Samples: 1})
		if err != nil {
			return errors.Wrap(err, "create render pass")
		}
		t.pass = pass
		t.passFormat = format.Format
	}

	handles, err := t.dev.SwapchainImages(sc)
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}
	t.images = make([]targetImage, 0, len(handles))
	for _, img := range handles {
		view, err := t.dev.CreateImageView(img, format.Format)
		if err != nil {
			return errors.Wrap(err, "create image view")
		}
		t.images = append(t.images, targetImage{image: img, view: view})
		fb, err := t.dev.CreateFramebuffer(t.pass, view, extent)
		if err != nil {
			return errors.Wrap(err, "create framebuffer")
		}
		t.images[len(t.images)-1].framebuffer = fb
	}

	t.format = format
	t.presentMode = mode
	t.extent = extent
	t.generation++
	t.log.Info("vkframe: presentation target built",
		"generation", t.generation,
		"width", extent.Width, "height", extent.Height,
		"format", format.Format, "color_space", format.ColorSpace,
		"present_mode", mode, "images", len(t.images))
	return nil
}

func (t *Target) destroyImages() {
	for _, img := range t.images {
		if img.framebuffer != 0 {
			t.dev.DestroyFramebuffer(img.framebuffer)
		}
		if img.view != 0 {
			t.dev.DestroyImageView(img.view)
		}
	}
	t.images = nil
}

func (t *Target) release() {
	t.destroyImages()
	if t.pass != 0 {
		t.dev.DestroyRenderPass(t.pass)
		t.pass = 0
	}
	if t.swapchain != 0 {
		t.dev.DestroySwapchain(t.swapchain)
		t.swapchain = 0
	}
	t.extent = Extent{}
}

// Destroy waits for the device to go idle and releases everything.
func (t *Target) Destroy() error {
	err := t.dev.WaitIdle()
	t.release()
	return errors.Wrap(err, "wait idle before target destroy")
}

// AcquireNextImage asks the swapchain for the next image, signaling sem.
func (t *Target) AcquireNextImage(sem SemaphoreHandle, timeout time.Duration) (uint32, Status, error) {
	return t.dev.AcquireNextImage(t.swapchain, sem, timeout)
}

func (t *Target) Len() int { return len(t.images) }

// Image returns the i-th presentable image.
func (t *Target) Image(i int) ImageHandle { return t.images[i].image }

func (t *Target) Pass() PassHandle { return t.pass }

func (t *Target) PassInfo() PassInfo {
	return PassInfo{Handle: t.pass, Key: passKey(PassConfig{Format: t.passFormat, Samples: 1})}
}

// Frame describes image i for recording.
func (t *Target) Frame(i uint32) FrameTarget {
	img := t.images[i]
	return FrameTarget{
		Index:       i,
		Image:       img.image,
		Framebuffer: img.framebuffer,
		Pass:        t.PassInfo(),
		Extent:      t.extent,
		Generation:  t.generation,
	}
}

func (t *Target) Swapchain() SwapchainHandle { return t.swapchain }
func (t *Target) Extent() Extent             { return t.extent }
func (t *Target) Format() SurfaceFormat      { return t.format }
func (t *Target) PresentMode() PresentMode   { return t.presentMode }
func (t *Target) Generation() uint64         { return t.generation }

// ChooseSurfaceFormat returns want if the surface supports it, want with
// the surface's blessing if the surface reports a single undefined
// format, and the first supported pair otherwise.
func ChooseSurfaceFormat(available []SurfaceFormat, want SurfaceFormat) (SurfaceFormat, error) {
	if len(available) == 0 {
		return SurfaceFormat{}, ErrNoSurfaceFormats
	}
	if len(available) == 1 && available[0].Format == FormatUndefined {
		return want, nil
	}
	for _, f := range available {
		if f == want {
			return f, nil
		}
	}
	return available[0], nil
}

// ChoosePresentMode prefers mailbox when asked for and available; FIFO is
// always supported.
func ChoosePresentMode(available []PresentMode, preferMailbox bool) PresentMode {
	if preferMailbox {
		for _, m := range available {
			if m == PresentModeMailbox {
				return m
			}
		}
	}
	return PresentModeFifo
}

// ChooseExtent uses the surface's current extent when it has one, and
// clamps hint to the supported range otherwise.
func ChooseExtent(caps SurfaceCapabilities, hint Extent) Extent {
	if caps.CurrentExtent.Width != UndefinedExtent {
		return caps.CurrentExtent
	}
	return Extent{
		Width:  clamp(hint.Width, caps.MinExtent.Width, caps.MaxExtent.Width),
		Height: clamp(hint.Height, caps.MinExtent.Height, caps.MaxExtent.Height),
	}
}

// ChooseImageCount returns want, or min+1 when want is 0, clamped to what
// the surface supports.
func ChooseImageCount(caps SurfaceCapabilities, want uint32) uint32 {
	if want == 0 {
		want = caps.MinImageCount + 1
	}
	if want < caps.MinImageCount {
		want = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && want > caps.MaxImageCount {
		want = caps.MaxImageCount
	}
	return want
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
