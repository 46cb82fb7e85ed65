// Package fakegpu is an in-memory vkframe.Device for tests. It records
// every call, completes submitted work immediately unless told to hold it,
// and can inject staleness and failures.
package fakegpu

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/andewx/vkframe"
)

// Call is one recorded device call. Args holds the handles and counts the
// call was made with, in parameter order.
type Call struct {
	Op   string
	Args []uint64
}

type swapchain struct {
	images []vkframe.ImageHandle
	next   uint32
	config vkframe.SwapchainConfig
}

// Device implements vkframe.Device. The exported fields describe the fake
// surface and may be changed between calls.
type Device struct {
	Caps    vkframe.SurfaceCapabilities
	Formats []vkframe.SurfaceFormat
	Modes   []vkframe.PresentMode

	mu         sync.Mutex
	nextHandle uint64
	calls      []Call
	live       map[uint64]string

	fences     map[vkframe.FenceHandle]bool
	held       []vkframe.FenceHandle
	hold       bool
	signalLog  []vkframe.FenceHandle
	swapchains map[vkframe.SwapchainHandle]*swapchain

	poolBuffers map[vkframe.CommandPoolHandle][]uint64

	staleAcquires   int
	subAcquires     int
	stalePresents   int
	failures        map[string]error
	submissions     []vkframe.Submission
	presents        []vkframe.PresentRequest
	pipelineBatches [][]vkframe.PipelineConfig
}

// New returns a device with a 800x600 surface, two to four images, one
// sRGB format and FIFO plus mailbox present modes.
func New() *Device {
	return &Device{
		Caps: vkframe.SurfaceCapabilities{
			MinImageCount: 2,
			MaxImageCount: 4,
			CurrentExtent: vkframe.Extent{Width: 800, Height: 600},
			MinExtent:     vkframe.Extent{Width: 1, Height: 1},
			MaxExtent:     vkframe.Extent{Width: 4096, Height: 4096},
		},
		Formats: []vkframe.SurfaceFormat{
			{Format: vkframe.FormatB8G8R8A8Srgb, ColorSpace: vkframe.ColorSpaceSrgbNonlinear},
		},
		Modes:       []vkframe.PresentMode{vkframe.PresentModeFifo, vkframe.PresentModeMailbox},
		live:        make(map[uint64]string),
		fences:      make(map[vkframe.FenceHandle]bool),
		swapchains:  make(map[vkframe.SwapchainHandle]*swapchain),
		poolBuffers: make(map[vkframe.CommandPoolHandle][]uint64),
		failures:    make(map[string]error),
	}
}

// Queues returns a graphics queue that also presents.
func (d *Device) Queues() vkframe.Queues {
	return vkframe.Queues{Graphics: vkframe.Queue{Handle: 1, Family: 0}}
}

// SetExtent changes the surface's current extent, as a window resize would.
func (d *Device) SetExtent(width, height uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Caps.CurrentExtent = vkframe.Extent{Width: width, Height: height}
}

// Hold keeps submitted fences unsignaled until Release or WaitIdle.
func (d *Device) Hold(hold bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hold = hold
}

// Release signals every held fence in submission order.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked()
}

func (d *Device) releaseLocked() {
	for _, f := range d.held {
		d.signalLocked(f)
	}
	d.held = nil
}

func (d *Device) signalLocked(f vkframe.FenceHandle) {
	if _, ok := d.fences[f]; !ok {
		return
	}
	d.fences[f] = true
	d.signalLog = append(d.signalLog, f)
}

// ForceStale makes the next n acquires report the swapchain out of date.
func (d *Device) ForceStale(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staleAcquires = n
}

// ForceSuboptimal makes the next n acquires report a suboptimal image.
func (d *Device) ForceSuboptimal(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subAcquires = n
}

// ForceStalePresent makes the next n present calls report out of date.
func (d *Device) ForceStalePresent(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stalePresents = n
}

// FailOn makes the next call of op return err.
func (d *Device) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = err
}

func (d *Device) failLocked(op string) error {
	err, ok := d.failures[op]
	if !ok {
		return nil
	}
	delete(d.failures, op)
	return err
}

func (d *Device) record(op string, args ...uint64) {
	d.calls = append(d.calls, Call{Op: op, Args: args})
}

// enter locks the device, records the call and returns a pending failure.
func (d *Device) enter(op string, args ...uint64) error {
	d.mu.Lock()
	d.record(op, args...)
	return d.failLocked(op)
}

func (d *Device) alloc(kind string) uint64 {
	d.nextHandle++
	d.live[d.nextHandle] = kind
	return d.nextHandle
}

func (d *Device) free(h uint64) {
	delete(d.live, h)
}

// Calls returns a copy of the call log.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallsOf returns the recorded calls of one op.
func (d *Device) CallsOf(op string) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (d *Device) Count(op string) int {
	return len(d.CallsOf(op))
}

// Ops returns the sequence of op names, optionally restricted to ops.
func (d *Device) Ops(ops ...string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keep := make(map[string]bool, len(ops))
	for _, op := range ops {
		keep[op] = true
	}
	var out []string
	for _, c := range d.calls {
		if len(ops) == 0 || keep[c.Op] {
			out = append(out, c.Op)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (d *Device) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Live counts live objects of kind, or all live objects for "".
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, k := range d.live {
		if kind == "" || k == kind {
			n++
		}
	}
	return n
}

// IsLive reports whether handle h has been created and not destroyed.
func (d *Device) IsLive(h uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.live[h]
	return ok
}

// SignalOrder returns fences in the order submitted work signaled them.
func (d *Device) SignalOrder() []vkframe.FenceHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]vkframe.FenceHandle(nil), d.signalLog...)
}

func (d *Device) Submissions() []vkframe.Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]vkframe.Submission(nil), d.submissions...)
}

func (d *Device) Presents() []vkframe.PresentRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]vkframe.PresentRequest(nil), d.presents...)
}

// PipelineBatches returns the config lists of every compile call.
func (d *Device) PipelineBatches() [][]vkframe.PipelineConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]vkframe.PipelineConfig(nil), d.pipelineBatches...)
}

// SwapchainConfig returns the config sc was created with.
func (d *Device) SwapchainConfig(sc vkframe.SwapchainHandle) (vkframe.SwapchainConfig, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.swapchains[sc]
	if !ok {
		return vkframe.SwapchainConfig{}, false
	}
	return s.config, true
}

func (d *Device) WaitIdle() error {
	defer d.mu.Unlock()
	if err := d.enter("WaitIdle"); err != nil {
		return err
	}
	d.releaseLocked()
	return nil
}

func (d *Device) SurfaceCapabilities(s vkframe.SurfaceHandle) (vkframe.SurfaceCapabilities, error) {
	defer d.mu.Unlock()
	if err := d.enter("SurfaceCapabilities", uint64(s)); err != nil {
		return vkframe.SurfaceCapabilities{}, err
	}
	return d.Caps, nil
}

func (d *Device) SurfaceFormats(s vkframe.SurfaceHandle) ([]vkframe.SurfaceFormat, error) {
	defer d.mu.Unlock()
	if err := d.enter("SurfaceFormats", uint64(s)); err != nil {
		return nil, err
	}
	return append([]vkframe.SurfaceFormat(nil), d.Formats...), nil
}

func (d *Device) SurfacePresentModes(s vkframe.SurfaceHandle) ([]vkframe.PresentMode, error) {
	defer d.mu.Unlock()
	if err := d.enter("SurfacePresentModes", uint64(s)); err != nil {
		return nil, err
	}
	return append([]vkframe.PresentMode(nil), d.Modes...), nil
}

func (d *Device) CreateSwapchain(cfg vkframe.SwapchainConfig) (vkframe.SwapchainHandle, error) {
	defer d.mu.Unlock()
	if err := d.enter("CreateSwapchain", uint64(cfg.Old)); err != nil {
		return 0, err
	}
	h := vkframe.SwapchainHandle(d.alloc("swapchain"))
	sc := &swapchain{config: cfg}
	for i := uint32(0); i < cfg.ImageCount; i++ {
		sc.images = append(sc.images, vkframe.ImageHandle(d.alloc("image")))
	}
	d.swapchains[h] = sc
	return h, nil
}

func (d *Device) SwapchainImages(h vkframe.SwapchainHandle) ([]vkframe.ImageHandle, error) {
	defer d.mu.Unlock()
	if err := d.enter("SwapchainImages", uint64(h)); err != nil {
		return nil, err
	}
	sc, ok := d.swapchains[h]
	if !ok {
		return nil, errors.Errorf("fakegpu: unknown swapchain %d", h)
	}
	return append([]vkframe.ImageHandle(nil), sc.images...), nil
}

func (d *Device) DestroySwapchain(h vkframe.SwapchainHandle) {
	defer d.mu.Unlock()
	d.enter("DestroySwapchain", uint64(h))
	if sc, ok := d.swapchains[h]; ok {
		for _, img := range sc.images {
			d.free(uint64(img))
		}
		delete(d.swapchains, h)
	}
	d.free(uint64(h))
}

func (d *Device) CreateImageView(img vkframe.ImageHandle, _ vkframe.Format) (vkframe.ViewHandle, error) {
	defer d.mu.Unlock()
	if err := d.enter("CreateImageView", uint64(img)); err != nil {
		return 0, err
	}
	return vkframe.ViewHandle(d.alloc("view")), nil
}

func (d *Device) DestroyImageView(v vkframe.ViewHandle) {
	defer d.mu.Unlock()
	d.enter("DestroyImageView", uint64(v))
	d.free(uint64(v))
}

func (d *Device) CreateRenderPass(cfg vkframe.PassConfig) (vkframe.PassHandle, error) {
	defer d.mu.Unlock()
	if err := d.enter("CreateRenderPass", uint64(cfg.Format)); err != nil {
		return 0, err
	}
	return vkframe.PassHandle(d.alloc("pass")), nil
}

func (d *Device) DestroyRenderPass(p vkframe.PassHandle) {
	defer d.mu.Unlock()
	d.enter("DestroyRenderPass", uint64(p))
	d.free(uint64(p))
}

func (d *Device) CreateFramebuffer(p vkframe.PassHandle, v vkframe.ViewHandle, e vkframe.Extent) (vkframe.FramebufferHandle, error) {
	defer d.mu.Unlock()
	if err := d.enter("CreateFramebuffer", uint64(p), uint64(v), uint64(e.Width), uint64(e.Height)); err != nil {
		return 0, err
	}
	return vkframe.FramebufferHandle(d.alloc("framebuffer")), nil
}

func (d *Device) DestroyFramebuffer(f vkframe.FramebufferHandle) {
	defer d.mu.Unlock()
	d.enter("DestroyFramebuffer", uint64(f))
	d.free(uint64(f))
}

// AcquireNextImage hands out images round-robin.
func (d *Device) AcquireNextImage(h vkframe.SwapchainHandle, sem vkframe.SemaphoreHandle, _ time.Duration) (uint32, vkframe.Status, error) {
	defer d.mu.Unlock()
	if err := d.enter("AcquireNextImage", uint64(h), uint64(sem)); err != nil {
		return 0, vkframe.StatusOK, err
	}
	sc, ok := d.swapchains[h]
	if !ok {
		return 0, vkframe.StatusOK, errors.Errorf("fakegpu: unknown swapchain %d", h)
	}
	if d.staleAcquires > 0 {
		d.staleAcquires--
		return 0, vkframe.StatusOutOfDate, nil
	}
	idx := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.images))
	if d.subAcquires > 0 {
		d.subAcquires--
		return idx, vkframe.StatusSuboptimal, nil
	}
	return idx, vkframe.StatusOK, nil
}

func (d *Device) CreateSemaphore() (vkframe.SemaphoreHandle, error) {
	defer d.mu.Unlock()
	if err := d.enter("CreateSemaphore"); err != nil {
		return 0, err
	}
	return vkframe.SemaphoreHandle(d.alloc("semaphore")), nil
}

func (d *Device) DestroySemaphore(s vkframe.SemaphoreHandle) {
	defer d.mu.Unlock()
	d.enter("DestroySemaphore", uint64(s))
	d.free(uint64(s))
}

func (d *Device) CreateFence(signaled bool) (vkframe.FenceHandle, error) {
	defer d.mu.Unlock()
	if err := d.enter("CreateFence"); err != nil {
		return 0, err
	}
	f := vkframe.FenceHandle(d.alloc("fence"))
	d.fences[f] = signaled
	return f, nil
}

func (d *Device) DestroyFence(f vkframe.FenceHandle) {
	defer d.mu.Unlock()
	d.enter("DestroyFence", uint64(f))
	delete(d.fences, f)
	d.free(uint64(f))
}

// WaitFence never blocks: an unsignaled fence times out immediately.
func (d *Device) WaitFence(f vkframe.FenceHandle, _ time.Duration) error {
	defer d.mu.Unlock()
	if err := d.enter("WaitFence", uint64(f)); err != nil {
		return err
	}
	if !d.fences[f] {
		return vkframe.ErrTimeout
	}
	return nil
}

func (d *Device) ResetFence(f vkframe.FenceHandle) error {
	defer d.mu.Unlock()
	if err := d.enter("ResetFence", uint64(f)); err != nil {
		return err
	}
	d.fences[f] = false
	return nil
}

func (d *Device) FenceSignaled(f vkframe.FenceHandle) (bool, error) {
	defer d.mu.Unlock()
	if err := d.enter("FenceSignaled", uint64(f)); err != nil {
		return false, err
	}
	return d.fences[f], nil
}

func (d *Device) CreateCommandPool(family uint32) (vkframe.CommandPoolHandle, error) {
	defer d.mu.Unlock()
	if err := d.enter("CreateCommandPool", uint64(family)); err != nil {
		return 0, err
	}
	return vkframe.CommandPoolHandle(d.alloc("pool")), nil
}

// DestroyCommandPool also frees the pool's buffers.
func (d *Device) DestroyCommandPool(p vkframe.CommandPoolHandle) {
	defer d.mu.Unlock()
	d.enter("DestroyCommandPool", uint64(p))
	for _, cb := range d.poolBuffers[p] {
		d.free(cb)
	}
	delete(d.poolBuffers, p)
	d.free(uint64(p))
}

func (d *Device) AllocateCommandBuffers(p vkframe.CommandPoolHandle, level vkframe.CommandLevel, n int) ([]vkframe.CommandBufferHandle, error) {
	defer d.mu.Unlock()
	if err := d.enter("AllocateCommandBuffers", uint64(p), uint64(level), uint64(n)); err != nil {
		return nil, err
	}
	out := make([]vkframe.CommandBufferHandle, n)
	for i := range out {
		out[i] = vkframe.CommandBufferHandle(d.alloc("commandbuffer"))
		d.poolBuffers[p] = append(d.poolBuffers[p], uint64(out[i]))
	}
	return out, nil
}

func (d *Device) ResetCommandBuffer(cb vkframe.CommandBufferHandle) error {
	defer d.mu.Unlock()
	return d.enter("ResetCommandBuffer", uint64(cb))
}

// BeginCommandBuffer records the inherited pass and framebuffer, when
// given, after the buffer.
func (d *Device) BeginCommandBuffer(cb vkframe.CommandBufferHandle, inh *vkframe.Inheritance) error {
	defer d.mu.Unlock()
	if inh != nil {
		return d.enter("BeginCommandBuffer", uint64(cb), uint64(inh.Pass), uint64(inh.Framebuffer))
	}
	return d.enter("BeginCommandBuffer", uint64(cb))
}

func (d *Device) EndCommandBuffer(cb vkframe.CommandBufferHandle) error {
	defer d.mu.Unlock()
	return d.enter("EndCommandBuffer", uint64(cb))
}

func (d *Device) CmdBeginPass(cb vkframe.CommandBufferHandle, b vkframe.PassBegin) {
	defer d.mu.Unlock()
	d.enter("CmdBeginPass", uint64(cb), uint64(b.Pass), uint64(b.Framebuffer), uint64(b.Extent.Width), uint64(b.Extent.Height))
}

// CmdExecuteCommands records the primary followed by the secondaries.
func (d *Device) CmdExecuteCommands(cb vkframe.CommandBufferHandle, secondaries []vkframe.CommandBufferHandle) {
	defer d.mu.Unlock()
	args := []uint64{uint64(cb)}
	for _, s := range secondaries {
		args = append(args, uint64(s))
	}
	d.enter("CmdExecuteCommands", args...)
}

func (d *Device) CmdEndPass(cb vkframe.CommandBufferHandle) {
	defer d.mu.Unlock()
	d.enter("CmdEndPass", uint64(cb))
}

func (d *Device) CmdBindPipeline(cb vkframe.CommandBufferHandle, p vkframe.PipelineHandle) {
	defer d.mu.Unlock()
	d.enter("CmdBindPipeline", uint64(cb), uint64(p))
}

func (d *Device) CmdSetViewport(cb vkframe.CommandBufferHandle, e vkframe.Extent) {
	defer d.mu.Unlock()
	d.enter("CmdSetViewport", uint64(cb), uint64(e.Width), uint64(e.Height))
}

func (d *Device) CmdSetScissor(cb vkframe.CommandBufferHandle, e vkframe.Extent) {
	defer d.mu.Unlock()
	d.enter("CmdSetScissor", uint64(cb), uint64(e.Width), uint64(e.Height))
}

// CmdPushConstants records the byte count pushed.
func (d *Device) CmdPushConstants(cb vkframe.CommandBufferHandle, l vkframe.LayoutHandle, stages vkframe.ShaderStage, offset uint32, data []byte) {
	defer d.mu.Unlock()
	d.enter("CmdPushConstants", uint64(cb), uint64(l), uint64(stages), uint64(offset), uint64(len(data)))
}

func (d *Device) CmdDraw(cb vkframe.CommandBufferHandle, vertices, instances, firstVertex, firstInstance uint32) {
	defer d.mu.Unlock()
	d.enter("CmdDraw", uint64(cb), uint64(vertices), uint64(instances), uint64(firstVertex), uint64(firstInstance))
}

// QueueSubmit completes the work at once: every host fence is signaled in
// submission order, unless the device holds work.
func (d *Device) QueueSubmit(q vkframe.QueueHandle, subs []vkframe.Submission) error {
	defer d.mu.Unlock()
	if err := d.enter("QueueSubmit", uint64(q), uint64(len(subs))); err != nil {
		return err
	}
	for _, s := range subs {
		d.submissions = append(d.submissions, s)
		if s.HostSignal == 0 {
			continue
		}
		if d.hold {
			d.held = append(d.held, s.HostSignal)
		} else {
			d.signalLocked(s.HostSignal)
		}
	}
	return nil
}

func (d *Device) QueuePresent(q vkframe.QueueHandle, reqs []vkframe.PresentRequest) ([]vkframe.Status, error) {
	defer d.mu.Unlock()
	if err := d.enter("QueuePresent", uint64(q), uint64(len(reqs))); err != nil {
		return nil, err
	}
	statuses := make([]vkframe.Status, len(reqs))
	for i, r := range reqs {
		d.presents = append(d.presents, r)
		if d.stalePresents > 0 {
			d.stalePresents--
			statuses[i] = vkframe.StatusOutOfDate
		}
	}
	return statuses, nil
}

func (d *Device) CreatePipelineLayout(cfg vkframe.LayoutConfig) (vkframe.LayoutHandle, error) {
	defer d.mu.Unlock()
	if err := d.enter("CreatePipelineLayout", uint64(len(cfg.PushConstants))); err != nil {
		return 0, err
	}
	return vkframe.LayoutHandle(d.alloc("layout")), nil
}

func (d *Device) DestroyPipelineLayout(l vkframe.LayoutHandle) {
	defer d.mu.Unlock()
	d.enter("DestroyPipelineLayout", uint64(l))
	d.free(uint64(l))
}

func (d *Device) CreateGraphicsPipelines(cfgs []vkframe.PipelineConfig) ([]vkframe.PipelineHandle, error) {
	defer d.mu.Unlock()
	if err := d.enter("CreateGraphicsPipelines", uint64(len(cfgs))); err != nil {
		return nil, err
	}
	d.pipelineBatches = append(d.pipelineBatches, append([]vkframe.PipelineConfig(nil), cfgs...))
	out := make([]vkframe.PipelineHandle, len(cfgs))
	for i := range out {
		out[i] = vkframe.PipelineHandle(d.alloc("pipeline"))
	}
	return out, nil
}

func (d *Device) DestroyPipeline(p vkframe.PipelineHandle) {
	defer d.mu.Unlock()
	d.enter("DestroyPipeline", uint64(p))
	d.free(uint64(p))
}

var _ vkframe.Device = (*Device)(nil)
