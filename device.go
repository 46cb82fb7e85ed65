package vkframe

import "time"

// Handles are opaque to the core. A backend maps them onto its native
// objects; zero is never a live handle.
type (
	SurfaceHandle       uint64
	SwapchainHandle     uint64
	ImageHandle         uint64
	ViewHandle          uint64
	FramebufferHandle   uint64
	PassHandle          uint64
	SemaphoreHandle     uint64
	FenceHandle         uint64
	QueueHandle         uint64
	CommandPoolHandle   uint64
	CommandBufferHandle uint64
	PipelineHandle      uint64
	LayoutHandle        uint64
)

// UndefinedExtent is reported by surfaces whose size is decided by the swapchain.
const UndefinedExtent = ^uint32(0)

type Extent struct {
	Width  uint32
	Height uint32
}

// Zero reports whether the extent has no drawable area.
func (e Extent) Zero() bool {
	return e.Width == 0 || e.Height == 0
}

type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount of 0 means no upper bound.
	MaxImageCount uint32
	CurrentExtent Extent
	MinExtent     Extent
	MaxExtent     Extent
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// Status is the non-error outcome of acquire and present calls.
type Status int

const (
	StatusOK Status = iota
	// StatusSuboptimal: the call succeeded but the swapchain should be rebuilt.
	StatusSuboptimal
	// StatusOutOfDate: the call failed and the swapchain must be rebuilt.
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out-of-date"
	}
	return "unknown"
}

type CommandLevel int

const (
	LevelPrimary CommandLevel = iota
	LevelSecondary
)

// Queue is an execution queue together with its family identity.
type Queue struct {
	Handle QueueHandle
	Family uint32
}

// Queues is what the device provider hands to the core. Present may be the
// zero Queue when graphics and presentation share a queue.
type Queues struct {
	Graphics Queue
	Present  Queue
}

// PresentQueue returns the queue presents are issued on.
func (q Queues) PresentQueue() Queue {
	if q.Present.Handle == 0 {
		return q.Graphics
	}
	return q.Present
}

// Separate reports whether presentation uses a distinct queue family.
func (q Queues) Separate() bool {
	return q.Present.Handle != 0 && q.Present.Family != q.Graphics.Family
}

type SwapchainConfig struct {
	Surface     SurfaceHandle
	ImageCount  uint32
	Format      SurfaceFormat
	Extent      Extent
	PresentMode PresentMode
	// QueueFamilies lists the families sharing the images; more than one
	// selects concurrent sharing.
	QueueFamilies []uint32
	Old           SwapchainHandle
}

type PassConfig struct {
	Format  Format
	Samples uint32
}

// Inheritance is the pass state a secondary buffer continues.
type Inheritance struct {
	Pass        PassHandle
	Framebuffer FramebufferHandle
}

type PassBegin struct {
	Pass        PassHandle
	Framebuffer FramebufferHandle
	Extent      Extent
	ClearColor  [4]float32
}

type Submission struct {
	Buffers    []CommandBufferHandle
	Wait       []SemaphoreHandle
	Signal     []SemaphoreHandle
	HostSignal FenceHandle
}

type PresentRequest struct {
	Swapchain  SwapchainHandle
	ImageIndex uint32
	Wait       []SemaphoreHandle
}

// LayoutConfig describes a pipeline layout. The core only uses push
// constants; descriptor sets belong to renderers.
type LayoutConfig struct {
	PushConstants []PushConstantRange
}

// PipelineConfig is one entry of a batched compile call.
type PipelineConfig struct {
	Pass   PassHandle
	Layout LayoutHandle
	State  FixedFunctionState
	Stages []ShaderModule
}

// Idler is implemented by every device: shutdown and rebuild paths call
// WaitIdle before destroying anything the GPU may still reference.
type Idler interface {
	WaitIdle() error
}

// SurfaceDevice is the part of a device the presentation target needs.
type SurfaceDevice interface {
	Idler
	SurfaceCapabilities(SurfaceHandle) (SurfaceCapabilities, error)
	SurfaceFormats(SurfaceHandle) ([]SurfaceFormat, error)
	SurfacePresentModes(SurfaceHandle) ([]PresentMode, error)
	CreateSwapchain(SwapchainConfig) (SwapchainHandle, error)
	SwapchainImages(SwapchainHandle) ([]ImageHandle, error)
	DestroySwapchain(SwapchainHandle)
	CreateImageView(ImageHandle, Format) (ViewHandle, error)
	DestroyImageView(ViewHandle)
	CreateRenderPass(PassConfig) (PassHandle, error)
	DestroyRenderPass(PassHandle)
	CreateFramebuffer(PassHandle, ViewHandle, Extent) (FramebufferHandle, error)
	DestroyFramebuffer(FramebufferHandle)
	AcquireNextImage(SwapchainHandle, SemaphoreHandle, time.Duration) (uint32, Status, error)
}

// SyncDevice creates and drives the per-slot primitives.
type SyncDevice interface {
	Idler
	CreateSemaphore() (SemaphoreHandle, error)
	DestroySemaphore(SemaphoreHandle)
	CreateFence(signaled bool) (FenceHandle, error)
	DestroyFence(FenceHandle)
	// WaitFence returns ErrTimeout when the fence is not signaled in time.
	WaitFence(FenceHandle, time.Duration) error
	ResetFence(FenceHandle) error
	FenceSignaled(FenceHandle) (bool, error)
}

// CommandDevice records and submits command buffers.
type CommandDevice interface {
	Idler
	CreateCommandPool(family uint32) (CommandPoolHandle, error)
	DestroyCommandPool(CommandPoolHandle)
	AllocateCommandBuffers(CommandPoolHandle, CommandLevel, int) ([]CommandBufferHandle, error)
	ResetCommandBuffer(CommandBufferHandle) error
	// BeginCommandBuffer opens a buffer; a non-nil Inheritance marks a
	// secondary buffer that continues a pass.
	BeginCommandBuffer(CommandBufferHandle, *Inheritance) error
	EndCommandBuffer(CommandBufferHandle) error

	CmdBeginPass(CommandBufferHandle, PassBegin)
	CmdExecuteCommands(CommandBufferHandle, []CommandBufferHandle)
	CmdEndPass(CommandBufferHandle)
	CmdBindPipeline(CommandBufferHandle, PipelineHandle)
	CmdSetViewport(CommandBufferHandle, Extent)
	CmdSetScissor(CommandBufferHandle, Extent)
	CmdPushConstants(CommandBufferHandle, LayoutHandle, ShaderStage, uint32, []byte)
	CmdDraw(cb CommandBufferHandle, vertices, instances, firstVertex, firstInstance uint32)

	QueueSubmit(QueueHandle, []Submission) error
	// QueuePresent returns one status per request.
	QueuePresent(QueueHandle, []PresentRequest) ([]Status, error)
}

// PipelineDevice compiles pipelines.
type PipelineDevice interface {
	Idler
	CreatePipelineLayout(LayoutConfig) (LayoutHandle, error)
	DestroyPipelineLayout(LayoutHandle)
	// CreateGraphicsPipelines compiles every config in one call and
	// returns pipelines in the same order.
	CreateGraphicsPipelines([]PipelineConfig) ([]PipelineHandle, error)
	DestroyPipeline(PipelineHandle)
}

// Device is everything the frame driver needs from a logical device.
type Device interface {
	SurfaceDevice
	SyncDevice
	CommandDevice
	PipelineDevice
}
