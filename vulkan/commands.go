package vulkan

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe"
)

func (d *Device) CreateCommandPool(family uint32) (vkframe.CommandPoolHandle, error) {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(d.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &pool)
	if err := NewError(ret); err != nil {
		return 0, errors.Wrap(err, "failed to create command pool")
	}
	return vkframe.CommandPoolHandle(d.pools.put(&commandPool{handle: pool})), nil
}

// DestroyCommandPool frees every buffer allocated from the pool.
func (d *Device) DestroyCommandPool(h vkframe.CommandPoolHandle) {
	pool, ok := d.pools.take(uint64(h))
	if !ok {
		return
	}
	pool.mu.Lock()
	for _, id := range pool.buffers {
		d.buffers.take(id)
	}
	pool.buffers = nil
	pool.mu.Unlock()
	vk.DestroyCommandPool(d.device, pool.handle, nil)
}

func (d *Device) AllocateCommandBuffers(h vkframe.CommandPoolHandle, level vkframe.CommandLevel, n int) ([]vkframe.CommandBufferHandle, error) {
	pool := lookup(d.pools, "AllocateCommandBuffers", uint64(h))
	vkLevel := vk.CommandBufferLevelPrimary
	if level == vkframe.LevelSecondary {
		vkLevel = vk.CommandBufferLevelSecondary
	}
	bufs := make([]vk.CommandBuffer, n)
	ret := vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool.handle,
		Level:              vkLevel,
		CommandBufferCount: uint32(n),
	}, bufs)
	if err := NewError(ret); err != nil {
		return nil, errors.Wrap(err, "failed to allocate command buffers")
	}
	out := make([]vkframe.CommandBufferHandle, n)
	pool.mu.Lock()
	for i, buf := range bufs {
		id := d.buffers.put(buf)
		pool.buffers = append(pool.buffers, id)
		out[i] = vkframe.CommandBufferHandle(id)
	}
	pool.mu.Unlock()
	return out, nil
}

func (d *Device) ResetCommandBuffer(h vkframe.CommandBufferHandle) error {
	buf := lookup(d.buffers, "ResetCommandBuffer", uint64(h))
	ret := vk.ResetCommandBuffer(buf, vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit))
	return errors.Wrap(NewError(ret), "failed to reset command buffer")
}

func (d *Device) BeginCommandBuffer(h vkframe.CommandBufferHandle, inherit *vkframe.Inheritance) error {
	buf := lookup(d.buffers, "BeginCommandBuffer", uint64(h))
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if inherit != nil {
		info.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
		info.PInheritanceInfo = []vk.CommandBufferInheritanceInfo{{
			SType:       vk.StructureTypeCommandBufferInheritanceInfo,
			RenderPass:  lookup(d.passes, "BeginCommandBuffer", uint64(inherit.Pass)),
			Subpass:     0,
			Framebuffer: lookup(d.framebuffers, "BeginCommandBuffer", uint64(inherit.Framebuffer)),
		}}
	}
	return errors.Wrap(NewError(vk.BeginCommandBuffer(buf, &info)), "failed to begin command buffer")
}

func (d *Device) EndCommandBuffer(h vkframe.CommandBufferHandle) error {
	buf := lookup(d.buffers, "EndCommandBuffer", uint64(h))
	return errors.Wrap(NewError(vk.EndCommandBuffer(buf)), "failed to end command buffer")
}

// CmdBeginPass opens the pass for secondary buffers; primaries never draw
// inline.
func (d *Device) CmdBeginPass(h vkframe.CommandBufferHandle, begin vkframe.PassBegin) {
	buf := lookup(d.buffers, "CmdBeginPass", uint64(h))
	c := begin.ClearColor
	clearValues := []vk.ClearValue{
		vk.NewClearValue([]float32{c[0], c[1], c[2], c[3]}),
	}
	vk.CmdBeginRenderPass(buf, &vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      lookup(d.passes, "CmdBeginPass", uint64(begin.Pass)),
		Framebuffer:     lookup(d.framebuffers, "CmdBeginPass", uint64(begin.Framebuffer)),
		RenderArea:      rect(begin.Extent),
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}, vk.SubpassContentsSecondaryCommandBuffers)
}

func (d *Device) CmdExecuteCommands(h vkframe.CommandBufferHandle, secondaries []vkframe.CommandBufferHandle) {
	if len(secondaries) == 0 {
		return
	}
	buf := lookup(d.buffers, "CmdExecuteCommands", uint64(h))
	bufs := make([]vk.CommandBuffer, len(secondaries))
	for i, s := range secondaries {
		bufs[i] = lookup(d.buffers, "CmdExecuteCommands", uint64(s))
	}
	vk.CmdExecuteCommands(buf, uint32(len(bufs)), bufs)
}

func (d *Device) CmdEndPass(h vkframe.CommandBufferHandle) {
	vk.CmdEndRenderPass(lookup(d.buffers, "CmdEndPass", uint64(h)))
}

func (d *Device) CmdBindPipeline(h vkframe.CommandBufferHandle, p vkframe.PipelineHandle) {
	buf := lookup(d.buffers, "CmdBindPipeline", uint64(h))
	vk.CmdBindPipeline(buf, vk.PipelineBindPointGraphics, lookup(d.pipelines, "CmdBindPipeline", uint64(p)))
}

func (d *Device) CmdSetViewport(h vkframe.CommandBufferHandle, e vkframe.Extent) {
	buf := lookup(d.buffers, "CmdSetViewport", uint64(h))
	vk.CmdSetViewport(buf, 0, 1, []vk.Viewport{{
		Width:    float32(e.Width),
		Height:   float32(e.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
}

func (d *Device) CmdSetScissor(h vkframe.CommandBufferHandle, e vkframe.Extent) {
	buf := lookup(d.buffers, "CmdSetScissor", uint64(h))
	vk.CmdSetScissor(buf, 0, 1, []vk.Rect2D{rect(e)})
}

func (d *Device) CmdPushConstants(h vkframe.CommandBufferHandle, l vkframe.LayoutHandle, stages vkframe.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	buf := lookup(d.buffers, "CmdPushConstants", uint64(h))
	layout := lookup(d.layouts, "CmdPushConstants", uint64(l))
	vk.CmdPushConstants(buf, layout, vk.ShaderStageFlags(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *Device) CmdDraw(h vkframe.CommandBufferHandle, vertices, instances, firstVertex, firstInstance uint32) {
	vk.CmdDraw(lookup(d.buffers, "CmdDraw", uint64(h)), vertices, instances, firstVertex, firstInstance)
}

func (d *Device) semaphoreList(op string, hs []vkframe.SemaphoreHandle) []vk.Semaphore {
	out := make([]vk.Semaphore, 0, len(hs))
	for _, h := range hs {
		if h != 0 {
			out = append(out, lookup(d.semaphores, op, uint64(h)))
		}
	}
	return out
}

// QueueSubmit batches submissions into as few driver calls as possible.
// A driver call carries one fence, so a batch closes at every submission
// that signals the host. Every wait happens at the color attachment output
// stage.
func (d *Device) QueueSubmit(q vkframe.QueueHandle, subs []vkframe.Submission) error {
	queue := lookup(d.queues, "QueueSubmit", uint64(q))
	var batch []vk.SubmitInfo
	for i, s := range subs {
		batch = append(batch, d.submitInfo(s))
		if s.HostSignal == 0 && i < len(subs)-1 {
			continue
		}
		fence := vk.NullFence
		if s.HostSignal != 0 {
			fence = lookup(d.fences, "QueueSubmit", uint64(s.HostSignal))
		}
		ret := vk.QueueSubmit(queue, uint32(len(batch)), batch, fence)
		if err := NewError(ret); err != nil {
			return errors.Wrap(err, "failed to submit")
		}
		batch = nil
	}
	return nil
}

func (d *Device) submitInfo(s vkframe.Submission) vk.SubmitInfo {
	wait := d.semaphoreList("QueueSubmit", s.Wait)
	signal := d.semaphoreList("QueueSubmit", s.Signal)
	stages := make([]vk.PipelineStageFlags, len(wait))
	for j := range stages {
		stages[j] = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}
	bufs := make([]vk.CommandBuffer, len(s.Buffers))
	for j, b := range s.Buffers {
		bufs[j] = lookup(d.buffers, "QueueSubmit", uint64(b))
	}
	return vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(bufs)),
		PCommandBuffers:      bufs,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}
}

// QueuePresent presents each request separately so every swapchain gets
// its own status.
func (d *Device) QueuePresent(q vkframe.QueueHandle, reqs []vkframe.PresentRequest) ([]vkframe.Status, error) {
	queue := lookup(d.queues, "QueuePresent", uint64(q))
	statuses := make([]vkframe.Status, len(reqs))
	for i, r := range reqs {
		wait := d.semaphoreList("QueuePresent", r.Wait)
		sc := lookup(d.swapchains, "QueuePresent", uint64(r.Swapchain))
		ret := vk.QueuePresent(queue, &vk.PresentInfo{
			SType:              vk.StructureTypePresentInfo,
			WaitSemaphoreCount: uint32(len(wait)),
			PWaitSemaphores:    wait,
			SwapchainCount:     1,
			PSwapchains:        []vk.Swapchain{sc.handle},
			PImageIndices:      []uint32{r.ImageIndex},
		})
		st, err := status(ret)
		if err != nil {
			return statuses, errors.Wrap(err, "failed to present")
		}
		statuses[i] = st
	}
	return statuses, nil
}
