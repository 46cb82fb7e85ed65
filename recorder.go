package vkframe

import (
	"log/slog"

	"github.com/pkg/errors"
)

type recording struct {
	buf    CommandBufferHandle
	target FrameTarget
	ready  bool
}

// frameContext is the recording state of one slot.
type frameContext struct {
	primary CommandBufferHandle
	// one secondary pool per recording worker
	secondary  []*bufferPool
	target     FrameTarget
	open       bool
	recordings []recording
	// secondaries handed out but not yet recorded
	pending int
}

// Recorder owns the primary command buffers, the secondary buffer pools
// and the pending submission and present lists. Submission and present are
// serialized on the calling goroutine.
type Recorder struct {
	dev        CommandDevice
	queues     Queues
	log        *slog.Logger
	clearColor [4]float32
	workers    int

	primaryPool *bufferPool
	frames      []*frameContext

	submissions []Submission
	presents    []PresentRequest
}

// NewRecorder creates a recorder with one primary buffer per slot and a
// single recording worker.
func NewRecorder(dev CommandDevice, queues Queues, slots int, log *slog.Logger) (*Recorder, error) {
	primary, err := newBufferPool(dev, queues.Graphics.Family, LevelPrimary)
	if err != nil {
		return nil, err
	}
	r := &Recorder{
		dev:         dev,
		queues:      queues,
		log:         orDefault(log),
		clearColor:  [4]float32{0, 0, 0, 1},
		workers:     1,
		primaryPool: primary,
	}
	if err := r.AddSlots(slots); err != nil {
		r.Destroy()
		return nil, err
	}
	return r, nil
}

// AddSlots appends count slots, mirroring SyncSet.CreateSlots.
func (r *Recorder) AddSlots(count int) error {
	for i := 0; i < count; i++ {
		buf, err := r.primaryPool.next()
		if err != nil {
			return errors.Wrapf(err, "primary buffer for slot %d", len(r.frames))
		}
		fc := &frameContext{primary: buf}
		r.frames = append(r.frames, fc)
		if err := r.makeSecondaryPools(fc); err != nil {
			return err
		}
	}
	return nil
}

// truncate drops every slot from n on. The primary buffers stay in the
// pool and are handed out again by the next AddSlots.
func (r *Recorder) truncate(n int) {
	for _, fc := range r.frames[n:] {
		for _, p := range fc.secondary {
			p.destroy()
		}
	}
	r.frames = r.frames[:n]
	r.primaryPool.count = n
}

func (r *Recorder) makeSecondaryPools(fc *frameContext) error {
	for w := 0; w < r.workers; w++ {
		p, err := newBufferPool(r.dev, r.queues.Graphics.Family, LevelSecondary)
		if err != nil {
			return errors.Wrapf(err, "secondary pool for worker %d", w)
		}
		fc.secondary = append(fc.secondary, p)
	}
	return nil
}

// SetRecordingWorkers gives every slot n secondary pools, one per
// recording worker. It waits for the device to go idle first.
func (r *Recorder) SetRecordingWorkers(n int) error {
	if n < 1 {
		return errors.Errorf("recording workers must be at least 1, got %d", n)
	}
	if err := r.dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait idle before resizing worker pools")
	}
	r.workers = n
	for _, fc := range r.frames {
		for _, p := range fc.secondary {
			p.destroy()
		}
		fc.secondary = fc.secondary[:0]
		if err := r.makeSecondaryPools(fc); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) Workers() int { return r.workers }

func (r *Recorder) Slots() int { return len(r.frames) }

func (r *Recorder) SetClearColor(c [4]float32) { r.clearColor = c }

// Primary returns the slot's primary command buffer.
func (r *Recorder) Primary(slot int) CommandBufferHandle { return r.frames[slot].primary }

// BeginPrimary resets the slot's pools and opens its primary buffer for
// target. The slot's FrameDone fence must have been observed signaled.
func (r *Recorder) BeginPrimary(slot int, target FrameTarget) error {
	fc := r.frames[slot]
	if fc.open {
		return contractf("BeginPrimary", "primary buffer of slot %d is already open", slot)
	}
	for _, p := range fc.secondary {
		p.reset()
	}
	fc.recordings = fc.recordings[:0]
	fc.pending = 0
	if err := r.dev.ResetCommandBuffer(fc.primary); err != nil {
		return errors.Wrapf(err, "reset primary of slot %d", slot)
	}
	if err := r.dev.BeginCommandBuffer(fc.primary, nil); err != nil {
		return errors.Wrapf(err, "begin primary of slot %d", slot)
	}
	fc.target = target
	fc.open = true
	return nil
}

// NewSecondary returns a secondary buffer from the worker's pool, begun
// inside the slot's pass. It must be handed back with RecordSecondary
// before EndPrimary.
func (r *Recorder) NewSecondary(slot, worker int) (*Secondary, error) {
	fc := r.frames[slot]
	if !fc.open {
		return nil, contractf("NewSecondary", "primary buffer of slot %d is not open", slot)
	}
	if worker < 0 || worker >= len(fc.secondary) {
		return nil, contractf("NewSecondary", "worker %d out of range [0,%d)", worker, len(fc.secondary))
	}
	buf, err := fc.secondary[worker].next()
	if err != nil {
		return nil, err
	}
	err = r.dev.BeginCommandBuffer(buf, &Inheritance{
		Pass:        fc.target.Pass.Handle,
		Framebuffer: fc.target.Framebuffer,
	})
	if err != nil {
		return nil, errors.Wrap(err, "begin secondary")
	}
	fc.pending++
	return &Secondary{dev: r.dev, slot: slot, worker: worker, buf: buf}, nil
}

// RecordSecondary ends sec and queues it, ready, for the slot's primary
// buffer. target must be the one the primary was opened for.
func (r *Recorder) RecordSecondary(slot int, sec *Secondary, target FrameTarget) error {
	fc := r.frames[slot]
	switch {
	case !fc.open:
		return contractf("RecordSecondary", "primary buffer of slot %d is not open", slot)
	case sec.slot != slot:
		return contractf("RecordSecondary", "secondary of slot %d recorded into slot %d", sec.slot, slot)
	case sec.recorded:
		return contractf("RecordSecondary", "secondary buffer recorded twice")
	case target != fc.target:
		return contractf("RecordSecondary", "target image %d (generation %d) does not match slot %d target image %d (generation %d)",
			target.Index, target.Generation, slot, fc.target.Index, fc.target.Generation)
	}
	if err := r.dev.EndCommandBuffer(sec.buf); err != nil {
		return errors.Wrap(err, "end secondary")
	}
	sec.recorded = true
	fc.pending--
	fc.recordings = append(fc.recordings, recording{buf: sec.buf, target: target, ready: true})
	return nil
}

// EndPrimary runs the slot's pass: begin on the target framebuffer,
// execute every ready secondary in recording order, end. The primary
// buffer is then closed and the recordings marked not ready.
func (r *Recorder) EndPrimary(slot int) error {
	fc := r.frames[slot]
	if !fc.open {
		return contractf("EndPrimary", "primary buffer of slot %d is not open", slot)
	}
	if fc.pending != 0 {
		return contractf("EndPrimary", "%d secondary buffers of slot %d were never recorded", fc.pending, slot)
	}

	r.dev.CmdBeginPass(fc.primary, PassBegin{
		Pass:        fc.target.Pass.Handle,
		Framebuffer: fc.target.Framebuffer,
		Extent:      fc.target.Extent,
		ClearColor:  r.clearColor,
	})
	ready := make([]CommandBufferHandle, 0, len(fc.recordings))
	for _, rec := range fc.recordings {
		if rec.ready {
			ready = append(ready, rec.buf)
		}
	}
	if len(ready) > 0 {
		r.dev.CmdExecuteCommands(fc.primary, ready)
	}
	r.dev.CmdEndPass(fc.primary)
	if err := r.dev.EndCommandBuffer(fc.primary); err != nil {
		return errors.Wrapf(err, "end primary of slot %d", slot)
	}
	for i := range fc.recordings {
		fc.recordings[i].ready = false
	}
	fc.open = false
	return nil
}

// Submit enqueues the slot's primary buffer. The graphics queue waits on
// waitOn, then signals signal and hostSignal.
func (r *Recorder) Submit(slot int, waitOn, signal SemaphoreHandle, hostSignal FenceHandle) error {
	fc := r.frames[slot]
	if fc.open {
		return contractf("Submit", "primary buffer of slot %d is still open", slot)
	}
	sub := Submission{
		Buffers:    []CommandBufferHandle{fc.primary},
		HostSignal: hostSignal,
	}
	if waitOn != 0 {
		sub.Wait = []SemaphoreHandle{waitOn}
	}
	if signal != 0 {
		sub.Signal = []SemaphoreHandle{signal}
	}
	r.submissions = append(r.submissions, sub)
	return nil
}

// Present enqueues a present request waiting on waitOn.
func (r *Recorder) Present(swapchain SwapchainHandle, imageIndex uint32, waitOn SemaphoreHandle) {
	req := PresentRequest{Swapchain: swapchain, ImageIndex: imageIndex}
	if waitOn != 0 {
		req.Wait = []SemaphoreHandle{waitOn}
	}
	r.presents = append(r.presents, req)
}

// Pending returns the number of queued submissions and presents.
func (r *Recorder) Pending() (submissions, presents int) {
	return len(r.submissions), len(r.presents)
}

// Flush issues every queued submission to the graphics queue and then
// every queued present to the present queue. Both lists are cleared, even
// on error. stale reports a present that found the target out of date or
// suboptimal.
func (r *Recorder) Flush() (stale bool, err error) {
	subs, presents := r.submissions, r.presents
	r.submissions, r.presents = nil, nil

	if len(subs) > 0 {
		if err := r.dev.QueueSubmit(r.queues.Graphics.Handle, subs); err != nil {
			return false, errors.Wrap(err, "queue submit")
		}
	}
	if len(presents) == 0 {
		return false, nil
	}
	statuses, err := r.dev.QueuePresent(r.queues.PresentQueue().Handle, presents)
	if err != nil {
		if errors.Is(err, ErrOutOfDate) {
			return true, nil
		}
		return false, errors.Wrap(err, "queue present")
	}
	for _, st := range statuses {
		if st != StatusOK {
			stale = true
		}
	}
	return stale, nil
}

// Destroy waits for the device to go idle and frees every pool.
func (r *Recorder) Destroy() error {
	err := r.dev.WaitIdle()
	for _, fc := range r.frames {
		for _, p := range fc.secondary {
			p.destroy()
		}
	}
	r.frames = nil
	if r.primaryPool != nil {
		r.primaryPool.destroy()
		r.primaryPool = nil
	}
	r.submissions, r.presents = nil, nil
	return errors.Wrap(err, "wait idle before recorder destroy")
}

// Secondary is a secondary command buffer handed to a renderer. Its
// commands run inside the slot's pass when the primary buffer ends.
type Secondary struct {
	dev      CommandDevice
	slot     int
	worker   int
	buf      CommandBufferHandle
	recorded bool
}

func (s *Secondary) Handle() CommandBufferHandle { return s.buf }
func (s *Secondary) Slot() int                   { return s.slot }
func (s *Secondary) Worker() int                 { return s.worker }

func (s *Secondary) BindPipeline(p PipelineHandle) {
	s.dev.CmdBindPipeline(s.buf, p)
}

func (s *Secondary) SetViewport(e Extent) {
	s.dev.CmdSetViewport(s.buf, e)
}

func (s *Secondary) SetScissor(e Extent) {
	s.dev.CmdSetScissor(s.buf, e)
}

func (s *Secondary) PushConstants(layout LayoutHandle, stages ShaderStage, offset uint32, data []byte) {
	s.dev.CmdPushConstants(s.buf, layout, stages, offset, data)
}

func (s *Secondary) Draw(vertices, instances, firstVertex, firstInstance uint32) {
	s.dev.CmdDraw(s.buf, vertices, instances, firstVertex, firstInstance)
}
