package vkframe

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// State is the position of the driver inside a frame.
type State int

const (
	StateIdle State = iota
	StateAcquireStarted
	StateRecording
	StateSubmitted
	StatePresented
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateAcquireStarted: "acquire-started",
	StateRecording:      "recording",
	StateSubmitted:      "submitted",
	StatePresented:      "presented",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Window is the part of the platform window the driver polls every frame.
type Window interface {
	DrawableSize() (width, height uint32)
	Minimized() bool
}

// Frame is handed to every renderer once per presented frame.
type Frame struct {
	Number uint64
	Slot   int
	// Target is only valid for this frame.
	Target  FrameTarget
	Elapsed time.Duration
	Delta   time.Duration
}

// Renderer records its draw commands for one frame into cmd.
type Renderer interface {
	Record(cmd *Secondary, frame *Frame, cache *PipelineCache) error
}

// Driver runs the frame loop: it acquires an image, lets every renderer
// record, submits, presents and moves on to the next slot.
type Driver struct {
	dev    Device
	window Window
	cfg    Config
	log    *slog.Logger

	target   *Target
	sync     *SyncSet
	recorder *Recorder
	cache    *PipelineCache

	renderers []Renderer

	slot          int
	slots         int
	frames        uint64
	rebuilds      int
	state         State
	resizePending bool
	closed        bool

	now   func() time.Time
	start time.Time
	last  time.Time
}

// NewDriver builds the presentation target, the frame slots, the recorder
// and the pipeline cache on dev.
func NewDriver(dev Device, window Window, surface SurfaceHandle, queues Queues, cfg Config, log *slog.Logger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = orDefault(log)

	target := NewTarget(dev, surface, cfg.Surface, log)
	if queues.Separate() {
		target.SetQueueFamilies(queues.Graphics.Family, queues.Present.Family)
	}
	hint := Extent{Width: cfg.Surface.Width, Height: cfg.Surface.Height}
	if w, h := window.DrawableSize(); w > 0 && h > 0 {
		hint = Extent{Width: w, Height: h}
	}
	if err := target.Initialize(hint); err != nil {
		return nil, errors.Wrap(err, "initialize presentation target")
	}

	sync := NewSyncSet(dev, cfg.FenceTimeout, log)
	if err := sync.CreateSlots(cfg.FramesInFlight); err != nil {
		sync.Destroy()
		target.Destroy()
		return nil, err
	}

	recorder, err := NewRecorder(dev, queues, cfg.FramesInFlight, log)
	if err != nil {
		sync.Destroy()
		target.Destroy()
		return nil, err
	}
	recorder.SetClearColor(cfg.ClearColor)

	d := &Driver{
		dev:      dev,
		window:   window,
		cfg:      cfg,
		log:      log,
		target:   target,
		sync:     sync,
		recorder: recorder,
		cache:    NewPipelineCache(dev, log),
		slots:    cfg.FramesInFlight,
		now:      time.Now,
	}
	d.start = d.now()
	d.last = d.start
	log.Info("vkframe: driver ready", "frames_in_flight", cfg.FramesInFlight, "separate_present_queue", queues.Separate())
	return d, nil
}

func (d *Driver) AddRenderer(r Renderer) {
	d.renderers = append(d.renderers, r)
}

// Resize flags the target for rebuild before the next frame. width and
// height are only logged: the rebuild uses the window's drawable size at
// that point, which may have changed again since the callback.
func (d *Driver) Resize(width, height uint32) {
	d.log.Debug("vkframe: resize requested", "width", width, "height", height)
	d.resizePending = true
}

// AddSlots grows the number of frames in flight by n. The sync set and the
// recorder grow together; if either fails both are put back as they were.
func (d *Driver) AddSlots(n int) error {
	if n < 1 {
		return errors.Errorf("slots to add must be at least 1, got %d", n)
	}
	if err := d.sync.CreateSlots(n); err != nil {
		d.sync.truncate(d.slots)
		return errors.Wrap(err, "add frame slots")
	}
	if err := d.recorder.AddSlots(n); err != nil {
		d.recorder.truncate(d.slots)
		d.sync.truncate(d.slots)
		return errors.Wrap(err, "add frame slots")
	}
	d.slots += n
	d.log.Info("vkframe: frame slots added", "added", n, "frames_in_flight", d.slots)
	return nil
}

// Tick renders one frame. It does nothing, and reports false, while the
// window is minimized or has no drawable area. A frame abandoned on an
// error leaves the driver idle.
func (d *Driver) Tick() (presented bool, err error) {
	defer func() {
		if err != nil {
			d.state = StateIdle
		}
	}()
	size, ok := d.drawable()
	if !ok {
		return false, nil
	}
	if d.resizePending {
		if err := d.rebuild(size); err != nil {
			return false, err
		}
	}

	slot := d.slot
	if err := d.sync.WaitForSlot(slot); err != nil {
		return false, err
	}

	d.state = StateAcquireStarted
	index, ok, err := d.acquire(slot)
	if err != nil || !ok {
		d.state = StateIdle
		return false, err
	}
	if err := d.sync.ReleaseSlot(slot); err != nil {
		return false, err
	}

	d.state = StateRecording
	now := d.now()
	frame := &Frame{
		Number:  d.frames,
		Slot:    slot,
		Target:  d.target.Frame(index),
		Elapsed: now.Sub(d.start),
		Delta:   now.Sub(d.last),
	}
	d.last = now

	if err := d.record(frame); err != nil {
		return false, err
	}

	primitives := d.sync.Slot(slot)
	if err := d.recorder.Submit(slot, primitives.ImageAcquired, primitives.RenderComplete, primitives.FrameDone); err != nil {
		return false, escalate(err)
	}
	d.state = StateSubmitted
	d.recorder.Present(d.target.Swapchain(), index, primitives.RenderComplete)

	stale, err := d.recorder.Flush()
	if err != nil {
		return false, err
	}
	d.state = StatePresented
	if stale {
		d.log.Warn("vkframe: present found target stale, rebuilding before next frame", "frame", d.frames)
		d.resizePending = true
	}

	d.slot = (slot + 1) % d.slots
	d.frames++
	d.state = StateIdle
	d.log.Debug("vkframe: frame presented", "frame", frame.Number, "slot", slot, "image", index)
	return true, nil
}

func (d *Driver) drawable() (Extent, bool) {
	if d.window.Minimized() {
		return Extent{}, false
	}
	w, h := d.window.DrawableSize()
	size := Extent{Width: w, Height: h}
	return size, !size.Zero()
}

func (d *Driver) rebuild(size Extent) error {
	if err := d.target.HandleResize(size.Width, size.Height); err != nil {
		return errors.Wrap(err, "rebuild presentation target")
	}
	d.resizePending = false
	d.rebuilds++
	return nil
}

// acquire gets the next image for slot, rebuilding the target whenever it
// is out of date. ok is false when the window lost its drawable area on
// the way.
func (d *Driver) acquire(slot int) (index uint32, ok bool, err error) {
	for attempt := 0; ; attempt++ {
		index, stale, err := d.sync.AcquireImage(slot, d.target)
		if err != nil {
			return 0, false, err
		}
		if !stale {
			return index, true, nil
		}
		if attempt >= d.cfg.MaxAcquireRetries {
			Fatal(contractf("Driver.Tick", "presentation target still out of date after %d rebuilds", attempt))
		}
		d.log.Warn("vkframe: acquire found target out of date", "slot", slot, "attempt", attempt+1)
		size, drawable := d.drawable()
		if !drawable {
			return 0, false, nil
		}
		if err := d.rebuild(size); err != nil {
			return 0, false, err
		}
	}
}

func (d *Driver) record(frame *Frame) error {
	slot := frame.Slot
	if err := d.recorder.BeginPrimary(slot, frame.Target); err != nil {
		return escalate(err)
	}
	for _, r := range d.renderers {
		cmd, err := d.recorder.NewSecondary(slot, 0)
		if err != nil {
			return escalate(err)
		}
		if err := r.Record(cmd, frame, d.cache); err != nil {
			return errors.Wrapf(err, "renderer %T", r)
		}
		if err := d.recorder.RecordSecondary(slot, cmd, frame.Target); err != nil {
			return escalate(err)
		}
	}
	return escalate(d.recorder.EndPrimary(slot))
}

// escalate turns contract violations into a panic and passes every other
// error through.
func escalate(err error) error {
	if IsContractViolation(err) {
		Fatal(err)
	}
	return err
}

// Run calls Tick until ctx is done, poll returns false or a frame fails.
// poll is where the caller pumps window events.
func (d *Driver) Run(ctx context.Context, poll func() bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !poll() {
			return nil
		}
		if _, err := d.Tick(); err != nil {
			return err
		}
	}
}

// Shutdown waits for the device to go idle and destroys everything the
// driver built. It is safe to call twice.
func (d *Driver) Shutdown() error {
	if d.closed {
		return nil
	}
	d.closed = true
	err := errors.Wrap(d.dev.WaitIdle(), "wait idle before shutdown")
	for _, destroy := range []func() error{
		d.cache.Destroy,
		d.recorder.Destroy,
		d.sync.Destroy,
		d.target.Destroy,
	} {
		if derr := destroy(); err == nil {
			err = derr
		}
	}
	d.log.Info("vkframe: driver shut down", "frames", d.frames, "rebuilds", d.rebuilds)
	return err
}

func (d *Driver) State() State          { return d.state }
func (d *Driver) Slot() int             { return d.slot }
func (d *Driver) Slots() int            { return d.slots }
func (d *Driver) Frames() uint64        { return d.frames }
func (d *Driver) Rebuilds() int         { return d.rebuilds }
func (d *Driver) Config() Config        { return d.cfg }
func (d *Driver) Target() *Target       { return d.target }
func (d *Driver) Sync() *SyncSet        { return d.sync }
func (d *Driver) Recorder() *Recorder   { return d.recorder }
func (d *Driver) Cache() *PipelineCache { return d.cache }
func (d *Driver) ResizePending() bool   { return d.resizePending }
