package vkframe

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// Slot holds the synchronization primitives of one frame in flight.
type Slot struct {
	// ImageAcquired is signaled by the presentation engine, waited on by the
	// graphics queue.
	ImageAcquired SemaphoreHandle
	// RenderComplete is signaled by the graphics queue, waited on by present.
	RenderComplete SemaphoreHandle
	// FrameDone is signaled by the graphics queue and waited on by the host.
	// It is created signaled so the first wait on a fresh slot returns.
	FrameDone FenceHandle
}

// SyncSet owns every frame slot. It is not safe for concurrent use; all
// calls come from the submitting goroutine.
type SyncSet struct {
	dev     SyncDevice
	timeout time.Duration
	log     *slog.Logger
	slots   []Slot
}

// NewSyncSet returns an empty set; timeout bounds WaitForSlot.
func NewSyncSet(dev SyncDevice, timeout time.Duration, log *slog.Logger) *SyncSet {
	return &SyncSet{dev: dev, timeout: timeout, log: orDefault(log)}
}

// CreateSlots appends count new slots to the set.
func (s *SyncSet) CreateSlots(count int) error {
	for i := 0; i < count; i++ {
		slot, err := s.newSlot()
		if err != nil {
			return errors.Wrapf(err, "create slot %d", len(s.slots))
		}
		s.slots = append(s.slots, slot)
	}
	s.log.Debug("vkframe: frame slots created", "added", count, "total", len(s.slots))
	return nil
}

func (s *SyncSet) newSlot() (Slot, error) {
	var slot Slot
	var err error
	if slot.ImageAcquired, err = s.dev.CreateSemaphore(); err != nil {
		return Slot{}, err
	}
	if slot.RenderComplete, err = s.dev.CreateSemaphore(); err != nil {
		s.dev.DestroySemaphore(slot.ImageAcquired)
		return Slot{}, err
	}
	if slot.FrameDone, err = s.dev.CreateFence(true); err != nil {
		s.dev.DestroySemaphore(slot.ImageAcquired)
		s.dev.DestroySemaphore(slot.RenderComplete)
		return Slot{}, err
	}
	return slot, nil
}

func (s *SyncSet) Len() int { return len(s.slots) }

// truncate destroys every slot from n on. Only slots that were never
// submitted, or whose work is finished, may be dropped.
func (s *SyncSet) truncate(n int) {
	for _, slot := range s.slots[n:] {
		s.dev.DestroySemaphore(slot.ImageAcquired)
		s.dev.DestroySemaphore(slot.RenderComplete)
		s.dev.DestroyFence(slot.FrameDone)
	}
	s.slots = s.slots[:n]
}

func (s *SyncSet) Slot(i int) Slot { return s.slots[i] }

// WaitForSlot blocks until the slot's FrameDone fence is signaled. It does
// not change the fence, so waiting twice is fine.
func (s *SyncSet) WaitForSlot(i int) error {
	if err := s.dev.WaitFence(s.slots[i].FrameDone, s.timeout); err != nil {
		return errors.Wrapf(err, "wait for slot %d", i)
	}
	return nil
}

// SlotDone polls the slot's FrameDone fence without blocking.
func (s *SyncSet) SlotDone(i int) (bool, error) {
	done, err := s.dev.FenceSignaled(s.slots[i].FrameDone)
	return done, errors.Wrapf(err, "poll slot %d", i)
}

// ReleaseSlot resets FrameDone so the slot can be submitted again. Only
// call it after WaitForSlot returned.
func (s *SyncSet) ReleaseSlot(i int) error {
	return errors.Wrapf(s.dev.ResetFence(s.slots[i].FrameDone), "release slot %d", i)
}

// AcquireImage obtains the next presentable image of t, signaling the
// slot's ImageAcquired semaphore. stale reports that t must be rebuilt
// before retrying; the semaphore is left untouched in that case.
// A suboptimal image is returned as usable.
func (s *SyncSet) AcquireImage(slot int, t *Target) (index uint32, stale bool, err error) {
	index, status, err := t.AcquireNextImage(s.slots[slot].ImageAcquired, s.timeout)
	if err != nil {
		if errors.Is(err, ErrOutOfDate) {
			return 0, true, nil
		}
		return 0, false, errors.Wrapf(err, "acquire image for slot %d", slot)
	}
	switch status {
	case StatusOutOfDate:
		return 0, true, nil
	case StatusSuboptimal:
		s.log.Debug("vkframe: acquired suboptimal image", "slot", slot, "image", index)
	}
	return index, false, nil
}

// Destroy waits for the device to go idle and destroys every slot.
func (s *SyncSet) Destroy() error {
	err := s.dev.WaitIdle()
	for _, slot := range s.slots {
		s.dev.DestroySemaphore(slot.ImageAcquired)
		s.dev.DestroySemaphore(slot.RenderComplete)
		s.dev.DestroyFence(slot.FrameDone)
	}
	s.slots = nil
	return errors.Wrap(err, "wait idle before sync destroy")
}
