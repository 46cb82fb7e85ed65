package vulkan

import (
	"time"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe"
)

func (d *Device) CreateSemaphore() (vkframe.SemaphoreHandle, error) {
	var sem vk.Semaphore
	ret := vk.CreateSemaphore(d.device, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem)
	if err := NewError(ret); err != nil {
		return 0, errors.Wrap(err, "failed to create semaphore")
	}
	return vkframe.SemaphoreHandle(d.semaphores.put(sem)), nil
}

func (d *Device) DestroySemaphore(h vkframe.SemaphoreHandle) {
	if sem, ok := d.semaphores.take(uint64(h)); ok {
		vk.DestroySemaphore(d.device, sem, nil)
	}
}

func (d *Device) CreateFence(signaled bool) (vkframe.FenceHandle, error) {
	var flags vk.FenceCreateFlags
	if signaled {
		flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	ret := vk.CreateFence(d.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: flags,
	}, nil, &fence)
	if err := NewError(ret); err != nil {
		return 0, errors.Wrap(err, "failed to create fence")
	}
	return vkframe.FenceHandle(d.fences.put(fence)), nil
}

func (d *Device) DestroyFence(h vkframe.FenceHandle) {
	if fence, ok := d.fences.take(uint64(h)); ok {
		vk.DestroyFence(d.device, fence, nil)
	}
}

func (d *Device) WaitFence(h vkframe.FenceHandle, timeout time.Duration) error {
	fence := lookup(d.fences, "WaitFence", uint64(h))
	ret := vk.WaitForFences(d.device, 1, []vk.Fence{fence}, vk.True, uint64(timeout.Nanoseconds()))
	return NewError(ret)
}

func (d *Device) ResetFence(h vkframe.FenceHandle) error {
	fence := lookup(d.fences, "ResetFence", uint64(h))
	return NewError(vk.ResetFences(d.device, 1, []vk.Fence{fence}))
}

// FenceSignaled polls without blocking.
func (d *Device) FenceSignaled(h vkframe.FenceHandle) (bool, error) {
	fence := lookup(d.fences, "FenceSignaled", uint64(h))
	switch ret := vk.GetFenceStatus(d.device, fence); ret {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, NewError(ret)
	}
}
