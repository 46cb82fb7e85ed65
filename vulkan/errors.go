package vulkan

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe"
)

// resultErrors maps Vulkan failures onto the frame core's classification.
var resultErrors = map[vk.Result]error{
	vk.ErrorOutOfDate:         vkframe.ErrOutOfDate,
	vk.Timeout:                vkframe.ErrTimeout,
	vk.ErrorDeviceLost:        vkframe.ErrDeviceLost,
	vk.ErrorOutOfHostMemory:   vkframe.ErrOutOfHostMemory,
	vk.ErrorOutOfDeviceMemory: vkframe.ErrOutOfDeviceMemory,
	vk.ErrorSurfaceLost:       vkframe.ErrSurfaceLost,
}

// NewError returns nil for vk.Success and an error for anything else.
// Results the core knows how to classify wrap its sentinels.
func NewError(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	if sentinel, ok := resultErrors[ret]; ok {
		return errors.Wrapf(sentinel, "vulkan error: %s (%d)", vk.Error(ret).Error(), ret)
	}
	return errors.Errorf("vulkan error: %s (%d)", vk.Error(ret).Error(), ret)
}

// status splits an acquire or present result into a non-error status and
// an error.
func status(ret vk.Result) (vkframe.Status, error) {
	switch ret {
	case vk.Success:
		return vkframe.StatusOK, nil
	case vk.Suboptimal:
		return vkframe.StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return vkframe.StatusOutOfDate, nil
	}
	return vkframe.StatusOK, NewError(ret)
}
