package vulkan

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe"
)

func spirv(words ...uint32) []byte {
	out := make([]byte, 0, 4*len(words))
	for _, w := range words {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}

func TestSPIRVWords(t *testing.T) {
	words, err := SPIRVWords(spirv(SPIRVMagic, 0x00010000, 42))
	require.NoError(t, err)
	assert.Equal(t, []uint32{SPIRVMagic, 0x00010000, 42}, words)

	for name, data := range map[string][]byte{
		"empty":     nil,
		"unaligned": append(spirv(SPIRVMagic), 0),
		"bad magic": spirv(0xdeadbeef, 1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := SPIRVWords(data)
			assert.ErrorIs(t, err, ErrNotSPIRV)
		})
	}
}

func TestSafeString(t *testing.T) {
	assert.Equal(t, "\x00", safeString(""))
	assert.Equal(t, "main\x00", safeString("main"))
	assert.Equal(t, "main\x00", safeString("main\x00"))
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b\x00"}))
}

func TestCheckExisting(t *testing.T) {
	actual := []string{"VK_KHR_surface", "VK_KHR_xcb_surface\x00"}
	existing, missing := checkExisting(actual, []string{"VK_KHR_surface", "VK_KHR_xcb_surface", "VK_EXT_debug_report"})
	assert.Equal(t, []string{"VK_KHR_surface\x00", "VK_KHR_xcb_surface\x00"}, existing)
	assert.Equal(t, []string{"VK_EXT_debug_report"}, missing)

	existing, missing = checkExisting(nil, nil)
	assert.Empty(t, existing)
	assert.Empty(t, missing)
}

func TestNewError(t *testing.T) {
	assert.NoError(t, NewError(vk.Success))

	tests := []struct {
		ret  vk.Result
		want error
	}{
		{vk.ErrorOutOfDate, vkframe.ErrOutOfDate},
		{vk.Timeout, vkframe.ErrTimeout},
		{vk.ErrorDeviceLost, vkframe.ErrDeviceLost},
		{vk.ErrorOutOfHostMemory, vkframe.ErrOutOfHostMemory},
		{vk.ErrorOutOfDeviceMemory, vkframe.ErrOutOfDeviceMemory},
		{vk.ErrorSurfaceLost, vkframe.ErrSurfaceLost},
	}
	for _, tt := range tests {
		err := NewError(tt.ret)
		assert.ErrorIs(t, err, tt.want, "result %d", tt.ret)
	}
	assert.True(t, vkframe.IsDeviceFailure(NewError(vk.ErrorDeviceLost)))
	assert.False(t, vkframe.IsDeviceFailure(NewError(vk.ErrorOutOfDate)))

	err := NewError(vk.ErrorExtensionNotPresent)
	require.Error(t, err)
	assert.False(t, vkframe.IsDeviceFailure(err))
}

func TestStatus(t *testing.T) {
	st, err := status(vk.Success)
	assert.NoError(t, err)
	assert.Equal(t, vkframe.StatusOK, st)

	st, err = status(vk.Suboptimal)
	assert.NoError(t, err)
	assert.Equal(t, vkframe.StatusSuboptimal, st)

	st, err = status(vk.ErrorOutOfDate)
	assert.NoError(t, err)
	assert.Equal(t, vkframe.StatusOutOfDate, st)

	_, err = status(vk.ErrorSurfaceLost)
	assert.ErrorIs(t, err, vkframe.ErrSurfaceLost)
}

func TestPickQueueFamilies(t *testing.T) {
	tests := []struct {
		name              string
		families          []queueFamily
		graphics, present uint32
		err               error
	}{
		{"shared family", []queueFamily{{graphics: true, present: true}}, 0, 0, nil},
		{"prefers shared", []queueFamily{{graphics: true}, {present: true}, {graphics: true, present: true}}, 2, 2, nil},
		{"separate", []queueFamily{{present: true}, {graphics: true}}, 1, 0, nil},
		{"no graphics", []queueFamily{{present: true}}, 0, 0, ErrNoQueueFamily},
		{"no present", []queueFamily{{graphics: true}}, 0, 0, ErrNoPresentQueue},
		{"empty", nil, 0, 0, ErrNoQueueFamily},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, p, err := pickQueueFamilies(tt.families)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.graphics, g)
			assert.Equal(t, tt.present, p)
		})
	}
}

func TestTableHandlesAreUnique(t *testing.T) {
	var ids idSource
	a := newTable[string](&ids)
	b := newTable[int](&ids)

	x := a.put("x")
	y := b.put(1)
	assert.NotEqual(t, x, y)
	assert.NotZero(t, x)

	v, ok := a.get(x)
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	_, ok = a.get(y)
	assert.False(t, ok)

	_, ok = a.take(x)
	assert.True(t, ok)
	_, ok = a.take(x)
	assert.False(t, ok)
	assert.Zero(t, a.len())
}

func TestCompositeAlpha(t *testing.T) {
	assert.Equal(t, vk.CompositeAlphaOpaqueBit,
		compositeAlpha(vk.CompositeAlphaFlags(vk.CompositeAlphaOpaqueBit|vk.CompositeAlphaInheritBit)))
	assert.Equal(t, vk.CompositeAlphaInheritBit,
		compositeAlpha(vk.CompositeAlphaFlags(vk.CompositeAlphaInheritBit)))
}
