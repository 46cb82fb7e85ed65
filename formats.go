package vkframe

import (
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Format values match the Vulkan VkFormat enumeration so a backend can
// convert with a plain cast.
type Format int32

const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatA2B10G10R10Unorm   Format = 64
	FormatR16G16B16A16Sfloat Format = 97
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
)

var formatNames = map[Format]string{
	FormatUndefined:          "UNDEFINED",
	FormatR8G8B8A8Unorm:      "R8G8B8A8_UNORM",
	FormatR8G8B8A8Srgb:       "R8G8B8A8_SRGB",
	FormatB8G8R8A8Unorm:      "B8G8R8A8_UNORM",
	FormatB8G8R8A8Srgb:       "B8G8R8A8_SRGB",
	FormatA2B10G10R10Unorm:   "A2B10G10R10_UNORM",
	FormatR16G16B16A16Sfloat: "R16G16B16A16_SFLOAT",
	FormatR32G32Sfloat:       "R32G32_SFLOAT",
	FormatR32G32B32Sfloat:    "R32G32B32_SFLOAT",
	FormatR32G32B32A32Sfloat: "R32G32B32A32_SFLOAT",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "FORMAT(" + strconv.FormatInt(int64(f), 10) + ")"
}

// ParseFormat returns the format with the given name.
func ParseFormat(name string) (Format, error) {
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return FormatUndefined, errors.Errorf("unknown format %q", name)
}

type ColorSpace int32

const (
	ColorSpaceSrgbNonlinear      ColorSpace = 0
	ColorSpaceDisplayP3Nonlinear ColorSpace = 1000104001
	ColorSpaceExtendedSrgbLinear ColorSpace = 1000104002
	ColorSpaceHDR10ST2084        ColorSpace = 1000104008
)

var colorSpaceNames = map[ColorSpace]string{
	ColorSpaceSrgbNonlinear:      "SRGB_NONLINEAR",
	ColorSpaceDisplayP3Nonlinear: "DISPLAY_P3_NONLINEAR",
	ColorSpaceExtendedSrgbLinear: "EXTENDED_SRGB_LINEAR",
	ColorSpaceHDR10ST2084:        "HDR10_ST2084",
}

func (c ColorSpace) String() string {
	if n, ok := colorSpaceNames[c]; ok {
		return n
	}
	return "COLOR_SPACE(" + strconv.FormatInt(int64(c), 10) + ")"
}

func ParseColorSpace(name string) (ColorSpace, error) {
	for c, n := range colorSpaceNames {
		if n == name {
			return c, nil
		}
	}
	return ColorSpaceSrgbNonlinear, errors.Errorf("unknown color space %q", name)
}

type PresentMode int32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

var presentModeNames = map[PresentMode]string{
	PresentModeImmediate:   "IMMEDIATE",
	PresentModeMailbox:     "MAILBOX",
	PresentModeFifo:        "FIFO",
	PresentModeFifoRelaxed: "FIFO_RELAXED",
}

func (p PresentMode) String() string {
	if n, ok := presentModeNames[p]; ok {
		return n
	}
	return "PRESENT_MODE(" + strconv.FormatInt(int64(p), 10) + ")"
}

func ParsePresentMode(name string) (PresentMode, error) {
	for p, n := range presentModeNames {
		if n == name {
			return p, nil
		}
	}
	return PresentModeFifo, errors.Errorf("unknown present mode %q", name)
}

// FormatNames lists every known format name, sorted.
func FormatNames() []string {
	names := make([]string, 0, len(formatNames))
	for _, n := range formatNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
