package vulkan

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

var ErrNotSPIRV = errors.New("vulkan: not a SPIR-V module")

// SPIRVWords converts a SPIR-V binary into the word slice shader module
// creation expects.
func SPIRVWords(data []byte) ([]uint32, error) {
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, errors.Wrapf(ErrNotSPIRV, "size %d is not a positive multiple of 4", len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	if words[0] != SPIRVMagic {
		return nil, errors.Wrapf(ErrNotSPIRV, "bad magic %#08x", words[0])
	}
	return words, nil
}

func safeString(s string) string {
	if len(s) == 0 {
		return "\x00"
	}
	if s[len(s)-1] != '\x00' {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}

// checkExisting keeps the wanted names that are present in actual and
// counts the ones that are not. Both lists may be NUL terminated.
func checkExisting(actual, wanted []string) (existing []string, missing []string) {
	have := make(map[string]struct{}, len(actual))
	for _, name := range actual {
		have[trimNUL(name)] = struct{}{}
	}
	for _, name := range wanted {
		if _, ok := have[trimNUL(name)]; ok {
			existing = append(existing, safeString(name))
		} else {
			missing = append(missing, trimNUL(name))
		}
	}
	return existing, missing
}

func trimNUL(s string) string {
	for len(s) > 0 && s[len(s)-1] == '\x00' {
		s = s[:len(s)-1]
	}
	return s
}
