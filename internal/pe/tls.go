package pe

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
)

// maxTLSCallbacks bounds the walk over an unterminated callback array.
const maxTLSCallbacks = 100

// TLSInfo describes the TLS directory. A flat image has no loader to run
// the callbacks or copy the template, so anything listed here is dropped.
type TLSInfo struct {
	HasTLS    bool
	Callbacks []uint64
	// TemplateSize is EndAddressOfRawData - StartAddressOfRawData.
	TemplateSize uint64
}

// HasCallbacks reports whether any TLS callbacks were found.
func (ti *TLSInfo) HasCallbacks() bool {
	return ti != nil && len(ti.Callbacks) > 0
}

// ParseTLS reads the TLS directory and its callback array.
func ParseTLS(f *pe.File) (*TLSInfo, error) {
	info := &TLSInfo{}

	data, err := directoryData(f, pe.IMAGE_DIRECTORY_ENTRY_TLS)
	if err != nil {
		return nil, fmt.Errorf("读取TLS目录失败: %w", err)
	}
	if data == nil {
		return info, nil
	}
	info.HasTLS = true

	// IMAGE_TLS_DIRECTORY: Start, End, AddressOfIndex, AddressOfCallBacks are
	// pointer sized, followed by SizeOfZeroFill and Characteristics.
	var start, end, callbacks, imageBase uint64
	ptrSize := 4
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if len(data) < 24 {
			return nil, fmt.Errorf("TLS目录过短: %d 字节", len(data))
		}
		start = uint64(binary.LittleEndian.Uint32(data[0:]))
		end = uint64(binary.LittleEndian.Uint32(data[4:]))
		callbacks = uint64(binary.LittleEndian.Uint32(data[12:]))
		imageBase = uint64(oh.ImageBase)
	case *pe.OptionalHeader64:
		if len(data) < 40 {
			return nil, fmt.Errorf("TLS目录过短: %d 字节", len(data))
		}
		start = binary.LittleEndian.Uint64(data[0:])
		end = binary.LittleEndian.Uint64(data[8:])
		callbacks = binary.LittleEndian.Uint64(data[24:])
		imageBase = oh.ImageBase
		ptrSize = 8
	}
	if end > start {
		info.TemplateSize = end - start
	}

	if callbacks == 0 || callbacks < imageBase {
		return info, nil
	}
	arr, err := rvaData(f, uint32(callbacks-imageBase))
	if err != nil {
		// A dangling callback pointer still means TLS is present.
		return info, nil
	}

	// The array is terminated by a null pointer.
	for i := 0; i < maxTLSCallbacks && len(arr) >= ptrSize; i++ {
		var cb uint64
		if ptrSize == 8 {
			cb = binary.LittleEndian.Uint64(arr)
		} else {
			cb = uint64(binary.LittleEndian.Uint32(arr))
		}
		if cb == 0 {
			break
		}
		info.Callbacks = append(info.Callbacks, cb)
		arr = arr[ptrSize:]
	}

	return info, nil
}
