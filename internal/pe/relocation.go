package pe

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
)

// RelocationInfo summarizes the base relocation directory. The flat image is
// emitted at link-time addresses, so any entries counted here are left
// unapplied.
type RelocationInfo struct {
	BlockCount   int
	TotalEntries int
}

// HasRelocations reports whether any relocation blocks were found.
func (ri *RelocationInfo) HasRelocations() bool {
	return ri != nil && ri.BlockCount > 0
}

// ParseRelocations walks the base relocation blocks without applying them.
func ParseRelocations(f *pe.File) (*RelocationInfo, error) {
	info := &RelocationInfo{}

	data, err := directoryData(f, pe.IMAGE_DIRECTORY_ENTRY_BASERELOC)
	if err != nil {
		return nil, fmt.Errorf("读取重定位目录失败: %w", err)
	}

	// Each block: VirtualAddress(4), SizeOfBlock(4), then 2-byte entries.
	for len(data) >= 8 {
		size := binary.LittleEndian.Uint32(data[4:8])
		if size < 8 || size > uint32(len(data)) {
			break
		}
		info.BlockCount++
		info.TotalEntries += int(size-8) / 2
		data = data[size:]
	}

	return info, nil
}

func dataDirectory(f *pe.File, index int) pe.DataDirectory {
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if oh.NumberOfRvaAndSizes > uint32(index) {
			return oh.DataDirectory[index]
		}
	case *pe.OptionalHeader64:
		if oh.NumberOfRvaAndSizes > uint32(index) {
			return oh.DataDirectory[index]
		}
	}
	return pe.DataDirectory{}
}

// directoryData returns the bytes of a data directory, nil when it is unset.
func directoryData(f *pe.File, index int) ([]byte, error) {
	dir := dataDirectory(f, index)
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil, nil
	}
	data, err := rvaData(f, dir.VirtualAddress)
	if err != nil {
		return nil, err
	}
	if uint32(len(data)) > dir.Size {
		data = data[:dir.Size]
	}
	return data, nil
}

// rvaData returns the raw bytes from rva to the end of its section.
func rvaData(f *pe.File, rva uint32) ([]byte, error) {
	for _, s := range f.Sections {
		if rva < s.VirtualAddress || rva >= s.VirtualAddress+s.Size {
			continue
		}
		raw, err := s.Data()
		if err != nil {
			return nil, err
		}
		return raw[rva-s.VirtualAddress:], nil
	}
	return nil, fmt.Errorf("RVA 0x%X 不在任何节区内", rva)
}
