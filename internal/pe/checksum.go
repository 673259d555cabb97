package pe

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ChecksumInfo compares the optional header CheckSum with a fresh computation.
type ChecksumInfo struct {
	Stored   uint32
	Computed uint32
	Valid    bool
}

// VerifyChecksum recomputes the image checksum. An unset (zero) stored value
// counts as valid; linkers for freestanding kernels rarely fill it in.
func VerifyChecksum(r *Reader) (*ChecksumInfo, error) {
	raw := r.RawFile()

	offset, err := checksumOffset(raw)
	if err != nil {
		return nil, err
	}

	field := make([]byte, 4)
	if _, err := raw.ReadAt(field, offset); err != nil {
		return nil, fmt.Errorf("读取校验和失败: %w", err)
	}
	stored := binary.LittleEndian.Uint32(field)

	computed, err := CalculatePEChecksum(raw, r.FileSize(), offset)
	if err != nil {
		return nil, err
	}

	return &ChecksumInfo{
		Stored:   stored,
		Computed: computed,
		Valid:    stored == 0 || stored == computed,
	}, nil
}

// checksumOffset locates the CheckSum field: e_lfanew + signature(4) +
// COFF header(20) + 64 bytes into the optional header, for PE32 and PE32+.
func checksumOffset(r io.ReaderAt) (int64, error) {
	lfanew := make([]byte, 4)
	if _, err := r.ReadAt(lfanew, 0x3c); err != nil {
		return 0, fmt.Errorf("读取DOS头失败: %w", err)
	}
	return int64(binary.LittleEndian.Uint32(lfanew)) + 4 + 20 + 64, nil
}

// CalculatePEChecksum computes the PE image checksum: a folded 16-bit
// one's-complement sum of the file, skipping the 4-byte field at
// checksumOffset (pass a negative offset to skip nothing), plus the file size.
func CalculatePEChecksum(r io.ReaderAt, filesize int64, checksumOffset int64) (uint32, error) {
	buf := make([]byte, filesize)
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		return 0, fmt.Errorf("计算校验和失败: %w", err)
	}

	var sum uint32
	for i := int64(0); i < filesize; i += 2 {
		if checksumOffset >= 0 && i >= checksumOffset && i < checksumOffset+4 {
			continue
		}

		word := uint32(buf[i])
		if i+1 < filesize {
			word |= uint32(buf[i+1]) << 8
		}
		sum += word
		sum = (sum & 0xffff) + (sum >> 16)
	}
	sum = (sum & 0xffff) + (sum >> 16)

	return sum + uint32(filesize), nil
}
