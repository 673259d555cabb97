package pe

import (
	"debug/pe"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZacharyZcR/PEFlat/internal/pe/petest"
)

func relocBlock(va uint32, entries ...uint16) []byte {
	b := make([]byte, 8+2*len(entries))
	binary.LittleEndian.PutUint32(b[0:], va)
	binary.LittleEndian.PutUint32(b[4:], uint32(len(b)))
	for i, e := range entries {
		binary.LittleEndian.PutUint16(b[8+2*i:], e)
	}
	return b
}

func TestParseRelocations(t *testing.T) {
	// HIGHLOW entries at .text+0x10 and .text+0x20, one padding entry.
	reloc := append(relocBlock(0x1000, 0x3010, 0x3020), relocBlock(0x2000, 0x3004, 0x0000)...)

	img := petest.Kernel(0x100, 0x1000)
	img.Sections = append(img.Sections, petest.Section{
		Name:           ".reloc",
		VirtualAddress: 0x2000,
		Data:           reloc,
	})
	img.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_BASERELOC] = pe.DataDirectory{
		VirtualAddress: 0x2000,
		Size:           uint32(len(reloc)),
	}

	info, err := ParseRelocations(openImage(t, img).File())
	require.NoError(t, err)

	assert.True(t, info.HasRelocations())
	assert.Equal(t, 2, info.BlockCount)
	assert.Equal(t, 4, info.TotalEntries)
}

func TestParseRelocationsNone(t *testing.T) {
	info, err := ParseRelocations(openImage(t, petest.Kernel(0x100, 0x1000)).File())
	require.NoError(t, err)

	assert.False(t, info.HasRelocations())
}

func TestParseRelocationsOutsideSections(t *testing.T) {
	img := petest.Kernel(0x100, 0x1000)
	img.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_BASERELOC] = pe.DataDirectory{VirtualAddress: 0x8000, Size: 12}

	_, err := ParseRelocations(openImage(t, img).File())
	assert.Error(t, err)
}
