package pe

import (
	"debug/pe"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZacharyZcR/PEFlat/internal/pe/petest"
)

// tlsImage returns a PE32 kernel whose .tls section holds a TLS directory at
// its start and a callback array at +0x20.
func tlsImage(callbacks ...uint32) petest.Image {
	const base = 0x400000

	data := make([]byte, 0x40)
	binary.LittleEndian.PutUint32(data[0:], base+0x2100)
	binary.LittleEndian.PutUint32(data[4:], base+0x2110)
	binary.LittleEndian.PutUint32(data[8:], base+0x2200)
	if len(callbacks) > 0 {
		binary.LittleEndian.PutUint32(data[12:], base+0x2020)
	}
	for i, cb := range callbacks {
		binary.LittleEndian.PutUint32(data[0x20+4*i:], cb)
	}

	img := petest.Kernel(0x100, 0x1000)
	img.ImageBase = base
	img.Sections = append(img.Sections, petest.Section{
		Name:           ".tls",
		VirtualAddress: 0x2000,
		Data:           data,
	})
	img.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_TLS] = pe.DataDirectory{VirtualAddress: 0x2000, Size: 24}
	return img
}

func TestParseTLS(t *testing.T) {
	info, err := ParseTLS(openImage(t, tlsImage(0x401000, 0x401010)).File())
	require.NoError(t, err)

	assert.True(t, info.HasTLS)
	assert.True(t, info.HasCallbacks())
	assert.Equal(t, []uint64{0x401000, 0x401010}, info.Callbacks)
	assert.Equal(t, uint64(0x10), info.TemplateSize)
}

func TestParseTLSWithoutCallbacks(t *testing.T) {
	info, err := ParseTLS(openImage(t, tlsImage()).File())
	require.NoError(t, err)

	assert.True(t, info.HasTLS)
	assert.False(t, info.HasCallbacks())
}

func TestParseTLSNone(t *testing.T) {
	info, err := ParseTLS(openImage(t, petest.Kernel(0x100, 0x1000)).File())
	require.NoError(t, err)

	assert.False(t, info.HasTLS)
	assert.False(t, info.HasCallbacks())
}

func TestParseTLSTruncated(t *testing.T) {
	img := petest.Kernel(0x100, 0x1000)
	img.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_TLS] = pe.DataDirectory{VirtualAddress: 0x1000, Size: 8}

	_, err := ParseTLS(openImage(t, img).File())
	assert.Error(t, err)
}
