package pe

import (
	"bytes"
	"debug/pe"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZacharyZcR/PEFlat/internal/pe/petest"
)

func openImage(t *testing.T, img petest.Image) *Reader {
	t.Helper()

	path := filepath.Join(t.TempDir(), "kernel.exe")
	require.NoError(t, img.WriteFile(path))

	r, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func flatten(t *testing.T, img petest.Image, opts Options) *Image {
	t.Helper()

	out, err := NewFlattener(opts).Flatten(openImage(t, img).File())
	require.NoError(t, err)
	return out
}

func TestFlattenLayout(t *testing.T) {
	tests := []struct {
		name     string
		mode     CursorMode
		addrs    []uint32
		wantSize uint64
		wantPads []uint64
	}{
		{
			name:     "Single section at bias",
			addrs:    []uint32{0x1000},
			wantSize: 0x100,
			wantPads: []uint64{0},
		},
		{
			name:     "Gap between two sections",
			addrs:    []uint32{0x1000, 0x1300},
			wantSize: 0x400,
			wantPads: []uint64{0, 0x200},
		},
		{
			name:     "Raw cursor ignores earlier padding",
			addrs:    []uint32{0x1000, 0x1200, 0x1400},
			wantSize: 0x600,
			wantPads: []uint64{0, 0x100, 0x200},
		},
		{
			name:     "Virtual cursor matches memory layout",
			mode:     CursorVirtual,
			addrs:    []uint32{0x1000, 0x1200, 0x1400},
			wantSize: 0x500,
			wantPads: []uint64{0, 0x100, 0x100},
		},
		{
			name:     "Contiguous sections get no padding",
			addrs:    []uint32{0x1000, 0x1100, 0x1200},
			wantSize: 0x300,
			wantPads: []uint64{0, 0, 0},
		},
		{
			name:     "First section above bias is padded",
			addrs:    []uint32{0x2000},
			wantSize: 0x1100,
			wantPads: []uint64{0x1000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Mode = tt.mode

			out := flatten(t, petest.Kernel(0x100, tt.addrs...), opts)

			assert.Equal(t, tt.wantSize, out.Layout.Size)
			require.Len(t, out.Data, int(tt.wantSize))
			require.Len(t, out.Layout.Placements, len(tt.wantPads))
			for i, p := range out.Layout.Placements {
				assert.Equal(t, tt.wantPads[i], p.Padding, "padding before section %d", i)
				assert.Equal(t, petest.Fill(byte(i+1), 0x100), out.Data[p.Offset:p.Offset+0x100], "data of section %d", i)
				if p.Padding > 0 {
					assert.Equal(t, make([]byte, p.Padding), out.Data[p.Offset-p.Padding:p.Offset], "gap before section %d", i)
				}
			}
		})
	}
}

func TestFlattenGapIsZeroFilled(t *testing.T) {
	out := flatten(t, petest.Kernel(0x100, 0x1000, 0x1300), DefaultOptions())

	want := append(petest.Fill(1, 0x100), make([]byte, 0x200)...)
	want = append(want, petest.Fill(2, 0x100)...)
	assert.Equal(t, want, out.Data)
}

func TestFlattenVirtualPlacesAtAddressMinusBias(t *testing.T) {
	opts := Options{LoadBias: DefaultLoadBias, Mode: CursorVirtual}
	out := flatten(t, petest.Kernel(0x80, 0x1000, 0x1200, 0x1400, 0x3000), opts)

	for _, p := range out.Layout.Placements {
		assert.Equal(t, uint64(p.VirtualAddress)-DefaultLoadBias, p.Offset, p.Name)
	}
}

func TestFlattenOverlap(t *testing.T) {
	out := flatten(t, petest.Kernel(0x200, 0x1000, 0x1100), DefaultOptions())

	placements := out.Layout.Placements
	require.Len(t, placements, 2)
	assert.False(t, placements[0].Overlap)
	assert.True(t, placements[1].Overlap)
	assert.Equal(t, uint64(0), placements[1].Padding)
	assert.Equal(t, uint64(0x200), placements[1].Offset, "written back-to-back")
	assert.Len(t, out.Data, 0x400)
}

func TestFlattenVirtualOverlapKeepsCursor(t *testing.T) {
	opts := Options{LoadBias: DefaultLoadBias, Mode: CursorVirtual}
	out := flatten(t, petest.Kernel(0x200, 0x1000, 0x1100, 0x1500), opts)

	placements := out.Layout.Placements
	require.Len(t, placements, 3)
	assert.True(t, placements[1].Overlap)
	assert.Equal(t, uint64(0x200), placements[1].Offset)
	// The overlapping section ends the cursor at 0x1400, not 0x1300.
	assert.Equal(t, uint64(0x100), placements[2].Padding)
	assert.Equal(t, uint64(0x500), placements[2].Offset)
	assert.Len(t, out.Data, 0x700)
}

func TestFlattenOutOfOrderSections(t *testing.T) {
	out := flatten(t, petest.Kernel(0x100, 0x3000, 0x1000), DefaultOptions())

	placements := out.Layout.Placements
	require.Len(t, placements, 2)
	assert.Equal(t, uint64(0x2000), placements[0].Padding)
	assert.True(t, placements[1].Overlap)
	assert.Equal(t, uint64(0x2100), placements[1].Offset)
}

func TestFlattenNoSections(t *testing.T) {
	out := flatten(t, petest.Image{EntryPoint: 0x1040}, DefaultOptions())

	assert.Empty(t, out.Data)
	assert.Empty(t, out.Layout.Placements)
	assert.Equal(t, uint64(0x1040), out.Layout.EntryPoint)
}

func TestFlattenEmptyRawSection(t *testing.T) {
	img := petest.Kernel(0x100, 0x1000)
	img.Sections = append(img.Sections, petest.Section{
		Name:           ".bss",
		VirtualAddress: 0x2000,
		VirtualSize:    0x800,
	})

	out := flatten(t, img, DefaultOptions())

	require.Len(t, out.Layout.Placements, 2)
	bss := out.Layout.Placements[1]
	assert.Equal(t, ".bss", bss.Name)
	assert.Equal(t, uint32(0), bss.Size)
	assert.Equal(t, uint64(0xf00), bss.Padding)
	assert.Len(t, out.Data, 0x1000, "trailing padding is emitted even for empty sections")
}

func TestFlattenPE32Plus(t *testing.T) {
	img := petest.Kernel(0x100, 0x1000, 0x1300)
	img.PE32Plus = true
	img.EntryPoint = 0x1010

	out := flatten(t, img, DefaultOptions())

	assert.Equal(t, uint64(0x1010), out.Layout.EntryPoint)
	assert.Len(t, out.Data, 0x400)
}

func TestFlattenCustomBias(t *testing.T) {
	opts := Options{LoadBias: 0, Mode: CursorRaw}
	out := flatten(t, petest.Kernel(0x100, 0x1000), opts)

	assert.Equal(t, uint64(0x1000), out.Layout.Placements[0].Padding)
	assert.Len(t, out.Data, 0x1100)
}

func TestFlattenIsDeterministic(t *testing.T) {
	img := petest.Kernel(0x100, 0x1000, 0x1300, 0x2000)

	first := flatten(t, img, DefaultOptions())
	second := flatten(t, img, DefaultOptions())

	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, first.Layout, second.Layout)
}

func TestImageWriteTo(t *testing.T) {
	out := flatten(t, petest.Kernel(0x10, 0x1000, 0x1020), DefaultOptions())

	var buf bytes.Buffer
	n, err := out.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(out.Data)), n)
	assert.Equal(t, out.Data, buf.Bytes())
}

func TestLayoutPadding(t *testing.T) {
	out := flatten(t, petest.Kernel(0x100, 0x1000, 0x1300, 0x1800), DefaultOptions())

	assert.Equal(t, uint64(0x200+0x600), out.Layout.Padding())
}

func TestEntryPointWithoutOptionalHeader(t *testing.T) {
	_, err := EntryPoint(&pe.File{})
	assert.ErrorIs(t, err, ErrNoOptionalHeader)

	_, err = NewFlattener(DefaultOptions()).Plan(&pe.File{})
	assert.ErrorIs(t, err, ErrNoOptionalHeader)
}

func TestCursorModeString(t *testing.T) {
	assert.Equal(t, "raw", CursorRaw.String())
	assert.Equal(t, "virtual", CursorVirtual.String())
	assert.Equal(t, "CursorMode(7)", CursorMode(7).String())
}
