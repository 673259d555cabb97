package pe

import (
	"debug/pe"
	"errors"
	"fmt"
	"io"
)

// DefaultLoadBias is the virtual address that lands at offset 0 of the flat
// image. The PE headers occupy the page below it and are not emitted.
const DefaultLoadBias = 0x1000

// ErrNoOptionalHeader is returned for COFF objects, which carry no entry point.
var ErrNoOptionalHeader = errors.New("缺少可选头，无法读取入口点")

// CursorMode selects how the write cursor advances after each section.
type CursorMode int

const (
	// CursorRaw advances the cursor by the section's raw size only. Padding
	// emitted before a section is not counted, so a later gap is measured
	// from where the cursor would be had no padding been written.
	CursorRaw CursorMode = iota
	// CursorVirtual moves the cursor to the end of the section in memory,
	// placing every ordered, non-overlapping section at VirtualAddress-bias.
	CursorVirtual
)

func (m CursorMode) String() string {
	switch m {
	case CursorRaw:
		return "raw"
	case CursorVirtual:
		return "virtual"
	default:
		return fmt.Sprintf("CursorMode(%d)", int(m))
	}
}

// Options controls layout.
type Options struct {
	LoadBias uint64
	Mode     CursorMode
}

// DefaultOptions reproduces the layout kernel loaders expect.
func DefaultOptions() Options {
	return Options{LoadBias: DefaultLoadBias, Mode: CursorRaw}
}

// Placement records where one section ended up in the flat image.
type Placement struct {
	Name           string
	VirtualAddress uint32
	Size           uint32
	// Padding is the number of zero bytes written before the section.
	Padding uint64
	// Offset is the position of the section's first byte in the image.
	Offset uint64
	// Overlap is set when the section starts below the cursor and was
	// therefore written back-to-back with its predecessor.
	Overlap bool
}

// Layout is the plan for a flat image.
type Layout struct {
	EntryPoint uint64
	LoadBias   uint64
	Mode       CursorMode
	Placements []Placement
	Size       uint64
}

// Padding returns the total number of zero bytes in the image.
func (l *Layout) Padding() uint64 {
	var n uint64
	for _, p := range l.Placements {
		n += p.Padding
	}
	return n
}

// Image is a flattened PE: section bytes at their planned offsets.
type Image struct {
	Layout *Layout
	Data   []byte
}

// WriteTo writes the image bytes to w.
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(img.Data)
	return int64(n), err
}

// Flattener turns PE files into flat images.
type Flattener struct {
	opts Options
}

// NewFlattener creates a flattener with the given options.
func NewFlattener(opts Options) *Flattener {
	return &Flattener{opts: opts}
}

// EntryPoint returns AddressOfEntryPoint from either optional header flavour.
func EntryPoint(f *pe.File) (uint64, error) {
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		return uint64(oh.AddressOfEntryPoint), nil
	case *pe.OptionalHeader64:
		return uint64(oh.AddressOfEntryPoint), nil
	default:
		return 0, ErrNoOptionalHeader
	}
}

// Plan computes placements for every section in section-table order without
// reading section data.
func (fl *Flattener) Plan(f *pe.File) (*Layout, error) {
	entry, err := EntryPoint(f)
	if err != nil {
		return nil, err
	}

	layout := &Layout{
		EntryPoint: entry,
		LoadBias:   fl.opts.LoadBias,
		Mode:       fl.opts.Mode,
		Placements: make([]Placement, 0, len(f.Sections)),
	}

	cursor := fl.opts.LoadBias
	var offset uint64
	for _, s := range f.Sections {
		va := uint64(s.VirtualAddress)
		p := Placement{
			Name:           s.Name,
			VirtualAddress: s.VirtualAddress,
			Size:           s.Size,
			Overlap:        va < cursor,
		}
		if va > cursor {
			p.Padding = va - cursor
		}
		p.Offset = offset + p.Padding
		offset = p.Offset + uint64(s.Size)

		switch fl.opts.Mode {
		case CursorVirtual:
			if va > cursor {
				cursor = va
			}
			cursor += uint64(s.Size)
		default:
			cursor += uint64(s.Size)
		}

		layout.Placements = append(layout.Placements, p)
	}
	layout.Size = offset

	return layout, nil
}

// Flatten plans the layout and copies each section's raw data into place.
// Gaps stay zero.
func (fl *Flattener) Flatten(f *pe.File) (*Image, error) {
	layout, err := fl.Plan(f)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, layout.Size)
	for i, s := range f.Sections {
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("读取节区 %s 数据失败: %w", s.Name, err)
		}
		copy(buf[layout.Placements[i].Offset:], data)
	}

	return &Image{Layout: layout, Data: buf}, nil
}
