// Package petest builds small synthetic PE images with a chosen section
// layout. The images are well-formed enough for debug/pe and nothing more:
// data directories are copied verbatim and never checked.
package petest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"os"
)

const (
	dosHeaderSize   = 0x40
	fileAlignment   = 0x200
	sectionAlign    = 0x1000
	peSignature     = "PE\x00\x00"
	numDataDirs     = 16
	peMagic32       = 0x10b
	peMagic64       = 0x20b
	defaultBase32   = 0x400000
	defaultBase64   = 0x140000000
	textSectionName = ".text"
)

// Section is one entry of the section table.
type Section struct {
	Name           string
	VirtualAddress uint32
	// VirtualSize defaults to len(Data).
	VirtualSize     uint32
	Data            []byte
	Characteristics uint32
}

// Image describes the file to build.
type Image struct {
	PE32Plus   bool
	Machine    uint16
	EntryPoint uint32
	ImageBase  uint64
	Subsystem  uint16
	CheckSum   uint32
	Sections   []Section
	// DataDirectory is copied into the optional header as is.
	DataDirectory [numDataDirs]pe.DataDirectory
}

// Fill returns n bytes of b.
func Fill(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// Bytes serializes the image.
func (img Image) Bytes() []byte {
	ohSize := binary.Size(pe.OptionalHeader32{})
	if img.PE32Plus {
		ohSize = binary.Size(pe.OptionalHeader64{})
	}
	headersEnd := dosHeaderSize + len(peSignature) + binary.Size(pe.FileHeader{}) +
		ohSize + len(img.Sections)*binary.Size(pe.SectionHeader32{})
	sizeOfHeaders := alignUp(uint32(headersEnd), fileAlignment)

	headers := make([]pe.SectionHeader32, len(img.Sections))
	next := sizeOfHeaders
	var sizeOfImage uint32 = sectionAlign
	for i, s := range img.Sections {
		h := pe.SectionHeader32{
			VirtualSize:     s.VirtualSize,
			VirtualAddress:  s.VirtualAddress,
			SizeOfRawData:   uint32(len(s.Data)),
			Characteristics: s.Characteristics,
		}
		copy(h.Name[:], s.Name)
		if h.VirtualSize == 0 {
			h.VirtualSize = uint32(len(s.Data))
		}
		if len(s.Data) > 0 {
			h.PointerToRawData = next
			next = alignUp(next+uint32(len(s.Data)), fileAlignment)
		}
		if end := alignUp(h.VirtualAddress+h.VirtualSize, sectionAlign); end > sizeOfImage {
			sizeOfImage = end
		}
		headers[i] = h
	}

	machine := img.Machine
	if machine == 0 {
		machine = pe.IMAGE_FILE_MACHINE_I386
		if img.PE32Plus {
			machine = pe.IMAGE_FILE_MACHINE_AMD64
		}
	}

	var buf bytes.Buffer

	dos := make([]byte, dosHeaderSize)
	copy(dos, "MZ")
	binary.LittleEndian.PutUint32(dos[0x3c:], dosHeaderSize)
	buf.Write(dos)
	buf.WriteString(peSignature)

	mustWrite(&buf, pe.FileHeader{
		Machine:              machine,
		NumberOfSections:     uint16(len(img.Sections)),
		SizeOfOptionalHeader: uint16(ohSize),
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE,
	})

	if img.PE32Plus {
		base := img.ImageBase
		if base == 0 {
			base = defaultBase64
		}
		mustWrite(&buf, pe.OptionalHeader64{
			Magic:               peMagic64,
			AddressOfEntryPoint: img.EntryPoint,
			ImageBase:           base,
			SectionAlignment:    sectionAlign,
			FileAlignment:       fileAlignment,
			SizeOfImage:         sizeOfImage,
			SizeOfHeaders:       sizeOfHeaders,
			CheckSum:            img.CheckSum,
			Subsystem:           img.Subsystem,
			NumberOfRvaAndSizes: numDataDirs,
			DataDirectory:       img.DataDirectory,
		})
	} else {
		base := uint32(img.ImageBase)
		if base == 0 {
			base = defaultBase32
		}
		mustWrite(&buf, pe.OptionalHeader32{
			Magic:               peMagic32,
			AddressOfEntryPoint: img.EntryPoint,
			ImageBase:           base,
			SectionAlignment:    sectionAlign,
			FileAlignment:       fileAlignment,
			SizeOfImage:         sizeOfImage,
			SizeOfHeaders:       sizeOfHeaders,
			CheckSum:            img.CheckSum,
			Subsystem:           img.Subsystem,
			NumberOfRvaAndSizes: numDataDirs,
			DataDirectory:       img.DataDirectory,
		})
	}

	for _, h := range headers {
		mustWrite(&buf, h)
	}

	out := buf.Bytes()
	if total := int(next); total > len(out) {
		out = append(out, make([]byte, total-len(out))...)
	}
	for i, s := range img.Sections {
		copy(out[headers[i].PointerToRawData:], s.Data)
	}
	return out
}

// WriteFile writes the serialized image to path.
func (img Image) WriteFile(path string) error {
	return os.WriteFile(path, img.Bytes(), 0o644)
}

// Kernel returns a PE32 image with one section per address, each size bytes
// long and filled with its 1-based index, entry point at the first section.
func Kernel(size uint32, addrs ...uint32) Image {
	img := Image{Subsystem: pe.IMAGE_SUBSYSTEM_NATIVE}
	for i, va := range addrs {
		name := textSectionName
		if i > 0 {
			name = ".s" + string(rune('0'+i))
		}
		img.Sections = append(img.Sections, Section{
			Name:            name,
			VirtualAddress:  va,
			Data:            Fill(byte(i+1), int(size)),
			Characteristics: pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_EXECUTE,
		})
	}
	if len(addrs) > 0 {
		img.EntryPoint = addrs[0]
	}
	return img
}

func alignUp(v, a uint32) uint32 {
	return (v + a - 1) &^ (a - 1)
}

func mustWrite(buf *bytes.Buffer, v any) {
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}
