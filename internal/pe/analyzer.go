package pe

import (
	"debug/pe"
	"fmt"
)

// Info describes an input image for diagnostics. Nothing in it feeds the
// flattened output.
type Info struct {
	FilePath     string
	FileSize     int64
	Architecture string
	Subsystem    string
	Format       string
	EntryPoint   uint64
	ImageBase    uint64
	Checksum     *ChecksumInfo
	Relocations  *RelocationInfo
	TLS          *TLSInfo
	Sections     []SectionInfo

	// Per-item failures. The matching item above is nil when set.
	ChecksumErr    error
	RelocationsErr error
	TLSErr         error
}

// SectionInfo contains information about a PE section.
type SectionInfo struct {
	Name            string
	VirtualAddress  uint32
	VirtualSize     uint32
	Size            uint32
	Characteristics uint32
	Permissions     string
	Entropy         float64
}

// Analyzer extracts information from PE files.
type Analyzer struct {
	reader *Reader
}

// NewAnalyzer creates a new analyzer for the given reader.
func NewAnalyzer(r *Reader) *Analyzer {
	return &Analyzer{reader: r}
}

// Analyze collects header and section details.
func (a *Analyzer) Analyze() (*Info, error) {
	f := a.reader.File()

	info := &Info{
		FilePath:     a.reader.FilePath(),
		FileSize:     a.reader.FileSize(),
		Architecture: getArchitecture(f.Machine),
	}

	switch opt := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		info.Format = "PE32"
		info.EntryPoint = uint64(opt.AddressOfEntryPoint)
		info.ImageBase = uint64(opt.ImageBase)
		info.Subsystem = getSubsystem(opt.Subsystem)
	case *pe.OptionalHeader64:
		info.Format = "PE32+"
		info.EntryPoint = uint64(opt.AddressOfEntryPoint)
		info.ImageBase = opt.ImageBase
		info.Subsystem = getSubsystem(opt.Subsystem)
	default:
		info.Format = "COFF"
	}

	for _, s := range f.Sections {
		// A truncated section still gets a row; its entropy stays 0.
		var entropy float64
		if data, err := s.Data(); err == nil {
			entropy = Entropy(data)
		}
		info.Sections = append(info.Sections, SectionInfo{
			Name:            s.Name,
			VirtualAddress:  s.VirtualAddress,
			VirtualSize:     s.VirtualSize,
			Size:            s.Size,
			Characteristics: s.Characteristics,
			Permissions:     getSectionPermissions(s.Characteristics),
			Entropy:         entropy,
		})
	}

	info.Checksum, info.ChecksumErr = VerifyChecksum(a.reader)
	info.Relocations, info.RelocationsErr = ParseRelocations(f)
	info.TLS, info.TLSErr = ParseTLS(f)

	return info, nil
}

func getArchitecture(machine uint16) string {
	switch machine {
	case pe.IMAGE_FILE_MACHINE_I386:
		return "x86 (32位)"
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return "x64 (64位)"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return "ARM64"
	case pe.IMAGE_FILE_MACHINE_RISCV64:
		return "RISC-V 64"
	default:
		return fmt.Sprintf("未知 (0x%X)", machine)
	}
}

func getSubsystem(subsystem uint16) string {
	switch subsystem {
	case pe.IMAGE_SUBSYSTEM_NATIVE:
		return "Native"
	case pe.IMAGE_SUBSYSTEM_WINDOWS_CUI:
		return "Windows 控制台"
	case pe.IMAGE_SUBSYSTEM_EFI_APPLICATION:
		return "EFI 应用"
	default:
		return fmt.Sprintf("未知 (0x%X)", subsystem)
	}
}

func getSectionPermissions(c uint32) string {
	perms := []byte("---")
	if c&pe.IMAGE_SCN_MEM_READ != 0 {
		perms[0] = 'R'
	}
	if c&pe.IMAGE_SCN_MEM_WRITE != 0 {
		perms[1] = 'W'
	}
	if c&pe.IMAGE_SCN_MEM_EXECUTE != 0 {
		perms[2] = 'X'
	}
	return string(perms)
}
