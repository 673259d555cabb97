package pe

import (
	"fmt"
	"io"
)

// DefaultEntrySymbol is the NASM symbol the boot loader jumps through.
const DefaultEntrySymbol = "KERNEL_ENTRY"

// FormatInclude renders a single NASM define for the entry point. There is
// no trailing newline.
func FormatInclude(symbol string, entry uint64) string {
	return fmt.Sprintf("%%define %s %#x", symbol, entry)
}

// WriteInclude writes the define produced by FormatInclude to w.
func WriteInclude(w io.Writer, symbol string, entry uint64) error {
	if _, err := io.WriteString(w, FormatInclude(symbol, entry)); err != nil {
		return fmt.Errorf("写入头文件失败: %w", err)
	}
	return nil
}
