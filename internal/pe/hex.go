package pe

import (
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"
)

const hexLineLength = 16

// WriteIntelHex writes the image as Intel HEX with its first byte at base.
// The start address record carries the entry point.
func (img *Image) WriteIntelHex(w io.Writer, base uint32) error {
	mem := gohex.NewMemory()
	mem.SetStartAddress(uint32(img.Layout.EntryPoint))

	if len(img.Data) > 0 {
		if err := mem.AddBinary(base, img.Data); err != nil {
			return fmt.Errorf("生成HEX数据段失败: %w", err)
		}
	}

	if err := mem.DumpIntelHex(w, hexLineLength); err != nil {
		return fmt.Errorf("写入HEX文件失败: %w", err)
	}
	return nil
}
