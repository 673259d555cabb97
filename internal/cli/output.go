package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/ZacharyZcR/PEFlat/internal/pe"
)

// Targets names the files a run produces. An empty Hex skips the HEX output.
type Targets struct {
	Include string
	Binary  string
	Hex     string
	Symbol  string
	HexBase uint32
}

// Output is one written file.
type Output struct {
	Path string
	Size int64
}

// WriteOutputs writes the include file, then the binary, then the optional
// HEX file. A failure part way leaves the earlier files in place.
func WriteOutputs(img *pe.Image, t Targets) ([]Output, error) {
	var outputs []Output

	write := func(path string, fn func(io.Writer) error) error {
		n, err := writeFile(path, fn)
		if err != nil {
			return err
		}
		outputs = append(outputs, Output{Path: path, Size: n})
		return nil
	}

	if err := write(t.Include, func(w io.Writer) error {
		return pe.WriteInclude(w, t.Symbol, img.Layout.EntryPoint)
	}); err != nil {
		return outputs, err
	}

	if err := write(t.Binary, func(w io.Writer) error {
		_, err := img.WriteTo(w)
		return err
	}); err != nil {
		return outputs, err
	}

	if t.Hex != "" {
		if err := write(t.Hex, func(w io.Writer) error {
			return img.WriteIntelHex(w, t.HexBase)
		}); err != nil {
			return outputs, err
		}
	}

	return outputs, nil
}

func writeFile(path string, fn func(io.Writer) error) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("创建输出文件失败: %w", err)
	}

	if err := fn(f); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("写入 %s 失败: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("获取文件信息失败: %w", err)
	}

	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("关闭 %s 失败: %w", path, err)
	}
	return stat.Size(), nil
}
