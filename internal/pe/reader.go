// Package pe reads PE images and lays their sections out as flat memory images.
package pe

import (
	"bytes"
	"debug/pe"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

// ErrEmptyFile is returned when the input has no bytes to map.
var ErrEmptyFile = errors.New("文件为空")

// Reader wraps a read-only mapping of a PE file and its parsed headers.
type Reader struct {
	file     *pe.File
	data     mmap.MMap
	filepath string
	filesize int64
}

// Open maps the file at filepath and parses it as a PE image.
func Open(filepath string) (*Reader, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开PE文件失败: %w", err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("获取文件信息失败: %w", err)
	}
	if stat.Size() == 0 {
		return nil, fmt.Errorf("%s: %w", filepath, ErrEmptyFile)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("映射文件失败: %w", err)
	}

	peFile, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		_ = data.Unmap()
		return nil, fmt.Errorf("解析PE文件失败: %w", err)
	}

	return &Reader{
		file:     peFile,
		data:     data,
		filepath: filepath,
		filesize: stat.Size(),
	}, nil
}

// Close releases the mapping. The parsed File must not be used afterwards.
func (r *Reader) Close() error {
	return r.data.Unmap()
}

// File returns the parsed headers.
func (r *Reader) File() *pe.File {
	return r.file
}

// RawFile returns random access to the mapped bytes.
func (r *Reader) RawFile() io.ReaderAt {
	return bytes.NewReader(r.data)
}

// FilePath returns the path the reader was opened with.
func (r *Reader) FilePath() string {
	return r.filepath
}

// FileSize returns the file size in bytes.
func (r *Reader) FileSize() int64 {
	return r.filesize
}
