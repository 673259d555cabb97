// Package cli provides command-line interface utilities.
package cli

import (
	"debug/pe"
	"fmt"
	"io"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	peflat "github.com/ZacharyZcR/PEFlat/internal/pe"
)

// Reporter prints progress and diagnostics for a conversion.
type Reporter struct {
	out     io.Writer
	verbose bool
	quiet   bool
}

// NewReporter creates a reporter writing to out.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// SetVerbose enables the analysis table.
func (r *Reporter) SetVerbose(verbose bool) {
	r.verbose = verbose
}

// SetQuiet suppresses all output.
func (r *Reporter) SetQuiet(quiet bool) {
	r.quiet = quiet
}

// Verbose reports whether the analysis table should be printed.
func (r *Reporter) Verbose() bool {
	return r.verbose && !r.quiet
}

// PrintEntry prints the entry point copied into the include file.
func (r *Reporter) PrintEntry(entry uint64) {
	if r.quiet {
		return
	}
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Fprintf(r.out, "入口点: %#x\n", entry)
}

// PrintLayout prints one line per section in the order they were written.
func (r *Reporter) PrintLayout(layout *peflat.Layout) {
	if r.quiet {
		return
	}

	yellow := color.New(color.FgYellow, color.Bold)
	_, _ = yellow.Fprintf(r.out, "\n【节区布局】(共 %d 个, 基址 %#x, 模式 %s)\n",
		len(layout.Placements), layout.LoadBias, layout.Mode)

	if len(layout.Placements) == 0 {
		fmt.Fprintln(r.out, "  未发现节区")
		return
	}

	red := color.New(color.FgRed, color.Bold)
	gray := color.New(color.FgHiBlack)
	for _, p := range layout.Placements {
		fmt.Fprintf(r.out, "  名称: %-10s 虚拟地址: %#-10x 大小: %#-8x 偏移: %#x",
			p.Name, p.VirtualAddress, p.Size, p.Offset)
		if p.Padding > 0 {
			_, _ = gray.Fprintf(r.out, " (填充 %#x)", p.Padding)
		}
		if p.Overlap {
			_, _ = red.Fprint(r.out, " ⚠ 与前一节区重叠")
		}
		fmt.Fprintln(r.out)
	}
}

// PrintSummary lists the written files.
func (r *Reporter) PrintSummary(layout *peflat.Layout, outputs []Output) {
	if r.quiet {
		return
	}

	green := color.New(color.FgGreen, color.Bold)
	fmt.Fprintln(r.out)
	for _, o := range outputs {
		_, _ = green.Fprintf(r.out, "✓ 已写入 %s (%s)\n", o.Path, humanize.IBytes(uint64(o.Size)))
	}
	if pad := layout.Padding(); pad > 0 {
		gray := color.New(color.FgHiBlack)
		_, _ = gray.Fprintf(r.out, "  其中零填充 %s\n", humanize.IBytes(pad))
	}
}

// PrintAnalysis prints the diagnostic table produced by peflat.Analyzer.
func (r *Reporter) PrintAnalysis(info *peflat.Info) {
	if !r.Verbose() {
		return
	}

	yellow := color.New(color.FgYellow, color.Bold)
	_, _ = yellow.Fprintln(r.out, "\n【基本信息】")

	fmt.Fprintf(r.out, "  %-12s: %s\n", "文件路径", info.FilePath)
	fmt.Fprintf(r.out, "  %-12s: %s\n", "文件大小", humanize.IBytes(uint64(info.FileSize)))
	fmt.Fprintf(r.out, "  %-12s: %s\n", "格式", info.Format)
	fmt.Fprintf(r.out, "  %-12s: %s\n", "架构", info.Architecture)
	fmt.Fprintf(r.out, "  %-12s: %s\n", "子系统", info.Subsystem)
	fmt.Fprintf(r.out, "  %-12s: 0x%X\n", "入口点", info.EntryPoint)
	fmt.Fprintf(r.out, "  %-12s: 0x%X\n", "镜像基址", info.ImageBase)
	r.printChecksum(info.Checksum)
	r.printItemError("校验和", info.ChecksumErr)

	warn := color.New(color.FgYellow)
	if info.Relocations.HasRelocations() {
		fmt.Fprintf(r.out, "  %-12s: ", "基址重定位")
		_, _ = warn.Fprintf(r.out, "⚠ %d 块 / %d 项（平坦镜像不会应用）\n",
			info.Relocations.BlockCount, info.Relocations.TotalEntries)
	}
	r.printItemError("基址重定位", info.RelocationsErr)

	if info.TLS.HasCallbacks() {
		fmt.Fprintf(r.out, "  %-12s: ", "TLS回调")
		_, _ = warn.Fprintf(r.out, "⚠ %d 个（平坦镜像不会执行）\n", len(info.TLS.Callbacks))
	}
	r.printItemError("TLS回调", info.TLSErr)

	_, _ = yellow.Fprintf(r.out, "\n【节区信息】(共 %d 个)\n", len(info.Sections))
	if len(info.Sections) == 0 {
		fmt.Fprintln(r.out, "  未发现节区")
		return
	}

	fmt.Fprintln(r.out, strings.Repeat("-", 80))
	fmt.Fprintf(r.out, "  %-10s %-12s %-12s %-12s %-6s %s\n",
		"名称", "虚拟地址", "虚拟大小", "原始大小", "权限", "熵值")
	fmt.Fprintln(r.out, strings.Repeat("-", 80))

	for _, s := range info.Sections {
		permColor := color.New(color.FgWhite)
		if s.Permissions == "RWX" {
			permColor = color.New(color.FgRed, color.Bold)
		} else if strings.Contains(s.Permissions, "X") {
			permColor = color.New(color.FgYellow)
		}

		fmt.Fprintf(r.out, "  %-10s 0x%08X   %-12s %-12s ",
			s.Name, s.VirtualAddress,
			humanize.IBytes(uint64(s.VirtualSize)),
			humanize.IBytes(uint64(s.Size)),
		)
		_, _ = permColor.Fprintf(r.out, "%-6s", s.Permissions)
		fmt.Fprintf(r.out, " %.2f\n", s.Entropy)
	}
	fmt.Fprintln(r.out, strings.Repeat("-", 80))
}

func (r *Reporter) printChecksum(c *peflat.ChecksumInfo) {
	if c == nil {
		return
	}

	fmt.Fprintf(r.out, "  %-12s: ", "校验和")
	switch {
	case c.Stored == 0:
		gray := color.New(color.FgHiBlack)
		_, _ = gray.Fprint(r.out, "未设置")
	case c.Valid:
		green := color.New(color.FgGreen)
		_, _ = green.Fprintf(r.out, "✓ 有效 (0x%08X)", c.Stored)
	default:
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(r.out, "✗ 无效 (存储: 0x%08X, 计算: 0x%08X)", c.Stored, c.Computed)
	}
	fmt.Fprintln(r.out)
}

// printItemError reports an analysis item that could not be read.
func (r *Reporter) printItemError(label string, err error) {
	if err == nil {
		return
	}
	red := color.New(color.FgRed)
	fmt.Fprintf(r.out, "  %-12s: ", label)
	_, _ = red.Fprintf(r.out, "✗ 解析失败: %v\n", err)
}

// DumpHeaders prints the raw COFF and optional headers.
func (r *Reporter) DumpHeaders(f *pe.File) {
	if r.quiet {
		return
	}

	cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true}
	cyan := color.New(color.FgCyan, color.Bold)

	_, _ = cyan.Fprintln(r.out, "\n【COFF头】")
	cfg.Fdump(r.out, f.FileHeader)
	_, _ = cyan.Fprintln(r.out, "【可选头】")
	cfg.Fdump(r.out, f.OptionalHeader)
}
