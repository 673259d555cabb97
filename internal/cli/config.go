package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xyproto/env/v2"

	"github.com/ZacharyZcR/PEFlat/internal/pe"
)

// ErrInvalidMode is returned for a -mode value other than raw or virtual.
var ErrInvalidMode = errors.New("未知的布局模式")

// Default file names expected by the boot loader build.
const (
	DefaultInput   = "kernel.exe"
	DefaultBinary  = "kernel.bin"
	DefaultInclude = "kernel.inc"
)

// Config is the resolved command-line configuration. Every flag falls back to
// an environment variable and then to the built-in default, so running with
// no arguments converts kernel.exe in the working directory.
type Config struct {
	Input   string
	Binary  string
	Include string
	Hex     string
	Symbol  string

	LoadBias uint64
	HexBase  uint32
	Mode     pe.CursorMode

	Verbose bool
	Quiet   bool
	Dump    bool
	NoColor bool
}

// ParseConfig parses args (without the program name). Usage and flag errors
// are written to output.
func ParseConfig(name string, args []string, output io.Writer) (*Config, error) {
	// Pick up variables set since the last parse.
	env.Load()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		input   = fs.String("in", env.Str("PEFLAT_INPUT", DefaultInput), "输入PE文件")
		binary  = fs.String("bin", env.Str("PEFLAT_BIN", DefaultBinary), "输出的平坦二进制镜像")
		include = fs.String("inc", env.Str("PEFLAT_INC", DefaultInclude), "输出的NASM头文件")
		hexOut  = fs.String("hex", env.Str("PEFLAT_HEX"), "额外输出Intel HEX文件（默认不输出）")
		hexBase = fs.String("hex-base", env.Str("PEFLAT_HEX_BASE"), "Intel HEX数据基址（十六进制，默认等于 -bias）")
		symbol  = fs.String("symbol", env.Str("PEFLAT_SYMBOL", pe.DefaultEntrySymbol), "头文件中入口点的符号名")
		bias    = fs.String("bias", env.Str("PEFLAT_BIAS", "0x1000"), "镜像偏移0对应的虚拟地址（十六进制）")
		mode    = fs.String("mode", env.Str("PEFLAT_MODE", pe.CursorRaw.String()), "布局模式: raw 或 virtual")
		verbose = fs.Bool("v", env.Bool("PEFLAT_VERBOSE"), "详细模式：显示架构、权限、熵值和校验和")
		quiet   = fs.Bool("q", env.Bool("PEFLAT_QUIET"), "安静模式：只输出错误")
		dump    = fs.Bool("dump", false, "打印原始COFF头和可选头")
		noColor = fs.Bool("no-color", env.Str("NO_COLOR") != "", "禁用彩色输出")
	)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		*input = fs.Arg(0)
	default:
		return nil, fmt.Errorf("只能指定一个输入文件，收到 %d 个", fs.NArg())
	}

	cfg := &Config{
		Input:   *input,
		Binary:  *binary,
		Include: *include,
		Hex:     *hexOut,
		Symbol:  *symbol,
		Verbose: *verbose,
		Quiet:   *quiet,
		Dump:    *dump,
		NoColor: *noColor,
	}

	var err error
	if cfg.LoadBias, err = parseHexAddress(*bias); err != nil {
		return nil, fmt.Errorf("-bias: %w", err)
	}

	if cfg.HexBase, err = resolveHexBase(*hexBase, cfg.LoadBias, cfg.Hex != ""); err != nil {
		return nil, err
	}

	if cfg.Mode, err = parseCursorMode(*mode); err != nil {
		return nil, err
	}

	if cfg.Symbol == "" {
		return nil, fmt.Errorf("-symbol 不能为空")
	}

	return cfg, nil
}

// Options returns the flattener options.
func (c *Config) Options() pe.Options {
	return pe.Options{LoadBias: c.LoadBias, Mode: c.Mode}
}

// SetInput replaces the input with path, which is never parsed as a flag, and
// puts the binary and include files in outDir, or next to the input when
// outDir is empty. HEX output is dropped.
func (c *Config) SetInput(path, outDir string) {
	c.Input = path
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	c.Binary = filepath.Join(outDir, DefaultBinary)
	c.Include = filepath.Join(outDir, DefaultInclude)
	c.Hex = ""
}

// Targets returns the output files to produce.
func (c *Config) Targets() Targets {
	return Targets{
		Include: c.Include,
		Binary:  c.Binary,
		Hex:     c.Hex,
		Symbol:  c.Symbol,
		HexBase: c.HexBase,
	}
}

func parseHexAddress(addr string) (uint64, error) {
	s := strings.TrimSpace(addr)
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("地址格式错误: %s (应为十六进制，例如: 0x1000)", addr)
	}
	return v, nil
}

// resolveHexBase returns the Intel HEX base: -hex-base when given, otherwise
// the load bias. Intel HEX addresses are 32 bits wide.
func resolveHexBase(flagValue string, bias uint64, hexEnabled bool) (uint32, error) {
	if flagValue == "" {
		if bias > math.MaxUint32 {
			if hexEnabled {
				return 0, fmt.Errorf("-bias: %#x 超出Intel HEX的32位地址范围，请用 -hex-base 指定基址", bias)
			}
			return 0, nil
		}
		return uint32(bias), nil
	}

	base, err := parseHexAddress(flagValue)
	if err != nil {
		return 0, fmt.Errorf("-hex-base: %w", err)
	}
	if base > math.MaxUint32 {
		return 0, fmt.Errorf("-hex-base: 地址超出32位范围: %#x", base)
	}
	return uint32(base), nil
}

func parseCursorMode(mode string) (pe.CursorMode, error) {
	switch strings.ToLower(mode) {
	case pe.CursorRaw.String():
		return pe.CursorRaw, nil
	case pe.CursorVirtual.String():
		return pe.CursorVirtual, nil
	default:
		return 0, fmt.Errorf("%w: %q (可选: raw, virtual)", ErrInvalidMode, mode)
	}
}
