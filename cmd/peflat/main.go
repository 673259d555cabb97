// Package main provides the peflat CLI: it converts a PE kernel image into a
// flat memory image plus a NASM include holding the entry point.
package main

import (
	"errors"
	"flag"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/ZacharyZcR/PEFlat/internal/cli"
	"github.com/ZacharyZcR/PEFlat/internal/pe"
)

func main() {
	cfg, err := cli.ParseConfig(os.Args[0], os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		printError(err)
		os.Exit(2)
	}

	if cfg.NoColor {
		color.NoColor = true
	}

	if err := run(cfg, color.Output); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func printError(err error) {
	red := color.New(color.FgRed, color.Bold)
	_, _ = red.Fprintf(os.Stderr, "\n错误: %v\n\n", err)
}

func run(cfg *cli.Config, out io.Writer) error {
	reader, err := pe.Open(cfg.Input)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	reporter := cli.NewReporter(out)
	reporter.SetVerbose(cfg.Verbose)
	reporter.SetQuiet(cfg.Quiet)

	if cfg.Dump {
		reporter.DumpHeaders(reader.File())
	}

	if reporter.Verbose() {
		info, err := pe.NewAnalyzer(reader).Analyze()
		if err != nil {
			return err
		}
		reporter.PrintAnalysis(info)
	}

	image, err := pe.NewFlattener(cfg.Options()).Flatten(reader.File())
	if err != nil {
		return err
	}

	reporter.PrintEntry(image.Layout.EntryPoint)
	reporter.PrintLayout(image.Layout)

	outputs, err := cli.WriteOutputs(image, cfg.Targets())
	if err != nil {
		return err
	}

	reporter.PrintSummary(image.Layout, outputs)
	return nil
}
