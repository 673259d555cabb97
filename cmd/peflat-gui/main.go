// Package main provides the peflat GUI application.
package main

import (
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/dustin/go-humanize"

	"github.com/ZacharyZcR/PEFlat/internal/cli"
	"github.com/ZacharyZcR/PEFlat/internal/pe"
)

func main() {
	myApp := app.New()
	myWindow := myApp.NewWindow("PEFlat - PE内核平坦镜像转换工具")
	myWindow.Resize(fyne.NewSize(900, 640))

	filePathEntry := widget.NewEntry()
	filePathEntry.SetPlaceHolder("选择PE文件...")

	outDirEntry := widget.NewEntry()
	outDirEntry.SetPlaceHolder("输出目录（默认与输入文件相同）")

	symbolEntry := widget.NewEntry()
	symbolEntry.SetText(pe.DefaultEntrySymbol)

	biasEntry := widget.NewEntry()
	biasEntry.SetText(fmt.Sprintf("%#x", pe.DefaultLoadBias))

	modeSelect := widget.NewSelect([]string{pe.CursorRaw.String(), pe.CursorVirtual.String()}, nil)
	modeSelect.SetSelected(pe.CursorRaw.String())

	layoutOutput := widget.NewMultiLineEntry()
	layoutOutput.SetPlaceHolder("节区布局将显示在这里...")
	layoutOutput.Disable()

	statusLabel := widget.NewLabel("就绪")

	fileButton := widget.NewButton("选择文件", func() {
		dialog.ShowFileOpen(func(file fyne.URIReadCloser, err error) {
			if err != nil || file == nil {
				return
			}
			defer func() { _ = file.Close() }()
			filePathEntry.SetText(file.URI().Path())
		}, myWindow)
	})

	// config collects the form into the same configuration the CLI builds.
	config := func() (*cli.Config, error) {
		if filePathEntry.Text == "" {
			return nil, fmt.Errorf("请先选择PE文件")
		}
		args := []string{
			"-symbol", symbolEntry.Text,
			"-bias", biasEntry.Text,
			"-mode", modeSelect.Selected,
			"-hex", "",
		}
		cfg, err := cli.ParseConfig("peflat-gui", args, &strings.Builder{})
		if err != nil {
			return nil, err
		}
		cfg.SetInput(filePathEntry.Text, outDirEntry.Text)
		return cfg, nil
	}

	runAsync := func(busy, done string, work func(cfg *cli.Config) (string, error)) {
		cfg, err := config()
		if err != nil {
			dialog.ShowError(err, myWindow)
			return
		}

		statusLabel.SetText(busy)
		go func() {
			result, err := work(cfg)
			fyne.Do(func() {
				if err != nil {
					dialog.ShowError(err, myWindow)
					statusLabel.SetText("失败")
					return
				}
				layoutOutput.SetText(result)
				statusLabel.SetText(done)
			})
		}()
	}

	previewButton := widget.NewButton("预览布局", func() {
		runAsync("正在分析...", "分析完成", previewLayout)
	})

	flattenButton := widget.NewButton("生成镜像", func() {
		runAsync("正在生成...", "生成完成", flattenFile)
	})

	fileBox := container.NewBorder(nil, nil, nil, fileButton, filePathEntry)

	optionsBox := container.NewGridWithColumns(2,
		widget.NewLabel("输出目录:"), outDirEntry,
		widget.NewLabel("入口点符号:"), symbolEntry,
		widget.NewLabel("加载基址:"), biasEntry,
		widget.NewLabel("布局模式:"), modeSelect,
	)

	mainContent := container.NewBorder(
		container.NewVBox(
			widget.NewLabel("PE文件路径:"),
			fileBox,
			widget.NewSeparator(),
			optionsBox,
			container.NewGridWithColumns(2, previewButton, flattenButton),
		),
		container.NewVBox(
			widget.NewSeparator(),
			statusLabel,
		),
		nil,
		nil,
		container.NewVScroll(layoutOutput),
	)

	myWindow.SetContent(mainContent)
	myWindow.ShowAndRun()
}

func previewLayout(cfg *cli.Config) (string, error) {
	reader, err := pe.Open(cfg.Input)
	if err != nil {
		return "", err
	}
	defer func() { _ = reader.Close() }()

	layout, err := pe.NewFlattener(cfg.Options()).Plan(reader.File())
	if err != nil {
		return "", err
	}
	return formatLayout(layout), nil
}

func flattenFile(cfg *cli.Config) (string, error) {
	reader, err := pe.Open(cfg.Input)
	if err != nil {
		return "", err
	}
	defer func() { _ = reader.Close() }()

	image, err := pe.NewFlattener(cfg.Options()).Flatten(reader.File())
	if err != nil {
		return "", err
	}

	outputs, err := cli.WriteOutputs(image, cfg.Targets())
	if err != nil {
		return "", err
	}

	var output strings.Builder
	output.WriteString(formatLayout(image.Layout))
	output.WriteString("\n")
	for _, o := range outputs {
		output.WriteString(fmt.Sprintf("已写入 %s (%s)\n", o.Path, humanize.IBytes(uint64(o.Size))))
	}
	return output.String(), nil
}

func formatLayout(layout *pe.Layout) string {
	var output strings.Builder
	output.WriteString(fmt.Sprintf("入口点: %#x\n", layout.EntryPoint))
	output.WriteString(fmt.Sprintf("镜像大小: %s (零填充 %s)\n",
		humanize.IBytes(layout.Size), humanize.IBytes(layout.Padding())))

	output.WriteString(fmt.Sprintf("\n节区 (%d 个):\n", len(layout.Placements)))
	for _, p := range layout.Placements {
		output.WriteString(fmt.Sprintf("  %-10s 虚拟地址=%#x 大小=%#x 偏移=%#x 填充=%#x",
			p.Name, p.VirtualAddress, p.Size, p.Offset, p.Padding))
		if p.Overlap {
			output.WriteString(" ⚠ 重叠")
		}
		output.WriteString("\n")
	}
	return output.String()
}
