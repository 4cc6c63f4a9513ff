package util

import (
	"fmt"
	"io"
	"strings"

	"github.com/common-nighthawk/go-figure"
)

// ANSI 颜色
const (
	ColorReset  = "\x1b[0m"
	ColorRed    = "\x1b[1;31m"
	ColorGreen  = "\x1b[1;32m"
	ColorYellow = "\x1b[1;33m"
	ColorBlue   = "\x1b[1;34m"
	ColorCyan   = "\x1b[1;36m"
)

var colors = map[string]string{
	"red":    ColorRed,
	"green":  ColorGreen,
	"yellow": ColorYellow,
	"blue":   ColorBlue,
	"cyan":   ColorCyan,
}

// Banner 渲染 ASCII banner；color 为空或未知时不着色
func Banner(text, color string) string {
	ansi, ok := colors[strings.ToLower(color)]
	var b strings.Builder
	for _, line := range figure.NewFigure(text, "", true).Slicify() {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if ok {
			b.WriteString(ansi + line + ColorReset)
		} else {
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// PrintBanner 启动时打印 banner 和一行运行摘要
func PrintBanner(w io.Writer, text, color, summary string) {
	_, _ = fmt.Fprint(w, Banner(text, color))
	if summary != "" {
		_, _ = fmt.Fprintln(w, summary)
	}
}
