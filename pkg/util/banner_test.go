package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBannerColor(t *testing.T) {
	out := Banner("dcn", "cyan")
	assert.NotEmpty(t, out)
	for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		assert.True(t, strings.HasPrefix(line, ColorCyan))
		assert.True(t, strings.HasSuffix(line, ColorReset))
	}
}

func TestBannerPlain(t *testing.T) {
	out := Banner("dcn", "")
	assert.NotContains(t, out, "\x1b[")
}

func TestPrintBannerSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "dcn", "", "cadence=60s")
	assert.True(t, strings.HasSuffix(buf.String(), "cadence=60s\n"))
}
