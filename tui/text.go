package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

// truncate cuts s to at most width display columns, appending an ellipsis
// when anything was cut. Width is measured in terminal cells, so wide
// characters count as two columns.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if uniseg.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// padLeft right-aligns s within width display columns.
func padLeft(s string, width int) string {
	gap := width - uniseg.StringWidth(s)
	if gap <= 0 {
		return s
	}
	return strings.Repeat(" ", gap) + s
}
