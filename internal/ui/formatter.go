package ui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const ellipsis = "..."

// PadRight pads str with spaces up to width display columns
func PadRight(str string, width int) string {
	w := runewidth.StringWidth(str)
	if w < width {
		return str + strings.Repeat(" ", width-w)
	}
	return str
}

// Truncate cuts str to at most width display columns, marking the cut with an ellipsis
func Truncate(str string, width int) string {
	if width <= len(ellipsis) {
		return runewidth.Truncate(str, width, "")
	}
	return runewidth.Truncate(str, width, ellipsis)
}
