package tui

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/mtpe/internal/editdist"
)

type styledRune struct {
	s       string
	width   int
	isSpace bool
}

// buildTextRunes styles every rune of text the same way.
func buildTextRunes(text string, style lipgloss.Style) []styledRune {
	out := make([]styledRune, 0, len(text))
	for _, r := range text {
		if unicode.IsSpace(r) {
			out = append(out, spaceRune())
			continue
		}
		out = append(out, styledRune{s: style.Render(string(r)), width: runewidth.RuneWidth(r)})
	}
	return out
}

// buildDiffRunes renders a word-level edit script from the MT to the edited
// text. Deleted words come before the words that replace them.
func buildDiffRunes(ops []editdist.Op) []styledRune {
	out := make([]styledRune, 0, len(ops)*6)
	word := func(w string, style lipgloss.Style) {
		if len(out) > 0 {
			out = append(out, spaceRune())
		}
		for _, r := range w {
			out = append(out, styledRune{s: style.Render(string(r)), width: runewidth.RuneWidth(r)})
		}
	}
	for _, op := range ops {
		switch op.Kind {
		case editdist.Equal:
			word(op.B, keptStyle)
		case editdist.Insert:
			word(op.B, insertedStyle)
		case editdist.Delete:
			word(op.A, deletedStyle)
		case editdist.Substitute:
			word(op.A, deletedStyle)
			word(op.B, insertedStyle)
		}
	}
	return out
}

func spaceRune() styledRune {
	return styledRune{s: " ", width: 1, isSpace: true}
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

// wrapStyledRunes breaks lines at the last space that fits, or mid-word when
// a single word is wider than width.
func wrapStyledRunes(runes []styledRune, width int) string {
	if width <= 0 {
		return renderStyledRunes(runes)
	}
	var out strings.Builder
	line := make([]styledRune, 0, len(runes))
	lineWidth := 0
	lastSpaceIdx := -1

	for i := 0; i < len(runes); {
		item := runes[i]
		if lineWidth+item.width > width && len(line) > 0 {
			if lastSpaceIdx >= 0 {
				out.WriteString(renderStyledRunes(line[:lastSpaceIdx]))
				out.WriteRune('\n')
				line = append([]styledRune{}, line[lastSpaceIdx+1:]...)
				lineWidth = lineWidthOf(line)
				lastSpaceIdx = lastSpaceIndex(line)
			} else {
				out.WriteString(renderStyledRunes(line))
				out.WriteRune('\n')
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpaceIdx = len(line) - 1
		}
		i++
	}
	out.WriteString(renderStyledRunes(line))
	return out.String()
}

// wrapText is wrapStyledRunes for a uniformly styled string.
func wrapText(text string, style lipgloss.Style, width int) string {
	return wrapStyledRunes(buildTextRunes(text, style), width)
}

func lineWidthOf(line []styledRune) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpaceIndex(line []styledRune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}
