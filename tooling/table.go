package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

type TableColumn struct {
	Header    string
	Width     int
	Alignment Alignment
}

// Table prints box-drawn tables. Widths count runes, so Vietnamese product
// names line up.
type Table struct {
	w       io.Writer
	title   string
	columns []TableColumn
}

func NewTable(w io.Writer, title string) *Table {
	return &Table{w: w, title: title}
}

func (t *Table) AddColumn(header string, width int, alignment Alignment) {
	t.columns = append(t.columns, TableColumn{Header: header, Width: width, Alignment: alignment})
}

func (t *Table) border(left, mid, right string) {
	var b strings.Builder
	b.WriteString(left)
	for i, col := range t.columns {
		if i > 0 {
			b.WriteString(mid)
		}
		b.WriteString(strings.Repeat("─", col.Width))
	}
	b.WriteString(right)
	fmt.Fprintln(t.w, b.String())
}

func pad(s string, width int, align Alignment) string {
	s = truncate(s, width-1)
	gap := width - 1 - utf8.RuneCountInString(s)
	if gap < 0 {
		gap = 0
	}
	if align == AlignRight {
		return " " + strings.Repeat(" ", gap) + s
	}
	return " " + s + strings.Repeat(" ", gap)
}

func (t *Table) PrintHeader() {
	if t.title != "" {
		fmt.Fprintf(t.w, "%s:\n", t.title)
	}
	t.border("┌", "┬", "┐")

	cells := make([]string, len(t.columns))
	for i, col := range t.columns {
		cells[i] = pad(col.Header, col.Width, AlignLeft)
	}
	fmt.Fprintln(t.w, "│"+strings.Join(cells, "│")+"│")

	t.border("├", "┼", "┤")
}

func (t *Table) PrintRow(data ...any) {
	if len(data) != len(t.columns) {
		return
	}
	cells := make([]string, len(t.columns))
	for i, col := range t.columns {
		cells[i] = pad(fmt.Sprintf("%v", data[i]), col.Width, col.Alignment)
	}
	fmt.Fprintln(t.w, "│"+strings.Join(cells, "│")+"│")
}

func (t *Table) PrintEmptyRow(message string) {
	total := len(t.columns) - 1
	for _, col := range t.columns {
		total += col.Width
	}
	gap := total - utf8.RuneCountInString(message)
	if gap < 0 {
		gap = 0
	}
	left := gap / 2
	fmt.Fprintln(t.w, "│"+strings.Repeat(" ", left)+message+strings.Repeat(" ", gap-left)+"│")
}

func (t *Table) PrintFooter() {
	t.border("└", "┴", "┘")
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string([]rune(s)[:maxLen])
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
