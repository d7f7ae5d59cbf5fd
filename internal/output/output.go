// Package output renders CLI output: styled status lines, key/value
// blocks, and result listings. Styling degrades to plain text when the
// destination is not a terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette, single accent.
const (
	colorAccent   = "154" // lime green
	colorGray     = "245"
	colorDarkGray = "238"
	colorRed      = "196"
	colorYellow   = "220"
)

// Styles holds the lipgloss styles the writer renders with.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	Score   lipgloss.Style
}

func colorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorDarkGray)),
		Score:   lipgloss.NewStyle().Bold(true),
	}
}

func plainStyles() Styles {
	return Styles{}
}

// Writer renders formatted CLI output.
type Writer struct {
	out    io.Writer
	styles Styles
}

// New creates a writer that styles output when out is a terminal.
func New(out io.Writer) *Writer {
	useColor := false
	if f, ok := out.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return NewWithColor(out, useColor)
}

// NewWithColor creates a writer with color explicitly on or off.
func NewWithColor(out io.Writer, useColor bool) *Writer {
	styles := plainStyles()
	if useColor {
		styles = colorStyles()
	}
	return &Writer{out: out, styles: styles}
}

// Write errors are ignored throughout: console output is best effort.

// Header prints a bold section heading.
func (w *Writer) Header(text string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(text))
}

// Successf prints a checkmarked line.
func (w *Writer) Successf(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, w.styles.Success.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// Warningf prints a warning line.
func (w *Writer) Warningf(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, w.styles.Warning.Render("!")+" "+fmt.Sprintf(format, args...))
}

// Errorf prints an error line.
func (w *Writer) Errorf(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, w.styles.Error.Render("✗")+" "+fmt.Sprintf(format, args...))
}

// Infof prints an unadorned line.
func (w *Writer) Infof(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format+"\n", args...)
}

// Suggestionf prints a dimmed hint line.
func (w *Writer) Suggestionf(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render("  → "+fmt.Sprintf(format, args...)))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// KV prints an aligned key/value block.
func (w *Writer) KV(pairs [][2]string) {
	width := 0
	for _, p := range pairs {
		if len(p[0]) > width {
			width = len(p[0])
		}
	}
	for _, p := range pairs {
		label := w.styles.Label.Render(p[0] + strings.Repeat(" ", width-len(p[0])))
		_, _ = fmt.Fprintf(w.out, "  %s  %s\n", label, p[1])
	}
}

// Result prints one search hit: rank, score, id, then an indented
// snippet of the chunk text.
func (w *Writer) Result(rank int, score float64, id, text string) {
	_, _ = fmt.Fprintf(w.out, "%2d. %s  %s\n",
		rank,
		w.styles.Score.Render(fmt.Sprintf("%.4f", score)),
		w.styles.Header.Render(id))
	for _, line := range strings.Split(snippet(text, 240), "\n") {
		_, _ = fmt.Fprintf(w.out, "    %s\n", line)
	}
}

// snippet trims text to at most max runes on a word boundary.
func snippet(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := string(runes[:max])
	if idx := strings.LastIndexAny(cut, " \t\n"); idx > max/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
