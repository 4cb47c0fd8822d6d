// Package ui provides styled terminal output for the CLI. Colour is used
// only when the writer is a terminal and NO_COLOR is unset.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Printer writes styled lines to one writer.
type Printer struct {
	w     io.Writer
	color bool

	title   lipgloss.Style
	subtle  lipgloss.Style
	success lipgloss.Style
	errorS  lipgloss.Style
	warning lipgloss.Style
	states  map[string]lipgloss.Style
}

// New returns a printer for w.
func New(w io.Writer) *Printer {
	return NewWithColor(w, isTerminal(w) && os.Getenv("NO_COLOR") == "")
}

// NewWithColor returns a printer with colour forced on or off.
func NewWithColor(w io.Writer, color bool) *Printer {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	fg := func(c string) lipgloss.Style { return r.NewStyle().Foreground(lipgloss.Color(c)) }
	return &Printer{
		w:       w,
		color:   color,
		title:   r.NewStyle().Bold(true),
		subtle:  fg("241"),
		success: fg("42"),
		errorS:  fg("196"),
		warning: fg("214"),
		states: map[string]lipgloss.Style{
			"idle":     fg("42"),
			"dirty":    fg("214"),
			"flushing": fg("45"),
			"polling":  fg("141"),
		},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Color reports whether the printer emits colour.
func (p *Printer) Color() bool {
	return p.color
}

// Success prints a success message
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.w, p.success.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.w, p.errorS.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...any) {
	fmt.Fprintln(p.w, p.warning.Render("Warning: "+fmt.Sprintf(format, args...)))
}

// Info prints an unstyled message
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Title renders s in bold.
func (p *Printer) Title(s string) string {
	return p.title.Render(s)
}

// Subtle renders s dimmed.
func (p *Printer) Subtle(s string) string {
	return p.subtle.Render(s)
}

// State renders a scheduler state name in its colour.
func (p *Printer) State(s string) string {
	style, ok := p.states[s]
	if !ok {
		return s
	}
	return style.Render(s)
}

// Fields prints label/value pairs with the labels aligned. pairs alternates
// label and value.
func (p *Printer) Fields(pairs ...string) {
	width := 0
	for i := 0; i < len(pairs); i += 2 {
		width = max(width, len(pairs[i]))
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		label := pairs[i] + ":" + strings.Repeat(" ", width-len(pairs[i]))
		fmt.Fprintf(p.w, "%s  %s\n", p.subtle.Render(label), pairs[i+1])
	}
}

// Rule prints a horizontal line as wide as the terminal, or 40 columns.
func (p *Printer) Rule() {
	width := 40
	if f, ok := p.w.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = min(w, 100)
		}
	}
	fmt.Fprintln(p.w, p.subtle.Render(strings.Repeat("─", width)))
}
