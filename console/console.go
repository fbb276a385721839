// Package console prints user facing progress and builds the process logger.
package console

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Colors.
var (
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
	Slate  = lipgloss.Color("#667085")
	Iris   = lipgloss.Color("#8B5CF6")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
)

// SummaryTitle opens the warning summary.
const SummaryTitle = "Things that may require your attention:"

// ColorProfile returns the color profile for w: Ascii when NO_COLOR is set,
// otherwise whatever the terminal behind w supports.
func ColorProfile(w io.Writer) termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	return termenv.NewOutput(w).EnvColorProfile()
}

// Printer writes styled lines to a writer.
type Printer struct {
	w io.Writer

	bold    lipgloss.Style
	title   lipgloss.Style
	warning lipgloss.Style
	ok      lipgloss.Style
	failed  lipgloss.Style
	faint   lipgloss.Style
}

// NewPrinter creates a Printer writing to w, os.Stdout when w is nil.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(ColorProfile(w))
	return &Printer{
		w:       w,
		bold:    r.NewStyle().Bold(true),
		title:   r.NewStyle().Bold(true).Foreground(Iris),
		warning: r.NewStyle().Bold(true).Foreground(Yellow),
		ok:      r.NewStyle().Foreground(Green),
		failed:  r.NewStyle().Bold(true).Foreground(Red),
		faint:   r.NewStyle().Foreground(Slate),
	}
}

func (p *Printer) line(s lipgloss.Style, format string, args ...any) {
	fmt.Fprintln(p.w, s.Render(fmt.Sprintf(format, args...)))
}

// Println writes an unstyled line.
func (p *Printer) Println(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Bold writes a bold line.
func (p *Printer) Bold(format string, args ...any) { p.line(p.bold, format, args...) }

// Title writes a section heading.
func (p *Printer) Title(format string, args ...any) { p.line(p.title, format, args...) }

// Warning writes a highlighted warning line.
func (p *Printer) Warning(format string, args ...any) { p.line(p.warning, format, args...) }

// Faint writes a dimmed line.
func (p *Printer) Faint(format string, args ...any) { p.line(p.faint, format, args...) }

// OK writes a success line prefixed with a check mark.
func (p *Printer) OK(format string, args ...any) {
	p.line(p.ok, Check+" "+format, args...)
}

// Cross writes a failure line prefixed with a cross.
func (p *Printer) Cross(format string, args ...any) {
	p.line(p.failed, Cross+" "+format, args...)
}

// Error writes err after a cross, followed by its causes dimmed.
func (p *Printer) Error(err error) {
	lines := ErrorLines(err)
	if len(lines) == 0 {
		return
	}
	p.Cross("%s", lines[0])
	for _, l := range lines[1:] {
		p.Faint("%s", l)
	}
}

// Summary writes the warnings block. Nothing is written without warnings.
func (p *Printer) Summary(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(p.w)
	p.Warning(SummaryTitle)
	fmt.Fprintln(p.w)
	for _, w := range warnings {
		p.Bold("%s", Warning+" "+w)
	}
	fmt.Fprintln(p.w)
}

// NewLogger returns a text logger writing to w, at Debug level when verbose
// and Info otherwise.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type messager interface {
	Message() string
}

// ErrorLines formats err followed by its causes. Errors built with zerr are
// unwrapped one message at a time; any other error ends the chain.
func ErrorLines(err error) []string {
	var messages []string
	for current := err; current != nil; {
		m, ok := current.(messager)
		if !ok {
			messages = append(messages, current.Error())
			break
		}
		messages = append(messages, m.Message())
		current = errors.Unwrap(current)
	}

	var lines []string
	for i, msg := range messages {
		switch i {
		case 0:
			lines = append(lines, "Error: "+msg)
		case 1:
			lines = append(lines, "  Caused by:", "    → "+msg)
		default:
			lines = append(lines, "    → "+msg)
		}
	}
	return lines
}
