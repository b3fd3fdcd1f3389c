// Package output renders CLI messages with optional terminal styling.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Level is the severity of a status line.
type Level string

// Status levels, shared with the web console banners.
const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Styles holds the lipgloss styles used by the renderer.
type Styles struct {
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Muted   lipgloss.Style
	Header  lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Success: r.NewStyle().Foreground(lipgloss.Color("2")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		Warning: r.NewStyle().Foreground(lipgloss.Color("3")),
		Info:    r.NewStyle().Foreground(lipgloss.Color("6")),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Header:  r.NewStyle().Bold(true).Underline(true),
	}
}

// Renderer writes results to out and status lines to errOut.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer, styling output only when out is a terminal.
func NewRenderer(out, errOut io.Writer) *Renderer {
	return NewRendererWithTTY(out, errOut, IsTerminal(out))
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool) *Renderer {
	lr := lipgloss.NewRenderer(out)
	if !isTTY {
		lr.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{out: out, errOut: errOut, isTTY: isTTY, styles: newStyles(lr)}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Writer returns the result writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// IsTTY reports whether output is styled.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Styles returns the renderer's styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Println writes a line of plain output.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted plain output.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Header writes a styled section title.
func (r *Renderer) Header(text string) {
	_, _ = fmt.Fprintln(r.out, r.styles.Header.Render(text))
}

// Status writes a styled status line to the error stream.
func (r *Renderer) Status(level Level, text string) {
	_, _ = fmt.Fprintln(r.errOut, r.style(level).Render(text))
}

// Success writes a success status line.
func (r *Renderer) Success(text string) { r.Status(LevelSuccess, text) }

// Error writes an error status line.
func (r *Renderer) Error(text string) { r.Status(LevelError, text) }

// Warning writes a warning status line.
func (r *Renderer) Warning(text string) { r.Status(LevelWarning, text) }

// Info writes an informational status line.
func (r *Renderer) Info(text string) { r.Status(LevelInfo, text) }

func (r *Renderer) style(level Level) lipgloss.Style {
	switch level {
	case LevelSuccess:
		return r.styles.Success
	case LevelError:
		return r.styles.Error
	case LevelWarning:
		return r.styles.Warning
	case LevelInfo:
		return r.styles.Info
	default:
		return r.styles.Muted
	}
}
