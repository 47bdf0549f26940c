// Package progress draws single-line progress and backoff notices on an
// interactive terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	ColorAccent = lipgloss.Color("#7D56F4")
	ColorWarn   = lipgloss.Color("#FF6600")
	ColorMuted  = lipgloss.Color("#666666")

	StepStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	BackoffStyle = lipgloss.NewStyle().
			Foreground(ColorWarn)

	RetryStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)
)

var spinner = []string{"|", "/", "-", "\\"}

// Printer implements secure.Observer and report.Progress. When disabled
// every method is a no-op.
type Printer struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	frame   int
	width   int
}

// New returns a Printer writing to w, enabled only when w is a terminal.
func New(w io.Writer) *Printer {
	enabled := false
	if f, ok := w.(*os.File); ok {
		fd := f.Fd()
		enabled = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	return &Printer{w: w, enabled: enabled}
}

// NewForced returns an enabled Printer regardless of the writer type.
func NewForced(w io.Writer) *Printer {
	return &Printer{w: w, enabled: true}
}

// Enabled reports whether output is drawn.
func (p *Printer) Enabled() bool { return p != nil && p.enabled }

func (p *Printer) line(s string) {
	pad := ""
	if n := lipgloss.Width(s); n < p.width {
		pad = strings.Repeat(" ", p.width-n)
	}
	fmt.Fprintf(p.w, "\r%s%s", s, pad)
	p.width = lipgloss.Width(s)
}

// Step draws "Retrieving N of M..." with a spinner frame.
func (p *Printer) Step(done, total int) {
	if !p.Enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	frame := spinner[p.frame%len(spinner)]
	p.frame++
	p.line(StepStyle.Render(fmt.Sprintf("%s Retrieving %d of %d...", frame, done, total)))
}

// Done clears the progress line.
func (p *Printer) Done() {
	if !p.Enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.width > 0 {
		p.line("")
		fmt.Fprint(p.w, "\r")
		p.width = 0
	}
}

// OnBackoff shows why the session is waiting and for how long.
func (p *Printer) OnBackoff(status int, reason string, wait time.Duration) {
	if !p.Enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.line(BackoffStyle.Render(fmt.Sprintf("%d %s, waiting %s", status, reason, wait)))
}

// OnRetry marks the retried request with a dot.
func (p *Printer) OnRetry() {
	if !p.Enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, RetryStyle.Render("."))
	p.width++
}
