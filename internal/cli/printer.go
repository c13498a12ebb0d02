package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
)

// printer writes run progress, colored only when w is a terminal.
type printer struct {
	w     io.Writer
	color bool

	title lipgloss.Style
	ok    lipgloss.Style
	fail  lipgloss.Style
	warn  lipgloss.Style
	dim   lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:     w,
		color: isTerminal(w),
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		fail:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		dim:   lipgloss.NewStyle().Faint(true),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *printer) paint(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *printer) Warn(msg string) {
	fmt.Fprintln(p.w, p.paint(p.warn, "! "+msg))
}

// Event prints one progress line.
func (p *printer) Event(ev domain.Event) {
	switch ev.Type {
	case domain.EventLog:
		if ev.Log == nil {
			return
		}
		fmt.Fprintf(p.w, "%s %s\n", p.paint(p.dim, ev.Log.Time.Format("15:04:05")), ev.Log.Message)
	case domain.EventLayer:
		if ev.Layer != nil {
			p.layer(*ev.Layer)
		}
	case domain.EventSummary:
		fmt.Fprintln(p.w, p.paint(p.ok, "✓ Executive summary ready"))
	case domain.EventDiagram:
		fmt.Fprintln(p.w, p.paint(p.ok, "✓ Architecture diagram ready"))
	}
}

func (p *printer) layer(l domain.LayerResult) {
	switch l.Status() {
	case domain.StatusAnalyzing:
		fmt.Fprintf(p.w, "  → %s\n", l.Name)
	case domain.StatusComplete:
		fmt.Fprintln(p.w, p.paint(p.ok, "  ✓ "+l.Name))
	case domain.StatusError:
		reason := "interrupted"
		if fe := l.Err(); fe != nil {
			reason = fe.UserMessage
		}
		fmt.Fprintln(p.w, p.paint(p.fail, fmt.Sprintf("  ✗ %s: %s", l.Name, reason)))
	}
}

// Result prints the final run outcome and its summary.
func (p *printer) Result(run *domain.Run) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.paint(p.title, "MAESTRO Threat Analysis"))
	style := p.ok
	if run.Status != domain.RunCompleted {
		style = p.warn
	}
	fmt.Fprintln(p.w, p.paint(style, fmt.Sprintf("%s: %d/%d layers complete", run.Status, run.CompletedLayers(), len(run.Layers))))
	if run.Summary != "" {
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, run.Summary)
	}
	if run.Diagram != nil && run.Diagram.Markup != "" {
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, p.paint(p.title, "Architecture diagram (Mermaid)"))
		fmt.Fprintln(p.w, run.Diagram.Markup)
	}
}
