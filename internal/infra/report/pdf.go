package report

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // DecodeConfig
	_ "image/png"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
)

const (
	margin      = 30.0
	lineSpacing = 1.15

	Title       = "MAESTRO Threat Analysis Report"
	Attribution = "Developed by: DistributedApps.ai"
	Disclaimer  = "This report is generated by an AI assistant based on the MAESTRO framework. AI can make mistakes; always double-check threats and mitigations with a security expert."

	// MethodologySummary is printed when the run has no executive summary.
	MethodologySummary = "This report applies the MAESTRO (Multi-Agent Environment, Security, Threat, Risk, and Outcome) framework for agentic AI threat modeling. MAESTRO provides a structured, seven-layer approach to systematically analyze and mitigate security risks in multi-agent systems. It addresses both traditional security vulnerabilities and novel threats arising from agentic factors like autonomy, non-determinism, and complex agent-to-agent interactions. The following sections detail the analysis for each layer based on the provided system architecture.\n\nFor more details on the framework, visit: https://cloudsecurityalliance.org/blog/2025/02/06/agentic-ai-threat-modeling-framework-maestro"
)

var markdownMarkers = regexp.MustCompile("###\\s|##\\s|#\\s|\\*\\*|`")

// StripMarkdown removes heading, bold and code markers from AI text.
func StripMarkdown(s string) string {
	return markdownMarkers.ReplaceAllString(s, "")
}

// Assembler renders runs into Letter-sized PDF documents.
type Assembler struct {
	Logger *slog.Logger
	Author string
	Now    func() time.Time
}

func NewAssembler(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{Logger: logger, Author: "MAESTRO Threat Analyzer", Now: time.Now}
}

// Assemble writes the PDF for run into w.
func (a *Assembler) Assemble(run *analysis.Run, w io.Writer) error {
	pdf, err := a.Build(run)
	if err != nil {
		return err
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// Build lays out the whole document without writing it.
func (a *Assembler) Build(run *analysis.Run) (*fpdf.Fpdf, error) {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.SetTitle(Title, true)
	pdf.SetAuthor(a.Author, true)
	if a.Now != nil {
		pdf.SetCreationDate(a.Now())
	}
	pdf.AddPage()

	d := &doc{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	d.pageW, d.pageH = pdf.GetPageSize()
	d.y = margin

	// header
	d.text(Title, style{size: 20, bold: true, align: "C"})
	d.y += 10
	d.text(Attribution, style{size: 8, color: 150})
	d.y += 12
	d.text(Disclaimer, style{size: 8, color: 100})
	d.y += 20

	if run.Architecture != "" {
		d.text("Analyzed System Architecture", style{size: 16, bold: true})
		d.y += 6
		d.text(run.Architecture, style{size: 10, color: 80})
		d.y += 10
	}

	if run.Diagram != nil && (run.Diagram.Markup != "" || len(run.Diagram.Image) > 0) {
		a.diagram(d, run)
	}

	d.text("Executive Summary", style{size: 16, bold: true})
	d.y += 6
	summary := run.Summary
	if summary == "" {
		summary = MethodologySummary
	}
	d.text(StripMarkdown(summary), style{size: 10, color: 80})
	d.y += 16

	for _, l := range run.Layers {
		d.layer(l)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return pdf, nil
}

func (a *Assembler) diagram(d *doc, run *analysis.Run) {
	d.y += 10
	d.ensure(200)
	d.text("Architecture Diagram", style{size: 16, bold: true})
	d.y += 6

	dg := run.Diagram
	if len(dg.Image) > 0 {
		err := d.image(dg.Image, dg.ImageType)
		if err == nil {
			return
		}
		a.Logger.Warn("diagram image unusable, rendering markup instead", "run_id", run.ID, "err", err)
	}
	if dg.Markup != "" {
		d.text(dg.Markup, style{size: 8, mono: true, color: 60, x: margin + 8})
		d.y += 20
	}
}

type style struct {
	size  float64
	bold  bool
	ital  bool
	mono  bool
	color int
	x     float64
	align string
}

type doc struct {
	pdf          *fpdf.Fpdf
	tr           func(string) string
	pageW, pageH float64
	y            float64
	images       int
}

func (d *doc) ensure(h float64) {
	if d.y+h > d.pageH-margin {
		d.pdf.AddPage()
		d.y = margin
	}
}

// text wraps s to the usable width and writes it line by line, breaking
// pages as needed.
func (d *doc) text(s string, st style) {
	family, fs := "Helvetica", ""
	if st.mono {
		family = "Courier"
	}
	if st.bold {
		fs += "B"
	}
	if st.ital {
		fs += "I"
	}
	d.pdf.SetFont(family, fs, st.size)
	d.pdf.SetTextColor(st.color, st.color, st.color)

	x := st.x
	if x == 0 {
		x = margin
	}
	width := d.pageW - margin - x
	lh := st.size * lineSpacing
	align := st.align
	if align == "" {
		align = "L"
	}

	for _, para := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		for _, line := range d.wrap(d.tr(para), width) {
			d.ensure(lh)
			d.pdf.SetXY(x, d.y)
			d.pdf.CellFormat(width, lh, line, "", 0, align, false, 0, "")
			d.y += lh
		}
	}
}

// wrap works on translated single-byte text, so byte slicing is safe.
func (d *doc) wrap(s string, width float64) []string {
	var lines []string
	cur := ""
	for _, word := range strings.Split(s, " ") {
		for d.pdf.GetStringWidth(word) > width {
			if cur != "" {
				lines = append(lines, cur)
				cur = ""
			}
			n, w := 0, 0.0
			for n < len(word)-1 {
				w += d.pdf.GetStringWidth(word[n : n+1])
				if w > width {
					break
				}
				n++
			}
			n = max(n, 1)
			lines = append(lines, word[:n])
			word = word[n:]
		}
		switch {
		case cur == "":
			cur = word
		case d.pdf.GetStringWidth(cur+" "+word) <= width:
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = word
		}
	}
	return append(lines, cur)
}

func (d *doc) image(img []byte, kind string) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("image has no size")
	}
	if kind == "" {
		kind = strings.ToUpper(format)
	}
	if kind == "JPEG" {
		kind = "JPG"
	}

	usable := d.pageW - 2*margin
	w := usable * 0.8
	h := float64(cfg.Height) * w / float64(cfg.Width)
	if limit := d.pageH - 2*margin; h > limit {
		w, h = w*limit/h, limit
	}
	d.ensure(h)

	d.images++
	name := fmt.Sprintf("diagram-%d", d.images)
	opts := fpdf.ImageOptions{ImageType: kind}
	d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img))
	if err := d.pdf.Error(); err != nil {
		// error fpdf itu sticky, reset supaya fallback markup tetap jalan
		d.pdf.ClearError()
		return err
	}
	d.pdf.ImageOptions(name, margin+usable*0.1, d.y, w, h, false, opts, 0, "")
	d.y += h + 20
	return nil
}

func (d *doc) layer(l analysis.LayerResult) {
	d.ensure(60)
	d.pdf.SetDrawColor(220, 220, 220)
	d.pdf.Line(margin, d.y, d.pageW-margin, d.y)
	d.y += 16

	d.text(l.Name, style{size: 14, bold: true})
	d.y += 4

	switch l.Status() {
	case analysis.StatusPending, analysis.StatusAnalyzing:
		d.text("Pending AI investigation...", style{size: 10, ital: true, color: 150})
	case analysis.StatusError:
		d.text("An error occurred during analysis.", style{size: 10, ital: true, color: 200})
	case analysis.StatusComplete:
		m, _ := l.Mitigation()
		d.text("Identified Threats", style{size: 12, bold: true})
		d.text(StripMarkdown(l.Threat()), style{size: 10, color: 80})
		d.y += 8

		d.text("Mitigation Strategy", style{size: 12, bold: true})
		d.labelled("Recommendation:", m.Recommendation)
		d.y += 4
		d.labelled("Reasoning:", m.Reasoning)
		d.y += 4
		d.labelled("Caveats:", m.Caveats)
	}
	d.y += 10
}

func (d *doc) labelled(label, value string) {
	d.text(label, style{size: 10, bold: true, x: margin + 4})
	d.text(value, style{size: 10, color: 80, x: margin + 8})
}
