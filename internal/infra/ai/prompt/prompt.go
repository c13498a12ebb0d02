package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/ai"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
)

// Message is one rendered system/user prompt pair.
type Message struct {
	System string
	User   string
}

// JSON output contract appended to every system prompt, the client asks
// for a JSON-object response.
const (
	threatSchema     = `Respond with one valid JSON object only (no commentary, no code fences): {"threatAnalysis": "<markdown string>"}`
	mitigationSchema = `Respond with one valid JSON object only (no commentary, no code fences): {"recommendation": "<string>", "reasoning": "<string>", "caveats": "<string>"}`
	summarySchema    = `Respond with one valid JSON object only (no commentary, no code fences): {"summary": "<markdown string>"}`
	diagramSchema    = "Respond with one valid JSON object only: {\"mermaidCode\": \"<mermaid script enclosed in a ```mermaid code block>\"}"
)

var threatTmpl = template.Must(template.New("threat").Parse(`Your task is to generate a threat analysis for the specified MAESTRO layer.

**System Architecture Description:**
{{.ArchitectureDescription}}

**MAESTRO Layer to Analyze:** {{.LayerName}}
**Layer Description:** {{.LayerDescription}}

**Agentic Factors to Consider:**
- Non-Determinism
- Autonomy
- No Trust Boundary
- Dynamic Identity and Access Control
- Agent to Agent interactions, delegations, and communication complexity

**Instructions:**
1.  Analyze the provided system architecture and the MAESTRO layer description.
2.  Generate a threat analysis structured into two categories, formatted as Markdown.
3.  **Category 1: Traditional Threats:** Identify inherent security threats for this layer, ignoring agentic factors. For example, for 'Foundation Models', this could include model poisoning, data leakage, or member inference attacks.
4.  **Category 2: Agentic Threats:** Reason about how each of the "Agentic Factors to Consider" could introduce new threats or exacerbate existing ones within this specific layer. If a factor applies, describe the potential threat. If it does not apply, you can state that.
5.  Format the entire output as a single Markdown string. Use headings, bold text, and lists to make the report clear and readable.
`))

var mitigationTmpl = template.Must(template.New("mitigation").Parse(`For the threat described below, provide a recommendation for mitigation, the reasoning behind that recommendation, and any caveats or limitations of the strategy.

Threat Description: {{.ThreatDescription}}
MAESTRO Layer: {{.Layer}}

Ensure the response includes the recommendation, reasoning, and caveats, clearly and concisely.
`))

var summaryTmpl = template.Must(template.New("summary").Parse(`**Analyzed Architecture:**
{{.ArchitectureDescription}}

**Analysis Results:**
{{range .Layers}}---
**Layer: {{.Name}}**
**Status: {{.Status}}**
{{if .Threat}}**Threats:**
{{.Threat}}
{{end}}{{if .Mitigation}}**Mitigation:**
- **Recommendation:** {{.Mitigation.Recommendation}}
- **Reasoning:** {{.Mitigation.Reasoning}}
{{end}}{{end}}
Based on the provided details, generate the executive summary.`))

var diagramTmpl = template.Must(template.New("diagram").Parse("**System Description:**\n{{.ArchitectureDescription}}\n\n" +
	"**Instructions:**\n" +
	"1.  Generate a `graph TD` (Top-Down) diagram.\n" +
	"2.  Keep the syntax simple. Use node IDs and text labels (e.g., `A[Agent]`).\n" +
	"3.  Use simple arrow connectors like `-->` for interactions.\n" +
	"4.  **Crucially, DO NOT use parentheses, brackets, or any other special characters in node text labels.** For example, use 'Agent A' NOT 'Agent A (Observer)'. This is to avoid rendering errors.\n" +
	"5.  Represent the key components (agents, services, databases) and their relationships.\n" +
	"6.  The Mermaid code must be enclosed in a Markdown code block like this:\n" +
	"```mermaid\ngraph TD;\n    Node1[Label One] --> Node2[Label Two];\n```\n"))

// Threat builds the prompt for one layer's threat analysis.
func Threat(req ai.ThreatRequest) (Message, error) {
	return render(threatTmpl, req,
		"You are a security analyst specializing in identifying potential security vulnerabilities in multi-agent systems, with a focus on the MAESTRO architecture.",
		threatSchema)
}

// Mitigation builds the prompt for the mitigation of one threat text.
func Mitigation(req ai.MitigationRequest) (Message, error) {
	return render(mitigationTmpl, req,
		"You are a cybersecurity expert providing mitigation strategies for identified threats in a MAESTRO architecture.",
		mitigationSchema)
}

type summaryLayer struct {
	Name       string
	Status     analysis.Status
	Threat     string
	Mitigation *analysis.Mitigation
}

// Summary builds the executive summary prompt over every layer result,
// pending and failed layers included.
func Summary(req ai.SummaryRequest) (Message, error) {
	view := struct {
		ArchitectureDescription string
		Layers                  []summaryLayer
	}{ArchitectureDescription: req.ArchitectureDescription}
	for _, l := range req.AnalysisResults {
		sl := summaryLayer{Name: l.Name, Status: l.Status(), Threat: l.Threat()}
		if m, ok := l.Mitigation(); ok {
			sl.Mitigation = &m
		}
		view.Layers = append(view.Layers, sl)
	}
	return render(summaryTmpl, view,
		`You are a principal security analyst. Your task is to write a high-level executive summary for a MAESTRO threat analysis report.

The summary should:
1.  Briefly acknowledge the analyzed architecture.
2.  Highlight the most critical threats identified across all layers.
3.  Mention the key mitigation themes or the most important recommended actions.
4.  Conclude with a statement about the importance of a defense-in-depth strategy.
5.  Be concise, professional, and suitable for a leadership audience.
6.  Format the summary as a single Markdown string.
7.  Include a link to the MAESTRO framework: https://cloudsecurityalliance.org/blog/2025/02/06/agentic-ai-threat-modeling-framework-maestro`,
		summarySchema)
}

// Diagram builds the Mermaid diagram prompt.
func Diagram(req ai.DiagramRequest) (Message, error) {
	return render(diagramTmpl, req,
		"You are an expert in system architecture and the Mermaid diagramming syntax. Your task is to convert a system description into a simplified Mermaid script.",
		diagramSchema)
}

func render(t *template.Template, data any, role, schema string) (Message, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return Message{System: role + "\n\n" + schema, User: buf.String()}, nil
}
