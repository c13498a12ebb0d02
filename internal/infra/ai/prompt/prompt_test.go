package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/ai"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
)

func TestThreatPrompt(t *testing.T) {
	msg, err := Threat(ai.ThreatRequest{
		ArchitectureDescription: "Observer agent <calls> ProductDB",
		LayerName:               "Data Operations",
		LayerDescription:        "Vector stores & RAG",
	})
	require.NoError(t, err)
	assert.Contains(t, msg.User, "Observer agent <calls> ProductDB", "no html escaping")
	assert.Contains(t, msg.User, "**MAESTRO Layer to Analyze:** Data Operations")
	assert.Contains(t, msg.User, "Vector stores & RAG")
	assert.Contains(t, msg.System, `"threatAnalysis"`)
}

func TestMitigationPrompt(t *testing.T) {
	msg, err := Mitigation(ai.MitigationRequest{ThreatDescription: "prompt injection", Layer: "Agent Frameworks"})
	require.NoError(t, err)
	assert.Contains(t, msg.User, "Threat Description: prompt injection")
	assert.Contains(t, msg.User, "MAESTRO Layer: Agent Frameworks")
	for _, k := range []string{`"recommendation"`, `"reasoning"`, `"caveats"`} {
		assert.Contains(t, msg.System, k)
	}
}

func TestSummaryPromptIncludesEveryLayer(t *testing.T) {
	results := []analysis.LayerResult{
		{Name: "Foundation Models", State: analysis.Complete{
			Threat:     "model poisoning",
			Mitigation: analysis.Mitigation{Recommendation: "sign weights", Reasoning: "integrity"},
		}},
		{Name: "Data Operations", State: analysis.Failed{Threat: "rag leak"}},
		{Name: "Agent Frameworks"},
	}
	msg, err := Summary(ai.SummaryRequest{ArchitectureDescription: "arch", AnalysisResults: results})
	require.NoError(t, err)

	assert.Equal(t, 3, strings.Count(msg.User, "**Layer: "))
	assert.Contains(t, msg.User, "**Status: complete**")
	assert.Contains(t, msg.User, "**Status: error**")
	assert.Contains(t, msg.User, "**Status: pending**")
	assert.Contains(t, msg.User, "- **Recommendation:** sign weights")
	assert.Contains(t, msg.User, "rag leak")
	assert.Equal(t, 1, strings.Count(msg.User, "**Mitigation:**"))
	assert.Contains(t, msg.System, "cloudsecurityalliance.org")
}

func TestDiagramPrompt(t *testing.T) {
	msg, err := Diagram(ai.DiagramRequest{ArchitectureDescription: "two agents"})
	require.NoError(t, err)
	assert.Contains(t, msg.User, "two agents")
	assert.Contains(t, msg.User, "`graph TD`")
	assert.Contains(t, msg.System, `"mermaidCode"`)
}
