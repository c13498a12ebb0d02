package ai

import (
	"context"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
)

// Flow names used for tracing, metrics and error context.
const (
	FlowSuggestThreats      = "suggestThreatsForLayer"
	FlowRecommendMitigation = "recommendMitigations"
	FlowExecutiveSummary    = "generateExecutiveSummary"
	FlowArchitectureDiagram = "generateArchitectureDiagram"
)

type ThreatRequest struct {
	ArchitectureDescription string `json:"architectureDescription"`
	LayerName               string `json:"layerName"`
	LayerDescription        string `json:"layerDescription"`
}

type ThreatResponse struct {
	ThreatAnalysis string `json:"threatAnalysis"`
}

type MitigationRequest struct {
	ThreatDescription string `json:"threatDescription"`
	Layer             string `json:"layer"`
}

type SummaryRequest struct {
	ArchitectureDescription string                 `json:"architectureDescription"`
	AnalysisResults         []analysis.LayerResult `json:"analysisResults"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
}

type DiagramRequest struct {
	ArchitectureDescription string `json:"architectureDescription"`
}

type DiagramResponse struct {
	MermaidCode string `json:"mermaidCode"`
}

// Client is the outbound port to the text-generation provider.
type Client interface {
	SuggestThreats(ctx context.Context, req ThreatRequest) (ThreatResponse, error)
	RecommendMitigation(ctx context.Context, req MitigationRequest) (analysis.Mitigation, error)
	ExecutiveSummary(ctx context.Context, req SummaryRequest) (SummaryResponse, error)
	ArchitectureDiagram(ctx context.Context, req DiagramRequest) (DiagramResponse, error)
}
