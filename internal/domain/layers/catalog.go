package layers

import "slices"

// Layer is one entry of the MAESTRO seven-layer checklist.
type Layer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var catalog = []Layer{
	{
		ID:          "foundation-models",
		Name:        "Foundation Models",
		Description: "Core AI models (e.g., large language models, custom-trained AI).",
	},
	{
		ID:          "data-operations",
		Name:        "Data Operations",
		Description: "Data handling for agents, including storage, processing, and vector embeddings.",
	},
	{
		ID:          "agent-frameworks",
		Name:        "Agent Frameworks",
		Description: "Software frameworks and APIs used to create, orchestrate, and manage agents.",
	},
	{
		ID:          "deployment-infrastructure",
		Name:        "Deployment & Infrastructure",
		Description: "Servers, networks, containers, and the underlying resources hosting agents and APIs.",
	},
	{
		ID:          "evaluation-observability",
		Name:        "Evaluation & Observability",
		Description: "Systems to monitor, evaluate, and debug agent behavior.",
	},
	{
		ID:          "security-compliance",
		Name:        "Security & Compliance",
		Description: "Security controls and compliance measures for the entire agent system.",
	},
	{
		ID:          "agent-ecosystem",
		Name:        "Agent Ecosystem",
		Description: "The broader environment where multiple agents interact, collaborate, and potentially compete.",
	},
}

// All returns the catalog in analysis order.
func All() []Layer {
	return slices.Clone(catalog)
}

// Find looks a layer up by id.
func Find(id string) (Layer, bool) {
	for _, l := range catalog {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}
