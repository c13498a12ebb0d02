package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/ai"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
)

type captured struct {
	Model               string `json:"model"`
	MaxTokens           int    `json:"max_tokens"`
	MaxCompletionTokens int    `json:"max_completion_tokens"`
	ResponseFormat      struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeLLM answers every chat completion with content and records the request.
func fakeLLM(t *testing.T, status int, content string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, got))
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"requests"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  got.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newTestClient(t *testing.T, srv *httptest.Server, model string) *Client {
	t.Helper()
	c, err := NewClient(Config{Provider: ProviderOpenAI, APIKey: "k", Model: model, BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	return c
}

func TestSuggestThreats(t *testing.T) {
	srv, got := fakeLLM(t, http.StatusOK, `{"threatAnalysis":"## Traditional Threats\n- poisoning"}`)
	c := newTestClient(t, srv, "gpt-4o-mini")

	res, err := c.SuggestThreats(context.Background(), ai.ThreatRequest{
		ArchitectureDescription: "arch",
		LayerName:               "Foundation Models",
		LayerDescription:        "core models",
	})
	require.NoError(t, err)
	assert.Equal(t, "## Traditional Threats\n- poisoning", res.ThreatAnalysis)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	assert.Equal(t, maxTokens, got.MaxTokens)
	assert.Zero(t, got.MaxCompletionTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "Foundation Models")
}

func TestReasoningModelUsesCompletionTokens(t *testing.T) {
	srv, got := fakeLLM(t, http.StatusOK, `{"summary":"ok"}`)
	c := newTestClient(t, srv, "o3-mini")

	_, err := c.ExecutiveSummary(context.Background(), ai.SummaryRequest{ArchitectureDescription: "arch"})
	require.NoError(t, err)
	assert.Equal(t, maxTokens, got.MaxCompletionTokens)
	assert.Zero(t, got.MaxTokens)
}

func TestRecommendMitigation(t *testing.T) {
	srv, _ := fakeLLM(t, http.StatusOK, "```json\n{\"recommendation\":\"r\",\"reasoning\":\"why\",\"caveats\":\"c\"}\n```")
	c := newTestClient(t, srv, "")

	m, err := c.RecommendMitigation(context.Background(), ai.MitigationRequest{ThreatDescription: "t", Layer: "L"})
	require.NoError(t, err)
	assert.Equal(t, "r", m.Recommendation)
	assert.Equal(t, "why", m.Reasoning)
	assert.Equal(t, "c", m.Caveats)
	assert.Equal(t, "gpt-4o-mini", c.Model)
}

func TestArchitectureDiagramStripsFence(t *testing.T) {
	srv, _ := fakeLLM(t, http.StatusOK, `{"mermaidCode":"`+"```mermaid\\ngraph TD;\\n A --> B;\\n```"+`"}`)
	c := newTestClient(t, srv, "")

	res, err := c.ArchitectureDiagram(context.Background(), ai.DiagramRequest{ArchitectureDescription: "x"})
	require.NoError(t, err)
	assert.Equal(t, "graph TD;\n A --> B;", res.MermaidCode)
}

func TestArchitectureDiagramEmpty(t *testing.T) {
	srv, _ := fakeLLM(t, http.StatusOK, "{\"mermaidCode\":\"```mermaid\\n```\"}")
	c := newTestClient(t, srv, "")

	_, err := c.ArchitectureDiagram(context.Background(), ai.DiagramRequest{ArchitectureDescription: "x"})
	assert.ErrorIs(t, err, ai.ErrNoMermaid)
}

func TestErrorsClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
		code    failure.Code
	}{
		{"rate limited", http.StatusTooManyRequests, "", failure.CodeAIRateLimitExceeded},
		{"unavailable", http.StatusServiceUnavailable, "", failure.CodeAIServiceUnavailable},
		{"not json", http.StatusOK, "sorry, I cannot", failure.CodeAIInvalidResponse},
		{"empty", http.StatusOK, "", failure.CodeAIInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeLLM(t, tt.status, tt.content)
			c := newTestClient(t, srv, "")

			_, err := c.SuggestThreats(context.Background(), ai.ThreatRequest{LayerName: "L"})
			require.Error(t, err)
			fe := ai.Classify(err, ai.FlowSuggestThreats, nil)
			assert.Equal(t, tt.code, fe.Code, err.Error())
		})
	}
}

func TestQuotaSentinel(t *testing.T) {
	srv, _ := fakeLLM(t, http.StatusTooManyRequests, "")
	c := newTestClient(t, srv, "")

	_, err := c.ExecutiveSummary(context.Background(), ai.SummaryRequest{})
	assert.True(t, errors.Is(err, ai.ErrQuotaExceeded))
}

func TestNewClientProviders(t *testing.T) {
	c, err := NewClient(Config{APIKey: "g"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", c.Model)

	c, err = NewClient(Config{Provider: ProviderOllama})
	require.NoError(t, err)
	assert.Equal(t, "qwen3:8b", c.Model)

	c, err = NewClient(Config{Provider: ProviderOpenAI, Model: "gpt-4.1"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", c.Model)

	_, err = NewClient(Config{Provider: "anthropic"})
	assert.Error(t, err)
}

func TestStripMermaidFence(t *testing.T) {
	assert.Equal(t, "graph TD;", StripMermaidFence("```mermaid\ngraph TD;\n```"))
	assert.Equal(t, "graph TD;", StripMermaidFence("  graph TD;  "))
}
