package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/ai"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/infra/ai/prompt"
)

const (
	maxTokens = 4096

	ProviderGoogle = "google"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	googleBaseURL       = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultOllamaServer = "http://localhost:11434"
)

var defaultModels = map[string]string{
	ProviderGoogle: "gemini-2.5-flash",
	ProviderOpenAI: "gpt-4o-mini",
	ProviderOllama: "qwen3:8b",
}

// DefaultModel returns the model used for provider when none is configured.
func DefaultModel(provider string) string { return defaultModels[provider] }

// Config selects the provider behind the OpenAI-compatible API.
type Config struct {
	Provider     string
	APIKey       string
	Model        string
	BaseURL      string // overrides the provider endpoint
	OllamaServer string
	Timeout      time.Duration
	MaxTokens    int
}

type Client struct {
	*openai.Client
	Model     string
	MaxTokens int
	tracer    trace.Tracer
}

// NewClient builds a client for cfg.Provider. An empty provider means google.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderGoogle
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel(cfg.Provider)
	}

	var occ openai.ClientConfig
	switch cfg.Provider {
	case ProviderGoogle:
		occ = openai.DefaultConfig(cfg.APIKey)
		occ.BaseURL = googleBaseURL
	case ProviderOpenAI:
		occ = openai.DefaultConfig(cfg.APIKey)
	case ProviderOllama:
		// ollama gak butuh api key, tapi header tetap dikirim
		key := cfg.APIKey
		if key == "" {
			key = "ollama"
		}
		occ = openai.DefaultConfig(key)
		server := cfg.OllamaServer
		if server == "" {
			server = DefaultOllamaServer
		}
		occ.BaseURL = strings.TrimRight(server, "/") + "/v1"
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if cfg.BaseURL != "" {
		occ.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		occ.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	tokens := cfg.MaxTokens
	if tokens <= 0 {
		tokens = maxTokens
	}
	return &Client{
		Client:    openai.NewClientWithConfig(occ),
		Model:     model,
		MaxTokens: tokens,
		tracer:    otel.Tracer("github.com/bryanwahyu/maestro-analyzer/internal/infra/ai/openai"),
	}, nil
}

func (c *Client) SuggestThreats(ctx context.Context, req ai.ThreatRequest) (ai.ThreatResponse, error) {
	msg, err := prompt.Threat(req)
	if err != nil {
		return ai.ThreatResponse{}, err
	}
	var out ai.ThreatResponse
	err = c.complete(ctx, ai.FlowSuggestThreats, msg, &out,
		attribute.String("maestro.layer", req.LayerName))
	return out, err
}

func (c *Client) RecommendMitigation(ctx context.Context, req ai.MitigationRequest) (analysis.Mitigation, error) {
	msg, err := prompt.Mitigation(req)
	if err != nil {
		return analysis.Mitigation{}, err
	}
	var out analysis.Mitigation
	if err := c.complete(ctx, ai.FlowRecommendMitigation, msg, &out,
		attribute.String("maestro.layer", req.Layer)); err != nil {
		return analysis.Mitigation{}, err
	}
	if out.Recommendation == "" {
		return analysis.Mitigation{}, ai.ErrEmptyResponse
	}
	return out, nil
}

func (c *Client) ExecutiveSummary(ctx context.Context, req ai.SummaryRequest) (ai.SummaryResponse, error) {
	msg, err := prompt.Summary(req)
	if err != nil {
		return ai.SummaryResponse{}, err
	}
	var out ai.SummaryResponse
	err = c.complete(ctx, ai.FlowExecutiveSummary, msg, &out)
	return out, err
}

var mermaidFence = regexp.MustCompile("```mermaid\n|```")

func (c *Client) ArchitectureDiagram(ctx context.Context, req ai.DiagramRequest) (ai.DiagramResponse, error) {
	msg, err := prompt.Diagram(req)
	if err != nil {
		return ai.DiagramResponse{}, err
	}
	var out ai.DiagramResponse
	if err := c.complete(ctx, ai.FlowArchitectureDiagram, msg, &out); err != nil {
		return ai.DiagramResponse{}, err
	}
	out.MermaidCode = StripMermaidFence(out.MermaidCode)
	if out.MermaidCode == "" {
		return ai.DiagramResponse{}, ai.ErrNoMermaid
	}
	return out, nil
}

// StripMermaidFence removes ```mermaid code fences around a script.
func StripMermaidFence(s string) string {
	return strings.TrimSpace(mermaidFence.ReplaceAllString(s, ""))
}

func (c *Client) complete(ctx context.Context, flow string, msg prompt.Message, out any, attrs ...attribute.KeyValue) error {
	ctx, span := c.tracer.Start(ctx, "ai."+flow, trace.WithAttributes(
		append(attrs, attribute.String("maestro.flow", flow), attribute.String("llm.model", c.Model))...,
	))
	defer span.End()

	err := c.chat(ctx, flow, msg, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) chat(ctx context.Context, flow string, msg prompt.Message, out any) error {
	req := openai.ChatCompletionRequest{
		Model: c.Model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: msg.System},
			{Role: openai.ChatMessageRoleUser, Content: msg.User},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(c.Model) {
		req.MaxCompletionTokens = c.MaxTokens
	} else {
		req.MaxTokens = c.MaxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		if quotaExceeded(err) {
			return fmt.Errorf("%w: %v", ai.ErrQuotaExceeded, err)
		}
		return fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ai.ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return ai.ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(stripJSONFence(content)), out); err != nil {
		return fmt.Errorf("failed to parse %s response as json: %w", flow, err)
	}
	return nil
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func quotaExceeded(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

// beberapa model tetap bungkus json pakai ```json walau diminta json object
func stripJSONFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
