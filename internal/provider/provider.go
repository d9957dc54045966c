// Package provider adapts transcript analysis onto interchangeable model
// backends (Bedrock, Gemini, OpenAI) behind one contract, with a shared
// daily cost ledger enforcing a spend ceiling.
package provider

import (
	"context"
	"strings"
	"time"
)

// AnalysisRequest carries one formatted analysis prompt.
type AnalysisRequest struct {
	Transcript string
	System     string
	User       string
}

// AnalysisResult is one provider invocation's output, handed to the
// extractor. Never persisted as-is.
type AnalysisResult struct {
	RawText        string        `json:"raw_text"`
	Provider       string        `json:"provider"`
	Model          string        `json:"model"`
	ProcessingTime time.Duration `json:"processing_time"`
	CostUSD        float64       `json:"cost_usd"`
	Timestamp      time.Time     `json:"timestamp"`
	Usage          TokenUsage    `json:"usage"`
}

// Provider analyzes transcripts and prices its own calls. Each
// implementation publishes its own per-unit rate; no cross-provider
// normalization is assumed.
type Provider interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
	EstimateCost(transcriptChars int) float64
	Name() string
}

// Rates price a call per thousand tokens, split by direction.
type Rates struct {
	InputPer1K  float64
	OutputPer1K float64
}

// charsPerToken is the rough character-to-token ratio used when the
// upstream response carries no usage numbers.
const charsPerToken = 4

// llmProvider is the single concrete Provider shape: a named LLMClient
// plus model, rate card and inference settings.
type llmProvider struct {
	name        string
	client      LLMClient
	model       string
	rates       Rates
	timeout     time.Duration
	temperature float32
	maxTokens   int32
}

// NewProvider wraps an LLMClient as a named Provider.
func NewProvider(name string, client LLMClient, model string, rates Rates, timeout time.Duration, temperature float32, maxTokens int32) Provider {
	if strings.TrimSpace(name) == "" {
		panic("provider: name required")
	}
	if client == nil {
		panic("provider: llm client required")
	}
	return &llmProvider{
		name:        name,
		client:      client,
		model:       model,
		rates:       rates,
		timeout:     timeout,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (p *llmProvider) Name() string { return p.name }

// EstimateCost projects the price of analyzing a transcript of the given
// length, assuming output roughly a quarter the size of the input.
func (p *llmProvider) EstimateCost(transcriptChars int) float64 {
	inputTokens := float64(transcriptChars) / charsPerToken
	outputTokens := inputTokens / 4
	return inputTokens/1000*p.rates.InputPer1K + outputTokens/1000*p.rates.OutputPer1K
}

// Analyze runs one completion under the provider's timeout. Upstream
// failures, including the timeout itself, surface as *Error.
func (p *llmProvider) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.client.Complete(ctx, LLMRequest{
		Model:       p.model,
		System:      []string{req.System},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: req.User}},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return nil, &Error{Provider: p.name, Err: err}
	}

	return &AnalysisResult{
		RawText:        resp.Text,
		Provider:       p.name,
		Model:          p.model,
		ProcessingTime: time.Since(start),
		CostUSD:        p.realizedCost(req, resp),
		Timestamp:      time.Now().UTC(),
		Usage:          resp.Usage,
	}, nil
}

// realizedCost prices the call from reported token usage, falling back
// to a character-based estimate when the backend reports none.
func (p *llmProvider) realizedCost(req AnalysisRequest, resp LLMResponse) float64 {
	if resp.Usage.TotalTokens > 0 {
		return float64(resp.Usage.InputTokens)/1000*p.rates.InputPer1K +
			float64(resp.Usage.OutputTokens)/1000*p.rates.OutputPer1K
	}
	return p.EstimateCost(len(req.System) + len(req.User))
}
