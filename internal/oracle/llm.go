package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const systemInstruction = "You are a legal assistant helping a lawyer identify relevant clauses quickly and accurately."

const promptTemplate = `The reviewer is working on the following paragraph of a draft, the User's Clause:

"""
%s
"""

Reference Document:

"""
%s
"""

Find the single excerpt of the Reference Document that best supports the User's Clause.
Classify it as GOOD_EVIDENCE, POTENTIAL_ISSUE_CURED or PARTIAL_MATCH.

Respond with exactly one JSON object using only these keys:
{
  "Type of match found": "GOOD_EVIDENCE" | "POTENTIAL_ISSUE_CURED" | "PARTIAL_MATCH" | "No Match",
  "Reference Clause": "the excerpt copied verbatim, or N/A when there is no match",
  "Note": "one or two sentences on why the excerpt matters"
}
Do not add any text outside the JSON object.`

// ModelOptions selects and authenticates the completion model.
type ModelOptions struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewModel builds a langchaingo model for the configured provider.
func NewModel(opts ModelOptions) (llms.Model, error) {
	switch strings.ToLower(opts.Provider) {
	case ProviderAnthropic, "":
		options := []anthropic.Option{anthropic.WithModel(opts.Model)}
		if opts.APIKey != "" {
			options = append(options, anthropic.WithToken(opts.APIKey))
		}
		if opts.BaseURL != "" {
			options = append(options, anthropic.WithBaseURL(opts.BaseURL))
		}
		return anthropic.New(options...)
	case ProviderOpenAI:
		options := []openai.Option{openai.WithModel(opts.Model)}
		if opts.APIKey != "" {
			options = append(options, openai.WithToken(opts.APIKey))
		}
		if opts.BaseURL != "" {
			options = append(options, openai.WithBaseURL(opts.BaseURL))
		}
		return openai.New(options...)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", opts.Provider)
	}
}

// LLMAnalyzer asks a completion model directly.
type LLMAnalyzer struct {
	model       llms.Model
	maxTokens   int
	temperature float64
}

func NewLLMAnalyzer(model llms.Model) *LLMAnalyzer {
	return &LLMAnalyzer{model: model, maxTokens: 1024, temperature: 0.3}
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, req Request) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemInstruction),
		llms.TextParts(llms.ChatMessageTypeHuman, BuildPrompt(req)),
	}
	resp, err := a.model.GenerateContent(ctx, messages,
		llms.WithMaxTokens(a.maxTokens),
		llms.WithTemperature(a.temperature),
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", ErrEmptyResponse
	}
	text := trimLeadingFence(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// BuildPrompt renders the matching prompt for one request.
func BuildPrompt(req Request) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(req.DraftText), strings.TrimSpace(req.ReferenceText))
}
