// Package decompose splits a free-text instruction into the three step
// descriptions of a multihop job: copywriting, then design, then coding.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/jcmexdev/multihop-creator/internal/core/entity"
	"github.com/jcmexdev/multihop-creator/internal/core/faults"
	"github.com/jcmexdev/multihop-creator/internal/core/ports"
)

const defaultTemperature = 0.7

const systemPrompt = `You split customer requests for an AI agent marketplace into exactly 3 sequential jobs. Each job is executed by a specialised agent, in this order:

1. COPYWRITING AGENT: produces written content (copy, text, documentation).
2. DESIGN AGENT: produces visual work (mockups, UI/UX, graphics) from the copy.
3. CODING AGENT: implements the result (websites, apps, scripts) from the design.

Rules:
- Every job description must be specific and actionable on its own.
- Later jobs build on the deliverables of earlier ones.
- Keep descriptions concise but include the context the agent needs.
- Answer with a JSON object with exactly the string fields step1, step2 and step3.

Example answer for "marketing material for a SaaS business":
{
  "step1": "Write landing page copy for a SaaS product aimed at small business owners: hero headline, value proposition, three features with short descriptions, a social proof section and a call to action. Professional but friendly tone, about 500 words.",
  "step2": "Design a high-fidelity landing page mockup from the provided copy with hero, feature grid, testimonials and call to action. Clean contemporary SaaS style in blue and white. Deliver a Figma file or high resolution images.",
  "step3": "Build the landing page design as a responsive website using HTML, CSS and JavaScript or React, with smooth scroll animations. Deploy it and provide the live URL."
}`

// LLM asks a chat model for the decomposition.
type LLM struct {
	model       llms.Model
	temperature float64
}

var _ ports.Decomposer = (*LLM)(nil)

func NewLLM(model llms.Model) *LLM {
	return &LLM{model: model, temperature: defaultTemperature}
}

// NewOpenAIModel builds an OpenAI-compatible chat model. baseURL may be empty.
func NewOpenAIModel(apiKey, model, baseURL string) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("decompose: init openai model: %w", err)
	}
	return llm, nil
}

func (d *LLM) Decompose(ctx context.Context, instruction string) (entity.Decomposition, error) {
	messages := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(instruction)},
		},
	}

	resp, err := d.model.GenerateContent(ctx, messages,
		llms.WithJSONMode(),
		llms.WithTemperature(d.temperature),
	)
	if err != nil {
		return entity.Decomposition{}, fmt.Errorf("%w: %v", faults.ErrDecomposition, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return entity.Decomposition{}, fmt.Errorf("%w: empty model response", faults.ErrDecomposition)
	}

	out, err := Parse(resp.Choices[0].Content)
	if err != nil {
		slog.WarnContext(ctx, "unusable decomposition", "error", err, "content", resp.Choices[0].Content)
		return entity.Decomposition{}, err
	}
	return out, nil
}

// Parse reads a model answer. Markdown code fences around the JSON are
// tolerated.
func Parse(content string) (entity.Decomposition, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out entity.Decomposition
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return entity.Decomposition{}, fmt.Errorf("%w: invalid JSON: %v", faults.ErrDecomposition, err)
	}
	for i, desc := range out.Descriptions() {
		if strings.TrimSpace(desc) == "" {
			return entity.Decomposition{}, fmt.Errorf("%w: step%d is missing", faults.ErrDecomposition, i+1)
		}
	}
	return out, nil
}
