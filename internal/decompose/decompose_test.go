package decompose

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/jcmexdev/multihop-creator/internal/core/faults"
)

type fakeModel struct {
	content  string
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, o := range options {
		o(&m.opts)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.content}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLLMDecompose(t *testing.T) {
	m := &fakeModel{content: `{"step1":"copy","step2":"design","step3":"code"}`}

	out, err := NewLLM(m).Decompose(context.Background(), "build a landing page")
	require.NoError(t, err)
	require.Equal(t, []string{"copy", "design", "code"}, out.Descriptions())

	require.Len(t, m.messages, 2)
	require.Equal(t, schema.ChatMessageTypeSystem, m.messages[0].Role)
	require.Equal(t, schema.ChatMessageTypeHuman, m.messages[1].Role)
	require.Equal(t, llms.TextPart("build a landing page"), m.messages[1].Parts[0])
	require.True(t, m.opts.JSONMode)
	require.InDelta(t, 0.7, m.opts.Temperature, 1e-9)
}

func TestLLMDecomposeFailures(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{"model error", &fakeModel{err: errors.New("rate limited")}},
		{"empty answer", &fakeModel{content: "  "}},
		{"not json", &fakeModel{content: "here are your steps"}},
		{"missing step", &fakeModel{content: `{"step1":"copy","step2":"design"}`}},
		{"blank step", &fakeModel{content: `{"step1":"copy","step2":" ","step3":"code"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLLM(tt.model).Decompose(context.Background(), "x")
			require.ErrorIs(t, err, faults.ErrDecomposition)
		})
	}
}

func TestParseToleratesCodeFence(t *testing.T) {
	out, err := Parse("```json\n{\"step1\":\"a\",\"step2\":\"b\",\"step3\":\"c\"}\n```")
	require.NoError(t, err)
	require.Equal(t, "b", out.Step2)
}

func TestStatic(t *testing.T) {
	out, err := NewStatic().Decompose(context.Background(), "anything")
	require.NoError(t, err)
	require.Equal(t, LandingPage, out)
	for _, d := range out.Descriptions() {
		require.NotEmpty(t, d)
	}
}
