package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	reply    string
	err      error
	prompts  []string
	opts     llms.CallOptions
	deadline bool
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, o := range options {
		o(&f.opts)
	}
	_, f.deadline = ctx.Deadline()
	for _, m := range messages {
		for _, p := range m.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				f.prompts = append(f.prompts, tc.Text)
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangChain_GenerateStructured(t *testing.T) {
	fm := &fakeModel{reply: "  {\"action\":\"send\"}\n"}
	lc := NewLangChain(fm, 5*time.Second)

	resp, err := lc.GenerateStructured(context.Background(), "extract this")
	require.NoError(t, err)
	assert.Equal(t, `{"action":"send"}`, resp.Text)
	assert.Equal(t, []string{"extract this"}, fm.prompts)
	assert.Equal(t, 0.0, fm.opts.Temperature)
	assert.True(t, fm.opts.JSONMode)
	assert.True(t, fm.deadline)
}

func TestLangChain_Errors(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		lc := NewLangChain(&fakeModel{err: errors.New("quota exceeded")}, 0)
		_, err := lc.GenerateStructured(context.Background(), "p")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("blank response", func(t *testing.T) {
		lc := NewLangChain(&fakeModel{reply: "   "}, 0)
		_, err := lc.GenerateStructured(context.Background(), "p")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("no timeout leaves context alone", func(t *testing.T) {
		fm := &fakeModel{reply: "{}"}
		_, err := NewLangChain(fm, 0).GenerateStructured(context.Background(), "p")
		require.NoError(t, err)
		assert.False(t, fm.deadline)
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	m, err := New(ctx, Config{Provider: ProviderNone, APIKey: "k"})
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = New(ctx, Config{Provider: ProviderGoogleAI})
	require.NoError(t, err)
	assert.Nil(t, m, "missing key disables the model")

	_, err = New(ctx, Config{Provider: "mystery", APIKey: "k"})
	assert.ErrorContains(t, err, "unknown provider")

	m, err = New(ctx, Config{Provider: "OpenAI", APIKey: "sk-test", BaseURL: "http://localhost:9999/v1"})
	require.NoError(t, err)
	assert.IsType(t, &LangChain{}, m)
}

func TestDefaultModel(t *testing.T) {
	assert.Equal(t, "gemini-1.5-flash", DefaultModel(ProviderGoogleAI))
	assert.NotEmpty(t, DefaultModel(ProviderOpenAI))
	assert.NotEmpty(t, DefaultModel(ProviderAnthropic))
	assert.Empty(t, DefaultModel("other"))
}
