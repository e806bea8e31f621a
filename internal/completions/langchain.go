package completions

import (
	"context"
	"fmt"

	"sciphi-chat/pkg/api"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// LangChainProvider talks to the same OpenAI-compatible API through langchaingo.
// langchaingo only surfaces the message content, so replies carry no context.
type LangChainProvider struct {
	llm *openai.LLM
}

func NewLangChainProvider(apiKey, baseURL string) (*LangChainProvider, error) {
	opts := []openai.Option{openai.WithToken(apiKey)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating langchain openai client: %w", err)
	}
	return &LangChainProvider{llm: llm}, nil
}

func (p *LangChainProvider) Complete(ctx context.Context, model string, turns []Turn) (Reply, error) {
	messages := make([]llms.MessageContent, len(turns))
	for i, turn := range turns {
		role := schema.ChatMessageTypeHuman
		if turn.Role == RoleAssistant {
			role = schema.ChatMessageTypeAI
		}
		messages[i] = llms.TextParts(role, turn.Content)
	}

	resp, err := p.llm.GenerateContent(ctx, messages,
		llms.WithModel(model),
		llms.WithTemperature(Temperature),
		llms.WithMaxTokens(MaxTokens),
	)
	if err != nil {
		return Reply{}, fmt.Errorf("langchain generate content failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, ErrEmptyReply
	}

	return Reply{Text: resp.Choices[0].Content, Context: []api.ContextItem{}}, nil
}
