package completions

import (
	"context"
	"errors"
	"fmt"

	"sciphi-chat/pkg/api"

	"github.com/tidwall/gjson"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	Temperature = 0.2
	MaxTokens   = 16348

	ClientOpenAI    = "openai"
	ClientLangChain = "langchain"
)

var ErrEmptyReply = errors.New("upstream returned no completion")

// Turn is one entry of the dialogue sent upstream.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Reply struct {
	Text    string
	Context []api.ContextItem
}

// Provider sends a dialogue to an OpenAI-compatible chat completion API.
type Provider interface {
	Complete(ctx context.Context, model string, turns []Turn) (Reply, error)
}

type ProviderConfig struct {
	Client  string
	APIKey  string
	BaseURL string
}

func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Client {
	case "", ClientOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	case ClientLangChain:
		return NewLangChainProvider(cfg.APIKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported llm client '%s'", cfg.Client)
	}
}

// parseReply reads a raw chat completion body. The SciPhi API puts the reply in
// a top level "completion" field alongside the retrieved "context"; standard
// OpenAI responses only carry choices.
func parseReply(raw string) (Reply, error) {
	text := gjson.Get(raw, "completion")
	if !text.Exists() {
		text = gjson.Get(raw, "choices.0.message.content")
	}
	if !text.Exists() {
		return Reply{}, ErrEmptyReply
	}

	return Reply{Text: text.String(), Context: parseContext(gjson.Get(raw, "context"))}, nil
}

func parseContext(result gjson.Result) []api.ContextItem {
	items := []api.ContextItem{}
	if !result.IsArray() {
		return items
	}
	result.ForEach(func(_, item gjson.Result) bool {
		items = append(items, api.ContextItem{
			Title: item.Get("title").String(),
			Text:  item.Get("text").String(),
		})
		return true
	})
	return items
}
