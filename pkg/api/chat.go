package api

import (
	"time"

	"github.com/google/uuid"
)

type ContextItem struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ChatMessage is the per-turn history entry sent to the completions endpoint.
type ChatMessage struct {
	Text    string        `json:"text"`
	AI      bool          `json:"ai"`
	Context []ContextItem `json:"context,omitempty"`
}

type CompletionRequest struct {
	Prompt     string        `json:"prompt"`
	Messages   []ChatMessage `json:"messages"`
	GptVersion string        `json:"gptVersion"`
}

type CompletionResponse struct {
	Response string        `json:"response"`
	Context  []ContextItem `json:"context"`
}

type ConversationSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	Selected     bool      `json:"selected"`
}

type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	SelectedID    *uuid.UUID            `json:"selected_id,omitempty"`
}

type CreateConversationResponse struct {
	ID uuid.UUID `json:"id"`
}

type MessageView struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Text      string        `json:"text"`
	HTML      string        `json:"html,omitempty"`
	AI        bool          `json:"ai"`
	Context   []ContextItem `json:"context"`
}

type ConversationView struct {
	ID        uuid.UUID     `json:"id"`
	Title     string        `json:"title"`
	CreatedAt time.Time     `json:"created_at"`
	Messages  []MessageView `json:"messages"`
}

type ConversationViewParams struct {
	Format string `schema:"format"`
}

type SendRequest struct {
	Prompt string `json:"prompt"`
}

type SendResponse struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	Message        MessageView `json:"message"`
}

type Notification struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusResponse struct {
	Thinking      bool           `json:"thinking"`
	Notifications []Notification `json:"notifications"`
}

type BootstrapParams struct {
	InitialMessage string `schema:"initialMessage"`
}

type BootstrapResponse struct {
	Injected bool `json:"injected"`
}

type TermsResponse struct {
	ShowTerms bool `json:"show_terms"`
}

type StarterPrompt struct {
	Title  string `json:"title" yaml:"title"`
	Prompt string `json:"prompt" yaml:"prompt"`
}
