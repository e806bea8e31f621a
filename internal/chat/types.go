package chat

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"sciphi-chat/pkg/api"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

const (
	DefaultTitle = "New conversation"

	titleMaxRunes = 30
	titleEllipsis = "..."
)

type Message struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"createdAt"`
	Text      string            `json:"text"`
	AI        bool              `json:"ai"`
	Context   []api.ContextItem `json:"context"`
}

func NewUserMessage(text string) Message {
	return newMessage(text, false, nil)
}

func NewAssistantMessage(text string, context []api.ContextItem) Message {
	return newMessage(text, true, context)
}

func newMessage(text string, ai bool, context []api.ContextItem) Message {
	now := time.Now().UTC()
	if context == nil {
		context = []api.ContextItem{}
	}
	return Message{
		// The millisecond timestamp alone collides for messages created back to back.
		ID:        fmt.Sprintf("%d-%s", now.UnixMilli(), shortuuid.New()[:8]),
		CreatedAt: now,
		Text:      text,
		AI:        ai,
		Context:   context,
	}
}

func (m Message) toChatMessage() api.ChatMessage {
	msg := api.ChatMessage{Text: m.Text, AI: m.AI}
	if len(m.Context) > 0 {
		msg.Context = m.Context
	}
	return msg
}

type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
}

func newConversation() Conversation {
	return Conversation{
		ID:        uuid.New(),
		Title:     DefaultTitle,
		CreatedAt: time.Now().UTC(),
		Messages:  []Message{},
	}
}

func (c Conversation) clone() Conversation {
	c.Messages = slices.Clone(c.Messages)
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return c
}

func (c Conversation) FindMessage(id string) (Message, bool) {
	for _, m := range c.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

func deriveTitle(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return DefaultTitle
	}
	runes := []rune(text)
	if len(runes) <= titleMaxRunes {
		return text
	}
	return string(runes[:titleMaxRunes]) + titleEllipsis
}
