package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sciphi-chat/pkg/api"

	"github.com/google/uuid"
)

const DefaultModel = "sciphi-alpha"

var (
	ErrEmptyPrompt         = errors.New("prompt is empty")
	ErrRequestInFlight     = errors.New("a completion request is already in flight")
	ErrNothingToRegenerate = errors.New("no message to regenerate")
	ErrCompletionFailed    = errors.New("completion request failed")
)

// Backend turns a prompt plus prior dialogue into a reply.
type Backend interface {
	Complete(ctx context.Context, req api.CompletionRequest) (api.CompletionResponse, error)
}

// Reply is an assistant message and the conversation it was stored in.
type Reply struct {
	ConversationID uuid.UUID
	Message        Message
}

// Controller drives the single outstanding completion request of a workspace.
// Send and Regenerate share one in-flight flag: while a request is running both
// return ErrRequestInFlight instead of queueing.
type Controller struct {
	store   *Store
	backend Backend
	model   string

	thinking atomic.Bool

	notifyMu      sync.Mutex
	notifications []api.Notification
}

func NewController(store *Store, backend Backend, model string) *Controller {
	if model == "" {
		model = DefaultModel
	}
	return &Controller{store: store, backend: backend, model: model}
}

// Thinking reports whether a completion request is in flight.
func (c *Controller) Thinking() bool {
	return c.thinking.Load()
}

// Notifications drains the user-visible error notifications.
func (c *Controller) Notifications() []api.Notification {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	out := c.notifications
	c.notifications = nil
	if out == nil {
		out = []api.Notification{}
	}
	return out
}

func (c *Controller) notify(err error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.notifications = append(c.notifications, api.Notification{
		Message:   fmt.Sprintf("Error: %v please try again later", err),
		Timestamp: time.Now().UTC(),
	})
}

// Send appends prompt as a user message and requests a reply for it. The user
// message stays in the history even when the request fails.
func (c *Controller) Send(ctx context.Context, prompt string) (Reply, error) {
	if strings.TrimSpace(prompt) == "" {
		return Reply{}, ErrEmptyPrompt
	}
	if !c.thinking.CompareAndSwap(false, true) {
		return Reply{}, ErrRequestInFlight
	}
	defer c.thinking.Store(false)

	if _, ok := c.store.Current(); !ok {
		if _, err := c.store.CreateConversation(ctx); err != nil {
			return Reply{}, err
		}
	}

	conversationID, history, err := c.store.appendToSelected(ctx, NewUserMessage(prompt))
	if err != nil {
		return Reply{}, err
	}

	return c.complete(ctx, conversationID, prompt, history)
}

// Regenerate discards the trailing assistant reply and requests a new one for
// the user message before it. The discarded reply is not restored on failure.
// A conversation that does not end in a reply, such as one whose last send
// failed, is left untouched.
func (c *Controller) Regenerate(ctx context.Context) (Reply, error) {
	if len(c.store.Messages()) == 0 {
		return Reply{}, ErrNothingToRegenerate
	}
	if !c.thinking.CompareAndSwap(false, true) {
		return Reply{}, ErrRequestInFlight
	}
	defer c.thinking.Store(false)

	conversationID, remaining, err := c.store.removeLastReply(ctx)
	if err != nil {
		return Reply{}, err
	}

	// The prompt message is sent as the prompt, not repeated in the history.
	last := len(remaining) - 1
	return c.complete(ctx, conversationID, remaining[last].Text, remaining[:last])
}

func (c *Controller) complete(ctx context.Context, conversationID uuid.UUID, prompt string, history []Message) (Reply, error) {
	req := api.CompletionRequest{
		Prompt:     prompt,
		Messages:   make([]api.ChatMessage, 0, len(history)),
		GptVersion: c.model,
	}
	for _, m := range history {
		req.Messages = append(req.Messages, m.toChatMessage())
	}

	res, err := c.backend.Complete(ctx, req)
	if err != nil {
		slog.Error("completion request failed", "conversation_id", conversationID, "error", err)
		c.notify(err)
		return Reply{}, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}

	reply := NewAssistantMessage(res.Response, res.Context)
	// The reply belongs to the conversation the request was issued from, even
	// if the selection changed while it was in flight.
	if err := c.store.appendTo(ctx, conversationID, reply); err != nil {
		slog.Error("unable to store assistant reply", "conversation_id", conversationID, "error", err)
		c.notify(err)
		return Reply{}, err
	}

	return Reply{ConversationID: conversationID, Message: reply}, nil
}
