package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"sciphi-chat/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	mu       sync.Mutex
	requests []api.CompletionRequest
	calls    atomic.Int32

	reply   api.CompletionResponse
	err     error
	started chan struct{}
	release chan struct{}
}

func (b *stubBackend) Complete(ctx context.Context, req api.CompletionRequest) (api.CompletionResponse, error) {
	b.calls.Add(1)
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()

	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.release != nil {
		<-b.release
	}
	if b.err != nil {
		return api.CompletionResponse{}, b.err
	}
	return b.reply, nil
}

func (b *stubBackend) lastRequest() api.CompletionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

func newTestController(t *testing.T, backend Backend) (*Controller, *Store) {
	t.Helper()
	store, _ := newTestStore(t)
	return NewController(store, backend, ""), store
}

func TestSendEmptyPrompt(t *testing.T) {
	backend := &stubBackend{}
	controller, store := newTestController(t, backend)

	for _, prompt := range []string{"", "   ", "\n\t"} {
		_, err := controller.Send(context.Background(), prompt)
		assert.ErrorIs(t, err, ErrEmptyPrompt)
	}

	assert.Zero(t, backend.calls.Load())
	assert.Empty(t, store.Conversations())
	assert.False(t, controller.Thinking())
}

func TestSendGravity(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{reply: api.CompletionResponse{
		Response: "Gravity is the force that attracts masses.",
		Context:  []api.ContextItem{{Title: "Gravity", Text: "Newton's law of universal gravitation"}},
	}}
	controller, store := newTestController(t, backend)

	_, err := store.CreateConversation(ctx)
	require.NoError(t, err)

	reply, err := controller.Send(ctx, "What is gravity?")
	require.NoError(t, err)

	req := backend.lastRequest()
	assert.Equal(t, "What is gravity?", req.Prompt)
	assert.Empty(t, req.Messages)
	assert.NotNil(t, req.Messages)
	assert.Equal(t, DefaultModel, req.GptVersion)

	messages := store.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "What is gravity?", messages[0].Text)
	assert.False(t, messages[0].AI)
	assert.Equal(t, reply.Message, messages[1])
	assert.True(t, messages[1].AI)
	assert.Equal(t, "Gravity is the force that attracts masses.", messages[1].Text)
	assert.Len(t, messages[1].Context, 1)
	assert.False(t, controller.Thinking())

	current, _ := store.Current()
	assert.Equal(t, "What is gravity?", current.Title)
}

func TestSendCarriesHistory(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{reply: api.CompletionResponse{
		Response: "answer",
		Context:  []api.ContextItem{{Title: "t", Text: "x"}},
	}}
	controller, _ := newTestController(t, backend)

	_, err := controller.Send(ctx, "first")
	require.NoError(t, err)
	_, err = controller.Send(ctx, "second")
	require.NoError(t, err)

	req := backend.lastRequest()
	assert.Equal(t, "second", req.Prompt)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, api.ChatMessage{Text: "first", AI: false}, req.Messages[0])
	assert.Equal(t, "answer", req.Messages[1].Text)
	assert.True(t, req.Messages[1].AI)
	assert.Len(t, req.Messages[1].Context, 1)
}

func TestSendCreatesConversation(t *testing.T) {
	controller, store := newTestController(t, &stubBackend{reply: api.CompletionResponse{Response: "ok"}})

	_, err := controller.Send(context.Background(), "hello")
	require.NoError(t, err)

	assert.Len(t, store.Conversations(), 1)
	assert.Len(t, store.Messages(), 2)
}

func TestSendFailure(t *testing.T) {
	backend := &stubBackend{err: errors.New("connection refused")}
	controller, store := newTestController(t, backend)

	_, err := controller.Send(context.Background(), "What is gravity?")
	require.ErrorIs(t, err, ErrCompletionFailed)

	messages := store.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "What is gravity?", messages[0].Text)
	assert.False(t, controller.Thinking())

	notifications := controller.Notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, "Error: connection refused please try again later", notifications[0].Message)

	assert.Empty(t, controller.Notifications())
	assert.NotNil(t, controller.Notifications())
}

func TestConcurrentSendIssuesOneRequest(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{
		reply:   api.CompletionResponse{Response: "only once"},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	controller, store := newTestController(t, backend)

	done := make(chan error, 1)
	go func() {
		_, err := controller.Send(ctx, "first")
		done <- err
	}()

	<-backend.started
	assert.True(t, controller.Thinking())

	_, err := controller.Send(ctx, "second")
	assert.ErrorIs(t, err, ErrRequestInFlight)
	_, err = controller.Regenerate(ctx)
	assert.ErrorIs(t, err, ErrRequestInFlight)

	close(backend.release)
	require.NoError(t, <-done)

	assert.EqualValues(t, 1, backend.calls.Load())
	assert.Equal(t, []string{"first", "only once"}, messageTexts(store.Messages()))
	assert.False(t, controller.Thinking())
}

func TestReplyPinnedToOriginatingConversation(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{
		reply:   api.CompletionResponse{Response: "late reply"},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	controller, store := newTestController(t, backend)

	origin, err := store.CreateConversation(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := controller.Send(ctx, "question")
		done <- err
	}()

	<-backend.started
	other, err := store.CreateConversation(ctx)
	require.NoError(t, err)

	close(backend.release)
	require.NoError(t, <-done)

	originConversation, ok := store.Conversation(origin)
	require.True(t, ok)
	assert.Equal(t, []string{"question", "late reply"}, messageTexts(originConversation.Messages))

	otherConversation, ok := store.Conversation(other)
	require.True(t, ok)
	assert.Empty(t, otherConversation.Messages)
	assert.Equal(t, other, store.CurrentID())
}

func TestRegenerate(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{reply: api.CompletionResponse{Response: "A computer follows instructions."}}
	controller, store := newTestController(t, backend)

	_, err := controller.Send(ctx, "How do computers work?")
	require.NoError(t, err)
	before := store.Messages()
	require.Len(t, before, 2)

	backend.reply = api.CompletionResponse{Response: "Computers process binary data."}
	reply, err := controller.Regenerate(ctx)
	require.NoError(t, err)

	req := backend.lastRequest()
	assert.Equal(t, "How do computers work?", req.Prompt)
	assert.Empty(t, req.Messages)

	after := store.Messages()
	require.Len(t, after, 2)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, reply.Message, after[1])
	assert.Equal(t, "Computers process binary data.", after[1].Text)
	assert.EqualValues(t, 2, backend.calls.Load())
}

func TestRegenerateNothingToDo(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{reply: api.CompletionResponse{Response: "ok"}}
	controller, store := newTestController(t, backend)

	_, err := controller.Regenerate(ctx)
	assert.ErrorIs(t, err, ErrNothingToRegenerate)

	_, err = store.CreateConversation(ctx)
	require.NoError(t, err)
	_, err = controller.Regenerate(ctx)
	assert.ErrorIs(t, err, ErrNothingToRegenerate)

	assert.Zero(t, backend.calls.Load())
	assert.False(t, controller.Thinking())
}

func TestRegenerateFailure(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{reply: api.CompletionResponse{Response: "first answer"}}
	controller, store := newTestController(t, backend)

	_, err := controller.Send(ctx, "question")
	require.NoError(t, err)

	backend.err = errors.New("upstream returned 503")
	_, err = controller.Regenerate(ctx)
	require.ErrorIs(t, err, ErrCompletionFailed)

	assert.Equal(t, []string{"question"}, messageTexts(store.Messages()))
	assert.Len(t, controller.Notifications(), 1)
	assert.False(t, controller.Thinking())
}

func TestControllerModel(t *testing.T) {
	backend := &stubBackend{reply: api.CompletionResponse{Response: "ok"}}
	store, _ := newTestStore(t)
	controller := NewController(store, backend, "sciphi-beta")

	_, err := controller.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "sciphi-beta", backend.lastRequest().GptVersion)
}

func TestRegenerateAfterFailedSend(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{reply: api.CompletionResponse{Response: "Gravity is a force."}}
	controller, store := newTestController(t, backend)

	_, err := controller.Send(ctx, "What is gravity?")
	require.NoError(t, err)

	backend.err = errors.New("upstream returned 503")
	_, err = controller.Send(ctx, "And magnetism?")
	require.ErrorIs(t, err, ErrCompletionFailed)
	_ = controller.Notifications()

	_, err = controller.Regenerate(ctx)
	assert.ErrorIs(t, err, ErrNothingToRegenerate)

	assert.Equal(t, []string{"What is gravity?", "Gravity is a force.", "And magnetism?"}, messageTexts(store.Messages()))
	assert.EqualValues(t, 2, backend.calls.Load())
	assert.Empty(t, controller.Notifications())
	assert.False(t, controller.Thinking())
}

func TestRegenerateLoneUserMessage(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{reply: api.CompletionResponse{Response: "ok"}}
	controller, store := newTestController(t, backend)

	_, err := store.CreateConversation(ctx)
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, NewUserMessage("What is gravity?")))

	_, err = controller.Regenerate(ctx)
	assert.ErrorIs(t, err, ErrNothingToRegenerate)

	assert.Equal(t, []string{"What is gravity?"}, messageTexts(store.Messages()))
	assert.Zero(t, backend.calls.Load())
}

func TestRegenerateRequiresPrecedingUserMessage(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{reply: api.CompletionResponse{Response: "ok"}}
	controller, store := newTestController(t, backend)

	_, err := store.CreateConversation(ctx)
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, NewAssistantMessage("Welcome!", nil)))

	_, err = controller.Regenerate(ctx)
	assert.ErrorIs(t, err, ErrNothingToRegenerate)

	assert.Equal(t, []string{"Welcome!"}, messageTexts(store.Messages()))
	assert.Zero(t, backend.calls.Load())
}
