package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"sciphi-chat/internal/chat"
	"sciphi-chat/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const (
	ClientIDHeader = "X-Client-ID"
	ClientIDParam  = "client_id"

	formatHTML = "html"
)

type WorkspaceService struct {
	workspaces     *chat.WorkspaceCache
	starterPrompts []api.StarterPrompt
	markdown       goldmark.Markdown
}

func NewWorkspaceService(workspaces *chat.WorkspaceCache, starterPrompts []api.StarterPrompt) *WorkspaceService {
	return &WorkspaceService{
		workspaces:     workspaces,
		starterPrompts: starterPrompts,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

func (s *WorkspaceService) AddRoutes(r chi.Router) {
	r.Route("/workspace", func(r chi.Router) {
		r.Get("/conversations", RestHandler(s.ListConversations))
		r.Post("/conversations", RestHandler(s.CreateConversation))
		r.Delete("/conversations", RestHandler(s.ClearConversations))
		r.Get("/conversations/{conversation_id}", RestHandler(s.GetConversation))
		r.Delete("/conversations/{conversation_id}", RestHandler(s.DeleteConversation))
		r.Post("/conversations/{conversation_id}/select", RestHandler(s.SelectConversation))
		r.Get("/conversations/{conversation_id}/messages/{message_id}/context", RestHandler(s.GetMessageContext))
		r.Post("/send", RestHandler(s.Send))
		r.Post("/regenerate", RestHandler(s.Regenerate))
		r.Get("/status", RestHandler(s.Status))
		r.Post("/bootstrap", RestHandler(s.Bootstrap))
		r.Get("/terms", RestHandler(s.GetTerms))
		r.Post("/terms/accept", RestHandler(s.AcceptTerms))
	})
	r.Get("/starter-prompts", RestHandler(s.StarterPrompts))
}

func clientID(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(ClientIDHeader)
	if raw == "" {
		raw = r.URL.Query().Get(ClientIDParam)
	}
	if raw == "" {
		return uuid.Nil, CodedErrorf(http.StatusBadRequest, "missing client id: set the %s header or the %s query param", ClientIDHeader, ClientIDParam)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, CodedErrorf(http.StatusBadRequest, "invalid client id '%s': %w", raw, err)
	}
	return id, nil
}

// workspace resolves the caller's workspace. The returned release func must be
// called when the handler is done with it.
func (s *WorkspaceService) workspace(r *http.Request) (*chat.Workspace, func(), error) {
	id, err := clientID(r)
	if err != nil {
		return nil, nil, err
	}

	ws, release, err := s.workspaces.Get(r.Context(), id)
	if err != nil {
		return nil, nil, CodedError(http.StatusInternalServerError, fmt.Errorf("error opening workspace: %w", err))
	}
	return ws, release, nil
}

func workspaceError(err error) error {
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		return CodedError(http.StatusNotFound, err)
	case errors.Is(err, chat.ErrEmptyPrompt):
		return CodedError(http.StatusBadRequest, err)
	case errors.Is(err, chat.ErrRequestInFlight),
		errors.Is(err, chat.ErrNothingToRegenerate),
		errors.Is(err, chat.ErrNoConversationSelected):
		return CodedError(http.StatusConflict, err)
	case errors.Is(err, chat.ErrCompletionFailed):
		return CodedError(http.StatusBadGateway, err)
	default:
		return CodedError(http.StatusInternalServerError, err)
	}
}

func (s *WorkspaceService) messageView(m chat.Message, withHTML bool) (api.MessageView, error) {
	view := api.MessageView{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		Text:      m.Text,
		AI:        m.AI,
		Context:   m.Context,
	}
	if view.Context == nil {
		view.Context = []api.ContextItem{}
	}

	if withHTML {
		var buf bytes.Buffer
		if err := s.markdown.Convert([]byte(m.Text), &buf); err != nil {
			return api.MessageView{}, fmt.Errorf("error rendering message %s: %w", m.ID, err)
		}
		view.HTML = buf.String()
	}
	return view, nil
}

func (s *WorkspaceService) ListConversations(r *http.Request) (any, error) {
	ws, release, err := s.workspace(r)
	if err != nil {
		return nil, err
	}
	defer release()

	selected := ws.Store.CurrentID()
	conversations := ws.Store.Conversations()

	res := api.ListConversationsResponse{Conversations: make([]api.ConversationSummary, 0, len(conversations))}
	for _, c := range conversations {
		res.Conversations = append(res.Conversations, api.ConversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			CreatedAt:    c.CreatedAt,
			MessageCount: len(c.Messages),
			Selected:     c.ID == selected,
		})
	}
	if selected != uuid.Nil {
		res.SelectedID = &selected
	}

	return res, nil
}

func (s *WorkspaceService) CreateConversation(r *http.Request) (any, error) {
	ws, release, err := s.workspace(r)
	if err != nil {
		return nil, err
	}
	defer release()

	id, err := ws.Store.CreateConversation(r.Context())
	if err != nil {
		return nil, workspaceError(err)
	}

	return api.CreateConversationResponse{ID: id}, nil
}

func (s *WorkspaceService) SelectConversation(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		return nil, err
	}

	ws, release, err := s.workspace(r)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := ws.Store.SelectConversation(r.Context(), id); err != nil {
		return nil, workspaceError(err)
	}
	return nil, nil
}

func (s *WorkspaceService) DeleteConversation(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		return nil, err
	}

	ws, release, err := s.workspace(r)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := ws.Store.DeleteConversation(r.Context(), id); err != nil {
		return nil, workspaceError(err)
	}
	return nil, nil
}

func (s *WorkspaceService) ClearConversations(r *http.Request) (any, error) {
	ws, release, err := s.workspace(r)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := ws.Store.ClearAll(r.Context()); err != nil {
		return nil, workspaceError(err)
	}
	return nil, nil
}

func (s *WorkspaceService) GetConversation(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[api.ConversationViewParams](r)
	if err != nil {
		return nil, err
	}
	withHTML := strings.EqualFold(params.Format, formatHTML)

	ws, release, err := s.workspace(r)
	if err != nil {
		return nil, err
	}
	defer release()

	conversation, ok := ws.Store.Conversation(id)
	if !ok {
		return nil, workspaceError(chat.ErrConversationNotFound)
	}

	res := api.ConversationView{
		ID:        conversation.ID,
		Title:     conversation.Title,
		CreatedAt: conversation.CreatedAt,
		Messages:  make([]api.MessageView, 0, len(conversation.Messages)),
	}
	for _, m := range conversation.Messages {
		view, err := s.messageView(m, withHTML)
		if err != nil {
			return nil, CodedError(http.StatusInternalServerError, err)
		}
		res.Messages = append(res.Messages, view)
	}

	return res, nil
}

func (s *WorkspaceService) GetMessageContext(r *http.Request) (any, error) {
	conversationID, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		return nil, err
	}
	messageID, err := URLParam(r, "message_id")
	if err != nil {
		return nil, err
	}

	ws, release, err := s.workspace(r)
	if err != nil {
		return nil, err
	}
	defer release()

	conversation, ok := ws.Store.Conversation(conversationID)
	if !ok {
		return nil, workspaceError(chat.ErrConversationNotFound)
	}

	message, ok := conversation.FindMessage(messageID)
	if !ok {
		return nil, CodedErrorf(http.StatusNotFound, "message '%s' not found in conversation %s", messageID, conversationID)
	}

	if message.Context == nil {
		return []api.ContextItem{}, nil
	}
	return message.Context, nil
}

func (s *WorkspaceService) replyResponse(reply chat.Reply) (api.SendResponse, error) {
	view, err := s.messageView(reply.Message, false)
	if err != nil {
		return api.SendResponse{}, CodedError(http.StatusInternalServerError, err)
	}
	return api.SendResponse{ConversationID: reply.ConversationID, Message: view}, nil
}

func (s *WorkspaceService) Send(r *http.Request) (any, error) {
	req, err := ParseRequest[api.SendRequest](r)
	if err != nil {
		return nil, err
	}

	ws, release, err := s.workspace(r)
	if err != nil {
		return nil, err
	}
	defer release()

	reply, err := ws.Controller.Send(r.Context(), req.Prompt)
	if err != nil {
		return nil, workspaceError(err)
	}

	return s.replyResponse(reply)
}

func (s *WorkspaceService) Regenerate(r *http.Request) (any, error) {
	ws, release, err := s.workspace(r)
	if err != nil {
		return nil, err
	}
	defer release()

	reply, err := ws.Controller.Regenerate(r.Context())
	if err != nil {
		return nil, workspaceError(err)
	}

	return s.replyResponse(reply)
}

func (s *WorkspaceService) Status(r *http.Request) (any, error) {
	ws, release, err := s.workspace(r)
	if err != nil {
		return nil, err
	}
	defer release()

	return api.StatusResponse{
		Thinking:      ws.Controller.Thinking(),
		Notifications: ws.Controller.Notifications(),
	}, nil
}

// Bootstrap injects the deep-link initial message. A failed completion is
// reported through the status notifications, like any other send.
func (s *WorkspaceService) Bootstrap(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.BootstrapParams](r)
	if err != nil {
		return nil, err
	}

	ws, release, err := s.workspace(r)
	if err != nil {
		return nil, err
	}
	defer release()

	injected, err := ws.Bootstrap(r.Context(), params.InitialMessage)
	if err != nil && !errors.Is(err, chat.ErrCompletionFailed) {
		return nil, workspaceError(err)
	}

	return api.BootstrapResponse{Injected: injected}, nil
}

func (s *WorkspaceService) GetTerms(r *http.Request) (any, error) {
	ws, release, err := s.workspace(r)
	if err != nil {
		return nil, err
	}
	defer release()

	show, err := ws.Onboarding.NeedsTerms(r.Context())
	if err != nil {
		return nil, workspaceError(err)
	}
	return api.TermsResponse{ShowTerms: show}, nil
}

func (s *WorkspaceService) AcceptTerms(r *http.Request) (any, error) {
	ws, release, err := s.workspace(r)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := ws.Onboarding.Accept(r.Context()); err != nil {
		return nil, workspaceError(err)
	}
	return nil, nil
}

func (s *WorkspaceService) StarterPrompts(r *http.Request) (any, error) {
	if s.starterPrompts == nil {
		return []api.StarterPrompt{}, nil
	}
	return s.starterPrompts, nil
}
