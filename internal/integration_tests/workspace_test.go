package integrationtests

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sciphi-chat/internal/api"
	"sciphi-chat/internal/chat"
	"sciphi-chat/internal/client"
	"sciphi-chat/internal/completions"
	"sciphi-chat/internal/storage"
	pkgapi "sciphi-chat/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createRouter(t *testing.T, db *gorm.DB, service *completions.Service, backend chat.Backend) chi.Router {
	cache := chat.NewWorkspaceCache(8, func(ctx context.Context, clientID uuid.UUID) (*chat.Workspace, error) {
		return chat.NewWorkspace(ctx, clientID, storage.NewDBKVStore(db, clientID.String()), storage.NewMemoryKVStore(), backend, chat.DefaultModel)
	})

	prompts, err := chat.LoadStarterPrompts("")
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		api.NewCompletionsService(service).AddRoutes(r)
		api.NewWorkspaceService(cache, prompts).AddRoutes(r)
	})
	return router
}

func TestWorkspaceConversationFlow(t *testing.T) {
	db := createDB(t)
	upstream := fakeSciPhi(t, "Gravity is the force by which masses attract each other.")

	provider := completions.NewOpenAIProvider("test-key", upstream.URL+"/", option.WithMaxRetries(0))
	recorder := completions.NewRecorder(db)
	service := completions.NewService(provider, recorder)

	router := createRouter(t, db, service, service)
	clientID := uuid.New()

	var bootstrap pkgapi.BootstrapResponse
	require.NoError(t, httpRequest(router, clientID, http.MethodPost, "/api/workspace/bootstrap?initialMessage=What+is+gravity%3F", nil, &bootstrap))
	assert.True(t, bootstrap.Injected)

	var conversations pkgapi.ListConversationsResponse
	require.NoError(t, httpRequest(router, clientID, http.MethodGet, "/api/workspace/conversations", nil, &conversations))
	require.Len(t, conversations.Conversations, 1)
	conversation := conversations.Conversations[0]
	assert.Equal(t, "What is gravity?", conversation.Title)
	assert.Equal(t, 2, conversation.MessageCount)

	var view pkgapi.ConversationView
	require.NoError(t, httpRequest(router, clientID, http.MethodGet, fmt.Sprintf("/api/workspace/conversations/%s?format=html", conversation.ID), nil, &view))
	require.Len(t, view.Messages, 2)
	reply := view.Messages[1]
	assert.True(t, reply.AI)
	assert.Equal(t, "Gravity is the force by which masses attract each other.", reply.Text)
	assert.Contains(t, reply.HTML, "<p>")

	var items []pkgapi.ContextItem
	require.NoError(t, httpRequest(router, clientID, http.MethodGet, fmt.Sprintf("/api/workspace/conversations/%s/messages/%s/context", conversation.ID, reply.ID), nil, &items))
	assert.Equal(t, []pkgapi.ContextItem{{Title: "Gravity", Text: "Newton's law of universal gravitation"}}, items)

	var regenerated pkgapi.SendResponse
	require.NoError(t, httpRequest(router, clientID, http.MethodPost, "/api/workspace/regenerate", nil, &regenerated))
	assert.Equal(t, conversation.ID, regenerated.ConversationID)
	assert.NotEqual(t, reply.ID, regenerated.Message.ID)

	var status pkgapi.StatusResponse
	require.NoError(t, httpRequest(router, clientID, http.MethodGet, "/api/workspace/status", nil, &status))
	assert.False(t, status.Thinking)
	assert.Empty(t, status.Notifications)

	records, err := recorder.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, "What is gravity?", record.Prompt)
		assert.Equal(t, chat.DefaultModel, record.Model)
		assert.Empty(t, record.Error)
	}

	// A fresh router over the same database sees the persisted workspace.
	restarted := createRouter(t, db, service, service)
	require.NoError(t, httpRequest(restarted, clientID, http.MethodGet, "/api/workspace/conversations", nil, &conversations))
	require.Len(t, conversations.Conversations, 1)
	require.NotNil(t, conversations.SelectedID)
	assert.Equal(t, conversation.ID, *conversations.SelectedID)
}

func TestRemoteCompletionsBackend(t *testing.T) {
	db := createDB(t)
	upstream := fakeSciPhi(t, "Computers process binary data.")

	service := completions.NewService(completions.NewOpenAIProvider("test-key", upstream.URL+"/", option.WithMaxRetries(0)), nil)

	completionsServer := httptest.NewServer(createRouter(t, db, service, service))
	defer completionsServer.Close()

	remote := client.NewCompletionsClient(completionsServer.URL, 30*time.Second)
	router := createRouter(t, db, completions.NewService(nil, nil), remote)
	clientID := uuid.New()

	var sent pkgapi.SendResponse
	require.NoError(t, httpRequest(router, clientID, http.MethodPost, "/api/workspace/send", pkgapi.SendRequest{Prompt: "How do computers work?"}, &sent))
	assert.Equal(t, "Computers process binary data.", sent.Message.Text)
	assert.Len(t, sent.Message.Context, 1)
}

func TestCompletionsEndpointWithoutAPIKey(t *testing.T) {
	db := createDB(t)
	router := createRouter(t, db, completions.NewService(nil, nil), completions.NewService(nil, nil))

	err := httpRequest(router, uuid.New(), http.MethodPost, "/api/completions", pkgapi.CompletionRequest{Prompt: "hi", Messages: []pkgapi.ChatMessage{}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "The SCIPHI_API_KEY is missing!")
}
