package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sciphi-chat/internal/storage"

	"github.com/google/uuid"
)

const InitialMessageInjectedKey = "initialMessageInjected"

// Workspace is everything one client sees: its conversations, the controller
// driving completions against them, and its persistent and session storage.
type Workspace struct {
	ClientID   uuid.UUID
	Store      *Store
	Controller *Controller
	Onboarding *Onboarding

	session storage.KVStore
}

func NewWorkspace(ctx context.Context, clientID uuid.UUID, persistent, session storage.KVStore, backend Backend, model string) (*Workspace, error) {
	store, err := LoadStore(ctx, persistent)
	if err != nil {
		return nil, fmt.Errorf("error loading workspace %s: %w", clientID, err)
	}
	return &Workspace{
		ClientID:   clientID,
		Store:      store,
		Controller: NewController(store, backend, model),
		Onboarding: NewOnboarding(persistent),
		session:    session,
	}, nil
}

// Bootstrap sends initialMessage in a fresh conversation at most once per
// session. It reports whether the message was injected; a failed send still
// counts as injected. While another request is in flight it returns
// ErrRequestInFlight and leaves the session untouched.
func (w *Workspace) Bootstrap(ctx context.Context, initialMessage string) (bool, error) {
	if strings.TrimSpace(initialMessage) == "" {
		return false, nil
	}

	injected, err := storage.GetBool(ctx, w.session, InitialMessageInjectedKey, false)
	if err != nil {
		return false, err
	}
	if injected {
		return false, nil
	}
	// Leave the token unset so the client can retry once the current request ends.
	if w.Controller.Thinking() {
		return false, ErrRequestInFlight
	}

	if _, err := w.Store.CreateConversation(ctx); err != nil {
		return false, err
	}
	if err := storage.SetBool(ctx, w.session, InitialMessageInjectedKey, true); err != nil {
		return false, err
	}

	_, err = w.Controller.Send(ctx, initialMessage)
	return true, err
}

type WorkspaceOpener func(ctx context.Context, clientID uuid.UUID) (*Workspace, error)

type workspaceEntry struct {
	workspace    *Workspace
	lastAccessed time.Time
	refs         int
}

// WorkspaceCache keeps at most maxSize idle workspaces open, evicting the
// least recently used one. Evicted state is already persisted.
//
// Get pins the entry until its release func is called. A pinned entry is never
// evicted, so a client id maps to one Store and Controller for as long as any
// caller holds it. When every entry is pinned the cache grows past maxSize and
// shrinks back on later lookups.
type WorkspaceCache struct {
	lock       sync.Mutex
	workspaces map[uuid.UUID]*workspaceEntry
	maxSize    int
	open       WorkspaceOpener
}

func NewWorkspaceCache(maxSize int, open WorkspaceOpener) *WorkspaceCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &WorkspaceCache{
		workspaces: make(map[uuid.UUID]*workspaceEntry, maxSize),
		maxSize:    maxSize,
		open:       open,
	}
}

// Get returns the workspace of clientID and a func that unpins it. The caller
// must call release once it is done with the workspace.
func (cache *WorkspaceCache) Get(ctx context.Context, clientID uuid.UUID) (*Workspace, func(), error) {
	cache.lock.Lock()
	defer cache.lock.Unlock()

	entry, exists := cache.workspaces[clientID]
	if !exists {
		for len(cache.workspaces) >= cache.maxSize {
			if !cache.evictOldest() {
				break
			}
		}

		workspace, err := cache.open(ctx, clientID)
		if err != nil {
			return nil, nil, err
		}
		entry = &workspaceEntry{workspace: workspace}
		cache.workspaces[clientID] = entry
	}

	entry.lastAccessed = time.Now()
	entry.refs++

	var once sync.Once
	release := func() {
		once.Do(func() {
			cache.lock.Lock()
			defer cache.lock.Unlock()
			entry.refs--
		})
	}
	return entry.workspace, release, nil
}

func (cache *WorkspaceCache) Len() int {
	cache.lock.Lock()
	defer cache.lock.Unlock()
	return len(cache.workspaces)
}

// evictOldest removes the least recently used idle entry and reports whether
// one was found. Entries that are pinned or have a request in flight are idle
// only once both are over.
func (cache *WorkspaceCache) evictOldest() bool {
	oldestID := uuid.Nil
	var oldestTime time.Time
	for id, entry := range cache.workspaces {
		if entry.refs > 0 || entry.workspace.Controller.Thinking() {
			continue
		}
		if oldestID == uuid.Nil || entry.lastAccessed.Before(oldestTime) {
			oldestID = id
			oldestTime = entry.lastAccessed
		}
	}

	if oldestID == uuid.Nil {
		return false
	}
	delete(cache.workspaces, oldestID)
	return true
}
