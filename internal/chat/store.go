package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"sciphi-chat/internal/storage"

	"github.com/google/uuid"
)

const (
	ConversationsKey = "chat.conversations.v1"
	SelectedKey      = "chat.selected.v1"
)

var (
	ErrNoConversationSelected = errors.New("no conversation selected")
	ErrConversationNotFound   = errors.New("conversation not found")
)

// Store owns the conversations of one client and the current selection.
// Every mutation is written through to the backing KVStore before it becomes
// visible, so a failed write leaves the in-memory state untouched.
type Store struct {
	mu            sync.Mutex
	kv            storage.KVStore
	conversations []Conversation
	selected      uuid.UUID
}

// LoadStore restores a Store from kv. Missing keys start an empty store and
// malformed payloads are logged and discarded.
func LoadStore(ctx context.Context, kv storage.KVStore) (*Store, error) {
	s := &Store{kv: kv, conversations: []Conversation{}}

	raw, ok, err := kv.Get(ctx, ConversationsKey)
	if err != nil {
		return nil, fmt.Errorf("error loading conversations: %w", err)
	}
	if ok {
		var conversations []Conversation
		if err := json.Unmarshal([]byte(raw), &conversations); err != nil {
			slog.Warn("discarding malformed conversations payload", "key", ConversationsKey, "error", err)
		} else {
			for i := range conversations {
				conversations[i] = conversations[i].clone()
			}
			s.conversations = conversations
		}
	}

	rawSelected, ok, err := kv.Get(ctx, SelectedKey)
	if err != nil {
		return nil, fmt.Errorf("error loading selected conversation: %w", err)
	}
	if ok {
		id, err := uuid.Parse(rawSelected)
		if err != nil {
			slog.Warn("discarding malformed selected conversation id", "key", SelectedKey, "error", err)
		} else if s.indexOf(s.conversations, id) >= 0 {
			s.selected = id
		}
	}

	return s, nil
}

func (s *Store) indexOf(conversations []Conversation, id uuid.UUID) int {
	return slices.IndexFunc(conversations, func(c Conversation) bool { return c.ID == id })
}

// commit persists the next state and only then installs it. Callers hold s.mu.
//
// Conversations and selection live under two keys. If the selection write
// fails, the previous conversations payload is written back so storage keeps
// matching the in-memory state.
func (s *Store) commit(ctx context.Context, conversations []Conversation, selected uuid.UUID) error {
	data, err := json.Marshal(conversations)
	if err != nil {
		return fmt.Errorf("error serializing conversations: %w", err)
	}
	prev, err := json.Marshal(s.conversations)
	if err != nil {
		return fmt.Errorf("error serializing conversations: %w", err)
	}

	if err := s.kv.Set(ctx, ConversationsKey, string(data)); err != nil {
		return fmt.Errorf("error persisting conversations: %w", err)
	}

	if selected == uuid.Nil {
		err = s.kv.Delete(ctx, SelectedKey)
	} else {
		err = s.kv.Set(ctx, SelectedKey, selected.String())
	}
	if err != nil {
		if restoreErr := s.kv.Set(ctx, ConversationsKey, string(prev)); restoreErr != nil {
			slog.Error("unable to restore conversations after failed selection write", "error", restoreErr)
		}
		return fmt.Errorf("error persisting selected conversation: %w", err)
	}

	s.conversations = conversations
	s.selected = selected
	return nil
}

func (s *Store) CreateConversation(ctx context.Context) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation := newConversation()
	next := append(slices.Clone(s.conversations), conversation)
	if err := s.commit(ctx, next, conversation.ID); err != nil {
		return uuid.Nil, err
	}
	return conversation.ID, nil
}

func (s *Store) SelectConversation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(s.conversations, id) < 0 {
		return ErrConversationNotFound
	}
	if s.selected == id {
		return nil
	}
	return s.commit(ctx, s.conversations, id)
}

func (s *Store) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(s.conversations, id)
	if idx < 0 {
		return nil
	}

	next := slices.Delete(slices.Clone(s.conversations), idx, idx+1)

	selected := s.selected
	if selected == id {
		switch {
		case idx < len(next):
			selected = next[idx].ID
		case len(next) > 0:
			selected = next[len(next)-1].ID
		default:
			selected = uuid.Nil
		}
	}

	return s.commit(ctx, next, selected)
}

// AppendMessage appends to the selected conversation.
func (s *Store) AppendMessage(ctx context.Context, message Message) error {
	_, _, err := s.appendToSelected(ctx, message)
	return err
}

// appendToSelected appends to the selected conversation and returns its id and
// the history as it was before the append.
func (s *Store) appendToSelected(ctx context.Context, message Message) (uuid.UUID, []Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == uuid.Nil {
		return uuid.Nil, nil, ErrNoConversationSelected
	}
	history := slices.Clone(s.conversations[s.indexOf(s.conversations, s.selected)].Messages)
	if err := s.appendLocked(ctx, s.selected, message); err != nil {
		return uuid.Nil, nil, err
	}
	return s.selected, history, nil
}

// appendTo appends to a specific conversation regardless of the selection.
func (s *Store) appendTo(ctx context.Context, id uuid.UUID, message Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ctx, id, message)
}

func (s *Store) appendLocked(ctx context.Context, id uuid.UUID, message Message) error {
	idx := s.indexOf(s.conversations, id)
	if idx < 0 {
		return ErrConversationNotFound
	}

	next := slices.Clone(s.conversations)
	conversation := next[idx].clone()
	if !message.AI && len(conversation.Messages) == 0 {
		conversation.Title = deriveTitle(message.Text)
	}
	conversation.Messages = append(conversation.Messages, message)
	next[idx] = conversation

	return s.commit(ctx, next, s.selected)
}

// RemoveLastMessage drops the final message of the selected conversation. It
// is a no-op when nothing is selected or the conversation is empty.
func (s *Store) RemoveLastMessage(ctx context.Context) (Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(s.conversations, s.selected)
	if idx < 0 || len(s.conversations[idx].Messages) == 0 {
		return Message{}, false, nil
	}

	conversation := s.conversations[idx].clone()
	last := len(conversation.Messages) - 1
	removed := conversation.Messages[last]
	conversation.Messages = conversation.Messages[:last]

	next := slices.Clone(s.conversations)
	next[idx] = conversation
	if err := s.commit(ctx, next, s.selected); err != nil {
		return Message{}, false, err
	}
	return removed, true, nil
}

// removeLastReply drops the trailing assistant reply of the selected
// conversation and returns its id and the remaining history. Unless the
// conversation ends in a user message followed by an assistant reply it
// returns ErrNothingToRegenerate and changes nothing.
func (s *Store) removeLastReply(ctx context.Context) (uuid.UUID, []Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(s.conversations, s.selected)
	if idx < 0 {
		return uuid.Nil, nil, ErrNothingToRegenerate
	}
	conversation := s.conversations[idx].clone()
	n := len(conversation.Messages)
	if n < 2 || !conversation.Messages[n-1].AI || conversation.Messages[n-2].AI {
		return uuid.Nil, nil, ErrNothingToRegenerate
	}

	conversation.Messages = conversation.Messages[:n-1]
	next := slices.Clone(s.conversations)
	next[idx] = conversation
	if err := s.commit(ctx, next, s.selected); err != nil {
		return uuid.Nil, nil, err
	}
	return s.selected, slices.Clone(conversation.Messages), nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, []Conversation{}, uuid.Nil)
}

// Conversations returns a copy of all conversations in insertion order.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.clone()
	}
	return out
}

func (s *Store) Conversation(id uuid.UUID) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(s.conversations, id)
	if idx < 0 {
		return Conversation{}, false
	}
	return s.conversations[idx].clone(), true
}

// CurrentID returns uuid.Nil when nothing is selected.
func (s *Store) CurrentID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Store) Current() (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(s.conversations, s.selected)
	if idx < 0 {
		return Conversation{}, false
	}
	return s.conversations[idx].clone(), true
}

// Messages returns the messages of the selected conversation, or nil.
func (s *Store) Messages() []Message {
	current, ok := s.Current()
	if !ok {
		return nil
	}
	return current.Messages
}
