// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"sync"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrIndexOutOfRange is returned for a message or part index that does not exist.
	ErrIndexOutOfRange = &StateError{Message: "index out of range"}

	// ErrNotFound is returned when a chat id is not in the chat list.
	ErrNotFound = &StateError{Message: "chat not found"}

	// ErrNotText is returned when text is appended to a non-text part.
	ErrNotText = &StateError{Message: "content part is not text"}
)

// StateError represents a session state error.
// It implements the error interface and can be compared using errors.Is.
type StateError struct {
	Message string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing state errors.
func (e *StateError) Is(target error) bool {
	t, ok := target.(*StateError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind names what changed.
type EventKind string

const (
	EventChatsLoaded    EventKind = "chats-loaded"
	EventChatCreated    EventKind = "chat-created"
	EventChatRenamed    EventKind = "chat-renamed"
	EventChatDeleted    EventKind = "chat-deleted"
	EventCurrentChanged EventKind = "current-changed"
	EventMessageAdded   EventKind = "message-added"
	EventMessageUpdated EventKind = "message-updated"
)

// Event describes one state change. Index fields are -1 when they do not apply.
type Event struct {
	Kind         EventKind `json:"kind"`
	ChatID       string    `json:"chatId,omitempty"`
	MessageIndex int       `json:"messageIndex"`
	PartIndex    int       `json:"partIndex"`
}

func chatEvent(kind EventKind, chatID string) Event {
	return Event{Kind: kind, ChatID: chatID, MessageIndex: -1, PartIndex: -1}
}

// =============================================================================
// STATE
// =============================================================================

// State is the in-memory chat list plus the messages of the active chat.
// It is safe for concurrent use.
type State struct {
	mu            sync.Mutex
	chats         []model.Chat
	messages      []model.Message
	currentChatID string

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Snapshot is a consistent deep copy of the whole state.
type Snapshot struct {
	Chats         []model.Chat
	Messages      []model.Message
	CurrentChatID string
}

// New creates an empty state.
func New() *State {
	return &State{
		chats:    []model.Chat{},
		messages: []model.Message{},
		subs:     make(map[int]func(Event)),
	}
}

// Subscribe registers fn for every change and returns a function that
// removes it. fn runs on the goroutine that made the change, after the
// state lock is released, so it may read state freely.
func (s *State) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *State) notify(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// SetChats replaces the chat list, usually with what the store holds.
func (s *State) SetChats(chats []model.Chat) {
	s.mu.Lock()
	s.chats = append([]model.Chat{}, chats...)
	s.mu.Unlock()

	s.notify(chatEvent(EventChatsLoaded, ""))
}

// SetCurrentChat makes id the active chat with the given messages.
// Both change together.
func (s *State) SetCurrentChat(id string, messages []model.Message) {
	msgs := model.CloneMessages(messages)
	if msgs == nil {
		msgs = []model.Message{}
	}

	s.mu.Lock()
	s.currentChatID = id
	s.messages = msgs
	s.mu.Unlock()

	s.notify(chatEvent(EventCurrentChanged, id))
}

// NewChat puts chat at the head of the list and makes it the active chat
// with no messages.
func (s *State) NewChat(chat model.Chat) model.Chat {
	s.mu.Lock()
	s.chats = append([]model.Chat{chat}, s.chats...)
	s.currentChatID = chat.ID
	s.messages = []model.Message{}
	s.mu.Unlock()

	s.notify(chatEvent(EventChatCreated, chat.ID))
	s.notify(chatEvent(EventCurrentChanged, chat.ID))
	return chat
}

// RenameChat changes the title of chat id.
func (s *State) RenameChat(id, title string) error {
	s.mu.Lock()
	i := s.indexOfChat(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.chats[i].Title = title
	s.mu.Unlock()

	s.notify(chatEvent(EventChatRenamed, id))
	return nil
}

// DeleteChat removes chat id from the list. If it was active, no chat is
// active afterwards and the message list is empty.
func (s *State) DeleteChat(id string) error {
	s.mu.Lock()
	i := s.indexOfChat(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.chats = append(s.chats[:i:i], s.chats[i+1:]...)
	wasCurrent := s.currentChatID == id
	if wasCurrent {
		s.currentChatID = ""
		s.messages = []model.Message{}
	}
	s.mu.Unlock()

	s.notify(chatEvent(EventChatDeleted, id))
	if wasCurrent {
		s.notify(chatEvent(EventCurrentChanged, ""))
	}
	return nil
}

func (s *State) indexOfChat(id string) int {
	for i, c := range s.chats {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// NewMessage appends msg to the active chat and returns its index.
func (s *State) NewMessage(msg model.Message) int {
	s.mu.Lock()
	s.messages = append(s.messages, msg.Clone())
	idx := len(s.messages) - 1
	chatID := s.currentChatID
	s.mu.Unlock()

	s.notify(Event{Kind: EventMessageAdded, ChatID: chatID, MessageIndex: idx, PartIndex: -1})
	return idx
}

// AppendMessage appends msg when its chat is the active one and returns
// its index. Otherwise it fails with ErrNotFound and state is unchanged.
func (s *State) AppendMessage(msg model.Message) (int, error) {
	s.mu.Lock()
	if s.currentChatID == "" || s.currentChatID != msg.ChatID {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: chat %s is not active", ErrNotFound, msg.ChatID)
	}
	s.messages = append(s.messages, msg.Clone())
	idx := len(s.messages) - 1
	s.mu.Unlock()

	s.notify(Event{Kind: EventMessageAdded, ChatID: msg.ChatID, MessageIndex: idx, PartIndex: -1})
	return idx, nil
}

// ReplaceMessage swaps in msg for the message with the same id in the
// active chat and returns its index. It fails with ErrNotFound when
// msg's chat is not active or holds no such message.
func (s *State) ReplaceMessage(msg model.Message) (int, error) {
	s.mu.Lock()
	idx := -1
	if s.currentChatID != "" && s.currentChatID == msg.ChatID {
		for i := len(s.messages) - 1; i >= 0; i-- {
			if s.messages[i].ID == msg.ID {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: message %s", ErrNotFound, msg.ID)
	}
	s.messages[idx] = msg.Clone()
	s.mu.Unlock()

	s.notify(Event{Kind: EventMessageUpdated, ChatID: msg.ChatID, MessageIndex: idx, PartIndex: -1})
	return idx, nil
}

// AddContentPart appends part to message msgIdx. It returns the new part's
// index and a copy of the updated message.
func (s *State) AddContentPart(msgIdx int, part model.ContentPart) (int, model.Message, error) {
	s.mu.Lock()
	if msgIdx < 0 || msgIdx >= len(s.messages) {
		s.mu.Unlock()
		return 0, model.Message{}, fmt.Errorf("%w: message %d", ErrIndexOutOfRange, msgIdx)
	}
	msg := &s.messages[msgIdx]
	msg.Content = append(msg.Content, part)
	partIdx := len(msg.Content) - 1
	out := msg.Clone()
	chatID := s.currentChatID
	s.mu.Unlock()

	s.notify(Event{Kind: EventMessageUpdated, ChatID: chatID, MessageIndex: msgIdx, PartIndex: partIdx})
	return partIdx, out, nil
}

// AppendText concatenates text onto the Text part at partIdx of message
// msgIdx and returns a copy of the updated message.
func (s *State) AppendText(msgIdx, partIdx int, text string) (model.Message, error) {
	s.mu.Lock()
	if msgIdx < 0 || msgIdx >= len(s.messages) {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("%w: message %d", ErrIndexOutOfRange, msgIdx)
	}
	msg := &s.messages[msgIdx]
	if partIdx < 0 || partIdx >= len(msg.Content) {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("%w: part %d of message %d", ErrIndexOutOfRange, partIdx, msgIdx)
	}
	current, ok := msg.Content[partIdx].(model.Text)
	if !ok {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("%w: part %d is %s", ErrNotText, partIdx, msg.Content[partIdx].Kind())
	}
	msg.Content[partIdx] = model.Text{Text: current.Text + text}
	out := msg.Clone()
	chatID := s.currentChatID
	s.mu.Unlock()

	s.notify(Event{Kind: EventMessageUpdated, ChatID: chatID, MessageIndex: msgIdx, PartIndex: partIdx})
	return out, nil
}

// SetTokens records the token count of message msgIdx.
func (s *State) SetTokens(msgIdx, tokens int) (model.Message, error) {
	s.mu.Lock()
	if msgIdx < 0 || msgIdx >= len(s.messages) {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("%w: message %d", ErrIndexOutOfRange, msgIdx)
	}
	s.messages[msgIdx].Tokens = model.IntPtr(tokens)
	out := s.messages[msgIdx].Clone()
	chatID := s.currentChatID
	s.mu.Unlock()

	s.notify(Event{Kind: EventMessageUpdated, ChatID: chatID, MessageIndex: msgIdx, PartIndex: -1})
	return out, nil
}

// =============================================================================
// READS
// =============================================================================

// Chats returns a copy of the chat list.
func (s *State) Chats() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Chat{}, s.chats...)
}

// Chat returns the chat with id.
func (s *State) Chat(id string) (model.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOfChat(id); i >= 0 {
		return s.chats[i], true
	}
	return model.Chat{}, false
}

// CurrentChatID returns the active chat id, or "" when none is active.
func (s *State) CurrentChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentChatID
}

// Messages returns a deep copy of the active chat's messages.
func (s *State) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneMessages(s.messages)
}

// MessageCount returns how many messages the active chat has.
func (s *State) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Message returns a copy of message i.
func (s *State) Message(i int) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.messages) {
		return model.Message{}, fmt.Errorf("%w: message %d", ErrIndexOutOfRange, i)
	}
	return s.messages[i].Clone(), nil
}

// Snapshot returns the whole state under one lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Chats:         append([]model.Chat{}, s.chats...),
		Messages:      model.CloneMessages(s.messages),
		CurrentChatID: s.currentChatID,
	}
}
