// Package chat drives a segmentation chat session: one turn at a time, against the
// segmentation service and the conversation directory.
package chat

import (
	"sync"
)

// Status is the state of a session.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
)

// Message senders.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message is one transcript entry. ID is zero for messages not read from the directory.
type Message struct {
	ID      int32  `json:"id,omitempty"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// Session is the client-side state of one chat. Mutations go through the Orchestrator.
type Session struct {
	mu sync.RWMutex

	messages []Message
	draft    string
	status   Status
	lastErr  error

	// conversationID is set at the first persisted turn or by hydration.
	conversationID string
	// pendingID is a conversation created by a turn whose append failed.
	// The next turn appends to it instead of creating another one.
	pendingID string
}

// NewSession returns an idle, empty session.
func NewSession() *Session {
	return &Session{status: StatusIdle}
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Draft returns the current input draft.
func (s *Session) Draft() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft
}

// SetDraft replaces the input draft.
func (s *Session) SetDraft(draft string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = draft
}

// Status returns idle or loading.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastError returns the error of the last failed turn, or nil.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ConversationID returns the durable "{id}-{name}" identifier, or "" before the first persisted turn.
func (s *Session) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

func (s *Session) begin(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusLoading
	s.lastErr = nil
	s.draft = ""
	s.messages = append(s.messages, Message{Sender: SenderUser, Content: user})
}

func (s *Session) appendAssistant(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{Sender: SenderAssistant, Content: content})
}

func (s *Session) history() []Message {
	return s.Messages()
}

func (s *Session) target() (id string, pending bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conversationID != "" {
		return s.conversationID, false
	}
	return s.pendingID, s.pendingID != ""
}

func (s *Session) setPending(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingID = id
}

func (s *Session) commit(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
	s.pendingID = ""
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusIdle
	s.lastErr = err
}

func (s *Session) replace(id string, messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = messages
	s.conversationID = id
	s.pendingID = ""
	s.lastErr = nil
	s.draft = ""
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.conversationID = ""
	s.pendingID = ""
	s.lastErr = nil
	s.draft = ""
	s.status = StatusIdle
}

func (s *Session) setLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusLoading
}
