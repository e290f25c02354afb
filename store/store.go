package store

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wiesioai/wiesio/internal/profile"
	"github.com/wiesioai/wiesio/store/cache"
)

// Store provides database access to the conversation catalog and conversation tables.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// conversationCache holds catalog rows by id. Rows are immutable once created.
	conversationCache *cache.Cache[int32, *Conversation]
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
		conversationCache: cache.New[int32, *Conversation](cache.Config{
			MaxItems:   1000,
			DefaultTTL: 10 * time.Minute,
		}),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.conversationCache.Clear()
	return s.driver.Close()
}

// ForConversation returns the sanitized table reference of a conversation.
func (s *Store) ForConversation(conversation *Conversation) (TableRef, error) {
	return NewTableRef(conversation, s.driver.Dialect())
}

// CreateConversation assigns a fresh id, inserts the catalog row and creates the conversation
// table atomically. On failure no catalog row remains.
func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	if create == nil || strings.TrimSpace(create.Name) == "" {
		return nil, NewInvalidIdentifierError("create conversation", errors.New("conversation name is empty"))
	}
	if _, err := Sanitize(create.Name); err != nil {
		return nil, err
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	conversation, err := s.driver.CreateConversation(ctx, create)
	if err != nil {
		slog.Warn("failed to create conversation", slog.String("name", create.Name), slog.String("error", err.Error()))
		return nil, err
	}
	s.conversationCache.Set(conversation.ID, conversation, 0)
	slog.Debug("conversation created", slog.Int("id", int(conversation.ID)), slog.String("identifier", conversation.Identifier()))
	return conversation, nil
}

// ListConversations returns catalog rows in id order.
func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	if find == nil {
		find = &FindConversation{}
	}
	return s.driver.ListConversations(ctx, find)
}

// GetConversation resolves a "{id}-{name}" reference to its catalog row.
func (s *Store) GetConversation(ctx context.Context, ref string) (*Conversation, error) {
	conversation, _, err := s.resolve(ctx, ref)
	return conversation, err
}

// ReadConversation returns the messages of a conversation in insertion order.
func (s *Store) ReadConversation(ctx context.Context, ref string) ([]*Message, error) {
	_, table, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.driver.ListMessages(ctx, &FindMessage{Table: table})
}

// AppendTurn writes the user message and the assistant reply to a conversation.
// Either both rows become visible or neither does.
func (s *Store) AppendTurn(ctx context.Context, ref, userMessage, assistantMessage string) error {
	_, table, err := s.resolve(ctx, ref)
	if err != nil {
		if !HasKind(err) {
			return NewPersistenceError("append turn", err)
		}
		return err
	}
	return s.driver.AppendTurn(ctx, &AppendTurn{
		Table:            table,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
	})
}

// resolve maps an untrusted reference to a conversation and its table.
// The table name is rebuilt from the catalog row, never taken from ref.
func (s *Store) resolve(ctx context.Context, ref string) (*Conversation, TableRef, error) {
	if _, err := Sanitize(ref); err != nil {
		return nil, TableRef{}, err
	}
	id, name, err := ParseIdentifier(ref)
	if err != nil {
		return nil, TableRef{}, err
	}

	conversation, err := s.getConversationByID(ctx, id)
	if err != nil {
		return nil, TableRef{}, err
	}
	if conversation == nil || conversation.Name != name {
		return nil, TableRef{}, NewNotFoundError("resolve conversation", errors.Errorf("no conversation %q", ref))
	}

	table, err := s.ForConversation(conversation)
	if err != nil {
		return nil, TableRef{}, err
	}
	exists, err := s.driver.TableExists(ctx, table)
	if err != nil {
		return nil, TableRef{}, errors.Wrap(err, "failed to check conversation table")
	}
	if !exists {
		return nil, TableRef{}, NewNotFoundError("resolve conversation", errors.Errorf("table of conversation %q does not exist", ref))
	}
	return conversation, table, nil
}

func (s *Store) getConversationByID(ctx context.Context, id int32) (*Conversation, error) {
	if conversation, ok := s.conversationCache.Get(id); ok {
		return conversation, nil
	}
	list, err := s.driver.ListConversations(ctx, &FindConversation{ID: &id})
	if err != nil {
		return nil, errors.Wrap(err, "failed to find conversation")
	}
	if len(list) == 0 {
		return nil, nil
	}
	s.conversationCache.Set(id, list[0], 0)
	return list[0], nil
}
