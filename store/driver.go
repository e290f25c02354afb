package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Dialect selects how per-conversation statements are rendered.
	Dialect() Dialect
	IsInitialized(ctx context.Context) (bool, error)

	// Conversation catalog related methods.
	// CreateConversation inserts the catalog row and creates the message table in one transaction.
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)

	// Conversation table related methods.
	// AppendTurn inserts the user row then the assistant row in one transaction.
	AppendTurn(ctx context.Context, turn *AppendTurn) error
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	TableExists(ctx context.Context, table TableRef) (bool, error)
}
