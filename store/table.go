package store

import (
	"fmt"

	"github.com/pkg/errors"
)

// Dialect selects the SQL flavour used to render per-conversation statements.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// maxIdentifierLength returns the longest table name the dialect keeps intact.
// PostgreSQL silently truncates at NAMEDATALEN-1 bytes; SQLite has no limit.
func (d Dialect) maxIdentifierLength() int {
	if d == DialectPostgres {
		return 63
	}
	return 0
}

// StatementKind names one of the statements run against a conversation table.
type StatementKind int

const (
	StatementCreateTable StatementKind = iota
	StatementInsertMessage
	StatementSelectMessages
	StatementCountMessages
)

// TableRef points at the message table of one conversation.
// The zero value is invalid; obtain one through NewTableRef.
type TableRef struct {
	conversationID int32
	name           string
	quoted         QuotedIdentifier
	dialect        Dialect
}

// NewTableRef derives the table reference from the conversation's own id and name.
// This is the only way to obtain a TableRef, so every dynamic table name passes the sanitizer.
func NewTableRef(conversation *Conversation, dialect Dialect) (TableRef, error) {
	if conversation == nil || conversation.ID <= 0 {
		return TableRef{}, NewInvalidIdentifierError("table ref", errors.New("conversation has no id"))
	}
	if conversation.Name == "" {
		return TableRef{}, NewInvalidIdentifierError("table ref", errors.New("conversation has no name"))
	}
	logical := TableName(conversation.ID, conversation.Name)
	if limit := dialect.maxIdentifierLength(); limit > 0 && len(logical) > limit {
		return TableRef{}, NewInvalidIdentifierError("table ref", errors.Errorf("table name %q exceeds %d bytes", logical, limit))
	}
	quoted, err := Sanitize(logical)
	if err != nil {
		return TableRef{}, err
	}
	return TableRef{
		conversationID: conversation.ID,
		name:           logical,
		quoted:         quoted,
		dialect:        dialect,
	}, nil
}

// ConversationID returns the id of the owning conversation.
func (t TableRef) ConversationID() int32 {
	return t.conversationID
}

// Name returns the logical, unquoted table name.
func (t TableRef) Name() string {
	return t.name
}

// Quoted returns the sanitized table identifier.
func (t TableRef) Quoted() QuotedIdentifier {
	return t.quoted
}

// IsValid reports whether the reference was produced by NewTableRef.
func (t TableRef) IsValid() bool {
	return t.quoted != ""
}

// Statement renders the SQL text for kind. All statement text that embeds a
// conversation table name is assembled here and nowhere else.
func (t TableRef) Statement(kind StatementKind) (string, error) {
	if !t.IsValid() {
		return "", NewInvalidIdentifierError("statement", errors.New("table reference was not sanitized"))
	}
	switch kind {
	case StatementCreateTable:
		if t.dialect == DialectPostgres {
			return fmt.Sprintf(`CREATE TABLE %s (
				id SERIAL PRIMARY KEY,
				sender TEXT NOT NULL CHECK (sender IN ('user', 'assistant')),
				content TEXT NOT NULL
			)`, t.quoted), nil
		}
		return fmt.Sprintf(`CREATE TABLE %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
			sender TEXT NOT NULL CHECK (sender IN ('user', 'assistant')),
			content TEXT NOT NULL
		)`, t.quoted), nil
	case StatementInsertMessage:
		if t.dialect == DialectPostgres {
			return fmt.Sprintf(`INSERT INTO %s (sender, content) VALUES ($1, $2)`, t.quoted), nil
		}
		return fmt.Sprintf(`INSERT INTO %s (sender, content) VALUES (?, ?)`, t.quoted), nil
	case StatementSelectMessages:
		return fmt.Sprintf(`SELECT id, sender, content FROM %s ORDER BY id ASC`, t.quoted), nil
	case StatementCountMessages:
		return fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t.quoted), nil
	default:
		return "", errors.Errorf("unknown statement kind: %d", kind)
	}
}
