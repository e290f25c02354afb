package store

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	// IdentifierSeparator joins the conversation id and its label in a table name.
	IdentifierSeparator = "-"

	quoteChar = `"`
)

// QuotedIdentifier is a table name that has been escaped and wrapped in double quotes.
// It is safe to interpolate into a statement in the table-name slot.
type QuotedIdentifier string

// Sanitize escapes the quote character by doubling it and wraps the result in quotes.
// Empty input, invalid UTF-8 and NUL bytes are rejected, never coerced.
func Sanitize(raw string) (QuotedIdentifier, error) {
	if raw == "" {
		return "", NewInvalidIdentifierError("sanitize", errors.New("identifier is empty"))
	}
	if !utf8.ValidString(raw) {
		return "", NewInvalidIdentifierError("sanitize", errors.New("identifier is not valid UTF-8"))
	}
	if strings.ContainsRune(raw, 0) {
		return "", NewInvalidIdentifierError("sanitize", errors.New("identifier contains a NUL byte"))
	}
	return QuotedIdentifier(quoteChar + strings.ReplaceAll(raw, quoteChar, quoteChar+quoteChar) + quoteChar), nil
}

// String returns the quoted form.
func (q QuotedIdentifier) String() string {
	return string(q)
}

// Unquote reverses Sanitize and returns the logical table name.
func (q QuotedIdentifier) Unquote() (string, error) {
	s := string(q)
	if len(s) < 2 || !strings.HasPrefix(s, quoteChar) || !strings.HasSuffix(s, quoteChar) {
		return "", NewInvalidIdentifierError("unquote", errors.Errorf("not a quoted identifier: %s", s))
	}
	inner := s[1 : len(s)-1]
	// Every quote inside must come in pairs.
	if strings.Contains(strings.ReplaceAll(inner, quoteChar+quoteChar, ""), quoteChar) {
		return "", NewInvalidIdentifierError("unquote", errors.Errorf("unbalanced quote in identifier: %s", s))
	}
	return strings.ReplaceAll(inner, quoteChar+quoteChar, quoteChar), nil
}

// TableName returns the logical, unquoted table name of a conversation.
func TableName(id int32, name string) string {
	return strconv.FormatInt(int64(id), 10) + IdentifierSeparator + name
}

// ParseIdentifier splits a "{id}-{name}" reference at the first separator.
// The id must be a positive int32 and the name must not be empty.
func ParseIdentifier(raw string) (int32, string, error) {
	idPart, name, ok := strings.Cut(raw, IdentifierSeparator)
	if !ok {
		return 0, "", NewInvalidIdentifierError("parse identifier", errors.Errorf("missing %q separator in %q", IdentifierSeparator, raw))
	}
	if idPart == "" || strings.TrimLeft(idPart, "0123456789") != "" {
		return 0, "", NewInvalidIdentifierError("parse identifier", errors.Errorf("conversation id is not a number: %q", idPart))
	}
	id, err := strconv.ParseInt(idPart, 10, 32)
	if err != nil || id <= 0 {
		return 0, "", NewInvalidIdentifierError("parse identifier", errors.Errorf("conversation id out of range: %q", idPart))
	}
	if name == "" {
		return 0, "", NewInvalidIdentifierError("parse identifier", errors.New("conversation name is empty"))
	}
	return int32(id), name, nil
}
