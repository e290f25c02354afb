package v1

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"github.com/wiesioai/wiesio/store"
)

// ConversationFilter is a compiled CEL predicate over a catalog entry.
// Expressions see two variables: id (int) and name (string).
type ConversationFilter struct {
	program cel.Program
}

// NewConversationFilter compiles expr. The expression must evaluate to a bool.
func NewConversationFilter(expr string) (*ConversationFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.IntType),
		cel.Variable("name", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create filter environment")
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "failed to compile filter %q", expr)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build filter program")
	}
	return &ConversationFilter{program: program}, nil
}

// Match reports whether the conversation satisfies the filter.
func (f *ConversationFilter) Match(conversation *store.Conversation) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{
		"id":   int64(conversation.ID),
		"name": conversation.Name,
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to evaluate filter")
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("filter returned %T, want bool", out.Value())
	}
	return matched, nil
}
