package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/wiesioai/wiesio/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.NewPersistenceError("create conversation", errors.Wrap(err, "failed to start transaction"))
	}
	defer tx.Rollback()

	cover := create.CoverImage
	if cover == nil {
		cover = []byte{}
	}
	fields := []string{"name", "cover_image", "created_ts"}
	args := []any{create.Name, cover, create.CreatedTs}
	stmt := `INSERT INTO conversation (` + strings.Join(fields, ", ") + `) VALUES (` + placeholders(len(args)) + `) RETURNING id`
	if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, store.NewPersistenceError("create conversation", errors.Wrap(err, "failed to insert catalog row"))
	}

	table, err := store.NewTableRef(create, d.Dialect())
	if err != nil {
		return nil, err
	}
	ddl, err := table.Statement(store.StatementCreateTable)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return nil, store.NewPersistenceError("create conversation", errors.Wrapf(err, "failed to create table %s", table.Quoted()))
	}

	if err := tx.Commit(); err != nil {
		return nil, store.NewPersistenceError("create conversation", errors.Wrap(err, "failed to commit transaction"))
	}
	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.Name; v != nil {
		where, args = append(where, "name = ?"), append(args, *v)
	}

	fields := []string{"id", "name", "created_ts"}
	if !find.ExcludeCover {
		fields = append(fields, "cover_image")
	}
	order := "ASC"
	if find.Descending {
		order = "DESC"
	}
	query := `SELECT ` + strings.Join(fields, ", ") + ` FROM conversation WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ` + order
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
		if find.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := make([]*store.Conversation, 0)
	for rows.Next() {
		c := &store.Conversation{}
		dest := []any{&c.ID, &c.Name, &c.CreatedTs}
		if !find.ExcludeCover {
			dest = append(dest, &c.CoverImage)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate conversations")
	}
	return list, nil
}

func (d *DB) AppendTurn(ctx context.Context, turn *store.AppendTurn) error {
	stmt, err := turn.Table.Statement(store.StatementInsertMessage)
	if err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return store.NewPersistenceError("append turn", errors.Wrap(err, "failed to start transaction"))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmt, string(store.SenderUser), turn.UserMessage); err != nil {
		return store.NewPersistenceError("append turn", errors.Wrap(err, "failed to insert user message"))
	}
	if _, err := tx.ExecContext(ctx, stmt, string(store.SenderAssistant), turn.AssistantMessage); err != nil {
		return store.NewPersistenceError("append turn", errors.Wrap(err, "failed to insert assistant message"))
	}

	if err := tx.Commit(); err != nil {
		return store.NewPersistenceError("append turn", errors.Wrap(err, "failed to commit transaction"))
	}
	return nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	query, err := find.Table.Statement(store.StatementSelectMessages)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list messages of %s", find.Table.Quoted())
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		var sender string
		if err := rows.Scan(&m.ID, &sender, &m.Content); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		m.Sender = store.Sender(sender)
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate messages")
	}
	return list, nil
}

func (d *DB) TableExists(ctx context.Context, table store.TableRef) (bool, error) {
	if !table.IsValid() {
		return false, store.NewInvalidIdentifierError("table exists", errors.New("table reference was not sanitized"))
	}
	var exists bool
	// The logical name is bound as a value here, not interpolated.
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)", table.Name()).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check table")
	}
	return exists, nil
}
