package test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiesioai/wiesio/store"
)

func TestConversationStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	conversation, err := ts.CreateConversation(ctx, &store.Conversation{
		Name:       "abcdef",
		CoverImage: []byte{1, 2, 3},
	})
	require.NoError(t, err)
	require.Greater(t, conversation.ID, int32(0))
	require.NotZero(t, conversation.CreatedTs)

	ref := conversation.Identifier()
	require.Equal(t, fmt.Sprintf("%d-abcdef", conversation.ID), ref)

	// A new conversation has no messages.
	messages, err := ts.ReadConversation(ctx, ref)
	require.NoError(t, err)
	require.Empty(t, messages)

	require.NoError(t, ts.AppendTurn(ctx, ref, "Hello", "Hi!"))
	messages, err = ts.ReadConversation(ctx, ref)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, store.SenderUser, messages[0].Sender)
	assert.Equal(t, "Hello", messages[0].Content)
	assert.Equal(t, store.SenderAssistant, messages[1].Sender)
	assert.Equal(t, "Hi!", messages[1].Content)
	assert.Less(t, messages[0].ID, messages[1].ID)

	got, err := ts.GetConversation(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, conversation.ID, got.ID)
	assert.Equal(t, []byte{1, 2, 3}, got.CoverImage)

	list, err := ts.ListConversations(ctx, nil)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	found := false
	for _, c := range list {
		if c.ID == conversation.ID {
			found = true
			assert.Equal(t, "abcdef", c.Name)
		}
	}
	assert.True(t, found)
}

func TestConversationStoreOrderingAfterManyTurns(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	conversation, err := ts.CreateConversation(ctx, &store.Conversation{Name: "ordering"})
	require.NoError(t, err)
	ref := conversation.Identifier()

	const turns = 25
	for i := 0; i < turns; i++ {
		require.NoError(t, ts.AppendTurn(ctx, ref, fmt.Sprintf("u%d", i), fmt.Sprintf("a%d", i)))
	}

	messages, err := ts.ReadConversation(ctx, ref)
	require.NoError(t, err)
	require.Len(t, messages, 2*turns)
	for i := 0; i < turns; i++ {
		user, assistant := messages[2*i], messages[2*i+1]
		assert.Equal(t, store.SenderUser, user.Sender)
		assert.Equal(t, fmt.Sprintf("u%d", i), user.Content)
		assert.Equal(t, store.SenderAssistant, assistant.Sender)
		assert.Equal(t, fmt.Sprintf("a%d", i), assistant.Content)
	}
	for i := 1; i < len(messages); i++ {
		assert.Less(t, messages[i-1].ID, messages[i].ID)
	}
}

func TestConversationStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	conversation, err := ts.CreateConversation(ctx, &store.Conversation{Name: "concurrent"})
	require.NoError(t, err)
	ref := conversation.Identifier()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- ts.AppendTurn(ctx, ref, fmt.Sprintf("u%d", i), fmt.Sprintf("a%d", i))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Pairs never interleave.
	messages, err := ts.ReadConversation(ctx, ref)
	require.NoError(t, err)
	require.Len(t, messages, 2*workers)
	for i := 0; i < len(messages); i += 2 {
		assert.Equal(t, store.SenderUser, messages[i].Sender)
		assert.Equal(t, store.SenderAssistant, messages[i+1].Sender)
		assert.Equal(t, "a"+messages[i].Content[1:], messages[i+1].Content)
	}
}

func TestConversationStoreHostileNames(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	for _, name := range []string{
		`x"; DROP TABLE conversation; --`,
		`he said "hi"`,
		`a-b-c`,
		`Zoë`,
	} {
		conversation, err := ts.CreateConversation(ctx, &store.Conversation{Name: name})
		require.NoError(t, err, "name=%q", name)

		ref := conversation.Identifier()
		require.NoError(t, ts.AppendTurn(ctx, ref, "ping", "pong"))
		messages, err := ts.ReadConversation(ctx, ref)
		require.NoError(t, err)
		require.Len(t, messages, 2)
	}

	// The catalog survived every attempt.
	list, err := ts.ListConversations(ctx, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(list), 4)
}

func TestConversationStoreResolveErrors(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	conversation, err := ts.CreateConversation(ctx, &store.Conversation{Name: "known"})
	require.NoError(t, err)

	tests := []struct {
		name string
		ref  string
		kind error
	}{
		{name: "empty", ref: "", kind: store.ErrInvalidIdentifier},
		{name: "no separator", ref: "known", kind: store.ErrInvalidIdentifier},
		{name: "non numeric id", ref: "abc-known", kind: store.ErrInvalidIdentifier},
		{name: "nul byte", ref: fmt.Sprintf("%d-kn\x00own", conversation.ID), kind: store.ErrInvalidIdentifier},
		{name: "unknown id", ref: "999999-known", kind: store.ErrNotFound},
		{name: "wrong name", ref: fmt.Sprintf("%d-other", conversation.ID), kind: store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.ReadConversation(ctx, tt.ref)
			require.ErrorIs(t, err, tt.kind)

			err = ts.AppendTurn(ctx, tt.ref, "u", "a")
			require.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestCreateConversationRejectsEmptyName(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	_, err := ts.CreateConversation(ctx, &store.Conversation{Name: "  "})
	require.ErrorIs(t, err, store.ErrInvalidIdentifier)
	_, err = ts.CreateConversation(ctx, nil)
	require.ErrorIs(t, err, store.ErrInvalidIdentifier)
}

func TestListConversationsPaging(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	var ids []int32
	for _, name := range []string{"one", "two", "three"} {
		c, err := ts.CreateConversation(ctx, &store.Conversation{Name: name})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	name := "two"
	list, err := ts.ListConversations(ctx, &store.FindConversation{Name: &name})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ids[1], list[0].ID)

	id := ids[2]
	list, err = ts.ListConversations(ctx, &store.FindConversation{ID: &id})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "three", list[0].Name)
}

func TestListConversationsNewestFirstWithoutCover(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	var ids []int32
	for _, name := range []string{"one", "two", "three"} {
		c, err := ts.CreateConversation(ctx, &store.Conversation{Name: name, CoverImage: []byte{1, 2, 3}})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	list, err := ts.ListConversations(ctx, &store.FindConversation{Limit: 2, Descending: true, ExcludeCover: true})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)
	for _, c := range list {
		assert.Nil(t, c.CoverImage)
		assert.NotZero(t, c.CreatedTs)
	}

	list, err = ts.ListConversations(ctx, &store.FindConversation{Limit: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ids[0], list[0].ID)
	assert.Equal(t, []byte{1, 2, 3}, list[0].CoverImage)
}

func TestDemoSeed(t *testing.T) {
	if getDriverFromEnv() != "sqlite" {
		t.Skip("demo seed is only checked on a fresh SQLite file")
	}
	ctx := context.Background()
	ts := NewDemoTestingStore(ctx, t)

	list, err := ts.ListConversations(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "Alice", list[0].Name)
	assert.Equal(t, []byte{1, 2, 3}, list[0].CoverImage)
	assert.Equal(t, "Diana", list[3].Name)

	// Seeded conversations have their tables.
	messages, err := ts.ReadConversation(ctx, list[1].Identifier())
	require.NoError(t, err)
	assert.Empty(t, messages)

	// Migrating again does not seed twice.
	require.NoError(t, ts.Migrate(ctx))
	list, err = ts.ListConversations(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, list, 4)
}
