package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiesioai/wiesio/internal/profile"
	"github.com/wiesioai/wiesio/server"
	teststore "github.com/wiesioai/wiesio/store/test"
)

func newDirectoryServer(t *testing.T) *DirectoryClient {
	t.Helper()
	ctx := context.Background()
	ts := teststore.NewTestingStore(ctx, t)
	p := &profile.Profile{Mode: "dev", Version: "test", RateLimit: 1000, RateBurst: 1000}
	s, err := server.NewServer(ctx, p, ts)
	require.NoError(t, err)

	httpServer := httptest.NewServer(s.Handler())
	t.Cleanup(httpServer.Close)
	return NewDirectoryClient(httpServer.URL+"/", 5*time.Second)
}

func TestDirectoryClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newDirectoryServer(t)

	conversation, err := client.CreateConversation(ctx, testPNG(t))
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]+-[a-z]{6}$`, conversation.Identifier)

	require.NoError(t, client.AppendTurn(ctx, conversation.Identifier, "Hello", "Hi!"))
	require.NoError(t, client.AppendTurn(ctx, conversation.Identifier, "Segment the cat", ""))

	messages, err := client.ReadConversation(ctx, conversation.Identifier)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, SenderUser, messages[0].Sender)
	assert.Equal(t, "Hello", messages[0].Content)
	assert.Equal(t, SenderAssistant, messages[1].Sender)
	assert.Equal(t, "Hi!", messages[1].Content)
	assert.Equal(t, "", messages[3].Content)
	for i := 1; i < len(messages); i++ {
		assert.Greater(t, messages[i].ID, messages[i-1].ID)
	}

	list, err := client.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, conversation.Identifier, list[0].Identifier)
}

func TestDirectoryClientErrors(t *testing.T) {
	ctx := context.Background()
	client := newDirectoryServer(t)

	_, err := client.ReadConversation(ctx, "42-nothere")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	err = client.AppendTurn(ctx, "42-nothere", "Hello", "Hi!")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = client.ReadConversation(ctx, "x; DROP TABLE conversation")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "INVALID_IDENTIFIER", apiErr.Code)
}

func TestDirectoryClientNetworkFailure(t *testing.T) {
	httpServer := httptest.NewServer(http.NotFoundHandler())
	endpoint := httpServer.URL
	httpServer.Close()

	client := NewDirectoryClient(endpoint, time.Second)
	_, err := client.CreateConversation(context.Background(), nil)
	require.ErrorIs(t, err, ErrNetworkFailure)
}

func TestOrchestratorAgainstDirectory(t *testing.T) {
	ctx := context.Background()
	client := newDirectoryServer(t)
	segmenter := &fakeSegmenter{reply: "Hi!", mask: "m1.png"}

	o := NewOrchestrator(segmenter, client)
	o.SetBaseImage("base.png", testPNG(t))
	result, err := o.Send(ctx, "Hello")
	require.NoError(t, err)
	_, err = o.Send(ctx, "More")
	require.NoError(t, err)

	// A second session opened on the same conversation sees the same transcript.
	other := NewOrchestrator(segmenter, client)
	require.NoError(t, other.Hydrate(ctx, result.ConversationID))
	local := o.Session().Messages()
	hydrated := other.Session().Messages()
	require.Len(t, hydrated, len(local))
	for i := range local {
		assert.Equal(t, local[i].Sender, hydrated[i].Sender)
		assert.Equal(t, local[i].Content, hydrated[i].Content)
	}
}
