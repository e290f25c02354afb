package v1

import (
	"context"
	"encoding/xml"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiesioai/wiesio/store"
)

type rssDocument struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
		} `xml:"item"`
	} `xml:"channel"`
}

func TestGetRSS(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	s.service.Profile.ServerURL = "http://chat.example/"

	first, err := s.store.CreateConversation(ctx, &store.Conversation{Name: "first"})
	require.NoError(t, err)
	require.NoError(t, s.store.AppendTurn(ctx, first.Identifier(), "Segment **the cat**", "Done"))
	second, err := s.store.CreateConversation(ctx, &store.Conversation{Name: "second"})
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/rss.xml", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/rss+xml")

	var doc rssDocument
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Channel.Items, 2)

	// Newest conversation first; an empty one is titled by its identifier.
	assert.Equal(t, second.Identifier(), doc.Channel.Items[0].Title)
	assert.Equal(t, "http://chat.example/chat/"+second.Identifier(), doc.Channel.Items[0].Link)
	assert.Equal(t, "Segment **the cat**", doc.Channel.Items[1].Title)
	assert.Contains(t, doc.Channel.Items[1].Description, "<strong>the cat</strong>")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab...", truncate("abc", 2))
	assert.Equal(t, "żó...", truncate("żółw", 2))
}

func TestGetRSSKeepsNewest(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	var last *store.Conversation
	for i := 0; i < maxRSSItemCount+5; i++ {
		c, err := s.store.CreateConversation(ctx, &store.Conversation{Name: "bulk"})
		require.NoError(t, err)
		last = c
	}

	rec := s.do(t, http.MethodGet, "/rss.xml", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var doc rssDocument
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Channel.Items, maxRSSItemCount)
	assert.Equal(t, last.Identifier(), doc.Channel.Items[0].Title)
}
