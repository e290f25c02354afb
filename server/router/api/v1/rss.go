package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wiesioai/wiesio/store"
)

const (
	maxRSSItemCount = 20
	// maxRSSItemTitleLength bounds the first user message used as item title.
	maxRSSItemTitleLength = 128
	chatPathPrefix        = "/chat/"
)

// GetRSS returns the most recent conversations as an RSS feed.
// GET /rss.xml
func (s *APIV1Service) GetRSS(c echo.Context) error {
	ctx := c.Request().Context()
	conversations, err := s.Store.ListConversations(ctx, &store.FindConversation{
		Limit:        maxRSSItemCount,
		Descending:   true,
		ExcludeCover: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to list conversations")
	}

	baseURL := strings.TrimRight(s.Profile.ServerURL, "/")
	feed := &feeds.Feed{
		Title:       "wiesio",
		Link:        &feeds.Link{Href: baseURL},
		Description: "Recent segmentation conversations",
		Created:     time.Now(),
	}
	for _, conversation := range conversations {
		item, err := s.rssItem(c, baseURL, conversation)
		if err != nil {
			return err
		}
		feed.Items = append(feed.Items, item)
	}

	rss, err := feed.ToRss()
	if err != nil {
		return errors.Wrap(err, "failed to generate rss")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	return c.String(http.StatusOK, rss)
}

func (s *APIV1Service) rssItem(c echo.Context, baseURL string, conversation *store.Conversation) (*feeds.Item, error) {
	identifier := conversation.Identifier()
	item := &feeds.Item{
		Id:    identifier,
		Title: identifier,
		Link:  &feeds.Link{Href: baseURL + chatPathPrefix + identifier},
	}
	if conversation.CreatedTs > 0 {
		item.Created = time.Unix(conversation.CreatedTs, 0)
	}

	messages, err := s.Store.ReadConversation(c.Request().Context(), identifier)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read conversation %s", identifier)
	}
	var content strings.Builder
	titled := false
	for _, message := range messages {
		if title := strings.TrimSpace(message.Content); !titled && title != "" && message.Sender == store.SenderUser {
			item.Title = truncate(title, maxRSSItemTitleLength)
			titled = true
		}
		content.WriteString(message.Content)
		content.WriteString("\n\n")
	}
	if content.Len() > 0 {
		html, err := s.markdown.RenderHTML(content.String())
		if err != nil {
			return nil, errors.Wrapf(err, "failed to render conversation %s", identifier)
		}
		item.Description = html
	}
	return item, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
