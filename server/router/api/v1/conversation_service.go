package v1

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	apierrors "github.com/wiesioai/wiesio/server/internal/errors"
	"github.com/wiesioai/wiesio/store"
)

// ConversationSummary is one catalog entry.
type ConversationSummary struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// MessageResponse is one row of a conversation table.
type MessageResponse struct {
	ID      int32  `json:"id"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
}

// CreateConversationRequest is the optional body of POST /conversations.
// CoverImage travels as base64 in JSON.
type CreateConversationRequest struct {
	CoverImage []byte `json:"coverImage,omitempty"`
}

// CreateConversationResponse identifies the new conversation.
type CreateConversationResponse struct {
	ID         int32  `json:"id"`
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
	Quoted     string `json:"quoted"`
}

// AppendTurnRequest carries one user/assistant exchange.
type AppendTurnRequest struct {
	UserMessage      string `json:"userMessage"`
	AssistantMessage string `json:"assistantMessage"`
}

// AppendTurnResponse acknowledges a committed turn.
type AppendTurnResponse struct {
	Success bool `json:"success"`
}

// ListConversations returns the catalog in id order, optionally filtered by a CEL expression.
// GET /conversations?filter=name.startsWith("a")
func (s *APIV1Service) ListConversations(c echo.Context) error {
	ctx := c.Request().Context()

	var filter *ConversationFilter
	if expr := strings.TrimSpace(c.QueryParam("filter")); expr != "" {
		f, err := NewConversationFilter(expr)
		if err != nil {
			return apierrors.Wrap(err, apierrors.ErrCodeInvalidArgument, "invalid filter")
		}
		filter = f
	}

	conversations, err := s.Store.ListConversations(ctx, &store.FindConversation{ExcludeCover: true})
	if err != nil {
		return errors.Wrap(err, "failed to list conversations")
	}

	list := make([]ConversationSummary, 0, len(conversations))
	for _, conversation := range conversations {
		if filter != nil {
			ok, err := filter.Match(conversation)
			if err != nil {
				return apierrors.Wrap(err, apierrors.ErrCodeInvalidArgument, "failed to evaluate filter")
			}
			if !ok {
				continue
			}
		}
		list = append(list, ConversationSummary{ID: conversation.ID, Name: conversation.Name})
	}
	return c.JSON(http.StatusOK, list)
}

// GetConversation returns the messages of a conversation in insertion order.
// GET /conversations/:id[?format=html]
func (s *APIV1Service) GetConversation(c echo.Context) error {
	ctx := c.Request().Context()
	ref, err := conversationParam(c)
	if err != nil {
		return err
	}

	format := c.QueryParam("format")
	if format != "" && format != "html" {
		return apierrors.InvalidArgument("format must be empty or html")
	}

	messages, err := s.Store.ReadConversation(ctx, ref)
	if err != nil {
		return err
	}

	list := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		resp := MessageResponse{
			ID:      message.ID,
			Sender:  string(message.Sender),
			Content: message.Content,
		}
		if format == "html" {
			html, err := s.markdown.RenderHTML(message.Content)
			if err != nil {
				return errors.Wrapf(err, "failed to render message %d", message.ID)
			}
			resp.HTML = html
		}
		list = append(list, resp)
	}
	return c.JSON(http.StatusOK, list)
}

// GetConversationCover returns the cover image stored with the conversation.
// GET /conversations/:id/cover
func (s *APIV1Service) GetConversationCover(c echo.Context) error {
	ctx := c.Request().Context()
	ref, err := conversationParam(c)
	if err != nil {
		return err
	}

	conversation, err := s.Store.GetConversation(ctx, ref)
	if err != nil {
		return err
	}
	if len(conversation.CoverImage) == 0 {
		return c.NoContent(http.StatusNoContent)
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=3600")
	return c.Blob(http.StatusOK, http.DetectContentType(conversation.CoverImage), conversation.CoverImage)
}

// CreateConversation creates a conversation with a random label and its message table.
// POST /conversations
func (s *APIV1Service) CreateConversation(c echo.Context) error {
	ctx := c.Request().Context()

	request := &CreateConversationRequest{}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(request); err != nil {
			return apierrors.Wrap(err, apierrors.ErrCodeInvalidArgument, "invalid request body")
		}
	}

	conversation, err := s.Store.CreateConversation(ctx, &store.Conversation{
		Name:       s.newLabel(),
		CoverImage: request.CoverImage,
	})
	if err != nil {
		return err
	}

	table, err := s.Store.ForConversation(conversation)
	if err != nil {
		return err
	}
	slog.Info("created conversation", slog.String("identifier", conversation.Identifier()))
	return c.JSON(http.StatusCreated, CreateConversationResponse{
		ID:         conversation.ID,
		Name:       conversation.Name,
		Identifier: conversation.Identifier(),
		Quoted:     table.Quoted().String(),
	})
}

// AppendTurn stores one user/assistant exchange atomically.
// POST /conversations/:id/turns
func (s *APIV1Service) AppendTurn(c echo.Context) error {
	ctx := c.Request().Context()
	ref, err := conversationParam(c)
	if err != nil {
		return err
	}

	request := &AppendTurnRequest{}
	if err := c.Bind(request); err != nil {
		return apierrors.Wrap(err, apierrors.ErrCodeInvalidArgument, "invalid request body")
	}
	if request.UserMessage == "" {
		return apierrors.InvalidArgument("userMessage is required")
	}

	if err := s.Store.AppendTurn(ctx, ref, request.UserMessage, request.AssistantMessage); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AppendTurnResponse{Success: true})
}

// conversationParam returns the decoded ":id" path parameter and checks it with the sanitizer.
func conversationParam(c echo.Context) (string, error) {
	ref := c.Param("id")
	// The router matches on the raw path when the URL carries escapes it would not produce itself.
	if c.Request().URL.RawPath != "" {
		unescaped, err := url.PathUnescape(ref)
		if err != nil {
			return "", apierrors.Wrap(err, apierrors.ErrCodeInvalidIdentifier, "invalid conversation identifier")
		}
		ref = unescaped
	}
	if _, err := store.Sanitize(ref); err != nil {
		return "", err
	}
	return ref, nil
}
