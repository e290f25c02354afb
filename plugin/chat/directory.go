package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Conversation identifies a conversation known to the directory.
type Conversation struct {
	ID         int32  `json:"id"`
	Name       string `json:"name"`
	Identifier string `json:"identifier,omitempty"`
}

// Directory is the conversation store as seen by a chat client.
type Directory interface {
	ListConversations(ctx context.Context) ([]Conversation, error)
	CreateConversation(ctx context.Context, coverImage []byte) (*Conversation, error)
	AppendTurn(ctx context.Context, identifier, userMessage, assistantMessage string) error
	ReadConversation(ctx context.Context, identifier string) ([]Message, error)
}

// APIError is an error response of the directory API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("directory returned %d %s: %s", e.Status, e.Code, e.Message)
}

// Is lets errors.Is match NOT_FOUND responses against ErrConversationNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrConversationNotFound && e.Code == "NOT_FOUND"
}

// DirectoryClient is the HTTP implementation of Directory.
type DirectoryClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewDirectoryClient creates a client for the directory API at endpoint.
func NewDirectoryClient(endpoint string, timeout time.Duration) *DirectoryClient {
	return &DirectoryClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *DirectoryClient) ListConversations(ctx context.Context) ([]Conversation, error) {
	var list []Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, http.StatusOK, &list); err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Identifier = fmt.Sprintf("%d-%s", list[i].ID, list[i].Name)
	}
	return list, nil
}

func (c *DirectoryClient) CreateConversation(ctx context.Context, coverImage []byte) (*Conversation, error) {
	var body any
	if len(coverImage) > 0 {
		body = map[string][]byte{"coverImage": coverImage}
	}
	conversation := &Conversation{}
	if err := c.do(ctx, http.MethodPost, "/conversations", body, http.StatusCreated, conversation); err != nil {
		return nil, err
	}
	if conversation.Identifier == "" {
		return nil, errors.New("directory returned a conversation without identifier")
	}
	return conversation, nil
}

func (c *DirectoryClient) AppendTurn(ctx context.Context, identifier, userMessage, assistantMessage string) error {
	body := map[string]string{
		"userMessage":      userMessage,
		"assistantMessage": assistantMessage,
	}
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(identifier)+"/turns", body, http.StatusOK, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New("directory did not acknowledge the turn")
	}
	return nil
}

func (c *DirectoryClient) ReadConversation(ctx context.Context, identifier string) ([]Message, error) {
	var messages []Message
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(identifier), nil, http.StatusOK, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *DirectoryClient) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrNetworkFailure, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "UNKNOWN"
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
