package segment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// Sentinel errors for segmentation client operations.
var (
	// ErrNotRunning is returned when nothing listens at the configured endpoint.
	ErrNotRunning = errors.New("segmentation service not running")
	// ErrConnectionTimeout is returned when the request times out.
	ErrConnectionTimeout = errors.New("segmentation service timeout")
	// ErrConnectionFailed is returned when the transport fails for other reasons.
	ErrConnectionFailed = errors.New("segmentation service connection failed")
	// ErrRequestFailed is returned when the service answers with a non-2xx status or a malformed body.
	ErrRequestFailed = errors.New("segmentation request failed")
	// ErrImageNotFound is returned when a mask or image reference is unknown to the service.
	ErrImageNotFound = errors.New("image not found")
)

const (
	// maxImageSize bounds fetched images.
	maxImageSize = 32 << 20
	// maxErrorBody bounds the part of an error body kept for the message.
	maxErrorBody = 512
)

// Client talks to the segmentation service.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for endpoint, e.g. "http://localhost:8000".
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Segment posts the chat history and the base image and returns the reply and the mask reference.
func (c *Client) Segment(ctx context.Context, request *Request) (*Response, error) {
	if request == nil || len(request.History) == 0 {
		return nil, errors.New("chat history cannot be empty")
	}

	body, contentType, err := encodeSegmentRequest(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+EndpointSegmentImage, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp)
	}

	out := &Response{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, errors.Wrapf(ErrRequestFailed, "failed to decode response: %v", err)
	}
	slog.Debug("segmentation finished",
		slog.Int("history", len(request.History)),
		slog.String("mask", out.MaskedImagePath),
		slog.Int64("duration_ms", time.Since(started).Milliseconds()),
	)
	return out, nil
}

// FetchImage downloads an image by the path reference returned from Segment.
func (c *Client) FetchImage(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, errors.Wrap(ErrImageNotFound, "empty image path")
	}
	target := c.endpoint + EndpointImage + "?" + url.Values{"path": []string{path}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(ErrImageNotFound, "%s", path)
	}
	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, classifyError(err)
	}
	if len(data) > maxImageSize {
		return nil, errors.Wrapf(ErrRequestFailed, "image %s exceeds %d bytes", path, maxImageSize)
	}
	return data, nil
}

// ListImages returns the image paths the service offers as base images.
func (c *Client) ListImages(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+EndpointImagesList, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp)
	}
	var paths []string
	if err := json.NewDecoder(resp.Body).Decode(&paths); err != nil {
		return nil, errors.Wrapf(ErrRequestFailed, "failed to decode response: %v", err)
	}
	return paths, nil
}

func encodeSegmentRequest(request *Request) (io.Reader, string, error) {
	history, err := json.Marshal(request.History)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to marshal chat history")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chat_history", string(history)); err != nil {
		return nil, "", errors.Wrap(err, "failed to write chat history")
	}
	if len(request.Classes) > 0 {
		classes, err := json.Marshal(classesPayload{Classes: request.Classes})
		if err != nil {
			return nil, "", errors.Wrap(err, "failed to marshal classes")
		}
		if err := w.WriteField("classes_json", string(classes)); err != nil {
			return nil, "", errors.Wrap(err, "failed to write classes")
		}
	}

	name := request.ImageName
	if name == "" {
		name = "image"
	}
	part, err := w.CreateFormFile("image", name)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to create image part")
	}
	if _, err := part.Write(request.Image); err != nil {
		return nil, "", errors.Wrap(err, "failed to write image")
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "failed to close multipart body")
	}
	return &buf, w.FormDataContentType(), nil
}

func statusError(resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(detail))
	if msg == "" {
		return errors.Wrapf(ErrRequestFailed, "unexpected status %d", resp.StatusCode)
	}
	return errors.Wrapf(ErrRequestFailed, "unexpected status %d: %s", resp.StatusCode, msg)
}

// classifyError maps transport errors onto the sentinel errors.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(ErrConnectionTimeout, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(ErrConnectionTimeout, err.Error())
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return errors.Wrap(ErrNotRunning, err.Error())
	}
	return errors.Wrap(ErrConnectionFailed, err.Error())
}

// IsTransportError reports whether err comes from the network rather than from the service.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrNotRunning) || errors.Is(err, ErrConnectionTimeout) || errors.Is(err, ErrConnectionFailed)
}
