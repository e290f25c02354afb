package v1

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/wiesioai/wiesio/internal/profile"
	apierrors "github.com/wiesioai/wiesio/server/internal/errors"
	"github.com/wiesioai/wiesio/server/internal/observability"
	ratelimit "github.com/wiesioai/wiesio/server/middleware"
	"github.com/wiesioai/wiesio/store"
)

const (
	// labelLength is the length of the generated conversation label.
	labelLength   = 6
	labelAlphabet = "abcdefghijklmnopqrstuvwxyz"

	// MaxRequestBodySize bounds JSON bodies, cover images included.
	MaxRequestBodySize = "2M"

	rateLimitCleanupInterval = time.Minute
)

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Metrics *observability.Metrics

	markdown    *MarkdownRenderer
	rateLimiter *ratelimit.RateLimiter
	// cleanupInterval is how often idle rate limiter entries are dropped.
	cleanupInterval time.Duration
	// newLabel generates the name of a new conversation.
	newLabel func() string
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, metrics *observability.Metrics) *APIV1Service {
	return &APIV1Service{
		Profile:     profile,
		Store:       store,
		Metrics:     metrics,
		markdown:    NewMarkdownRenderer(),
		rateLimiter: ratelimit.NewRateLimiter(profile.RateLimit, profile.RateBurst),
		newLabel:    randomLabel,

		cleanupInterval: rateLimitCleanupInterval,
	}
}

// randomLabel returns labelLength random lowercase letters.
func randomLabel() string {
	id := shortuuid.NewWithAlphabet(labelAlphabet)
	return id[len(id)-labelLength:]
}

// RunCleanup drops rate limiter state of idle clients until ctx is done.
func (s *APIV1Service) RunCleanup(ctx context.Context) {
	s.rateLimiter.RunCleanup(ctx, s.cleanupInterval)
}

// RegisterRoutes registers the directory API with the given Echo instance.
func (s *APIV1Service) RegisterRoutes(_ context.Context, echoServer *echo.Echo) error {
	if s.Store == nil {
		return errors.New("store is required")
	}

	group := echoServer.Group("")
	group.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, observability.HeaderRequestID},
	}))
	group.Use(middleware.BodyLimit(MaxRequestBodySize))
	group.Use(s.rateLimiter.Middleware())

	group.GET("/healthz", s.Healthz)
	group.GET("/rss.xml", s.GetRSS)
	group.GET("/conversations", s.ListConversations)
	group.POST("/conversations", s.CreateConversation)
	group.GET("/conversations/:id", s.GetConversation)
	group.GET("/conversations/:id/cover", s.GetConversationCover)
	group.POST("/conversations/:id/turns", s.AppendTurn)
	return nil
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status  string                         `json:"status"`
	Version string                         `json:"version,omitempty"`
	Metrics *observability.MetricsSnapshot `json:"metrics,omitempty"`
}

// Healthz reports liveness together with request counters.
// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	resp := HealthzResponse{Status: "ok", Version: s.Profile.Version}
	if s.Metrics != nil {
		resp.Metrics = s.Metrics.Snapshot()
	}
	return c.JSON(http.StatusOK, resp)
}

// HTTPErrorHandler renders every error as {code, message}.
// Store kinds are mapped by apierrors.FromError; causes are logged, never returned.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *apierrors.APIError
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) && !errors.As(err, &apiErr) {
		apiErr = &apierrors.APIError{
			Code:    codeFromStatus(httpErr.Code),
			Message: fmt.Sprint(httpErr.Message),
			Cause:   httpErr.Internal,
		}
	} else {
		apiErr = apierrors.FromError(err)
	}

	status := apiErr.Code.Status()
	if httpErr != nil && apiErr.Code == codeFromStatus(httpErr.Code) {
		status = httpErr.Code
	}

	attrs := []slog.Attr{slog.String(observability.LogFieldErrorCode, string(apiErr.Code))}
	if reqCtx, ok := observability.FromContext(c.Request().Context()); ok {
		switch {
		case status >= http.StatusInternalServerError:
			reqCtx.Error("request error", err, attrs...)
		case apierrors.IsCode(apiErr, apierrors.ErrCodeRateLimitExceeded):
			reqCtx.Warn("rate limit exceeded", attrs...)
		default:
			reqCtx.Debug("request rejected", append(attrs, slog.String("error", err.Error()))...)
		}
	} else if status >= http.StatusInternalServerError {
		slog.Error("request error", slog.String("error", err.Error()), slog.String(observability.LogFieldErrorCode, string(apiErr.Code)))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, apiErr.Body())
	}
	if err != nil {
		slog.Error("failed to write error response", slog.String("error", err.Error()))
	}
}

func codeFromStatus(status int) apierrors.ErrorCode {
	switch {
	case status == http.StatusNotFound:
		return apierrors.ErrCodeNotFound
	case status == http.StatusTooManyRequests:
		return apierrors.ErrCodeRateLimitExceeded
	case status >= 400 && status < 500:
		return apierrors.ErrCodeInvalidArgument
	default:
		return apierrors.ErrCodeInternal
	}
}
