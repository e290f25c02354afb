package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/wiesioai/wiesio/plugin/imagecache"
	"github.com/wiesioai/wiesio/plugin/segment"
	"github.com/wiesioai/wiesio/store"
)

// Segmenter is the inference collaborator. *segment.Client implements it.
type Segmenter interface {
	Segment(ctx context.Context, request *segment.Request) (*segment.Response, error)
	FetchImage(ctx context.Context, path string) ([]byte, error)
}

const (
	// Cover thumbnails sent with a new conversation fit in this box.
	coverWidth  = 96
	coverHeight = 96
)

// TurnResult describes a completed turn.
type TurnResult struct {
	TurnID         string
	Reply          string
	MaskKey        string
	ConversationID string
	Location       string
	// MaskErr is set when the mask could not be fetched. The turn itself still succeeded.
	MaskErr error
}

// Orchestrator runs chat turns for one Session.
type Orchestrator struct {
	session   *Session
	segmenter Segmenter
	directory Directory
	images    *imagecache.Cache
	locator   Locator
	logger    *slog.Logger

	mu sync.RWMutex
	// classes are proposed to the segmentation service with every turn.
	classes []string

	// inflight admits a single turn or hydration at a time.
	inflight *semaphore.Weighted
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithLocator sets where persisted conversations are navigated to.
func WithLocator(locator Locator) Option {
	return func(o *Orchestrator) {
		o.locator = locator
	}
}

// WithImageCache shares an image cache with the caller.
func WithImageCache(images *imagecache.Cache) Option {
	return func(o *Orchestrator) {
		o.images = images
	}
}

// WithClasses sets the object classes proposed with every turn.
func WithClasses(classes ...string) Option {
	return func(o *Orchestrator) {
		o.classes = normalizeClasses(classes)
	}
}

// NewOrchestrator creates an orchestrator over a fresh session.
func NewOrchestrator(segmenter Segmenter, directory Directory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session:   NewSession(),
		segmenter: segmenter,
		directory: directory,
		images:    imagecache.New(),
		locator:   NewHistoryLocator(),
		logger:    slog.Default(),
		inflight:  semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Session returns the session state.
func (o *Orchestrator) Session() *Session {
	return o.session
}

// Images returns the image cache holding the base image and the latest mask.
func (o *Orchestrator) Images() *imagecache.Cache {
	return o.images
}

// Locator returns the locator turns navigate.
func (o *Orchestrator) Locator() Locator {
	return o.locator
}

// SetBaseImage selects the image sent with the following turns.
func (o *Orchestrator) SetBaseImage(key string, data []byte) {
	o.images.SetBase(key, data)
}

// SetClasses replaces the object classes proposed with the following turns.
func (o *Orchestrator) SetClasses(classes ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.classes = normalizeClasses(classes)
}

// Classes returns the object classes proposed with every turn.
func (o *Orchestrator) Classes() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.classes))
	copy(out, o.classes)
	return out
}

// Send runs one turn with the given message. The session is loading until Send returns.
//
// The user message is appended to the transcript first and kept whatever happens next.
// An assistant reply is kept even when persisting it fails. A failed turn returns a
// *TurnError which is also recorded as the session's last error.
func (o *Orchestrator) Send(ctx context.Context, message string) (*TurnResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	if !o.inflight.TryAcquire(1) {
		return nil, ErrTurnInProgress
	}
	defer o.inflight.Release(1)

	result := &TurnResult{TurnID: shortuuid.New()}
	logger := o.logger.With(slog.String("turn_id", result.TurnID))
	started := time.Now()

	o.session.begin(message)
	err := o.runTurn(ctx, logger, message, result)
	o.session.finish(err)
	if err != nil {
		logger.Warn("turn failed", slog.String("error", err.Error()), slog.Int64("duration_ms", time.Since(started).Milliseconds()))
		return result, err
	}
	logger.Info("turn completed",
		slog.String("conversation", result.ConversationID),
		slog.Int64("duration_ms", time.Since(started).Milliseconds()),
	)
	return result, nil
}

// SendDraft sends the session's current draft.
func (o *Orchestrator) SendDraft(ctx context.Context) (*TurnResult, error) {
	return o.Send(ctx, o.session.Draft())
}

func (o *Orchestrator) runTurn(ctx context.Context, logger *slog.Logger, message string, result *TurnResult) error {
	request := &segment.Request{
		History: toSegmentHistory(o.session.history()),
		Classes: o.Classes(),
	}
	if base, ok := o.images.Base(); ok {
		request.Image = base.Data
		request.ImageName = imageName(base.Key)
	}

	resp, err := o.segmenter.Segment(ctx, request)
	if err != nil {
		if segment.IsTransportError(err) || ctx.Err() != nil {
			return newTurnError(StepInference, ErrNetworkFailure, err)
		}
		return newTurnError(StepInference, ErrInferenceFailure, err)
	}
	result.Reply = resp.ChatResponse
	result.MaskKey = resp.MaskedImagePath

	if resp.MaskedImagePath != "" {
		mask, err := o.segmenter.FetchImage(ctx, resp.MaskedImagePath)
		if err != nil {
			result.MaskErr = newTurnError(StepMaskFetch, ErrInferenceFailure, err)
			logger.Warn("failed to fetch mask", slog.String("mask", resp.MaskedImagePath), slog.String("error", err.Error()))
		} else {
			o.images.SetMask(resp.MaskedImagePath, mask)
		}
	}

	o.session.appendAssistant(resp.ChatResponse)

	id, pending := o.session.target()
	if id == "" {
		conversation, err := o.directory.CreateConversation(ctx, o.coverImage(logger))
		if err != nil {
			return newTurnError(StepCreate, ErrPersistenceFailure, err)
		}
		id = conversation.Identifier
		o.session.setPending(id)
		logger.Debug("created conversation", slog.String("conversation", id))
	} else if pending {
		logger.Debug("reusing conversation from a failed turn", slog.String("conversation", id))
	}

	if err := o.directory.AppendTurn(ctx, id, message, resp.ChatResponse); err != nil {
		return newTurnError(StepAppend, ErrPersistenceFailure, err)
	}
	o.session.commit(id)

	result.ConversationID = id
	result.Location = ChatPathPrefix + id
	o.locator.Navigate(result.Location)
	return nil
}

// Hydrate replaces the transcript with the stored conversation and adopts its identifier.
// It is rejected while a turn is running.
func (o *Orchestrator) Hydrate(ctx context.Context, identifier string) error {
	if _, _, err := store.ParseIdentifier(identifier); err != nil {
		return errors.Wrapf(err, "invalid conversation %q", identifier)
	}
	if !o.inflight.TryAcquire(1) {
		return ErrTurnInProgress
	}
	defer o.inflight.Release(1)

	o.session.setLoading()
	messages, err := o.directory.ReadConversation(ctx, identifier)
	if err != nil {
		turnErr := newTurnError(StepHydrate, ErrPersistenceFailure, err)
		o.session.finish(turnErr)
		return turnErr
	}
	o.session.replace(identifier, messages)
	o.session.finish(nil)
	o.logger.Debug("hydrated conversation", slog.String("conversation", identifier), slog.Int("messages", len(messages)))
	return nil
}

// Reset starts a new, unsaved conversation. The base image is kept.
func (o *Orchestrator) Reset() error {
	if !o.inflight.TryAcquire(1) {
		return ErrTurnInProgress
	}
	defer o.inflight.Release(1)

	o.session.reset()
	o.images.ClearMask()
	return nil
}

// coverImage returns a thumbnail of the base image, or nil when there is none to use.
func (o *Orchestrator) coverImage(logger *slog.Logger) []byte {
	if _, ok := o.images.Base(); !ok {
		return nil
	}
	cover, err := o.images.Thumbnail(coverWidth, coverHeight)
	if err != nil {
		logger.Debug("no cover image", slog.String("error", err.Error()))
		return nil
	}
	return cover
}

func toSegmentHistory(messages []Message) []segment.Message {
	history := make([]segment.Message, 0, len(messages))
	for _, m := range messages {
		role := segment.RoleUser
		if m.Sender == SenderAssistant {
			role = segment.RoleAssistant
		}
		history = append(history, segment.Message{Role: role, Content: m.Content})
	}
	return history
}

// normalizeClasses trims names and drops blanks and duplicates, keeping order.
func normalizeClasses(classes []string) []string {
	out := make([]string, 0, len(classes))
	seen := make(map[string]bool, len(classes))
	for _, class := range classes {
		class = strings.TrimSpace(class)
		if class == "" || seen[class] {
			continue
		}
		seen[class] = true
		out = append(out, class)
	}
	return out
}

func imageName(key string) string {
	if i := strings.LastIndexAny(key, `/\`); i >= 0 {
		key = key[i+1:]
	}
	if key == "" {
		return "image"
	}
	return key
}
