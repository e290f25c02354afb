package chat

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds recorded on a failed turn. Test with errors.Is.
var (
	// ErrInferenceFailure means the segmentation service rejected or failed the request.
	ErrInferenceFailure = errors.New("inference failure")
	// ErrPersistenceFailure means the directory could not create or append to the conversation.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrNetworkFailure means a collaborator could not be reached.
	ErrNetworkFailure = errors.New("network failure")

	// ErrTurnInProgress is returned when a turn or hydration is requested while another is running.
	ErrTurnInProgress = errors.New("a turn is already in progress")
	// ErrEmptyMessage is returned for a blank draft.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrConversationNotFound is returned by the directory for unknown conversations.
	ErrConversationNotFound = errors.New("conversation not found")
)

// Step names the stage of a turn that failed.
type Step string

const (
	StepInference Step = "inference"
	StepMaskFetch Step = "mask_fetch"
	StepCreate    Step = "create_conversation"
	StepAppend    Step = "append_turn"
	StepHydrate   Step = "hydrate"
)

// TurnError reports which step of a turn failed and why.
type TurnError struct {
	Step Step
	Kind error
	Err  error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Step, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *TurnError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newTurnError(step Step, kind, err error) *TurnError {
	// Transport failures keep their own kind whatever the step.
	if errors.Is(err, ErrNetworkFailure) {
		kind = ErrNetworkFailure
	}
	return &TurnError{Step: step, Kind: kind, Err: err}
}
