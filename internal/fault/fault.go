// Package fault carries the typed business-rule errors returned by the engine.
// Every rule violation is expected during play and maps to a stable code that
// transports (HTTP, CLI) can render without string matching.
package fault

import (
	"errors"
	"net/http"
	"strings"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Lookup and authoring
	CodeNotFound        Code = "NOT_FOUND"
	CodeWrongType       Code = "WRONG_TYPE"
	CodeInvalidConfig   Code = "INVALID_CONFIG"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Idempotency
	CodeAlreadyCompleted  Code = "ALREADY_COMPLETED"
	CodeAlreadyControlled Code = "ALREADY_CONTROLLED"

	// Player-facing rule failures
	CodeMaxAttemptsReached Code = "MAX_ATTEMPTS_REACHED"
	CodeOutOfRange         Code = "OUT_OF_RANGE"
	CodeMovedOutOfZone     Code = "MOVED_OUT_OF_ZONE"
	CodeTimeNotElapsed     Code = "TIME_NOT_ELAPSED"
	CodeTimeExpired        Code = "TIME_EXPIRED"
	CodeWrongAnswer        Code = "WRONG_ANSWER"
	CodeInvalidCheckpoint  Code = "INVALID_CHECKPOINT"
	CodeAlreadyCollected   Code = "ALREADY_COLLECTED"
	CodeInvalidItem        Code = "INVALID_ITEM"
	CodeNotStarted         Code = "NOT_STARTED"
	CodeAlreadyInProgress  Code = "ALREADY_IN_PROGRESS"
	CodePrerequisiteNotMet Code = "PREREQUISITE_NOT_MET"

	// State
	CodeSessionNotActive   Code = "SESSION_NOT_ACTIVE"
	CodeTeamNotInSession   Code = "TEAM_NOT_IN_SESSION"
	CodeOperationNotActive Code = "OPERATION_NOT_ACTIVE"
	CodeTeamNotInOperation Code = "TEAM_NOT_IN_OPERATION"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
)

// HTTPStatus maps a code to the status the API answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidConfig, CodeInvalidArgument, CodeWrongType:
		return http.StatusBadRequest
	case CodeAlreadyCompleted, CodeAlreadyControlled, CodeAlreadyInProgress, CodeAlreadyCollected:
		return http.StatusConflict
	case CodeTeamNotInSession, CodeTeamNotInOperation:
		return http.StatusForbidden
	case CodeMaxAttemptsReached:
		return http.StatusTooManyRequests
	case CodeOutOfRange,
		CodeMovedOutOfZone,
		CodeTimeNotElapsed,
		CodeTimeExpired,
		CodeWrongAnswer,
		CodeInvalidCheckpoint,
		CodeInvalidItem,
		CodeNotStarted,
		CodePrerequisiteNotMet,
		CodeSessionNotActive,
		CodeOperationNotActive,
		CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Slug is the lower-case form used in API envelopes.
func (c Code) Slug() string {
	return strings.ToLower(string(c))
}

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]any
	Cause    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata creates a domain error carrying details for the caller,
// e.g. remaining minutes or the expected checkpoint.
func WithMetadata(code Code, message string, metadata map[string]any) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap creates a domain error around an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code of the first fault in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeUnknown
}

// Has reports whether err carries the given code.
func Has(err error, code Code) bool {
	return CodeOf(err) == code
}

// MetadataOf returns the metadata of the first fault in err's chain.
func MetadataOf(err error) map[string]any {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Metadata
	}
	return nil
}
