package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic    = fmt.Errorf("worker panic")
	ErrEmptyWords     = fmt.Errorf("no words have been found")
	ErrSlowConsumer   = fmt.Errorf("connection outbound buffer is full")
	ErrInvalidPayload = fmt.Errorf("invalid event payload")

	ErrAuthRequired       = fmt.Errorf("authentication required")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrUserAlreadyExists  = fmt.Errorf("an account already exists for this email")

	ErrNotFound        = fmt.Errorf("not found")
	ErrChatNotFound    = fmt.Errorf("chat %w", ErrNotFound)
	ErrNotParticipant  = fmt.Errorf("sender is not a participant of this chat")
	ErrValidation      = fmt.Errorf("validation failure")
	ErrSameParticipant = fmt.Errorf("%w: a chat needs two distinct participants", ErrValidation)
	ErrNetworkFailure  = fmt.Errorf("network failure")
)

// Code is the stable identifier sent to clients in error bodies and socket acks.
type Code string

const (
	CodeAuthRequired   Code = "AUTH_REQUIRED"
	CodeNotFound       Code = "NOT_FOUND"
	CodeNotParticipant Code = "NOT_PARTICIPANT"
	CodeValidation     Code = "VALIDATION_FAILURE"
	CodeAlreadyExists  Code = "ALREADY_EXISTS"
	CodeNetworkFailure Code = "NETWORK_FAILURE"
	CodeInternal       Code = "INTERNAL"
)

// CodeOf classifies err into the public error taxonomy.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrAuthRequired), stderrors.Is(err, ErrInvalidCredentials):
		return CodeAuthRequired
	case stderrors.Is(err, ErrNotFound):
		return CodeNotFound
	case stderrors.Is(err, ErrNotParticipant):
		return CodeNotParticipant
	case stderrors.Is(err, ErrValidation), stderrors.Is(err, ErrInvalidPassword):
		return CodeValidation
	case stderrors.Is(err, ErrUserAlreadyExists):
		return CodeAlreadyExists
	case stderrors.Is(err, ErrNetworkFailure):
		return CodeNetworkFailure
	default:
		return CodeInternal
	}
}

// FromCode is the inverse of CodeOf, used by clients to rebuild a sentinel
// from a wire error so callers can keep using errors.Is.
func FromCode(code Code, message string) error {
	var base error
	switch code {
	case CodeAuthRequired:
		base = ErrAuthRequired
	case CodeNotFound:
		base = ErrNotFound
	case CodeNotParticipant:
		base = ErrNotParticipant
	case CodeValidation:
		base = ErrValidation
	case CodeAlreadyExists:
		base = ErrUserAlreadyExists
	case CodeNetworkFailure:
		base = ErrNetworkFailure
	default:
		return fmt.Errorf("server error: %s", message)
	}
	if message == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, message)
}

// MapToHTTPStatus translates domain errors to HTTP status codes.
func MapToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case "":
		return http.StatusOK
	case CodeAuthRequired:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNotParticipant:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeNetworkFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Body is the wire form of an error, shared by REST responses and socket acks.
// Internal errors never expose their message.
type Body struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func NewBody(err error) Body {
	code := CodeOf(err)
	if code == CodeInternal {
		return Body{Code: code, Message: "internal error"}
	}
	return Body{Code: code, Message: err.Error()}
}

// Err rebuilds the sentinel error carried by b.
func (b Body) Err() error {
	return FromCode(b.Code, b.Message)
}
