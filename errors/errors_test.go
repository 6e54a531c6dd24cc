package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapToHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"auth", ErrAuthRequired, http.StatusUnauthorized},
		{"credentials", ErrInvalidCredentials, http.StatusUnauthorized},
		{"chat not found is a not found", ErrChatNotFound, http.StatusNotFound},
		{"wrapped not participant", fmt.Errorf("append: %w", ErrNotParticipant), http.StatusForbidden},
		{"same participant is a validation failure", ErrSameParticipant, http.StatusBadRequest},
		{"conflict", ErrUserAlreadyExists, http.StatusConflict},
		{"unknown", stderrors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.status, MapToHTTPStatus(tt.err))
		})
	}
}

func TestFromCode_RoundTrip(t *testing.T) {
	req := require.New(t)

	err := FromCode(CodeOf(ErrChatNotFound), "chat 42")
	req.ErrorIs(err, ErrNotFound)
	req.Contains(err.Error(), "chat 42")

	req.ErrorIs(FromCode(CodeNotParticipant, ""), ErrNotParticipant)
	req.NotErrorIs(FromCode(CodeInternal, "x"), ErrNotFound)
}

func TestNewBody_HidesInternalErrors(t *testing.T) {
	req := require.New(t)

	body := NewBody(fmt.Errorf("badger: value log corrupted"))
	req.Equal(Body{Code: CodeInternal, Message: "internal error"}, body)

	body = NewBody(ErrChatNotFound)
	req.Equal(CodeNotFound, body.Code)
	req.ErrorIs(body.Err(), ErrNotFound)
}
