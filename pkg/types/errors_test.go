package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorIs(t *testing.T) {
	tests := []struct {
		name   string
		err    *APIError
		target error
		want   bool
	}{
		{"401 is unauthorized", &APIError{Status: http.StatusUnauthorized}, ErrUnauthorized, true},
		{"403 is forbidden", &APIError{Status: http.StatusForbidden}, ErrForbidden, true},
		{"404 is not found", &APIError{Status: http.StatusNotFound}, ErrNotFound, true},
		{"409 is conflict", &APIError{Status: http.StatusConflict}, ErrConflict, true},
		{"500 is not conflict", &APIError{Status: http.StatusInternalServerError}, ErrConflict, false},
		{"email text", &APIError{Status: http.StatusBadRequest, Message: "EmailNotFound"}, ErrEmailNotFound, true},
		{"password text", &APIError{Status: http.StatusBadRequest, Message: "WrongPassword"}, ErrWrongPassword, true},
		{"password text is not email", &APIError{Status: http.StatusBadRequest, Message: "WrongPassword"}, ErrEmailNotFound, false},
		{"table exists text", &APIError{Status: http.StatusConflict, Message: "TableAlreadyExists"}, ErrTableAlreadyExists, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("call: %w", tt.err)
			assert.Equal(t, tt.want, errors.Is(wrapped, tt.target))
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	assert.Equal(t, "server returned 409: Name taken", (&APIError{Status: 409, Message: "Name taken\n"}).Error())
	assert.Equal(t, "server returned 502: Bad Gateway", (&APIError{Status: 502}).Error())
}

func TestDecodeErrorIsDistinctFromBusinessErrors(t *testing.T) {
	var raw struct{ ID int }
	jerr := json.Unmarshal([]byte(`{"ID":"x"}`), &raw)
	err := error(&DecodeError{Op: "get users", Err: jerr})

	assert.Contains(t, err.Error(), "decode error: get users")
	for _, sentinel := range []error{ErrUnauthorized, ErrNotFound, ErrConflict, ErrEmailNotFound, ErrWrongPassword} {
		assert.False(t, errors.Is(err, sentinel), "decode error must not match %v", sentinel)
	}

	var de *DecodeError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &de))
}
