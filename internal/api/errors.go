package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-santa/internal/server"
)

type ApiError struct {
	StatusCode int         `json:"statusCode"`
	Kind       server.Kind `json:"kind"`
	Message    string      `json:"message"`
	Err        error       `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError(message string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Kind:       server.KindValidation,
		Message:    message,
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Kind:       server.KindNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Kind:       server.KindStorage,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

var kindStatus = map[server.Kind]int{
	server.KindValidation:         http.StatusBadRequest,
	server.KindNotFound:           http.StatusNotFound,
	server.KindForbidden:          http.StatusForbidden,
	server.KindConflict:           http.StatusConflict,
	server.KindPreconditionFailed: http.StatusPreconditionFailed,
	server.KindDrawImpossible:     http.StatusServiceUnavailable,
	server.KindStorage:            http.StatusInternalServerError,
}

// NewApiError converts an error returned by the coordinator. Errors without
// a kind become internal server errors.
func NewApiError(err error) *ApiError {
	var e *server.Error
	if !errors.As(err, &e) {
		return NewInternalServerError(err)
	}
	if e.Kind == server.KindStorage {
		return NewInternalServerError(err)
	}

	status, ok := kindStatus[e.Kind]
	if !ok {
		return NewInternalServerError(err)
	}

	return &ApiError{
		StatusCode: status,
		Kind:       e.Kind,
		Message:    e.Message,
		Err:        e.Err,
	}
}
