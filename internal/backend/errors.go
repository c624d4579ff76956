package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMalformedResponse marks a 2xx response whose body could not be used.
	ErrMalformedResponse = errors.New("malformed backend response")
	// ErrUnexpectedResponse marks a 2xx response with an unexpected message.
	ErrUnexpectedResponse = errors.New("unexpected backend response")
)

// APIError is a non-2xx backend response. Detail holds the server supplied
// human readable message, if any.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("backend returned %d %s", e.Status, http.StatusText(e.Status))
}

// DetailOr returns the server detail carried by err, or fallback when err
// carries none.
func DetailOr(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}
