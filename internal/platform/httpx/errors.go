// Package httpx writes JSON and RFC7807 problem responses.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinels that handlers and stores wrap so RespondError can pick a status.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("temporarily unavailable")
)

type problemMapping struct {
	target error
	status int
	// Server side faults keep their message out of the response body.
	exposeDetail bool
}

var problemMappings = []problemMapping{
	{ErrNotFound, http.StatusNotFound, true},
	{ErrInvalidInput, http.StatusBadRequest, true},
	{ErrForbidden, http.StatusForbidden, true},
	{ErrUnauthorized, http.StatusUnauthorized, true},
	{ErrUnavailable, http.StatusServiceUnavailable, true},
}

// RespondError writes the problem for the first sentinel err wraps. Anything
// else is an opaque 500.
func RespondError(w http.ResponseWriter, err error) {
	for _, m := range problemMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		detail := ""
		if m.exposeDetail {
			detail = err.Error()
		}
		Problem(w, m.status, http.StatusText(m.status), detail)
		return
	}
	Problem(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), "")
}
