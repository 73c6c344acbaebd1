package shared

import "errors"

// Bearer session failures. Both resolve to an anonymous request.
var (
	ErrSessionNotFound = errors.New("session not found or expired")
	ErrInvalidToken    = errors.New("invalid bearer token")
)
