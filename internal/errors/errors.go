package errors

import "errors"

var (
	ErrMalformedToken     = errors.New("token malformed")
	ErrSignatureInvalid   = errors.New("token signature invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrTaskNotFound       = errors.New("task not found")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrMissingFields      = errors.New("missing required fields")
	ErrInvalidParams      = errors.New("invalid params")
	ErrSearchDisabled     = errors.New("search is not enabled")
)

// IsAuth reports whether err means the caller could not be authenticated.
func IsAuth(err error) bool {
	return errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrInvalidCredentials)
}
