package api

import "errors"

var (
	// ErrTimeout is returned when a remote call exceeds its time budget or
	// the connection fails outright. It is the only request-level failure
	// that propagates past the gateway; everything else is absorbed into
	// failure-status payloads.
	ErrTimeout = errors.New("request timed out")

	// ErrNotAuthenticated is returned when an authenticated call is
	// attempted without a stored credential. The request is not issued.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrAuthenticationFailed is returned by Login when the service
	// rejects the supplied username/password.
	ErrAuthenticationFailed = errors.New("authentication failed")
)
