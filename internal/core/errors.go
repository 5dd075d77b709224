package core

import "errors"

var (
	// ErrUnauthenticated: missing or invalid credential at connect time.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrIdentityMismatch: a supplied user id differs from the bound identity.
	ErrIdentityMismatch = errors.New("identity mismatch")
	// ErrForbidden: the actor is not a member/owner of the target room or server.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound: unknown room/transport/producer/consumer/message.
	ErrNotFound = errors.New("not found")
	// ErrInvalid: a required field is missing or malformed.
	ErrInvalid = errors.New("invalid request")
	// ErrEngine: a persistence or media-engine failure.
	ErrEngine = errors.New("engine failure")
	// ErrCannotConsume: the routing context cannot bridge the producer to
	// the requested capabilities.
	ErrCannotConsume = errors.New("cannot consume")
	// ErrRateLimited: the actor exceeded the per-user send window.
	ErrRateLimited = errors.New("rate limited")
)

// Reason maps an operation error to the wire-level ack string. Authorization
// failures share the "unauthorized" reason so existence is not leaked.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrIdentityMismatch), errors.Is(err, ErrForbidden):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrInvalid):
		return "missing params"
	case errors.Is(err, ErrCannotConsume):
		return "cannot consume"
	case errors.Is(err, ErrRateLimited):
		return "rate limited"
	default:
		return "internal error"
	}
}
