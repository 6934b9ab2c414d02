package types

import "errors"

// ErrUpstream marks a failure of an upstream collaborator (local datastore
// or remote catalog). Tool functions wrap transport and breaker errors with
// it so the agent shell can degrade to an apology instead of fabricating an
// answer. Cancellation is never wrapped.
var ErrUpstream = errors.New("upstream service unavailable")

// IsUpstream reports whether err is an upstream-collaborator failure.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}
