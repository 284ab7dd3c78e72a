package router

import "errors"

var (
	ErrMalformedEvent    = errors.New("malformed event")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrNotSubscribed     = errors.New("codeChange without exerciseId requires an active subscription")
	ErrAmbiguousScope    = errors.New("codeChange without exerciseId is ambiguous with several subscriptions")
)
