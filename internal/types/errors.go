package types

import "errors"

// Domain specific errors shared across the resolver, gateway and feedback layers.
var (
	ErrNotFound            = errors.New("requested item not found")
	ErrUpstreamUnavailable = errors.New("upstream dependency unavailable")
	ErrRateLimited         = errors.New("rate limit exceeded, try again shortly")
	ErrBadRequest          = errors.New("bad request")
)
