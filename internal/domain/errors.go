package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy of the event pipeline

var (
	// ErrAuthentication indicates a missing, invalid or expired webhook signature
	ErrAuthentication = errors.New("authentication failed")

	// ErrParse indicates a malformed event body
	ErrParse = errors.New("malformed event")

	// ErrBackend is the parent of every LLM failure
	ErrBackend = errors.New("llm backend error")

	// ErrDelivery indicates the reply could not be delivered to the platform
	ErrDelivery = errors.New("reply delivery failed")

	// ErrSession indicates the session store is unavailable
	ErrSession = errors.New("session store unavailable")
)

// LLM error types

var (
	// ErrLLMUnavailable indicates the LLM service is unavailable
	ErrLLMUnavailable = fmt.Errorf("%w: service unavailable", ErrBackend)

	// ErrLLMTimeout indicates a request to the LLM timed out
	ErrLLMTimeout = fmt.Errorf("%w: request timeout", ErrBackend)

	// ErrLLMRateLimited indicates the LLM gateway rejected the request with a rate limit
	ErrLLMRateLimited = fmt.Errorf("%w: rate limited", ErrBackend)

	// ErrInvalidRequest indicates an invalid request was made (4xx client errors)
	ErrInvalidRequest = fmt.Errorf("%w: invalid request", ErrBackend)
)
